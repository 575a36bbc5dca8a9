package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	clmodel "water-meter-platform/internal/commandlog/model"
	devicemodel "water-meter-platform/internal/device/model"
	readingmodel "water-meter-platform/internal/reading/model"
	appErrors "water-meter-platform/pkg/errors"
)

// TerminalState is where one inbound report ends up. Each terminal state
// writes exactly one command-log row before Ingest returns.
type TerminalState string

const (
	StateRejected     TerminalState = "rejected"
	StateAcknowledged TerminalState = "acknowledged"
	StateUpdated      TerminalState = "updated"
)

// RejectReason distinguishes the two client-visible rejection classes.
type RejectReason string

const (
	ReasonMalformedInput RejectReason = "malformed_input"
	ReasonUnknownDevice  RejectReason = "unknown_device"
)

// Result is the outcome of ingesting one raw report.
type Result struct {
	State    TerminalState `json:"state"`
	Reason   RejectReason  `json:"reason,omitempty"`
	MeterID  string        `json:"meter_id,omitempty"`
	Response string        `json:"response"`
}

// Pipeline turns one raw telemetry string into durable state changes plus an
// audit record: parse, device lookup, reading append, guarded device update,
// command log. Handlers may run it concurrently; the per-device version guard
// in DeviceStore.ApplyTelemetry is the only serialization it relies on.
type Pipeline struct {
	devices  DeviceStore
	readings ReadingStore
	logs     CommandLogStore
	metrics  *MetricsTracker
	log      *zap.Logger
}

func NewPipeline(devices DeviceStore, readings ReadingStore, logs CommandLogStore) *Pipeline {
	return &Pipeline{
		devices:  devices,
		readings: readings,
		logs:     logs,
		metrics:  NewMetricsTracker(),
		log:      zap.L().Named("ingestion"),
	}
}

// Metrics returns a snapshot of the pipeline counters.
func (p *Pipeline) Metrics() IngestMetrics {
	return p.metrics.Snapshot()
}

// Ingest processes one inbound report. Parser and lookup failures never
// surface as errors; they terminate in a Rejected result with its audit row.
// The returned error is non-nil only for store failures writing the outcome.
func (p *Pipeline) Ingest(ctx context.Context, raw string) (*Result, error) {
	p.metrics.Update(func(m *IngestMetrics) {
		m.ReportsReceived++
		m.LastProcessedAt = time.Now()
	})

	report := ParseReport(raw)
	entry := &clmodel.CommandLog{
		MeterID:     report.MeterID,
		CommandType: clmodel.TypeDataUpload,
		RawCommand:  raw,
		Parameters:  report.Params,
		Timestamp:   time.Now(),
	}

	switch report.Outcome {
	case OutcomeMissingMeterID:
		entry.Status = clmodel.StatusParseError
		entry.Response = "Meter ID not found in data string."
		return p.reject(ctx, entry, ReasonMalformedInput, "")
	case OutcomeException:
		entry.Status = clmodel.StatusParseException
		entry.Response = "Exception during parsing."
		return p.reject(ctx, entry, ReasonMalformedInput, report.MeterID)
	}

	device, err := p.devices.GetDeviceByMeterID(ctx, report.MeterID)
	if err != nil {
		if appErrors.CodeOf(err) == appErrors.CodeUnknownDevice {
			entry.Status = clmodel.StatusDeviceNotFound
			entry.Response = fmt.Sprintf("Device with Meter ID %s not registered in system.", report.MeterID)
			return p.reject(ctx, entry, ReasonUnknownDevice, report.MeterID)
		}
		entry.Status = clmodel.StatusDBError
		entry.Response = fmt.Sprintf("Error processing data for %s: %v", report.MeterID, err)
		p.appendLog(ctx, entry)
		return nil, fmt.Errorf("device lookup failed for %s: %w", report.MeterID, err)
	}

	now := time.Now()

	if !report.HasUpdates() {
		// Ping: refresh last-seen only, no reading.
		if err := p.devices.TouchLastSeen(ctx, device.ID, now); err != nil {
			entry.Status = clmodel.StatusDBError
			entry.Response = fmt.Sprintf("Error processing data for %s: %v", report.MeterID, err)
			p.appendLog(ctx, entry)
			return nil, fmt.Errorf("last-seen refresh failed for %s: %w", report.MeterID, err)
		}

		entry.Status = clmodel.StatusPing
		entry.Response = fmt.Sprintf("Device %s acknowledged (ping or no new data).", report.MeterID)
		p.appendLog(ctx, entry)
		p.metrics.Update(func(m *IngestMetrics) { m.ReportsAcknowledged++ })
		return &Result{State: StateAcknowledged, MeterID: report.MeterID, Response: entry.Response}, nil
	}

	anomaly := ""
	if report.Volume != nil {
		// Reading first: a crash after this point leaves a reading the device
		// does not reflect yet, which replay can heal; never the reverse.
		reading := &readingmodel.UsageReading{
			DeviceID:      device.ID,
			MeterID:       device.MeterID,
			Timestamp:     now,
			VolumeReading: *report.Volume,
			Source:        readingmodel.SourceMeterIngress,
		}
		if err := p.readings.Append(ctx, reading); err != nil {
			entry.Status = clmodel.StatusDBError
			entry.Response = fmt.Sprintf("Error processing data for %s: %v", report.MeterID, err)
			p.appendLog(ctx, entry)
			return nil, fmt.Errorf("reading append failed for %s: %w", report.MeterID, err)
		}

		if *report.Volume < device.CurrentVolume {
			// Negative consumption has no defined business rule; record and
			// flag it, never correct it.
			anomaly = fmt.Sprintf(" Volume %.3f is below previous %.3f.", *report.Volume, device.CurrentVolume)
			p.metrics.Update(func(m *IngestMetrics) { m.VolumeAnomalies++ })
			p.log.Warn("volume reading below current device volume",
				zap.String("meter_id", device.MeterID),
				zap.Float64("reported", *report.Volume),
				zap.Float64("previous", device.CurrentVolume),
			)
		}
	}

	if err := p.applyDeviceUpdate(ctx, device.ID, device.Version, &report, now); err != nil {
		if errors.Is(err, appErrors.ErrVersionConflict) {
			// Lost update: tolerated, logged, never corrupting. The reading
			// history still carries the value.
			anomaly += " Device update lost to a concurrent report."
			p.metrics.Update(func(m *IngestMetrics) { m.LostUpdates++ })
			p.log.Warn("device update lost to concurrent writer",
				zap.String("meter_id", device.MeterID),
			)
		} else {
			entry.Status = clmodel.StatusDBError
			entry.Response = fmt.Sprintf("Error processing data for %s: %v", report.MeterID, err)
			p.appendLog(ctx, entry)
			return nil, fmt.Errorf("device update failed for %s: %w", report.MeterID, err)
		}
	}

	entry.Status = clmodel.StatusUpdated
	entry.Response = fmt.Sprintf("Device %s updated successfully.%s", report.MeterID, anomaly)
	p.appendLog(ctx, entry)
	p.metrics.Update(func(m *IngestMetrics) { m.ReportsUpdated++ })

	return &Result{State: StateUpdated, MeterID: report.MeterID, Response: entry.Response}, nil
}

// applyDeviceUpdate performs the version-guarded write, re-reading and
// retrying once when another report got in between.
func (p *Pipeline) applyDeviceUpdate(ctx context.Context, deviceID uuid.UUID, version int64, report *Report, at time.Time) error {
	update := &devicemodel.TelemetryUpdate{
		DeviceID:        deviceID,
		Version:         version,
		Volume:          report.Volume,
		BatteryVoltage:  report.Battery,
		NetworkStrength: report.Signal,
		SeenAt:          at,
	}

	err := p.devices.ApplyTelemetry(ctx, update)
	if !errors.Is(err, appErrors.ErrVersionConflict) {
		return err
	}

	fresh, err := p.devices.GetDeviceByMeterID(ctx, report.MeterID)
	if err != nil {
		return err
	}
	update.Version = fresh.Version
	return p.devices.ApplyTelemetry(ctx, update)
}

func (p *Pipeline) reject(ctx context.Context, entry *clmodel.CommandLog, reason RejectReason, meterID string) (*Result, error) {
	p.appendLog(ctx, entry)
	p.metrics.Update(func(m *IngestMetrics) { m.ReportsRejected++ })
	return &Result{
		State:    StateRejected,
		Reason:   reason,
		MeterID:  meterID,
		Response: entry.Response,
	}, nil
}

// appendLog writes the audit row. A failing audit write must not turn a
// classified report into a crash; it is logged and the terminal state stands.
func (p *Pipeline) appendLog(ctx context.Context, entry *clmodel.CommandLog) {
	if err := p.logs.Append(ctx, entry); err != nil {
		p.log.Error("failed to append command log",
			zap.String("meter_id", entry.MeterID),
			zap.String("status", entry.Status),
			zap.Error(err),
		)
	}
}
