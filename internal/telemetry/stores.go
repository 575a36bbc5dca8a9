package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	clmodel "water-meter-platform/internal/commandlog/model"
	devicemodel "water-meter-platform/internal/device/model"
	readingmodel "water-meter-platform/internal/reading/model"
)

// DeviceStore is the slice of the device repository the pipeline needs.
// ApplyTelemetry must be a conditional write on the record version and return
// pkg/errors.ErrVersionConflict when the guard fails.
type DeviceStore interface {
	GetDeviceByMeterID(ctx context.Context, meterID string) (*devicemodel.Device, error)
	ApplyTelemetry(ctx context.Context, update *devicemodel.TelemetryUpdate) error
	TouchLastSeen(ctx context.Context, deviceID uuid.UUID, at time.Time) error
}

// ReadingStore appends immutable usage readings.
type ReadingStore interface {
	Append(ctx context.Context, reading *readingmodel.UsageReading) error
}

// CommandLogStore appends audit rows. Every report, including malformed ones
// with no device context, produces exactly one row.
type CommandLogStore interface {
	Append(ctx context.Context, entry *clmodel.CommandLog) error
}
