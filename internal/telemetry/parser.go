package telemetry

import (
	"strconv"
	"strings"
)

// Recognized keys of the meter wire format `KEY:value;KEY:value;...`.
// Unrecognized keys are preserved in Params but never produce an update.
const (
	KeyMeterID = "MTRID"
	KeyVolume  = "VOL"
	KeyBattery = "BATT"
	KeySignal  = "SIG"
)

// Outcome is the four-way classification of one parse attempt. Outcomes are
// mutually exclusive and decided only after every segment has been scanned.
type Outcome int

const (
	// OutcomeMissingMeterID means no MTRID segment was found; always terminal.
	OutcomeMissingMeterID Outcome = iota
	// OutcomeNoUpdatableFields means MTRID was found but no recognized field
	// produced an update (a ping).
	OutcomeNoUpdatableFields
	// OutcomeParsed means MTRID was found and at least one field update was
	// produced.
	OutcomeParsed
	// OutcomeException means the scan itself failed unexpectedly, distinct
	// from well-formed-but-empty input.
	OutcomeException
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMissingMeterID:
		return "missing_meter_id"
	case OutcomeNoUpdatableFields:
		return "no_updatable_fields"
	case OutcomeParsed:
		return "parsed"
	case OutcomeException:
		return "parse_exception"
	default:
		return "unknown"
	}
}

// Report is the structured result of parsing one raw status string.
type Report struct {
	MeterID string
	Raw     string

	// Params holds every key:value segment as received, recognized or not,
	// for the audit log.
	Params map[string]string

	// Typed updates. A value that failed to parse for its key stays in
	// Params but produces no update here.
	Volume  *float64
	Battery *string
	Signal  *string

	Outcome Outcome
}

// HasUpdates reports whether any recognized field produced an update.
func (r *Report) HasUpdates() bool {
	return r.Volume != nil || r.Battery != nil || r.Signal != nil
}

// ParseReport scans a raw meter status string. Pure and deterministic: no
// I/O, same classification regardless of which fields are present.
//
// Segments are split on ';'; each segment containing ':' is split once on the
// first ':' into key and value, the key upper-cased and trimmed, the value
// trimmed. Segments without ':' are silently ignored.
func ParseReport(raw string) (report Report) {
	report = Report{
		Raw:    raw,
		Params: make(map[string]string),
	}

	// The scan itself cannot realistically fail, but the classification keeps
	// a distinct exception outcome so an unexpected panic never escapes into
	// the pipeline as a crash.
	defer func() {
		if rec := recover(); rec != nil {
			report.Outcome = OutcomeException
		}
	}()

	for _, segment := range strings.Split(strings.TrimSpace(raw), ";") {
		if !strings.Contains(segment, ":") {
			continue
		}

		key, value, _ := strings.Cut(segment, ":")
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		report.Params[key] = value

		switch key {
		case KeyMeterID:
			report.MeterID = value
		case KeyVolume:
			if volume, err := strconv.ParseFloat(value, 64); err == nil {
				report.Volume = &volume
			}
		case KeyBattery:
			battery := value
			report.Battery = &battery
		case KeySignal:
			signal := value
			report.Signal = &signal
		}
	}

	switch {
	case report.MeterID == "":
		report.Outcome = OutcomeMissingMeterID
	case !report.HasUpdates():
		report.Outcome = OutcomeNoUpdatableFields
	default:
		report.Outcome = OutcomeParsed
	}

	return report
}
