package model

import (
	"time"

	"github.com/google/uuid"
)

// UsageReading is an immutable fact: the absolute register value of one meter
// at one point in time. Rows are only ever appended, never updated or deleted.
type UsageReading struct {
	ID            uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	DeviceID      uuid.UUID     `json:"device_id" gorm:"type:uuid;not null;index:idx_readings_device_time,priority:1"`
	MeterID       string        `json:"meter_id" gorm:"not null;index:idx_readings_meter_time,priority:1"`
	Timestamp     time.Time     `json:"timestamp" gorm:"not null;index:idx_readings_device_time,priority:2;index:idx_readings_meter_time,priority:2"`
	VolumeReading float64       `json:"volume_reading" gorm:"not null"`
	Source        ReadingSource `json:"source" gorm:"not null;default:meter_ingress"`
}

type ReadingSource string

const (
	SourceMeterIngress   ReadingSource = "meter_ingress"
	SourceManualEntry    ReadingSource = "manual_entry"
	SourceInitialization ReadingSource = "initialization"
	SourceBillingProcess ReadingSource = "billing_process"
)
