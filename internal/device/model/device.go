package model

import (
	"time"

	"github.com/google/uuid"
)

// Device represents a physical water meter tracked by the platform.
//
// OwnerID is the authoritative side of the device-user assignment relation:
// the mirrored membership rows in user_owned_devices are derived from it and
// repaired from it by the reconciliation pass.
type Device struct {
	ID             uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	MeterID        string       `json:"meter_id" gorm:"uniqueIndex;not null"`
	DevicePassword string       `json:"-" gorm:"not null;default:000000"`
	Status         DeviceStatus `json:"status" gorm:"not null;default:uninitialized"`

	CurrentVolume        float64 `json:"current_volume"`
	InitializationVolume float64 `json:"initialization_volume"`
	BatteryVoltage       string  `json:"battery_voltage"`
	NetworkStrength      string  `json:"network_strength"`

	ServerAddress   string `json:"server_address"`
	FirmwareVersion string `json:"firmware_version"`
	ICCID           string `json:"iccid"`
	IMEI            string `json:"imei"`
	IMSI            string `json:"imsi"`
	CellID          string `json:"cell_id"`
	Digits          int    `json:"digits"`
	DeviceOffPeriod string `json:"device_off_period"`
	DeviceOnPeriod  string `json:"device_on_period"`

	OwnerID    *uuid.UUID `json:"owner_id,omitempty" gorm:"index"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`

	// Version guards read-modify-write cycles on the record. Conditional
	// updates match on it and bump it, so a stale writer affects zero rows.
	Version int64 `json:"-" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DeviceStatus string

const (
	StatusUninitialized       DeviceStatus = "uninitialized"
	StatusPendingInstallation DeviceStatus = "pending_installation"
	StatusActive              DeviceStatus = "active"
	StatusInactive            DeviceStatus = "inactive"
	StatusMaintenance         DeviceStatus = "maintenance"
)

// IsOnline reports whether the meter has been heard from in the last hour.
// Water meters report far less often than trackers, so the window is generous.
func (d *Device) IsOnline() bool {
	if d.LastSeenAt == nil {
		return false
	}
	return time.Since(*d.LastSeenAt) < time.Hour
}

// TelemetryUpdate carries the recognized field updates of one inbound report
// together with the version the device was read at.
type TelemetryUpdate struct {
	DeviceID        uuid.UUID
	Version         int64
	Volume          *float64
	BatteryVoltage  *string
	NetworkStrength *string
	SeenAt          time.Time
}
