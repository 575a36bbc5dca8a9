package model

import "github.com/google/uuid"

type CreateDeviceRequest struct {
	MeterID        string     `json:"meter_id" binding:"required"`
	DevicePassword string     `json:"device_password"`
	Status         string     `json:"status" validate:"omitempty,device_status"`
	ServerAddress  string     `json:"server_address"`
	Digits         int        `json:"digits"`
	Notes          string     `json:"notes"`
	OwnerID        *uuid.UUID `json:"owner_id"`
}

// UpdateDeviceRequest uses pointers so absent fields are left untouched,
// matching partial-update semantics of the admin console.
type UpdateDeviceRequest struct {
	MeterID              *string  `json:"meter_id"`
	DevicePassword       *string  `json:"device_password"`
	Status               *string  `json:"status" validate:"omitempty,device_status"`
	CurrentVolume        *float64 `json:"current_volume"`
	InitializationVolume *float64 `json:"initialization_volume"`
	BatteryVoltage       *string  `json:"battery_voltage"`
	NetworkStrength      *string  `json:"network_strength"`
	ServerAddress        *string  `json:"server_address"`
	FirmwareVersion      *string  `json:"firmware_version"`
	ICCID                *string  `json:"iccid"`
	IMEI                 *string  `json:"imei"`
	IMSI                 *string  `json:"imsi"`
	CellID               *string  `json:"cell_id"`
	Digits               *int     `json:"digits"`
	DeviceOffPeriod      *string  `json:"device_off_period"`
	DeviceOnPeriod       *string  `json:"device_on_period"`
	Notes                *string  `json:"notes"`

	// OwnerID absent leaves the assignment alone, empty string unassigns,
	// a UUID reassigns. Mirrors the admin console payload of the SMS gateway era.
	OwnerID *string `json:"owner_id"`
}

type DeviceFilterRequest struct {
	Status   *string    `form:"status"`
	OwnerID  *uuid.UUID `form:"owner_id"`
	Search   string     `form:"search"`
	Page     int        `form:"page"`
	PageSize int        `form:"page_size"`
}

type ManualReadingRequest struct {
	// Pointer so a legitimate zero reading survives required validation.
	VolumeReading *float64 `json:"volume_reading" binding:"required"`
}
