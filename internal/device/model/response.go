package model

import (
	"time"

	"github.com/google/uuid"
)

type DeviceResponse struct {
	ID                   uuid.UUID    `json:"id"`
	MeterID              string       `json:"meter_id"`
	Status               DeviceStatus `json:"status"`
	CurrentVolume        float64      `json:"current_volume"`
	InitializationVolume float64      `json:"initialization_volume"`
	BatteryVoltage       string       `json:"battery_voltage"`
	NetworkStrength      string       `json:"network_strength"`
	ServerAddress        string       `json:"server_address"`
	FirmwareVersion      string       `json:"firmware_version"`
	Digits               int          `json:"digits"`
	OwnerID              *uuid.UUID   `json:"owner_id,omitempty"`
	LastSeenAt           *time.Time   `json:"last_seen_at,omitempty"`
	Online               bool         `json:"online"`
	Notes                string       `json:"notes,omitempty"`
	CreatedAt            time.Time    `json:"created_at"`
	UpdatedAt            time.Time    `json:"updated_at"`
}

func ToDeviceResponse(d *Device) *DeviceResponse {
	return &DeviceResponse{
		ID:                   d.ID,
		MeterID:              d.MeterID,
		Status:               d.Status,
		CurrentVolume:        d.CurrentVolume,
		InitializationVolume: d.InitializationVolume,
		BatteryVoltage:       d.BatteryVoltage,
		NetworkStrength:      d.NetworkStrength,
		ServerAddress:        d.ServerAddress,
		FirmwareVersion:      d.FirmwareVersion,
		Digits:               d.Digits,
		OwnerID:              d.OwnerID,
		LastSeenAt:           d.LastSeenAt,
		Online:               d.IsOnline(),
		Notes:                d.Notes,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

type DeviceListResponse struct {
	Devices  []DeviceResponse `json:"devices"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// DeviceStatistics summarizes the fleet for the admin dashboard.
type DeviceStatistics struct {
	Total         int64 `json:"total"`
	Uninitialized int64 `json:"uninitialized"`
	Pending       int64 `json:"pending_installation"`
	Active        int64 `json:"active"`
	Inactive      int64 `json:"inactive"`
	Maintenance   int64 `json:"maintenance"`
	Unassigned    int64 `json:"unassigned"`
	Stale         int64 `json:"stale"`
}
