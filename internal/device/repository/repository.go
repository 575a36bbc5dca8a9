package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"water-meter-platform/internal/database"
	"water-meter-platform/internal/device/model"
	appErrors "water-meter-platform/pkg/errors"
)

type DeviceRepository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func (r *DeviceRepository) CreateDevice(ctx context.Context, device *model.Device) error {
	device.ID = uuid.New()
	device.CreatedAt = time.Now()
	device.UpdatedAt = time.Now()
	device.Version = 0

	if err := r.db.DB.WithContext(ctx).Create(device).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key value") {
			return appErrors.NewAppError("DEVICE_ALREADY_EXISTS", "Device with this meter ID already exists", err)
		}
		return fmt.Errorf("failed to create device: %w", err)
	}

	return nil
}

func (r *DeviceRepository) GetDeviceByID(ctx context.Context, deviceID uuid.UUID) (*model.Device, error) {
	var device model.Device
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", deviceID).
		First(&device).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.NewAppError(appErrors.CodeUnknownDevice, "Device not found", appErrors.ErrDeviceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return &device, nil
}

func (r *DeviceRepository) GetDeviceByMeterID(ctx context.Context, meterID string) (*model.Device, error) {
	var device model.Device
	err := r.db.DB.WithContext(ctx).
		Where("meter_id = ?", meterID).
		First(&device).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.NewAppError(appErrors.CodeUnknownDevice, "Device not found", appErrors.ErrDeviceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	return &device, nil
}

// UpdateFields applies an administrative partial update and bumps the record
// version so an in-flight telemetry write against the old version loses.
func (r *DeviceRepository) UpdateFields(ctx context.Context, deviceID uuid.UUID, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	fields["version"] = gorm.Expr("version + 1")

	result := r.db.DB.WithContext(ctx).
		Model(&model.Device{}).
		Where("id = ?", deviceID).
		Updates(fields)

	if result.Error != nil {
		return fmt.Errorf("failed to update device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return appErrors.NewAppError(appErrors.CodeUnknownDevice, "Device not found", appErrors.ErrDeviceNotFound)
	}
	return nil
}

// SetOwner writes the device's owner pointer. The pointer is the authoritative
// side of the assignment relation; only the assignment manager calls this.
func (r *DeviceRepository) SetOwner(ctx context.Context, deviceID uuid.UUID, ownerID *uuid.UUID) error {
	result := r.db.DB.WithContext(ctx).
		Model(&model.Device{}).
		Where("id = ?", deviceID).
		Updates(map[string]interface{}{
			"owner_id":   ownerID,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to set owner: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return appErrors.NewAppError(appErrors.CodeUnknownDevice, "Device not found", appErrors.ErrDeviceNotFound)
	}

	return nil
}

// ApplyTelemetry writes the recognized field updates of one report, guarded by
// the version the device was read at. Zero rows affected means another writer
// got there first and the caller must re-read and decide.
func (r *DeviceRepository) ApplyTelemetry(ctx context.Context, update *model.TelemetryUpdate) error {
	fields := map[string]interface{}{
		"last_seen_at": update.SeenAt,
		"updated_at":   update.SeenAt,
		"version":      gorm.Expr("version + 1"),
	}
	if update.Volume != nil {
		fields["current_volume"] = *update.Volume
	}
	if update.BatteryVoltage != nil {
		fields["battery_voltage"] = *update.BatteryVoltage
	}
	if update.NetworkStrength != nil {
		fields["network_strength"] = *update.NetworkStrength
	}

	result := r.db.DB.WithContext(ctx).
		Model(&model.Device{}).
		Where("id = ? AND version = ?", update.DeviceID, update.Version).
		Updates(fields)

	if result.Error != nil {
		return fmt.Errorf("failed to apply telemetry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return appErrors.ErrVersionConflict
	}

	return nil
}

// TouchLastSeen refreshes the last-seen timestamp without touching the version
// stamp; a ping carries no field data to lose.
func (r *DeviceRepository) TouchLastSeen(ctx context.Context, deviceID uuid.UUID, at time.Time) error {
	return r.db.DB.WithContext(ctx).
		Model(&model.Device{}).
		Where("id = ?", deviceID).
		Updates(map[string]interface{}{
			"last_seen_at": at,
			"updated_at":   at,
		}).Error
}

func (r *DeviceRepository) DeleteDevice(ctx context.Context, deviceID uuid.UUID) error {
	result := r.db.DB.WithContext(ctx).
		Where("id = ?", deviceID).
		Delete(&model.Device{})

	if result.Error != nil {
		return fmt.Errorf("failed to delete device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return appErrors.NewAppError(appErrors.CodeUnknownDevice, "Device not found", appErrors.ErrDeviceNotFound)
	}

	return nil
}

// ListAssignedDevices returns every device with a non-null owner pointer.
// The reconciliation pass derives all owned-device sets from it.
func (r *DeviceRepository) ListAssignedDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.DB.WithContext(ctx).
		Where("owner_id IS NOT NULL").
		Find(&devices).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned devices: %w", err)
	}
	return devices, nil
}

func (r *DeviceRepository) ListDevices(ctx context.Context, filter *model.DeviceFilterRequest) ([]model.Device, int64, error) {
	var devices []model.Device
	var total int64

	db := r.db.DB.WithContext(ctx).Model(&model.Device{})

	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.OwnerID != nil {
		db = db.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Search != "" {
		search := "%" + filter.Search + "%"
		db = db.Where("meter_id ILIKE ? OR notes ILIKE ?", search, search)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count devices: %w", err)
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	err := db.Order("last_seen_at DESC NULLS LAST, created_at DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&devices).Error

	if err != nil {
		return nil, 0, fmt.Errorf("failed to list devices: %w", err)
	}

	return devices, total, nil
}

func (r *DeviceRepository) GetStatistics(ctx context.Context) (*model.DeviceStatistics, error) {
	stats := &model.DeviceStatistics{}
	err := r.db.DB.WithContext(ctx).Raw(`
        SELECT
            COUNT(*) as total,
            COUNT(*) FILTER (WHERE status = 'uninitialized') as uninitialized,
            COUNT(*) FILTER (WHERE status = 'pending_installation') as pending,
            COUNT(*) FILTER (WHERE status = 'active') as active,
            COUNT(*) FILTER (WHERE status = 'inactive') as inactive,
            COUNT(*) FILTER (WHERE status = 'maintenance') as maintenance,
            COUNT(*) FILTER (WHERE owner_id IS NULL) as unassigned,
            COUNT(*) FILTER (WHERE last_seen_at IS NULL OR last_seen_at < NOW() - INTERVAL '24 hours') as stale
        FROM devices
    `).Scan(stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	return stats, nil
}
