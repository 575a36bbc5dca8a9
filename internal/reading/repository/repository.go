package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"water-meter-platform/internal/database"
	"water-meter-platform/internal/reading/model"
)

type ReadingRepository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Append stores one immutable reading. There is deliberately no update or
// delete counterpart.
func (r *ReadingRepository) Append(ctx context.Context, reading *model.UsageReading) error {
	reading.ID = uuid.New()
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now()
	}

	if err := r.db.DB.WithContext(ctx).Create(reading).Error; err != nil {
		return fmt.Errorf("failed to append usage reading: %w", err)
	}
	return nil
}

func (r *ReadingRepository) ListByDevice(ctx context.Context, deviceID uuid.UUID, limit int) ([]model.UsageReading, error) {
	if limit <= 0 {
		limit = 100
	}

	var readings []model.UsageReading
	err := r.db.DB.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	return readings, nil
}

func (r *ReadingRepository) ListByMeterID(ctx context.Context, meterID string, limit int) ([]model.UsageReading, error) {
	if limit <= 0 {
		limit = 100
	}

	var readings []model.UsageReading
	err := r.db.DB.WithContext(ctx).
		Where("meter_id = ?", meterID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&readings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	return readings, nil
}

// LatestForDevice returns the most recent reading, or nil when the device has
// no history yet.
func (r *ReadingRepository) LatestForDevice(ctx context.Context, deviceID uuid.UUID) (*model.UsageReading, error) {
	var reading model.UsageReading
	err := r.db.DB.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp DESC").
		First(&reading).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest reading: %w", err)
	}
	return &reading, nil
}
