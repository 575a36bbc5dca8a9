package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"water-meter-platform/internal/commandlog/model"
	"water-meter-platform/internal/database"
)

type CommandLogRepository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *CommandLogRepository {
	return &CommandLogRepository{db: db}
}

// Append writes one audit row. The table is append-only; nothing in the
// codebase updates or deletes command logs.
func (r *CommandLogRepository) Append(ctx context.Context, entry *model.CommandLog) error {
	entry.ID = uuid.New()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if err := r.db.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append command log: %w", err)
	}
	return nil
}

func (r *CommandLogRepository) ListRecent(ctx context.Context, limit int) ([]model.CommandLog, error) {
	if limit <= 0 {
		limit = 100
	}

	var logs []model.CommandLog
	err := r.db.DB.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list command logs: %w", err)
	}
	return logs, nil
}

func (r *CommandLogRepository) ListByMeterID(ctx context.Context, meterID string, limit int) ([]model.CommandLog, error) {
	if limit <= 0 {
		limit = 100
	}

	var logs []model.CommandLog
	err := r.db.DB.WithContext(ctx).
		Where("meter_id = ?", meterID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list command logs for meter %s: %w", meterID, err)
	}
	return logs, nil
}
