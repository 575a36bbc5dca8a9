package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"water-meter-platform/internal/database"
	"water-meter-platform/internal/user/model"
	appErrors "water-meter-platform/pkg/errors"
)

type UserRepository struct {
	db *database.Database
}

func NewRepository(db *database.Database) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = uuid.New()
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	if err := r.db.DB.WithContext(ctx).Create(user).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key value") {
			return appErrors.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	var user model.User
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", userID).
		First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.DB.WithContext(ctx).
		Where("email = ?", email).
		First(&user).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) ListUsers(ctx context.Context, role *model.Role) ([]model.User, error) {
	var users []model.User
	db := r.db.DB.WithContext(ctx).Model(&model.User{})
	if role != nil {
		db = db.Where("role = ?", *role)
	}
	if err := db.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.DB.WithContext(ctx).
		Model(&model.User{}).
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	return ids, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now()
	result := r.db.DB.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"name":            user.Name,
			"email":           user.Email,
			"password_hashed": user.PasswordHashed,
			"role":            user.Role,
			"is_active":       user.IsActive,
			"updated_at":      user.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return appErrors.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	result := r.db.DB.WithContext(ctx).
		Where("id = ?", userID).
		Delete(&model.User{})

	if result.Error != nil {
		return fmt.Errorf("failed to delete user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return appErrors.ErrUserNotFound
	}
	return nil
}

// AddOwnedDevice inserts one membership row; inserting an existing pair is a
// no-op, which gives the owned set its idempotent add semantics.
func (r *UserRepository) AddOwnedDevice(ctx context.Context, userID, deviceID uuid.UUID) error {
	row := model.OwnedDevice{UserID: userID, DeviceID: deviceID, CreatedAt: time.Now()}
	err := r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to add owned device: %w", err)
	}
	return nil
}

// RemoveOwnedDevice deletes one membership row; removing an absent pair is a no-op.
func (r *UserRepository) RemoveOwnedDevice(ctx context.Context, userID, deviceID uuid.UUID) error {
	err := r.db.DB.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Delete(&model.OwnedDevice{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove owned device: %w", err)
	}
	return nil
}

func (r *UserRepository) OwnedDeviceIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.DB.WithContext(ctx).
		Model(&model.OwnedDevice{}).
		Where("user_id = ?", userID).
		Pluck("device_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load owned devices: %w", err)
	}
	return ids, nil
}

// ReplaceOwnedDevices rewrites a user's whole membership set in one
// transaction. Used by the reconciliation pass, which recomputes sets from
// device owner pointers.
func (r *UserRepository) ReplaceOwnedDevices(ctx context.Context, userID uuid.UUID, deviceIDs []uuid.UUID) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.OwnedDevice{}).Error; err != nil {
			return fmt.Errorf("failed to clear owned devices: %w", err)
		}
		if len(deviceIDs) == 0 {
			return nil
		}
		rows := make([]model.OwnedDevice, len(deviceIDs))
		now := time.Now()
		for i, id := range deviceIDs {
			rows[i] = model.OwnedDevice{UserID: userID, DeviceID: id, CreatedAt: now}
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to write owned devices: %w", err)
		}
		return nil
	})
}
