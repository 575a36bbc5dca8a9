package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name           string    `json:"name" gorm:"not null"`
	Email          string    `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHashed string    `json:"-" gorm:"not null"`
	Role           Role      `json:"role" gorm:"not null"`
	IsActive       bool      `json:"is_active" gorm:"not null;default:true"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

// OwnedDevice is one membership row of a customer's owned-device set. The set
// is stored independently of devices.owner_id and mirrors it; the assignment
// manager is the only writer of either side.
type OwnedDevice struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeviceID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
}

func (OwnedDevice) TableName() string {
	return "user_owned_devices"
}
