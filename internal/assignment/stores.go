package assignment

import (
	"context"

	"github.com/google/uuid"

	devicemodel "water-meter-platform/internal/device/model"
	usermodel "water-meter-platform/internal/user/model"
)

// DeviceStore is the slice of the device repository the assignment manager
// needs. The owner pointer it writes through SetOwner is the authoritative
// side of the assignment relation.
type DeviceStore interface {
	GetDeviceByID(ctx context.Context, deviceID uuid.UUID) (*devicemodel.Device, error)
	SetOwner(ctx context.Context, deviceID uuid.UUID, ownerID *uuid.UUID) error
	ListAssignedDevices(ctx context.Context) ([]devicemodel.Device, error)
}

// UserStore is the slice of the user repository the assignment manager needs.
// Owned-device membership writes must be idempotent: adding an existing pair
// and removing an absent pair are both no-ops.
type UserStore interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*usermodel.User, error)
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	AddOwnedDevice(ctx context.Context, userID, deviceID uuid.UUID) error
	RemoveOwnedDevice(ctx context.Context, userID, deviceID uuid.UUID) error
	OwnedDeviceIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ReplaceOwnedDevices(ctx context.Context, userID uuid.UUID, deviceIDs []uuid.UUID) error
}
