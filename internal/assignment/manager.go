package assignment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	usermodel "water-meter-platform/internal/user/model"
	appErrors "water-meter-platform/pkg/errors"
)

// Manager owns the device-owner edge: the devices.owner_id pointer and the
// user_owned_devices membership set. No other component writes either side.
//
// The two sides are persisted by separate non-transactional writes. The
// pointer is always written first, so after a crash between the two writes the
// pointer is authoritative and Reconcile can rebuild every membership set from
// it.
type Manager struct {
	devices DeviceStore
	users   UserStore
	log     *zap.Logger
}

func NewManager(devices DeviceStore, users UserStore) *Manager {
	return &Manager{
		devices: devices,
		users:   users,
		log:     zap.L().Named("assignment"),
	}
}

// Reassign points a device at a new owner (or no owner when newOwnerID is nil)
// and mirrors the change into the membership sets. Taking a device that is
// already assigned elsewhere silently detaches it from the previous owner: a
// device is only ever linked to one owner at a time.
func (m *Manager) Reassign(ctx context.Context, deviceID uuid.UUID, newOwnerID *uuid.UUID) error {
	device, err := m.devices.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return err
	}

	oldOwnerID := device.OwnerID
	if sameOwner(oldOwnerID, newOwnerID) {
		return nil
	}

	// Validate the target before any write so a bad assignee aborts cleanly.
	if newOwnerID != nil {
		target, err := m.users.GetUserByID(ctx, *newOwnerID)
		if err != nil {
			if errors.Is(err, appErrors.ErrUserNotFound) {
				return appErrors.NewAppError(appErrors.CodeInvalidAssignee,
					"Target user does not exist", appErrors.ErrInvalidAssignee)
			}
			return err
		}
		if target.Role != usermodel.RoleCustomer {
			return appErrors.NewAppError(appErrors.CodeInvalidAssignee,
				fmt.Sprintf("Target user has role %q, only customers may own devices", target.Role),
				appErrors.ErrInvalidAssignee)
		}
	}

	// Pointer first: it is the single point of truth.
	if err := m.retryOnce(ctx, "set owner pointer", func() error {
		return m.devices.SetOwner(ctx, deviceID, newOwnerID)
	}); err != nil {
		return err
	}

	if oldOwnerID != nil {
		if err := m.retryOnce(ctx, "remove old membership", func() error {
			return m.users.RemoveOwnedDevice(ctx, *oldOwnerID, deviceID)
		}); err != nil {
			return err
		}
	}

	if newOwnerID != nil {
		if err := m.retryOnce(ctx, "add new membership", func() error {
			return m.users.AddOwnedDevice(ctx, *newOwnerID, deviceID)
		}); err != nil {
			return err
		}
	}

	m.log.Info("device reassigned",
		zap.String("device_id", deviceID.String()),
		zap.Any("old_owner", ownerField(oldOwnerID)),
		zap.Any("new_owner", ownerField(newOwnerID)),
	)
	return nil
}

// SetOwnedDevices replaces a user's owned-device set wholesale, the bulk form
// used when editing a user. Each device's change is a self-contained
// idempotent reassign, so ordering does not matter and no global lock is held.
func (m *Manager) SetOwnedDevices(ctx context.Context, userID uuid.UUID, deviceIDs []uuid.UUID) error {
	user, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role != usermodel.RoleCustomer && len(deviceIDs) > 0 {
		return appErrors.NewAppError(appErrors.CodeInvalidAssignee,
			fmt.Sprintf("User has role %q, only customers may own devices", user.Role),
			appErrors.ErrInvalidAssignee)
	}

	oldIDs, err := m.users.OwnedDeviceIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load current owned set: %w", err)
	}

	newSet := make(map[uuid.UUID]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		newSet[id] = true
	}
	oldSet := make(map[uuid.UUID]bool, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = true
	}

	for _, id := range oldIDs {
		if !newSet[id] {
			if err := m.unassignFromUser(ctx, id, userID); err != nil {
				return err
			}
		}
	}

	for _, id := range deviceIDs {
		if !oldSet[id] {
			owner := userID
			if err := m.Reassign(ctx, id, &owner); err != nil {
				return err
			}
		}
	}

	return nil
}

// HandleRoleChange empties a user's owned set when the role moves away from
// customer. Must run before the role change itself commits.
func (m *Manager) HandleRoleChange(ctx context.Context, userID uuid.UUID, newRole usermodel.Role) error {
	if newRole == usermodel.RoleCustomer {
		return nil
	}
	return m.UnassignAll(ctx, userID)
}

// UnassignAll detaches every device in the user's owned set, used before a
// user is deleted or loses the customer role.
func (m *Manager) UnassignAll(ctx context.Context, userID uuid.UUID) error {
	ids, err := m.users.OwnedDeviceIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load owned set: %w", err)
	}

	for _, id := range ids {
		if err := m.unassignFromUser(ctx, id, userID); err != nil {
			return err
		}
	}
	return nil
}

// unassignFromUser removes a device from one user without touching another
// owner's state. When the pointer disagrees with the membership row the row is
// stale and only the row is dropped; the pointer stays authoritative.
func (m *Manager) unassignFromUser(ctx context.Context, deviceID, userID uuid.UUID) error {
	device, err := m.devices.GetDeviceByID(ctx, deviceID)
	if err != nil {
		if appErrors.CodeOf(err) == appErrors.CodeUnknownDevice {
			// Membership row refers to a deleted device. Drop the row.
			return m.retryOnce(ctx, "drop stale membership", func() error {
				return m.users.RemoveOwnedDevice(ctx, userID, deviceID)
			})
		}
		return err
	}

	if device.OwnerID != nil && *device.OwnerID == userID {
		return m.Reassign(ctx, deviceID, nil)
	}

	m.log.Warn("owned set diverged from owner pointer",
		zap.String("device_id", deviceID.String()),
		zap.String("user_id", userID.String()),
		zap.String("code", appErrors.CodeRepairNeeded),
	)
	return m.retryOnce(ctx, "drop stale membership", func() error {
		return m.users.RemoveOwnedDevice(ctx, userID, deviceID)
	})
}

// retryOnce retries a failed store write a single time. A second failure is
// surfaced as a persistence failure and the operation counts as not applied.
func (m *Manager) retryOnce(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if code := appErrors.CodeOf(err); code == appErrors.CodeUnknownDevice || code == appErrors.CodeInvalidAssignee {
		return err
	}

	m.log.Warn("store write failed, retrying",
		zap.String("op", op),
		zap.Error(err),
	)
	if err := fn(); err != nil {
		return appErrors.NewAppError(appErrors.CodePersistenceFailure,
			fmt.Sprintf("store write failed after retry: %s", op), err)
	}
	return nil
}

func sameOwner(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func ownerField(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}
