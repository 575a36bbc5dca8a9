package assignment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "water-meter-platform/pkg/errors"
)

// ReconcileReport summarizes one repair pass.
type ReconcileReport struct {
	UsersChecked    int `json:"users_checked"`
	SetsRepaired    int `json:"sets_repaired"`
	PointersCleared int `json:"pointers_cleared"`
}

// Reconcile recomputes every user's owned-device set from the device owner
// pointers, the documented recovery for the crash window between the pointer
// write and the membership write. Owner pointers referencing users that no
// longer exist are cleared first.
//
// The pass must not run concurrently with an in-flight Reassign for the same
// device; it is meant for maintenance windows.
func (m *Manager) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}

	assigned, err := m.devices.ListAssignedDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned devices: %w", err)
	}

	userIDs, err := m.users.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	known := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		known[id] = true
	}

	// Derived truth: owner pointer -> owned set.
	want := make(map[uuid.UUID][]uuid.UUID)
	for _, device := range assigned {
		ownerID := *device.OwnerID
		if !known[ownerID] {
			// Dangling pointer left behind by an interrupted user deletion.
			if err := m.retryOnce(ctx, "clear dangling owner pointer", func() error {
				return m.devices.SetOwner(ctx, device.ID, nil)
			}); err != nil {
				return report, err
			}
			report.PointersCleared++
			m.log.Warn("cleared owner pointer to missing user",
				zap.String("device_id", device.ID.String()),
				zap.String("owner_id", ownerID.String()),
				zap.String("code", appErrors.CodeRepairNeeded),
			)
			continue
		}
		want[ownerID] = append(want[ownerID], device.ID)
	}

	for _, userID := range userIDs {
		report.UsersChecked++

		have, err := m.users.OwnedDeviceIDs(ctx, userID)
		if err != nil {
			return report, fmt.Errorf("failed to load owned set: %w", err)
		}

		if sameIDSet(have, want[userID]) {
			continue
		}

		if err := m.retryOnce(ctx, "replace owned set", func() error {
			return m.users.ReplaceOwnedDevices(ctx, userID, want[userID])
		}); err != nil {
			return report, err
		}
		report.SetsRepaired++
		m.log.Warn("repaired diverged owned set",
			zap.String("user_id", userID.String()),
			zap.Int("set_size", len(want[userID])),
			zap.String("code", appErrors.CodeRepairNeeded),
		)
	}

	m.log.Info("reconciliation pass finished",
		zap.Int("users_checked", report.UsersChecked),
		zap.Int("sets_repaired", report.SetsRepaired),
		zap.Int("pointers_cleared", report.PointersCleared),
	)
	return report, nil
}

func sameIDSet(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[uuid.UUID]bool, len(a))
	for _, id := range a {
		set[id] = true
	}
	for _, id := range b {
		if !set[id] {
			return false
		}
	}
	return true
}
