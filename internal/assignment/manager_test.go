package assignment

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	devicemodel "water-meter-platform/internal/device/model"
	usermodel "water-meter-platform/internal/user/model"
	appErrors "water-meter-platform/pkg/errors"
)

type fakeDeviceStore struct {
	devices map[uuid.UUID]*devicemodel.Device

	setOwnerFailures int
	setOwnerCalls    int
}

func (s *fakeDeviceStore) GetDeviceByID(_ context.Context, deviceID uuid.UUID) (*devicemodel.Device, error) {
	device, ok := s.devices[deviceID]
	if !ok {
		return nil, appErrors.NewAppError(appErrors.CodeUnknownDevice, "device not found", appErrors.ErrDeviceNotFound)
	}
	copied := *device
	return &copied, nil
}

func (s *fakeDeviceStore) SetOwner(_ context.Context, deviceID uuid.UUID, ownerID *uuid.UUID) error {
	s.setOwnerCalls++
	if s.setOwnerFailures > 0 {
		s.setOwnerFailures--
		return errors.New("connection reset")
	}

	device, ok := s.devices[deviceID]
	if !ok {
		return appErrors.NewAppError(appErrors.CodeUnknownDevice, "device not found", appErrors.ErrDeviceNotFound)
	}
	device.OwnerID = ownerID
	return nil
}

func (s *fakeDeviceStore) ListAssignedDevices(_ context.Context) ([]devicemodel.Device, error) {
	var assigned []devicemodel.Device
	for _, device := range s.devices {
		if device.OwnerID != nil {
			assigned = append(assigned, *device)
		}
	}
	return assigned, nil
}

type fakeUserStore struct {
	users map[uuid.UUID]*usermodel.User
	owned map[uuid.UUID]map[uuid.UUID]bool

	removeFailures int
}

func newFakeUserStore(users ...*usermodel.User) *fakeUserStore {
	store := &fakeUserStore{
		users: make(map[uuid.UUID]*usermodel.User),
		owned: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
	for _, user := range users {
		store.users[user.ID] = user
	}
	return store
}

func (s *fakeUserStore) GetUserByID(_ context.Context, userID uuid.UUID) (*usermodel.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return nil, appErrors.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeUserStore) ListUserIDs(_ context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeUserStore) AddOwnedDevice(_ context.Context, userID, deviceID uuid.UUID) error {
	if s.owned[userID] == nil {
		s.owned[userID] = make(map[uuid.UUID]bool)
	}
	s.owned[userID][deviceID] = true
	return nil
}

func (s *fakeUserStore) RemoveOwnedDevice(_ context.Context, userID, deviceID uuid.UUID) error {
	if s.removeFailures > 0 {
		s.removeFailures--
		return errors.New("connection reset")
	}
	delete(s.owned[userID], deviceID)
	return nil
}

func (s *fakeUserStore) OwnedDeviceIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range s.owned[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeUserStore) ReplaceOwnedDevices(_ context.Context, userID uuid.UUID, deviceIDs []uuid.UUID) error {
	set := make(map[uuid.UUID]bool, len(deviceIDs))
	for _, id := range deviceIDs {
		set[id] = true
	}
	s.owned[userID] = set
	return nil
}

func customer() *usermodel.User {
	return &usermodel.User{ID: uuid.New(), Role: usermodel.RoleCustomer}
}

func device() *devicemodel.Device {
	return &devicemodel.Device{ID: uuid.New(), MeterID: uuid.NewString()[:8]}
}

// checkConsistent verifies the bidirectional invariant: every owner pointer
// has a matching membership row and every membership row a matching pointer.
func checkConsistent(t *testing.T, devices *fakeDeviceStore, users *fakeUserStore) {
	t.Helper()

	for id, d := range devices.devices {
		if d.OwnerID == nil {
			for userID, set := range users.owned {
				if set[id] {
					t.Errorf("device %s unowned but present in set of user %s", id, userID)
				}
			}
			continue
		}
		if !users.owned[*d.OwnerID][id] {
			t.Errorf("device %s points at user %s but is missing from their set", id, *d.OwnerID)
		}
	}

	for userID, set := range users.owned {
		for deviceID := range set {
			d, ok := devices.devices[deviceID]
			if !ok || d.OwnerID == nil || *d.OwnerID != userID {
				t.Errorf("user %s set contains device %s without a matching pointer", userID, deviceID)
			}
		}
	}
}

func TestReassignLinksBothSides(t *testing.T) {
	d := device()
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	if err := manager.Reassign(context.Background(), d.ID, &u.ID); err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}

	if d.OwnerID == nil || *d.OwnerID != u.ID {
		t.Errorf("owner pointer = %v, want %s", d.OwnerID, u.ID)
	}
	if !users.owned[u.ID][d.ID] {
		t.Error("device missing from owner's set")
	}
	checkConsistent(t, devices, users)
}

func TestReassignStealsFromPreviousOwner(t *testing.T) {
	d := device()
	alice, bob := customer(), customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore(alice, bob)
	manager := NewManager(devices, users)

	if err := manager.Reassign(context.Background(), d.ID, &alice.ID); err != nil {
		t.Fatalf("first Reassign() error = %v", err)
	}
	if err := manager.Reassign(context.Background(), d.ID, &bob.ID); err != nil {
		t.Fatalf("second Reassign() error = %v", err)
	}

	if *d.OwnerID != bob.ID {
		t.Errorf("owner pointer = %s, want %s", *d.OwnerID, bob.ID)
	}
	if users.owned[alice.ID][d.ID] {
		t.Error("device still in previous owner's set")
	}
	if !users.owned[bob.ID][d.ID] {
		t.Error("device missing from new owner's set")
	}
	checkConsistent(t, devices, users)
}

func TestReassignToUnassignedClearsBothSides(t *testing.T) {
	d := device()
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	if err := manager.Reassign(context.Background(), d.ID, &u.ID); err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}
	if err := manager.Reassign(context.Background(), d.ID, nil); err != nil {
		t.Fatalf("unassign error = %v", err)
	}

	if d.OwnerID != nil {
		t.Errorf("owner pointer = %v, want nil", d.OwnerID)
	}
	if users.owned[u.ID][d.ID] {
		t.Error("device still in previous owner's set")
	}
	checkConsistent(t, devices, users)
}

func TestReassignRejectsNonCustomer(t *testing.T) {
	d := device()
	tech := &usermodel.User{ID: uuid.New(), Role: usermodel.RoleTechnician}
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore(tech)
	manager := NewManager(devices, users)

	err := manager.Reassign(context.Background(), d.ID, &tech.ID)
	if appErrors.CodeOf(err) != appErrors.CodeInvalidAssignee {
		t.Fatalf("error code = %q, want %q", appErrors.CodeOf(err), appErrors.CodeInvalidAssignee)
	}

	if d.OwnerID != nil {
		t.Error("owner pointer written despite invalid assignee")
	}
	if devices.setOwnerCalls != 0 {
		t.Errorf("SetOwner calls = %d, want 0", devices.setOwnerCalls)
	}
}

func TestReassignRejectsMissingUser(t *testing.T) {
	d := device()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore()
	manager := NewManager(devices, users)

	ghost := uuid.New()
	err := manager.Reassign(context.Background(), d.ID, &ghost)
	if appErrors.CodeOf(err) != appErrors.CodeInvalidAssignee {
		t.Fatalf("error code = %q, want %q", appErrors.CodeOf(err), appErrors.CodeInvalidAssignee)
	}
	if devices.setOwnerCalls != 0 {
		t.Errorf("SetOwner calls = %d, want 0", devices.setOwnerCalls)
	}
}

func TestReassignUnknownDevice(t *testing.T) {
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	err := manager.Reassign(context.Background(), uuid.New(), &u.ID)
	if appErrors.CodeOf(err) != appErrors.CodeUnknownDevice {
		t.Fatalf("error code = %q, want %q", appErrors.CodeOf(err), appErrors.CodeUnknownDevice)
	}
}

func TestReassignSameOwnerIsNoOp(t *testing.T) {
	d := device()
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	if err := manager.Reassign(context.Background(), d.ID, &u.ID); err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}
	calls := devices.setOwnerCalls

	if err := manager.Reassign(context.Background(), d.ID, &u.ID); err != nil {
		t.Fatalf("repeat Reassign() error = %v", err)
	}
	if devices.setOwnerCalls != calls {
		t.Errorf("SetOwner called again for an identical assignment")
	}
}

func TestReassignRetriesTransientFailure(t *testing.T) {
	d := device()
	u := customer()
	devices := &fakeDeviceStore{
		devices:          map[uuid.UUID]*devicemodel.Device{d.ID: d},
		setOwnerFailures: 1,
	}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	if err := manager.Reassign(context.Background(), d.ID, &u.ID); err != nil {
		t.Fatalf("Reassign() error = %v, want retried success", err)
	}
	checkConsistent(t, devices, users)
}

func TestReassignPersistenceFailureAfterRetry(t *testing.T) {
	d := device()
	u := customer()
	devices := &fakeDeviceStore{
		devices:          map[uuid.UUID]*devicemodel.Device{d.ID: d},
		setOwnerFailures: 2,
	}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	err := manager.Reassign(context.Background(), d.ID, &u.ID)
	if appErrors.CodeOf(err) != appErrors.CodePersistenceFailure {
		t.Fatalf("error code = %q, want %q", appErrors.CodeOf(err), appErrors.CodePersistenceFailure)
	}
	if d.OwnerID != nil {
		t.Error("owner pointer set despite persistence failure")
	}
	if users.owned[u.ID][d.ID] {
		t.Error("membership written despite persistence failure")
	}
}

func TestSetOwnedDevicesDiffsSets(t *testing.T) {
	keep, drop, add := device(), device(), device()
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{
		keep.ID: keep, drop.ID: drop, add.ID: add,
	}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	if err := manager.SetOwnedDevices(context.Background(), u.ID, []uuid.UUID{keep.ID, drop.ID}); err != nil {
		t.Fatalf("SetOwnedDevices() error = %v", err)
	}
	if err := manager.SetOwnedDevices(context.Background(), u.ID, []uuid.UUID{keep.ID, add.ID}); err != nil {
		t.Fatalf("second SetOwnedDevices() error = %v", err)
	}

	if !users.owned[u.ID][keep.ID] || !users.owned[u.ID][add.ID] {
		t.Errorf("owned set = %v, want keep and add", users.owned[u.ID])
	}
	if users.owned[u.ID][drop.ID] {
		t.Error("dropped device still owned")
	}
	if drop.OwnerID != nil {
		t.Error("dropped device still points at the user")
	}
	checkConsistent(t, devices, users)
}

func TestSetOwnedDevicesRejectsNonCustomer(t *testing.T) {
	d := device()
	admin := &usermodel.User{ID: uuid.New(), Role: usermodel.RoleAdmin}
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore(admin)
	manager := NewManager(devices, users)

	err := manager.SetOwnedDevices(context.Background(), admin.ID, []uuid.UUID{d.ID})
	if appErrors.CodeOf(err) != appErrors.CodeInvalidAssignee {
		t.Fatalf("error code = %q, want %q", appErrors.CodeOf(err), appErrors.CodeInvalidAssignee)
	}
}

func TestHandleRoleChangeAwayFromCustomerEmptiesSet(t *testing.T) {
	d1, d2 := device(), device()
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d1.ID: d1, d2.ID: d2}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	for _, d := range []*devicemodel.Device{d1, d2} {
		if err := manager.Reassign(context.Background(), d.ID, &u.ID); err != nil {
			t.Fatalf("Reassign() error = %v", err)
		}
	}

	if err := manager.HandleRoleChange(context.Background(), u.ID, usermodel.RoleTechnician); err != nil {
		t.Fatalf("HandleRoleChange() error = %v", err)
	}

	if len(users.owned[u.ID]) != 0 {
		t.Errorf("owned set = %v, want empty", users.owned[u.ID])
	}
	if d1.OwnerID != nil || d2.OwnerID != nil {
		t.Error("owner pointers not cleared on role change")
	}
	checkConsistent(t, devices, users)
}

func TestHandleRoleChangeToCustomerKeepsSet(t *testing.T) {
	d := device()
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	if err := manager.Reassign(context.Background(), d.ID, &u.ID); err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}
	if err := manager.HandleRoleChange(context.Background(), u.ID, usermodel.RoleCustomer); err != nil {
		t.Fatalf("HandleRoleChange() error = %v", err)
	}

	if !users.owned[u.ID][d.ID] {
		t.Error("owned set emptied although role stayed customer")
	}
}

func TestUnassignAllDropsStaleMembership(t *testing.T) {
	d := device()
	alice, bob := customer(), customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore(alice, bob)
	manager := NewManager(devices, users)

	// Divergence: the pointer says bob, but a stale row still links alice.
	d.OwnerID = &bob.ID
	users.owned[bob.ID] = map[uuid.UUID]bool{d.ID: true}
	users.owned[alice.ID] = map[uuid.UUID]bool{d.ID: true}

	if err := manager.UnassignAll(context.Background(), alice.ID); err != nil {
		t.Fatalf("UnassignAll() error = %v", err)
	}

	// Only the stale row goes; bob's ownership is untouched.
	if users.owned[alice.ID][d.ID] {
		t.Error("stale membership row survived")
	}
	if d.OwnerID == nil || *d.OwnerID != bob.ID {
		t.Errorf("owner pointer = %v, want %s", d.OwnerID, bob.ID)
	}
	if !users.owned[bob.ID][d.ID] {
		t.Error("legitimate owner's set was touched")
	}
}

func TestUnassignAllDropsRowForDeletedDevice(t *testing.T) {
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	ghost := uuid.New()
	users.owned[u.ID] = map[uuid.UUID]bool{ghost: true}

	if err := manager.UnassignAll(context.Background(), u.ID); err != nil {
		t.Fatalf("UnassignAll() error = %v", err)
	}
	if users.owned[u.ID][ghost] {
		t.Error("membership row for deleted device survived")
	}
}

func TestReconcileRebuildsSetsFromPointers(t *testing.T) {
	d1, d2 := device(), device()
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d1.ID: d1, d2.ID: d2}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	// Crash window: both pointers written, only one membership row landed.
	d1.OwnerID = &u.ID
	d2.OwnerID = &u.ID
	users.owned[u.ID] = map[uuid.UUID]bool{d1.ID: true}

	report, err := manager.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if report.SetsRepaired != 1 {
		t.Errorf("SetsRepaired = %d, want 1", report.SetsRepaired)
	}
	if !users.owned[u.ID][d1.ID] || !users.owned[u.ID][d2.ID] {
		t.Errorf("owned set = %v, want both devices", users.owned[u.ID])
	}
	checkConsistent(t, devices, users)
}

func TestReconcileClearsDanglingPointer(t *testing.T) {
	d := device()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore()
	manager := NewManager(devices, users)

	ghost := uuid.New()
	d.OwnerID = &ghost

	report, err := manager.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if report.PointersCleared != 1 {
		t.Errorf("PointersCleared = %d, want 1", report.PointersCleared)
	}
	if d.OwnerID != nil {
		t.Errorf("owner pointer = %v, want nil", d.OwnerID)
	}
}

func TestReconcileRemovesExtraMembership(t *testing.T) {
	d := device()
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	// Membership row with no matching pointer.
	users.owned[u.ID] = map[uuid.UUID]bool{d.ID: true}

	report, err := manager.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if report.SetsRepaired != 1 {
		t.Errorf("SetsRepaired = %d, want 1", report.SetsRepaired)
	}
	if users.owned[u.ID][d.ID] {
		t.Error("membership row without a pointer survived reconciliation")
	}
	checkConsistent(t, devices, users)
}

func TestReconcileConsistentStateIsIdempotent(t *testing.T) {
	d := device()
	u := customer()
	devices := &fakeDeviceStore{devices: map[uuid.UUID]*devicemodel.Device{d.ID: d}}
	users := newFakeUserStore(u)
	manager := NewManager(devices, users)

	if err := manager.Reassign(context.Background(), d.ID, &u.ID); err != nil {
		t.Fatalf("Reassign() error = %v", err)
	}

	report, err := manager.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.SetsRepaired != 0 || report.PointersCleared != 0 {
		t.Errorf("repairs on a consistent store: %+v", report)
	}
}
