package command

import (
	"context"
	"testing"

	"github.com/google/uuid"

	clmodel "water-meter-platform/internal/commandlog/model"
	devicemodel "water-meter-platform/internal/device/model"
	readingmodel "water-meter-platform/internal/reading/model"
	appErrors "water-meter-platform/pkg/errors"
)

type fakeDeviceStore struct {
	devices map[string]*devicemodel.Device
	updates []map[string]interface{}
}

func (s *fakeDeviceStore) GetDeviceByMeterID(_ context.Context, meterID string) (*devicemodel.Device, error) {
	device, ok := s.devices[meterID]
	if !ok {
		return nil, appErrors.NewAppError(appErrors.CodeUnknownDevice, "device not found", appErrors.ErrDeviceNotFound)
	}
	copied := *device
	return &copied, nil
}

func (s *fakeDeviceStore) UpdateFields(_ context.Context, deviceID uuid.UUID, fields map[string]interface{}) error {
	s.updates = append(s.updates, fields)
	return nil
}

type fakeReadingStore struct {
	readings []*readingmodel.UsageReading
}

func (s *fakeReadingStore) Append(_ context.Context, reading *readingmodel.UsageReading) error {
	s.readings = append(s.readings, reading)
	return nil
}

type fakeCommandLogStore struct {
	entries []*clmodel.CommandLog
}

func (s *fakeCommandLogStore) Append(_ context.Context, entry *clmodel.CommandLog) error {
	s.entries = append(s.entries, entry)
	return nil
}

func newTestService(devices ...*devicemodel.Device) (*Service, *fakeDeviceStore, *fakeReadingStore, *fakeCommandLogStore) {
	deviceStore := &fakeDeviceStore{devices: make(map[string]*devicemodel.Device)}
	for _, device := range devices {
		deviceStore.devices[device.MeterID] = device
	}
	readingStore := &fakeReadingStore{}
	logStore := &fakeCommandLogStore{}
	return NewService(deviceStore, readingStore, logStore), deviceStore, readingStore, logStore
}

func pendingDevice(meterID string) *devicemodel.Device {
	return &devicemodel.Device{
		ID:             uuid.New(),
		MeterID:        meterID,
		DevicePassword: "123456",
		Status:         devicemodel.StatusPendingInstallation,
	}
}

func TestProcessInit(t *testing.T) {
	device := pendingDevice("M1")
	service, deviceStore, readingStore, logStore := newTestService(device)

	technicianID := uuid.New()
	result, err := service.Process(context.Background(), "INIT:123456,M1,sms.example.com,350.5,6", &technicianID)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	if len(readingStore.readings) != 1 {
		t.Fatalf("readings appended = %d, want 1", len(readingStore.readings))
	}
	reading := readingStore.readings[0]
	if reading.VolumeReading != 350.5 || reading.Source != readingmodel.SourceInitialization {
		t.Errorf("unexpected reading %+v", reading)
	}

	if len(deviceStore.updates) != 1 {
		t.Fatalf("device updates = %d, want 1", len(deviceStore.updates))
	}
	fields := deviceStore.updates[0]
	if fields["status"] != devicemodel.StatusActive {
		t.Errorf("status = %v, want %v", fields["status"], devicemodel.StatusActive)
	}
	if fields["server_address"] != "sms.example.com" {
		t.Errorf("server_address = %v, want sms.example.com", fields["server_address"])
	}
	if fields["current_volume"] != 350.5 || fields["initialization_volume"] != 350.5 {
		t.Errorf("volumes = %v / %v, want 350.5 both", fields["current_volume"], fields["initialization_volume"])
	}
	if fields["digits"] != 6 {
		t.Errorf("digits = %v, want 6", fields["digits"])
	}

	if len(logStore.entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(logStore.entries))
	}
	entry := logStore.entries[0]
	if entry.Status != clmodel.StatusSuccess || entry.CommandType != clmodel.TypeInit {
		t.Errorf("unexpected log entry %+v", entry)
	}
	if entry.TechnicianID == nil || *entry.TechnicianID != technicianID {
		t.Errorf("TechnicianID = %v, want %s", entry.TechnicianID, technicianID)
	}
}

func TestProcessWrongPassword(t *testing.T) {
	device := pendingDevice("M1")
	service, deviceStore, readingStore, logStore := newTestService(device)

	result, err := service.Process(context.Background(), "INIT:000000,M1,sms.example.com,350.5,6", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Success {
		t.Fatal("command succeeded with a wrong device password")
	}

	if len(deviceStore.updates) != 0 || len(readingStore.readings) != 0 {
		t.Error("device mutated despite password mismatch")
	}
	if len(logStore.entries) != 1 || logStore.entries[0].Status != clmodel.StatusFailed {
		t.Errorf("unexpected log entries %+v", logStore.entries)
	}
}

func TestProcessUnknownDevice(t *testing.T) {
	service, _, _, logStore := newTestService()

	result, err := service.Process(context.Background(), "INIT:123456,GHOST,sms.example.com,0,6", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Success {
		t.Fatal("command succeeded for an unregistered device")
	}
	if len(logStore.entries) != 1 || logStore.entries[0].Status != clmodel.StatusFailed {
		t.Errorf("unexpected log entries %+v", logStore.entries)
	}
}

func TestProcessSetServer(t *testing.T) {
	device := pendingDevice("M1")
	service, deviceStore, _, _ := newTestService(device)

	result, err := service.Process(context.Background(), "SET_SERVER:123456,M1,new.example.com", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	if len(deviceStore.updates) != 1 {
		t.Fatalf("device updates = %d, want 1", len(deviceStore.updates))
	}
	if got := deviceStore.updates[0]["server_address"]; got != "new.example.com" {
		t.Errorf("server_address = %v, want new.example.com", got)
	}
}

func TestProcessSetTime(t *testing.T) {
	device := pendingDevice("M1")
	service, deviceStore, _, _ := newTestService(device)

	result, err := service.Process(context.Background(), "SET_TIME:123456,M1,22:00,06:00", nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}

	fields := deviceStore.updates[0]
	if fields["device_off_period"] != "22:00" || fields["device_on_period"] != "06:00" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestProcessMalformedCommands(t *testing.T) {
	device := pendingDevice("M1")

	tests := []struct {
		name string
		raw  string
	}{
		{"no command type", "123456,M1"},
		{"missing meter id", "INIT:123456"},
		{"unsupported type", "REBOOT:123456,M1"},
		{"init missing args", "INIT:123456,M1,sms.example.com"},
		{"init bad volume", "INIT:123456,M1,sms.example.com,abc,6"},
		{"set server missing address", "SET_SERVER:123456,M1"},
		{"set time missing on period", "SET_TIME:123456,M1,22:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, deviceStore, readingStore, logStore := newTestService(device)

			result, err := service.Process(context.Background(), tt.raw, nil)
			if err != nil {
				t.Fatalf("Process(%q) error = %v", tt.raw, err)
			}
			if result.Success {
				t.Errorf("Process(%q) succeeded, want failure", tt.raw)
			}
			if len(deviceStore.updates) != 0 || len(readingStore.readings) != 0 {
				t.Error("device mutated by a malformed command")
			}
			if len(logStore.entries) != 1 || logStore.entries[0].Status != clmodel.StatusFailed {
				t.Errorf("unexpected log entries %+v", logStore.entries)
			}
		})
	}
}
