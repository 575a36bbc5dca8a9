package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	clmodel "water-meter-platform/internal/commandlog/model"
	devicemodel "water-meter-platform/internal/device/model"
	readingmodel "water-meter-platform/internal/reading/model"
	"water-meter-platform/internal/telemetry"
	appErrors "water-meter-platform/pkg/errors"
)

type stubDeviceStore struct {
	devices map[string]*devicemodel.Device
}

func (s *stubDeviceStore) GetDeviceByMeterID(_ context.Context, meterID string) (*devicemodel.Device, error) {
	device, ok := s.devices[meterID]
	if !ok {
		return nil, appErrors.NewAppError(appErrors.CodeUnknownDevice, "device not found", appErrors.ErrDeviceNotFound)
	}
	copied := *device
	return &copied, nil
}

func (s *stubDeviceStore) ApplyTelemetry(_ context.Context, update *devicemodel.TelemetryUpdate) error {
	for _, device := range s.devices {
		if device.ID == update.DeviceID {
			device.Version++
			return nil
		}
	}
	return appErrors.NewAppError(appErrors.CodeUnknownDevice, "device not found", appErrors.ErrDeviceNotFound)
}

func (s *stubDeviceStore) TouchLastSeen(_ context.Context, deviceID uuid.UUID, at time.Time) error {
	for _, device := range s.devices {
		if device.ID == deviceID {
			device.LastSeenAt = &at
			return nil
		}
	}
	return appErrors.NewAppError(appErrors.CodeUnknownDevice, "device not found", appErrors.ErrDeviceNotFound)
}

type stubReadingStore struct{}

func (s *stubReadingStore) Append(_ context.Context, _ *readingmodel.UsageReading) error {
	return nil
}

type stubCommandLogStore struct{}

func (s *stubCommandLogStore) Append(_ context.Context, _ *clmodel.CommandLog) error {
	return nil
}

func newIngestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	devices := &stubDeviceStore{devices: map[string]*devicemodel.Device{
		"M1": {ID: uuid.New(), MeterID: "M1", Status: devicemodel.StatusActive},
	}}
	pipeline := telemetry.NewPipeline(devices, &stubReadingStore{}, &stubCommandLogStore{})

	router := gin.New()
	h := NewMeterDataHandler(pipeline)
	h.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func postReport(router *gin.Engine, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/v1/meterdata", strings.NewReader(body))
	request.Header.Set("Content-Type", "text/plain")
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestIngestStatusCodes(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"updated report", "MTRID:M1;VOL:120.5", http.StatusOK},
		{"ping report", "MTRID:M1", http.StatusOK},
		{"missing meter id", "VOL:120.5;BATT:3.7V", http.StatusBadRequest},
		{"unknown device", "MTRID:GHOST;VOL:1", http.StatusNotFound},
	}

	router := newIngestRouter(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := postReport(router, tt.body)
			if recorder.Code != tt.wantStatus {
				t.Fatalf("POST %q status = %d, want %d", tt.body, recorder.Code, tt.wantStatus)
			}
		})
	}
}

func TestIngestRejectedBodyCarriesResult(t *testing.T) {
	router := newIngestRouter(t)

	recorder := postReport(router, "MTRID:GHOST;VOL:1")

	var response struct {
		Success bool `json:"success"`
		Data    struct {
			State  string `json:"state"`
			Reason string `json:"reason"`
		} `json:"data"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response.Success {
		t.Error("success = true for a rejected report")
	}
	if response.Data.State != string(telemetry.StateRejected) {
		t.Errorf("state = %q, want %q", response.Data.State, telemetry.StateRejected)
	}
	if response.Data.Reason != string(telemetry.ReasonUnknownDevice) {
		t.Errorf("reason = %q, want %q", response.Data.Reason, telemetry.ReasonUnknownDevice)
	}
}

func TestIngestJSONEnvelope(t *testing.T) {
	router := newIngestRouter(t)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/v1/meterdata",
		strings.NewReader(`{"message": "MTRID:M1;VOL:42"}`))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusOK)
	}
}

func TestIngestEmptyBody(t *testing.T) {
	router := newIngestRouter(t)

	if recorder := postReport(router, "   "); recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}
