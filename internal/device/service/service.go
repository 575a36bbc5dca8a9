package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"water-meter-platform/internal/assignment"
	"water-meter-platform/internal/device/model"
	"water-meter-platform/internal/device/repository"
	"water-meter-platform/internal/logger"
	readingmodel "water-meter-platform/internal/reading/model"
	readingrepo "water-meter-platform/internal/reading/repository"
	appErrors "water-meter-platform/pkg/errors"
	"water-meter-platform/pkg/utils"
)

// Service implements the administrative device operations. Every mutation
// that touches the owner edge goes through the assignment manager; the service
// never writes devices.owner_id or the owned sets itself.
type Service struct {
	repo     *repository.DeviceRepository
	readings *readingrepo.ReadingRepository
	acm      *assignment.Manager
}

func NewService(repo *repository.DeviceRepository, readings *readingrepo.ReadingRepository, acm *assignment.Manager) *Service {
	return &Service{
		repo:     repo,
		readings: readings,
		acm:      acm,
	}
}

func (s *Service) CreateDevice(ctx context.Context, req *model.CreateDeviceRequest) (*model.DeviceResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	device := &model.Device{
		MeterID:        req.MeterID,
		DevicePassword: req.DevicePassword,
		Status:         model.StatusUninitialized,
		ServerAddress:  req.ServerAddress,
		Digits:         req.Digits,
		Notes:          utils.SanitizeText(req.Notes),
	}
	if device.DevicePassword == "" {
		device.DevicePassword = "000000"
	}
	if device.Digits == 0 {
		device.Digits = 6
	}
	if req.Status != "" {
		device.Status = model.DeviceStatus(req.Status)
	}

	if err := s.repo.CreateDevice(ctx, device); err != nil {
		return nil, err
	}

	// The owner edge only ever changes through the assignment manager. If the
	// assignee is invalid the whole create is rolled back.
	if req.OwnerID != nil {
		if err := s.acm.Reassign(ctx, device.ID, req.OwnerID); err != nil {
			if delErr := s.repo.DeleteDevice(ctx, device.ID); delErr != nil {
				logger.Error("failed to roll back device after assignment failure",
					zap.String("device_id", device.ID.String()),
					zap.Error(delErr),
				)
			}
			return nil, err
		}
	}

	created, err := s.repo.GetDeviceByID(ctx, device.ID)
	if err != nil {
		return nil, err
	}

	logger.Info("Device created",
		zap.String("device_id", created.ID.String()),
		zap.String("meter_id", created.MeterID),
		zap.String("event", "device_created"),
	)

	return model.ToDeviceResponse(created), nil
}

func (s *Service) GetDevice(ctx context.Context, deviceID uuid.UUID) (*model.DeviceResponse, error) {
	device, err := s.repo.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return model.ToDeviceResponse(device), nil
}

func (s *Service) GetDeviceByMeterID(ctx context.Context, meterID string) (*model.DeviceResponse, error) {
	device, err := s.repo.GetDeviceByMeterID(ctx, meterID)
	if err != nil {
		return nil, err
	}
	return model.ToDeviceResponse(device), nil
}

func (s *Service) ListDevices(ctx context.Context, filter *model.DeviceFilterRequest) (*model.DeviceListResponse, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	devices, total, err := s.repo.ListDevices(ctx, filter)
	if err != nil {
		return nil, err
	}

	responses := make([]model.DeviceResponse, len(devices))
	for i := range devices {
		responses[i] = *model.ToDeviceResponse(&devices[i])
	}

	return &model.DeviceListResponse{
		Devices:  responses,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

func (s *Service) UpdateDevice(ctx context.Context, deviceID uuid.UUID, req *model.UpdateDeviceRequest) (*model.DeviceResponse, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid input", err)
	}

	device, err := s.repo.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.MeterID != nil && *req.MeterID != device.MeterID {
		if existing, _ := s.repo.GetDeviceByMeterID(ctx, *req.MeterID); existing != nil {
			return nil, appErrors.NewAppError("DEVICE_ALREADY_EXISTS",
				"Another device with this meter ID already exists", nil)
		}
		fields["meter_id"] = *req.MeterID
	}
	if req.DevicePassword != nil {
		fields["device_password"] = *req.DevicePassword
	}
	if req.Status != nil {
		fields["status"] = *req.Status
	}
	if req.CurrentVolume != nil {
		fields["current_volume"] = *req.CurrentVolume
	}
	if req.InitializationVolume != nil {
		fields["initialization_volume"] = *req.InitializationVolume
	}
	if req.BatteryVoltage != nil {
		fields["battery_voltage"] = *req.BatteryVoltage
	}
	if req.NetworkStrength != nil {
		fields["network_strength"] = *req.NetworkStrength
	}
	if req.ServerAddress != nil {
		fields["server_address"] = *req.ServerAddress
	}
	if req.FirmwareVersion != nil {
		fields["firmware_version"] = *req.FirmwareVersion
	}
	if req.ICCID != nil {
		fields["iccid"] = *req.ICCID
	}
	if req.IMEI != nil {
		fields["imei"] = *req.IMEI
	}
	if req.IMSI != nil {
		fields["imsi"] = *req.IMSI
	}
	if req.CellID != nil {
		fields["cell_id"] = *req.CellID
	}
	if req.Digits != nil {
		fields["digits"] = *req.Digits
	}
	if req.DeviceOffPeriod != nil {
		fields["device_off_period"] = *req.DeviceOffPeriod
	}
	if req.DeviceOnPeriod != nil {
		fields["device_on_period"] = *req.DeviceOnPeriod
	}
	if req.Notes != nil {
		fields["notes"] = utils.SanitizeText(*req.Notes)
	}

	if len(fields) > 0 {
		if err := s.repo.UpdateFields(ctx, deviceID, fields); err != nil {
			return nil, err
		}
	}

	if req.OwnerID != nil {
		var newOwner *uuid.UUID
		if *req.OwnerID != "" {
			parsed, err := uuid.Parse(*req.OwnerID)
			if err != nil {
				return nil, appErrors.NewAppError("VALIDATION_ERROR", "Invalid owner ID", err)
			}
			newOwner = &parsed
		}
		if err := s.acm.Reassign(ctx, deviceID, newOwner); err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return model.ToDeviceResponse(updated), nil
}

// DeleteDevice unassigns the device before removing it so the owner's set
// never keeps a reference to a deleted record.
func (s *Service) DeleteDevice(ctx context.Context, deviceID uuid.UUID) error {
	if err := s.acm.Reassign(ctx, deviceID, nil); err != nil {
		return err
	}

	if err := s.repo.DeleteDevice(ctx, deviceID); err != nil {
		return err
	}

	logger.Info("Device deleted",
		zap.String("device_id", deviceID.String()),
		zap.String("event", "device_deleted"),
	)
	return nil
}

// AddManualReading records an operator-entered register value: an immutable
// reading plus a device volume update.
func (s *Service) AddManualReading(ctx context.Context, deviceID uuid.UUID, volume float64) (*readingmodel.UsageReading, error) {
	device, err := s.repo.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	reading := &readingmodel.UsageReading{
		DeviceID:      device.ID,
		MeterID:       device.MeterID,
		Timestamp:     time.Now(),
		VolumeReading: volume,
		Source:        readingmodel.SourceManualEntry,
	}
	if err := s.readings.Append(ctx, reading); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateFields(ctx, deviceID, map[string]interface{}{
		"current_volume": volume,
	}); err != nil {
		return nil, err
	}

	return reading, nil
}

func (s *Service) ListReadings(ctx context.Context, deviceID uuid.UUID, limit int) ([]readingmodel.UsageReading, error) {
	if _, err := s.repo.GetDeviceByID(ctx, deviceID); err != nil {
		return nil, err
	}
	return s.readings.ListByDevice(ctx, deviceID, limit)
}

func (s *Service) ListReadingsByMeterID(ctx context.Context, meterID string, limit int) ([]readingmodel.UsageReading, error) {
	if _, err := s.repo.GetDeviceByMeterID(ctx, meterID); err != nil {
		return nil, err
	}
	return s.readings.ListByMeterID(ctx, meterID, limit)
}

// LatestReading returns the newest reading for the device, or nil when no
// reading has been recorded yet.
func (s *Service) LatestReading(ctx context.Context, deviceID uuid.UUID) (*readingmodel.UsageReading, error) {
	if _, err := s.repo.GetDeviceByID(ctx, deviceID); err != nil {
		return nil, err
	}
	return s.readings.LatestForDevice(ctx, deviceID)
}

func (s *Service) GetStatistics(ctx context.Context) (*model.DeviceStatistics, error) {
	return s.repo.GetStatistics(ctx)
}
