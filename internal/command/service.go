package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	clmodel "water-meter-platform/internal/commandlog/model"
	devicemodel "water-meter-platform/internal/device/model"
	readingmodel "water-meter-platform/internal/reading/model"
	appErrors "water-meter-platform/pkg/errors"
)

// DeviceStore is the slice of the device repository the command service needs.
type DeviceStore interface {
	GetDeviceByMeterID(ctx context.Context, meterID string) (*devicemodel.Device, error)
	UpdateFields(ctx context.Context, deviceID uuid.UUID, fields map[string]interface{}) error
}

type ReadingStore interface {
	Append(ctx context.Context, reading *readingmodel.UsageReading) error
}

type CommandLogStore interface {
	Append(ctx context.Context, entry *clmodel.CommandLog) error
}

// Result of one simulated SMS command attempt.
type Result struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	MeterID  string `json:"meter_id,omitempty"`
	Command  string `json:"command,omitempty"`
	Response string `json:"response,omitempty"`
}

// Service simulates the SMS command channel technicians use against field
// devices: `TYPE:devicePassword,meterId,args...`. Real SMS transport is out of
// scope; every attempt, successful or not, appends one command-log row.
type Service struct {
	devices  DeviceStore
	readings ReadingStore
	logs     CommandLogStore
	log      *zap.Logger
}

func NewService(devices DeviceStore, readings ReadingStore, logs CommandLogStore) *Service {
	return &Service{
		devices:  devices,
		readings: readings,
		logs:     logs,
		log:      zap.L().Named("sms-command"),
	}
}

// Process executes one simulated command string on behalf of technicianID
// (nil when the source is unauthenticated).
func (s *Service) Process(ctx context.Context, rawCommand string, technicianID *uuid.UUID) (*Result, error) {
	commandType, rest, found := strings.Cut(strings.TrimSpace(rawCommand), ":")
	commandType = strings.ToUpper(strings.TrimSpace(commandType))

	entry := &clmodel.CommandLog{
		CommandType:  commandType,
		RawCommand:   rawCommand,
		Parameters:   map[string]string{},
		TechnicianID: technicianID,
		Timestamp:    time.Now(),
	}

	if !found || commandType == "" {
		entry.CommandType = "UNKNOWN"
		return s.fail(ctx, entry, "Command type missing, expected TYPE:password,meterId,...")
	}

	args := strings.Split(rest, ",")
	for i, arg := range args {
		args[i] = strings.TrimSpace(arg)
	}
	if len(args) < 2 {
		return s.fail(ctx, entry, "Command requires at least a device password and a meter ID.")
	}

	password, meterID := args[0], args[1]
	entry.MeterID = meterID
	entry.Parameters["MTRID"] = meterID

	device, err := s.devices.GetDeviceByMeterID(ctx, meterID)
	if err != nil {
		if appErrors.CodeOf(err) == appErrors.CodeUnknownDevice {
			return s.fail(ctx, entry, fmt.Sprintf("Device with Meter ID %s not registered in system.", meterID))
		}
		entry.Status = clmodel.StatusDBError
		entry.Response = err.Error()
		s.appendLog(ctx, entry)
		return nil, fmt.Errorf("device lookup failed for %s: %w", meterID, err)
	}

	if device.DevicePassword != password {
		s.log.Warn("device password mismatch on simulated command",
			zap.String("meter_id", meterID),
			zap.String("command", commandType),
		)
		return s.fail(ctx, entry, "Device password mismatch.")
	}

	switch commandType {
	case clmodel.TypeInit:
		return s.processInit(ctx, entry, device, args[2:])
	case clmodel.TypeSetServer:
		return s.processSetServer(ctx, entry, device, args[2:])
	case clmodel.TypeSetTime:
		return s.processSetTime(ctx, entry, device, args[2:])
	default:
		return s.fail(ctx, entry, fmt.Sprintf("Unsupported command type %q.", commandType))
	}
}

// processInit handles `INIT:pw,meterId,serverAddr,initialVolume,digits`:
// device goes active, both volumes start at the given register value, and an
// initialization reading anchors the history.
func (s *Service) processInit(ctx context.Context, entry *clmodel.CommandLog, device *devicemodel.Device, args []string) (*Result, error) {
	if len(args) < 3 {
		return s.fail(ctx, entry, "INIT requires serverAddress, initialVolume and digits.")
	}

	serverAddress := args[0]
	initialVolume, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return s.fail(ctx, entry, fmt.Sprintf("Invalid initial volume %q.", args[1]))
	}
	digits, err := strconv.Atoi(args[2])
	if err != nil {
		return s.fail(ctx, entry, fmt.Sprintf("Invalid digits %q.", args[2]))
	}

	entry.Parameters["SERVER"] = serverAddress
	entry.Parameters["VOL"] = args[1]
	entry.Parameters["DIGITS"] = args[2]

	now := time.Now()
	reading := &readingmodel.UsageReading{
		DeviceID:      device.ID,
		MeterID:       device.MeterID,
		Timestamp:     now,
		VolumeReading: initialVolume,
		Source:        readingmodel.SourceInitialization,
	}
	if err := s.readings.Append(ctx, reading); err != nil {
		entry.Status = clmodel.StatusDBError
		entry.Response = err.Error()
		s.appendLog(ctx, entry)
		return nil, fmt.Errorf("initialization reading append failed: %w", err)
	}

	fields := map[string]interface{}{
		"status":                devicemodel.StatusActive,
		"server_address":        serverAddress,
		"initialization_volume": initialVolume,
		"current_volume":        initialVolume,
		"digits":                digits,
		"last_seen_at":          now,
	}
	if err := s.devices.UpdateFields(ctx, device.ID, fields); err != nil {
		entry.Status = clmodel.StatusDBError
		entry.Response = err.Error()
		s.appendLog(ctx, entry)
		return nil, fmt.Errorf("initialization update failed: %w", err)
	}

	return s.succeed(ctx, entry, fmt.Sprintf("Device %s initialized at volume %.3f.", device.MeterID, initialVolume))
}

// processSetServer handles `SET_SERVER:pw,meterId,serverAddr`.
func (s *Service) processSetServer(ctx context.Context, entry *clmodel.CommandLog, device *devicemodel.Device, args []string) (*Result, error) {
	if len(args) < 1 || args[0] == "" {
		return s.fail(ctx, entry, "SET_SERVER requires a server address.")
	}

	entry.Parameters["SERVER"] = args[0]

	if err := s.devices.UpdateFields(ctx, device.ID, map[string]interface{}{
		"server_address": args[0],
	}); err != nil {
		entry.Status = clmodel.StatusDBError
		entry.Response = err.Error()
		s.appendLog(ctx, entry)
		return nil, fmt.Errorf("server address update failed: %w", err)
	}

	return s.succeed(ctx, entry, fmt.Sprintf("Device %s server address updated.", device.MeterID))
}

// processSetTime handles `SET_TIME:pw,meterId,offPeriod,onPeriod` (HH:MM each).
func (s *Service) processSetTime(ctx context.Context, entry *clmodel.CommandLog, device *devicemodel.Device, args []string) (*Result, error) {
	if len(args) < 2 {
		return s.fail(ctx, entry, "SET_TIME requires an off period and an on period.")
	}

	entry.Parameters["OFF"] = args[0]
	entry.Parameters["ON"] = args[1]

	if err := s.devices.UpdateFields(ctx, device.ID, map[string]interface{}{
		"device_off_period": args[0],
		"device_on_period":  args[1],
	}); err != nil {
		entry.Status = clmodel.StatusDBError
		entry.Response = err.Error()
		s.appendLog(ctx, entry)
		return nil, fmt.Errorf("timing update failed: %w", err)
	}

	return s.succeed(ctx, entry, fmt.Sprintf("Device %s timing updated.", device.MeterID))
}

func (s *Service) succeed(ctx context.Context, entry *clmodel.CommandLog, message string) (*Result, error) {
	entry.Status = clmodel.StatusSuccess
	entry.Response = message
	s.appendLog(ctx, entry)
	return &Result{
		Success:  true,
		Message:  message,
		MeterID:  entry.MeterID,
		Command:  entry.CommandType,
		Response: message,
	}, nil
}

func (s *Service) fail(ctx context.Context, entry *clmodel.CommandLog, message string) (*Result, error) {
	entry.Status = clmodel.StatusFailed
	entry.Response = message
	s.appendLog(ctx, entry)
	return &Result{
		Success:  false,
		Message:  message,
		MeterID:  entry.MeterID,
		Command:  entry.CommandType,
		Response: message,
	}, nil
}

func (s *Service) appendLog(ctx context.Context, entry *clmodel.CommandLog) {
	if err := s.logs.Append(ctx, entry); err != nil {
		s.log.Error("failed to append command log",
			zap.String("meter_id", entry.MeterID),
			zap.String("command", entry.CommandType),
			zap.Error(err),
		)
	}
}
