package model

import (
	"time"

	"github.com/google/uuid"
)

// CommandLog is the append-only audit trail of every ingestion report and
// simulated SMS command, successful or not. One row per attempt.
type CommandLog struct {
	ID           uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	MeterID      string            `json:"meter_id" gorm:"index"`
	CommandType  string            `json:"command_type" gorm:"not null"`
	RawCommand   string            `json:"raw_command" gorm:"not null"`
	Parameters   map[string]string `json:"parameters" gorm:"serializer:json"`
	Status       string            `json:"status" gorm:"not null"`
	Response     string            `json:"response"`
	TechnicianID *uuid.UUID        `json:"technician_id,omitempty" gorm:"type:uuid"`
	Timestamp    time.Time         `json:"timestamp" gorm:"not null;index"`
}

// Command types recorded in the log.
const (
	TypeDataUpload = "DATA_UPLOAD"
	TypeInit       = "INIT"
	TypeSetServer  = "SET_SERVER"
	TypeSetTime    = "SET_TIME"
)

// Outcome statuses, shared between the parser, the pipeline and the command
// service so the log stays queryable by a single vocabulary.
const (
	StatusParseError     = "parse_error"
	StatusParseException = "parse_exception"
	StatusDeviceNotFound = "device_not_found"
	StatusUpdated        = "success_updated"
	StatusPing           = "success_ping"
	StatusSuccess        = "success"
	StatusFailed         = "failed"
	StatusDBError        = "db_error"
)
