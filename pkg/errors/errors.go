package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrInvalidToken            = errors.New("invalid or expired token")
	ErrUnauthorized            = errors.New("unauthorized access")
	ErrInsufficientPermissions = errors.New("insufficient permissions")

	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrInvalidUserRole   = errors.New("invalid user role")

	ErrDeviceNotFound      = errors.New("device not found")
	ErrDeviceAlreadyExists = errors.New("device with this meter ID already exists")
	ErrVersionConflict     = errors.New("device record was modified concurrently")

	ErrInvalidAssignee     = errors.New("target user missing or not a customer")
	ErrPersistenceFailure  = errors.New("store operation failed after retry")
	ErrInvalidInput        = errors.New("invalid input data")
	ErrInvalidEmail        = errors.New("invalid email format")
	ErrWeakPassword        = errors.New("password does not meet requirements")
	ErrWrongDevicePassword = errors.New("device password mismatch")
)

// Error codes surfaced by the assignment manager and the ingestion pipeline.
const (
	CodeInvalidAssignee    = "INVALID_ASSIGNEE"
	CodeUnknownDevice      = "UNKNOWN_DEVICE"
	CodeMalformedInput     = "MALFORMED_INPUT"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeRepairNeeded       = "CONSISTENCY_REPAIR_NEEDED"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the application error code from err, or "" when err does not
// carry one.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
