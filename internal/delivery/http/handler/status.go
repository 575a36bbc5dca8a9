package handler

import (
	"errors"
	"net/http"

	appErrors "water-meter-platform/pkg/errors"
)

// statusFromError maps service-layer errors onto HTTP status codes so the
// handlers stay thin.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, appErrors.ErrUserNotFound),
		errors.Is(err, appErrors.ErrDeviceNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErrors.ErrUserAlreadyExists),
		errors.Is(err, appErrors.ErrDeviceAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, appErrors.ErrInvalidCredentials),
		errors.Is(err, appErrors.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, appErrors.ErrInsufficientPermissions):
		return http.StatusForbidden
	}

	switch appErrors.CodeOf(err) {
	case appErrors.CodeUnknownDevice:
		return http.StatusNotFound
	case appErrors.CodeInvalidAssignee, appErrors.CodeMalformedInput:
		return http.StatusBadRequest
	case appErrors.CodePersistenceFailure:
		return http.StatusInternalServerError
	}

	switch {
	case errors.Is(err, appErrors.ErrInvalidInput),
		errors.Is(err, appErrors.ErrInvalidEmail),
		errors.Is(err, appErrors.ErrWeakPassword),
		errors.Is(err, appErrors.ErrInvalidUserRole),
		errors.Is(err, appErrors.ErrInvalidAssignee):
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}
