package errors

import (
	stderrors "errors"
	"fmt"
)

// Error kinds shared by every stage of a report lifecycle. Wrap them with the
// constructors below and classify with errors.Is.
var (
	// ErrConfiguration marks a malformed template binding, an unknown raster
	// token or a missing timestamp column. Aborts the single report only.
	ErrConfiguration = stderrors.New("configuration error")

	// ErrDataUnavailable marks a failed or empty data platform call.
	// Degrades to the gap-fill policy, never fatal to a cycle.
	ErrDataUnavailable = stderrors.New("data unavailable")

	// ErrValidation marks an invalid recipient address or attachment.
	ErrValidation = stderrors.New("validation error")

	// ErrPersistence marks an unreadable or unwritable schedule record.
	ErrPersistence = stderrors.New("persistence error")

	// ErrDeliveryTimeout marks an exhausted mail status poll.
	ErrDeliveryTimeout = stderrors.New("delivery timeout")

	// ErrDeliveryCanceled marks a mail job the collaborator reported in a
	// state other than scheduled or sent.
	ErrDeliveryCanceled = stderrors.New("delivery canceled")
)

func Configurationf(format string, args ...any) error {
	return wrapf(ErrConfiguration, format, args...)
}

func DataUnavailablef(format string, args ...any) error {
	return wrapf(ErrDataUnavailable, format, args...)
}

func Validationf(format string, args ...any) error {
	return wrapf(ErrValidation, format, args...)
}

func Persistencef(format string, args ...any) error {
	return wrapf(ErrPersistence, format, args...)
}

func wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

const (
	HttpInternalError       = "internal_error"
	HttpEntityNotFoundError = "entity_not_found"
	HttpPlatformUnreachable = "platform_unreachable"
)

// ErrorResponse is the error body returned by the status API.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
