package model

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindGateway       ErrorKind = "gateway"
	KindConfiguration ErrorKind = "configuration"
	KindNotFound      ErrorKind = "not_found"
	KindPermission    ErrorKind = "permission"
	KindPersistence   ErrorKind = "persistence"
	KindConflict      ErrorKind = "conflict"
)

// Error codes surfaced to API callers.
const (
	CodeInvalidAmount       = "invalid_amount"
	CodeInvalidDonor        = "invalid_donor"
	CodeInvalidEmail        = "invalid_email"
	CodeInvalidRequest      = "invalid_request"
	CodeStripeNotConnected  = "stripe_not_connected"
	CodeMissionAPIError     = "mission_api_error"
	CodePaymentIntentFailed = "payment_intent_failed"
	CodeNotFound            = "not_found"
	CodeForbidden           = "forbidden"
	CodePersistence         = "persistence_failed"
	CodeSubmissionInFlight  = "submission_in_flight"
	CodeConfirmInProgress   = "confirm_in_progress"
)

// Error is the single error type crossing package boundaries. Kind drives the
// HTTP mapping; Code and Message are what a caller sees.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	// Status overrides the kind's default HTTP status, used when relaying a
	// gateway's own status.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation, KindConfiguration:
		return http.StatusBadRequest
	case KindGateway:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindPermission:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func NewValidationError(code, message string, err error) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Err: err}
}

func NewGatewayError(code, message string, status int, err error) *Error {
	return &Error{Kind: KindGateway, Code: code, Message: message, Status: status, Err: err}
}

func NewConfigurationError(code, message string) *Error {
	return &Error{Kind: KindConfiguration, Code: code, Message: message}
}

func NewNotFoundError(entity string, id any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf("%s %v not found", entity, id)}
}

func NewPermissionError(message string) *Error {
	return &Error{Kind: KindPermission, Code: CodeForbidden, Message: message}
}

func NewConflictError(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func NewPersistenceError(message string, err error) *Error {
	return &Error{Kind: KindPersistence, Code: CodePersistence, Message: message, Err: err}
}

// AsError finds the first *Error in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}
