// Package errs defines the error kinds shared by the lead capture pipeline and
// maps them onto HTTP responses.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind identifies a class of failure. Callers branch on the kind, never on the
// message.
type Kind int

const (
	Internal Kind = iota
	ValidationFailed
	Unauthorized
	Forbidden
	NotFound
	TooLarge
	UnsupportedType
	StorageRejected
	PersistenceUnavailable
	WebhookDeliveryFailed
	AlreadyCompleted
	StepOutOfOrder
	SubmissionInProgress
)

var kindNames = map[Kind]string{
	Internal:               "internal",
	ValidationFailed:       "validation_failed",
	Unauthorized:           "unauthorized",
	Forbidden:              "forbidden",
	NotFound:               "not_found",
	TooLarge:               "too_large",
	UnsupportedType:        "unsupported_type",
	StorageRejected:        "storage_rejected",
	PersistenceUnavailable: "persistence_unavailable",
	WebhookDeliveryFailed:  "webhook_delivery_failed",
	AlreadyCompleted:       "already_completed",
	StepOutOfOrder:         "step_out_of_order",
	SubmissionInProgress:   "submission_in_progress",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FieldErrors maps a field name to a human readable problem with it.
type FieldErrors map[string]string

// Error is the concrete error carried through the pipeline.
type Error struct {
	Kind   Kind
	Msg    string
	Fields FieldErrors
	Err    error
}

// New creates an Error of the given kind wrapping err. err may be nil.
func New(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Newf is New with a formatted message and no wrapped error.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Validation returns a ValidationFailed error listing the offending fields.
func Validation(fields FieldErrors) *Error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Error{
		Kind:   ValidationFailed,
		Msg:    "invalid fields: " + strings.Join(names, ", "),
		Fields: fields,
	}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, errs.Sentinel(errs.TooLarge))
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel returns a bare error of kind k suitable for errors.Is comparisons.
func Sentinel(k Kind) error { return &Error{Kind: k, Msg: k.String()} }

// KindOf reports the kind of err, or Internal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is of kind k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// HTTPStatus maps an error onto the status code the API answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ValidationFailed:
		return http.StatusUnprocessableEntity
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case TooLarge:
		return http.StatusRequestEntityTooLarge
	case UnsupportedType:
		return http.StatusUnsupportedMediaType
	case AlreadyCompleted, StepOutOfOrder, SubmissionInProgress:
		return http.StatusConflict
	case StorageRejected, WebhookDeliveryFailed:
		return http.StatusBadGateway
	case PersistenceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text shown to the end user. Persistence and internal
// failures collapse into a generic retry message.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	switch e.Kind {
	case PersistenceUnavailable:
		return "failed to submit, please try again"
	case Internal:
		return "internal error"
	default:
		return e.Msg
	}
}
