package apperrors

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindGone
)

// String returns the machine-readable error code written in responses.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "bad_request"
	case KindAuthentication:
		return "unauthorized"
	case KindAuthorization:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGone:
		return "gone"
	default:
		return "internal_error"
	}
}

// Status maps a Kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindGone:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified, user-facing error. Message is safe to show to clients;
// Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind and Message, so
// package-level sentinels built with New can be matched with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New returns a classified error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns a classified error around cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

func Validation(message string) *Error     { return New(KindValidation, message) }
func Authentication(message string) *Error { return New(KindAuthentication, message) }
func Authorization(message string) *Error  { return New(KindAuthorization, message) }
func NotFound(message string) *Error       { return New(KindNotFound, message) }
func Conflict(message string) *Error       { return New(KindConflict, message) }
func Gone(message string) *Error           { return New(KindGone, message) }

// KindOf returns the Kind of err, or KindUnexpected for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnexpected
}

// UnexpectedMessage is shown to clients when an unclassified error escapes a service.
const UnexpectedMessage = "An unexpected error occurred. Please try again."

// WriteFromError writes the envelope matching err's Kind. Unclassified errors
// are logged with the supplied operation name and reported as 500.
func WriteFromError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindUnexpected {
		WriteError(w, r, appErr.Kind.Status(), appErr.Kind.String(), appErr.Message)
		return
	}

	log.Error().
		Err(err).
		Str("op", op).
		Str("request_id", GetRequestID(r.Context())).
		Msg("Unexpected error")
	WriteInternalError(w, r, UnexpectedMessage)
}
