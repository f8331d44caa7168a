package errors

import (
	stdErrors "errors"
	"net/http"
	"strings"
)

type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeForbidden      Code = "FORBIDDEN"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeStateConflict  Code = "STATE_CONFLICT"
	CodeIdempotency    Code = "IDEMPOTENCY_KEY_REUSED"
	CodeProcessor      Code = "PROCESSOR_ERROR"
	CodePersistence    Code = "PERSISTENCE_ERROR"
	CodeReconciliation Code = "RECONCILIATION_ERROR"
	CodeInternal       Code = "INTERNAL_ERROR"
	CodeDependency     Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP. ExposeMessage lets the
// caller's message replace PublicMessage; it is only set for codes whose
// messages are written for the client.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	ExposeMessage  bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	withDetails
	clientMessage
)

func describe(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&withDetails != 0,
		ExposeMessage:  traits&clientMessage != 0,
	}
}

var catalog = map[Code]Metadata{
	CodeValidation:     describe(http.StatusBadRequest, "validation failed", withDetails|clientMessage),
	CodeUnauthorized:   describe(http.StatusUnauthorized, "authentication required", clientMessage),
	CodeForbidden:      describe(http.StatusForbidden, "access denied", clientMessage),
	CodeNotFound:       describe(http.StatusNotFound, "resource not found", clientMessage),
	CodeConflict:       describe(http.StatusConflict, "conflict detected", clientMessage),
	CodeStateConflict:  describe(http.StatusUnprocessableEntity, "state transition disallowed", withDetails|clientMessage),
	CodeIdempotency:    describe(http.StatusConflict, "idempotency key reused", withDetails|clientMessage),
	CodeProcessor:      describe(http.StatusBadGateway, "payment processor rejected the request", withDetails),
	CodePersistence:    describe(http.StatusInternalServerError, "failed to persist changes", retryable|withDetails),
	CodeReconciliation: describe(http.StatusConflict, "verification does not match the recorded payment", withDetails|clientMessage),
	CodeInternal:       describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:     describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// Error is a coded failure. Message is safe to show the client when the
// code's metadata allows it; the wrapped cause never is.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap with a nil err is New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

// Error renders "CODE: message: cause".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.code))
	b.WriteString(": ")
	b.WriteString(e.message)
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// IsRetryable reports whether the caller may retry the same request.
// Untyped errors count as internal.
func IsRetryable(err error) bool {
	return MetadataFor(As(err).Code()).Retryable
}
