package command

import (
	"errors"
	"fmt"

	"github.com/gosuda/taskgate/internal/domain"
)

// Reply error codes. Backends pick one; the gateway passes it through.
const (
	CodeNotFound       = "NOT_FOUND"
	CodeValidation     = "VALIDATION"
	CodeInvalidStatus  = "INVALID_STATUS"
	CodeConflict       = "CONFLICT"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeUnknownPattern = "UNKNOWN_PATTERN"
	CodeBadEnvelope    = "BAD_ENVELOPE"
	CodeInternal       = "INTERNAL"
)

// Error is an application-level failure returned by a handler.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Errorf builds an *Error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// toReplyError maps a handler error to its wire form. Domain sentinels get
// their matching code; anything else is INTERNAL.
func toReplyError(err error) *ReplyError {
	var cmdErr *Error
	if errors.As(err, &cmdErr) {
		return &ReplyError{Code: cmdErr.Code, Message: cmdErr.Message}
	}

	code := CodeInternal
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, domain.ErrInvalidStatus):
		code = CodeInvalidStatus
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidOrder):
		code = CodeValidation
	case errors.Is(err, domain.ErrConflict):
		code = CodeConflict
	case errors.Is(err, domain.ErrUnauthorized):
		code = CodeUnauthorized
	}
	return &ReplyError{Code: code, Message: err.Error()}
}
