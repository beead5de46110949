package dispatch

import (
	"errors"
	"fmt"
)

// Kind classifies a failed service call.
type Kind string

const (
	// KindUnavailable covers timeouts, disconnects, unknown services and
	// malformed replies. It is never retried.
	KindUnavailable Kind = "UNAVAILABLE"
	// KindRejected is an application error reported by the backend. Code
	// and Message are passed through unmodified.
	KindRejected Kind = "REJECTED"
)

var (
	ErrUnknownService = errors.New("dispatch: unknown service")
	ErrInvalidTimeout = errors.New("dispatch: timeout must be positive")
	ErrTimeout        = errors.New("dispatch: no reply before timeout")
	ErrMalformedReply = errors.New("dispatch: malformed reply")
	ErrUnroutable     = errors.New("dispatch: no route for pattern")
)

// ServiceError is the uniform failure of a Call.
type ServiceError struct {
	Kind    Kind
	Service string
	Pattern string
	Code    string // backend error code, Rejected only
	Message string
	Err     error // transport cause, Unavailable only
}

func (e *ServiceError) Error() string {
	if e.Kind == KindRejected {
		return fmt.Sprintf("%s %s rejected: %s: %s", e.Service, e.Pattern, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s unavailable: %s", e.Service, e.Pattern, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func unavailable(service, pattern string, cause error) *ServiceError {
	return &ServiceError{
		Kind:    KindUnavailable,
		Service: service,
		Pattern: pattern,
		Message: cause.Error(),
		Err:     cause,
	}
}

// AsServiceError extracts a *ServiceError from err's chain.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsUnavailable reports whether err is an Unavailable service failure.
func IsUnavailable(err error) bool {
	se, ok := AsServiceError(err)
	return ok && se.Kind == KindUnavailable
}

// IsRejected reports whether err is a backend rejection, optionally with
// one of the given codes.
func IsRejected(err error, codes ...string) bool {
	se, ok := AsServiceError(err)
	if !ok || se.Kind != KindRejected {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if se.Code == c {
			return true
		}
	}
	return false
}
