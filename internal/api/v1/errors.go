package v1

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/taskgate/internal/command"
	"github.com/gosuda/taskgate/internal/dispatch"
)

// Error detail locations carrying the dispatch outcome.
const (
	locServiceKind = "service.kind"
	locServiceCode = "service.code"
)

// serviceError maps a dispatch failure to an HTTP error. Rejections keep
// the backend's code and message; Unavailable never exposes transport detail.
func serviceError(err error) error {
	se, ok := dispatch.AsServiceError(err)
	if !ok {
		return huma.Error500InternalServerError("internal error", err)
	}
	kind := &huma.ErrorDetail{Message: "service call failed", Location: locServiceKind, Value: string(se.Kind)}
	if se.Kind == dispatch.KindUnavailable {
		return huma.Error503ServiceUnavailable("service unavailable", kind)
	}

	code := &huma.ErrorDetail{Message: se.Message, Location: locServiceCode, Value: se.Code}
	switch se.Code {
	case command.CodeNotFound:
		return huma.Error404NotFound(se.Message, kind, code)
	case command.CodeValidation, command.CodeInvalidStatus, command.CodeBadEnvelope:
		return huma.Error400BadRequest(se.Message, kind, code)
	case command.CodeConflict:
		return huma.Error409Conflict(se.Message, kind, code)
	case command.CodeUnauthorized:
		return huma.Error401Unauthorized(se.Message, kind, code)
	default:
		return huma.Error422UnprocessableEntity(se.Message, kind, code)
	}
}
