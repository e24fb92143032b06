// Package httpapi holds the JSON plumbing shared by every REST handler:
// problem+json errors, body decoding and listing parameters.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
)

const (
	problemTypeValidation   = "https://palmyra.directory/problems/validation-error"
	problemTypeUnauthorized = "https://palmyra.directory/problems/unauthorized"
	problemTypeNotFound     = "https://palmyra.directory/problems/not-found"
	problemTypeConflict     = "https://palmyra.directory/problems/conflict"
	problemTypeUnavailable  = "https://palmyra.directory/problems/unavailable"
	problemTypeInternal     = "https://palmyra.directory/problems/internal-error"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title"`
	Status   int                 `json:"status"`
	Detail   string              `json:"detail,omitempty"`
	Resource string              `json:"resource,omitempty"`
	Details  map[string]any      `json:"details,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
}

// ProblemFor classifies err into a Problem.
func ProblemFor(err error) Problem {
	status := apperr.Status(err)
	p := Problem{Status: status}

	var (
		validationErr *apperr.ValidationError
		notFoundErr   *apperr.NotFoundError
		unknownSource *apperr.UnknownSourceError
		duplicateErr  *apperr.DuplicateError
	)
	switch {
	case errors.As(err, &validationErr):
		p.Type, p.Title, p.Detail = problemTypeValidation, "Validation failed", "one or more fields are invalid"
		p.Errors = make(map[string][]string, len(validationErr.Fields))
		for field, messages := range validationErr.Fields {
			p.Errors[field] = append([]string(nil), messages...)
		}
	case errors.Is(err, apperr.ErrInvalidData):
		p.Type, p.Title, p.Detail = problemTypeValidation, "Invalid data", err.Error()
	case errors.Is(err, apperr.ErrUnauthorized):
		p.Type, p.Title, p.Detail = problemTypeUnauthorized, "Unauthorized", err.Error()
	case errors.As(err, &unknownSource):
		p.Type, p.Title, p.Detail = problemTypeNotFound, "Unknown source", err.Error()
		p.Resource = "source"
		p.Details = map[string]any{"source_uuid": unknownSource.SourceUUID.String()}
	case errors.As(err, &notFoundErr):
		p.Type, p.Title, p.Detail = problemTypeNotFound, "Resource not found", err.Error()
		p.Resource = notFoundErr.Resource
		p.Details = notFoundErr.Details
	case errors.Is(err, apperr.ErrNotFound):
		p.Type, p.Title, p.Detail = problemTypeNotFound, "Resource not found", err.Error()
	case errors.As(err, &duplicateErr):
		p.Type, p.Title, p.Detail = problemTypeConflict, "Conflict", err.Error()
		p.Resource = duplicateErr.Resource
	case errors.Is(err, apperr.ErrDuplicate):
		p.Type, p.Title, p.Detail = problemTypeConflict, "Conflict", err.Error()
	case status == http.StatusServiceUnavailable:
		p.Type, p.Title, p.Detail = problemTypeUnavailable, "Service unavailable", err.Error()
	default:
		p.Type, p.Title, p.Detail = problemTypeInternal, "Internal server error", "an unexpected error occurred"
	}
	return p
}

// WriteProblem logs err against op and writes it as application/problem+json.
func WriteProblem(w http.ResponseWriter, r *http.Request, fallback *zap.Logger, op string, err error) {
	p := ProblemFor(err)

	logger := platformlogging.FromRequest(r, fallback)
	if logger == nil {
		logger = zap.NewNop()
	}
	fields := []zap.Field{zap.String("operation", op), zap.Int("status", p.Status), zap.Error(err)}
	switch {
	case p.Status >= http.StatusInternalServerError:
		logger.Error("request failed", fields...)
	case p.Status == http.StatusNotFound:
		logger.Info("resource not found", fields...)
	default:
		logger.Warn("request rejected", fields...)
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
