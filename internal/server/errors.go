package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jonathan/persona-transformer/internal/compliance"
	"github.com/jonathan/persona-transformer/internal/orchestrator"
	"github.com/jonathan/persona-transformer/internal/quality"
	"github.com/jonathan/persona-transformer/internal/schemas"
	"github.com/jonathan/persona-transformer/internal/store"
	"github.com/jonathan/persona-transformer/internal/templates"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *ErrValidation
		schemaErr     *schemas.ValidationError
		fieldErrs     validator.ValidationErrors
		refErr        *orchestrator.ErrInvalidReference
		transitionErr *orchestrator.ErrInvalidTransition
		notPending    *quality.ErrNotPending
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &schemaErr), errors.As(err, &fieldErrs):
		return http.StatusBadRequest
	case errors.Is(err, compliance.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.As(err, &refErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrRecordNotFound), errors.Is(err, templates.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrStaleWrite), errors.Is(err, store.ErrDuplicateKey):
		return http.StatusConflict
	case errors.As(err, &transitionErr), errors.As(err, &notPending):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNotApproved), errors.Is(err, quality.ErrNoApprovedRevision):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and writes it. Internal errors are logged
// and hidden from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request error", zap.String("http_path", r.URL.Path), zap.Error(err))
		s.errorResponse(w, status, "internal server error")
		return
	}

	var schemaErr *schemas.ValidationError
	if errors.As(err, &schemaErr) {
		details := make([]map[string]string, 0, len(schemaErr.Errors))
		for _, fe := range schemaErr.Errors {
			details = append(details, map[string]string{"field": fe.Field, "message": fe.Message})
		}
		s.jsonResponse(w, status, map[string]any{"error": "document failed schema validation", "details": details})
		return
	}
	s.errorResponse(w, status, err.Error())
}
