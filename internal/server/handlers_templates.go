package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/jonathan/persona-transformer/internal/schemas"
	"github.com/jonathan/persona-transformer/internal/templates"
	"github.com/jonathan/persona-transformer/internal/types"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.templates.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []types.Template{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"templates": list})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.templates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, tmpl)
}

// handlePutTemplate stores a new template version. Approved revisions are
// not touched; exports report drift against the new version.
func (s *Server) handlePutTemplate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}
	if err := schemas.ValidateTemplate(body); err != nil {
		s.writeError(w, r, err)
		return
	}

	var tmpl types.Template
	if err := json.Unmarshal(body, &tmpl); err != nil {
		s.writeError(w, r, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}
	if tmpl.ID != r.PathValue("id") {
		s.writeError(w, r, &ErrValidation{Field: "id", Message: "does not match the path"})
		return
	}
	if err := templates.Validate(&tmpl); err != nil {
		s.writeError(w, r, &ErrValidation{Field: "template", Message: err.Error()})
		return
	}

	stored, err := s.templates.Put(r.Context(), &tmpl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stored)
}
