package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/persona-transformer/internal/schemas"
	"github.com/jonathan/persona-transformer/internal/types"
)

// handleCreateContent ingests a SourceContent document. The document is
// checked against the embedded JSON Schema before it is stored.
func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, &ErrValidation{Field: "body", Message: err.Error()})
		return
	}
	if err := schemas.ValidateContent(body); err != nil {
		s.writeError(w, r, err)
		return
	}

	var content types.SourceContent
	if err := json.Unmarshal(body, &content); err != nil {
		s.writeError(w, r, &ErrValidation{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)})
		return
	}
	content.DeriveMetadata()
	if content.IngestedAt.IsZero() {
		content.IngestedAt = time.Now().UTC()
	}

	if err := s.store.Content().Create(r.Context(), &content); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, content)
}

func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	content, err := s.store.Content().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, content)
}

func (s *Server) handleListPersonas(w http.ResponseWriter, r *http.Request) {
	personas, err := s.store.Persona().List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if personas == nil {
		personas = []types.Persona{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"personas": personas})
}

func (s *Server) handleCreatePersona(w http.ResponseWriter, r *http.Request) {
	var req types.PersonaRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	p := req.ToPersona()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	created, err := s.store.Persona().Create(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, created)
}

// handleGetPersona returns the latest persona, or a prior one with ?version=N
func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var (
		p   *types.Persona
		err error
	)
	if v := r.URL.Query().Get("version"); v != "" {
		version, convErr := strconv.Atoi(v)
		if convErr != nil || version < 1 {
			s.writeError(w, r, &ErrValidation{Field: "version", Message: "must be a positive integer"})
			return
		}
		p, err = s.store.Persona().GetVersion(r.Context(), id, version)
	} else {
		p, err = s.store.Persona().Get(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, p)
}

// handleUpdatePersona writes a new persona version. The request must carry
// the version it was based on.
func (s *Server) handleUpdatePersona(w http.ResponseWriter, r *http.Request) {
	var req types.PersonaRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Version < 1 {
		s.writeError(w, r, &ErrValidation{Field: "version", Message: "the version being updated is required"})
		return
	}

	p := req.ToPersona()
	p.ID = r.PathValue("id")
	updated, err := s.store.Persona().Update(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, updated)
}

// handleArchivePersona soft-deletes a persona. ?version=N enables the
// staleness check.
func (s *Server) handleArchivePersona(w http.ResponseWriter, r *http.Request) {
	expected := 0
	if v := r.URL.Query().Get("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, &ErrValidation{Field: "version", Message: "must be a positive integer"})
			return
		}
		expected = n
	}

	archived, err := s.store.Persona().Archive(r.Context(), r.PathValue("id"), expected)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, archived)
}
