package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jonathan/persona-transformer/internal/types"
)

// revisionPath parses the job and revision IDs of a revision route
func revisionPath(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	jobID, err := pathUUID(r, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	revID, err := pathUUID(r, "rev")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return jobID, revID, nil
}

func (s *Server) handleListRevisions(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	revs, err := s.reviews.History(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if revs == nil {
		revs = []types.Revision{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"revisions": revs})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	jobID, revID, err := revisionPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req types.ApproveRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	rev, err := s.reviews.Approve(r.Context(), jobID, revID, req.Feedback)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rev)
}

func (s *Server) handleRequestRevision(w http.ResponseWriter, r *http.Request) {
	jobID, revID, err := revisionPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req types.RevisionRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	rev, err := s.reviews.RequestRevision(r.Context(), jobID, revID, req.Notes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, rev)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	jobID, revID, err := revisionPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rev, err := s.reviews.Rollback(r.Context(), jobID, revID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rev)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bundle, err := s.reviews.Export(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, bundle)
}
