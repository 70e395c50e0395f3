package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/persona-transformer/internal/types"
)

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitJobRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	id, err := s.jobs.Submit(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/jobs/"+id.String())
	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"job_id": id.String(),
		"status": string(types.JobQueued),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.jobs.GetStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.jobs.Cancel(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.jobs.GetStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, view)
}

// handleRefineJob asks for another revision of an approved job
func (s *Server) handleRefineJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
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

	if err := s.jobs.Refine(r.Context(), id, req.Notes); err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.jobs.GetStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, view)
}

// handleJobEvents streams progress events until the job settles or the
// client goes away
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// Subscribe first so no change between the snapshot and the stream is lost.
	events, stop := s.jobs.Subscribe(id)
	defer stop()

	view, err := s.jobs.GetStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := sse.WriteEvent("status", view); err != nil {
		return
	}
	if view.Status.IsTerminal() {
		sse.WriteComplete(id.String(), string(view.Status))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteEvent("progress", ev); err != nil {
				s.logger.Debug("event stream closed", zap.String("job_id", id.String()), zap.Error(err))
				return
			}
			if ev.Status.IsTerminal() {
				sse.WriteComplete(id.String(), string(ev.Status))
				return
			}
		}
	}
}
