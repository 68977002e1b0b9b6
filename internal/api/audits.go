package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	"github.com/hugo-lorenzo-mato/tribunal/internal/events"
	"github.com/hugo-lorenzo-mato/tribunal/internal/logging"
)

const maxListLimit = 200

// auditRequest is the body of POST /api/v1/audits.
type auditRequest struct {
	RepoURL    string `json:"repo_url"`
	ReportPath string `json:"report_path,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "healthy"}
	if r := s.Rubric(); r != nil {
		resp["rubric"] = r.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": "v1", "name": "tribunal-api"})
}

func (s *Server) handleRubric(w http.ResponseWriter, _ *http.Request) {
	r := s.Rubric()
	if r == nil {
		writeError(w, core.ErrConfiguration("rubric", "no rubric loaded"))
		return
	}
	dims := make([]map[string]any, 0, len(r.Dimensions))
	for _, d := range r.Dimensions {
		dims = append(dims, map[string]any{
			"id":     d.ID,
			"name":   d.Name,
			"scale":  d.Scale.String(),
			"weight": d.Weight,
			"rules":  len(d.Rules),
		})
	}
	judges := make([]string, 0, len(r.Judges))
	for _, j := range r.Judges {
		judges = append(judges, j.Name)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       r.Name,
		"version":    r.Version,
		"judges":     judges,
		"dimensions": dims,
	})
}

func (s *Server) handleSubmitAudit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, core.ErrValidation("INVALID_REQUEST", "invalid request body: "+err.Error()))
		return
	}
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if req.RepoURL == "" {
		writeError(w, core.ErrValidation(core.CodeInvalidTarget, "repo_url is required"))
		return
	}

	audit, err := s.Submit(core.Target{RepoURL: req.RepoURL, ReportPath: req.ReportPath})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/audits/"+audit.ID)
	writeJSON(w, http.StatusAccepted, audit)
}

// Submit queues an audit and returns immediately. The audit starts when a
// concurrency slot is free.
func (s *Server) Submit(target core.Target) (Audit, error) {
	rubric := s.Rubric()
	if rubric == nil {
		return Audit{}, core.ErrConfiguration("rubric", "no rubric loaded")
	}
	runner, err := s.newRunner(rubric)
	if err != nil {
		return Audit{}, err
	}

	audit := &Audit{
		ID:          uuid.NewString(),
		Status:      StatusQueued,
		Target:      target,
		Rubric:      rubric.Name,
		SubmittedAt: time.Now().UTC(),
	}
	s.jobs.add(audit)
	logger := s.logger.WithRun(audit.ID)
	logger.Info("audit queued", "target", target.RepoURL)

	s.wg.Add(1)
	go func(id string) {
		defer s.wg.Done()
		defer s.recoverAudit(id, target, logger)

		select {
		case s.slots <- struct{}{}:
		case <-s.runCtx.Done():
			s.finish(id, func(a *Audit) {
				a.Status = StatusFailed
				a.Error = "server shutting down"
			})
			return
		}
		defer func() { <-s.slots }()

		s.jobs.update(id, func(a *Audit) { a.Status = StatusRunning })
		outcome, err := runner.RunWithID(s.runCtx, id, target)
		if err != nil {
			logger.Error("audit failed", "error", err)
			s.finish(id, func(a *Audit) {
				a.Status = StatusFailed
				a.Error = err.Error()
			})
			return
		}
		s.finish(id, func(a *Audit) {
			a.Status = string(outcome.State)
			a.Artifacts = outcome.Artifacts
			a.Verdict = outcome.Verdict
			a.Partial = outcome.Partial
			if outcome.Verdict != nil {
				score := outcome.Verdict.OverallScore
				a.OverallScore = &score
			}
			if outcome.Partial != nil {
				a.Error = outcome.Partial.Reason
			}
		})
	}(audit.ID)

	return *audit, nil
}

// recoverAudit keeps a panicking audit from taking the server down: the
// panic is dumped, published as run_failed and the audit marked failed.
func (s *Server) recoverAudit(id string, target core.Target, logger *logging.Logger) {
	r := recover()
	if r == nil {
		return
	}
	msg := fmt.Sprintf("audit panicked: %v", r)
	if s.crashes != nil {
		path, err := s.crashes.WriteRunCrashDump(r, id, target.RepoURL)
		if err != nil {
			logger.Error("failed to write crash dump", "error", err)
		} else {
			msg += " (dump: " + path + ")"
		}
	}
	logger.Error("audit panicked", "panic", r)
	if s.bus != nil {
		s.bus.Publish(events.NewRunFailedEvent(id, errors.New(msg)))
	}
	s.finish(id, func(a *Audit) {
		a.Status = StatusFailed
		a.Error = msg
	})
}

func (s *Server) finish(id string, fn func(*Audit)) {
	now := time.Now().UTC()
	s.jobs.update(id, func(a *Audit) {
		fn(a)
		a.FinishedAt = &now
	})
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, core.ErrValidation("INVALID_REQUEST", "limit must be a positive integer"))
			return
		}
		limit = min(n, maxListLimit)
	}

	target := r.URL.Query().Get("target")
	match := func(a Audit) bool { return target == "" || a.Target.RepoURL == target }

	var out []Audit
	seen := make(map[string]bool)
	for _, a := range s.jobs.active() {
		if match(a) {
			seen[a.ID] = true
			out = append(out, a)
		}
	}

	if s.store != nil {
		var records []*core.RunRecord
		var err error
		if target != "" {
			records, err = s.store.ListByTarget(r.Context(), target, limit)
		} else {
			records, err = s.store.List(r.Context(), limit)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		for _, rec := range records {
			seen[rec.ID] = true
			out = append(out, auditFromRecord(rec))
		}
	}
	// Audits finished here but not yet (or never) persisted.
	for _, a := range s.jobs.finished() {
		if !seen[a.ID] && match(a) {
			out = append(out, a)
		}
	}

	for i := range out {
		out[i] = out[i].summary()
	}
	if len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"audits": out, "count": len(out)})
}

func (s *Server) handleGetAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a, ok := s.jobs.get(id); ok {
		writeJSON(w, http.StatusOK, a)
		return
	}
	if s.store == nil {
		writeError(w, core.ErrNotFound("audit", id))
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auditFromRecord(rec))
}

// handleDeleteAudit forgets a finished audit, both in this process and in
// the history. Running audits cannot be deleted.
func (s *Server) handleDeleteAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, live := s.jobs.get(id)
	if live && !a.Terminal() {
		writeError(w, core.ErrValidation("AUDIT_RUNNING", fmt.Sprintf("audit %s is still running", id)))
		return
	}

	found := live
	if s.store != nil {
		if _, err := s.store.Get(r.Context(), id); err == nil {
			found = true
		} else if !core.IsCategory(err, core.ErrCatNotFound) {
			writeError(w, err)
			return
		}
	}
	if !found {
		writeError(w, core.ErrNotFound("audit", id))
		return
	}

	if s.store != nil {
		if err := s.store.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
	}
	s.jobs.remove(id)
	s.logger.Info("audit deleted", "run_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error to an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"
	if s, ok := httpStatusForDomainError(err); ok {
		status = s
		var domErr *core.DomainError
		errors.As(err, &domErr)
		code = domErr.Code
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}
