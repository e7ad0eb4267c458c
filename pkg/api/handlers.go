package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/worker"
)

// maxBodyBytes bounds request bodies. Job args have their own, smaller limit.
const maxBodyBytes = 2 << 20

// CreateJobResponse is returned by POST /jobs.
type CreateJobResponse struct {
	Job      *core.Job               `json:"job"`
	Warnings []*core.DependencyError `json:"warnings,omitempty"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest)
	}
	return n, nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Start(s.baseCtx); err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, map[string]bool{"running": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.Stop(); err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, map[string]bool{"running": false})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.sched.SystemStatus(r.Context())
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, st)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.sched.ListJobs(r.Context())
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, jobs)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var spec core.JobSpec
	if err := decode(w, r, &spec); err != nil {
		respondError(w, r, err, nil)
		return
	}
	job, warnings, err := s.sched.CreateJob(r.Context(), spec)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondCreated(w, r, CreateJobResponse{Job: job, Warnings: warnings})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.sched.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	if job == nil {
		respondError(w, r, core.NotFound("job", id), nil)
		return
	}
	respondOK(w, r, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	var upd core.JobUpdate
	if err := decode(w, r, &upd); err != nil {
		respondError(w, r, err, nil)
		return
	}
	job, err := s.sched.UpdateJob(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.sched.DeleteJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, map[string]bool{"deleted": deleted})
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := s.sched.SetJobEnabled(r.Context(), chi.URLParam(r, "id"), enabled)
		if err != nil {
			respondError(w, r, err, nil)
			return
		}
		respondOK(w, r, job)
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.sched.GetJobStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, st)
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	exec, err := s.sched.ExecuteJobNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		var data any
		if exec != nil {
			data = exec
		}
		respondError(w, r, err, data)
		return
	}
	respondOK(w, r, exec)
}

func (s *Server) handleJobExecutions(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	id := chi.URLParam(r, "id")
	job, err := s.sched.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	if job == nil {
		respondError(w, r, core.NotFound("job", id), nil)
		return
	}
	execs, err := s.sched.JobExecutions(r.Context(), id, limit)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, execs)
}

func (s *Server) handleRecentExecutions(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	execs, err := s.sched.RecentExecutions(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, execs)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, err := s.sched.GetExecution(r.Context(), id)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	if exec == nil {
		respondError(w, r, core.NotFound("execution", id), nil)
		return
	}
	respondOK(w, r, exec)
}

func (s *Server) handleValidateDependencies(w http.ResponseWriter, r *http.Request) {
	errs, err := s.sched.ValidateDependencies(r.Context())
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, map[string]any{"valid": len(errs) == 0, "errors": errs})
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, s.sched.Commands())
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, s.sched.Workers())
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var spec worker.Spec
	if err := decode(w, r, &spec); err != nil {
		respondError(w, r, err, nil)
		return
	}
	wk, err := s.sched.RegisterWorker(spec)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondCreated(w, r, wk)
}

func (s *Server) handleDeregisterWorker(w http.ResponseWriter, r *http.Request) {
	if err := s.sched.DeregisterWorker(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, map[string]bool{"deregistered": true})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.sched.Heartbeat(id); err != nil {
		respondError(w, r, err, nil)
		return
	}
	respondOK(w, r, map[string]string{"workerId": id})
}
