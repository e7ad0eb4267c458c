package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// Response is the envelope every JSON endpoint writes.
type Response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func respondOK(w http.ResponseWriter, r *http.Request, data any) {
	respondJSON(w, r, http.StatusOK, Response{Success: true, Data: data})
}

func respondCreated(w http.ResponseWriter, r *http.Request, data any) {
	respondJSON(w, r, http.StatusCreated, Response{Success: true, Data: data})
}

// respondError maps err to a status code. data, when non-nil, is returned
// alongside the error, e.g. the failed execution of a manual run.
func respondError(w http.ResponseWriter, r *http.Request, err error, data any) {
	respondJSON(w, r, statusFor(err), Response{Success: false, Data: data, Error: err.Error()})
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	resp.RequestID = middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrJobArgsTooLarge), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrDuplicateJob), errors.Is(err, core.ErrAlreadyRunning), errors.Is(err, core.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, core.ErrJobDisabled), errors.Is(err, core.ErrDependenciesUnsatisfied), errors.Is(err, core.ErrCommand):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrNoWorkerAvailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
