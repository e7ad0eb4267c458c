package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-cron-jobs/pkg/command"
	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/scheduler"
	"github.com/jdziat/simple-cron-jobs/pkg/storage"
	"github.com/jdziat/simple-cron-jobs/pkg/worker"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	RequestID string          `json:"requestId"`
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *scheduler.Scheduler) {
	t.Helper()
	store, err := storage.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := command.NewRegistry()
	require.NoError(t, command.RegisterBuiltins(reg, command.WithWorkScale(0)))
	s := scheduler.New(store, scheduler.WithCommands(reg))
	t.Cleanup(func() {
		if s.Running() {
			_ = s.Stop()
		}
	})
	return New(s, opts...), s
}

func call(t *testing.T, h http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

const backupJob = `{
	"id": "backup-database",
	"name": "Database Backup",
	"schedule": "daily at 2 AM",
	"command": "backup",
	"priority": "high",
	"retryPolicy": {"kind": "exponential", "maxRetries": 3, "baseDelay": 5000},
	"args": {"source": "/var/lib/postgresql/data"}
}`

// ---------------------------------------------------------------------------
// Jobs
// ---------------------------------------------------------------------------

func TestJobLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	code, env := call(t, srv, http.MethodPost, "/api/v1/jobs", backupJob)
	require.Equal(t, http.StatusCreated, code, env.Error)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	created := decodeData[CreateJobResponse](t, env)
	assert.Equal(t, "backup-database", created.Job.ID)
	assert.Equal(t, core.PriorityHigh, created.Job.Priority)
	assert.Equal(t, 5*time.Second, created.Job.Retry.BaseDelay)

	code, env = call(t, srv, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]core.Job](t, env), 1)

	code, env = call(t, srv, http.MethodPatch, "/api/v1/jobs/backup-database", map[string]any{"name": "Nightly Backup"})
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "Nightly Backup", decodeData[core.Job](t, env).Name)

	code, env = call(t, srv, http.MethodPost, "/api/v1/jobs/backup-database/disable", nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, decodeData[core.Job](t, env).Enabled)

	code, env = call(t, srv, http.MethodPost, "/api/v1/jobs/backup-database/run", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.False(t, env.Success)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/jobs/backup-database/enable", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, srv, http.MethodDelete, "/api/v1/jobs/backup-database", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[map[string]bool](t, env)["deleted"])

	code, _ = call(t, srv, http.MethodGet, "/api/v1/jobs/backup-database", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCreateJob_Errors(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _ = call(t, srv, http.MethodPost, "/api/v1/jobs", backupJob)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate", backupJob, http.StatusConflict},
		{"bad schedule", `{"id":"x","name":"X","schedule":"sometimes","command":"echo"}`, http.StatusBadRequest},
		{"malformed json", `{"id":`, http.StatusBadRequest},
		{"unknown field", `{"id":"x","name":"X","schedule":"every 5 minutes","command":"echo","cron":"*"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := call(t, srv, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, tt.want, code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestCreateJob_ReturnsWarnings(t *testing.T) {
	srv, _ := newTestServer(t)
	code, env := call(t, srv, http.MethodPost, "/api/v1/jobs", core.JobSpec{
		ID: "report", Name: "Report", Schedule: "daily at 6 AM", Command: "echo",
		Dependencies: []string{"process-logs"},
	})
	require.Equal(t, http.StatusCreated, code)
	resp := decodeData[CreateJobResponse](t, env)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, core.DependencyDangling, resp.Warnings[0].Kind)

	code, env = call(t, srv, http.MethodGet, "/api/v1/dependencies/validate", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"valid":false`)
}

func TestUpdateJob_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	code, _ := call(t, srv, http.MethodPatch, "/api/v1/jobs/ghost", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, srv, http.MethodDelete, "/api/v1/jobs/ghost", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

// ---------------------------------------------------------------------------
// Executions
// ---------------------------------------------------------------------------

func TestRunJob(t *testing.T) {
	srv, s := newTestServer(t)
	require.NoError(t, s.RegisterCommand("broken", command.HandlerFunc(func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("disk full")
	})))
	for _, id := range []string{"hello", "broken"} {
		cmd := "echo"
		if id == "broken" {
			cmd = "broken"
		}
		code, env := call(t, srv, http.MethodPost, "/api/v1/jobs", core.JobSpec{ID: id, Name: id, Schedule: "every 5 minutes", Command: cmd})
		require.Equal(t, http.StatusCreated, code, env.Error)
	}

	code, env := call(t, srv, http.MethodPost, "/api/v1/jobs/hello/run", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	exec := decodeData[core.Execution](t, env)
	assert.Equal(t, core.StatusCompleted, exec.Status)
	assert.Equal(t, "Echo: Hello World", exec.Result)

	code, env = call(t, srv, http.MethodGet, "/api/v1/executions/"+exec.ID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, exec.ID, decodeData[core.Execution](t, env).ID)

	code, env = call(t, srv, http.MethodPost, "/api/v1/jobs/broken/run", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Error, "disk full")
	assert.Equal(t, core.StatusFailed, decodeData[core.Execution](t, env).Status)

	code, env = call(t, srv, http.MethodGet, "/api/v1/executions?limit=1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]core.Execution](t, env), 1)

	code, env = call(t, srv, http.MethodGet, "/api/v1/jobs/hello/executions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]core.Execution](t, env), 1)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/jobs/ghost/executions", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/executions?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodGet, "/api/v1/executions/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRunJob_DependenciesUnsatisfied(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, spec := range []core.JobSpec{
		{ID: "upstream", Name: "Up", Schedule: "every 5 minutes", Command: "echo"},
		{ID: "downstream", Name: "Down", Schedule: "every 5 minutes", Command: "echo", Dependencies: []string{"upstream"}},
	} {
		code, _ := call(t, srv, http.MethodPost, "/api/v1/jobs", spec)
		require.Equal(t, http.StatusCreated, code)
	}

	code, env := call(t, srv, http.MethodPost, "/api/v1/jobs/downstream/run", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Error, "dependencies not satisfied")

	code, env = call(t, srv, http.MethodGet, "/api/v1/jobs/downstream/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"canExecute":false`)
}

// ---------------------------------------------------------------------------
// System
// ---------------------------------------------------------------------------

func TestStartStop(t *testing.T) {
	srv, _ := newTestServer(t)

	code, _ := call(t, srv, http.MethodPost, "/api/v1/scheduler/stop", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/scheduler/start", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodPost, "/api/v1/scheduler/start", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env := call(t, srv, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"running":true`)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/scheduler/stop", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestCommands(t *testing.T) {
	srv, _ := newTestServer(t)
	code, env := call(t, srv, http.MethodGet, "/api/v1/commands", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Subset(t, decodeData[[]string](t, env), []string{"calculate", "echo", "sleep"})
}

func TestWorkers(t *testing.T) {
	srv, _ := newTestServer(t)

	code, env := call(t, srv, http.MethodGet, "/api/v1/workers", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]map[string]any](t, env), len(worker.DefaultWorkers()))

	code, env = call(t, srv, http.MethodPost, "/api/v1/workers", worker.Spec{ID: "remote-1", Host: "10.0.0.5", Port: 9000, Capacity: 2})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/workers", worker.Spec{ID: "bad"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/workers/remote-1/heartbeat", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodPost, "/api/v1/workers/ghost/heartbeat", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = call(t, srv, http.MethodDelete, "/api/v1/workers/remote-1", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = call(t, srv, http.MethodDelete, "/api/v1/workers/remote-1", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHealthzAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "# metrics")
	})
	srv, _ := newTestServer(t, WithMetricsHandler(metrics))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.Invalid("name", "required"), http.StatusBadRequest},
		{core.NotFound("job", "x"), http.StatusNotFound},
		{core.ErrDuplicateJob, http.StatusConflict},
		{core.ErrAlreadyRunning, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", core.ErrJobDisabled), http.StatusUnprocessableEntity},
		{&core.CommandError{Command: "echo", Err: errors.New("x")}, http.StatusUnprocessableEntity},
		{core.ErrNoWorkerAvailable, http.StatusServiceUnavailable},
		{errors.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
