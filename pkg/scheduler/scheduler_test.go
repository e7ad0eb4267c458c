package scheduler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-cron-jobs/pkg/command"
	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/execution"
	"github.com/jdziat/simple-cron-jobs/pkg/storage"
	"github.com/jdziat/simple-cron-jobs/pkg/worker"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var noStorageRetry = execution.RetryConfig{MaxAttempts: 1}

// noon is a fire instant of every schedule used in these tests.
var noon = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *fakeClock) {
	t.Helper()
	store, err := storage.OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &fakeClock{now: noon}
	reg := command.NewRegistry()
	require.NoError(t, command.RegisterBuiltins(reg, command.WithWorkScale(0), command.WithHealthCheckFailureRate(0)))

	base := []Option{
		WithClock(clock.Now),
		WithCommands(reg),
		WithStorageRetry(noStorageRetry),
	}
	s := New(store, append(base, opts...)...)
	t.Cleanup(func() {
		if s.Running() {
			_ = s.Stop()
		}
		s.Wait()
	})
	return s, clock
}

func spec(id string, deps ...string) core.JobSpec {
	return core.JobSpec{
		ID:           id,
		Name:         "Job " + id,
		Schedule:     "every 5 minutes",
		Command:      "echo",
		Args:         map[string]any{"message": id},
		Dependencies: deps,
	}
}

func mustCreate(t *testing.T, s *Scheduler, sp core.JobSpec) *core.Job {
	t.Helper()
	job, _, err := s.CreateJob(context.Background(), sp)
	require.NoError(t, err)
	return job
}

func failing(err error) command.Handler {
	return command.HandlerFunc(func(context.Context, map[string]any) (any, error) { return nil, err })
}

func executionsOf(t *testing.T, s *Scheduler, jobID string) []*core.Execution {
	t.Helper()
	execs, err := s.JobExecutions(context.Background(), jobID, 0)
	require.NoError(t, err)
	return execs
}

// ---------------------------------------------------------------------------
// Job operations
// ---------------------------------------------------------------------------

func TestCreateJob_Defaults(t *testing.T) {
	s, _ := newTestScheduler(t)

	job, warnings, err := s.CreateJob(context.Background(), spec("backup-database"))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, core.PriorityMedium, job.Priority)
	assert.True(t, job.Enabled)
	assert.Equal(t, core.DefaultRetryPolicy(), job.Retry)
	assert.Equal(t, noon, job.CreatedAt)
	assert.NotNil(t, job.Dependencies)
	assert.True(t, s.rules.Has("backup-database"))

	stored, err := s.GetJob(context.Background(), "backup-database")
	require.NoError(t, err)
	assert.Equal(t, job.Name, stored.Name)
}

func TestCreateJob_Validation(t *testing.T) {
	s, _ := newTestScheduler(t)

	bad := []core.JobSpec{
		{Name: "x", Schedule: "every 5 minutes", Command: "echo"},
		{ID: "x", Schedule: "every 5 minutes", Command: "echo"},
		{ID: "x", Name: "x", Schedule: "every 90 minutes", Command: "echo"},
		{ID: "x", Name: "x", Schedule: "fortnightly", Command: "echo"},
		{ID: "x", Name: "x", Schedule: "every 5 minutes", Command: "   "},
		{ID: "x", Name: "x", Schedule: "every 5 minutes", Command: "9lives"},
		{ID: "x", Name: "x", Schedule: "every 5 minutes", Command: "echo", Priority: "urgent"},
		{ID: "x", Name: "x", Schedule: "every 5 minutes", Command: "echo", Dependencies: []string{"x"}},
		{ID: "x", Name: "x", Schedule: "every 5 minutes", Command: "echo", Retry: &core.RetryPolicy{MaxRetries: -1}},
		{ID: "x", Name: "x", Schedule: "every 5 minutes", Command: "echo", Retry: &core.RetryPolicy{Kind: "linear"}},
	}
	for _, sp := range bad {
		_, _, err := s.CreateJob(context.Background(), sp)
		assert.ErrorIs(t, err, core.ErrValidation, "%+v", sp)
	}

	jobs, err := s.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCreateJob_Duplicate(t *testing.T) {
	s, _ := newTestScheduler(t)
	mustCreate(t, s, spec("a"))

	_, _, err := s.CreateJob(context.Background(), spec("a"))
	assert.ErrorIs(t, err, core.ErrDuplicateJob)
}

func TestCreateJob_DependencyWarnings(t *testing.T) {
	s, _ := newTestScheduler(t)

	job, warnings, err := s.CreateJob(context.Background(), spec("generate-report", "process-logs"))
	require.NoError(t, err, "forward references do not block creation")
	require.NotNil(t, job)
	require.Len(t, warnings, 1)
	assert.Equal(t, core.DependencyDangling, warnings[0].Kind)
	assert.Equal(t, "process-logs", warnings[0].DependencyID)

	_, warnings, err = s.CreateJob(context.Background(), spec("process-logs", "generate-report"))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, core.DependencyCircular, warnings[0].Kind)

	errs, err := s.ValidateDependencies(context.Background())
	require.NoError(t, err)
	assert.Len(t, errs, 2)
}

func TestCreateJob_Disabled(t *testing.T) {
	s, _ := newTestScheduler(t)
	sp := spec("off")
	off := false
	sp.Enabled = &off

	mustCreate(t, s, sp)
	assert.False(t, s.rules.Has("off"))
}

func TestUpdateJob(t *testing.T) {
	s, _ := newTestScheduler(t)
	mustCreate(t, s, spec("a"))

	name := "Renamed"
	sched := "daily at 2 AM"
	job, err := s.UpdateJob(context.Background(), "a", core.JobUpdate{Name: &name, Schedule: &sched})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", job.Name)
	assert.Equal(t, "daily at 2 AM", job.Schedule)

	next, ok := s.rules.NextFire("a", noon)
	require.True(t, ok)
	assert.True(t, next.Equal(time.Date(2024, 7, 2, 2, 0, 0, 0, time.UTC)), next)

	bad := "whenever"
	_, err = s.UpdateJob(context.Background(), "a", core.JobUpdate{Schedule: &bad})
	assert.ErrorIs(t, err, core.ErrValidation)

	stored, _ := s.GetJob(context.Background(), "a")
	assert.Equal(t, "daily at 2 AM", stored.Schedule, "failed update leaves the job alone")

	_, err = s.UpdateJob(context.Background(), "ghost", core.JobUpdate{Name: &name})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateJob_PriorityIsNormalized(t *testing.T) {
	s, _ := newTestScheduler(t)
	sp := spec("a")
	sp.Priority = "HIGH"
	job := mustCreate(t, s, sp)
	assert.Equal(t, core.PriorityHigh, job.Priority)

	low := core.Priority(" Low ")
	job, err := s.UpdateJob(context.Background(), "a", core.JobUpdate{Priority: &low})
	require.NoError(t, err)
	assert.Equal(t, core.PriorityLow, job.Priority)

	bogus := core.Priority("urgent")
	_, err = s.UpdateJob(context.Background(), "a", core.JobUpdate{Priority: &bogus})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSetJobEnabled(t *testing.T) {
	s, _ := newTestScheduler(t)
	mustCreate(t, s, spec("a"))

	job, err := s.SetJobEnabled(context.Background(), "a", false)
	require.NoError(t, err)
	assert.False(t, job.Enabled)
	assert.False(t, s.rules.Has("a"))

	_, err = s.SetJobEnabled(context.Background(), "a", true)
	require.NoError(t, err)
	assert.True(t, s.rules.Has("a"))
}

func TestDeleteJob(t *testing.T) {
	s, _ := newTestScheduler(t)
	mustCreate(t, s, spec("a"))
	_, err := s.ExecuteJobNow(context.Background(), "a")
	require.NoError(t, err)

	deleted, err := s.DeleteJob(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, s.rules.Has("a"))

	_, err = s.DeleteJob(context.Background(), "a")
	assert.ErrorIs(t, err, core.ErrNotFound)

	job, err := s.GetJob(context.Background(), "a")
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Len(t, executionsOf(t, s, "a"), 1, "history is kept")
}

func TestDeleteJob_WarnsAboutDependents(t *testing.T) {
	var buf bytes.Buffer
	s, _ := newTestScheduler(t, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	mustCreate(t, s, spec("extract"))
	mustCreate(t, s, spec("report", "extract"))

	_, err := s.DeleteJob(context.Background(), "extract")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "job deleted with dependents")
	assert.Contains(t, buf.String(), "report")

	buf.Reset()
	_, err = s.DeleteJob(context.Background(), "report")
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "with dependents")

	errs, err := s.graph.ValidateAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, errs)
}

// ---------------------------------------------------------------------------
// Tick
// ---------------------------------------------------------------------------

func TestTick_DispatchesDueJobOnce(t *testing.T) {
	s, clock := newTestScheduler(t)
	mustCreate(t, s, spec("a"))

	assert.Equal(t, 1, s.Tick(context.Background()))
	s.Wait()

	execs := executionsOf(t, s, "a")
	require.Len(t, execs, 1)
	assert.Equal(t, core.StatusCompleted, execs[0].Status)
	assert.Equal(t, "Echo: a", execs[0].Result)
	assert.True(t, execs[0].ScheduledTime.Equal(noon))

	clock.Advance(10 * time.Second)
	assert.Zero(t, s.Tick(context.Background()), "same fire is not dispatched twice")

	clock.Set(noon.Add(5 * time.Minute))
	assert.Equal(t, 1, s.Tick(context.Background()))
	s.Wait()
	assert.Len(t, executionsOf(t, s, "a"), 2)
}

func TestTick_NothingDueBetweenFires(t *testing.T) {
	s, clock := newTestScheduler(t)
	mustCreate(t, s, spec("a"))
	clock.Set(noon.Add(2 * time.Minute))

	assert.Zero(t, s.Tick(context.Background()))
	assert.Empty(t, executionsOf(t, s, "a"))
}

func TestTick_WaitsForDependencies(t *testing.T) {
	s, _ := newTestScheduler(t)
	events := s.Events()
	defer s.Unsubscribe(events)

	mustCreate(t, s, spec("process-logs"))
	depSpec := spec("generate-report", "process-logs")
	depSpec.Schedule = "every 10 minutes"
	mustCreate(t, s, depSpec)

	assert.Equal(t, 1, s.Tick(context.Background()), "only the independent job runs")
	s.Wait()

	execs := executionsOf(t, s, "generate-report")
	require.Len(t, execs, 1)
	assert.Equal(t, core.StatusWaiting, execs[0].Status)

	var sawWaiting bool
	for len(events) > 0 {
		if _, ok := (<-events).(*core.ExecutionWaiting); ok {
			sawWaiting = true
		}
	}
	assert.True(t, sawWaiting)

	status, err := s.GetJobStatus(context.Background(), "generate-report")
	require.NoError(t, err)
	assert.True(t, status.CanExecute, "process-logs completed in the same tick")
}

func TestTick_FailureIsRetriedUntilExhausted(t *testing.T) {
	s, _ := newTestScheduler(t)
	require.NoError(t, s.RegisterCommand("flaky", failing(errors.New("upstream down"))))

	sp := spec("a")
	sp.Command = "flaky"
	sp.Retry = &core.RetryPolicy{Kind: core.RetryFixed, MaxRetries: 2}
	mustCreate(t, s, sp)

	require.Equal(t, 1, s.Tick(context.Background()))
	s.Wait()

	exec := executionsOf(t, s, "a")[0]
	assert.Equal(t, core.StatusRetrying, exec.Status)
	assert.Equal(t, 1, exec.RetryCount)
	assert.Equal(t, 1, s.retries.Pending())

	for i := 0; i < 2; i++ {
		require.Equal(t, 1, s.DrainRetries(context.Background()))
		s.Wait()
	}
	assert.Zero(t, s.DrainRetries(context.Background()))

	execs := executionsOf(t, s, "a")
	require.Len(t, execs, 1, "retries reuse the execution")
	assert.Equal(t, core.StatusFailed, execs[0].Status)
	assert.Equal(t, 2, execs[0].RetryCount)
	assert.Equal(t, "upstream down", execs[0].Error)
	assert.Zero(t, s.retries.Pending())
}

func TestTick_RetrySucceeds(t *testing.T) {
	s, _ := newTestScheduler(t)
	var calls atomic.Int32
	require.NoError(t, s.RegisterCommand("second-time", command.HandlerFunc(func(context.Context, map[string]any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("first attempt fails")
		}
		return "ok", nil
	})))
	sp := spec("a")
	sp.Command = "second-time"
	sp.Retry = &core.RetryPolicy{Kind: core.RetryExponential, MaxRetries: 3}
	mustCreate(t, s, sp)

	s.Tick(context.Background())
	s.Wait()
	s.DrainRetries(context.Background())
	s.Wait()

	exec := executionsOf(t, s, "a")[0]
	assert.Equal(t, core.StatusCompleted, exec.Status)
	assert.Equal(t, 1, exec.RetryCount)
	assert.Equal(t, "ok", exec.Result)
}

func TestTick_NoRetryErrorIsFinal(t *testing.T) {
	s, _ := newTestScheduler(t)
	require.NoError(t, s.RegisterCommand("fatal", failing(core.NoRetry(errors.New("bad config")))))
	sp := spec("a")
	sp.Command = "fatal"
	mustCreate(t, s, sp)

	s.Tick(context.Background())
	s.Wait()

	exec := executionsOf(t, s, "a")[0]
	assert.Equal(t, core.StatusFailed, exec.Status)
	assert.Zero(t, s.retries.Pending())
}

func TestTick_RetryAfterDelay(t *testing.T) {
	s, clock := newTestScheduler(t)
	require.NoError(t, s.RegisterCommand("limited", failing(core.RetryAfter(time.Minute, errors.New("429")))))
	sp := spec("a")
	sp.Command = "limited"
	mustCreate(t, s, sp)

	s.Tick(context.Background())
	s.Wait()

	assert.Zero(t, s.DrainRetries(context.Background()), "not due yet")
	clock.Advance(time.Minute)
	assert.Equal(t, 1, s.DrainRetries(context.Background()))
	s.Wait()
}

func TestTick_RetryOfDeletedJobFails(t *testing.T) {
	s, _ := newTestScheduler(t)
	require.NoError(t, s.RegisterCommand("flaky", failing(errors.New("nope"))))
	sp := spec("a")
	sp.Command = "flaky"
	sp.Retry = &core.RetryPolicy{Kind: core.RetryFixed, MaxRetries: 3}
	mustCreate(t, s, sp)

	s.Tick(context.Background())
	s.Wait()
	_, err := s.DeleteJob(context.Background(), "a")
	require.NoError(t, err)

	assert.Zero(t, s.DrainRetries(context.Background()))
	exec := executionsOf(t, s, "a")[0]
	assert.Equal(t, core.StatusFailed, exec.Status)
	assert.Equal(t, "job deleted before retry", exec.Error)
}

func TestTick_PanickingCommandDoesNotStopOthers(t *testing.T) {
	s, _ := newTestScheduler(t)
	require.NoError(t, s.RegisterCommand("explode", command.HandlerFunc(func(context.Context, map[string]any) (any, error) {
		panic("boom")
	})))
	bad := spec("bad")
	bad.Command = "explode"
	bad.Retry = &core.RetryPolicy{Kind: core.RetryFixed, MaxRetries: 0}
	mustCreate(t, s, bad)
	mustCreate(t, s, spec("good"))

	assert.Equal(t, 2, s.Tick(context.Background()))
	s.Wait()

	assert.Equal(t, core.StatusFailed, executionsOf(t, s, "bad")[0].Status)
	assert.Equal(t, core.StatusCompleted, executionsOf(t, s, "good")[0].Status)
}

func TestTick_NoWorkerAvailableGoesToRetry(t *testing.T) {
	s, _ := newTestScheduler(t, WithWorkers())
	mustCreate(t, s, spec("a"))

	s.Tick(context.Background())
	s.Wait()

	exec := executionsOf(t, s, "a")[0]
	assert.Equal(t, core.StatusRetrying, exec.Status)
	assert.Equal(t, 1, s.retries.Pending())
}

// ---------------------------------------------------------------------------
// Manual execution
// ---------------------------------------------------------------------------

func TestExecuteJobNow(t *testing.T) {
	s, _ := newTestScheduler(t)
	mustCreate(t, s, spec("a"))

	exec, err := s.ExecuteJobNow(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, exec.Status)
	assert.Equal(t, "Echo: a", exec.Result)

	got, err := s.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.Equal(t, "Manual execution requested", got.Logs[0].Message)
}

func TestExecuteJobNow_Errors(t *testing.T) {
	s, _ := newTestScheduler(t)

	_, err := s.ExecuteJobNow(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)

	off := spec("off")
	disabled := false
	off.Enabled = &disabled
	mustCreate(t, s, off)
	_, err = s.ExecuteJobNow(context.Background(), "off")
	assert.ErrorIs(t, err, core.ErrJobDisabled)

	mustCreate(t, s, spec("upstream"))
	mustCreate(t, s, spec("downstream", "upstream"))
	_, err = s.ExecuteJobNow(context.Background(), "downstream")
	assert.ErrorIs(t, err, core.ErrDependenciesUnsatisfied)
	assert.Empty(t, executionsOf(t, s, "downstream"))

	_, err = s.ExecuteJobNow(context.Background(), "upstream")
	require.NoError(t, err)
	_, err = s.ExecuteJobNow(context.Background(), "downstream")
	assert.NoError(t, err, "satisfied after upstream completes")
}

func TestExecuteJobNow_CommandErrorIsNotRetried(t *testing.T) {
	s, _ := newTestScheduler(t)
	sp := spec("a")
	sp.Command = "nonexistent"
	mustCreate(t, s, sp)

	exec, err := s.ExecuteJobNow(context.Background(), "a")
	assert.ErrorIs(t, err, core.ErrUnknownCommand)
	require.NotNil(t, exec)
	assert.Equal(t, core.StatusFailed, exec.Status)
	assert.Zero(t, s.retries.Pending())
}

func TestExecuteJobNow_CallerCancelStillEndsTerminal(t *testing.T) {
	s, _ := newTestScheduler(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.RegisterCommand("hangup", command.HandlerFunc(func(runCtx context.Context, _ map[string]any) (any, error) {
		cancel()
		if err := runCtx.Err(); err != nil {
			return nil, err
		}
		return "finished", nil
	})))
	sp := spec("a")
	sp.Command = "hangup"
	mustCreate(t, s, sp)

	exec, err := s.ExecuteJobNow(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, exec.Status)

	stored, err := s.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.True(t, stored.IsTerminal())
	assert.Equal(t, core.StatusCompleted, stored.Status)
}

func TestExecuteJobNow_NoWorker(t *testing.T) {
	s, _ := newTestScheduler(t, WithWorkers())
	mustCreate(t, s, spec("a"))

	exec, err := s.ExecuteJobNow(context.Background(), "a")
	assert.ErrorIs(t, err, core.ErrNoWorkerAvailable)
	assert.Equal(t, core.StatusFailed, exec.Status)
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

func TestGetJobStatus(t *testing.T) {
	s, clock := newTestScheduler(t)
	mustCreate(t, s, spec("a"))
	for i := 0; i < 7; i++ {
		_, err := s.ExecuteJobNow(context.Background(), "a")
		require.NoError(t, err)
	}
	clock.Advance(time.Minute)

	st, err := s.GetJobStatus(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, st.CanExecute)
	require.NotNil(t, st.NextFireTime)
	assert.True(t, st.NextFireTime.Equal(noon.Add(5*time.Minute)))
	assert.Len(t, st.RecentExecutions, 5)
	assert.True(t, st.Dependencies.Satisfied)

	_, err = s.GetJobStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSystemStatus(t *testing.T) {
	s, _ := newTestScheduler(t, WithWorkers(worker.Spec{ID: "w1", Capacity: 4, InProcess: true}))
	high := spec("a")
	high.Priority = core.PriorityHigh
	mustCreate(t, s, high)
	mustCreate(t, s, spec("b", "missing"))
	_, err := s.ExecuteJobNow(context.Background(), "a")
	require.NoError(t, err)

	st, err := s.SystemStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, 2, st.Jobs.Total)
	assert.Equal(t, 2, st.Jobs.Enabled)
	assert.Equal(t, int64(1), st.Jobs.ByPriority[core.PriorityHigh])
	assert.Equal(t, int64(1), st.Executions[core.StatusCompleted])
	assert.Equal(t, 4, st.Workers.TotalCapacity)
	assert.Len(t, st.Upcoming, 2)
	assert.Len(t, st.DependencyErrors, 1)
	assert.Contains(t, st.Commands, "echo")
}

func TestRecentExecutionsDefaultLimit(t *testing.T) {
	s, _ := newTestScheduler(t)
	mustCreate(t, s, spec("a"))
	for i := 0; i < 3; i++ {
		_, err := s.ExecuteJobNow(context.Background(), "a")
		require.NoError(t, err)
	}

	execs, err := s.RecentExecutions(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, execs, 3)

	execs, err = s.RecentExecutions(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, execs, 2)
}

// ---------------------------------------------------------------------------
// Workers
// ---------------------------------------------------------------------------

func TestCheckWorkers(t *testing.T) {
	s, clock := newTestScheduler(t, WithWorkers(worker.Spec{ID: "remote", Capacity: 2}))

	clock.Advance(31 * time.Second)
	assert.Equal(t, []string{"remote"}, s.CheckWorkers(context.Background()))

	require.NoError(t, s.Heartbeat("remote"))
	assert.Equal(t, core.WorkerHealthy, s.Workers()[0].Health)

	w, err := s.RegisterWorker(worker.Spec{ID: "extra", Capacity: 3, InProcess: true})
	require.NoError(t, err)
	assert.Equal(t, "extra", w.ID)
	require.NoError(t, s.DeregisterWorker("extra"))
}

func TestCheckWorkers_Retention(t *testing.T) {
	s, clock := newTestScheduler(t, WithRetention(time.Hour))
	mustCreate(t, s, spec("a"))
	_, err := s.ExecuteJobNow(context.Background(), "a")
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	s.CheckWorkers(context.Background())
	assert.Len(t, executionsOf(t, s, "a"), 1)

	clock.Advance(time.Hour)
	s.CheckWorkers(context.Background())
	assert.Empty(t, executionsOf(t, s, "a"))
}

// ---------------------------------------------------------------------------
// Loop
// ---------------------------------------------------------------------------

func TestStartStop_StateMachine(t *testing.T) {
	s, _ := newTestScheduler(t)

	assert.ErrorIs(t, s.Stop(), core.ErrNotRunning)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), core.ErrAlreadyRunning)
	assert.True(t, s.Running())

	st, err := s.SystemStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
	require.NotNil(t, st.StartedAt)

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
	assert.ErrorIs(t, s.Stop(), core.ErrNotRunning)

	require.NoError(t, s.Start(context.Background()), "restart after stop")
	require.NoError(t, s.Stop())
}

func TestStop_DropsQueuedRetries(t *testing.T) {
	s, _ := newTestScheduler(t)
	require.NoError(t, s.RegisterCommand("flaky", failing(errors.New("upstream down"))))

	sp := spec("a")
	sp.Command = "flaky"
	sp.Retry = &core.RetryPolicy{Kind: core.RetryFixed, MaxRetries: 3, BaseDelay: time.Hour}
	mustCreate(t, s, sp)

	require.Equal(t, 1, s.Tick(context.Background()))
	s.Wait()
	require.Equal(t, 1, s.retries.Pending())

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	assert.Zero(t, s.retries.Pending())
}

func TestStart_LoopDispatchesAndStops(t *testing.T) {
	s, _ := newTestScheduler(t,
		WithTickInterval(5*time.Millisecond),
		WithRetryInterval(5*time.Millisecond),
		WithHealthInterval(5*time.Millisecond),
	)
	events := s.Events()
	defer s.Unsubscribe(events)
	mustCreate(t, s, spec("a"))

	require.NoError(t, s.Start(context.Background()))

	deadline := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case e := <-events:
			if c, ok := e.(*core.ExecutionCompleted); ok {
				assert.Equal(t, "a", c.Execution.JobID)
				done = true
			}
		case <-deadline:
			t.Fatal("no execution completed")
		}
	}

	require.NoError(t, s.Stop())
	assert.Len(t, executionsOf(t, s, "a"), 1, "the fake clock never reaches the next fire")
}

func TestStart_LoadsStoredJobs(t *testing.T) {
	s, _ := newTestScheduler(t)
	now := noon
	require.NoError(t, s.store.CreateJob(context.Background(), &core.Job{
		ID: "preloaded", Name: "Preloaded", Schedule: "every 5 minutes", Command: "echo",
		Priority: core.PriorityLow, Retry: core.DefaultRetryPolicy(), Enabled: true,
		CreatedAt: now, UpdatedAt: now,
	}))
	assert.False(t, s.rules.Has("preloaded"))

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()
	assert.True(t, s.rules.Has("preloaded"))
}

func TestListenerReceivesEvents(t *testing.T) {
	var count atomic.Int32
	s, _ := newTestScheduler(t, WithListener(core.EmitterFunc(func(core.Event) { count.Add(1) })))
	mustCreate(t, s, spec("a"))

	_, err := s.ExecuteJobNow(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int32(2), count.Load(), "started and completed")
}
