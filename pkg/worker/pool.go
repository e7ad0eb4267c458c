package worker

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/security"
)

// DefaultHealthTimeout is how long a worker may go without a heartbeat.
const DefaultHealthTimeout = 30 * time.Second

// Spec describes a worker to register.
type Spec struct {
	ID        string `json:"id"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Capacity  int    `json:"capacity"`
	InProcess bool   `json:"inProcess"`
}

// DefaultWorkers returns the four in-process workers a pool starts with.
func DefaultWorkers() []Spec {
	return []Spec{
		{ID: "worker-1", Host: "worker-node-1.local", Port: 8080, Capacity: 5, InProcess: true},
		{ID: "worker-2", Host: "worker-node-2.local", Port: 8080, Capacity: 8, InProcess: true},
		{ID: "worker-3", Host: "worker-node-3.local", Port: 8080, Capacity: 10, InProcess: true},
		{ID: "worker-4", Host: "worker-node-4.local", Port: 8080, Capacity: 6, InProcess: true},
	}
}

// Pool tracks capacity-bounded workers and assigns executions to them.
// Every method is safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	workers map[string]*core.Worker
	config  PoolConfig
	emitter core.Emitter
	logger  *slog.Logger
}

// NewPool creates a pool. Without WithWorkers it registers DefaultWorkers.
func NewPool(opts ...PoolOption) *Pool {
	config := PoolConfig{
		HealthTimeout: DefaultHealthTimeout,
		Clock:         time.Now,
	}
	for _, opt := range opts {
		opt.ApplyPool(&config)
	}
	if config.Workers == nil {
		config.Workers = DefaultWorkers()
	}

	p := &Pool{
		workers: make(map[string]*core.Worker),
		config:  config,
		emitter: core.NopEmitter,
		logger:  slog.Default(),
	}
	if config.Emitter != nil {
		p.emitter = config.Emitter
	}
	if config.Logger != nil {
		p.logger = config.Logger
	}
	for _, spec := range config.Workers {
		if _, err := p.Register(spec); err != nil {
			p.logger.Warn("skipping worker", "worker_id", spec.ID, "error", err)
		}
	}
	return p
}

// Register adds a healthy worker. An empty id gets a generated one.
func (p *Pool) Register(spec Spec) (*core.Worker, error) {
	if spec.Capacity <= 0 {
		return nil, core.Invalid("capacity", "must be greater than zero")
	}
	if spec.ID == "" {
		spec.ID = "worker-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.workers[spec.ID]; exists {
		return nil, core.Invalid("id", fmt.Sprintf("worker %q already registered", spec.ID))
	}
	w := &core.Worker{
		ID:            spec.ID,
		Host:          spec.Host,
		Port:          spec.Port,
		Capacity:      security.ClampCapacity(spec.Capacity),
		Health:        core.WorkerHealthy,
		LastHeartbeat: p.config.Clock(),
		Running:       make(map[string]struct{}),
		InProcess:     spec.InProcess,
	}
	p.workers[w.ID] = w
	p.logger.Debug("worker registered", "worker_id", w.ID, "capacity", w.Capacity)
	return w.Clone(), nil
}

// Deregister removes a worker. Executions still running on it finish normally;
// their later release is a no-op.
func (p *Pool) Deregister(workerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.workers[workerID]; !ok {
		return core.NotFound("worker", workerID)
	}
	delete(p.workers, workerID)
	return nil
}

// Get returns a snapshot of one worker.
func (p *Pool) Get(workerID string) (*core.Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[workerID]
	if !ok {
		return nil, false
	}
	return w.Clone(), true
}

// Workers returns snapshots of every worker, ordered by id.
func (p *Pool) Workers() []*core.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*core.Worker, 0, len(p.workers))
	for _, w := range p.workers {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Select picks the best available worker for a job of the given priority.
func (p *Pool) Select(priority core.Priority) (*core.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.selectLocked(priority)
	if w == nil {
		return nil, core.ErrNoWorkerAvailable
	}
	return w.Clone(), nil
}

// selectLocked filters to healthy workers with spare capacity, then prefers
// the lowest load. Ties go to the largest worker for high priority and the
// smallest otherwise.
func (p *Pool) selectLocked(priority core.Priority) *core.Worker {
	var candidates []*core.Worker
	for _, w := range p.workers {
		if w.Available() {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CurrentLoad != b.CurrentLoad {
			return a.CurrentLoad < b.CurrentLoad
		}
		if a.Capacity != b.Capacity {
			if priority == core.PriorityHigh {
				return a.Capacity > b.Capacity
			}
			return a.Capacity < b.Capacity
		}
		return a.ID < b.ID
	})
	return candidates[0]
}

// Assign places execID on workerID. Assigning the same execution twice is a no-op.
func (p *Pool) Assign(workerID, execID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[workerID]
	if !ok {
		return core.NotFound("worker", workerID)
	}
	return assignLocked(w, execID)
}

func assignLocked(w *core.Worker, execID string) error {
	if _, running := w.Running[execID]; running {
		return nil
	}
	if !w.Available() {
		return fmt.Errorf("%w: %s", core.ErrWorkerUnavailable, w.ID)
	}
	w.Running[execID] = struct{}{}
	w.CurrentLoad++
	return nil
}

// Acquire selects a worker and assigns execID to it in one step.
func (p *Pool) Acquire(priority core.Priority, execID string) (*core.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.selectLocked(priority)
	if w == nil {
		return nil, core.ErrNoWorkerAvailable
	}
	if err := assignLocked(w, execID); err != nil {
		return nil, err
	}
	return w.Clone(), nil
}

// Release frees execID's slot on workerID. It reports whether anything was
// released; repeated calls and unknown workers are no-ops.
func (p *Pool) Release(workerID, execID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[workerID]
	if !ok {
		return false
	}
	if _, running := w.Running[execID]; !running {
		return false
	}
	delete(w.Running, execID)
	if w.CurrentLoad > 0 {
		w.CurrentLoad--
	}
	return true
}

// Heartbeat records a heartbeat and brings an unhealthy worker back.
func (p *Pool) Heartbeat(workerID string) error {
	p.mu.Lock()
	w, ok := p.workers[workerID]
	if !ok {
		p.mu.Unlock()
		return core.NotFound("worker", workerID)
	}
	now := p.config.Clock()
	w.LastHeartbeat = now
	recovered := w.Health == core.WorkerUnhealthy
	if recovered {
		w.Health = core.WorkerHealthy
	}
	emitter := p.emitter
	p.mu.Unlock()

	if recovered {
		p.logger.Info("worker recovered", "worker_id", workerID)
		emitter.Emit(&core.WorkerHealthChanged{WorkerID: workerID, Health: core.WorkerHealthy, Timestamp: now})
	}
	return nil
}

// CheckHealth marks workers unhealthy whose last heartbeat is older than the
// timeout and returns their ids. In-process workers heartbeat here first.
func (p *Pool) CheckHealth(now time.Time) []string {
	p.mu.Lock()
	var changed []string
	for _, w := range p.workers {
		if w.InProcess {
			w.LastHeartbeat = now
			continue
		}
		if w.Health == core.WorkerHealthy && now.Sub(w.LastHeartbeat) > p.config.HealthTimeout {
			w.Health = core.WorkerUnhealthy
			changed = append(changed, w.ID)
		}
	}
	emitter := p.emitter
	p.mu.Unlock()

	sort.Strings(changed)
	for _, id := range changed {
		p.logger.Warn("worker marked unhealthy", "worker_id", id)
		emitter.Emit(&core.WorkerHealthChanged{WorkerID: id, Health: core.WorkerUnhealthy, Timestamp: now})
	}
	return changed
}

// Utilization summarizes pool capacity.
type Utilization struct {
	TotalWorkers    int                 `json:"totalWorkers"`
	HealthyWorkers  int                 `json:"healthyWorkers"`
	TotalCapacity   int                 `json:"totalCapacity"`
	TotalLoad       int                 `json:"totalLoad"`
	UtilizationRate float64             `json:"utilizationRate"`
	Workers         []WorkerUtilization `json:"workers"`
}

// WorkerUtilization is the per-worker row of Utilization.
type WorkerUtilization struct {
	ID              string            `json:"id"`
	Host            string            `json:"host"`
	Health          core.WorkerHealth `json:"status"`
	Capacity        int               `json:"capacity"`
	CurrentLoad     int               `json:"currentLoad"`
	UtilizationRate float64           `json:"utilizationRate"`
	RunningJobs     int               `json:"runningJobs"`
	LastHeartbeat   time.Time         `json:"lastHeartbeat"`
}

func rate(load, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(load) / float64(capacity) * 100
}

// Stats reports load across the pool. Rates are percentages.
func (p *Pool) Stats() Utilization {
	var u Utilization
	for _, w := range p.Workers() {
		u.TotalWorkers++
		if w.Health == core.WorkerHealthy {
			u.HealthyWorkers++
		}
		u.TotalCapacity += w.Capacity
		u.TotalLoad += w.CurrentLoad
		u.Workers = append(u.Workers, WorkerUtilization{
			ID:              w.ID,
			Host:            w.Host,
			Health:          w.Health,
			Capacity:        w.Capacity,
			CurrentLoad:     w.CurrentLoad,
			UtilizationRate: rate(w.CurrentLoad, w.Capacity),
			RunningJobs:     len(w.Running),
			LastHeartbeat:   w.LastHeartbeat,
		})
	}
	u.UtilizationRate = rate(u.TotalLoad, u.TotalCapacity)
	return u
}
