package depgraph

import (
	"context"
	"time"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

// DefaultFreshness is how old a dependency's last completion may be and
// still satisfy dependents.
const DefaultFreshness = 24 * time.Hour

// State describes one dependency of a job.
type State string

const (
	StateSatisfied      State = "satisfied"
	StateMissing        State = "missing"
	StateNeverCompleted State = "never_completed"
	StateStale          State = "stale"
)

// DependencyStatus is one row of a Summary.
type DependencyStatus struct {
	JobID         string     `json:"jobId"`
	Name          string     `json:"name,omitempty"`
	State         State      `json:"state"`
	LastCompleted *time.Time `json:"lastCompleted,omitempty"`
}

// Summary reports the dependency state of one job.
type Summary struct {
	JobID        string             `json:"jobId"`
	Satisfied    bool               `json:"satisfied"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// Graph answers dependency questions over the jobs and executions in a store.
type Graph struct {
	store     core.Storage
	freshness time.Duration
	clock     func() time.Time
}

// Option configures a Graph.
type Option func(*Graph)

// WithFreshness sets the freshness window.
func WithFreshness(d time.Duration) Option {
	return func(g *Graph) {
		if d > 0 {
			g.freshness = d
		}
	}
}

// WithClock sets the time source freshness is measured against.
func WithClock(now func() time.Time) Option {
	return func(g *Graph) {
		if now != nil {
			g.clock = now
		}
	}
}

// New creates a Graph over store.
func New(store core.Storage, opts ...Option) *Graph {
	g := &Graph{store: store, freshness: DefaultFreshness, clock: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CanExecute reports whether jobID exists, is enabled and has every
// dependency satisfied. An unknown job cannot execute.
func (g *Graph) CanExecute(ctx context.Context, jobID string) (bool, error) {
	job, err := g.store.GetJob(ctx, jobID)
	if err != nil || job == nil || !job.Enabled {
		return false, err
	}
	s, err := g.summarize(ctx, job)
	if err != nil {
		return false, err
	}
	return s.Satisfied, nil
}

// Summary reports the state of each of jobID's dependencies.
func (g *Graph) Summary(ctx context.Context, jobID string) (*Summary, error) {
	job, err := g.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, core.NotFound("job", jobID)
	}
	return g.summarize(ctx, job)
}

func (g *Graph) summarize(ctx context.Context, job *core.Job) (*Summary, error) {
	now := g.clock()
	s := &Summary{JobID: job.ID, Satisfied: true, Dependencies: make([]DependencyStatus, 0, len(job.Dependencies))}
	for _, depID := range job.Dependencies {
		row := DependencyStatus{JobID: depID}
		dep, err := g.store.GetJob(ctx, depID)
		if err != nil {
			return nil, err
		}
		switch {
		case dep == nil:
			row.State = StateMissing
		default:
			row.Name = dep.Name
			last, err := g.store.LastCompletedExecution(ctx, depID)
			if err != nil {
				return nil, err
			}
			switch {
			case last == nil || last.EndTime == nil:
				row.State = StateNeverCompleted
			case now.Sub(*last.EndTime) > g.freshness:
				row.State = StateStale
				row.LastCompleted = last.EndTime
			default:
				row.State = StateSatisfied
				row.LastCompleted = last.EndTime
			}
		}
		if row.State != StateSatisfied {
			s.Satisfied = false
		}
		s.Dependencies = append(s.Dependencies, row)
	}
	return s, nil
}

// snapshot loads the dependency lists of every job.
func (g *Graph) snapshot(ctx context.Context) ([]*core.Job, map[string][]string, error) {
	jobs, err := g.store.ListJobs(ctx)
	if err != nil {
		return nil, nil, err
	}
	edges := make(map[string][]string, len(jobs))
	for _, j := range jobs {
		edges[j.ID] = j.Dependencies
	}
	return jobs, edges, nil
}

// HasCycle reports whether a dependency cycle is reachable from jobID.
func (g *Graph) HasCycle(ctx context.Context, jobID string) (bool, error) {
	_, edges, err := g.snapshot(ctx)
	if err != nil {
		return false, err
	}
	return hasCycle(edges, jobID), nil
}

// hasCycle walks depth-first from id. Both sets belong to one call: onStack
// holds the current path, so shared ancestors reached by two routes are not
// cycles, and done holds nodes whose whole subtree is known to be acyclic,
// so each node is expanded at most once.
func hasCycle(edges map[string][]string, id string) bool {
	onStack := make(map[string]bool)
	done := make(map[string]bool)
	var visit func(string) bool
	visit = func(id string) bool {
		if onStack[id] {
			return true
		}
		if done[id] {
			return false
		}
		deps, ok := edges[id]
		if !ok {
			return false
		}
		onStack[id] = true
		for _, dep := range deps {
			if visit(dep) {
				return true
			}
		}
		delete(onStack, id)
		done[id] = true
		return false
	}
	return visit(id)
}

// ValidateAll reports circular and dangling dependencies across all jobs.
// The result is advisory; nothing is rejected.
func (g *Graph) ValidateAll(ctx context.Context) ([]*core.DependencyError, error) {
	jobs, edges, err := g.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	errs := []*core.DependencyError{}
	for _, j := range jobs {
		errs = append(errs, check(edges, j.ID)...)
	}
	return errs, nil
}

// Check reports the dependency problems of a single job.
func (g *Graph) Check(ctx context.Context, jobID string) ([]*core.DependencyError, error) {
	_, edges, err := g.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := edges[jobID]; !ok {
		return nil, core.NotFound("job", jobID)
	}
	return check(edges, jobID), nil
}

func check(edges map[string][]string, id string) []*core.DependencyError {
	var errs []*core.DependencyError
	if hasCycle(edges, id) {
		errs = append(errs, &core.DependencyError{Kind: core.DependencyCircular, JobID: id})
	}
	for _, dep := range edges[id] {
		if _, ok := edges[dep]; !ok {
			errs = append(errs, &core.DependencyError{Kind: core.DependencyDangling, JobID: id, DependencyID: dep})
		}
	}
	return errs
}

// Dependents returns the ids of jobs that list jobID as a dependency.
func (g *Graph) Dependents(ctx context.Context, jobID string) ([]string, error) {
	jobs, _, err := g.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, j := range jobs {
		for _, dep := range j.Dependencies {
			if dep == jobID {
				out = append(out, j.ID)
				break
			}
		}
	}
	return out, nil
}
