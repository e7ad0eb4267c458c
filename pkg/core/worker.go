package core

import (
	"encoding/json"
	"sort"
	"time"
)

// WorkerHealth is the health state of a worker.
type WorkerHealth string

const (
	WorkerHealthy   WorkerHealth = "healthy"
	WorkerUnhealthy WorkerHealth = "unhealthy"
)

// Worker is a capacity-bounded execution slot. Host and Port describe where a
// remote executor would live; dispatch itself happens in-process.
type Worker struct {
	ID            string
	Host          string
	Port          int
	Capacity      int
	CurrentLoad   int
	Health        WorkerHealth
	LastHeartbeat time.Time
	Running       map[string]struct{}
	// InProcess workers are refreshed by the health check itself.
	InProcess bool
}

// Available reports whether the worker can take another execution.
func (w *Worker) Available() bool {
	return w.Health == WorkerHealthy && w.CurrentLoad < w.Capacity
}

// RunningIDs returns the running execution ids, sorted.
func (w *Worker) RunningIDs() []string {
	ids := make([]string, 0, len(w.Running))
	for id := range w.Running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy safe to hand outside the pool lock.
func (w *Worker) Clone() *Worker {
	c := *w
	c.Running = make(map[string]struct{}, len(w.Running))
	for id := range w.Running {
		c.Running[id] = struct{}{}
	}
	return &c
}

// MarshalJSON renders the running set as a sorted list.
func (w *Worker) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID            string       `json:"id"`
		Host          string       `json:"host"`
		Port          int          `json:"port"`
		Capacity      int          `json:"capacity"`
		CurrentLoad   int          `json:"currentLoad"`
		Health        WorkerHealth `json:"status"`
		LastHeartbeat time.Time    `json:"lastHeartbeat"`
		Running       []string     `json:"runningJobs"`
		InProcess     bool         `json:"inProcess"`
	}{w.ID, w.Host, w.Port, w.Capacity, w.CurrentLoad, w.Health, w.LastHeartbeat, w.RunningIDs(), w.InProcess})
}
