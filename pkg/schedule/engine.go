package schedule

import (
	"sort"
	"sync"
	"time"
)

// Defaults for due evaluation.
const (
	DefaultPollWindow = 60 * time.Second
	DefaultTolerance  = 30 * time.Second
)

// Fire is one scheduled trigger of a job.
type Fire struct {
	JobID string    `json:"jobId"`
	At    time.Time `json:"at"`
}

// Engine tracks the rules of every schedulable job and reports which are due.
type Engine struct {
	mu        sync.Mutex
	loc       *time.Location
	window    time.Duration
	tolerance time.Duration
	rules     map[string]Rule
	lastFire  map[string]time.Time
}

// Option configures an Engine.
type Option interface {
	apply(*Engine)
}

type optionFunc func(*Engine)

func (f optionFunc) apply(e *Engine) { f(e) }

// WithLocation sets the zone wall-clock schedules are evaluated in. Default UTC.
func WithLocation(loc *time.Location) Option {
	return optionFunc(func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	})
}

// WithPollWindow sets how far back due evaluation starts looking.
func WithPollWindow(d time.Duration) Option {
	return optionFunc(func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	})
}

// WithTolerance sets how close to now a fire must be to count as due.
func WithTolerance(d time.Duration) Option {
	return optionFunc(func(e *Engine) {
		if d > 0 {
			e.tolerance = d
		}
	})
}

// NewEngine creates an empty Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		loc:       time.UTC,
		window:    DefaultPollWindow,
		tolerance: DefaultTolerance,
		rules:     make(map[string]Rule),
		lastFire:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt.apply(e)
	}
	return e
}

// Location returns the zone schedules are evaluated in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Parse parses expr in the engine's location without registering it.
func (e *Engine) Parse(expr string) (Rule, error) {
	return ParseIn(expr, e.loc)
}

// Add registers or replaces the rule for jobID.
// Changing the expression forgets the last fire.
func (e *Engine) Add(jobID, expr string) error {
	rule, err := e.Parse(expr)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.rules[jobID]; ok && old.String() != rule.String() {
		delete(e.lastFire, jobID)
	}
	e.rules[jobID] = rule
	return nil
}

// Remove unregisters jobID.
func (e *Engine) Remove(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rules, jobID)
	delete(e.lastFire, jobID)
}

// Has reports whether jobID is registered.
func (e *Engine) Has(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.rules[jobID]
	return ok
}

// Len returns the number of registered rules.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rules)
}

// NextFire returns the next fire of jobID at or after now.
func (e *Engine) NextFire(jobID string, now time.Time) (time.Time, bool) {
	e.mu.Lock()
	rule, ok := e.rules[jobID]
	e.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return rule.Next(now), true
}

// Due returns the jobs due at now, ordered by fire time then id.
// A given fire instant is reported at most once per job.
func (e *Engine) Due(now time.Time) []Fire {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fires []Fire
	for id, rule := range e.rules {
		at, ok := DueAt(rule, now, e.window, e.tolerance)
		if !ok {
			continue
		}
		if last, seen := e.lastFire[id]; seen && !at.After(last) {
			continue
		}
		e.lastFire[id] = at
		fires = append(fires, Fire{JobID: id, At: at})
	}
	sortFires(fires)
	return fires
}

// Upcoming returns the next fire of each job after now, soonest first, at most n.
func (e *Engine) Upcoming(now time.Time, n int) []Fire {
	e.mu.Lock()
	fires := make([]Fire, 0, len(e.rules))
	for id, rule := range e.rules {
		if at := rule.Next(now); !at.IsZero() {
			fires = append(fires, Fire{JobID: id, At: at})
		}
	}
	e.mu.Unlock()

	sortFires(fires)
	if n > 0 && len(fires) > n {
		fires = fires[:n]
	}
	return fires
}

func sortFires(fires []Fire) {
	sort.Slice(fires, func(i, j int) bool {
		if !fires[i].At.Equal(fires[j].At) {
			return fires[i].At.Before(fires[j].At)
		}
		return fires[i].JobID < fires[j].JobID
	})
}
