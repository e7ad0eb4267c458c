package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
	"github.com/jdziat/simple-cron-jobs/pkg/internal/handler"
	"github.com/jdziat/simple-cron-jobs/pkg/security"
)

// Handler runs one command invocation. The result must be JSON-serializable.
type Handler interface {
	Run(ctx context.Context, args map[string]any) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// Run calls f.
func (f HandlerFunc) Run(ctx context.Context, args map[string]any) (any, error) {
	return f(ctx, args)
}

// Func wraps a typed function as a Handler. The function takes an optional
// context.Context and one argument the job's args are decoded into, and
// returns error or (T, error).
//
//	command.Func(func(ctx context.Context, a struct{ Path string }) (int, error) { ... })
func Func(fn any) (Handler, error) {
	h, err := handler.NewHandler(fn)
	if err != nil {
		return nil, err
	}
	return HandlerFunc(h.Execute), nil
}

// MustFunc is like Func but panics on an invalid signature.
func MustFunc(fn any) Handler {
	h, err := Func(fn)
	if err != nil {
		panic(fmt.Sprintf("command: %v", err))
	}
	return h
}

// Registry maps command names to handlers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds name to h, replacing any earlier binding.
func (r *Registry) Register(name string, h Handler) error {
	if err := security.ValidateCommandName(name); err != nil {
		return err
	}
	if h == nil {
		return core.Invalid("handler", "cannot be nil")
	}
	r.mu.Lock()
	r.handlers[name] = h
	r.mu.Unlock()
	return nil
}

// Lookup returns the handler bound to name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Resolve finds the handler for a job command string by its first token.
func (r *Registry) Resolve(command string) (string, Handler, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("%w: empty command", core.ErrUnknownCommand)
	}
	name := fields[0]
	h, ok := r.Lookup(name)
	if !ok {
		return name, nil, fmt.Errorf("%w: %s", core.ErrUnknownCommand, name)
	}
	return name, h, nil
}

// Names returns the registered command names in ascending order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}
