package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/errtable/pkg/errstore"
)

// ErrSinkNotRegistered is returned by [Registry.CreateSink] when no factory
// has been registered under the requested sink name.
var ErrSinkNotRegistered = errors.New("config: sink not registered")

// SinkFactory constructs a sink from its configuration entry.
type SinkFactory func(ctx context.Context, entry SinkEntry) (errstore.Sink, error)

// Registry maps sink names to their constructor functions. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]SinkFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]SinkFactory)}
}

// RegisterSink registers a sink factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSink(name string, factory SinkFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = factory
}

// CreateSink instantiates a sink using the factory registered under entry.Name.
// Returns [ErrSinkNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSink(ctx context.Context, entry SinkEntry) (errstore.Sink, error) {
	r.mu.RLock()
	factory, ok := r.sinks[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSinkNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateSinks instantiates every entry in order. On failure, sinks created so
// far are closed and the error names the failing entry.
func (r *Registry) CreateSinks(ctx context.Context, entries []SinkEntry) ([]errstore.Sink, error) {
	sinks := make([]errstore.Sink, 0, len(entries))
	for i, e := range entries {
		s, err := r.CreateSink(ctx, e)
		if err != nil {
			for _, prev := range sinks {
				_ = prev.Close()
			}
			return nil, fmt.Errorf("config: sinks[%d]: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// Names returns the registered sink names in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sinks))
	for n := range r.sinks {
		names = append(names, n)
	}
	return names
}
