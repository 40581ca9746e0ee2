package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jonwraymond/toolwrap/spec"
)

// ErrRegistryClosed is returned by GetOrCreate after StopAll.
var ErrRegistryClosed = errors.New("backend registry closed")

// Factory constructs an unstarted driver for a specification. The registry
// owns calling Start on the result.
type Factory func(sp *spec.Spec) (Driver, error)

// Registry maps loaded specifications to their single live backend instance.
// Instances are created lazily on first use, shared across concurrent tool
// calls, and recreated after a crash.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	factory Factory
	closed  bool
}

// entry guards creation for one specification. Its lock is distinct from the
// driver's own invocation lock: creation of an instance never blocks
// exchanges on other instances, and an in-flight exchange never blocks
// another specification's startup.
type entry struct {
	mu     sync.Mutex
	driver Driver
}

// NewRegistry creates a registry that builds drivers with factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		factory: factory,
	}
}

// GetOrCreate returns the live driver for sp, constructing and starting one
// if none exists or the previous instance is no longer healthy. It is
// idempotent under concurrent first use: exactly one driver is constructed
// even when multiple tool calls race, and racing callers share the started
// instance. Startup is bounded by ctx.
func (r *Registry) GetOrCreate(ctx context.Context, sp *spec.Spec) (Driver, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	e, ok := r.entries[sp.Name]
	if !ok {
		e = &entry{}
		r.entries[sp.Name] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.driver != nil {
		if e.driver.Healthy() {
			return e.driver, nil
		}
		// Crashed instance: release whatever it still holds and respawn.
		_ = e.driver.Stop()
		e.driver = nil
	}

	d, err := r.factory(sp)
	if err != nil {
		return nil, fmt.Errorf("construct backend for %q: %w", sp.Name, err)
	}
	if err := d.Start(ctx); err != nil {
		_ = d.Stop()
		return nil, err
	}
	e.driver = d
	return d, nil
}

// Get returns the current driver for the named specification, if any.
// It never constructs one.
func (r *Registry) Get(name string) (Driver, bool) {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.driver == nil {
		return nil, false
	}
	return e.driver, true
}

// Names returns the names of specifications with a registry entry, sorted
// for deterministic output.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// StopAll stops every live driver and closes the registry. Subsequent
// GetOrCreate calls fail with ErrRegistryClosed. The first stop error is
// returned; all drivers are stopped regardless.
func (r *Registry) StopAll() error {
	r.mu.Lock()
	r.closed = true
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	var firstErr error
	for _, e := range entries {
		e.mu.Lock()
		if e.driver != nil {
			if err := e.driver.Stop(); err != nil && firstErr == nil {
				firstErr = err
			}
			e.driver = nil
		}
		e.mu.Unlock()
	}
	return firstErr
}
