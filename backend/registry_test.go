package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jonwraymond/toolwrap/bind"
	"github.com/jonwraymond/toolwrap/spec"
)

type mockDriver struct {
	mu      sync.Mutex
	healthy bool
	started bool
	stopped bool
}

func (d *mockDriver) Kind() string { return "mock" }

func (d *mockDriver) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	d.healthy = true
	return nil
}

func (d *mockDriver) Invoke(context.Context, bind.Invocation, InvokeOptions) (string, error) {
	return "ok", nil
}

func (d *mockDriver) Healthy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.healthy
}

func (d *mockDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	d.healthy = false
	return nil
}

func (d *mockDriver) crash() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.healthy = false
}

func testSpec() *spec.Spec {
	return &spec.Spec{
		Name:    "test",
		Backend: spec.Backend{Type: spec.KindProcess, Process: &spec.ProcessConfig{Command: "x"}},
	}
}

func TestRegistry_GetOrCreate(t *testing.T) {
	var created atomic.Int32
	reg := NewRegistry(func(*spec.Spec) (Driver, error) {
		created.Add(1)
		return &mockDriver{}, nil
	})

	sp := testSpec()
	d1, err := reg.GetOrCreate(context.Background(), sp)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	d2, err := reg.GetOrCreate(context.Background(), sp)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if d1 != d2 {
		t.Error("GetOrCreate() should return the same instance while healthy")
	}
	if got := created.Load(); got != 1 {
		t.Errorf("factory called %d times, want 1", got)
	}
}

// Exactly one driver is constructed even when many calls race to trigger
// first use.
func TestRegistry_ConcurrentFirstUse(t *testing.T) {
	var created atomic.Int32
	reg := NewRegistry(func(*spec.Spec) (Driver, error) {
		created.Add(1)
		return &mockDriver{}, nil
	})

	sp := testSpec()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := reg.GetOrCreate(context.Background(), sp); err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := created.Load(); got != 1 {
		t.Errorf("factory called %d times under race, want 1", got)
	}
}

func TestRegistry_RespawnAfterCrash(t *testing.T) {
	var created atomic.Int32
	reg := NewRegistry(func(*spec.Spec) (Driver, error) {
		created.Add(1)
		return &mockDriver{}, nil
	})

	sp := testSpec()
	d1, _ := reg.GetOrCreate(context.Background(), sp)
	d1.(*mockDriver).crash()

	d2, err := reg.GetOrCreate(context.Background(), sp)
	if err != nil {
		t.Fatalf("GetOrCreate() after crash error = %v", err)
	}
	if d1 == d2 {
		t.Error("GetOrCreate() should replace a crashed instance")
	}
	if !d1.(*mockDriver).stopped {
		t.Error("crashed instance should be stopped before replacement")
	}
	if got := created.Load(); got != 2 {
		t.Errorf("factory called %d times, want 2", got)
	}
}

func TestRegistry_StartFailureNotCached(t *testing.T) {
	boom := errors.New("boom")
	fail := true
	reg := NewRegistry(func(*spec.Spec) (Driver, error) {
		if fail {
			return &failingDriver{err: boom}, nil
		}
		return &mockDriver{}, nil
	})

	sp := testSpec()
	if _, err := reg.GetOrCreate(context.Background(), sp); !errors.Is(err, boom) {
		t.Fatalf("GetOrCreate() error = %v, want boom", err)
	}

	fail = false
	if _, err := reg.GetOrCreate(context.Background(), sp); err != nil {
		t.Fatalf("GetOrCreate() after start failure error = %v", err)
	}
}

func TestRegistry_StopAll(t *testing.T) {
	reg := NewRegistry(func(*spec.Spec) (Driver, error) {
		return &mockDriver{}, nil
	})

	sp := testSpec()
	d, _ := reg.GetOrCreate(context.Background(), sp)

	if err := reg.StopAll(); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	if !d.(*mockDriver).stopped {
		t.Error("StopAll() should stop live drivers")
	}
	if _, err := reg.GetOrCreate(context.Background(), sp); !errors.Is(err, ErrRegistryClosed) {
		t.Errorf("GetOrCreate() after StopAll error = %v, want ErrRegistryClosed", err)
	}
}

type failingDriver struct {
	mockDriver
	err error
}

func (d *failingDriver) Start(context.Context) error { return d.err }
