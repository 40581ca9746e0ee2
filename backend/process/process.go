// Package process implements the command-line backend driver: it spawns the
// configured executable once, detects readiness from its startup output,
// exchanges line-oriented requests over stdin/stdout, and supervises the
// process until shutdown or crash.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jonwraymond/toolwrap/backend"
	"github.com/jonwraymond/toolwrap/bind"
	"github.com/jonwraymond/toolwrap/spec"
)

// State is the lifecycle state of a process backend instance.
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateReady
	StateBusy
	StateCrashed
	StateStopped
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateCrashed:
		return "crashed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// stopGrace is how long Stop waits after SIGTERM before force-killing.
const stopGrace = 2 * time.Second

// lineBufferSize bounds spontaneous output buffered between exchanges.
const lineBufferSize = 256

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger for lifecycle and stderr events.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Driver owns one spawned backend process.
//
// The exchange mutex serializes invocations: a process backend is a single
// interactive session, so a second call waits for the lock rather than
// interleaving input/output with the first. Lifecycle state has its own
// short-held lock so that Stop and the crash watcher can transition state
// while an exchange is blocked reading output; the exchange observes the
// transition through its output stream closing.
type Driver struct {
	cfg    *spec.ProcessConfig
	logger *slog.Logger

	// exchangeMu is the exclusivity lock: one in-flight exchange at a time.
	exchangeMu sync.Mutex

	stateMu sync.Mutex
	state   State

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string   // stdout lines; closed on EOF
	exited chan struct{} // closed once the process has been reaped
}

// Compile-time check: Driver must implement backend.Driver.
var _ backend.Driver = (*Driver)(nil)

// New creates an unstarted driver for cfg.
func New(cfg *spec.ProcessConfig, opts ...Option) *Driver {
	d := &Driver{
		cfg:    cfg,
		logger: slog.Default(),
		exited: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Kind returns the backend kind.
func (d *Driver) Kind() string { return string(spec.KindProcess) }

// Healthy reports whether the driver can serve invocations.
func (d *Driver) Healthy() bool {
	s := d.currentState()
	return s == StateReady || s == StateBusy
}

// State returns the current lifecycle state.
func (d *Driver) State() State { return d.currentState() }

// Start spawns the configured executable and waits for the ready signal.
// With an empty ready signal the process is considered ready as soon as it
// is spawned. The wait is bounded by the configured startup timeout and by
// ctx, whichever ends first.
func (d *Driver) Start(ctx context.Context) error {
	d.stateMu.Lock()
	if d.state != StateNotStarted {
		s := d.state
		d.stateMu.Unlock()
		return fmt.Errorf("start: driver already %s", s)
	}
	d.state = StateStarting
	d.stateMu.Unlock()

	cmd := exec.Command(d.cfg.Command, d.cfg.Args...)
	cmd.Dir = d.cfg.Cwd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		d.setState(StateCrashed)
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		d.setState(StateCrashed)
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		d.setState(StateCrashed)
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		d.setState(StateCrashed)
		return fmt.Errorf("spawn %q: %w", d.cfg.Command, err)
	}

	d.cmd = cmd
	d.stdin = stdin
	d.lines = make(chan string, lineBufferSize)

	go d.readStdout(stdout)
	go d.logStderr(stderr)
	go d.watch()

	d.logger.Debug("backend process spawned",
		"command", d.cfg.Command, "pid", cmd.Process.Pid)

	if d.cfg.ReadySignal == "" {
		d.setState(StateReady)
		return nil
	}
	return d.awaitReady(ctx)
}

// awaitReady consumes startup output until a line contains the ready signal.
func (d *Driver) awaitReady(ctx context.Context) error {
	timeout := d.cfg.StartupTimeoutOrDefault()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-d.lines:
			if !ok {
				d.setState(StateCrashed)
				return fmt.Errorf("%w: process exited before ready signal", backend.ErrBackendCrashed)
			}
			if strings.Contains(line, d.cfg.ReadySignal) {
				d.setState(StateReady)
				d.logger.Info("backend ready", "command", d.cfg.Command)
				return nil
			}
			d.logger.Debug("backend startup output", "line", line)

		case <-timer.C:
			d.terminate()
			d.setState(StateCrashed)
			return fmt.Errorf("%w: no ready signal within %s", backend.ErrStartupTimeout, timeout)

		case <-ctx.Done():
			d.terminate()
			d.setState(StateCrashed)
			return fmt.Errorf("%w: %v", backend.ErrStartupTimeout, ctx.Err())
		}
	}
}

// Invoke writes one rendered request line and accumulates response lines
// until the end-of-response condition: the per-tool terminator line when one
// is configured, otherwise the configured inter-line silence elapsing after
// the first output line. The whole exchange is bounded by ctx; hitting the
// deadline kills the process, because a half-read exchange cannot be reused.
func (d *Driver) Invoke(ctx context.Context, inv bind.Invocation, opts backend.InvokeOptions) (string, error) {
	proc, ok := inv.(*bind.ProcessInvocation)
	if !ok {
		return "", fmt.Errorf("process driver: invalid invocation type %T", inv)
	}

	d.exchangeMu.Lock()
	defer d.exchangeMu.Unlock()

	// A crash while we waited for the lock fails this call too.
	switch s := d.currentState(); s {
	case StateReady:
	case StateCrashed:
		return "", backend.ErrBackendCrashed
	case StateStopped:
		return "", backend.ErrBackendStopped
	default:
		return "", fmt.Errorf("process driver: invoke in state %s", s)
	}

	d.setState(StateBusy)
	defer d.compareAndSetState(StateBusy, StateReady)

	// Discard output emitted outside an exchange (backend logging between
	// calls) so it cannot pollute this response.
	d.drainPending()

	if _, err := io.WriteString(d.stdin, proc.Line()+"\n"); err != nil {
		d.terminate()
		d.setState(StateCrashed)
		return "", fmt.Errorf("%w: write: %v", backend.ErrBackendCrashed, err)
	}

	return d.readResponse(ctx, opts.Terminator)
}

func (d *Driver) readResponse(ctx context.Context, terminator string) (string, error) {
	silence := d.cfg.SilenceTimeoutOrDefault()
	maxBytes := d.cfg.MaxOutputBytesOrDefault()

	timer := time.NewTimer(silence)
	timer.Stop()
	defer timer.Stop()

	var out strings.Builder
	got := false

	for {
		var silenceC <-chan time.Time
		if got && terminator == "" {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(silence)
			silenceC = timer.C
		}

		select {
		case line, ok := <-d.lines:
			if !ok {
				d.setState(StateCrashed)
				return "", backend.ErrBackendCrashed
			}
			if terminator != "" && line == terminator {
				return out.String(), nil
			}
			got = true
			// Past the cap, lines are still consumed so the framing
			// condition is reached, but the payload stops growing.
			if out.Len()+len(line)+1 <= maxBytes {
				if out.Len() > 0 {
					out.WriteByte('\n')
				}
				out.WriteString(line)
			}

		case <-silenceC:
			return out.String(), nil

		case <-ctx.Done():
			d.terminate()
			d.setState(StateCrashed)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", fmt.Errorf("%w: no end of response within budget", backend.ErrInvocationTimeout)
			}
			return "", ctx.Err()
		}
	}
}

// Stop shuts the process down: close stdin, SIGTERM, grace period, SIGKILL.
// Resources are released on every path and Stop is safe to call repeatedly.
func (d *Driver) Stop() error {
	d.stateMu.Lock()
	if d.state == StateStopped {
		d.stateMu.Unlock()
		return nil
	}
	d.state = StateStopped
	cmd := d.cmd
	stdin := d.stdin
	d.stateMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if stdin != nil {
		_ = stdin.Close()
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-d.exited:
	case <-time.After(stopGrace):
		_ = cmd.Process.Kill()
		<-d.exited
	}
	d.logger.Debug("backend process stopped", "command", d.cfg.Command)
	return nil
}

// watch reaps the process and marks the driver crashed on unexpected exit.
func (d *Driver) watch() {
	err := d.cmd.Wait()
	close(d.exited)

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.state == StateStopped {
		return
	}
	d.state = StateCrashed
	d.logger.Warn("backend process exited unexpectedly",
		"command", d.cfg.Command, "error", err)
}

// readStdout forwards stdout lines to the exchange loop. The channel is
// closed on EOF, which is how an in-flight exchange observes a crash.
func (d *Driver) readStdout(r io.Reader) {
	// The token limit must not be smaller than a plausible single line even
	// when the response cap is tiny; an over-long token would end the
	// scanner and look like a crash.
	limit := d.cfg.MaxOutputBytesOrDefault()
	if limit < 64*1024 {
		limit = 64 * 1024
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), limit)
	for scanner.Scan() {
		d.lines <- scanner.Text()
	}
	close(d.lines)
}

func (d *Driver) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		d.logger.Debug("backend stderr", "line", scanner.Text())
	}
}

// drainPending discards buffered lines without blocking.
func (d *Driver) drainPending() {
	for {
		select {
		case _, ok := <-d.lines:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// terminate force-kills the process. Used on timeout paths where the
// interactive session is no longer trustworthy.
func (d *Driver) terminate() {
	if d.cmd != nil && d.cmd.Process != nil {
		_ = d.cmd.Process.Kill()
	}
}

func (d *Driver) currentState() State {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.stateMu.Lock()
	d.state = s
	d.stateMu.Unlock()
}

// compareAndSetState transitions from expected to next only if the state has
// not been changed elsewhere (crash watcher, Stop) in the meantime.
func (d *Driver) compareAndSetState(expected, next State) {
	d.stateMu.Lock()
	if d.state == expected {
		d.state = next
	}
	d.stateMu.Unlock()
}
