// Package reload restarts the application that displays the synced calendars
// after their content changed.
package reload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/openmined/calsync/internal/utils"
)

const (
	DefaultWaitBudget   = 15 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

type State string

const (
	StateAbsent  State = "absent"
	StateIdle    State = "idle"
	StateRunning State = "running"
)

type Config struct {
	// Command is the reloader command line, split with Tokenize. Empty means
	// reloads only clear the cache files.
	Command string
	// CacheFiles are removed before each run.
	CacheFiles   []string
	WaitBudget   time.Duration
	PollInterval time.Duration
	Stdout       io.Writer
	Stderr       io.Writer
	// AfterRun is called after every run with its outcome.
	AfterRun func(err error)
}

// Reloader runs the reload command either synchronously (RunNow) or from a
// lazily started worker that coalesces requests (Request). At most one
// command runs at a time across both paths.
type Reloader struct {
	args  []string
	cfg   Config
	runMu sync.Mutex

	mu       sync.Mutex
	state    State
	running  bool
	stopped  bool
	requests chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(cfg Config) (*Reloader, error) {
	if cfg.WaitBudget <= 0 {
		cfg.WaitBudget = DefaultWaitBudget
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	r := &Reloader{
		cfg:      cfg,
		state:    StateAbsent,
		requests: make(chan struct{}, 1),
	}

	if cfg.Command != "" {
		args, err := Tokenize(cfg.Command)
		if err != nil {
			return nil, err
		}
		r.args = args
	}

	return r, nil
}

// State reports StateRunning while any run is in progress, otherwise where
// the worker is in its lifecycle.
func (r *Reloader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return StateRunning
	}
	return r.state
}

func (r *Reloader) setRunning(running bool) {
	r.mu.Lock()
	r.running = running
	r.mu.Unlock()
}

// Request asks for a reload and returns immediately. Requests made while a
// reload runs collapse into exactly one follow-up run.
func (r *Reloader) Request() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	if r.state == StateAbsent {
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.done = make(chan struct{})
		r.state = StateIdle
		go r.worker(ctx)
	}
	r.mu.Unlock()

	select {
	case r.requests <- struct{}{}:
	default:
		// a run is already pending
	}
}

func (r *Reloader) worker(ctx context.Context) {
	defer close(r.done)
	slog.Debug("reloader worker start")

	for {
		select {
		case <-ctx.Done():
			slog.Debug("reloader worker stop")
			return
		case <-r.requests:
			r.run(ctx)
		}
	}
}

// Stop cancels the worker, terminating a running command, and waits for it.
func (r *Reloader) Stop() {
	r.mu.Lock()
	r.stopped = true
	cancel, done := r.cancel, r.done
	r.state = StateAbsent
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunNow clears the cache and runs the command to completion or until the
// wait budget runs out. Failures are logged, never returned.
func (r *Reloader) RunNow(ctx context.Context) {
	r.run(ctx)
}

func (r *Reloader) run(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	// cancelled while waiting for the other path to finish
	if ctx.Err() != nil {
		return
	}

	r.setRunning(true)
	defer r.setRunning(false)

	r.ClearCache()

	log := slog.With("run", utils.TokenHex(3))
	err := r.execute(ctx, log)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Info("reloader interrupted")
	default:
		log.Warn("reloader failed", "error", err)
	}

	if r.cfg.AfterRun != nil {
		r.cfg.AfterRun(err)
	}
}

var errBudgetExceeded = errors.New("reloader exceeded its wait budget")

func (r *Reloader) execute(ctx context.Context, log *slog.Logger) error {
	if len(r.args) == 0 {
		return nil
	}

	proc, err := startProcess(r.args, r.cfg.Stdout, r.cfg.Stderr)
	if err != nil {
		return err
	}
	log.Info("reloader start", "cmd", r.args[0], "pid", proc.Pid())

	deadline := time.Now().Add(r.cfg.WaitBudget)
	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case exit := <-proc.exit:
			log.Info("reloader exit", "pid", proc.Pid(), "code", exit.Code)
			return exit.Error
		case <-ctx.Done():
			proc.killTree()
			return ctx.Err()
		case <-poll.C:
			if time.Now().Before(deadline) {
				continue
			}
			log.Warn("reloader timed out, terminating", "pid", proc.Pid(), "budget", r.cfg.WaitBudget)
			proc.killTree()
			return errBudgetExceeded
		}
	}
}

// ClearCache removes the configured cache files and directories.
func (r *Reloader) ClearCache() {
	for _, path := range r.cfg.CacheFiles {
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("reloader clear cache", "path", path, "error", err)
			continue
		}
		slog.Debug("reloader clear cache", "path", path)
	}
}
