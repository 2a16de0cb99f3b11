// Package client wires configuration, stores, providers, the reloader, the
// sync engine and the control plane into a running daemon.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/calsync/internal/client/calstore"
	"github.com/openmined/calsync/internal/client/config"
	"github.com/openmined/calsync/internal/client/controlplane"
	"github.com/openmined/calsync/internal/client/reload"
	"github.com/openmined/calsync/internal/client/sync"
	"github.com/openmined/calsync/internal/fileio"
	"github.com/openmined/calsync/internal/ical"
	"github.com/openmined/calsync/internal/remote"
	"golang.org/x/sync/errgroup"
)

const (
	StopNoticeSummary = "CalSync service stopped"
	shutdownTimeout   = 10 * time.Second
)

type Options struct {
	Mode    sync.RunMode
	Offline bool
	// ControlPlane starts the HTTP control plane alongside the engine.
	ControlPlane bool
	// Provider overrides the scheme router, mostly for tests.
	Provider remote.Provider
	// ReloadOutput receives the reload command's stdout and stderr.
	ReloadOutput io.Writer
}

type Daemon struct {
	config   *config.Config
	opts     Options
	lock     *stateLock
	journal  *sync.Journal
	router   *remote.Router
	reloader *reload.Reloader
	engine   *sync.Engine
	cps      *controlplane.Server
}

// NewDaemon builds every component from a validated config. Entries whose
// store or remote scheme cannot be set up are skipped with an error log.
func NewDaemon(cfg *config.Config, opts Options) (*Daemon, error) {
	d := &Daemon{
		config: cfg,
		opts:   opts,
		lock:   newStateLock(cfg.LockPath()),
	}

	provider := opts.Provider
	if provider == nil {
		d.router = remote.NewRouter(&remote.RouterConfig{CacheTTL: cfg.RemoteCacheTTL})
		provider = d.router
	}

	entries := d.buildEntries(cfg)
	if len(entries) == 0 {
		return nil, config.ErrNoEntries
	}

	output := opts.ReloadOutput
	if output == nil {
		output = os.Stdout
	}
	reloader, err := reload.New(reload.Config{
		Command:    cfg.Reloader,
		CacheFiles: cfg.AppCacheFiles,
		WaitBudget: cfg.ReloaderWait,
		Stdout:     output,
		Stderr:     output,
		AfterRun: func(err error) {
			d.engine.RecordReload(err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("reloader command: %w", err)
	}
	d.reloader = reloader

	journal := sync.NewJournal(cfg.JournalPath())
	if err := journal.Open(); err != nil {
		slog.Warn("sync journal disabled", "error", err)
	} else {
		d.journal = journal
	}

	d.engine = sync.NewEngine(sync.Config{
		LocalInterval:  cfg.LocalPollInterval,
		FastInterval:   cfg.FastPollInterval,
		FastTicks:      cfg.FastPollTicks,
		RemoteInterval: cfg.RemotePollInterval,
		WatchLocal:     cfg.WatchLocal,
	}, entries, provider, reloader, d.journal)

	if opts.ControlPlane {
		cps, err := controlplane.New(&controlplane.Config{
			Addr:      cfg.HTTPAddr,
			AuthToken: cfg.HTTPToken,
			Mode:      d.modeName(),
		}, d.engine, reloader)
		if err != nil {
			d.closeJournal()
			return nil, fmt.Errorf("control plane: %w", err)
		}
		d.cps = cps
	}

	return d, nil
}

func (d *Daemon) buildEntries(cfg *config.Config) []*sync.Entry {
	retrier := fileio.NewRetrier()
	entries := make([]*sync.Entry, 0, len(cfg.Entries))

	for _, ec := range cfg.Entries {
		if d.router != nil {
			if err := d.router.Supports(ec.RemoteURL); err != nil {
				slog.Error("config entry skipped", "entry", ec.Index, "error", err)
				continue
			}
		}

		store, err := calstore.New(ec.LocalPath, retrier, calstore.WithPattern(cfg.MultiFilePattern))
		if err != nil {
			slog.Error("config entry skipped", "entry", ec.Index, "error", err)
			continue
		}

		creds := remote.Credentials{Username: ec.Username, Password: ec.Password}
		entries = append(entries, sync.NewEntry(ec.Index, store, ec.RemoteURL, creds))
		slog.Info("sync entry configured", "entry", ec.Index, "local", store.Path(), "remote", ec.RemoteURL)
	}

	return entries
}

func (d *Daemon) modeName() string {
	if d.opts.Offline && d.opts.Mode == sync.ModeContinuous {
		return "offline"
	}
	return d.opts.Mode.String()
}

func (d *Daemon) Engine() *sync.Engine {
	return d.engine
}

// Start holds the state lock and runs until ctx is done, or, in one-shot
// mode, until the single pass completes.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.lock.Lock(); err != nil {
		d.closeJournal()
		return err
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			slog.Warn("state unlock", "error", err)
		}
	}()

	defer d.closeJournal()

	slog.Info("calsync daemon start", "mode", d.modeName(), "entries", len(d.engine.Entries()), "stateDir", d.config.StateDir)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Create errgroup with derived context
	eg, egCtx := errgroup.WithContext(runCtx)

	eg.Go(func() error {
		// a finished one-shot pass ends the daemon
		defer cancel()
		if err := d.engine.Run(egCtx, d.opts.Mode, d.opts.Offline); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sync engine: %w", err)
		}
		return nil
	})

	if d.cps != nil {
		eg.Go(func() error {
			if err := d.cps.Start(egCtx); err != nil {
				return fmt.Errorf("failed to start control plane: %w", err)
			}
			return nil
		})

		eg.Go(func() error {
			<-egCtx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stopCancel()
			return d.cps.Stop(stopCtx)
		})
	}

	err := eg.Wait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	d.shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("calsync daemon failure", "error", err)
		return err
	}

	slog.Info("calsync daemon stopped")
	return nil
}

func (d *Daemon) shutdown(ctx context.Context) {
	d.reloader.Stop()

	if d.router != nil {
		if err := d.router.Wait(ctx); err != nil {
			slog.Warn("pending remote notifications abandoned", "error", err)
		}
	}

	if d.opts.Mode == sync.ModeContinuous && !d.opts.Offline && d.config.StopNotice {
		d.writeStopNotices(ctx)
	}
}

func (d *Daemon) closeJournal() {
	if d.journal == nil {
		return
	}
	if err := d.journal.Close(); err != nil {
		slog.Warn("sync journal close", "error", err)
	}
	d.journal = nil
}

func (d *Daemon) writeStopNotices(ctx context.Context) {
	now := time.Now()
	for _, entry := range d.engine.Entries() {
		notice := ical.Notice(uuid.NewString(), StopNoticeSummary, now)
		if err := entry.Local.SaveNotice(ctx, notice); err != nil {
			slog.Error("stop notice", "entry", entry.Index, "error", err)
			continue
		}
		slog.Info("stop notice written", "entry", entry.Index, "local", entry.Local.Path())
	}
}
