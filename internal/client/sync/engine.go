// Package sync keeps each configured local calendar consistent with its
// remote counterpart by polling both sides.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/calsync/internal/ical"
	"github.com/openmined/calsync/internal/remote"
	"github.com/openmined/calsync/internal/utils"
)

var (
	ErrEntryNotFound      = errors.New("sync: entry not found")
	ErrJournalUnavailable = errors.New("sync: journal not available")
)

type RunMode int

const (
	ModeContinuous RunMode = iota
	ModeOneShot
)

func (m RunMode) String() string {
	if m == ModeOneShot {
		return "oneshot"
	}
	return "continuous"
}

// Reloader is the part of the reload trigger the engine drives.
type Reloader interface {
	Request()
	RunNow(ctx context.Context)
}

type Config struct {
	LocalInterval  time.Duration
	FastInterval   time.Duration
	FastTicks      int
	RemoteInterval time.Duration
	WatchLocal     bool
}

type Engine struct {
	cfg      Config
	entries  []*Entry
	byIndex  map[int]*Entry
	provider remote.Provider
	reloader Reloader
	status   *Status
	journal  *Journal

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool

	// wakes the offline loop; entry loops read their own channels
	kick chan struct{}

	now func() time.Time
}

// NewEngine builds an engine. journal may be nil.
func NewEngine(cfg Config, entries []*Entry, provider remote.Provider, reloader Reloader, journal *Journal) *Engine {
	if cfg.RemoteInterval <= 0 {
		cfg.RemoteInterval = DefaultRemoteInterval
	}
	if cfg.LocalInterval <= 0 {
		cfg.LocalInterval = DefaultLocalInterval
	}

	e := &Engine{
		cfg:      cfg,
		entries:  entries,
		byIndex:  make(map[int]*Entry, len(entries)),
		provider: provider,
		reloader: reloader,
		status:   NewStatus(),
		journal:  journal,
		kick:     make(chan struct{}, 1),
		now:      time.Now,
	}

	for _, entry := range entries {
		entry.regime = NewRegimeScheduler(cfg.FastInterval, cfg.LocalInterval, cfg.FastTicks)
		e.byIndex[entry.Index] = entry
		e.status.Register(entry.Index, entry.Local.Path(), entry.RemoteURL)
	}

	return e
}

func (e *Engine) Entries() []*Entry {
	return e.entries
}

func (e *Engine) Status() *Status {
	return e.status
}

func (e *Engine) Journal() *Journal {
	return e.journal
}

// EntryStatus returns a snapshot of every entry, ordered by index.
func (e *Engine) EntryStatus() []EntryStatus {
	return e.status.All()
}

func (e *Engine) History(entry, limit int) ([]JournalEvent, error) {
	if e.journal == nil {
		return nil, ErrJournalUnavailable
	}
	return e.journal.History(entry, limit)
}

// Run drives the entries in the given mode until ctx is done. One-shot mode
// makes exactly one pass; offline continuous mode repeats that pass every
// remote interval; otherwise every entry gets its own loop.
func (e *Engine) Run(ctx context.Context, mode RunMode, offline bool) error {
	if mode == ModeOneShot || offline {
		return e.RunOffline(ctx, mode == ModeOneShot)
	}

	if err := e.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	e.Stop()
	return nil
}

// Start launches one loop per entry.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("sync engine already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true

	slog.Info("sync engine start", "entries", len(e.entries), "remoteInterval", e.cfg.RemoteInterval, "localInterval", e.cfg.LocalInterval)

	for _, entry := range e.entries {
		if e.cfg.WatchLocal {
			e.watchEntry(ctx, entry)
		}

		e.wg.Add(1)
		go func(entry *Entry) {
			defer e.wg.Done()
			e.entryLoop(ctx, entry)
		}(entry)
	}

	return nil
}

// Stop cancels the entry loops and waits for them.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.running = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.wg.Wait()
	slog.Info("sync engine stopped")
}

// Wake makes one entry tick now and check its remote out of cycle.
func (e *Engine) Wake(index int) error {
	entry, ok := e.byIndex[index]
	if !ok {
		return fmt.Errorf("%w: %d", ErrEntryNotFound, index)
	}
	entry.Wake(true)
	e.kickOffline()
	return nil
}

func (e *Engine) WakeAll() {
	for _, entry := range e.entries {
		entry.Wake(true)
	}
	e.kickOffline()
}

func (e *Engine) kickOffline() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *Engine) entryLoop(ctx context.Context, entry *Entry) {
	slog.Info("sync entry start", "entry", entry.Index, "local", entry.Local.Path(), "remote", entry.RemoteURL)
	defer slog.Info("sync entry stop", "entry", entry.Index)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-entry.wake:
			timer.Stop()
		}

		if entry.forceRemote.Swap(false) {
			entry.lastRemoteCheck = time.Time{}
		}

		changed, err := e.tick(ctx, entry)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("sync entry tick", "entry", entry.Index, "error", err)
			e.status.SetError(entry.Index, err)
		} else {
			e.status.SetTick(entry)
		}

		if changed && e.reloader != nil {
			e.reloader.Request()
		}

		timer.Reset(entry.regime.Next())
	}
}

// tick runs one local check followed by one remote check. It reports whether
// the local store was rewritten from the remote.
func (e *Engine) tick(ctx context.Context, entry *Entry) (bool, error) {
	now := e.now()

	if entry.Local.Exists() {
		stamp, err := entry.Local.ModTime()
		if err != nil {
			return false, fmt.Errorf("local stamp: %w", err)
		}

		switch {
		case !entry.localObserved:
			data, err := entry.Local.Load(ctx)
			if err != nil {
				return false, fmt.Errorf("local load: %w", err)
			}
			entry.localObserved = true
			entry.lastLocalStamp = stamp
			if entry.lastKnown == nil {
				entry.lastKnown = data
			}
			slog.Debug("sync entry local observed", "entry", entry.Index, "size", humanize.Bytes(uint64(len(data))))

		case !stamp.Equal(entry.lastLocalStamp):
			data, err := entry.Local.Load(ctx)
			if err != nil {
				return false, fmt.Errorf("local load: %w", err)
			}
			entry.lastLocalStamp = stamp
			entry.regime.EnterFast()

			if !ical.Equivalent(data, entry.lastKnown) {
				entry.lastKnown = data
				slog.Info("sync entry local change", "entry", entry.Index, "size", humanize.Bytes(uint64(len(data))))
				e.provider.NotifyChanged(ctx, entry.request(data))
				e.record(entry.Index, EventPush, len(data))
				e.status.SetPush(entry.Index)

				// the remote is checked on the following tick
				entry.lastRemoteCheck = time.Time{}
				return false, nil
			}
		}
	}

	if now.Sub(entry.lastRemoteCheck) < e.cfg.RemoteInterval {
		return false, nil
	}
	entry.lastRemoteCheck = now

	cal, err := e.provider.GetCalendar(ctx, entry.request(nil))
	if err != nil {
		return false, fmt.Errorf("remote fetch: %w", err)
	}
	if cal.Stamp == entry.lastRemoteStamp {
		return false, nil
	}

	data, err := cal.Bytes()
	if err != nil {
		return false, fmt.Errorf("remote read: %w", err)
	}
	if cal.IsError() {
		slog.Warn("sync entry remote unavailable", "entry", entry.Index)
		return false, nil
	}
	entry.lastRemoteStamp = cal.Stamp

	if ical.Equivalent(data, entry.lastKnown) {
		return false, nil
	}

	if err := entry.Local.Save(ctx, data); err != nil {
		return false, fmt.Errorf("local save: %w", err)
	}
	entry.lastKnown = data
	e.adoptLocalStamp(entry)
	entry.regime.EnterFast()

	slog.Info("sync entry remote change", "entry", entry.Index, "size", humanize.Bytes(uint64(len(data))))
	e.record(entry.Index, EventPull, len(data))
	e.status.SetPull(entry.Index)
	return true, nil
}

// adoptLocalStamp records the stamp of a write made by the engine so the
// write is not mistaken for a local edit.
func (e *Engine) adoptLocalStamp(entry *Entry) {
	stamp, err := entry.Local.ModTime()
	if err != nil {
		return
	}
	entry.lastLocalStamp = stamp
	entry.localObserved = true
}

func (e *Engine) record(index int, kind EventKind, size int) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(JournalEvent{Entry: index, Kind: kind, Size: int64(size)}); err != nil {
		slog.Warn("sync journal record", "entry", index, "kind", kind, "error", err)
	}
}

// RecordReload is used as the reloader's completion hook.
func (e *Engine) RecordReload(err error) {
	if err == nil {
		e.record(0, EventReload, 0)
	}
}

// watchEntry wakes the entry early on filesystem events for its store.
func (e *Engine) watchEntry(ctx context.Context, entry *Entry) {
	path := entry.Local.Path()
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}

	dir := path
	var filter FilterCallback
	if !utils.DirExists(path) {
		dir = filepath.Dir(path)
		filter = func(p string) bool { return p != path }
	}

	fw := NewFileWatcher(dir)
	fw.FilterPaths(filter)
	if err := fw.Start(ctx); err != nil {
		slog.Warn("sync entry watch", "entry", entry.Index, "dir", dir, "error", err)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer fw.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-fw.Events():
				if !ok {
					return
				}
				entry.Wake(false)
			}
		}
	}()
}
