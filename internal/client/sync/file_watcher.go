package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	eventBufferSize        = 64
	defaultDebounceTimeout = 50 * time.Millisecond
)

// FilterCallback returns true if the event for path should be dropped.
type FilterCallback func(path string) bool

// FileWatcher reports changes inside one directory. Bursts of events for the
// same path are collapsed into a single event.
type FileWatcher struct {
	watchDir  string
	events    chan notify.EventInfo
	rawEvents chan notify.EventInfo
	done      chan struct{}
	wg        sync.WaitGroup

	pendingEvents   map[string]notify.EventInfo
	eventTimers     map[string]*time.Timer
	debounceMu      sync.Mutex
	debounceTimeout time.Duration

	ignoreCallback FilterCallback
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir:        watchDir,
		done:            make(chan struct{}),
		pendingEvents:   make(map[string]notify.EventInfo),
		eventTimers:     make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

func (fw *FileWatcher) SetDebounceTimeout(timeout time.Duration) {
	fw.debounceTimeout = timeout
}

// FilterPaths must be called before Start.
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.ignoreCallback = callback
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	slog.Debug("file watcher start", "dir", fw.watchDir)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.events = make(chan notify.EventInfo, eventBufferSize)

	// atomic writes show up as renames
	if err := notify.Watch(fw.watchDir, fw.rawEvents, notify.Write, notify.Create, notify.Remove, notify.Rename); err != nil {
		return err
	}

	fw.wg.Add(1)
	go fw.filterEvents(ctx)
	return nil
}

func (fw *FileWatcher) Stop() {
	close(fw.done)
	if fw.rawEvents != nil {
		notify.Stop(fw.rawEvents)
	}
	fw.wg.Wait()
	slog.Debug("file watcher stopped", "dir", fw.watchDir)
}

func (fw *FileWatcher) Events() <-chan notify.EventInfo {
	return fw.events
}

func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer func() {
		fw.debounceMu.Lock()
		for path, timer := range fw.eventTimers {
			timer.Stop()
			delete(fw.eventTimers, path)
			delete(fw.pendingEvents, path)
		}
		fw.debounceMu.Unlock()

		fw.wg.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event, ok := <-fw.rawEvents:
			if !ok {
				return
			}
			if fw.ignoreCallback != nil && fw.ignoreCallback(event.Path()) {
				continue
			}
			fw.debounceEvent(event)
		}
	}
}

func (fw *FileWatcher) debounceEvent(event notify.EventInfo) {
	path := event.Path()

	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, exists := fw.eventTimers[path]; exists {
		timer.Stop()
	}
	fw.pendingEvents[path] = event
	fw.eventTimers[path] = time.AfterFunc(fw.debounceTimeout, func() {
		fw.flushEvent(path)
	})
}

func (fw *FileWatcher) flushEvent(path string) {
	fw.debounceMu.Lock()
	event, exists := fw.pendingEvents[path]
	if !exists {
		fw.debounceMu.Unlock()
		return
	}
	delete(fw.pendingEvents, path)
	delete(fw.eventTimers, path)
	fw.debounceMu.Unlock()

	select {
	case fw.events <- event:
		slog.Debug("file watcher", "event", event.Event(), "path", path)
	default:
		slog.Warn("file watcher dropped", "reason", "channel full", "path", path)
	}
}
