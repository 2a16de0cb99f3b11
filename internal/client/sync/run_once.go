package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/calsync/internal/ical"
)

// RunOnce makes a single pass over all entries: push the local calendar,
// then pull the remote one. The reloader runs synchronously if any entry
// changed. Per-entry failures are logged and do not stop the pass.
func (e *Engine) RunOnce(ctx context.Context) error {
	changed := false

	for _, entry := range e.entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		entryChanged, err := e.syncOnce(ctx, entry)
		if err != nil {
			slog.Error("sync entry pass", "entry", entry.Index, "error", err)
			e.status.SetError(entry.Index, err)
			continue
		}
		e.status.SetTick(entry)
		changed = changed || entryChanged
	}

	if changed && e.reloader != nil {
		e.reloader.RunNow(ctx)
	}
	return nil
}

func (e *Engine) syncOnce(ctx context.Context, entry *Entry) (bool, error) {
	var local []byte

	if entry.Local.Exists() {
		data, err := entry.Local.Load(ctx)
		if err != nil {
			return false, fmt.Errorf("local load: %w", err)
		}
		local = data

		if err := e.provider.PushNow(ctx, entry.request(data)); err != nil {
			slog.Warn("sync entry push", "entry", entry.Index, "error", err)
		} else {
			e.record(entry.Index, EventPush, len(data))
			e.status.SetPush(entry.Index)
		}
	}

	cal, err := e.provider.GetCalendar(ctx, entry.request(nil))
	if err != nil {
		return false, fmt.Errorf("remote fetch: %w", err)
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

	reference := local
	if reference == nil {
		reference = entry.lastKnown
	}
	if ical.Equivalent(data, reference) {
		entry.lastKnown = reference
		return false, nil
	}

	if err := entry.Local.Save(ctx, data); err != nil {
		return false, fmt.Errorf("local save: %w", err)
	}
	entry.lastKnown = data

	slog.Info("sync entry remote change", "entry", entry.Index, "size", humanize.Bytes(uint64(len(data))))
	e.record(entry.Index, EventPull, len(data))
	e.status.SetPull(entry.Index)
	return true, nil
}

// RunOffline runs RunOnce, and unless oneShot is set, repeats it every
// remote interval until ctx is done. Wake and WakeAll start the next pass
// early.
func (e *Engine) RunOffline(ctx context.Context, oneShot bool) error {
	for {
		if err := e.RunOnce(ctx); err != nil {
			return err
		}
		if oneShot {
			return nil
		}

		timer := time.NewTimer(e.cfg.RemoteInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		case <-e.kick:
			timer.Stop()
		}
	}
}
