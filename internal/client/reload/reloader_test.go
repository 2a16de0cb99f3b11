package reload

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
}

func TestNew_Defaults(t *testing.T) {
	r, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultWaitBudget, r.cfg.WaitBudget)
	assert.Equal(t, DefaultPollInterval, r.cfg.PollInterval)
	assert.Equal(t, StateAbsent, r.State())

	_, err = New(Config{Command: `app "broken`})
	assert.ErrorIs(t, err, ErrUnterminatedQuote)
}

func TestReloader_ClearCache(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "cache.db")
	sub := filepath.Join(dir, "cache")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "deep"), 0o755))

	r, err := New(Config{CacheFiles: []string{file, sub, filepath.Join(dir, "missing")}})
	require.NoError(t, err)

	r.ClearCache()
	assert.NoFileExists(t, file)
	assert.NoDirExists(t, sub)
}

func TestReloader_RunNow(t *testing.T) {
	skipOnWindows(t)

	marker := filepath.Join(t.TempDir(), "ran")
	cache := filepath.Join(t.TempDir(), "cache.db")
	require.NoError(t, os.WriteFile(cache, []byte("x"), 0o644))

	var outcome error = assert.AnError
	r, err := New(Config{
		Command:    "sh -c 'touch " + marker + "'",
		CacheFiles: []string{cache},
		AfterRun:   func(err error) { outcome = err },
	})
	require.NoError(t, err)

	r.RunNow(context.Background())

	assert.FileExists(t, marker)
	assert.NoFileExists(t, cache)
	assert.NoError(t, outcome)
}

func TestReloader_RunNowFailureIsNotRaised(t *testing.T) {
	skipOnWindows(t)

	var outcome error
	r, err := New(Config{
		Command:  "sh -c 'exit 3'",
		AfterRun: func(err error) { outcome = err },
	})
	require.NoError(t, err)

	r.RunNow(context.Background())
	assert.Error(t, outcome)

	missing, err := New(Config{Command: "/nonexistent/reloader-binary"})
	require.NoError(t, err)
	missing.RunNow(context.Background())
}

func TestReloader_RunNowTerminatesHungCommand(t *testing.T) {
	skipOnWindows(t)

	var outcome error
	r, err := New(Config{
		Command:      "sleep 30",
		WaitBudget:   200 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		AfterRun:     func(err error) { outcome = err },
	})
	require.NoError(t, err)

	start := time.Now()
	r.RunNow(context.Background())

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.ErrorIs(t, outcome, errBudgetExceeded)
}

func TestReloader_RequestCoalesces(t *testing.T) {
	skipOnWindows(t)

	var runs atomic.Int32
	r, err := New(Config{
		Command:      "sleep 0.3",
		PollInterval: 10 * time.Millisecond,
		AfterRun:     func(error) { runs.Add(1) },
	})
	require.NoError(t, err)
	defer r.Stop()

	assert.Equal(t, StateAbsent, r.State())
	r.Request()

	require.Eventually(t, func() bool { return r.State() == StateRunning }, 5*time.Second, 5*time.Millisecond)

	// both collapse into one follow-up run
	r.Request()
	r.Request()

	require.Eventually(t, func() bool { return runs.Load() == 2 }, 10*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return r.State() == StateIdle }, 5*time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 2, runs.Load())
}

func TestReloader_StopTerminatesRunningCommand(t *testing.T) {
	skipOnWindows(t)

	var outcome atomic.Value
	r, err := New(Config{
		Command:      "sleep 30",
		PollInterval: 10 * time.Millisecond,
		AfterRun:     func(err error) { outcome.Store(err) },
	})
	require.NoError(t, err)

	r.Request()
	require.Eventually(t, func() bool { return r.State() == StateRunning }, 5*time.Second, 5*time.Millisecond)

	start := time.Now()
	r.Stop()

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, StateAbsent, r.State())
	assert.ErrorIs(t, outcome.Load().(error), context.Canceled)

	// requests after stop are ignored
	r.Request()
	assert.Equal(t, StateAbsent, r.State())
}

func TestReloader_RunNowAndRequestNeverOverlap(t *testing.T) {
	skipOnWindows(t)

	// mkdir fails while another run still holds the directory
	live := filepath.Join(t.TempDir(), "live")
	var runs atomic.Int32
	var failures atomic.Int32
	r, err := New(Config{
		Command:      "sh -c 'mkdir " + live + " && sleep 0.3 && rmdir " + live + "'",
		PollInterval: 10 * time.Millisecond,
		AfterRun: func(err error) {
			if err != nil {
				failures.Add(1)
			}
			runs.Add(1)
		},
	})
	require.NoError(t, err)
	defer r.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.RunNow(context.Background())
	}()
	require.Eventually(t, func() bool { return r.State() == StateRunning }, 5*time.Second, 5*time.Millisecond)

	r.Request()

	<-done
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 10*time.Second, 10*time.Millisecond)
	assert.Zero(t, failures.Load())
	assert.NoDirExists(t, live)
}
