package fileio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCountingRetrier returns a retrier that never sleeps and counts its pauses.
func newCountingRetrier(pauses *int) *Retrier {
	r := NewRetrier()
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*pauses++
		return ctx.Err()
	}
	return r
}

func TestRetrier_Defaults(t *testing.T) {
	r := NewRetrier()
	assert.Equal(t, 6, r.Attempts)
	assert.Equal(t, 500*time.Millisecond, r.Pause)
}

func TestRetrier_SucceedsAfterFiveFailures(t *testing.T) {
	var pauses, calls int
	r := newCountingRetrier(&pauses)

	err := r.Do(context.Background(), "op", func() error {
		calls++
		if calls <= 5 {
			return fmt.Errorf("failure %d", calls)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 6, calls)
	assert.Equal(t, 5, pauses)
}

func TestRetrier_SixFailuresSurfaceOriginalError(t *testing.T) {
	var pauses, calls int
	r := newCountingRetrier(&pauses)
	original := errors.New("locked by another process")

	err := r.Do(context.Background(), "write cal.ics", func() error {
		calls++
		if calls == 1 {
			return original
		}
		return fmt.Errorf("later failure %d", calls)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, original)
	assert.Contains(t, err.Error(), "write cal.ics")
	assert.Equal(t, 6, calls)
	assert.Equal(t, 5, pauses)
}

func TestRetrier_CancellationStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier()
	r.Pause = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, "op", func() error {
			calls++
			return errors.New("busy")
		})
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop ignored cancellation")
	}
}

func TestRetrier_FileOps(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	r := NewRetrier()
	r.Pause = time.Millisecond

	path := filepath.Join(dir, "cal.ics")
	require.NoError(t, r.WriteFile(ctx, path, []byte("one")))
	require.NoError(t, r.WriteFile(ctx, path, []byte("two")))

	data, err := r.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, r.WriteFile(ctx, filepath.Join(dir, "b.ics"), []byte("b")))

	names, err := r.ListFiles(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.ics", "cal.ics"}, names)

	require.NoError(t, r.Remove(ctx, path))
	require.NoError(t, r.Remove(ctx, path), "removing a missing file succeeds")
	assert.NoFileExists(t, path)
}

func TestRetrier_ReadMissingFile(t *testing.T) {
	var pauses int
	r := newCountingRetrier(&pauses)

	_, err := r.ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.ics"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 5, pauses)
}
