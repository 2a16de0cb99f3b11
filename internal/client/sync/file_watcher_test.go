package sync

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileWatcher(t *testing.T) {
	fw := NewFileWatcher("/test/path")

	assert.Equal(t, "/test/path", fw.watchDir)
	assert.Nil(t, fw.events)
	assert.Nil(t, fw.rawEvents)
	assert.NotNil(t, fw.done)
	assert.Equal(t, defaultDebounceTimeout, fw.debounceTimeout)
}

func TestFileWatcherBasic(t *testing.T) {
	// tmpdir may be a symlink (macOS /var -> /private/var)
	tempDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	fw := NewFileWatcher(tempDir)
	require.NoError(t, fw.Start(context.Background()))
	defer fw.Stop()

	testFile := filepath.Join(tempDir, "cal.ics")
	require.NoError(t, os.WriteFile(testFile, []byte("BEGIN:VCALENDAR"), 0o644))

	select {
	case event := <-fw.Events():
		assert.Equal(t, testFile, event.Path())
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "timeout waiting for file event")
	}
}

func TestFileWatcherFilterAndDebounce(t *testing.T) {
	tempDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	target := filepath.Join(tempDir, "cal.ics")

	fw := NewFileWatcher(tempDir)
	fw.SetDebounceTimeout(100 * time.Millisecond)
	fw.FilterPaths(func(path string) bool { return path != target })
	require.NoError(t, fw.Start(context.Background()))
	defer fw.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "other.txt"), []byte("x"), 0o644))
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte{byte(i)}, 0o644))
	}

	select {
	case event := <-fw.Events():
		assert.Equal(t, target, event.Path())
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "timeout waiting for file event")
	}

	// the burst collapsed into the one event above
	select {
	case event := <-fw.Events():
		assert.Failf(t, "unexpected event", "path %s", event.Path())
	case <-time.After(300 * time.Millisecond):
	}
}
