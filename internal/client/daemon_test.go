package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/calsync/internal/client/config"
	"github.com/openmined/calsync/internal/client/sync"
	"github.com/openmined/calsync/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calendar(summary string) string {
	return strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test//Test//EN",
		"BEGIN:VEVENT",
		"UID:standup@example.com",
		"DTSTAMP:20240101T000000Z",
		"DTSTART:20240102T090000Z",
		"SUMMARY:" + summary,
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
}

func calendarServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "text/calendar")
			io.WriteString(w, body)
		case http.MethodPut:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, remoteURL, localContent string) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	local := filepath.Join(dir, "cal.ics")
	if localContent != "" {
		require.NoError(t, os.WriteFile(local, []byte(localContent), 0o644))
	}

	cfg := &config.Config{
		Entries:    []config.EntryConfig{{Index: 1, LocalPath: local, RemoteURL: remoteURL}},
		StateDir:   filepath.Join(dir, "state"),
		StopNotice: true,
	}
	require.NoError(t, cfg.Validate())
	return cfg, local
}

func TestDaemon_OneShotPullsRemote(t *testing.T) {
	srv := calendarServer(t, calendar("Remote"))
	cfg, local := testConfig(t, srv.URL+"/cal.ics", calendar("Local"))

	d, err := NewDaemon(cfg, Options{Mode: sync.ModeOneShot, ReloadOutput: io.Discard})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, d.Start(ctx))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SUMMARY:Remote")
	assert.NotContains(t, string(data), StopNoticeSummary, "one-shot runs never write the stop notice")

	// the lock is released on exit
	assert.NoFileExists(t, cfg.LockPath())
}

func TestDaemon_Locked(t *testing.T) {
	srv := calendarServer(t, calendar("Remote"))
	cfg, _ := testConfig(t, srv.URL+"/cal.ics", calendar("Local"))

	require.NoError(t, utils.EnsureDir(cfg.StateDir))
	held := flock.New(cfg.LockPath())
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	d, err := NewDaemon(cfg, Options{Mode: sync.ModeOneShot, ReloadOutput: io.Discard})
	require.NoError(t, err)
	assert.ErrorIs(t, d.Start(context.Background()), ErrDaemonLocked)
}

func TestDaemon_UnsupportedEntriesSkipped(t *testing.T) {
	cfg, _ := testConfig(t, "ftp://example.com/cal.ics", calendar("Local"))

	_, err := NewDaemon(cfg, Options{Mode: sync.ModeOneShot})
	assert.ErrorIs(t, err, config.ErrNoEntries)
}

func TestDaemon_InvalidReloader(t *testing.T) {
	srv := calendarServer(t, calendar("Remote"))
	cfg, _ := testConfig(t, srv.URL+"/cal.ics", calendar("Local"))
	cfg.Reloader = `systemctl restart "calendar`

	_, err := NewDaemon(cfg, Options{Mode: sync.ModeOneShot})
	assert.Error(t, err)
}

func TestDaemon_ContinuousWritesStopNotice(t *testing.T) {
	srv := calendarServer(t, calendar("Remote"))
	cfg, local := testConfig(t, srv.URL+"/cal.ics", calendar("Local"))

	cfg.HTTPAddr = freeAddr(t)

	d, err := NewDaemon(cfg, Options{Mode: sync.ModeContinuous, ControlPlane: true, ReloadOutput: io.Discard})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	statusURL := fmt.Sprintf("http://%s/v1/status", cfg.HTTPAddr)
	require.Eventually(t, func() bool {
		resp, err := http.Get(statusURL)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("daemon did not stop")
	}

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SUMMARY:"+StopNoticeSummary)
}

func TestDaemon_OfflineSyncNowRunsPass(t *testing.T) {
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
			io.WriteString(w, calendar("Remote"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg, _ := testConfig(t, srv.URL+"/cal.ics", calendar("Local"))
	cfg.RemotePollInterval = time.Hour
	cfg.HTTPAddr = freeAddr(t)

	d, err := NewDaemon(cfg, Options{Mode: sync.ModeContinuous, Offline: true, ControlPlane: true, ReloadOutput: io.Discard})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.Eventually(t, func() bool { return gets.Load() == 1 }, 5*time.Second, 20*time.Millisecond)

	nowURL := fmt.Sprintf("http://%s/v1/sync/now", cfg.HTTPAddr)
	require.Eventually(t, func() bool {
		resp, err := http.Post(nowURL, "application/json", nil)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusAccepted
	}, 5*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool { return gets.Load() >= 2 }, 5*time.Second, 20*time.Millisecond, "sync/now starts an offline pass")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().String()
}
