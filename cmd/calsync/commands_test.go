package main

import (
	"context"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openmined/calsync/internal/client/handlers"
	"github.com/openmined/calsync/internal/client/sync"
	"github.com/openmined/calsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	cmd := &cobra.Command{Use: "calsync"}
	cmd.AddCommand(newVersionCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, version.Detailed(), strings.TrimSpace(out.String()))
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CALSYNC_CONFIG_PATH", filepath.Join(dir, "missing.json"))
	t.Setenv("CALSYNC_LOCAL_PATH_1", filepath.Join(dir, "home.ics"))
	t.Setenv("CALSYNC_REMOTE_URL_1", "https://cal.example.com/home.ics")
	t.Setenv("CALSYNC_PASSWORD_1", "supersecretpassword")
	t.Setenv("CALSYNC_STATE_DIR", filepath.Join(dir, "state"))

	cmd := &cobra.Command{Use: "calsync"}
	cmd.PersistentFlags().StringP("config", "c", "", "")
	cmd.AddCommand(newConfigCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "show"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "remote_url: https://cal.example.com/home.ics")
	assert.Contains(t, out.String(), "remote_poll_interval: 10m0s")
	assert.NotContains(t, out.String(), "supersecretpassword")
}

func TestConfigPathCommand(t *testing.T) {
	t.Setenv("CALSYNC_CONFIG_PATH", "/tmp/calsync-test.json")

	cmd := &cobra.Command{Use: "calsync"}
	cmd.AddCommand(newConfigPathCmd())

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config-path"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "/tmp/calsync-test.json", strings.TrimSpace(out.String()))
}

func statusServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(handlers.ControlPlaneError{ErrorCode: "ERR_UNAUTHORIZED", Error: "unauthorized"})
			return
		}
		json.NewEncoder(w).Encode(handlers.StatusResponse{
			Version:  "1.2.3",
			Mode:     "continuous",
			Reloader: "idle",
			Entries: []sync.EntryStatus{
				{Index: 1, Local: "/cal/work.ics", Remote: "https://cal.example.com/work.ics", Regime: "fast", LastPull: time.Now().Add(-time.Minute)},
				{Index: 2, Local: "/cal/home.ics", Remote: "s3://bucket/home.ics", Regime: "normal", LastError: "remote fetch: boom"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchStatusAndRender(t *testing.T) {
	srv := statusServer(t, "tok")

	status, body, err := fetchStatus(context.Background(), srv.URL, "tok")
	require.NoError(t, err)
	require.Len(t, status.Entries, 2)
	assert.Contains(t, string(body), `"mode":"continuous"`)

	var out bytes.Buffer
	renderStatus(&out, status)
	text := out.String()
	assert.Contains(t, text, "calsync 1.2.3")
	assert.Contains(t, text, "/cal/work.ics")
	assert.Contains(t, text, "remote fetch: boom")
	assert.Contains(t, text, "never", "entries without a push show never")
}

func TestFetchStatus_Unauthorized(t *testing.T) {
	srv := statusServer(t, "tok")

	_, _, err := fetchStatus(context.Background(), srv.URL, "wrong")
	assert.ErrorContains(t, err, "unauthorized")
}
