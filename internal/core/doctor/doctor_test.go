package doctor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colonyops/auditagent/internal/core/config"
)

func stubLookPath(t *testing.T, found map[string]bool) {
	t.Helper()
	orig := lookPathFunc
	t.Cleanup(func() { lookPathFunc = orig })

	lookPathFunc = func(file string) (string, error) {
		if found[file] {
			return "/usr/bin/" + file, nil
		}
		return "", fmt.Errorf("exec: %q: not found", file)
	}
}

func TestToolsCheck(t *testing.T) {
	stubLookPath(t, map[string]bool{"import": true})

	check := NewToolsCheck([]Tool{
		{Label: "capture", Argv: []string{"import", "-window", "root"}, Required: true},
		{Label: "idle", Argv: []string{"xprintidle"}},
		{Label: "session", Argv: []string{"loginctl"}, Required: true},
		{Label: "lock"},
	})
	result := check.Run(context.Background())

	assert.Equal(t, "Providers", result.Name)
	require.Len(t, result.Items, 4)

	assert.Equal(t, StatusPass, result.Items[0].Status)
	assert.Equal(t, "/usr/bin/import", result.Items[0].Detail)
	assert.Equal(t, StatusWarn, result.Items[1].Status)
	assert.Equal(t, StatusFail, result.Items[2].Status)
	assert.Contains(t, result.Items[2].Detail, "loginctl")
	assert.Equal(t, StatusWarn, result.Items[3].Status)
}

func TestQueueDirCheck_Missing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "absent")

	result := NewQueueDirCheck(dir, 0).Run(context.Background())

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusWarn, result.Items[0].Status)
}

func TestQueueDirCheck_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	result := NewQueueDirCheck(file, 0).Run(context.Background())

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusFail, result.Items[0].Status)
}

func TestQueueDirCheck_ReportsPendingAndMissing(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(present, []byte("img"), 0o644))

	snapshot := present + "|0\n" + filepath.Join(dir, "gone.png") + "|1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "upload-queue.txt"), []byte(snapshot), 0o644))

	result := NewQueueDirCheck(dir, 1<<20).Run(context.Background())

	require.Len(t, result.Items, 3)
	assert.Equal(t, StatusPass, result.Items[0].Status)
	assert.Equal(t, StatusWarn, result.Items[1].Status)
	assert.Equal(t, "2 pending, 1 missing on disk", result.Items[1].Detail)
	assert.Equal(t, StatusPass, result.Items[2].Status)
}

func TestQueueDirCheck_EmptyDirectory(t *testing.T) {
	result := NewQueueDirCheck(t.TempDir(), 0).Run(context.Background())

	require.Len(t, result.Items, 2)
	assert.Equal(t, StatusPass, result.Items[1].Status)
	assert.Equal(t, "no queue file yet", result.Items[1].Detail)
}

func TestQueueDirCheck_ScratchOverLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.png"), make([]byte, 2048), 0o644))

	result := NewQueueDirCheck(dir, 1024).Run(context.Background())

	last := result.Items[len(result.Items)-1]
	assert.Equal(t, "scratch size", last.Label)
	assert.Equal(t, StatusWarn, last.Status)
}

func TestPrivilegeCheck(t *testing.T) {
	orig := elevatedFunc
	t.Cleanup(func() { elevatedFunc = orig })

	tests := []struct {
		name     string
		elevated bool
		err      error
		want     Status
	}{
		{"standard", false, nil, StatusPass},
		{"elevated", true, nil, StatusFail},
		{"unknown", false, errors.New("token"), StatusWarn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elevatedFunc = func() (bool, error) { return tt.elevated, tt.err }

			result := NewPrivilegeCheck().Run(context.Background())

			require.Len(t, result.Items, 1)
			assert.Equal(t, tt.want, result.Items[0].Status)
		})
	}
}

func TestConfigCheck_Valid(t *testing.T) {
	requireShell(t)

	cfg := config.DefaultConfig()
	cfg.Server.BaseURL = "http://collector.local"
	cfg.Queue.Dir = t.TempDir()
	cfg.Capture.Command = []string{"sh"}
	cfg.Idle.Command = []string{"sh"}
	cfg.Session.Command = []string{"sh"}

	result := NewConfigCheck(&cfg, "").Run(context.Background())

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusPass, result.Items[0].Status)
	assert.Equal(t, "defaults", result.Items[0].Detail)
}

func TestConfigCheck_FieldErrors(t *testing.T) {
	requireShell(t)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cfg := config.DefaultConfig()
	cfg.Server.BaseURL = "http://collector.local"
	cfg.Queue.Dir = file
	cfg.Capture.Command = []string{"definitely-not-a-real-binary-xyz"}
	cfg.Idle.Command = []string{"sh"}
	cfg.Session.Command = []string{"sh"}

	result := NewConfigCheck(&cfg, "").Run(context.Background())

	require.Len(t, result.Items, 2)
	labels := []string{result.Items[0].Label, result.Items[1].Label}
	assert.ElementsMatch(t, []string{"queue.dir", "capture.command"}, labels)
	for _, item := range result.Items {
		assert.Equal(t, StatusFail, item.Status)
	}
}

func TestConfigCheck_StructuralError(t *testing.T) {
	cfg := config.DefaultConfig()

	result := NewConfigCheck(&cfg, "").Run(context.Background())

	require.Len(t, result.Items, 1)
	assert.Equal(t, "config", result.Items[0].Label)
	assert.Equal(t, StatusFail, result.Items[0].Status)
	assert.Contains(t, result.Items[0].Detail, "base_url")
}

func TestCollectorCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "client-1", r.Header.Get("Client-Id"))
		_, _ = w.Write([]byte(`{"configCaptureInterval": 5, "configIdleTimeout": 60}`))
	}))
	t.Cleanup(srv.Close)

	result := NewCollectorCheck(srv.Client(), srv.URL, "client-1").Run(context.Background())

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusPass, result.Items[0].Status)
	assert.Equal(t, "capture every 5s, idle after 1m0s", result.Items[0].Detail)
}

func TestCollectorCheck_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	result := NewCollectorCheck(srv.Client(), srv.URL, "client-1").Run(context.Background())

	require.Len(t, result.Items, 1)
	assert.Equal(t, StatusWarn, result.Items[0].Status)
}

func TestRunAllAndSummary(t *testing.T) {
	stubLookPath(t, map[string]bool{"a": true})

	results := RunAll(context.Background(), []Check{
		NewToolsCheck([]Tool{
			{Label: "a", Argv: []string{"a"}, Required: true},
			{Label: "b", Argv: []string{"b"}},
			{Label: "c", Argv: []string{"c"}, Required: true},
		}),
	})

	passed, warned, failed := Summary(results)
	assert.Equal(t, 1, passed)
	assert.Equal(t, 1, warned)
	assert.Equal(t, 1, failed)
}

// requireShell skips when "sh" cannot be resolved; the config check uses the
// real PATH.
func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}
