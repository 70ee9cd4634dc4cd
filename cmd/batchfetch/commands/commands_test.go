package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/batch-fetcher/internal/testutil"
	"github.com/Sternrassler/batch-fetcher/pkg/cache"
	"github.com/Sternrassler/batch-fetcher/pkg/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, logLevel = "", ""
	fetchURLs, fetchJSON, fetchStrict = nil, false, false
	initForce = false
	serveAddr = ""

	out := &bytes.Buffer{}
	root := GetRootCmd()
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadManifest(t *testing.T) {
	path := writeFile(t, "icons.yaml", `
name: icons
slot: icons
policy: savegame
max_parallel: 2
timeout: 20s
tasks:
  - id: sword
    url: https://example.com/sword.png
  - id: shield
    url: https://example.com/shield.png
`)

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "icons", m.Name)
	assert.Equal(t, cache.PolicyStore, m.Policy)
	require.Len(t, m.Tasks, 2)
	assert.Equal(t, fetch.TaskID("sword"), m.Tasks[0].ID)

	cfg, err := m.Apply(fetch.DefaultBatchConfig())
	require.NoError(t, err)
	assert.Equal(t, "icons", cfg.SlotName)
	assert.Equal(t, 2, cfg.MaxParallel)
	assert.Equal(t, 20*time.Second, cfg.Timeout)
}

func TestLoadManifest_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"task without url", "tasks:\n  - id: a\n"},
		{"task without id", "tasks:\n  - url: https://example.com\n"},
		{"unknown policy", "policy: cloud\ntasks: []\n"},
		{"not yaml", "tasks: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadManifest(writeFile(t, "m.yaml", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestManifest_ApplyBadTimeout(t *testing.T) {
	m := &Manifest{Name: "m", Timeout: "later"}
	_, err := m.Apply(fetch.DefaultBatchConfig())
	assert.Error(t, err)
}

func TestParseURLFlags(t *testing.T) {
	m, err := parseURLFlags([]string{"a=http://x/a.png", "b=http://x/b?q=1"})
	require.NoError(t, err)
	require.Len(t, m.Tasks, 2)
	assert.Equal(t, "http://x/b?q=1", m.Tasks[1].URL)

	_, err = parseURLFlags([]string{"no-separator"})
	assert.Error(t, err)
	_, err = parseURLFlags([]string{"=http://x"})
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "batchfetch.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = execute(t, "config", "init", "--config", path)
	assert.Error(t, err, "existing file without --force")

	_, err = execute(t, "config", "init", "--config", path, "--force")
	assert.NoError(t, err)

	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "slot: downloader")
}

func TestFetchCommand(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()

	cfgPath := writeFile(t, "batchfetch.yaml", "cache:\n  slot: cli\n")
	manifest := writeFile(t, "m.yaml", "name: manifest\ntasks:\n  - id: m1\n    url: "+origin.URL()+"/m1.png\n")

	out, err := execute(t, "fetch", manifest,
		"--config", cfgPath,
		"--url", "a="+origin.URL()+"/a.png",
		"--json")
	require.NoError(t, err)

	var results []fetchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, 1, r.State.Completed)
		assert.Equal(t, 0, r.State.Failed)
	}
	assert.Equal(t, 2, origin.RequestCount())
}

func TestFetchCommand_StrictFailure(t *testing.T) {
	origin := testutil.NewMockOrigin()
	defer origin.Close()
	origin.SetResponse("/empty", testutil.MockResponse{StatusCode: 200})

	cfgPath := writeFile(t, "batchfetch.yaml", "cache:\n  slot: strict\n")
	out, err := execute(t, "fetch", "--config", cfgPath, "--strict", "--url", "e="+origin.URL()+"/empty")
	assert.ErrorContains(t, err, "1 task(s) failed")
	assert.Contains(t, out, "0/1 succeeded")
}

func TestFetchCommand_NothingToDo(t *testing.T) {
	cfgPath := writeFile(t, "batchfetch.yaml", "")
	_, err := execute(t, "fetch", "--config", cfgPath)
	assert.Error(t, err)
}

func TestCacheListAndClear(t *testing.T) {
	cfgPath := writeFile(t, "batchfetch.yaml", "cache:\n  badger_dir: "+t.TempDir()+"\n")

	origin := testutil.NewMockOrigin()
	defer origin.Close()
	_, err := execute(t, "fetch", "--config", cfgPath, "--url", "keep="+origin.URL()+"/keep.png")
	require.NoError(t, err)

	out, err := execute(t, "cache", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "keep")
	assert.Contains(t, out, "1 entries in slot downloader")

	out, err = execute(t, "cache", "clear", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared slot downloader")

	out, err = execute(t, "cache", "list", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "0 entries")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "batchfetch dev")
}
