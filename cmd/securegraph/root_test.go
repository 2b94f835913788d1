// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/securegraph/internal/config"
	"github.com/sigil-dev/securegraph/internal/graph"
	"github.com/sigil-dev/securegraph/internal/ingest"
	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// isolateHome keeps config discovery and bootstrapping inside a temp dir.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "securegraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sqliteConfig = `
storage:
  backend: sqlite
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCommand_Help(t *testing.T) {
	isolateHome(t)
	out, err := execute(t, "", "--help")
	require.NoError(t, err)
	for _, want := range []string{"securegraph", "serve", "status", "ingest", "compact", "clear", "version"} {
		assert.Contains(t, out, want)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	isolateHome(t)
	out, err := execute(t, "", "--verbose", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--config")
	assert.Contains(t, out, "--data-dir")
	assert.Contains(t, out, "--verbose")
}

func TestVersionCommand(t *testing.T) {
	home := isolateHome(t)
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "securegraph ")
	assert.Contains(t, out, runtime.Version())
	assert.Contains(t, out, "kv backends: badger, memory, sqlite")

	_, statErr := os.Stat(filepath.Join(home, ".config", "securegraph", "securegraph.yaml"))
	assert.NoError(t, statErr, "default config is bootstrapped on first run")
}

func TestVersionCommand_StampedBuild(t *testing.T) {
	isolateHome(t)
	saved := []string{buildVersion, buildRevision, buildTime}
	t.Cleanup(func() { buildVersion, buildRevision, buildTime = saved[0], saved[1], saved[2] })
	buildVersion = "v1.2.3"
	buildRevision = "0123456789abcdef0123"
	buildTime = "2026-10-01T00:00:00Z"

	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "securegraph v1.2.3 (revision 0123456789ab")
	assert.Contains(t, out, "built 2026-10-01T00:00:00Z")
}

func TestServeCommand_MissingConfigFile(t *testing.T) {
	isolateHome(t)
	_, err := execute(t, "", "serve", "--config", "/nonexistent/path.yaml")
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeConfigLoadReadFailure))
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	isolateHome(t)
	cfg := writeConfig(t, "storage:\n  backend: cassandra\n")
	_, err := execute(t, "", "serve", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend")
}

func TestStatusCommand_HealthyServer(t *testing.T) {
	isolateHome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	old := statusClient
	statusClient = srv.Client()
	defer func() { statusClient = old }()

	addr := strings.TrimPrefix(srv.URL, "http://")
	out, err := execute(t, "", "status", "--address", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")
}

func TestStatusCommand_ServerError(t *testing.T) {
	isolateHome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	out, err := execute(t, "", "status", "--address", strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	assert.Contains(t, out, "status 500")
}

func TestStatusCommand_ServerDown(t *testing.T) {
	isolateHome(t)
	out, err := execute(t, "", "status", "--address", "127.0.0.1:1")
	require.NoError(t, err)
	assert.Contains(t, out, "not running")
}

const records = `{"type":"vertex","id":"v1","visibility":"a","properties":[{"name":"name","value":"alice","visibility":"a"}]}

{"type":"vertex","id":"v2","properties":[{"name":"age","value":30}]}
{"type":"edge","id":"e1","out":"v1","in":"v2","label":"knows","visibility":"a"}
`

func openForTest(t *testing.T, cfgPath, dataDir string) *App {
	t.Helper()
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	app, err := WireGraph(context.Background(), cfg, dataDir, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestIngestCommand(t *testing.T) {
	isolateHome(t)
	cfg := writeConfig(t, sqliteConfig)
	dataDir := t.TempDir()
	input := filepath.Join(t.TempDir(), "graph.ndjson")
	require.NoError(t, os.WriteFile(input, []byte(records), 0o600))

	out, err := execute(t, "", "ingest", input, "--config", cfg, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 2 vertices and 1 edges")

	app := openForTest(t, cfg, dataDir)
	ctx := context.Background()
	auths := visibility.NewAuthorizations("a")

	v1, err := app.Graph.GetVertex(ctx, "v1", graph.FetchAll, auths)
	require.NoError(t, err)
	require.NotNil(t, v1)
	name, err := v1.PropertyValue("name")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)
	assert.Equal(t, []string{"v2"}, v1.VertexIDs(graph.DirectionOut))

	hidden, err := app.Graph.GetVertex(ctx, "v1", graph.FetchAll, visibility.NewAuthorizations())
	require.NoError(t, err)
	assert.Nil(t, hidden)

	e1, err := app.Graph.GetEdge(ctx, "e1", graph.FetchAll, auths)
	require.NoError(t, err)
	require.NotNil(t, e1)
}

func TestIngestCommand_Stdin(t *testing.T) {
	isolateHome(t)
	cfg := writeConfig(t, sqliteConfig)

	out, err := execute(t, records, "ingest", "-", "--config", cfg, "--data-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 2 vertices and 1 edges")
}

func TestIngestCommand_InvalidRecord(t *testing.T) {
	isolateHome(t)
	cfg := writeConfig(t, sqliteConfig)
	dataDir := t.TempDir()
	input := `{"type":"vertex","id":"v1"}
{"type":"vertex","id":"v2","colour":"red"}
{"type":"vertex","id":"v3"}
`

	out, err := execute(t, input, "ingest", "-", "--config", cfg, "--data-dir", dataDir)
	require.Error(t, err)
	assert.True(t, ingest.IsRecordError(err))
	assert.Contains(t, err.Error(), "invalid record")
	assert.Contains(t, out, "Loaded 1 vertices and 0 edges")

	app := openForTest(t, cfg, dataDir)
	v1, err := app.Graph.GetVertex(context.Background(), "v1", graph.FetchAll, visibility.NewAuthorizations())
	require.NoError(t, err)
	assert.NotNil(t, v1, "records before the bad line are kept")
}

func TestIngestCommand_MissingFile(t *testing.T) {
	isolateHome(t)
	cfg := writeConfig(t, sqliteConfig)
	_, err := execute(t, "", "ingest", "/nonexistent/graph.ndjson", "--config", cfg, "--data-dir", t.TempDir())
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeCLIInputInvalid))
}

func TestCompactCommand(t *testing.T) {
	isolateHome(t)
	cfg := writeConfig(t, sqliteConfig)
	dataDir := t.TempDir()

	_, err := execute(t, records, "ingest", "-", "--config", cfg, "--data-dir", dataDir)
	require.NoError(t, err)

	out, err := execute(t, "", "compact", "--config", cfg, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 rows")
}

func TestClearCommand(t *testing.T) {
	isolateHome(t)
	cfg := writeConfig(t, sqliteConfig)
	dataDir := t.TempDir()

	_, err := execute(t, records, "ingest", "-", "--config", cfg, "--data-dir", dataDir)
	require.NoError(t, err)

	_, err = execute(t, "", "clear", "--config", cfg, "--data-dir", dataDir)
	require.Error(t, err)
	assert.True(t, sgerr.HasCode(err, sgerr.CodeCLIInputInvalid))

	out, err := execute(t, "", "clear", "--yes", "--config", cfg, "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")

	app := openForTest(t, cfg, dataDir)
	v1, err := app.Graph.GetVertex(context.Background(), "v1", graph.FetchAll, visibility.NewAuthorizations("a"))
	require.NoError(t, err)
	assert.Nil(t, v1)
}
