package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/labrag/pkg/index"
	"github.com/perbu/labrag/pkg/loader"
	"github.com/perbu/labrag/pkg/pipeline"
)

const testScript = "from opentrons import protocol_api\nprint('ok')"

// testEnv is a corpus, a fake simulator and a fake chat API wired into a config file
type testEnv struct {
	dir        string
	configPath string
	calls      atomic.Int32
}

func newTestEnv(t *testing.T, simulatorBody string) *testEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake simulator is a shell script")
	}

	env := &testEnv{dir: t.TempDir()}

	docs := filepath.Join(env.dir, "docs")
	require.NoError(t, os.MkdirAll(filepath.Join(docs, "tutorial"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "pipettes.rst"),
		[]byte("Pipettes\n========\nLoad a p300 single channel pipette with :ref:`load-pipette`.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "tutorial", "transfer.rst"),
		[]byte("Transfers\n---------\n.. code-block:: python\nUse transfer to move liquid between wells.\n"), 0o644))

	sim := filepath.Join(env.dir, "fake_simulate")
	require.NoError(t, os.WriteFile(sim, []byte("#!/bin/sh\n"+simulatorBody+"\n"), 0o755))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "```python\n" + testScript + "\n```"},
			}},
		})
	}))
	t.Cleanup(srv.Close)

	cfg := fmt.Sprintf(`
corpus:
  root: %q
embedder:
  provider: hash
  dimension: 32
generator:
  base_url: %q
  model: gpt-test
simulator:
  binary: %q
  work_dir: %q
  timeout: 10s
pipeline:
  max_attempts: 2
index:
  cache_dir: %q
metrics:
  textfile: %q
credentials:
  secret_file: ""
  env: LABRAG_TEST_UNSET_KEY
`, docs, srv.URL+"/v1", sim, filepath.Join(env.dir, "work"), filepath.Join(env.dir, "cache"), filepath.Join(env.dir, "labrag.prom"))

	env.configPath = filepath.Join(env.dir, "labrag.yaml")
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o644))
	return env
}

func (e *testEnv) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append(args, "--config", e.configPath), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Generate(t *testing.T) {
	env := newTestEnv(t, `cat "$1"`)

	code, stdout, stderr := env.run("generate", "transfer 100 uL from A1 to B1", "sk-test")
	require.Equal(t, exitOK, code, stderr)

	assert.Equal(t, testScript+"\n", stdout)
	assert.Contains(t, stderr, "Attempts: 1")
	assert.Contains(t, stderr, "Sources:")
	assert.Contains(t, stderr, "tutorial/transfer.rst (section")
	assert.Equal(t, int32(2), env.calls.Load(), "one synthesis and one verifier call")

	metrics, err := os.ReadFile(filepath.Join(env.dir, "labrag.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `labrag_sessions_total{outcome="success"} 1`)

	scripts, err := os.ReadDir(filepath.Join(env.dir, "work"))
	require.NoError(t, err)
	assert.Empty(t, scripts)
}

func TestRun_GenerateExhausted(t *testing.T) {
	env := newTestEnv(t, `echo "Traceback (most recent call last):" >&2; echo "NameError: name 'p20' is not defined" >&2`)

	code, stdout, stderr := env.run("generate", "mix the plate", "sk-test", "--no-verify")
	assert.Equal(t, exitExhausted, code)

	assert.Equal(t, fallbackNotice+"\n", stdout)
	assert.Contains(t, stderr, "Attempts: 2")
	assert.Contains(t, stderr, "NameError: name 'p20' is not defined")
	assert.Equal(t, int32(2), env.calls.Load())
}

func TestRun_GenerateNeedsKey(t *testing.T) {
	env := newTestEnv(t, `cat "$1"`)

	code, stdout, stderr := env.run("generate", "mix the plate")
	assert.Equal(t, exitFailure, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "no API key")
	assert.Zero(t, env.calls.Load())
}

func TestRun_IndexThenSearch(t *testing.T) {
	env := newTestEnv(t, `cat "$1"`)

	code, stdout, stderr := env.run("index")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "chunks indexed")

	cached, err := filepath.Glob(filepath.Join(env.dir, "cache", "index-*.gob"))
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	code, stdout, stderr = env.run("search", "transfer liquid between wells", "--top", "2", "--full")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "Found 2 results:")
	assert.Contains(t, stdout, "Distance: ")
}

func TestRun_Usage(t *testing.T) {
	env := newTestEnv(t, `cat "$1"`)

	code, _, _ := env.run("generate")
	assert.Equal(t, exitFailure, code)

	code, _, _ = env.run("search")
	assert.Equal(t, exitFailure, code)
}

func TestFindSurroundingChunks(t *testing.T) {
	idx := &index.VectorIndex{Chunks: []loader.Chunk{
		{Path: "a.rst", Section: 0},
		{Path: "b.rst", Section: 0},
		{Path: "b.rst", Section: 1},
		{Path: "b.rst", Section: 2},
		{Path: "c.rst", Section: 0},
	}}

	got := findSurroundingChunks(idx, 2, 1)
	require.Len(t, got, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].ordinal, got[1].ordinal, got[2].ordinal})

	got = findSurroundingChunks(idx, 1, 2)
	require.Len(t, got, 3, "chunks from other files are skipped")
	assert.Equal(t, 1, got[0].ordinal)

	assert.Nil(t, findSurroundingChunks(idx, 9, 1))
}

func TestPrintResults_Context(t *testing.T) {
	idx := &index.VectorIndex{Chunks: []loader.Chunk{
		{Path: "a.rst", Section: 0, Content: "first"},
		{Path: "a.rst", Section: 1, Content: "second"},
	}}
	results := []index.Result{{Ordinal: 1, Chunk: idx.Chunks[1], Distance: 0.25}}

	var out bytes.Buffer
	printResults(&out, idx, results, searchOptions{context: 1})

	text := out.String()
	assert.Contains(t, text, "Distance: 0.2500 | a.rst (section 1, part 0)")
	assert.Contains(t, text, ">>> MATCHED CHUNK <<<\n[a.rst (section 1, part 0)]\nsecond")
	assert.Less(t, strings.Index(text, "first"), strings.Index(text, "MATCHED"))
}

func TestPrintSession(t *testing.T) {
	s := &pipeline.Session{
		State:        pipeline.StateExhausted,
		AttemptCount: 5,
		LastError:    "Traceback: boom",
		Retrieval:    []index.Result{{Chunk: loader.Chunk{Path: "x.rst", Section: 2, Part: 1}}},
	}

	var stdout, stderr bytes.Buffer
	printSession(&stdout, &stderr, s)

	assert.Equal(t, fallbackNotice+"\n", stdout.String())
	assert.Contains(t, stderr.String(), "Attempts: 5")
	assert.Contains(t, stderr.String(), "  - x.rst (section 2, part 1)")
	assert.Contains(t, stderr.String(), "Last error:\nTraceback: boom")
}
