package validator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSimulator struct {
	stdout, stderr string
	err            error
	scripts        []string
}

func (f *fakeSimulator) Run(_ context.Context, script string) (string, string, error) {
	f.scripts = append(f.scripts, script)
	return f.stdout, f.stderr, f.err
}

func TestPassed(t *testing.T) {
	tests := []struct {
		name           string
		stdout, stderr string
		want           bool
	}{
		{"clean run", "ok", "", true},
		{"traceback", "ok", "Traceback (most recent call last):", false},
		{"error in stderr", "Picking up tip", "opentrons.protocols.api_support.util.APIVersionError: bad", false},
		{"warnings only", "Picking up tip", "DeprecationWarning: old api", true},
		{"empty stdout", "  \n", "", false},
		{"lowercase error is tolerated", "done", "error-free", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Passed(tt.stdout, tt.stderr))
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	sim := &fakeSimulator{stdout: "Transferring 100.0 uL", stderr: ""}
	var observed time.Duration = -1
	v := New(sim, WithObserver(func(d time.Duration) { observed = d }))

	out, err := v.Validate(context.Background(), "script")
	require.NoError(t, err)

	assert.True(t, out.Passed)
	assert.Equal(t, "Transferring 100.0 uL", out.Stdout)
	assert.Equal(t, []string{"script"}, sim.scripts)
	assert.GreaterOrEqual(t, observed, time.Duration(0))
}

func TestValidator_CustomClassifier(t *testing.T) {
	sim := &fakeSimulator{stdout: "ok"}
	v := New(sim, WithClassifier(func(string, string) bool { return false }))

	out, err := v.Validate(context.Background(), "script")
	require.NoError(t, err)
	assert.False(t, out.Passed)
}

func TestValidator_SimulatorError(t *testing.T) {
	sim := &fakeSimulator{err: errors.New("executable file not found")}

	_, err := New(sim).Validate(context.Background(), "script")
	assert.ErrorIs(t, err, ErrSimulator)
}

// writeFakeBinary creates a shell script standing in for the simulator
func writeFakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "fake_simulate")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestExecSimulator_CapturesStreams(t *testing.T) {
	bin := writeFakeBinary(t, `cat "$1"; echo "Traceback: boom" >&2; exit 3`)
	workDir := t.TempDir()
	sim := NewExecSimulator(bin, workDir, 0, false)

	stdout, stderr, err := sim.Run(context.Background(), "print('hello')")
	require.NoError(t, err, "non-zero exit must not be an error")

	assert.Equal(t, "print('hello')", stdout)
	assert.Contains(t, stderr, "Traceback: boom")

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "script should be removed after the run")
}

func TestExecSimulator_UniqueScriptFiles(t *testing.T) {
	bin := writeFakeBinary(t, `echo "$1"`)
	sim := NewExecSimulator(bin, t.TempDir(), 0, true)

	first, _, err := sim.Run(context.Background(), "a")
	require.NoError(t, err)
	second, _, err := sim.Run(context.Background(), "b")
	require.NoError(t, err)

	assert.NotEqual(t, strings.TrimSpace(first), strings.TrimSpace(second))
	assert.FileExists(t, strings.TrimSpace(first))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(first), ".py"))
}

func TestExecSimulator_Timeout(t *testing.T) {
	bin := writeFakeBinary(t, `exec sleep 5`)
	sim := NewExecSimulator(bin, t.TempDir(), 50*time.Millisecond, false)

	stdout, stderr, err := sim.Run(context.Background(), "x")
	require.NoError(t, err)

	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "TimeoutError")
	assert.False(t, Passed(stdout, stderr))
}

func TestExecSimulator_Cancelled(t *testing.T) {
	bin := writeFakeBinary(t, `exec sleep 5`)
	sim := NewExecSimulator(bin, t.TempDir(), time.Minute, false)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, _, err := sim.Run(ctx, "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = New(sim).Validate(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrSimulator)
}

func TestExecSimulator_MissingBinary(t *testing.T) {
	sim := NewExecSimulator(filepath.Join(t.TempDir(), "does-not-exist"), t.TempDir(), 0, false)

	_, _, err := sim.Run(context.Background(), "x")
	assert.Error(t, err)
}
