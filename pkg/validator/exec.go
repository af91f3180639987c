package validator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// DefaultBinary is the Opentrons protocol simulator
const DefaultBinary = "opentrons_simulate"

// ExecSimulator runs an external simulator binary on a script file. Each run
// gets its own file name, so concurrent sessions never share a script.
type ExecSimulator struct {
	Binary      string
	WorkDir     string        // Where script files are written; defaults to os.TempDir()
	Timeout     time.Duration // Zero means no limit
	KeepScripts bool
}

// NewExecSimulator returns a simulator invoking binary, or DefaultBinary
func NewExecSimulator(binary, workDir string, timeout time.Duration, keep bool) *ExecSimulator {
	if binary == "" {
		binary = DefaultBinary
	}
	return &ExecSimulator{Binary: binary, WorkDir: workDir, Timeout: timeout, KeepScripts: keep}
}

// Run writes script to a unique file and passes its path as the only argument
func (s *ExecSimulator) Run(ctx context.Context, script string) (string, string, error) {
	dir := s.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}

	path := filepath.Join(dir, "protocol-"+uuid.NewString()+".py")
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		return "", "", fmt.Errorf("writing script: %w", err)
	}
	if !s.KeepScripts {
		defer os.Remove(path)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.Binary, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children left behind by a killed simulator must not hold the pipes open
	cmd.WaitDelay = time.Second

	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		// A hung simulation counts as a failed one
		fmt.Fprintf(&stderr, "\nTimeoutError: simulation exceeded %s\n", s.Timeout)
	case errors.Is(ctx.Err(), context.Canceled):
		// Cancelled by the caller: the run says nothing about the script
		return "", "", fmt.Errorf("running %s: %w", s.Binary, ctx.Err())
	case errors.As(err, &exitErr):
		// Non-zero exit: the streams carry the verdict
	default:
		return "", "", fmt.Errorf("running %s: %w", s.Binary, err)
	}

	return stdout.String(), stderr.String(), nil
}
