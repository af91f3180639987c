// Package validator runs candidate protocol scripts through an external
// simulator and classifies the outcome from the captured output streams.
package validator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrSimulator is returned when the simulator could not be run at all
var ErrSimulator = errors.New("simulator failed to run")

// Simulator executes a script and returns what it printed. A non-zero exit
// status is not an error; err is reserved for failing to run at all.
type Simulator interface {
	Run(ctx context.Context, script string) (stdout, stderr string, err error)
}

// Classifier decides from the captured streams whether a simulation passed
type Classifier func(stdout, stderr string) bool

// Passed is the default classification policy: stderr mentions neither
// "Error" nor "Traceback", and stdout has content. Exit codes are ignored.
func Passed(stdout, stderr string) bool {
	if strings.Contains(stderr, "Error") || strings.Contains(stderr, "Traceback") {
		return false
	}
	return strings.TrimSpace(stdout) != ""
}

// Outcome is the classified result of one simulation
type Outcome struct {
	Stdout   string
	Stderr   string
	Passed   bool
	Duration time.Duration
}

// Validator pairs a Simulator with a Classifier
type Validator struct {
	sim      Simulator
	classify Classifier
	logger   *zap.Logger
	observe  func(time.Duration)
}

// Option configures a Validator
type Option func(*Validator)

// WithClassifier replaces the default Passed policy
func WithClassifier(c Classifier) Option {
	return func(v *Validator) {
		if c != nil {
			v.classify = c
		}
	}
}

// WithLogger sets the logger used for simulation diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithObserver registers a callback receiving every simulation's duration
func WithObserver(fn func(time.Duration)) Option {
	return func(v *Validator) {
		v.observe = fn
	}
}

// New creates a Validator around sim
func New(sim Simulator, opts ...Option) *Validator {
	v := &Validator{
		sim:      sim,
		classify: Passed,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate simulates code and classifies the result
func (v *Validator) Validate(ctx context.Context, code string) (Outcome, error) {
	start := time.Now()
	stdout, stderr, err := v.sim.Run(ctx, code)
	elapsed := time.Since(start)
	if v.observe != nil {
		v.observe(elapsed)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrSimulator, err)
	}

	out := Outcome{
		Stdout:   stdout,
		Stderr:   stderr,
		Passed:   v.classify(stdout, stderr),
		Duration: elapsed,
	}

	v.logger.Debug("simulation finished",
		zap.Bool("passed", out.Passed),
		zap.Int("stdout_bytes", len(stdout)),
		zap.Int("stderr_bytes", len(stderr)),
		zap.Duration("duration", elapsed))

	return out, nil
}
