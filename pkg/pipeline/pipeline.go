// Package pipeline wires retrieval, generation and simulation into the
// bounded generate-validate-repair loop that produces protocol scripts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perbu/labrag/pkg/embedder"
	"github.com/perbu/labrag/pkg/generator"
	"github.com/perbu/labrag/pkg/index"
	"github.com/perbu/labrag/pkg/metrics"
	"github.com/perbu/labrag/pkg/validator"
)

// DefaultMaxAttempts bounds the generate/validate cycles of one session
const DefaultMaxAttempts = 5

// ErrExhausted means the attempt budget ran out without a passing script
var ErrExhausted = errors.New("no usable script after correction attempts")

// Pipeline holds everything a session needs. It is built once and shared by
// every query; sessions keep their own state.
type Pipeline struct {
	idx *index.VectorIndex
	emb embedder.Embedder
	gen *generator.Generator
	val *validator.Validator

	topK          int
	maxAttempts   int
	verifyEnabled bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithTopK sets how many chunks are retrieved per query
func WithTopK(k int) Option {
	return func(p *Pipeline) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithMaxAttempts sets the correction budget
func WithMaxAttempts(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithVerifier toggles the post-success intent check
func WithVerifier(enabled bool) Option {
	return func(p *Pipeline) {
		p.verifyEnabled = enabled
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New creates a Pipeline over a built index
func New(idx *index.VectorIndex, emb embedder.Embedder, gen *generator.Generator, val *validator.Validator, opts ...Option) (*Pipeline, error) {
	if idx == nil || idx.Len() == 0 {
		return nil, index.ErrEmptyIndex
	}
	if emb == nil || gen == nil || val == nil {
		return nil, errors.New("pipeline needs an embedder, a generator and a validator")
	}

	p := &Pipeline{
		idx:           idx,
		emb:           emb,
		gen:           gen,
		val:           val,
		topK:          index.DefaultTopK,
		maxAttempts:   DefaultMaxAttempts,
		verifyEnabled: true,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.metrics.SetIndexChunks(idx.Len())
	return p, nil
}

// Retrieve embeds query and returns its nearest chunks
func (p *Pipeline) Retrieve(ctx context.Context, query string) ([]float32, []index.Result, error) {
	q, err := p.emb.Embed(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := index.Search(p.idx, q, p.topK)
	if err != nil {
		return nil, nil, err
	}
	return q, results, nil
}

// Run takes query through retrieval and the correction loop. Exhaustion is
// reported through the session state, not as an error; err is reserved for
// failures that leave no result at all.
func (p *Pipeline) Run(ctx context.Context, query string) (*Session, error) {
	s := &Session{
		ID:    uuid.NewString(),
		Query: query,
		State: StateGenerate,
	}
	logger := p.logger.With(zap.String("session", s.ID))

	q, results, err := p.Retrieve(ctx, query)
	if err != nil {
		p.metrics.ObserveSession(metrics.OutcomeError)
		return nil, err
	}
	s.QueryEmbedding = q
	s.Retrieval = results
	logger.Debug("retrieved context", zap.Strings("sources", s.Sources()))

	if err := p.correct(ctx, s, logger); err != nil {
		p.metrics.ObserveSession(metrics.OutcomeError)
		return s, err
	}

	if s.Succeeded() {
		if p.verifyEnabled {
			s.Verdict = p.verify(ctx, s.Code, query)
		}
		p.metrics.ObserveSession(metrics.OutcomeSuccess)
	} else {
		p.metrics.ObserveSession(metrics.OutcomeExhausted)
	}

	logger.Info("session finished",
		zap.String("state", string(s.State)),
		zap.Int("attempts", s.AttemptCount))
	return s, nil
}

// correct drives the state machine until it reaches a terminal state
func (p *Pipeline) correct(ctx context.Context, s *Session, logger *zap.Logger) error {
	messages := p.gen.SynthesisMessages(s.Chunks(), s.Query)

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		s.AttemptCount = attempt
		s.State = StateGenerate
		p.metrics.IncAttempts()

		text, err := p.gen.Generate(ctx, messages)
		if errors.Is(err, generator.ErrEmptyCompletion) {
			logger.Warn("model returned no text, giving up", zap.Int("attempt", attempt))
			s.State = StateExhausted
			return nil
		}
		if err != nil {
			return err
		}

		code := candidate(text)

		s.State = StateValidate
		out, err := p.val.Validate(ctx, code)
		if err != nil {
			return err
		}

		s.Attempts = append(s.Attempts, Attempt{
			Number: attempt,
			Code:   code,
			Stdout: out.Stdout,
			Stderr: out.Stderr,
			Passed: out.Passed,
		})

		if out.Passed {
			s.State = StateSuccess
			s.Code = code
			s.LastError = ""
			return nil
		}

		s.LastError = strings.TrimSpace(out.Stderr)
		logger.Info("candidate failed simulation",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.maxAttempts))

		if attempt == p.maxAttempts {
			break
		}
		s.State = StateRetry
		messages = p.gen.RepairMessages(code, out.Stderr, s.Query)
	}

	s.State = StateExhausted
	return nil
}

// candidate pulls the script out of a completion, keeping the whole text
// when nothing looks like code
func candidate(completion string) string {
	if code := generator.ExtractCode(completion); code != "" {
		return code
	}
	return strings.TrimSpace(completion)
}

// Err returns ErrExhausted, carrying the last error text, for a session that
// ended without a script
func (s *Session) Err() error {
	if s.State != StateExhausted {
		return nil
	}
	if s.LastError == "" {
		return fmt.Errorf("%w (%d attempts)", ErrExhausted, s.AttemptCount)
	}
	return fmt.Errorf("%w (%d attempts): %s", ErrExhausted, s.AttemptCount, s.LastError)
}
