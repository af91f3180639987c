package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultModel is the embedding model used when none is configured
	DefaultModel = "text-embedding-3-small"

	// DefaultMaxAttempts is the total number of calls made for one text while
	// rate limited: the first call plus up to four retries, each preceded by a
	// backoff sleep. No sleep follows the final failed call.
	DefaultMaxAttempts = 5

	// DefaultBaseDelay is the first backoff delay; it doubles on every retry
	DefaultBaseDelay = 2 * time.Second
)

// Config configures the OpenAI embedder
type Config struct {
	APIKey  string
	BaseURL string // Optional; defaults to the public OpenAI endpoint
	Model   string

	MaxAttempts int
	BaseDelay   time.Duration

	// RequestsPerSecond throttles calls before they are sent. Zero disables it.
	RequestsPerSecond float64

	Logger  *zap.Logger
	OnRetry func() // Called before every backoff sleep
}

// OpenAIEmbedder uses OpenAI API for embeddings
type OpenAIEmbedder struct {
	client      *openai.Client
	model       string
	dim         atomic.Int64 // Refreshed from every response; safe for concurrent use
	maxAttempts int
	baseDelay   time.Duration
	limiter     *rate.Limiter
	logger      *zap.Logger
	onRetry     func()
}

// NewOpenAIEmbedder creates an OpenAI embedder
func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	// Set dimension based on model
	dim := 1536 // default for text-embedding-3-small
	if cfg.Model == "text-embedding-3-large" {
		dim = 3072
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	e := &OpenAIEmbedder{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		limiter:     limiter,
		logger:      cfg.Logger,
		onRetry:     cfg.OnRetry,
	}
	e.dim.Store(int64(dim))
	return e, nil
}

// Embed generates an embedding for a single text. Rate-limit failures are
// retried with exponential backoff; every other failure is returned at once.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if len(text) == 0 {
		return nil, fmt.Errorf("%w: cannot embed empty text", ErrEmbedding)
	}

	delay := e.baseDelay
	for attempt := 1; ; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
			}
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(e.model),
			Input: []string{text},
		})
		if err == nil {
			if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
				return nil, fmt.Errorf("%w: no embedding data returned from API", ErrEmbedding)
			}
			v := make([]float32, len(resp.Data[0].Embedding))
			copy(v, resp.Data[0].Embedding)
			e.dim.Store(int64(len(v)))

			// L2 normalize so distances are comparable across calls
			l2normalize(v)
			return v, nil
		}

		if !IsRateLimit(err) {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		if attempt >= e.maxAttempts {
			return nil, fmt.Errorf("%w: %w after %d attempts: %w", ErrEmbedding, ErrRateLimited, attempt, err)
		}

		e.logger.Warn("embedding rate limited, backing off",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", e.maxAttempts),
			zap.Duration("delay", delay))
		if e.onRetry != nil {
			e.onRetry()
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
		delay *= 2
	}
}

// EmbedBatch generates embeddings for multiple texts sequentially
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return EmbedAll(ctx, e, texts, nil)
}

// Dimension returns the embedding dimension
func (e *OpenAIEmbedder) Dimension() int {
	return int(e.dim.Load())
}

// ModelInfo returns model information
func (e *OpenAIEmbedder) ModelInfo() string {
	return "openai-" + e.model
}

// IsRateLimit reports whether err is a rate-limit signal from the API
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
