// Package generator turns prompts into completions from a language model and
// holds the prompt shapes and code extraction policy of the synthesis pipeline.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrGeneration marks a failed completion call. It is fatal for the invocation.
	ErrGeneration = errors.New("generation failed")

	// ErrEmptyCompletion is returned when the model answers with blank text
	ErrEmptyCompletion = fmt.Errorf("%w: empty completion", ErrGeneration)
)

// Role of a prompt message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat prompt
type Message struct {
	Role    Role
	Content string
}

// Completer obtains a completion for a chat prompt from an external service
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Generator composes prompts and asks a Completer for text. It does not
// validate what comes back.
type Generator struct {
	completer    Completer
	systemPrompt string
	logger       *zap.Logger
}

// Option configures a Generator
type Option func(*Generator)

// WithSystemPrompt replaces the default domain specialization
func WithSystemPrompt(prompt string) Option {
	return func(g *Generator) {
		if strings.TrimSpace(prompt) != "" {
			g.systemPrompt = prompt
		}
	}
}

// WithLogger sets the logger used for request diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New creates a Generator backed by completer
func New(completer Completer, opts ...Option) *Generator {
	g := &Generator{
		completer:    completer,
		systemPrompt: DefaultSystemPrompt,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate sends messages to the model and returns its answer
func (g *Generator) Generate(ctx context.Context, messages []Message) (string, error) {
	g.logger.Debug("requesting completion", zap.Int("messages", len(messages)))

	text, err := g.completer.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCompletion
	}

	g.logger.Debug("completion received", zap.Int("bytes", len(text)))
	return text, nil
}

// Synthesize asks for a script answering query, grounded on the retrieved contexts
func (g *Generator) Synthesize(ctx context.Context, contexts []string, query string) (string, error) {
	return g.Generate(ctx, g.SynthesisMessages(contexts, query))
}

// Repair asks for a corrected version of code given the simulator's error output
func (g *Generator) Repair(ctx context.Context, code, stderr, query string) (string, error) {
	return g.Generate(ctx, g.RepairMessages(code, stderr, query))
}

// Judge asks whether code matches what the user requested
func (g *Generator) Judge(ctx context.Context, code, query string) (string, error) {
	return g.Generate(ctx, g.VerifyMessages(code, query))
}
