package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/perbu/labrag/pkg/generator"
	"github.com/perbu/labrag/pkg/validator"
)

// Verdict is the model's judgment of whether a passing script does what was asked
type Verdict struct {
	Raw string

	// Match is true when the answer starts with "Yes"
	Match bool

	// Alternative is the fenced script suggested alongside a "No", and
	// AltOutcome its simulation. Both are diagnostics only.
	Alternative string
	AltOutcome  *validator.Outcome

	// Err records a verifier failure. It never affects the session outcome.
	Err error
}

// verify judges code against query and simulates any suggested alternative.
// The caller keeps its own candidate whatever the verdict says.
func (p *Pipeline) verify(ctx context.Context, code, query string) *Verdict {
	raw, err := p.gen.Judge(ctx, code, query)
	if err != nil {
		p.logger.Warn("verifier failed", zap.Error(err))
		return &Verdict{Err: err}
	}

	raw = strings.TrimSpace(raw)
	v := &Verdict{
		Raw:   raw,
		Match: isYes(raw),
	}

	alt, ok := generator.ExtractFenced(raw)
	if !ok {
		p.logger.Debug("verdict received", zap.Bool("match", v.Match))
		return v
	}

	v.Alternative = alt
	out, err := p.val.Validate(ctx, alt)
	if err != nil {
		p.logger.Warn("simulating suggested alternative failed", zap.Error(err))
		v.Err = err
		return v
	}
	v.AltOutcome = &out

	p.logger.Info("verifier suggested an alternative script",
		zap.Bool("match", v.Match),
		zap.Bool("alternative_passed", out.Passed))
	return v
}

func isYes(verdict string) bool {
	word := strings.TrimLeft(verdict, " \t\n*\"'")
	return len(word) >= 3 && strings.EqualFold(word[:3], "yes")
}
