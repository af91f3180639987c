package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/labrag/pkg/generator"
	"github.com/perbu/labrag/pkg/pipeline"
	"github.com/perbu/labrag/pkg/validator"
)

// fallbackNotice is printed on stdout when no script survived simulation
const fallbackNotice = "No working protocol could be generated after several attempts."

func newGenerateCmd(a *app) *cobra.Command {
	var (
		top         int
		maxAttempts int
		noVerify    bool
	)

	cmd := &cobra.Command{
		Use:   "generate <query> [api-key]",
		Short: "Generate a protocol script for a request",
		Long: `Retrieves documentation for the request, generates a script and repairs it
until the simulator accepts it. The script is printed on stdout; diagnostics go
to stderr. Exits with status 2 when every attempt failed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("top") {
				a.cfg.Pipeline.TopK = top
			}
			if cmd.Flags().Changed("max-attempts") {
				a.cfg.Pipeline.MaxAttempts = maxAttempts
			}
			if noVerify {
				a.cfg.Pipeline.Verify = false
			}
			return a.runGenerate(cmd, args[0], argAt(args, 1))
		},
	}

	cmd.Flags().IntVar(&top, "top", 0, "number of documentation chunks to retrieve")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "generate/validate cycles before giving up")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip the intent check after a successful simulation")
	return cmd
}

func (a *app) runGenerate(cmd *cobra.Command, query, keyArg string) error {
	apiKey, err := a.cfg.ResolveAPIKey(keyArg)
	if err != nil {
		return err
	}

	emb, err := a.newEmbedder(apiKey)
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}

	idx, err := a.buildIndex(cmd, emb, nil)
	if err != nil {
		return err
	}

	completer, err := generator.NewOpenAICompleter(apiKey, a.cfg.Generator.BaseURL, a.cfg.Generator.Model)
	if err != nil {
		return fmt.Errorf("initializing generator: %w", err)
	}
	gen := generator.New(completer,
		generator.WithSystemPrompt(a.cfg.Generator.SystemPrompt),
		generator.WithLogger(a.logger.Named("generator")))

	sc := a.cfg.Simulator
	sim := validator.NewExecSimulator(sc.Binary, sc.WorkDir, sc.Timeout, sc.KeepScripts)
	val := validator.New(sim,
		validator.WithLogger(a.logger.Named("validator")),
		validator.WithObserver(a.metrics.ObserveSimulation))

	p, err := pipeline.New(idx, emb, gen, val,
		pipeline.WithTopK(a.cfg.Pipeline.TopK),
		pipeline.WithMaxAttempts(a.cfg.Pipeline.MaxAttempts),
		pipeline.WithVerifier(a.cfg.Pipeline.Verify),
		pipeline.WithLogger(a.logger.Named("pipeline")),
		pipeline.WithMetrics(a.metrics))
	if err != nil {
		return err
	}

	session, err := p.Run(cmd.Context(), query)
	if err != nil {
		return err
	}

	printSession(cmd.OutOrStdout(), cmd.ErrOrStderr(), session)
	return session.Err()
}

// printSession writes the script, or the fallback notice, to stdout and
// everything else to stderr
func printSession(stdout, stderr io.Writer, s *pipeline.Session) {
	if s.Succeeded() {
		fmt.Fprintln(stdout, s.Code)
	} else {
		fmt.Fprintln(stdout, fallbackNotice)
	}

	fmt.Fprintf(stderr, "Attempts: %d\n", s.AttemptCount)
	if len(s.Retrieval) > 0 {
		fmt.Fprintln(stderr, "Sources:")
		for _, src := range s.Sources() {
			fmt.Fprintf(stderr, "  - %s\n", src)
		}
	}

	if !s.Succeeded() {
		if s.LastError != "" {
			fmt.Fprintf(stderr, "Last error:\n%s\n", s.LastError)
		}
		return
	}

	if v := s.Verdict; v != nil {
		switch {
		case v.Err != nil:
			fmt.Fprintf(stderr, "Verifier unavailable: %v\n", v.Err)
		case !v.Match:
			fmt.Fprintf(stderr, "Verifier disagrees:\n%s\n", indent(v.Raw))
			if v.AltOutcome != nil {
				fmt.Fprintf(stderr, "Suggested alternative passes simulation: %t\n", v.AltOutcome.Passed)
			}
		}
	}
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
