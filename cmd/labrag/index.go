package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index [api-key]",
		Short: "Chunk and embed the corpus into the index cache",
		Long: `Builds the vector index for the documentation corpus and stores it in the
cache directory, so later generate and search runs skip embedding.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIndex(cmd, args)
		},
	}
}

func (a *app) runIndex(cmd *cobra.Command, args []string) error {
	if a.cfg.Index.CacheDir == "" {
		return errors.New("index cache is disabled: set index.cache_dir or --cache-dir")
	}

	apiKey, err := a.embedderKey(args, 0)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Step 1: Initializing embedder...")
	emb, err := a.newEmbedder(apiKey)
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}
	fmt.Fprintf(out, "  ✓ Embedder initialized (model=%s, dim=%d)\n\n", emb.ModelInfo(), emb.Dimension())

	fmt.Fprintf(out, "Step 2: Indexing %s...\n", a.cfg.Corpus.Root)
	progress := func(done, total int) {
		if done%10 == 0 || done == total {
			fmt.Fprintf(out, "\r  Progress: %d/%d (%.1f%%)", done, total, float64(done)/float64(total)*100)
			if done == total {
				fmt.Fprintln(out)
			}
		}
	}

	idx, err := a.buildIndex(cmd, emb, progress)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "  ✓ %d chunks indexed (dim=%d, model=%s)\n", idx.Len(), idx.Dimension, idx.ModelInfo)
	fmt.Fprintf(out, "  ✓ Cached in %s\n", a.cfg.Index.CacheDir)
	return nil
}
