package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perbu/labrag/pkg/index"
	"github.com/perbu/labrag/pkg/loader"
)

type searchOptions struct {
	top     int
	full    bool
	context int
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query> [api-key]",
		Short: "Show the documentation chunks retrieved for a query",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(cmd, args, opts)
		},
	}

	cmd.Flags().IntVar(&opts.top, "top", index.DefaultTopK, "number of results to return")
	cmd.Flags().BoolVar(&opts.full, "full", false, "show full content instead of just sources")
	cmd.Flags().IntVar(&opts.context, "context", 0, "number of surrounding chunks to show for context")
	return cmd
}

func (a *app) runSearch(cmd *cobra.Command, args []string, opts searchOptions) error {
	apiKey, err := a.embedderKey(args, 1)
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

	queryEmbedding, err := emb.Embed(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("embedding query: %w", err)
	}

	results, err := index.Search(idx, queryEmbedding, opts.top)
	if err != nil {
		return err
	}

	printResults(cmd.OutOrStdout(), idx, results, opts)
	return nil
}

func printResults(out io.Writer, idx *index.VectorIndex, results []index.Result, opts searchOptions) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No results found")
		return
	}

	fmt.Fprintf(out, "Found %d results:\n\n", len(results))
	for i, result := range results {
		fmt.Fprintf(out, "Distance: %.4f | %s\n", result.Distance, result.Chunk.Label())

		if !opts.full && opts.context <= 0 {
			continue
		}
		fmt.Fprintln(out)

		if opts.context > 0 {
			surrounding := findSurroundingChunks(idx, result.Ordinal, opts.context)
			for j, c := range surrounding {
				if c.ordinal == result.Ordinal {
					fmt.Fprintln(out, ">>> MATCHED CHUNK <<<")
				}
				fmt.Fprintf(out, "[%s]\n%s\n", c.chunk.Label(), c.chunk.Content)
				if j < len(surrounding)-1 {
					fmt.Fprintln(out)
				}
			}
		} else {
			fmt.Fprintln(out, result.Chunk.Content)
		}

		if i < len(results)-1 {
			fmt.Fprintln(out, "\n"+strings.Repeat("-", 80)+"\n")
		}
	}
}

type ordinalChunk struct {
	ordinal int
	chunk   loader.Chunk
}

// findSurroundingChunks returns chunks before and after the target ordinal from the same file
func findSurroundingChunks(idx *index.VectorIndex, target, contextSize int) []ordinalChunk {
	if target < 0 || target >= idx.Len() {
		return nil
	}
	path := idx.Chunks[target].Path

	start := max(target-contextSize, 0)
	end := min(target+contextSize+1, idx.Len())

	var result []ordinalChunk
	for i := start; i < end; i++ {
		if idx.Chunks[i].Path == path {
			result = append(result, ordinalChunk{ordinal: i, chunk: idx.Chunks[i]})
		}
	}
	return result
}
