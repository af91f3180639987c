package pipeline

import (
	"context"
	"fmt"
	"io/fs"

	"go.uber.org/zap"

	"github.com/perbu/labrag/pkg/embedder"
	"github.com/perbu/labrag/pkg/index"
	"github.com/perbu/labrag/pkg/loader"
	"github.com/perbu/labrag/pkg/metrics"
)

// BuildOptions describes where the corpus lives and how to embed it
type BuildOptions struct {
	FS        fs.FS
	Root      string
	Ext       string
	ChunkSize int

	Embedder embedder.Embedder
	Cache    *index.Cache // nil disables caching

	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Progress func(done, total int)
}

// BuildIndex chunks and embeds the corpus. A cached index for the same
// content and embedding model is reused instead of calling the embedder.
func BuildIndex(ctx context.Context, opts BuildOptions) (*index.VectorIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = loader.DefaultChunkSize
	}
	if opts.Embedder == nil {
		return nil, fmt.Errorf("building index: no embedder")
	}

	docs, chunks, err := loader.ChunkCorpus(opts.FS, opts.Root, opts.Ext, opts.ChunkSize)
	if err != nil {
		return nil, err
	}
	logger.Info("corpus chunked",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", opts.ChunkSize))

	key := loader.ContentHash(docs, opts.ChunkSize)
	modelInfo := opts.Embedder.ModelInfo()

	cached, err := opts.Cache.Load(key)
	switch {
	case err != nil:
		logger.Warn("ignoring unreadable index cache", zap.Error(err))
	case cached != nil && cached.ModelInfo != modelInfo:
		logger.Info("cached index was built with another model, rebuilding",
			zap.String("cached_model", cached.ModelInfo),
			zap.String("model", modelInfo))
	case cached != nil:
		logger.Info("using cached index", zap.String("key", key[:12]), zap.Int("chunks", cached.Len()))
		opts.Metrics.SetIndexChunks(cached.Len())
		return cached, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embeddings, err := embedder.EmbedAll(ctx, opts.Embedder, texts, opts.Progress)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}

	idx, err := index.Build(chunks, embeddings, modelInfo)
	if err != nil {
		return nil, fmt.Errorf("building index: %w", err)
	}

	if err := opts.Cache.Save(key, idx); err != nil {
		logger.Warn("could not cache index", zap.Error(err))
	} else if opts.Cache.Enabled() {
		logger.Debug("index cached", zap.String("dir", opts.Cache.Dir), zap.String("key", key[:12]))
	}

	opts.Metrics.SetIndexChunks(idx.Len())
	return idx, nil
}
