package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/perbu/labrag/pkg/config"
	"github.com/perbu/labrag/pkg/embedder"
	"github.com/perbu/labrag/pkg/index"
	"github.com/perbu/labrag/pkg/logging"
	"github.com/perbu/labrag/pkg/metrics"
	"github.com/perbu/labrag/pkg/pipeline"
)

// app carries what every subcommand shares once flags are parsed
type app struct {
	configPath  string
	verbose     bool
	docs        string
	cacheDir    string
	metricsFile string

	cfg     *config.AppConfig
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "labrag",
		Short: "Generate simulator-validated Opentrons protocols from documentation",
		Long: `labrag answers a lab-automation request with a Python protocol script.
It retrieves relevant passages from a documentation corpus, asks a language
model for a script and runs it through the Opentrons simulator, repairing it
until it simulates cleanly or the attempt budget runs out.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default ./labrag.yaml or ~/.config/labrag/config.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&a.docs, "docs", "", "documentation corpus root (overrides corpus.root)")
	pf.StringVar(&a.cacheDir, "cache-dir", "", "index cache directory (overrides index.cache_dir)")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	root.AddCommand(newGenerateCmd(a), newIndexCmd(a), newSearchCmd(a))
	return root, a
}

// setup loads configuration, applies flag overrides and builds the logger
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var (
		cfg  *config.AppConfig
		path string
		err  error
	)
	if a.configPath != "" {
		path = a.configPath
		cfg, err = config.Load(path)
	} else {
		cfg, path, err = config.LoadDefault()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("docs") {
		cfg.Corpus.Root = a.docs
	}
	if flags.Changed("cache-dir") {
		cfg.Index.CacheDir = a.cacheDir
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile = a.metricsFile
	}

	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.metrics = metrics.New()

	if path != "" {
		logger.Debug("configuration loaded", zap.String("path", path))
	}
	return nil
}

// finish flushes logs and exports metrics; it runs whatever the outcome
func (a *app) finish(stderr io.Writer) {
	if a.cfg != nil {
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			fmt.Fprintf(stderr, "Warning: writing metrics: %v\n", err)
		}
	}
	_ = a.logger.Sync()
}

// newEmbedder builds the configured embedder. The hash provider needs no key.
func (a *app) newEmbedder(apiKey string) (embedder.Embedder, error) {
	ec := a.cfg.Embedder
	if ec.Provider == "hash" {
		return embedder.NewHashEmbedder(ec.Dimension), nil
	}

	return embedder.NewOpenAIEmbedder(embedder.Config{
		APIKey:            apiKey,
		BaseURL:           ec.BaseURL,
		Model:             ec.Model,
		MaxAttempts:       ec.MaxAttempts,
		BaseDelay:         ec.BaseDelay,
		RequestsPerSecond: ec.RequestsPerSecond,
		Logger:            a.logger.Named("embedder"),
		OnRetry:           a.metrics.IncEmbeddingRetries,
	})
}

// embedderKey resolves credentials only when the embedder needs them
func (a *app) embedderKey(args []string, pos int) (string, error) {
	if a.cfg.Embedder.Provider == "hash" && len(args) <= pos {
		return "", nil
	}
	return a.cfg.ResolveAPIKey(argAt(args, pos))
}

func (a *app) buildIndex(cmd *cobra.Command, emb embedder.Embedder, progress func(done, total int)) (*index.VectorIndex, error) {
	return pipeline.BuildIndex(cmd.Context(), pipeline.BuildOptions{
		FS:        os.DirFS(a.cfg.Corpus.Root),
		Root:      ".",
		Ext:       a.cfg.Corpus.Extension,
		ChunkSize: a.cfg.Corpus.ChunkSize,
		Embedder:  emb,
		Cache:     index.NewCache(a.cfg.Index.CacheDir),
		Logger:    a.logger.Named("index"),
		Metrics:   a.metrics,
		Progress:  progress,
	})
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
