package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoCredentials is returned when no API key could be found anywhere
var ErrNoCredentials = errors.New("no API key: pass one as an argument, mount a secret file or set the environment variable")

// CorpusConfig locates the documentation corpus.
type CorpusConfig struct {
	Root      string `yaml:"root"`
	Extension string `yaml:"extension"`
	ChunkSize int    `yaml:"chunk_size"`
}

// EmbedderConfig selects and configures the text embedder.
type EmbedderConfig struct {
	Provider          string        `yaml:"provider"` // "openai" or "hash"
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Dimension         int           `yaml:"dimension"` // hash provider only
}

// GeneratorConfig configures the completion model.
type GeneratorConfig struct {
	Model        string `yaml:"model"`
	BaseURL      string `yaml:"base_url"`
	SystemPrompt string `yaml:"system_prompt"`
}

// SimulatorConfig configures the external protocol simulator.
type SimulatorConfig struct {
	Binary      string        `yaml:"binary"`
	WorkDir     string        `yaml:"work_dir"`
	Timeout     time.Duration `yaml:"timeout"`
	KeepScripts bool          `yaml:"keep_scripts"`
}

// PipelineConfig bounds retrieval and the correction loop.
type PipelineConfig struct {
	TopK        int  `yaml:"top_k"`
	MaxAttempts int  `yaml:"max_attempts"`
	Verify      bool `yaml:"verify"`
}

// IndexConfig configures the on-disk index cache. An empty CacheDir disables it.
type IndexConfig struct {
	CacheDir string `yaml:"cache_dir"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// CredentialsConfig names where the API key may be found.
type CredentialsConfig struct {
	SecretFile string `yaml:"secret_file"`
	Env        string `yaml:"env"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus      CorpusConfig      `yaml:"corpus"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Simulator   SimulatorConfig   `yaml:"simulator"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Index       IndexConfig       `yaml:"index"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// Load reads a config from path. A missing file yields the defaults; keys
// absent from the file keep their default values.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./labrag.yaml first, then ~/.config/labrag/config.yaml.
// If neither exists it returns the defaults and an empty path.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "labrag.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err == nil {
		if _, err := os.Stat(userPath); err == nil {
			cfg, err := Load(userPath)
			return cfg, userPath, err
		}
	}
	return defaultConfig(), "", nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings no component can work with
func (c *AppConfig) Validate() error {
	switch c.Embedder.Provider {
	case "openai", "hash":
	default:
		return fmt.Errorf("unknown embedder provider %q", c.Embedder.Provider)
	}
	if c.Corpus.ChunkSize < 0 {
		return fmt.Errorf("corpus.chunk_size must not be negative")
	}
	if c.Simulator.Timeout < 0 {
		return fmt.Errorf("simulator.timeout must not be negative")
	}
	return nil
}

// ResolveAPIKey returns arg when set, else the content of the mounted secret
// file, else the configured environment variable.
func (c *AppConfig) ResolveAPIKey(arg string) (string, error) {
	if key := strings.TrimSpace(arg); key != "" {
		return key, nil
	}
	if c.Credentials.SecretFile != "" {
		data, err := os.ReadFile(c.Credentials.SecretFile)
		switch {
		case err == nil:
			if key := strings.TrimSpace(string(data)); key != "" {
				return key, nil
			}
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("reading secret file: %w", err)
		}
	}
	if c.Credentials.Env != "" {
		if key := strings.TrimSpace(os.Getenv(c.Credentials.Env)); key != "" {
			return key, nil
		}
	}
	return "", ErrNoCredentials
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "labrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Corpus: CorpusConfig{Root: "docs", Extension: ".rst", ChunkSize: 3000},
		Embedder: EmbedderConfig{
			Provider:    "openai",
			Model:       "text-embedding-3-small",
			MaxAttempts: 5,
			BaseDelay:   2 * time.Second,
			Dimension:   256,
		},
		Generator: GeneratorConfig{Model: "gpt-5"},
		Simulator: SimulatorConfig{Binary: "opentrons_simulate", Timeout: 2 * time.Minute},
		Pipeline:  PipelineConfig{TopK: 5, MaxAttempts: 5, Verify: true},
		Index:     IndexConfig{CacheDir: filepath.Join(".labrag", "cache")},
		Log:       LogConfig{Level: "info"},
		Credentials: CredentialsConfig{
			SecretFile: "/run/secrets/brsbot_api_key",
			Env:        "OPENAI_API_KEY",
		},
	}
}

// applyConfigDefaults restores defaults for values explicitly zeroed in the file
func applyConfigDefaults(cfg *AppConfig) {
	d := defaultConfig()
	if cfg.Corpus.Root == "" {
		cfg.Corpus.Root = d.Corpus.Root
	}
	if cfg.Corpus.Extension == "" {
		cfg.Corpus.Extension = d.Corpus.Extension
	}
	if !strings.HasPrefix(cfg.Corpus.Extension, ".") {
		cfg.Corpus.Extension = "." + cfg.Corpus.Extension
	}
	if cfg.Corpus.ChunkSize == 0 {
		cfg.Corpus.ChunkSize = d.Corpus.ChunkSize
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = d.Embedder.Provider
	}
	cfg.Embedder.Provider = strings.ToLower(cfg.Embedder.Provider)
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = d.Embedder.Model
	}
	if cfg.Embedder.MaxAttempts <= 0 {
		cfg.Embedder.MaxAttempts = d.Embedder.MaxAttempts
	}
	if cfg.Embedder.BaseDelay <= 0 {
		cfg.Embedder.BaseDelay = d.Embedder.BaseDelay
	}
	if cfg.Embedder.Dimension <= 0 {
		cfg.Embedder.Dimension = d.Embedder.Dimension
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = d.Generator.Model
	}
	if cfg.Simulator.Binary == "" {
		cfg.Simulator.Binary = d.Simulator.Binary
	}
	if cfg.Pipeline.TopK <= 0 {
		cfg.Pipeline.TopK = d.Pipeline.TopK
	}
	if cfg.Pipeline.MaxAttempts <= 0 {
		cfg.Pipeline.MaxAttempts = d.Pipeline.MaxAttempts
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = d.Log.Level
	}
}
