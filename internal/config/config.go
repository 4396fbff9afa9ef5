// Package config loads the layered YAML configuration: hardcoded defaults,
// then the user config, then the project config, then QUILL_* environment
// variables, each layer overriding the one below.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete Quill configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Paths      PathsConfig      `yaml:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig locates the on-disk state.
type PathsConfig struct {
	// DataDir holds the keyword index, vector index and metadata database.
	DataDir string `yaml:"data_dir"`
	// ConfigStoreDir holds the dynamic config store (runtime markers).
	ConfigStoreDir string `yaml:"config_store_dir"`
}

// ChunkingConfig tunes how documents are split.
type ChunkingConfig struct {
	// ChunkSize is the per-chunk content budget in bytes.
	ChunkSize int `yaml:"chunk_size"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder. Currently "static" only.
	Provider  string `yaml:"provider"`
	BatchSize int    `yaml:"batch_size"`
	// CacheSize is the query embedding LRU capacity.
	CacheSize int `yaml:"cache_size"`
	// MiniChunks enables extra fine-grained vectors per chunk.
	MiniChunks bool `yaml:"mini_chunks"`
}

// SearchConfig tunes hybrid retrieval.
type SearchConfig struct {
	// KeywordWeight and SemanticWeight must sum to 1.0.
	KeywordWeight  float64 `yaml:"keyword_weight"`
	SemanticWeight float64 `yaml:"semantic_weight"`

	// RRFConstant is the fusion smoothing parameter (k). Default 60.
	RRFConstant int `yaml:"rrf_constant"`

	// DistanceCutoff drops vector matches beyond this distance. 0 disables.
	DistanceCutoff float64 `yaml:"distance_cutoff"`

	MaxResults int `yaml:"max_results"`
}

// IndexingConfig tunes the ingestion pipeline.
type IndexingConfig struct {
	// Workers is the chunking worker pool size.
	Workers int `yaml:"workers"`
	// ConnectorBatchSize is the preferred documents-per-batch hint passed
	// to connectors that honor it.
	ConnectorBatchSize int `yaml:"connector_batch_size"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// File is the log destination; empty logs to stderr.
	File string `yaml:"file"`
}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:        defaultDataDir(),
			ConfigStoreDir: filepath.Join(defaultDataDir(), "dynconfig"),
		},
		Chunking: ChunkingConfig{
			ChunkSize: 2000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			BatchSize:  32,
			CacheSize:  1000,
			MiniChunks: true,
		},
		Search: SearchConfig{
			KeywordWeight:  0.35,
			SemanticWeight: 0.65,
			RRFConstant:    60,
			DistanceCutoff: 0,
			MaxResults:     20,
		},
		Indexing: IndexingConfig{
			Workers:            maxInt(1, runtime.NumCPU()/2),
			ConnectorBatchSize: 16,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".quill")
	}
	return filepath.Join(home, ".quill")
}

// GetUserConfigPath returns the path to the user configuration file,
// following the XDG Base Directory layout.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "quill", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "quill", "config.yaml")
	}
	return filepath.Join(home, ".config", "quill", "config.yaml")
}

// Load loads configuration for a project directory, applying layers in order
// of increasing precedence:
//  1. Hardcoded defaults
//  2. User config (~/.config/quill/config.yaml)
//  3. Project config (.quill.yaml or .quill.yml in dir)
//  4. Environment variables (QUILL_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userPath := GetUserConfigPath()
	if fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromDir loads .quill.yaml (preferred) or .quill.yml from dir.
func (c *Config) loadFromDir(dir string) error {
	yamlPath := filepath.Join(dir, ".quill.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}
	ymlPath := filepath.Join(dir, ".quill.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}
	// No config file is fine, defaults apply.
	return nil
}

// loadYAML merges one YAML file into the config.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Paths.ConfigStoreDir != "" {
		c.Paths.ConfigStoreDir = other.Paths.ConfigStoreDir
	}

	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.DistanceCutoff != 0 {
		c.Search.DistanceCutoff = other.Search.DistanceCutoff
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	if other.Indexing.Workers != 0 {
		c.Indexing.Workers = other.Indexing.Workers
	}
	if other.Indexing.ConnectorBatchSize != 0 {
		c.Indexing.ConnectorBatchSize = other.Indexing.ConnectorBatchSize
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies QUILL_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QUILL_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("QUILL_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("QUILL_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("QUILL_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("QUILL_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("QUILL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("QUILL_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate checks the final configuration.
func (c *Config) Validate() error {
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("keyword_weight must be between 0 and 1, got %f", c.Search.KeywordWeight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	sum := c.Search.KeywordWeight + c.Search.SemanticWeight
	if math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("keyword_weight + semantic_weight must equal 1.0, got %.2f", sum)
	}

	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Chunking.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be non-negative, got %d", c.Chunking.ChunkSize)
	}
	if c.Indexing.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Indexing.Workers)
	}

	if c.Embeddings.Provider != "" {
		validProviders := map[string]bool{"static": true}
		if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'static', got %s", c.Embeddings.Provider)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
