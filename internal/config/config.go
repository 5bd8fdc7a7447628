// Package config loads, merges, and validates DIRC configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. Config file (explicit path, ./dirc.yaml, or the user config)
//  3. Environment variables (DIRC_*)
//
// The final configuration is validated before use so that every component
// downstream can trust the values it receives.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// Config is the root configuration for the ingestion and retrieval core.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Pipeline   PipelineConfig   `yaml:"pipeline" json:"pipeline"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StorageConfig locates the data directory and the files inside it.
type StorageConfig struct {
	// DataDir holds the SQLite database, the vector index, and the
	// process lock. Default: ~/.dirc (temp dir fallback).
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// DBName is the SQLite database file name inside DataDir.
	DBName string `yaml:"db_name" json:"db_name"`
	// VectorName is the vector index file name inside DataDir.
	VectorName string `yaml:"vector_name" json:"vector_name"`
}

// DatabasePath returns the full path to the SQLite database.
func (s StorageConfig) DatabasePath() string {
	return filepath.Join(s.DataDir, s.DBName)
}

// VectorPath returns the full path to the persisted vector index.
func (s StorageConfig) VectorPath() string {
	return filepath.Join(s.DataDir, s.VectorName)
}

// LockPath returns the path of the cross-process data directory lock.
func (s StorageConfig) LockPath() string {
	return filepath.Join(s.DataDir, "dirc.lock")
}

// ChunkingConfig controls how cleaned documents are split.
type ChunkingConfig struct {
	// ChunkSize is the target chunk size in characters.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the number of trailing characters carried into the
	// next chunk. Must be strictly smaller than ChunkSize.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	// MinChunkSize is the minimum size of an emitted chunk; shorter
	// fragments are merged into a neighbor.
	MinChunkSize int `yaml:"min_chunk_size" json:"min_chunk_size"`
	// Separators overrides the built-in separator hierarchy when set.
	// Leave empty to use the gazette-aware defaults in internal/chunk.
	Separators []string `yaml:"separators,omitempty" json:"separators,omitempty"`
}

// EmbeddingsConfig selects and tunes the embedding backend.
type EmbeddingsConfig struct {
	// Provider is "local", "openai", or "static". Empty triggers
	// auto-detection: local endpoint if reachable, static otherwise.
	Provider string `yaml:"provider" json:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`
	// Dimensions is the expected vector width. 0 probes the embedder.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// Endpoint is the local provider HTTP endpoint.
	// Empty uses http://localhost:11434.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// BatchSize is the number of texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the number of entries in the embedding LRU cache.
	// 0 disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// SearchConfig tunes retrieval behavior.
type SearchConfig struct {
	// TopK is the default number of results when the caller passes none.
	TopK int `yaml:"top_k" json:"top_k"`
	// RRFK is the reciprocal-rank-fusion constant. k=60 is the industry
	// standard (Azure AI Search, OpenSearch).
	RRFK int `yaml:"rrf_k" json:"rrf_k"`
	// CandidateMultiplier widens each hybrid leg to top_k*multiplier
	// candidates before fusion.
	CandidateMultiplier int `yaml:"candidate_multiplier" json:"candidate_multiplier"`
	// RerankDepth caps how many fused results the reranker sees.
	RerankDepth int `yaml:"rerank_depth" json:"rerank_depth"`
	// HighlightWindow is the size in characters of the highlight snippet.
	HighlightWindow int `yaml:"highlight_window" json:"highlight_window"`
	// EmbedTimeout bounds query embedding, e.g. "30s".
	EmbedTimeout string `yaml:"embed_timeout" json:"embed_timeout"`
	// VectorTimeout bounds the vector search leg, e.g. "30s".
	VectorTimeout string `yaml:"vector_timeout" json:"vector_timeout"`
	// KeywordTimeout bounds the keyword search leg, e.g. "10s".
	KeywordTimeout string `yaml:"keyword_timeout" json:"keyword_timeout"`
}

// PipelineConfig sets the default ingestion options. Per-call options
// still override these.
type PipelineConfig struct {
	// SkipCleaning bypasses text normalization.
	SkipCleaning bool `yaml:"skip_cleaning" json:"skip_cleaning"`
	// SkipEnrichment bypasses metadata extraction.
	SkipEnrichment bool `yaml:"skip_enrichment" json:"skip_enrichment"`
	// UseTripleIndexing writes all three indexes transactionally.
	// When false, only the vector index is written (legacy mode).
	UseTripleIndexing bool `yaml:"use_triple_indexing" json:"use_triple_indexing"`
	// BatchWorkers is the number of documents ingested in parallel by
	// batch runs. Per-document locks keep concurrent ingests safe.
	BatchWorkers int `yaml:"batch_workers" json:"batch_workers"`
}

// WatchConfig tunes the drop-directory watcher.
type WatchConfig struct {
	// Debounce is how long to wait after the last write event before
	// considering a file for ingestion, e.g. "500ms".
	Debounce string `yaml:"debounce" json:"debounce"`
	// PollInterval is the interval between file-size stability checks.
	PollInterval string `yaml:"poll_interval" json:"poll_interval"`
	// Patterns are the glob patterns of files to pick up.
	Patterns []string `yaml:"patterns" json:"patterns"`
}

// LoggingConfig controls the structured log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// File is the log file path. Empty uses the default location.
	File string `yaml:"file" json:"file"`
	// MaxSizeMB rotates the log file once it exceeds this size.
	MaxSizeMB int `yaml:"max_size_mb" json:"max_size_mb"`
	// MaxFiles is the number of rotated log files to keep.
	MaxFiles int `yaml:"max_files" json:"max_files"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Storage: StorageConfig{
			DataDir:    DefaultDataDir(),
			DBName:     "dirc.db",
			VectorName: "vectors.hnsw",
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
			MinChunkSize: 100,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "", // Empty triggers auto-detection: local endpoint, then static
			Model:      "nomic-embed-text",
			Dimensions: 0, // Auto-detect from embedder
			Endpoint:   "",
			BatchSize:  32,
			CacheSize:  2048,
		},
		Search: SearchConfig{
			TopK: 10,
			// RRF constant k=60 is industry standard (Azure AI Search, OpenSearch)
			RRFK:                60,
			CandidateMultiplier: 2,
			RerankDepth:         20,
			HighlightWindow:     150,
			EmbedTimeout:        "30s",
			VectorTimeout:       "30s",
			KeywordTimeout:      "10s",
		},
		Pipeline: PipelineConfig{
			SkipCleaning:      false,
			SkipEnrichment:    false,
			UseTripleIndexing: true,
			BatchWorkers:      2,
		},
		Watch: WatchConfig{
			Debounce:     "500ms",
			PollInterval: "500ms",
			Patterns:     []string{"*.pdf"},
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      "",
			MaxSizeMB: 10,
			MaxFiles:  3,
		},
	}
}

// DefaultDataDir returns the default data directory (~/.dirc), falling
// back to the temp directory when the home directory is unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".dirc")
	}
	return filepath.Join(home, ".dirc")
}

// GetUserConfigPath returns the path to the user configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/dirc/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/dirc/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "dirc", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "dirc", "config.yaml")
	}
	return filepath.Join(home, ".config", "dirc", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load loads configuration, starting from defaults and overlaying the
// first config file found, then DIRC_* environment variables.
//
// When path is non-empty it must exist; otherwise the search order is
// $DIRC_CONFIG, ./dirc.yaml, ./dirc.yml, then the user config. Running
// without any config file is fine.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}
	if resolved != "" {
		if err := cfg.loadYAML(resolved); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveConfigPath finds the config file to load, or "" when none exists.
func resolveConfigPath(path string) (string, error) {
	if path != "" {
		if !fileExists(path) {
			return "", dircerrors.New(dircerrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", path), nil).
				WithSuggestion("Check the --config path or remove the flag to use defaults")
		}
		return path, nil
	}
	if env := os.Getenv("DIRC_CONFIG"); env != "" {
		if !fileExists(env) {
			return "", dircerrors.New(dircerrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s (from DIRC_CONFIG)", env), nil)
		}
		return env, nil
	}
	for _, candidate := range []string{"dirc.yaml", "dirc.yml"} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	if UserConfigExists() {
		return GetUserConfigPath(), nil
	}
	return "", nil
}

// loadYAML overlays the file's values onto c. Fields absent from the
// file keep their current values, so unmarshalling directly into the
// defaults gives correct merge semantics for booleans too.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return dircerrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return dircerrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithSuggestion("Fix the YAML syntax or regenerate the file with 'dirc config init'")
	}
	return nil
}

// applyEnvOverrides applies DIRC_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DIRC_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("DIRC_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	// DIRC_EMBEDDER is an alias for DIRC_EMBEDDINGS_PROVIDER
	if v := os.Getenv("DIRC_EMBEDDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DIRC_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DIRC_EMBEDDINGS_ENDPOINT"); v != "" {
		c.Embeddings.Endpoint = v
	}
	if v := os.Getenv("DIRC_RRF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFK = k
		}
	}
	if v := os.Getenv("DIRC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration and returns a structured error for
// the first violation found.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return dircerrors.ConfigError("storage.data_dir must not be empty", nil)
	}
	if c.Storage.DBName == "" || c.Storage.VectorName == "" {
		return dircerrors.ConfigError("storage.db_name and storage.vector_name must not be empty", nil)
	}

	if err := c.Chunking.validate(); err != nil {
		return err
	}

	if p := strings.ToLower(c.Embeddings.Provider); p != "" {
		valid := map[string]bool{"local": true, "openai": true, "static": true}
		if !valid[p] {
			return dircerrors.ConfigError(
				fmt.Sprintf("embeddings.provider must be 'local', 'openai', 'static', or empty (auto-detect), got %q", c.Embeddings.Provider), nil)
		}
	}
	if c.Embeddings.BatchSize < 1 {
		return dircerrors.ConfigError(
			fmt.Sprintf("embeddings.batch_size must be at least 1, got %d", c.Embeddings.BatchSize), nil)
	}
	if c.Embeddings.Dimensions < 0 {
		return dircerrors.ConfigError(
			fmt.Sprintf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions), nil)
	}
	if c.Embeddings.CacheSize < 0 {
		return dircerrors.ConfigError(
			fmt.Sprintf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize), nil)
	}

	if c.Search.TopK < 1 || c.Search.TopK > 100 {
		return dircerrors.ConfigError(
			fmt.Sprintf("search.top_k must be between 1 and 100, got %d", c.Search.TopK), nil)
	}
	if c.Search.RRFK < 1 {
		return dircerrors.ConfigError(
			fmt.Sprintf("search.rrf_k must be at least 1, got %d", c.Search.RRFK), nil)
	}
	if c.Search.CandidateMultiplier < 1 {
		return dircerrors.ConfigError(
			fmt.Sprintf("search.candidate_multiplier must be at least 1, got %d", c.Search.CandidateMultiplier), nil)
	}
	if c.Search.RerankDepth < 0 {
		return dircerrors.ConfigError(
			fmt.Sprintf("search.rerank_depth must be non-negative, got %d", c.Search.RerankDepth), nil)
	}
	if c.Search.HighlightWindow < 20 {
		return dircerrors.ConfigError(
			fmt.Sprintf("search.highlight_window must be at least 20, got %d", c.Search.HighlightWindow), nil)
	}
	for _, tc := range []struct{ name, value string }{
		{"search.embed_timeout", c.Search.EmbedTimeout},
		{"search.vector_timeout", c.Search.VectorTimeout},
		{"search.keyword_timeout", c.Search.KeywordTimeout},
		{"watch.debounce", c.Watch.Debounce},
		{"watch.poll_interval", c.Watch.PollInterval},
	} {
		if d, err := time.ParseDuration(tc.value); err != nil || d <= 0 {
			return dircerrors.ConfigError(
				fmt.Sprintf("%s must be a positive duration, got %q", tc.name, tc.value), err)
		}
	}

	if c.Pipeline.BatchWorkers < 1 {
		return dircerrors.ConfigError(
			fmt.Sprintf("pipeline.batch_workers must be at least 1, got %d", c.Pipeline.BatchWorkers), nil)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return dircerrors.ConfigError(
			fmt.Sprintf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level), nil)
	}

	return nil
}

// validate checks the chunking section. Violations here carry the
// chunk-config error code because callers can also hit them through
// per-call ingestion options.
func (ch ChunkingConfig) validate() error {
	if ch.ChunkSize < 1 {
		return dircerrors.New(dircerrors.ErrCodeInvalidChunkConfig,
			fmt.Sprintf("chunking.chunk_size must be at least 1, got %d", ch.ChunkSize), nil)
	}
	if ch.ChunkOverlap < 0 {
		return dircerrors.New(dircerrors.ErrCodeInvalidChunkConfig,
			fmt.Sprintf("chunking.chunk_overlap must be non-negative, got %d", ch.ChunkOverlap), nil)
	}
	if ch.ChunkOverlap >= ch.ChunkSize {
		return dircerrors.New(dircerrors.ErrCodeInvalidChunkConfig,
			fmt.Sprintf("chunking.chunk_overlap (%d) must be smaller than chunk_size (%d)", ch.ChunkOverlap, ch.ChunkSize), nil).
			WithSuggestion("A common split is chunk_size 1000 with chunk_overlap 200")
	}
	if ch.MinChunkSize < 0 || ch.MinChunkSize > ch.ChunkSize {
		return dircerrors.New(dircerrors.ErrCodeInvalidChunkConfig,
			fmt.Sprintf("chunking.min_chunk_size must be between 0 and chunk_size, got %d", ch.MinChunkSize), nil)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return dircerrors.ConfigError("failed to marshal config", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return dircerrors.ConfigError(fmt.Sprintf("failed to write config file %s", path), err)
	}
	return nil
}

// Duration parses s, falling back when it is empty or malformed. Config
// durations are validated at load time, so the fallback only matters for
// zero-value configs built in tests.
func Duration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
