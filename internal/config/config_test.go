package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// isolateUserConfig points the XDG config lookup at an empty temp dir so
// a developer's real user config cannot leak into tests.
func isolateUserConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Version)

	// Storage defaults
	assert.Equal(t, "dirc.db", cfg.Storage.DBName)
	assert.Equal(t, "vectors.hnsw", cfg.Storage.VectorName)
	assert.NotEmpty(t, cfg.Storage.DataDir)

	// Chunking defaults
	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
	assert.Equal(t, 200, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 100, cfg.Chunking.MinChunkSize)
	assert.Empty(t, cfg.Chunking.Separators) // Empty means the built-in hierarchy

	// Embeddings defaults
	assert.Equal(t, "", cfg.Embeddings.Provider) // Empty triggers auto-detection
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 0, cfg.Embeddings.Dimensions) // Auto-detect from embedder
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)

	// Search defaults
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 60, cfg.Search.RRFK) // Industry standard k=60
	assert.Equal(t, 2, cfg.Search.CandidateMultiplier)
	assert.Equal(t, 20, cfg.Search.RerankDepth)
	assert.Equal(t, 150, cfg.Search.HighlightWindow)
	assert.Equal(t, "30s", cfg.Search.EmbedTimeout)
	assert.Equal(t, "30s", cfg.Search.VectorTimeout)
	assert.Equal(t, "10s", cfg.Search.KeywordTimeout)

	// Pipeline defaults
	assert.False(t, cfg.Pipeline.SkipCleaning)
	assert.False(t, cfg.Pipeline.SkipEnrichment)
	assert.True(t, cfg.Pipeline.UseTripleIndexing)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestNewConfig_PassesValidation(t *testing.T) {
	require.NoError(t, NewConfig().Validate())
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	isolateUserConfig(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Chunking.ChunkSize)
	assert.Equal(t, 60, cfg.Search.RRFK)
}

func TestLoad_YamlFile_OverridesDefaults(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "dirc.yaml")
	content := `
chunking:
  chunk_size: 800
  chunk_overlap: 150
search:
  rrf_k: 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, 800, cfg.Chunking.ChunkSize)
	assert.Equal(t, 150, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 30, cfg.Search.RRFK)

	// Untouched values keep their defaults
	assert.Equal(t, 100, cfg.Chunking.MinChunkSize)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
}

func TestLoad_FalseBoolean_OverridesTrueDefault(t *testing.T) {
	// use_triple_indexing defaults to true; an explicit false in the
	// file must win. This is the reason the loader unmarshals into the
	// defaults instead of merging non-zero values.
	isolateUserConfig(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "dirc.yaml")
	content := `
pipeline:
  use_triple_indexing: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Pipeline.UseTripleIndexing)
}

func TestLoad_ConfigDiscoveredInWorkingDir(t *testing.T) {
	isolateUserConfig(t)
	dir := t.TempDir()
	content := "chunking:\n  chunk_size: 640\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dirc.yaml"), []byte(content), 0o644))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Chunking.ChunkSize)
}

func TestLoad_ExplicitMissingPath_ReturnsNotFound(t *testing.T) {
	isolateUserConfig(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, dircerrors.ErrCodeConfigNotFound, dircerrors.GetCode(err))
}

func TestLoad_InvalidYaml_ReturnsError(t *testing.T) {
	isolateUserConfig(t)
	path := filepath.Join(t.TempDir(), "dirc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, dircerrors.ErrCodeConfigInvalid, dircerrors.GetCode(err))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolateUserConfig(t)
	path := filepath.Join(t.TempDir(), "dirc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embeddings:\n  model: from-file\n"), 0o644))

	t.Setenv("DIRC_EMBEDDINGS_MODEL", "from-env")
	t.Setenv("DIRC_RRF_K", "45")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Embeddings.Model)
	assert.Equal(t, 45, cfg.Search.RRFK)
}

func TestLoad_MalformedEnvValue_IsIgnored(t *testing.T) {
	isolateUserConfig(t)
	t.Chdir(t.TempDir())
	t.Setenv("DIRC_RRF_K", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Search.RRFK)
}

func TestLoad_DircConfigEnvPointsAtFile(t *testing.T) {
	isolateUserConfig(t)
	path := filepath.Join(t.TempDir(), "elsewhere.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search:\n  top_k: 25\n"), 0o644))
	t.Setenv("DIRC_CONFIG", path)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Search.TopK)
}

func TestValidate_OverlapNotSmallerThanSize_Rejected(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunking.ChunkSize = 200
	cfg.Chunking.ChunkOverlap = 200

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, dircerrors.ErrCodeInvalidChunkConfig, dircerrors.GetCode(err))
}

func TestValidate_NegativeOverlap_Rejected(t *testing.T) {
	cfg := NewConfig()
	cfg.Chunking.ChunkOverlap = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, dircerrors.ErrCodeInvalidChunkConfig, dircerrors.GetCode(err))
}

func TestValidate_UnknownProvider_Rejected(t *testing.T) {
	cfg := NewConfig()
	cfg.Embeddings.Provider = "mainframe"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, dircerrors.ErrCodeConfigInvalid, dircerrors.GetCode(err))
}

func TestValidate_TopKOutOfRange_Rejected(t *testing.T) {
	for _, topK := range []int{0, 101} {
		cfg := NewConfig()
		cfg.Search.TopK = topK
		assert.Error(t, cfg.Validate(), "top_k=%d should be rejected", topK)
	}
}

func TestValidate_BadTimeout_Rejected(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.KeywordTimeout = "soon"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keyword_timeout")
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	isolateUserConfig(t)
	cfg := NewConfig()
	cfg.Chunking.ChunkSize = 512
	cfg.Embeddings.Provider = "static"

	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 512, loaded.Chunking.ChunkSize)
	assert.Equal(t, "static", loaded.Embeddings.Provider)
}

func TestDuration_ParsesAndFallsBack(t *testing.T) {
	assert.Equal(t, 30*time.Second, Duration("30s", time.Second))
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("garbage", time.Second))
	assert.Equal(t, time.Second, Duration("-5s", time.Second))
}

func TestStoragePaths_JoinDataDir(t *testing.T) {
	s := StorageConfig{DataDir: "/var/lib/dirc", DBName: "dirc.db", VectorName: "vectors.hnsw"}
	assert.Equal(t, filepath.Join("/var/lib/dirc", "dirc.db"), s.DatabasePath())
	assert.Equal(t, filepath.Join("/var/lib/dirc", "vectors.hnsw"), s.VectorPath())
	assert.Equal(t, filepath.Join("/var/lib/dirc", "dirc.lock"), s.LockPath())
}

func TestGetUserConfigPath_RespectsXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
	assert.Equal(t, filepath.Join("/tmp/xdg-test", "dirc", "config.yaml"), GetUserConfigPath())
}
