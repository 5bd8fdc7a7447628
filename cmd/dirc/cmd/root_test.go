package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boletinlabs/dirc/internal/config"
	dircerrors "github.com/boletinlabs/dirc/internal/errors"
	"github.com/boletinlabs/dirc/pkg/version"
)

// runCommand executes the root command with args against a temp data
// dir and a static-embedder config, capturing stdout.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "dirc.yaml")
	cfgYAML := "version: 1\nstorage:\n  data_dir: " + filepath.Join(dir, "data") +
		"\nembeddings:\n  provider: static\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append(args, "--config", cfgPath, "--json"))

	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestVersionCmd_JSON(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info["version"])
}

func TestConfigShowCmd_ReportsStaticProvider(t *testing.T) {
	out, err := runCommand(t, "config", "show")
	require.NoError(t, err)

	var cfg map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	embeddings, ok := cfg["embeddings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "static", embeddings["provider"])
}

func TestConfigInitCmd_WritesAndRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "dirc.yaml")

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"config", "init", "--output", target})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.FileExists(t, target)

	root = NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"config", "init", "--output", target})
	assert.Error(t, root.ExecuteContext(context.Background()), "existing file needs --force")

	root = NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"config", "init", "--output", target, "--force"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	backups, err := config.ListConfigBackups(target)
	require.NoError(t, err)
	assert.Len(t, backups, 1, "overwrite keeps a backup of the previous file")
}

func TestStatsCmd_EmptyCorpus(t *testing.T) {
	out, err := runCommand(t, "stats")
	require.NoError(t, err)

	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Zero(t, stats.Documents)
	assert.Zero(t, stats.Vectors)
}

func TestIngestCmd_MissingFileFails(t *testing.T) {
	_, err := runCommand(t, "ingest", "no-such-file.pdf")
	assert.Error(t, err)
}

func TestSearchCmd_EmptyCorpus(t *testing.T) {
	out, err := runCommand(t, "search", "licitación", "--technique", "keyword")
	require.NoError(t, err)

	var resp map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.EqualValues(t, 0, resp["total_results"])
}

func TestVerifyCmd_RequiresTarget(t *testing.T) {
	_, err := runCommand(t, "verify")
	assert.Error(t, err)
}

func TestPurgeCmd_RequiresForce(t *testing.T) {
	_, err := runCommand(t, "purge", "doc-1")
	assert.Error(t, err)
}

func TestRenderError_PlainError(t *testing.T) {
	buf := &bytes.Buffer{}
	renderError(buf, assert.AnError)
	assert.Equal(t, "Error: "+assert.AnError.Error()+"\n", buf.String())

	buf.Reset()
	renderError(buf, nil)
	assert.Empty(t, buf.String())
}

func TestRenderError_StructuredErrorCarriesCode(t *testing.T) {
	// stdout is not a TTY under test, so structured errors render as JSON.
	buf := &bytes.Buffer{}
	renderError(buf, dircerrors.Busy("boletin-2024-05-01"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Equal(t, dircerrors.ErrCodeDocumentBusy, payload["code"])
	assert.NotEmpty(t, payload["suggestion"])
}
