package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupConfig_NoFile_ReturnsEmpty(t *testing.T) {
	backup, err := BackupConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, backup)
}

func TestBackupConfig_CopiesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	backup, err := BackupConfig(path)
	require.NoError(t, err)
	require.NotEmpty(t, backup)
	assert.Contains(t, backup, ".bak.")

	data, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestBackupConfig_KeepsOnlyMaxBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	// Pre-seed more backups than the retention limit, with distinct
	// mtimes so the sort order is deterministic.
	for i := 0; i < MaxBackups+2; i++ {
		stale := path + BackupSuffix + ".202401010000" + string(rune('0'+i))
		require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
		mtime := time.Now().Add(-time.Duration(MaxBackups+2-i) * time.Hour)
		require.NoError(t, os.Chtimes(stale, mtime, mtime))
	}

	_, err := BackupConfig(path)
	require.NoError(t, err)

	backups, err := ListConfigBackups(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(backups), MaxBackups)
}

func TestListConfigBackups_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	older := path + BackupSuffix + ".20240101-000000"
	newer := path + BackupSuffix + ".20250101-000000"
	require.NoError(t, os.WriteFile(older, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(newer, []byte("new"), 0o644))
	past := time.Now().Add(-24 * time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	backups, err := ListConfigBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, newer, backups[0])
}

func TestListConfigBackups_MissingDir_ReturnsNil(t *testing.T) {
	backups, err := ListConfigBackups(filepath.Join(t.TempDir(), "ghost", "config.yaml"))
	require.NoError(t, err)
	assert.Nil(t, backups)
}
