package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Initialize(CliFlags{ConfigFilePath: &missing})
	require.NoError(t, err)

	assert.Equal(t, DefaultSavePath, cfg.SavePath)
	assert.Equal(t, DefaultBatchDir, cfg.BatchDir)
	assert.Equal(t, DefaultChunkSize, cfg.Download.ChunkSize)
	assert.Equal(t, DefaultWorkersPerProcess, cfg.Download.WorkersPerProcess)
	assert.Equal(t, DefaultLockTimeoutSec, cfg.Download.LockTimeoutSec)
	assert.True(t, cfg.Index.Enabled)
	assert.GreaterOrEqual(t, cfg.Download.MaxProcesses, 1)
	assert.LessOrEqual(t, cfg.Download.MaxProcesses, MaxProcessesCap)
}

func TestInitializeReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
SavePath = "/data/docs"
LogLevel = "debug"

[Download]
ChunkSize = 100
WorkersPerProcess = 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Initialize(CliFlags{ConfigFilePath: &path})
	require.NoError(t, err)
	assert.Equal(t, "/data/docs", cfg.SavePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 100, cfg.Download.ChunkSize)
	assert.Equal(t, 8, cfg.Download.WorkersPerProcess)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultSubBatchSize, cfg.Download.SubBatchSize)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[Download]\nChunkSize = 100\n"), 0o644))

	chunk := 200
	save := "/flag/path"
	cfg, err := Initialize(CliFlags{
		ConfigFilePath: &path,
		SavePath:       &save,
		ChunkSize:      &chunk,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Download.ChunkSize)
	assert.Equal(t, "/flag/path", cfg.SavePath)
}

func TestNormalizeClampsRanges(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.toml")

	chunk := 5000
	workers := 50
	delay := 50
	cfg, err := Initialize(CliFlags{
		ConfigFilePath: &missing,
		ChunkSize:      &chunk,
		WorkersPerProcess: &workers,
		HostDelayMs:    &delay,
	})
	require.NoError(t, err)
	assert.Equal(t, MaxChunkSize, cfg.Download.ChunkSize)
	assert.Equal(t, MaxWorkers, cfg.Download.WorkersPerProcess)
	assert.Equal(t, MinHostDelayMs, cfg.Download.HostDelayMs)
}

func TestIndexPathResolvedUnderSavePath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.toml")
	save := "/data/docs"
	cfg, err := Initialize(CliFlags{ConfigFilePath: &missing, SavePath: &save})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/docs", DefaultIndexPath), cfg.Index.Path)
}

func TestDefaultMaxProcesses(t *testing.T) {
	n := DefaultMaxProcesses()
	assert.GreaterOrEqual(t, n, 1)
	assert.LessOrEqual(t, n, MaxProcessesCap)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, WriteDefault(path))

	// Refuses to clobber.
	assert.Error(t, WriteDefault(path))

	// The written file round-trips through Initialize.
	cfg, err := Initialize(CliFlags{ConfigFilePath: &path})
	require.NoError(t, err)
	assert.Equal(t, DefaultChunkSize, cfg.Download.ChunkSize)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
}
