package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-docfetch/internal/lock"
	"go-docfetch/internal/models"
	"go-docfetch/internal/pool"
)

func testConfig() models.Config {
	return models.Config{
		SavePath: "downloads",
		BatchDir: "batches",
		Download: models.DownloadConfig{
			ChunkSize:         50,
			MaxProcesses:      2,
			WorkersPerProcess: 4,
			SubBatchSize:      5,
			HostDelayMs:       200,
			LockTimeoutSec:    60,
			FetchTimeoutSec:   120,
			CopyBufferBytes:   16384,
		},
	}
}

func TestBuildExecutorDefaultsToProcesses(t *testing.T) {
	exec, err := buildExecutor(testConfig(), lock.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, &pool.ProcessExecutor{}, exec)
}

func TestBuildExecutorSingleProcess(t *testing.T) {
	cfg := testConfig()
	cfg.Download.SingleProcess = true

	exec, err := buildExecutor(cfg, lock.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, &pool.GoroutineExecutor{}, exec)
}

// Lockless retries must never fan out across processes.
func TestBuildExecutorRetryModeStaysInProcess(t *testing.T) {
	cfg := testConfig()
	cfg.Download.RetryMode = true

	exec, err := buildExecutor(cfg, lock.NewRegistry())
	require.NoError(t, err)
	assert.IsType(t, &pool.GoroutineExecutor{}, exec)
}
