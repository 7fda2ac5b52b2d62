package models

import (
	"net/url"
	"strings"
	"time"
)

// Format kinds for a download task. Everything the orchestrator fetches is
// either a word-processor document or a PDF rendering of one.
const (
	FormatDoc = "doc"
	FormatPDF = "pdf"
)

// Progress statuses recorded in a batch ledger.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type (
	// Config holds the application's configuration settings.
	Config struct {
		SavePath  string         `toml:"SavePath"`
		BatchDir  string         `toml:"BatchDir"`
		LogLevel  string         `toml:"LogLevel"`
		LogFormat string         `toml:"LogFormat"`
		UserAgent string         `toml:"UserAgent"`
		Download  DownloadConfig `toml:"Download"`
		Index     IndexConfig    `toml:"Index"`
	}

	// DownloadConfig holds settings for the batch download pipeline.
	DownloadConfig struct {
		ChunkSize         int  `toml:"ChunkSize"`
		MaxProcesses      int  `toml:"MaxProcesses"`
		WorkersPerProcess int  `toml:"WorkersPerProcess"`
		SubBatchSize      int  `toml:"SubBatchSize"`
		HostDelayMs       int  `toml:"HostDelayMs"`
		LockTimeoutSec    int  `toml:"LockTimeoutSec"`
		FetchTimeoutSec   int  `toml:"FetchTimeoutSec"`
		CopyBufferBytes   int  `toml:"CopyBufferBytes"`
		RetryMode         bool `toml:"RetryMode"`
		SingleProcess     bool `toml:"SingleProcess"`
	}

	// IndexConfig holds settings for the completion index database.
	IndexConfig struct {
		Path    string `toml:"Path"`
		Enabled bool   `toml:"Enabled"`
	}
)

// DownloadTask is the unit of work: one URL plus its resolved destination.
// Tasks arrive fully resolved from the ingestion side (spreadsheet parsing
// and folder derivation happen upstream) and are consumed by exactly one
// worker.
type DownloadTask struct {
	URL        string `json:"url"`
	Folder     string `json:"folder"`
	Filename   string `json:"filename"`
	Format     string `json:"format"`
	RetryCount int    `json:"retry_count,omitempty"`
}

// Host returns the lowercased hostname of the task URL, or "" if the URL
// does not parse. Used to group same-host tasks for pacing.
func (t DownloadTask) Host() string {
	u, err := url.Parse(t.URL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// TaskResult is the per-task outcome reported by a worker. It is also the
// wire format between a worker process and its parent (one JSON object per
// stdout line).
type TaskResult struct {
	URL     string `json:"url"`
	Path    string `json:"path,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Size    int64  `json:"size,omitempty"`
	BLAKE3  string `json:"blake3,omitempty"`
	Skipped bool   `json:"skipped,omitempty"` // destination already existed
}

// ProgressEntry is one URL outcome inside a batch ledger.
type ProgressEntry struct {
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
