package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-docfetch/internal/fetch"
	"go-docfetch/internal/index"
	"go-docfetch/internal/ledger"
	"go-docfetch/internal/lock"
	"go-docfetch/internal/models"
	"go-docfetch/internal/pool"
	"go-docfetch/internal/schedule"
	"go-docfetch/internal/stats"
)

var runCmd = &cobra.Command{
	Use:   "run [batch files...]",
	Short: "Download every pending document in the given batch files",
	Long: `Run splits each batch into chunks, downloads them across worker
processes, and records every outcome in the batch's progress ledger so an
interrupted run resumes where it stopped.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("chunk-size", 0, "Tasks per worker chunk (clamped to 10-500, 0 uses config)")
	runCmd.Flags().Int("max-processes", 0, "Concurrent worker processes (0 uses config)")
	runCmd.Flags().Int("workers", 0, "Concurrent downloads per process (clamped to 4-10, 0 uses config)")
	runCmd.Flags().Int("sub-batch-size", 0, "Downloads per paced sub-batch (0 uses config)")
	runCmd.Flags().Int("host-delay", 0, "Pause between sub-batches to one host in ms (clamped to 200-500)")
	runCmd.Flags().Int("lock-timeout", 0, "Seconds to wait for another process's file lock")
	runCmd.Flags().Bool("single-process", false, "Run all chunks in this process instead of spawning workers")
	runCmd.Flags().Bool("retry-mode", false, "Skip file locking; only safe when no other instance is running")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := globalConfig

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batchFiles, err := resolveBatchFiles(args, cfg.BatchDir)
	if err != nil {
		return err
	}

	locks := lock.NewRegistry()
	defer locks.ReleaseAll()

	var idx *index.DB
	if cfg.Index.Enabled {
		idx, err = index.Open(cfg.Index.Path)
		if err != nil {
			log.WithError(err).Warn("Download index unavailable, continuing without it")
		} else {
			defer idx.Close()
		}
	}

	agg := stats.New()
	for _, batchFile := range batchFiles {
		if ctx.Err() != nil {
			log.Warn("Interrupted, stopping before next batch")
			break
		}
		if err := runBatch(ctx, cfg, locks, idx, batchFile, agg); err != nil {
			return fmt.Errorf("batch %s: %w", batchFile, err)
		}
	}

	printSummary(agg)
	return ctx.Err()
}

// runBatch downloads one batch file's pending tasks chunk by chunk,
// writing every outcome through to the batch ledger as it arrives.
func runBatch(ctx context.Context, cfg models.Config, locks *lock.Registry, idx *index.DB, batchFile string, agg *stats.Aggregator) error {
	tasks, err := loadBatchTasks(batchFile, cfg.SavePath)
	if err != nil {
		return err
	}
	led, err := ledger.Load(ledger.PathFor(batchFile))
	if err != nil {
		return err
	}

	chunkSize := schedule.ClampChunkSize(cfg.Download.ChunkSize)
	chunks := schedule.BuildChunks(tasks, led.Processed(), chunkSize)
	if len(chunks) == 0 {
		log.Infof("Batch %s: nothing pending", batchFile)
		return nil
	}

	pending := 0
	for _, chunk := range chunks {
		pending += len(chunk)
	}
	log.Infof("Batch %s: %d pending tasks in %d chunks", batchFile, pending, len(chunks))

	exec, err := buildExecutor(cfg, locks)
	if err != nil {
		return err
	}

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	completed := 0
	report := func(r models.TaskResult) {
		recordResult(led, agg, idx, r)
		completed++
		fmt.Fprintf(writer, "Progress: %d / %d files completed.\n", completed, pending)
	}

	p := &pool.Pool{Exec: exec, MaxParallel: cfg.Download.MaxProcesses}
	if err := p.Run(ctx, chunks, report); err != nil {
		return err
	}

	succeeded, failed := led.Counts()
	log.Infof("Batch %s done: %d succeeded, %d failed", batchFile, succeeded, failed)
	return nil
}

// recordResult is the single writer for ledger, stats, and index. The
// pool serializes calls, so no locking is needed here.
func recordResult(led *ledger.Ledger, agg *stats.Aggregator, idx *index.DB, r models.TaskResult) {
	if r.Success {
		if err := led.MarkSuccess(r.URL); err != nil {
			log.WithError(err).Errorf("Failed to record success for %s", r.URL)
		}
		agg.AddSuccess(r.URL, r.Path)
		if idx != nil && !r.Skipped {
			rec := index.Record{
				URL:         r.URL,
				Path:        r.Path,
				Size:        r.Size,
				BLAKE3:      r.BLAKE3,
				CompletedAt: time.Now().UTC(),
			}
			if err := idx.Put(rec); err != nil {
				log.WithError(err).Warnf("Failed to index %s", r.Path)
			}
		}
		return
	}

	log.Warnf("Download failed for %s: %s", r.URL, r.Error)
	if err := led.MarkFailure(r.URL, r.Error); err != nil {
		log.WithError(err).Errorf("Failed to record failure for %s", r.URL)
	}
	agg.AddFailure(r.URL, r.Error)
}

// buildExecutor picks the execution strategy: in-process goroutines for
// single-process mode, otherwise re-executed worker processes. Retry mode
// skips file locking, so it always runs in-process: lockless workers
// spread across processes could write the same destination twice.
func buildExecutor(cfg models.Config, locks *lock.Registry) (pool.Executor, error) {
	if cfg.Download.RetryMode && !cfg.Download.SingleProcess {
		log.Warn("Retry mode downloads without file locks; running single-process")
	}
	if cfg.Download.SingleProcess || cfg.Download.RetryMode {
		return newGoroutineExecutor(cfg, locks), nil
	}

	binary, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating own executable: %w", err)
	}
	return &pool.ProcessExecutor{
		Binary:   binary,
		BaseArgs: workerArgs(cfg),
		ChunkDir: filepath.Join(cfg.BatchDir, ".chunks"),
	}, nil
}

func newGoroutineExecutor(cfg models.Config, locks *lock.Registry) *pool.GoroutineExecutor {
	client := &http.Client{Timeout: time.Duration(cfg.Download.FetchTimeoutSec) * time.Second}
	fetcher := fetch.New(client, locks, fetch.Options{
		UserAgent:   cfg.UserAgent,
		BufferSize:  cfg.Download.CopyBufferBytes,
		LockTimeout: time.Duration(cfg.Download.LockTimeoutSec) * time.Second,
		RetryMode:   cfg.Download.RetryMode,
	})
	return &pool.GoroutineExecutor{
		Fetcher:      fetcher,
		Workers:      cfg.Download.WorkersPerProcess,
		SubBatchSize: cfg.Download.SubBatchSize,
		HostDelay:    time.Duration(cfg.Download.HostDelayMs) * time.Millisecond,
	}
}

// workerArgs forwards the effective configuration to a worker process so
// it behaves identically without re-reading flags.
func workerArgs(cfg models.Config) []string {
	args := []string{
		"worker",
		"--log-level", cfg.LogLevel,
		"--log-format", cfg.LogFormat,
		"--save-path", cfg.SavePath,
		"--workers", fmt.Sprint(cfg.Download.WorkersPerProcess),
		"--sub-batch-size", fmt.Sprint(cfg.Download.SubBatchSize),
		"--host-delay", fmt.Sprint(cfg.Download.HostDelayMs),
		"--lock-timeout", fmt.Sprint(cfg.Download.LockTimeoutSec),
	}
	if cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}
	if cfg.Download.RetryMode {
		args = append(args, "--retry-mode")
	}
	return args
}

func printSummary(agg *stats.Aggregator) {
	s := agg.Summary()
	if s.Total == 0 {
		return
	}
	fmt.Println("\nDownload Summary")
	fmt.Println("----------------")
	fmt.Printf("  doc files:  %d\n", s.Doc)
	fmt.Printf("  pdf files:  %d\n", s.PDF)
	fmt.Printf("  total:      %d\n", s.Total)
	fmt.Printf("  successful: %d\n", s.Successful)
	fmt.Printf("  failed:     %d\n", s.Failed)
}
