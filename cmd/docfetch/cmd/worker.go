package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-docfetch/internal/lock"
	"go-docfetch/internal/models"
	"go-docfetch/internal/pool"
)

var workerTasksFile string

// workerCmd is the hidden entry point a run process re-executes for each
// chunk. It reads its task file, downloads with in-process workers, and
// streams one TaskResult JSON line per task on stdout. All logging goes
// to stderr so stdout stays machine-readable.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "Internal: process one chunk of download tasks",
	Hidden: true,
	RunE:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().StringVar(&workerTasksFile, "tasks", "", "Path to the chunk task file")
	_ = workerCmd.MarkFlagRequired("tasks")

	workerCmd.Flags().Int("workers", 0, "Concurrent downloads in this process")
	workerCmd.Flags().Int("sub-batch-size", 0, "Downloads per paced sub-batch")
	workerCmd.Flags().Int("host-delay", 0, "Pause between sub-batches to one host in ms")
	workerCmd.Flags().Int("lock-timeout", 0, "Seconds to wait for another process's file lock")
	workerCmd.Flags().Bool("retry-mode", false, "Skip file locking")
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg := globalConfig

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chunk, err := pool.ReadChunkFile(workerTasksFile)
	if err != nil {
		return err
	}
	log.Debugf("Worker handling %d tasks", len(chunk))

	locks := lock.NewRegistry()
	defer locks.ReleaseAll()

	exec := newGoroutineExecutor(cfg, locks)
	enc := json.NewEncoder(os.Stdout)

	// The executor reports from multiple goroutines; the encoder must not
	// interleave lines.
	var mu sync.Mutex
	report := func(r models.TaskResult) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(r); err != nil {
			log.WithError(err).Errorf("Failed to report result for %s", r.URL)
		}
	}
	if err := exec.Run(ctx, chunk, report); err != nil {
		return fmt.Errorf("running chunk: %w", err)
	}
	return ctx.Err()
}
