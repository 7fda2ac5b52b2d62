package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-docfetch/internal/ledger"
	"go-docfetch/internal/lock"
	"go-docfetch/internal/models"
	"go-docfetch/internal/stats"
)

// retryCmd re-attempts every failed task recorded in the batch ledgers.
// It runs single-process and without file locking, so it must not run
// concurrently with another docfetch instance on the same tree.
var retryCmd = &cobra.Command{
	Use:   "retry [batch files...]",
	Short: "Re-attempt previously failed downloads",
	Long: `Retry collects the failed URLs from each batch's progress ledger
and downloads them again in this process, skipping file locks. Do not run
while another instance is downloading to the same directory.`,
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)

	retryCmd.Flags().Int("workers", 0, "Concurrent downloads (clamped to 4-10, 0 uses config)")
	retryCmd.Flags().Int("sub-batch-size", 0, "Downloads per paced sub-batch (0 uses config)")
	retryCmd.Flags().Int("host-delay", 0, "Pause between sub-batches to one host in ms (clamped to 200-500)")
}

func runRetry(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	cfg.Download.RetryMode = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	batchFiles, err := resolveBatchFiles(args, cfg.BatchDir)
	if err != nil {
		return err
	}

	locks := lock.NewRegistry()
	defer locks.ReleaseAll()

	agg := stats.New()
	for _, batchFile := range batchFiles {
		if ctx.Err() != nil {
			break
		}

		tasks, err := loadBatchTasks(batchFile, cfg.SavePath)
		if err != nil {
			return err
		}
		led, err := ledger.Load(ledger.PathFor(batchFile))
		if err != nil {
			return err
		}

		failed := led.Failed()
		if len(failed) == 0 {
			log.Infof("Batch %s: no failed downloads to retry", batchFile)
			continue
		}

		var retries []models.DownloadTask
		for _, task := range tasks {
			if _, ok := failed[task.URL]; ok {
				task.RetryCount++
				retries = append(retries, task)
			}
		}
		log.Infof("Batch %s: retrying %d failed downloads", batchFile, len(retries))

		exec := newGoroutineExecutor(cfg, locks)
		var mu sync.Mutex
		report := func(r models.TaskResult) {
			mu.Lock()
			defer mu.Unlock()
			recordResult(led, agg, nil, r)
		}
		if err := exec.Run(ctx, retries, report); err != nil {
			return fmt.Errorf("batch %s: %w", batchFile, err)
		}
	}

	printSummary(agg)
	return ctx.Err()
}
