package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"go-docfetch/internal/ledger"
)

var statusShowFailures bool

var statusCmd = &cobra.Command{
	Use:   "status [batch files...]",
	Short: "Show progress of each batch",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusShowFailures, "failures", false, "List each failed URL with its reason")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := globalConfig

	batchFiles, err := resolveBatchFiles(args, cfg.BatchDir)
	if err != nil {
		return err
	}

	for _, batchFile := range batchFiles {
		tasks, err := loadBatchTasks(batchFile, cfg.SavePath)
		if err != nil {
			return err
		}
		led, err := ledger.Load(ledger.PathFor(batchFile))
		if err != nil {
			return err
		}

		succeeded, failed := led.Counts()
		pending := len(tasks) - succeeded - failed
		if pending < 0 {
			pending = 0
		}
		fmt.Printf("%s: %d tasks, %d succeeded, %d failed, %d pending\n",
			batchFile, len(tasks), succeeded, failed, pending)

		if statusShowFailures && failed > 0 {
			reasons := led.Failed()
			urls := make([]string, 0, len(reasons))
			for url := range reasons {
				urls = append(urls, url)
			}
			sort.Strings(urls)
			for _, url := range urls {
				fmt.Printf("  FAILED %s: %s\n", url, reasons[url])
			}
		}
	}
	return nil
}
