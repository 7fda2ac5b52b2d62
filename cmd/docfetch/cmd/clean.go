package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-docfetch/internal/lock"
	"go-docfetch/internal/reconcile"
)

var (
	cleanDuplicates bool
	cleanLocks      bool
)

// cleanCmd removes redundant pdf duplicates and stale lock files left by
// crashed processes. With no flags it does both.
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove duplicate pdfs and stale lock files under the save path",
	RunE:  runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVar(&cleanDuplicates, "duplicates", false, "Only remove pdfs that also exist as doc/docx")
	cleanCmd.Flags().BoolVar(&cleanLocks, "locks", false, "Only remove stale .lock files")
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	doAll := !cleanDuplicates && !cleanLocks

	if cleanDuplicates || doAll {
		report, err := reconcile.Reconcile(cfg.SavePath)
		if err != nil {
			return fmt.Errorf("removing duplicates under %s: %w", cfg.SavePath, err)
		}
		fmt.Printf("Removed %d duplicate pdfs, freed %d bytes\n", report.Removed, report.BytesFreed)
	}

	if cleanLocks || doAll {
		removed, err := lock.RemoveStaleLocks(cfg.SavePath)
		if err != nil {
			return fmt.Errorf("removing stale locks under %s: %w", cfg.SavePath, err)
		}
		if removed > 0 {
			log.Warnf("Removed %d stale lock files; make sure no other instance is running", removed)
		}
		fmt.Printf("Removed %d stale lock files\n", removed)
	}
	return nil
}
