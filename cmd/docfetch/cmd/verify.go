package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-docfetch/internal/index"
)

// verifyCmd checks the download index against the filesystem and reports
// completed downloads whose files have since gone missing.
var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Report indexed downloads whose files are missing on disk",
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg := globalConfig
	if !cfg.Index.Enabled {
		return fmt.Errorf("download index is disabled in configuration")
	}

	idx, err := index.Open(cfg.Index.Path)
	if err != nil {
		return err
	}
	defer idx.Close()

	missing, err := idx.Missing()
	if err != nil {
		return err
	}

	total := idx.Len()
	if len(missing) == 0 {
		log.Infof("All %d indexed downloads present on disk", total)
		return nil
	}

	for _, rec := range missing {
		fmt.Printf("MISSING %s (from %s)\n", rec.Path, rec.URL)
	}
	log.Warnf("%d of %d indexed downloads missing on disk", len(missing), total)
	return nil
}
