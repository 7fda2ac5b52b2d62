package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-docfetch/internal/config"
	"go-docfetch/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// Persistent flag values. A flag only overrides the config when the user
// actually set it, so each one is forwarded through config.CliFlags as a
// pointer.
var (
	logLevelFlag  string
	logFormatFlag string
	savePathFlag  string
	batchDirFlag  string
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docfetch",
	Short: "A resumable batch document downloader",
	Long: `Docfetch downloads large batches of documents across multiple
processes with per-file locking, crash-safe progress tracking, and
automatic resume of interrupted runs.`,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default is ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Logging level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Logging format (text, json)")
	rootCmd.PersistentFlags().StringVar(&savePathFlag, "save-path", "", "Directory to save documents (overrides config)")
	rootCmd.PersistentFlags().StringVar(&batchDirFlag, "batch-dir", "", "Directory holding batch task files (overrides config)")
}

// loadGlobalConfig loads the configuration, applies flag overrides, and
// configures logging before any command runs.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	flags := config.CliFlags{}
	if cmd.Flags().Changed("config") {
		flags.ConfigFilePath = &cfgFile
	}
	if cmd.Flags().Changed("log-level") {
		flags.LogLevel = &logLevelFlag
	}
	if cmd.Flags().Changed("log-format") {
		flags.LogFormat = &logFormatFlag
	}
	if cmd.Flags().Changed("save-path") {
		flags.SavePath = &savePathFlag
	}
	if cmd.Flags().Changed("batch-dir") {
		flags.BatchDir = &batchDirFlag
	}
	collectDownloadFlags(cmd, &flags)

	cfg, err := config.Initialize(flags)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	globalConfig = cfg

	setupLogging(cfg.LogLevel, cfg.LogFormat)
	return nil
}

// collectDownloadFlags forwards download tunables from whichever command
// declared them. Flags live on run/retry/worker, so lookups are by name.
func collectDownloadFlags(cmd *cobra.Command, flags *config.CliFlags) {
	intFlag := func(name string, dst **int) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if v, err := cmd.Flags().GetInt(name); err == nil {
				*dst = &v
			}
		}
	}
	boolFlag := func(name string, dst **bool) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			if v, err := cmd.Flags().GetBool(name); err == nil {
				*dst = &v
			}
		}
	}

	intFlag("chunk-size", &flags.ChunkSize)
	intFlag("max-processes", &flags.MaxProcesses)
	intFlag("workers", &flags.WorkersPerProcess)
	intFlag("sub-batch-size", &flags.SubBatchSize)
	intFlag("host-delay", &flags.HostDelayMs)
	intFlag("lock-timeout", &flags.LockTimeoutSec)
	boolFlag("retry-mode", &flags.RetryMode)
	boolFlag("single-process", &flags.SingleProcess)
}

func setupLogging(level, format string) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Invalid log level '%s', using info", level)
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)

	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
