package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go-docfetch/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Default values for configuration
const (
	DefaultSavePath       = "downloads"
	DefaultBatchDir       = "batches"
	DefaultIndexPath      = "docfetch.db" // Relative to SavePath if not absolute
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultConfigFilePath = "config.toml"
	DefaultUserAgent      = "docfetch/1.0"

	// Download specific defaults
	DefaultChunkSize         = 50
	DefaultWorkersPerProcess = 4
	DefaultSubBatchSize      = 5
	DefaultHostDelayMs       = 200
	DefaultLockTimeoutSec    = 60
	DefaultFetchTimeoutSec   = 120
	DefaultCopyBufferBytes   = 16384

	// Hard limits
	MinChunkSize     = 10
	MaxChunkSize     = 500
	MinWorkers       = 4
	MaxWorkers       = 10
	MinHostDelayMs   = 200
	MaxHostDelayMs   = 500
	MaxProcessesCap  = 4
)

// DefaultMaxProcesses leaves one CPU for the coordinating process, capped
// so small batches do not fan out pointlessly wide.
func DefaultMaxProcesses() int {
	n := runtime.NumCPU() - 1
	if n > MaxProcessesCap {
		n = MaxProcessesCap
	}
	if n < 1 {
		n = 1
	}
	return n
}

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("savepath", DefaultSavePath)
	v.SetDefault("batchdir", DefaultBatchDir)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)
	v.SetDefault("useragent", DefaultUserAgent)

	v.SetDefault("download.chunksize", DefaultChunkSize)
	v.SetDefault("download.maxprocesses", DefaultMaxProcesses())
	v.SetDefault("download.workersperprocess", DefaultWorkersPerProcess)
	v.SetDefault("download.subbatchsize", DefaultSubBatchSize)
	v.SetDefault("download.hostdelayms", DefaultHostDelayMs)
	v.SetDefault("download.locktimeoutsec", DefaultLockTimeoutSec)
	v.SetDefault("download.fetchtimeoutsec", DefaultFetchTimeoutSec)
	v.SetDefault("download.copybufferbytes", DefaultCopyBufferBytes)
	v.SetDefault("download.retrymode", false)
	v.SetDefault("download.singleprocess", false)

	v.SetDefault("index.path", DefaultIndexPath)
	v.SetDefault("index.enabled", true)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	ConfigFilePath *string
	SavePath       *string
	BatchDir       *string
	LogLevel       *string
	LogFormat      *string

	ChunkSize         *int
	MaxProcesses      *int
	WorkersPerProcess *int
	SubBatchSize      *int
	HostDelayMs       *int
	LockTimeoutSec    *int
	RetryMode         *bool
	SingleProcess     *bool
}

// Initialize builds the effective configuration: defaults, then the
// config file and DOCFETCH_* environment, then CLI flags, then clamping
// to the supported ranges.
func Initialize(flags CliFlags) (models.Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCFETCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)

	actualConfigFilePath := DefaultConfigFilePath
	if flags.ConfigFilePath != nil {
		actualConfigFilePath = *flags.ConfigFilePath
	}
	v.SetConfigFile(actualConfigFilePath)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			log.Debugf("Config file '%s' not found, using defaults and flags", actualConfigFilePath)
		} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Debugf("Config file '%s' not found, using defaults and flags", actualConfigFilePath)
		} else {
			log.Warnf("Error reading config file '%s': %v. Using defaults and flags.", actualConfigFilePath, err)
		}
	} else {
		log.Debugf("Read config file: %s", v.ConfigFileUsed())
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return models.Config{}, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	applyFlags(&cfg, flags)
	normalize(&cfg)
	return cfg, nil
}

func applyFlags(cfg *models.Config, flags CliFlags) {
	if flags.SavePath != nil {
		cfg.SavePath = *flags.SavePath
	}
	if flags.BatchDir != nil {
		cfg.BatchDir = *flags.BatchDir
	}
	if flags.LogLevel != nil {
		cfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		cfg.LogFormat = *flags.LogFormat
	}
	if flags.ChunkSize != nil {
		cfg.Download.ChunkSize = *flags.ChunkSize
	}
	if flags.MaxProcesses != nil {
		cfg.Download.MaxProcesses = *flags.MaxProcesses
	}
	if flags.WorkersPerProcess != nil {
		cfg.Download.WorkersPerProcess = *flags.WorkersPerProcess
	}
	if flags.SubBatchSize != nil {
		cfg.Download.SubBatchSize = *flags.SubBatchSize
	}
	if flags.HostDelayMs != nil {
		cfg.Download.HostDelayMs = *flags.HostDelayMs
	}
	if flags.LockTimeoutSec != nil {
		cfg.Download.LockTimeoutSec = *flags.LockTimeoutSec
	}
	if flags.RetryMode != nil {
		cfg.Download.RetryMode = *flags.RetryMode
	}
	if flags.SingleProcess != nil {
		cfg.Download.SingleProcess = *flags.SingleProcess
	}
}

// normalize clamps tunables to supported ranges and resolves derived
// paths. Out-of-range values are clamped rather than rejected so a typo
// in the config file degrades gracefully.
func normalize(cfg *models.Config) {
	d := &cfg.Download

	if d.ChunkSize < MinChunkSize {
		if d.ChunkSize != 0 {
			log.Warnf("chunksize %d below minimum, using %d", d.ChunkSize, MinChunkSize)
		}
		d.ChunkSize = clampOrDefault(d.ChunkSize, MinChunkSize, DefaultChunkSize)
	} else if d.ChunkSize > MaxChunkSize {
		log.Warnf("chunksize %d above maximum, using %d", d.ChunkSize, MaxChunkSize)
		d.ChunkSize = MaxChunkSize
	}

	if d.MaxProcesses < 1 {
		d.MaxProcesses = DefaultMaxProcesses()
	}

	if d.WorkersPerProcess < MinWorkers {
		d.WorkersPerProcess = MinWorkers
	} else if d.WorkersPerProcess > MaxWorkers {
		log.Warnf("workersperprocess %d above maximum, using %d", d.WorkersPerProcess, MaxWorkers)
		d.WorkersPerProcess = MaxWorkers
	}

	if d.SubBatchSize < 1 {
		d.SubBatchSize = DefaultSubBatchSize
	}

	if d.HostDelayMs < MinHostDelayMs {
		d.HostDelayMs = MinHostDelayMs
	} else if d.HostDelayMs > MaxHostDelayMs {
		d.HostDelayMs = MaxHostDelayMs
	}

	if d.LockTimeoutSec < 1 {
		d.LockTimeoutSec = DefaultLockTimeoutSec
	}
	if d.FetchTimeoutSec < 1 {
		d.FetchTimeoutSec = DefaultFetchTimeoutSec
	}
	if d.CopyBufferBytes < 1 {
		d.CopyBufferBytes = DefaultCopyBufferBytes
	}

	if cfg.SavePath == "" {
		cfg.SavePath = DefaultSavePath
	}
	if cfg.BatchDir == "" {
		cfg.BatchDir = DefaultBatchDir
	}
	if cfg.Index.Path == "" {
		cfg.Index.Path = DefaultIndexPath
	}
	if !filepath.IsAbs(cfg.Index.Path) {
		cfg.Index.Path = filepath.Join(cfg.SavePath, cfg.Index.Path)
	}
}

func clampOrDefault(value, min, fallback int) int {
	if value == 0 {
		return fallback
	}
	if value < min {
		return min
	}
	return value
}

// WriteDefault writes a commented starter config file. Refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	cfg := models.Config{
		SavePath:  DefaultSavePath,
		BatchDir:  DefaultBatchDir,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		UserAgent: DefaultUserAgent,
		Download: models.DownloadConfig{
			ChunkSize:         DefaultChunkSize,
			MaxProcesses:      DefaultMaxProcesses(),
			WorkersPerProcess: DefaultWorkersPerProcess,
			SubBatchSize:      DefaultSubBatchSize,
			HostDelayMs:       DefaultHostDelayMs,
			LockTimeoutSec:    DefaultLockTimeoutSec,
			FetchTimeoutSec:   DefaultFetchTimeoutSec,
			CopyBufferBytes:   DefaultCopyBufferBytes,
		},
		Index: models.IndexConfig{
			Path:    DefaultIndexPath,
			Enabled: true,
		},
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	log.Infof("Wrote default config to %s", path)
	return nil
}
