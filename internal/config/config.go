package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Output formats.
const (
	FormatParquet = "parquet"
	FormatSQLite  = "sqlite"
)

const maxBatchSize = 10_000_000

// Config holds all run settings, populated from environment variables and
// optionally overridden by command-line flags.
type Config struct {
	Datasets     []string
	OutputDir    string
	OutputFormat string

	// Download cache. When disabled, archives go to a run-scoped temp dir.
	CacheEnabled bool
	CacheDir     string

	BatchSize          int
	MaxSkipRatio       float64
	GapSampleSize      int
	DropQualityFlagged bool

	NOAABaseURL     string
	HTTPTimeout     time.Duration
	DownloadRetries int

	MetricsAddr      string
	KafkaBrokers     []string
	KafkaReportTopic string

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("HTTP_TIMEOUT", "10m"))
	if err != nil || httpTimeout <= 0 {
		return nil, errors.New("invalid HTTP_TIMEOUT")
	}

	batchSize, err := parseInt("BATCH_SIZE", "100000")
	if err != nil {
		return nil, err
	}
	retries, err := parseInt("DOWNLOAD_RETRIES", "3")
	if err != nil {
		return nil, err
	}
	gapSample, err := parseInt("GAP_SAMPLE_SIZE", "10")
	if err != nil {
		return nil, err
	}

	skipRatio, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MAX_SKIP_RATIO", "0.05"), 64)
	if err != nil {
		return nil, errors.New("invalid MAX_SKIP_RATIO")
	}

	cacheEnabled, err := parseBool("CACHE_ENABLED", "false")
	if err != nil {
		return nil, err
	}
	dropFlagged, err := parseBool("DROP_QUALITY_FLAGGED", "false")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Datasets:     splitList(os.Getenv("DATASETS")),
		OutputDir:    sharedcfg.EnvOrDefault("OUTPUT_DIR", "."),
		OutputFormat: strings.ToLower(sharedcfg.EnvOrDefault("OUTPUT_FORMAT", FormatParquet)),

		CacheEnabled: cacheEnabled,
		CacheDir:     sharedcfg.EnvOrDefault("CACHE_DIR", defaultCacheDir()),

		BatchSize:          batchSize,
		MaxSkipRatio:       skipRatio,
		GapSampleSize:      gapSample,
		DropQualityFlagged: dropFlagged,

		NOAABaseURL:     strings.TrimRight(sharedcfg.EnvOrDefault("NOAA_BASE_URL", "https://www.ncei.noaa.gov/pub/data"), "/"),
		HTTPTimeout:     httpTimeout,
		DownloadRetries: retries,

		MetricsAddr:      os.Getenv("METRICS_ADDR"),
		KafkaReportTopic: os.Getenv("KAFKA_REPORT_TOPIC"),

		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); strings.TrimSpace(brokers) != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Load calls it; callers that override fields
// from flags call it again.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	if c.OutputFormat != FormatParquet && c.OutputFormat != FormatSQLite {
		return fmt.Errorf("OUTPUT_FORMAT must be %q or %q, got %q", FormatParquet, FormatSQLite, c.OutputFormat)
	}
	if c.BatchSize < 1 || c.BatchSize > maxBatchSize {
		return fmt.Errorf("BATCH_SIZE must be between 1 and %d", maxBatchSize)
	}
	if math.IsNaN(c.MaxSkipRatio) || c.MaxSkipRatio < 0 || c.MaxSkipRatio > 1 {
		return errors.New("MAX_SKIP_RATIO must be between 0 and 1")
	}
	if c.GapSampleSize < 0 {
		return errors.New("GAP_SAMPLE_SIZE must not be negative")
	}
	if c.DownloadRetries < 0 {
		return errors.New("DOWNLOAD_RETRIES must not be negative")
	}
	if c.CacheEnabled && c.CacheDir == "" {
		return errors.New("CACHE_ENABLED is true but CACHE_DIR is not set")
	}
	if c.NOAABaseURL == "" {
		return errors.New("NOAA_BASE_URL is required")
	}
	if c.KafkaReportTopic != "" && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_REPORT_TOPIC is set but KAFKA_BROKERS is not")
	}
	return nil
}

// ReportingEnabled reports whether coverage reports are published to Kafka.
func (c *Config) ReportingEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaReportTopic != ""
}

// CheckOutputDir creates the output directory if needed and verifies it is
// writable.
func (c *Config) CheckOutputDir() error {
	if err := os.MkdirAll(c.OutputDir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}
	f, err := os.CreateTemp(c.OutputDir, ".ushcn-write-check-*")
	if err != nil {
		return fmt.Errorf("output dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func parseInt(key, def string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(sharedcfg.EnvOrDefault(key, def)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseBool(key, def string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(sharedcfg.EnvOrDefault(key, def)))
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ushcn-etl")
	}
	return filepath.Join(dir, "ushcn-etl")
}
