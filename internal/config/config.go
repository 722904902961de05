package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gustycube/asmap/internal/collector"
)

// Formats lists the accepted report formats.
var Formats = []string{"text", "legacy", "jsonl", "csv"}

// DefaultCollectors are the RIPE RIS collectors fetched when none are named.
var DefaultCollectors = func() []string {
	out := make([]string, 0, 25)
	for i := 0; i <= 24; i++ {
		out = append(out, fmt.Sprintf("rrc%02d", i))
	}
	return out
}()

// Config represents the complete configuration for asmap
type Config struct {
	// Bottleneck run
	Inputs          []string `yaml:"inputs" json:"inputs"`
	Out             string   `yaml:"out" json:"out"`
	Format          string   `yaml:"format" json:"format"`
	Workers         int      `yaml:"workers" json:"workers"`
	DecodeCacheSize int      `yaml:"decode_cache_size" json:"decode_cache_size"`
	ContinueOnError *bool    `yaml:"continue_on_error" json:"continue_on_error"`
	StrictTypeCodes bool     `yaml:"strict_type_codes" json:"strict_type_codes"`
	ShardStep       int      `yaml:"shard_step" json:"shard_step"`

	// Download
	DownloadDir     string   `yaml:"download_dir" json:"download_dir"`
	Collectors      []string `yaml:"collectors" json:"collectors"`
	URLs            []string `yaml:"urls" json:"urls"`
	UA              string   `yaml:"ua" json:"ua"`
	DownloadRate    float64  `yaml:"download_rate" json:"download_rate"`
	DownloadWorkers int      `yaml:"download_workers" json:"download_workers"`
	RetryBudgetSec  int      `yaml:"retry_budget_sec" json:"retry_budget_sec"`
	IgnoreRobots    bool     `yaml:"ignore_robots" json:"ignore_robots"`

	// Observability
	LogLevel     string `yaml:"log_level" json:"log_level"`
	MetricsAddr  string `yaml:"metrics_addr" json:"metrics_addr"`
	OTELEndpoint string `yaml:"otel_endpoint" json:"otel_endpoint"`
	OTELInsecure bool   `yaml:"otel_insecure" json:"otel_insecure"`
	OTELService  string `yaml:"otel_service" json:"otel_service"`

	// Redis
	RedisAddr      string `yaml:"redis_addr" json:"redis_addr"`
	RedisKeyPrefix string `yaml:"redis_key_prefix" json:"redis_key_prefix"`
	RedisTTLSec    int    `yaml:"redis_ttl_sec" json:"redis_ttl_sec"`
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.DecodeCacheSize == 0 {
		c.DecodeCacheSize = 65536
	}
	if c.ContinueOnError == nil {
		v := true
		c.ContinueOnError = &v
	}
	if c.DownloadDir == "" {
		c.DownloadDir = "dump"
	}
	if len(c.Collectors) == 0 && len(c.URLs) == 0 {
		c.Collectors = slices.Clone(DefaultCollectors)
	}
	if c.UA == "" {
		c.UA = "asmap/1.0 (+https://github.com/gustycube/asmap)"
	}
	if c.DownloadRate == 0 {
		c.DownloadRate = 1.0
	}
	if c.DownloadWorkers == 0 {
		c.DownloadWorkers = 4
	}
	if c.RetryBudgetSec == 0 {
		c.RetryBudgetSec = 300
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.OTELService == "" {
		c.OTELService = "asmap"
	}
	if c.RedisKeyPrefix == "" {
		c.RedisKeyPrefix = "asmap:bottleneck"
	}
}

// ContinueOnErrorEnabled reports the continue-on-error policy. Unset means
// enabled.
func (c *Config) ContinueOnErrorEnabled() bool {
	return c.ContinueOnError == nil || *c.ContinueOnError
}

// Validate checks the settings shared by every command
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if !slices.Contains(Formats, c.Format) {
		return fmt.Errorf("format %q: must be one of %s", c.Format, strings.Join(Formats, ", "))
	}
	if c.DecodeCacheSize < 0 {
		return fmt.Errorf("decode_cache_size must not be negative")
	}
	if _, err := collector.Shards(c.ShardStep); err != nil {
		return err
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q: must be debug, info, warn or error", c.LogLevel)
	}
	if c.RedisTTLSec < 0 {
		return fmt.Errorf("redis_ttl_sec must not be negative")
	}
	return nil
}

// ValidateBottleneck checks the settings of a bottleneck run
func (c *Config) ValidateBottleneck() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Inputs) == 0 {
		return fmt.Errorf("at least one input file or directory is required")
	}
	return nil
}

// ValidateDownload checks the settings of a download run
func (c *Config) ValidateDownload() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DownloadDir == "" {
		return fmt.Errorf("download_dir is required")
	}
	if len(c.Collectors) == 0 && len(c.URLs) == 0 {
		return fmt.Errorf("at least one collector or url is required")
	}
	if c.DownloadRate <= 0 {
		return fmt.Errorf("download_rate must be positive")
	}
	if c.DownloadWorkers < 1 {
		return fmt.Errorf("download_workers must be at least 1")
	}
	if c.RetryBudgetSec < 1 {
		return fmt.Errorf("retry_budget_sec must be at least 1")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, or .json)", ext)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// MergeWithFlags merges command-line flags with file configuration
// Command-line flags take precedence over file configuration
func (c *Config) MergeWithFlags(flags map[string]interface{}) {
	if v, ok := flags["inputs"].([]string); ok && len(v) > 0 {
		c.Inputs = v
	}
	if v, ok := flags["out"].(string); ok && v != "" {
		c.Out = v
	}
	if v, ok := flags["format"].(string); ok && v != "" {
		c.Format = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Workers = v
	}
	if v, ok := flags["decode_cache_size"].(int); ok && v > 0 {
		c.DecodeCacheSize = v
	}
	if v, ok := flags["continue_on_error"].(bool); ok {
		c.ContinueOnError = &v
	}
	if v, ok := flags["strict_type_codes"].(bool); ok {
		c.StrictTypeCodes = v
	}
	if v, ok := flags["shard_step"].(int); ok && v > 0 {
		c.ShardStep = v
	}
	if v, ok := flags["download_dir"].(string); ok && v != "" {
		c.DownloadDir = v
	}
	if v, ok := flags["collectors"].([]string); ok && len(v) > 0 {
		c.Collectors = v
	}
	if v, ok := flags["urls"].([]string); ok && len(v) > 0 {
		c.URLs = v
	}
	if v, ok := flags["ua"].(string); ok && v != "" {
		c.UA = v
	}
	if v, ok := flags["download_rate"].(float64); ok && v > 0 {
		c.DownloadRate = v
	}
	if v, ok := flags["download_workers"].(int); ok && v > 0 {
		c.DownloadWorkers = v
	}
	if v, ok := flags["retry_budget_sec"].(int); ok && v > 0 {
		c.RetryBudgetSec = v
	}
	if v, ok := flags["ignore_robots"].(bool); ok {
		c.IgnoreRobots = v
	}
	if v, ok := flags["log_level"].(string); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := flags["metrics_addr"].(string); ok && v != "" {
		c.MetricsAddr = v
	}
	if v, ok := flags["otel_endpoint"].(string); ok && v != "" {
		c.OTELEndpoint = v
	}
	if v, ok := flags["otel_insecure"].(bool); ok {
		c.OTELInsecure = v
	}
	if v, ok := flags["otel_service"].(string); ok && v != "" {
		c.OTELService = v
	}
	if v, ok := flags["redis_addr"].(string); ok && v != "" {
		c.RedisAddr = v
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("ASMAP_OUT"); v != "" {
		c.Out = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("ASMAP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ASMAP_WORKERS: %w", err)
		}
		c.Workers = n
	}
	return nil
}
