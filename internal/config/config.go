// Package config provides configuration management for the analysis application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"chanlun/internal/errors"
	"chanlun/internal/models"
)

// EnvPrefix prefixes every environment override, e.g. CHANLUN_SOURCE_PROVIDER.
const EnvPrefix = "CHANLUN"

// Config holds all application configuration.
type Config struct {
	Analysis    AnalysisConfig            `mapstructure:"analysis"`
	Intervals   map[string]IntervalConfig `mapstructure:"intervals"`
	Data        DataConfig                `mapstructure:"data"`
	Source      SourceConfig              `mapstructure:"source"`
	Symbols     []models.Symbol           `mapstructure:"symbols"`
	Server      ServerConfig              `mapstructure:"server"`
	Schedule    ScheduleConfig            `mapstructure:"schedule"`
	Export      ExportConfig              `mapstructure:"export"`
	Logging     LoggingConfig             `mapstructure:"logging"`
	Credentials Credentials               `mapstructure:"-"` // Loaded separately

	dir string
}

// AnalysisConfig holds pipeline configuration.
type AnalysisConfig struct {
	Intervals         []string `mapstructure:"intervals"`
	MinStrokeGap      int      `mapstructure:"min_stroke_gap"`
	MinPivotEndpoints int      `mapstructure:"min_pivot_endpoints"`
	Workers           int      `mapstructure:"workers"`
}

// IntervalConfig describes one supported bar interval.
type IntervalConfig struct {
	Name       string `mapstructure:"name"`
	DateFormat string `mapstructure:"date_format"` // Go time layout
	Range      string `mapstructure:"range"`       // provider history range
}

// DataConfig holds local data locations.
type DataConfig struct {
	DBPath string `mapstructure:"db_path"`
	CSVDir string `mapstructure:"csv_dir"`
}

// SourceConfig holds bar provider configuration.
type SourceConfig struct {
	Provider      string        `mapstructure:"provider"` // yahoo, csv
	BaseURL       string        `mapstructure:"base_url"`
	Proxy         string        `mapstructure:"proxy"`
	RatePerSec    float64       `mapstructure:"rate_per_sec"`
	Burst         int           `mapstructure:"burst"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Retries       int           `mapstructure:"retries"`
	SessionFilter bool          `mapstructure:"session_filter"`

	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AssetsHost   string        `mapstructure:"assets_host"` // echarts script host, empty for the library default
}

// ScheduleConfig holds periodic refresh configuration.
type ScheduleConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	RefreshCron string `mapstructure:"refresh_cron"` // with seconds field
	Timezone    string `mapstructure:"timezone"`
}

// ExportConfig holds table export configuration.
type ExportConfig struct {
	Dir    string   `mapstructure:"dir"`
	Format string   `mapstructure:"format"` // csv, parquet
	S3     S3Config `mapstructure:"s3"`
}

// S3Config holds object storage configuration for exports.
type S3Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	Prefix    string `mapstructure:"prefix"`
	PathStyle bool   `mapstructure:"path_style"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	JSON     bool   `mapstructure:"json"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// Credentials holds secrets kept out of config.toml.
type Credentials struct {
	S3 S3Credentials `mapstructure:"s3"`
}

// S3Credentials holds static object storage credentials. Empty values fall
// back to the default AWS credential chain.
type S3Credentials struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/chanlun"
	}
	return filepath.Join(home, ".config", "chanlun")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and then read.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func newViper(configDir, name string) *viper.Viper {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	return v
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := newViper(configDir, "config")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("analysis.intervals", []string{"1m", "5m", "30m", "1h", "1d", "1wk", "1mo"})
	v.SetDefault("analysis.min_stroke_gap", 3)
	v.SetDefault("analysis.min_pivot_endpoints", 5)
	v.SetDefault("analysis.workers", 4)

	intervals := make(map[string]interface{})
	for id, iv := range DefaultIntervals() {
		intervals[id] = map[string]interface{}{
			"name":        iv.Name,
			"date_format": iv.DateFormat,
			"range":       iv.Range,
		}
	}
	v.SetDefault("intervals", intervals)

	v.SetDefault("data.db_path", "chanlun.db")
	v.SetDefault("data.csv_dir", "data")

	v.SetDefault("source.provider", "yahoo")
	v.SetDefault("source.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("source.proxy", "")
	v.SetDefault("source.rate_per_sec", 2.0)
	v.SetDefault("source.burst", 1)
	v.SetDefault("source.timeout", 15*time.Second)
	v.SetDefault("source.retries", 3)
	v.SetDefault("source.session_filter", true)
	v.SetDefault("source.breaker_failures", 5)
	v.SetDefault("source.breaker_cooldown", time.Minute)

	v.SetDefault("symbols", []map[string]interface{}{{"symbol": "AAPL", "name": "Apple"}})

	v.SetDefault("server.addr", "127.0.0.1:8000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.assets_host", "")

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.refresh_cron", "0 5 16 * * 1-5")
	v.SetDefault("schedule.timezone", "Local")

	v.SetDefault("export.dir", "export")
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.s3.enabled", false)
	v.SetDefault("export.s3.bucket", "")
	v.SetDefault("export.s3.region", "us-east-1")
	v.SetDefault("export.s3.endpoint", "")
	v.SetDefault("export.s3.prefix", "chanlun")
	v.SetDefault("export.s3.path_style", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", "logs/chanlun.log")
}

// DefaultIntervals returns the built-in interval table.
func DefaultIntervals() map[string]IntervalConfig {
	const minute, day = "2006-01-02 15:04", "2006-01-02"
	return map[string]IntervalConfig{
		"1m":  {Name: "1 minute", DateFormat: minute, Range: "5d"},
		"5m":  {Name: "5 minutes", DateFormat: minute, Range: "60d"},
		"30m": {Name: "30 minutes", DateFormat: minute, Range: "60d"},
		"1h":  {Name: "1 hour", DateFormat: minute, Range: "1y"},
		"1d":  {Name: "1 day", DateFormat: day, Range: "10y"},
		"1wk": {Name: "1 week", DateFormat: day, Range: "max"},
		"1mo": {Name: "1 month", DateFormat: day, Range: "max"},
	}
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := newViper(configDir, "credentials")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Credentials.S3.AccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Credentials.S3.SecretAccessKey = v
	}
}

// resolvePaths anchors relative data paths at the config directory.
func (c *Config) resolvePaths() {
	for _, p := range []*string{&c.Data.DBPath, &c.Data.CSVDir, &c.Export.Dir, &c.Logging.FilePath} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.dir, *p)
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Analysis.Intervals) == 0 {
		return errors.NewValidationError("analysis.intervals", c.Analysis.Intervals, "at least one interval is required")
	}
	for _, id := range c.Analysis.Intervals {
		iv, ok := c.Intervals[id]
		if !ok {
			return errors.NewValidationError("analysis.intervals", id, "no [intervals."+id+"] section")
		}
		if iv.DateFormat == "" {
			return errors.NewValidationError("intervals."+id+".date_format", iv.DateFormat, "must not be empty")
		}
	}
	if c.Analysis.MinStrokeGap < 1 {
		return errors.NewValidationError("analysis.min_stroke_gap", c.Analysis.MinStrokeGap, "must be at least 1")
	}
	if c.Analysis.MinPivotEndpoints < 5 {
		return errors.NewValidationError("analysis.min_pivot_endpoints", c.Analysis.MinPivotEndpoints, "must be at least 5")
	}
	if c.Analysis.Workers < 1 {
		return errors.NewValidationError("analysis.workers", c.Analysis.Workers, "must be at least 1")
	}

	switch c.Source.Provider {
	case "yahoo", "csv":
	default:
		return errors.NewValidationError("source.provider", c.Source.Provider, "must be 'yahoo' or 'csv'")
	}
	if c.Source.RatePerSec <= 0 {
		return errors.NewValidationError("source.rate_per_sec", c.Source.RatePerSec, "must be positive")
	}
	if c.Source.BreakerFailures < 0 {
		return errors.NewValidationError("source.breaker_failures", c.Source.BreakerFailures, "must be non-negative")
	}
	if c.Source.Retries < 0 {
		return errors.NewValidationError("source.retries", c.Source.Retries, "must be non-negative")
	}

	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			return errors.NewValidationError("symbols", s, "symbol must not be empty")
		}
		if seen[s.Symbol] {
			return errors.NewValidationError("symbols", s.Symbol, "duplicate symbol")
		}
		seen[s.Symbol] = true
	}

	switch c.Export.Format {
	case "csv", "parquet":
	default:
		return errors.NewValidationError("export.format", c.Export.Format, "must be 'csv' or 'parquet'")
	}
	if c.Export.S3.Enabled && c.Export.S3.Bucket == "" {
		return errors.NewValidationError("export.s3.bucket", c.Export.S3.Bucket, "required when s3 upload is enabled")
	}

	if c.Schedule.Enabled && c.Schedule.RefreshCron == "" {
		return errors.NewValidationError("schedule.refresh_cron", c.Schedule.RefreshCron, "required when the schedule is enabled")
	}

	return nil
}

// Dir returns the directory the configuration was loaded from.
func (c *Config) Dir() string {
	return c.dir
}

// Path returns the path of config.toml inside configDir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// IntervalList returns the configured intervals in configuration order.
func (c *Config) IntervalList() []models.Interval {
	out := make([]models.Interval, 0, len(c.Analysis.Intervals))
	for _, id := range c.Analysis.Intervals {
		out = append(out, models.Interval(id))
	}
	return out
}

// Interval returns the settings for one configured interval.
func (c *Config) Interval(id models.Interval) (IntervalConfig, error) {
	for _, configured := range c.Analysis.Intervals {
		if configured == string(id) {
			return c.Intervals[configured], nil
		}
	}
	return IntervalConfig{}, fmt.Errorf("%w: %s", errors.ErrIntervalNotConfigured, id)
}

// Symbol returns the configured symbol entry.
func (c *Config) Symbol(symbol string) (models.Symbol, error) {
	for _, s := range c.Symbols {
		if s.Symbol == symbol {
			return s, nil
		}
	}
	return models.Symbol{}, fmt.Errorf("%w: %s", errors.ErrSymbolNotFound, symbol)
}

// SymbolList returns the configured tickers sorted alphabetically.
func (c *Config) SymbolList() []string {
	out := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		out = append(out, s.Symbol)
	}
	sort.Strings(out)
	return out
}
