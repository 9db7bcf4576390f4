package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chanlun/internal/errors"
	"chanlun/internal/models"
)

func TestLoad_CreatesTemplates(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.FileExists(t, filepath.Join(dir, "credentials.toml"))

	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Equal(t, []models.Interval{"1m", "5m", "30m", "1h", "1d", "1wk", "1mo"}, cfg.IntervalList())
	assert.Equal(t, 3, cfg.Analysis.MinStrokeGap)
	assert.Equal(t, 5, cfg.Analysis.MinPivotEndpoints)
	assert.Equal(t, "yahoo", cfg.Source.Provider)
	assert.Equal(t, 15*time.Second, cfg.Source.Timeout)
	assert.Equal(t, filepath.Join(dir, "chanlun.db"), cfg.Data.DBPath)
	assert.Equal(t, dir, cfg.Dir())
	assert.Equal(t, []string{"AAPL"}, cfg.SymbolList())

	iv, err := cfg.Interval("1d")
	require.NoError(t, err)
	assert.Equal(t, "2006-01-02", iv.DateFormat)
	assert.Equal(t, "10y", iv.Range)
}

func TestLoad_ReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[analysis]
intervals = ["1d", "30m"]
min_stroke_gap = 4

[intervals.1d]
name = "Daily"
date_format = "2006-01-02"
range = "max"

[intervals.30m]
name = "Half hour"
date_format = "2006-01-02 15:04"
range = "60d"

[source]
provider = "csv"

[[symbols]]
symbol = "600519.SS"
name = "Kweichow Moutai"

[[symbols]]
symbol = "002594.SZ"
name = "BYD"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []models.Interval{"1d", "30m"}, cfg.IntervalList())
	assert.Equal(t, 4, cfg.Analysis.MinStrokeGap)
	assert.Equal(t, "csv", cfg.Source.Provider)
	assert.Equal(t, []string{"002594.SZ", "600519.SS"}, cfg.SymbolList())

	s, err := cfg.Symbol("002594.SZ")
	require.NoError(t, err)
	assert.Equal(t, "BYD", s.Name)

	_, err = cfg.Symbol("MSFT")
	assert.True(t, errors.Is(err, errors.ErrSymbolNotFound))

	_, err = cfg.Interval("1wk")
	assert.True(t, errors.Is(err, errors.ErrIntervalNotConfigured))
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CHANLUN_SOURCE_PROVIDER", "csv")
	t.Setenv("CHANLUN_LOGGING_LEVEL", "debug")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "csv", cfg.Source.Provider)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "AKIDEXAMPLE", cfg.Credentials.S3.AccessKeyID)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Analysis:  AnalysisConfig{Intervals: []string{"1d"}, MinStrokeGap: 3, MinPivotEndpoints: 5, Workers: 1},
			Intervals: DefaultIntervals(),
			Source:    SourceConfig{Provider: "yahoo", RatePerSec: 1},
			Export:    ExportConfig{Format: "csv"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{name: "no intervals", mutate: func(c *Config) { c.Analysis.Intervals = nil }, field: "analysis.intervals"},
		{name: "unknown interval", mutate: func(c *Config) { c.Analysis.Intervals = []string{"2h"} }, field: "analysis.intervals"},
		{name: "gap", mutate: func(c *Config) { c.Analysis.MinStrokeGap = 0 }, field: "analysis.min_stroke_gap"},
		{name: "pivot minimum", mutate: func(c *Config) { c.Analysis.MinPivotEndpoints = 4 }, field: "analysis.min_pivot_endpoints"},
		{name: "provider", mutate: func(c *Config) { c.Source.Provider = "bloomberg" }, field: "source.provider"},
		{name: "rate", mutate: func(c *Config) { c.Source.RatePerSec = 0 }, field: "source.rate_per_sec"},
		{name: "format", mutate: func(c *Config) { c.Export.Format = "xlsx" }, field: "export.format"},
		{name: "bucket", mutate: func(c *Config) { c.Export.S3.Enabled = true }, field: "export.s3.bucket"},
		{
			name:   "duplicate symbol",
			mutate: func(c *Config) { c.Symbols = []models.Symbol{{Symbol: "AAPL"}, {Symbol: "AAPL"}} },
			field:  "symbols",
		},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)

			err := c.Validate()

			var verr *errors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
		})
	}
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/tmp/x", "config.toml"), Path("/tmp/x"))
}
