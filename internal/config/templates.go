package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Chanlun Configuration

[analysis]
# Intervals analyzed for every symbol, in display order
intervals = ["1m", "5m", "30m", "1h", "1d", "1wk", "1mo"]
# Unclassified points required between the endpoints of a full stroke
min_stroke_gap = 3
# Shortest endpoint sequence searched for pivots
min_pivot_endpoints = 5
# Symbols analyzed concurrently by batch runs
workers = 4

# One section per interval: display name, Go date layout and provider range
[intervals.1m]
name = "1 minute"
date_format = "2006-01-02 15:04"
range = "5d"

[intervals.5m]
name = "5 minutes"
date_format = "2006-01-02 15:04"
range = "60d"

[intervals.30m]
name = "30 minutes"
date_format = "2006-01-02 15:04"
range = "60d"

[intervals.1h]
name = "1 hour"
date_format = "2006-01-02 15:04"
range = "1y"

[intervals.1d]
name = "1 day"
date_format = "2006-01-02"
range = "10y"

[intervals.1wk]
name = "1 week"
date_format = "2006-01-02"
range = "max"

[intervals.1mo]
name = "1 month"
date_format = "2006-01-02"
range = "max"

[data]
# SQLite database, relative to the config directory
db_path = "chanlun.db"
# Directory of <symbol>/history_<interval>.csv files for the csv provider
csv_dir = "data"

[source]
# Bar provider: "yahoo" or "csv"
provider = "yahoo"
base_url = "https://query1.finance.yahoo.com"
# Optional HTTP proxy, e.g. "http://127.0.0.1:7890"
proxy = ""
# Request rate limit
rate_per_sec = 2.0
burst = 1
timeout = "15s"
retries = 3
# Keep only China A-share trading hours for .SS/.SZ intraday bars
session_filter = true
# Stop calling the provider after this many consecutive failures (0 disables)
breaker_failures = 5
breaker_cooldown = "1m"

[[symbols]]
symbol = "AAPL"
name = "Apple"

[server]
addr = "127.0.0.1:8000"
read_timeout = "15s"
write_timeout = "60s"
# Host serving echarts.min.js for rendered charts, empty for the public CDN
assets_host = ""

[schedule]
# Periodic refresh of every configured symbol
enabled = false
# Cron expression with a leading seconds field
refresh_cron = "0 5 16 * * 1-5"
timezone = "Local"

[export]
dir = "export"
# Table file format: "csv" or "parquet"
format = "csv"

[export.s3]
enabled = false
bucket = ""
region = "us-east-1"
# Custom endpoint for S3 compatible stores such as MinIO
endpoint = ""
prefix = "chanlun"
path_style = false

[logging]
# Level: debug, info, warn, error
level = "info"
json = false
file = false
file_path = "logs/chanlun.log"
`

const credentialsTemplate = `# Chanlun Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[s3]
# Leave empty to use the default AWS credential chain
access_key_id = ""
secret_access_key = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
