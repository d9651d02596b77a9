// Package config loads service configuration from defaults, an optional
// YAML file, and TABSTAT_-prefixed environment variables.
//
// Precedence: flags (applied by the caller) > environment > config file >
// defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `mapstructure:"addr"`

	// MaxInputBytes caps any single input (upload, file, URL, sheet export).
	MaxInputBytes int64 `mapstructure:"max_input_bytes"`

	// MaxSQLRows caps SQL result grids.
	MaxSQLRows int `mapstructure:"max_sql_rows"`

	// CORSOrigin is the Access-Control-Allow-Origin value for the JSON API.
	CORSOrigin string `mapstructure:"cors_origin"`

	// HTTPTimeoutSec bounds URL and sheet fetches.
	HTTPTimeoutSec int `mapstructure:"http_timeout_sec"`

	// InsecureSkipVerify disables TLS verification on URL fetches. For
	// scraping hosts with broken certificate chains only.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`

	// SheetsToken is an OAuth bearer token for the Sheets and Drive APIs.
	// Required for writes; reads fall back to the public export endpoint
	// without it.
	SheetsToken string `mapstructure:"sheets_token"`

	// SheetsAPIKey authenticates read-only Sheets API calls.
	SheetsAPIKey string `mapstructure:"sheets_api_key"`

	// SheetsBaseURL and DriveBaseURL override the Google API endpoints,
	// mainly for tests and proxies. Empty uses the public endpoints.
	SheetsBaseURL string `mapstructure:"sheets_base_url"`
	DriveBaseURL  string `mapstructure:"drive_base_url"`

	// Metrics selects the backend: "none", "datadog" or "pushgateway".
	Metrics string `mapstructure:"metrics"`

	// MetricsIntervalSec is the flush interval for buffered backends.
	MetricsIntervalSec int `mapstructure:"metrics_interval_sec"`

	// MetricsEnv tags every series with an environment name.
	MetricsEnv string `mapstructure:"metrics_env"`

	// PushgatewayURL is the push target when Metrics is "pushgateway".
	PushgatewayURL string `mapstructure:"pushgateway_url"`

	// Verbose turns on per-request logging.
	Verbose bool `mapstructure:"verbose"`
}

// HTTPTimeout returns HTTPTimeoutSec as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// MetricsInterval returns MetricsIntervalSec as a duration.
func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalSec) * time.Second
}

// Load reads configuration. cfgFile names an explicit YAML file; empty
// searches the working directory for tabstat.yaml and carries on without
// one.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TABSTAT")
	v.AutomaticEnv()

	// Every key gets a default so environment-only values survive
	// Unmarshal.
	v.SetDefault("addr", ":8080")
	v.SetDefault("max_input_bytes", int64(64<<20))
	v.SetDefault("max_sql_rows", 100000)
	v.SetDefault("cors_origin", "*")
	v.SetDefault("http_timeout_sec", 30)
	v.SetDefault("insecure_skip_verify", false)
	v.SetDefault("sheets_token", "")
	v.SetDefault("sheets_api_key", "")
	v.SetDefault("sheets_base_url", "")
	v.SetDefault("drive_base_url", "")
	v.SetDefault("metrics", "none")
	v.SetDefault("metrics_interval_sec", 60)
	v.SetDefault("metrics_env", "dev")
	v.SetDefault("pushgateway_url", "")
	v.SetDefault("verbose", false)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tabstat")
		v.SetConfigName("tabstat")
		v.SetConfigType("yaml")
		// Having no config file at all is fine.
		_ = v.ReadInConfig()
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	switch c.Metrics {
	case "none", "datadog", "pushgateway":
	default:
		return nil, fmt.Errorf("metrics backend %q: want none, datadog or pushgateway", c.Metrics)
	}
	if c.Metrics == "pushgateway" && c.PushgatewayURL == "" {
		return nil, fmt.Errorf("metrics backend pushgateway needs pushgateway_url")
	}

	return &c, nil
}
