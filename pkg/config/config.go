// Package config loads the run-level Config: base directories, timeouts,
// and feature toggles. It is deliberately separate from pkg/registry's
// feeds.yaml, mirroring the split the teacher draws between static server
// Config and its dynamically-managed state.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/ipcurator/curator/internal/bytesize"
)

// DefaultMaxDownloadSize is used when MaxDownloadSize is unset.
const DefaultMaxDownloadSize = "256Mi"

// Config is the run-level configuration, loaded with precedence flags >
// env (CURATOR_*) > file > defaults, matching the teacher's pkg/config.
// Env overrides apply only to keys the config file sets; see Load.
type Config struct {
	BaseDir    string `mapstructure:"base_dir" validate:"required"`
	CacheDir   string `mapstructure:"cache_dir"`
	LibDir     string `mapstructure:"lib_dir"`
	TmpDir     string `mapstructure:"tmp_dir"`
	HistoryDir string `mapstructure:"history_dir"`
	ErrorsDir  string `mapstructure:"errors_dir"`
	FeedsFile  string `mapstructure:"feeds_file" validate:"required"`

	ParallelDNSQueries int           `mapstructure:"parallel_dns_queries" validate:"gte=1"`
	MaxDownloadTime    time.Duration `mapstructure:"max_download_time" validate:"gt=0"`
	MaxConnectTime     time.Duration `mapstructure:"max_connect_time" validate:"gt=0"`
	// MaxDownloadSize caps a single feed's decompressed response body, in
	// bytesize.ParseByteSize notation ("256Mi", "1Gi", plain bytes). Use
	// MaxDownloadSizeBytes to read the resolved value.
	MaxDownloadSize               string        `mapstructure:"max_download_size"`
	UserAgent                     string        `mapstructure:"user_agent"`
	IgnoreRepeatingDownloadErrors int           `mapstructure:"ignore_repeating_download_errors" validate:"gte=0"`
	IPSetReduceFactor             int           `mapstructure:"ipset_reduce_factor" validate:"gte=0"`
	IPSetReduceEntries            int           `mapstructure:"ipset_reduce_entries" validate:"gte=0"`
	StaleThreshold                time.Duration `mapstructure:"stale_threshold" validate:"gt=0"`
	PreserveErrors                bool          `mapstructure:"preserve_errors"`
	ParallelFeeds                 int           `mapstructure:"parallel_feeds" validate:"gte=1"`

	Logging    LoggingConfig    `mapstructure:"logging"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Profiling  ProfilingConfig  `mapstructure:"profiling"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Kernel     KernelConfig     `mapstructure:"kernel"`
	Distribute DistributeConfig `mapstructure:"distribute"`
}

// LoggingConfig controls internal/logger's level and format.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// TelemetryConfig controls OpenTelemetry tracing, optional and config-gated.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	Insecure   bool    `mapstructure:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1"`
}

// ProfilingConfig controls Pyroscope continuous profiling, optional.
type ProfilingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// MetricsConfig controls the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// KernelConfig toggles the packet-filter kernel adapter.
type KernelConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	CLIPath string `mapstructure:"cli_path"`
	MaxElem int    `mapstructure:"max_elem" validate:"omitempty,gt=0"`
}

// DistributeConfig toggles the S3 distributor collaborator.
type DistributeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bucket  string `mapstructure:"bucket" validate:"required_if=Enabled true"`
	Prefix  string `mapstructure:"prefix"`
	Region  string `mapstructure:"region"`
}

// Load loads configuration from file, environment (CURATOR_*), and
// defaults, in that order of decreasing precedence below flags (flags
// are applied by the caller after Load via viper.BindPFlag or by
// overwriting fields directly — see cmd/curator). A CURATOR_* variable
// takes effect only for a key that the config file also sets; when no
// config file is found, Load uses defaults alone and reads no environment
// variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	ApplyDefaults(cfg)

	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		))); err != nil {
			return nil, fmt.Errorf("config: unmarshal: %w", err)
		}
	}

	ApplyDerivedDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("curator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		return false, fmt.Errorf("config: read: %w", err)
	}
	return true, nil
}

// MaxDownloadSizeBytes resolves MaxDownloadSize to a byte count, falling
// back to DefaultMaxDownloadSize when unset.
func (c *Config) MaxDownloadSizeBytes() (int64, error) {
	raw := c.MaxDownloadSize
	if raw == "" {
		raw = DefaultMaxDownloadSize
	}
	size, err := bytesize.ParseByteSize(raw)
	if err != nil {
		return 0, fmt.Errorf("config: max_download_size: %w", err)
	}
	return size.Int64(), nil
}

var validate = validator.New()

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}
