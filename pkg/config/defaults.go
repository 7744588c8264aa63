package config

import (
	"path/filepath"
	"time"
)

// ApplyDefaults fills in zero-valued fields before the config file and
// environment overrides are unmarshaled on top, so a config that sets
// only a handful of keys still ends up fully populated.
func ApplyDefaults(cfg *Config) {
	if cfg.BaseDir == "" {
		cfg.BaseDir = "/var/lib/curator"
	}
	if cfg.FeedsFile == "" {
		cfg.FeedsFile = "feeds.yaml"
	}
	if cfg.ParallelDNSQueries == 0 {
		cfg.ParallelDNSQueries = 10
	}
	if cfg.MaxDownloadTime == 0 {
		cfg.MaxDownloadTime = 300 * time.Second
	}
	if cfg.MaxConnectTime == 0 {
		cfg.MaxConnectTime = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ipcurator-curator/1.0 (+https://github.com/ipcurator/curator)"
	}
	if cfg.MaxDownloadSize == "" {
		cfg.MaxDownloadSize = DefaultMaxDownloadSize
	}
	if cfg.IgnoreRepeatingDownloadErrors == 0 {
		cfg.IgnoreRepeatingDownloadErrors = 10
	}
	if cfg.IPSetReduceFactor == 0 {
		cfg.IPSetReduceFactor = 20
	}
	if cfg.IPSetReduceEntries == 0 {
		cfg.IPSetReduceEntries = 65536
	}
	if cfg.StaleThreshold == 0 {
		cfg.StaleThreshold = 7 * 24 * time.Hour
	}
	if cfg.ParallelFeeds == 0 {
		cfg.ParallelFeeds = 1
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Kernel.MaxElem == 0 {
		cfg.Kernel.MaxElem = 65536
	}
}

// ApplyDerivedDefaults fills in directory fields that default to a
// subdirectory of BaseDir, after BaseDir itself has been resolved from
// file/env/flag overrides.
func ApplyDerivedDefaults(cfg *Config) {
	if cfg.CacheDir == "" {
		cfg.CacheDir = cfg.BaseDir
	}
	if cfg.LibDir == "" {
		cfg.LibDir = filepath.Join(cfg.BaseDir, "lib")
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = filepath.Join(cfg.BaseDir, "tmp")
	}
	if cfg.HistoryDir == "" {
		cfg.HistoryDir = filepath.Join(cfg.BaseDir, "history")
	}
	if cfg.ErrorsDir == "" {
		cfg.ErrorsDir = filepath.Join(cfg.BaseDir, "errors")
	}
}

// Default returns a Config with every default applied, useful for tests
// and for `curator run` invoked with no config file at all.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyDerivedDefaults(cfg)
	return cfg
}
