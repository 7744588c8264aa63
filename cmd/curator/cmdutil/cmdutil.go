// Package cmdutil holds the curator CLI's global flag state and the
// shared construction logic every subcommand needs: loading Config,
// initializing logging/telemetry, and wiring an Orchestrator from its
// collaborators. Mirrors the teacher's cmd/*/cmdutil split between
// command dispatch and shared client plumbing.
package cmdutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipcurator/curator/internal/cli/output"
	"github.com/ipcurator/curator/internal/logger"
	"github.com/ipcurator/curator/internal/telemetry"
	"github.com/ipcurator/curator/pkg/config"
	"github.com/ipcurator/curator/pkg/distribute"
	"github.com/ipcurator/curator/pkg/feed"
	"github.com/ipcurator/curator/pkg/fetch"
	"github.com/ipcurator/curator/pkg/history"
	"github.com/ipcurator/curator/pkg/metacache"
	metricsfront "github.com/ipcurator/curator/pkg/metrics"
	_ "github.com/ipcurator/curator/pkg/metrics/prometheus"
	"github.com/ipcurator/curator/pkg/orchestrator"
	"github.com/ipcurator/curator/pkg/publish"
	"github.com/ipcurator/curator/pkg/registry"
	"github.com/ipcurator/curator/pkg/retention"
)

// Flags holds the persistent flags shared by every subcommand, synced
// from cobra in root's PersistentPreRun.
var Flags struct {
	ConfigPath string
	Output     string
	NoColor    bool
	Verbose    bool
	Silent     bool
}

// Printer returns a Printer configured from the current global flags.
func Printer() *output.Printer {
	format, err := output.ParseFormat(Flags.Output)
	if err != nil {
		format = output.FormatTable
	}
	return output.NewPrinter(os.Stdout, format, !Flags.NoColor)
}

// LoadConfig loads Config from the --config flag (or curator.yaml in the
// working directory) and initializes logging and telemetry from it.
func LoadConfig(ctx context.Context) (*config.Config, func(context.Context) error, error) {
	cfg, err := config.Load(Flags.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("cmdutil: load config: %w", err)
	}

	level := cfg.Logging.Level
	if Flags.Verbose {
		level = "DEBUG"
	}
	if Flags.Silent {
		level = "ERROR"
	}
	if err := logger.Init(logger.Config{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: "stderr",
	}); err != nil {
		return nil, nil, fmt.Errorf("cmdutil: init logger: %w", err)
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "curator",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("cmdutil: init telemetry: %w", err)
	}

	if cfg.Metrics.Enabled {
		metricsfront.InitRegistry()
	}

	return cfg, shutdown, nil
}

// Version is set from main's build-time variable so telemetry reports it.
var Version = "dev"

// BuildOrchestrator wires every C1-C10 collaborator from cfg, following
// the teacher's pattern of constructing all stores up front in main
// before handing them to the component that drives them.
func BuildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, func() error, error) {
	reg, err := registry.Load(cfg.FeedsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("cmdutil: load registry: %w", err)
	}

	mc, err := metacache.Open(
		filepath.Join(cfg.CacheDir, "metacache"),
		filepath.Join(cfg.LibDir, "metacache.json"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("cmdutil: open metacache: %w", err)
	}
	closeFn := mc.Close

	hist := history.New(cfg.HistoryDir)
	ret := retention.New(cfg.LibDir)

	var kernel publish.KernelAdapter = publish.NullKernelAdapter{}
	if cfg.Kernel.Enabled {
		kernel = &publish.CLIKernelAdapter{BinaryPath: cfg.Kernel.CLIPath}
	}

	pub := &publish.Publisher{
		BaseDir:      cfg.BaseDir,
		ErrorsDir:    cfg.ErrorsDir,
		PreserveErrs: cfg.PreserveErrors,
		Kernel:       kernel,
		ReduceFactor: cfg.IPSetReduceFactor,
		ReduceMinEnt: cfg.IPSetReduceEntries,
		MaxElem:      cfg.Kernel.MaxElem,
		Metrics:      metricsfront.NewPublishMetrics(),
	}

	proc := &feed.Processor{
		Publisher:        pub,
		History:          hist,
		ReduceFactor:     cfg.IPSetReduceFactor,
		ReduceMinEntries: cfg.IPSetReduceEntries,
	}

	var distributor orchestrator.Distributor = orchestrator.NullDistributor{}
	if cfg.Distribute.Enabled {
		client, err := distribute.NewS3Client(context.Background(), distribute.S3Config{
			Bucket: cfg.Distribute.Bucket,
			Prefix: cfg.Distribute.Prefix,
			Region: cfg.Distribute.Region,
		})
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("cmdutil: build s3 client: %w", err)
		}
		distributor = &distribute.S3Distributor{
			Client: client,
			Bucket: cfg.Distribute.Bucket,
			Prefix: cfg.Distribute.Prefix,
		}
	}

	maxBodyBytes, err := cfg.MaxDownloadSizeBytes()
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	httpFetcher := fetch.NewHTTPFetcher(cfg.MaxConnectTime, cfg.MaxDownloadTime)
	httpFetcher.MaxBodyBytes = maxBodyBytes

	o := &orchestrator.Orchestrator{
		BaseDir:          cfg.BaseDir,
		TmpDir:           cfg.TmpDir,
		LockPath:         filepath.Join(cfg.BaseDir, ".curator.lock"),
		Registry:         reg,
		Metacache:        mc,
		History:          hist,
		Retention:        ret,
		Feed:             proc,
		HTTPFetcher:      httpFetcher,
		LocalFetcher:     fetch.LocalFetcher{},
		Distributor:      distributor,
		Git:              orchestrator.NullGitPublisher{},
		Dashboard:        orchestrator.NullDashboardRenderer{},
		ParallelFeeds:    cfg.ParallelFeeds,
		StaleThreshold:   cfg.StaleThreshold,
		FailureThreshold: cfg.IgnoreRepeatingDownloadErrors,
		Metrics:          metricsfront.NewOrchestratorMetrics(),
	}

	return o, closeFn, nil
}
