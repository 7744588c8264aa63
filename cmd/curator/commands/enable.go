package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipcurator/curator/cmd/curator/cmdutil"
	"github.com/ipcurator/curator/internal/cli/prompt"
	"github.com/ipcurator/curator/pkg/orchestrator"
)

var enableCmd = &cobra.Command{
	Use:   "enable [feed...]",
	Short: "Enable one or more feeds in the metadata cache",
	Long: `enable marks the given feeds as eligible for the scheduler. With no
feed names, it opens an interactive multi-select over the registry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetEnabled(cmd.Context(), args, true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <feed>...",
	Short: "Disable one or more feeds in the metadata cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetEnabled(cmd.Context(), args, false)
	},
}

func runSetEnabled(ctx context.Context, names []string, enabled bool) error {
	cfg, shutdown, err := cmdutil.LoadConfig(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if shutdown != nil {
			_ = shutdown(context.Background())
		}
	}()

	orch, closeStores, err := cmdutil.BuildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	if len(names) == 0 {
		if !enabled {
			return fmt.Errorf("disable: at least one feed name is required")
		}
		names, err = pickFeeds(orch)
		if err != nil {
			return fmt.Errorf("enable: %w", err)
		}
		if len(names) == 0 {
			return nil
		}
	}

	printer := cmdutil.Printer()
	for _, name := range names {
		if _, ok := orch.Registry.Get(name); !ok {
			return fmt.Errorf("enable: unknown feed %q", name)
		}

		st, _, err := orch.Metacache.Get(name)
		if err != nil {
			return fmt.Errorf("enable: read %s: %w", name, err)
		}
		st.Enabled = enabled
		if err := orch.Metacache.Put(ctx, name, st); err != nil {
			return fmt.Errorf("enable: write %s: %w", name, err)
		}
		marker := filepath.Join(orch.BaseDir, name+".source")
		if enabled {
			if _, err := os.Stat(marker); os.IsNotExist(err) {
				if err := os.WriteFile(marker, nil, 0o644); err != nil {
					return fmt.Errorf("enable: create %s: %w", marker, err)
				}
				_ = os.Chtimes(marker, time.Unix(0, 0), time.Unix(0, 0))
			}
		} else if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("disable: remove %s: %w", marker, err)
		}

		if enabled {
			printer.Success(fmt.Sprintf("%s enabled", name))
		} else {
			printer.Success(fmt.Sprintf("%s disabled", name))
		}
	}
	return nil
}

// pickFeeds opens an interactive multi-select over the registry, used by
// "enable" when invoked with no feed names.
func pickFeeds(orch *orchestrator.Orchestrator) ([]string, error) {
	feeds := orch.Registry.Feeds()
	options := make([]prompt.SelectOption, 0, len(feeds))
	for _, fd := range feeds {
		options = append(options, prompt.SelectOption{Label: fd.Name, Value: fd.Name})
	}
	return prompt.MultiSelect("Select feeds to enable", options)
}
