package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ipcurator/curator/cmd/curator/cmdutil"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <old-name> <new-name>",
	Short: "Rename a feed, moving its on-disk artifacts and cached state",
	Long: `migrate is a one-shot data migration, not a scheduler operation: it
moves a feed's .source marker, published .ipset/.netset snapshots,
history archive, and retention directory from old-name to new-name, and
carries its metadata-cache state forward to the new name.

It does not touch the feed registry; update feeds.yaml separately.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldName, newName := args[0], args[1]
		if oldName == newName {
			return fmt.Errorf("migrate: old and new names are identical")
		}

		ctx := cmd.Context()
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

		moves := []struct{ from, to string }{
			{filepath.Join(cfg.BaseDir, oldName+".source"), filepath.Join(cfg.BaseDir, newName+".source")},
			{filepath.Join(cfg.BaseDir, oldName+".ipset"), filepath.Join(cfg.BaseDir, newName+".ipset")},
			{filepath.Join(cfg.BaseDir, oldName+".netset"), filepath.Join(cfg.BaseDir, newName+".netset")},
			{filepath.Join(cfg.HistoryDir, oldName), filepath.Join(cfg.HistoryDir, newName)},
			{filepath.Join(cfg.LibDir, oldName), filepath.Join(cfg.LibDir, newName)},
		}

		printer := cmdutil.Printer()
		for _, m := range moves {
			if _, err := os.Stat(m.from); os.IsNotExist(err) {
				continue
			}
			if err := os.Rename(m.from, m.to); err != nil {
				return fmt.Errorf("migrate: move %s to %s: %w", m.from, m.to, err)
			}
			printer.Println(fmt.Sprintf("moved %s -> %s", m.from, m.to))
		}

		if st, ok, err := orch.Metacache.Get(oldName); err == nil && ok {
			if err := orch.Metacache.Put(ctx, newName, st); err != nil {
				return fmt.Errorf("migrate: carry metadata-cache state: %w", err)
			}
			printer.Println(fmt.Sprintf("carried metadata-cache state %s -> %s", oldName, newName))
		}

		printer.Success(fmt.Sprintf("migrated %s -> %s", oldName, newName))
		return nil
	},
}
