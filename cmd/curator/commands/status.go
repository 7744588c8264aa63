package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ipcurator/curator/cmd/curator/cmdutil"
	"github.com/ipcurator/curator/internal/cli/timeutil"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show each feed's last known state from the metadata cache",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		now := time.Now()
		rows := make([][]string, 0, orch.Registry.Len())
		for _, fd := range orch.Registry.Feeds() {
			st, ok, err := orch.Metacache.Get(fd.Name)
			if err != nil {
				return fmt.Errorf("status: read %s: %w", fd.Name, err)
			}

			enabled := "yes"
			lastProcessed := "never"
			version := "-"
			entries := "-"
			staleFlag := ""
			if ok {
				if !st.Enabled {
					enabled = "no"
				}
				if !st.LastProcessedTimestamp.IsZero() {
					lastProcessed = timeutil.FormatTime(st.LastProcessedTimestamp.Format(time.RFC3339))
				}
				version = fmt.Sprintf("%d", st.Version)
				entries = humanize.Comma(int64(st.EntryCount))
				if st.Stale(cfg.StaleThreshold, now) {
					staleFlag = "STALE"
				}
			}
			rows = append(rows, []string{fd.Name, enabled, version, entries, lastProcessed, staleFlag})
		}

		table := statusTable{rows: rows}
		return cmdutil.Printer().Print(table)
	},
}

type statusTable struct {
	rows [][]string
}

func (t statusTable) Headers() []string {
	return []string{"Feed", "Enabled", "Version", "Entries", "Last Processed", "Flag"}
}

func (t statusTable) Rows() [][]string {
	return t.rows
}
