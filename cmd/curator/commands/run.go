package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ipcurator/curator/cmd/curator/cmdutil"
	"github.com/ipcurator/curator/internal/cli/output"
	"github.com/ipcurator/curator/pkg/orchestrator"
)

var runOpts orchestrator.RunOptions

var runCmd = &cobra.Command{
	Use:   "run [feed...]",
	Short: "Walk every due feed once: fetch, canonicalize, publish",
	Long: `run walks the feed registry, fetching and canonicalizing each feed that
is due (or forced via flags), and publishing any changed snapshot to disk
and, when enabled, to the kernel packet-filter boundary.

Pass one or more feed names to restrict the walk to just those feeds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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

		runOpts.Only = args
		report, err := orch.Run(ctx, runOpts)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}

		printRunReport(cmdutil.Printer(), report)

		if failures := report.Failures(); len(failures) > 0 {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOpts.EnableAll, "enable-all", false, "Treat every feed as enabled whether or not its .source marker exists")
	runCmd.Flags().BoolVar(&runOpts.Recheck, "recheck", false, "Ignore the scheduler's due check and fetch every requested feed")
	runCmd.Flags().BoolVar(&runOpts.Reprocess, "reprocess", false, "Reprocess the last-fetched source even if not modified")
	runCmd.Flags().BoolVar(&runOpts.Rebuild, "rebuild", false, "Regenerate the dashboard even when no feed changed")
	runCmd.Flags().BoolVar(&runOpts.PushGit, "push-git", false, "Push the base directory's git working tree after a changed run")
	runCmd.Flags().BoolVar(&runOpts.Cleanup, "cleanup", false, "Remove history, lib and errors artifacts of feeds no longer in the registry")
}

// reportTable renders a RunReport as a table of per-feed outcomes.
type reportTable struct {
	report *orchestrator.RunReport
}

func (t reportTable) Headers() []string {
	return []string{"Feed", "State", "Changed", "Version", "Error"}
}

func (t reportTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.report.Results))
	for _, res := range t.report.Results {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		rows = append(rows, []string{
			res.Feed,
			string(res.State),
			fmt.Sprintf("%v", res.Changed),
			fmt.Sprintf("%d", res.Version),
			errText,
		})
	}
	return rows
}

func printRunReport(p *output.Printer, report *orchestrator.RunReport) {
	_ = p.Print(reportTable{report: report})
	duration := report.FinishedAt.Sub(report.StartedAt)
	if failures := report.Failures(); len(failures) > 0 {
		p.Warning(fmt.Sprintf("%d feed(s) failed in %s", len(failures), duration))
	} else {
		p.Success(fmt.Sprintf("%d feed(s) walked in %s", len(report.Results), duration))
	}
}
