package commands

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/l10nsync/internal/cli/output"
	"github.com/leapstack-labs/l10nsync/internal/state"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded operations",
		Long: `List recorded commit, update, push and reset runs, newest first.

With a run id the per-node results of that run are shown.`,
		Example: `  l10nsync history
  l10nsync history --limit 5
  l10nsync history 7f8d2c1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, limit, args)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", state.DefaultListLimit, "Maximum number of runs to show")

	return cmd
}

func runHistory(cmd *cobra.Command, limit int, args []string) error {
	cctx, cleanup, err := NewCommandContext(cmd, nil, false)
	if err != nil {
		return err
	}
	defer cleanup()

	r := cctx.Renderer

	if len(args) == 1 {
		detail, err := cctx.Engine.GetRun(cmd.Context(), localCaller(), args[0])
		if err != nil {
			return err
		}
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON(detail)
		}
		renderRuns(r, []*core.Run{detail.Run})
		rows := make([][]string, 0, len(detail.Results))
		for _, res := range detail.Results {
			rows = append(rows, []string{res.Node, okText(res.Success), string(res.Code), res.Summary})
		}
		r.Table([]string{"Node", "Result", "Code", "Summary"}, rows)
		return nil
	}

	runs, err := cctx.Engine.History(cmd.Context(), localCaller(), limit)
	if err != nil {
		return err
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(runs)
	}
	renderRuns(r, runs)
	return nil
}

func renderRuns(r *output.Renderer, runs []*core.Run) {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			run.ID,
			run.StartedAt.Local().Format(time.DateTime),
			run.Node,
			string(run.Operation),
			run.Caller,
			string(run.Status),
			duration,
			run.Summary,
		})
	}
	r.Table([]string{"Run", "Started", "Node", "Operation", "Caller", "Status", "Duration", "Summary"}, rows)
}

func okText(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
