package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/l10nsync/internal/access"
	"github.com/leapstack-labs/l10nsync/internal/cli/output"
	"github.com/leapstack-labs/l10nsync/internal/synchronizer"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status [project[/component[/language]]]",
		Short: "Show working copy and pending translation status",
		Long: `Show every component with its head commit, pending translations and
whether it needs a push or a merge.

With a node path only that subtree is shown.`,
		Example: `  l10nsync status
  l10nsync status website/frontend
  l10nsync status website/frontend/de -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, args)
		},
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cctx, cleanup, err := NewCommandContext(cmd, access.Local{}, true)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	r := cctx.Renderer

	if len(args) == 0 {
		projects := cctx.Engine.Overview(ctx, localCaller())
		if r.EffectiveMode() == output.ModeJSON {
			return r.JSON(projects)
		}
		var components []synchronizer.ComponentStatus
		for _, p := range projects {
			components = append(components, p.Components...)
		}
		renderComponents(r, components)
		return nil
	}

	node, err := core.ParseNodePath(args[0])
	if err != nil {
		return err
	}
	st, err := cctx.Engine.Status(ctx, localCaller(), node)
	if err != nil {
		return err
	}
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(st)
	}

	switch {
	case st.Project != nil:
		renderComponents(r, st.Project.Components)
	case st.Component != nil:
		renderComponents(r, []synchronizer.ComponentStatus{*st.Component})
		renderUnits(r, st.Component.Units)
	case st.Translation != nil:
		renderUnits(r, []synchronizer.UnitStatus{*st.Translation})
	}
	return nil
}

func renderComponents(r *output.Renderer, components []synchronizer.ComponentStatus) {
	rows := make([][]string, 0, len(components))
	for _, c := range components {
		enabled := "yes"
		if !c.Enabled {
			enabled = "no"
		}
		pending := "-"
		if len(c.Pending) > 0 {
			pending = strings.Join(c.Pending, ", ")
		}
		rows = append(rows, []string{
			c.Node,
			enabled,
			shortHead(c.Repo.Head),
			pending,
			output.YesNo(c.Repo.NeedsPush),
			output.YesNo(c.Repo.NeedsMerge),
			c.Error,
		})
	}
	r.Table([]string{"Component", "Enabled", "Head", "Pending", "Needs push", "Needs merge", "Error"}, rows)
}

func renderUnits(r *output.Renderer, units []synchronizer.UnitStatus) {
	rows := make([][]string, 0, len(units))
	for _, u := range units {
		keys := "-"
		if len(u.PendingKeys) > 0 {
			keys = strings.Join(u.PendingKeys, ", ")
		}
		rows = append(rows, []string{u.Node, u.Path, itoa(u.Messages), output.YesNo(u.Pending), keys})
	}
	r.Table([]string{"Translation", "File", "Messages", "Pending", "Pending keys"}, rows)
}

func shortHead(head string) string {
	if len(head) > 7 {
		return head[:7]
	}
	if head == "" {
		return "-"
	}
	return head
}
