package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/l10nsync/internal/access"
	"github.com/leapstack-labs/l10nsync/internal/cli/output"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// syncOptions holds options shared by the operation commands.
type syncOptions struct {
	All bool
}

// NewCommitCommand creates the commit command.
func NewCommitCommand() *cobra.Command {
	return newOperationCommand(core.OpCommit,
		"Commit pending translations",
		`Write pending translation edits to the working copies and commit them.

Nothing is pushed. Components without pending edits report "nothing to commit".`)
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand() *cobra.Command {
	return newOperationCommand(core.OpUpdate,
		"Fetch and merge upstream changes",
		`Commit pending edits, fetch the upstream branch and reconcile it with local work.

Diverging edits of the same file are reported as conflicts and never resolved
silently; use reset to discard local work.`)
}

// NewPushCommand creates the push command.
func NewPushCommand() *cobra.Command {
	return newOperationCommand(core.OpPush,
		"Commit and push local work upstream",
		`Commit pending edits and push them to the upstream branch.

A push rejected by the remote is reported and not retried; run update first.`)
}

// NewResetCommand creates the reset command.
func NewResetCommand() *cobra.Command {
	return newOperationCommand(core.OpReset,
		"Discard local work and match upstream",
		`Fetch the upstream branch and hard-reset the working copies to it.

Pending edits and unpushed commits are discarded.`)
}

func newOperationCommand(op core.Operation, short, long string) *cobra.Command {
	opts := &syncOptions{}
	name := string(op)

	cmd := &cobra.Command{
		Use:   name + " [project[/component[/language]]]",
		Short: short,
		Long:  long,
		Example: fmt.Sprintf(`  # Run on a whole project
  l10nsync %[1]s website

  # Run on one component or one translation
  l10nsync %[1]s website/frontend
  l10nsync %[1]s website/frontend/de

  # Run on every project
  l10nsync %[1]s --all`, name),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperation(cmd, op, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "Run on every configured project")

	return cmd
}

func runOperation(cmd *cobra.Command, op core.Operation, opts *syncOptions, args []string) error {
	nodes, err := targetNodes(opts, args)
	if err != nil {
		return err
	}

	cctx, cleanup, err := NewCommandContext(cmd, access.Local{}, true)
	if err != nil {
		return err
	}
	defer cleanup()

	if opts.All {
		for _, p := range cctx.Engine.Registry().Projects() {
			nodes = append(nodes, p.Node())
		}
	}

	caller := localCaller()
	outcomes := make([]core.Outcome, 0, len(nodes))
	failed := 0
	for _, node := range nodes {
		out, err := cctx.Engine.Run(cmd.Context(), caller, op, node)
		if err != nil {
			return err
		}
		if !out.Success {
			failed++
		}
		outcomes = append(outcomes, out)
	}

	r := cctx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(outcomes); err != nil {
			return err
		}
	} else {
		for _, out := range outcomes {
			r.Outcome(out)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%s failed on %d of %d nodes", op, failed, len(outcomes))
	}
	return nil
}

func targetNodes(opts *syncOptions, args []string) ([]core.NodePath, error) {
	switch {
	case opts.All && len(args) > 0:
		return nil, fmt.Errorf("--all cannot be combined with a node path")
	case opts.All:
		return nil, nil
	case len(args) == 0:
		return nil, fmt.Errorf("a node path or --all is required")
	}
	node, err := core.ParseNodePath(args[0])
	if err != nil {
		return nil, err
	}
	return []core.NodePath{node}, nil
}
