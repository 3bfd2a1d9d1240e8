package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/l10nsync/internal/cli/output"
	"github.com/leapstack-labs/l10nsync/internal/state"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the state database",
		Long: `Apply pending schema migrations to the state database.

Every other command migrates on startup; migrate is useful before the first
serve or after an upgrade.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cctx := NewCommandContextWithoutEngine(cmd)
	path := cctx.Cfg.StatePath

	if dir := filepath.Dir(path); dir != "." && dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(cctx.Logger)
	if err := store.Open(path); err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate state store: %w", err)
	}
	version, err := store.MigrationVersion()
	if err != nil {
		return err
	}

	r := cctx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{"state_path": path, "version": version})
	}
	r.Printf("State database %s is at version %d\n", path, version)
	return nil
}
