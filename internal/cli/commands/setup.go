// Package commands implements the l10nsync subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/l10nsync/internal/access"
	"github.com/leapstack-labs/l10nsync/internal/cli/config"
	"github.com/leapstack-labs/l10nsync/internal/cli/output"
	"github.com/leapstack-labs/l10nsync/internal/engine"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// When prepare is set every working copy is opened or cloned first.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command, guard access.Guard, prepare bool) (*CommandContext, func(), error) {
	cctx := NewCommandContextWithoutEngine(cmd)

	eng, err := createEngine(cctx.Cfg, guard, cctx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = eng.Close()
	}

	if prepare {
		failed, err := eng.Prepare(cmd.Context())
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		for node, perr := range failed {
			cctx.Renderer.Warn("%s: %v", node, perr)
		}
	}

	cctx.Engine = eng
	return cctx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't need the working copies.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode, err := output.ParseMode(cfg.OutputFormat)
	if err != nil {
		mode = output.ModeAuto
	}
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, or defaults when none was loaded.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		StatePath:    config.DefaultStateFile,
		LogLevel:     config.DefaultLogLevel,
		LogFormat:    config.DefaultLogFormat,
		OutputFormat: config.DefaultOutput,
	}
}

func createEngine(cfg *config.Config, guard access.Guard, logger *slog.Logger) (*engine.Engine, error) {
	eng, err := engine.New(engine.Config{
		StatePath: cfg.StatePath,
		Hierarchy: cfg.Hierarchy(),
		Guard:     guard,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return eng, nil
}

// localCaller names the operator of a local command.
func localCaller() string {
	if name := os.Getenv("L10NSYNC_USER"); name != "" {
		return name
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}
