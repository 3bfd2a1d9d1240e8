package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/l10nsync/internal/access"
	"github.com/leapstack-labs/l10nsync/internal/cli/config"
	"github.com/leapstack-labs/l10nsync/internal/server"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Prepare every working copy and serve the HTTP API.

Operations are triggered with POST /{commit|update|push|reset}/{project}[/{component}[/{language}]]
and authorized against access.grants. Callers authenticate with a bearer token
from access.tokens.`,
		Example: `  # Serve on the configured address
  l10nsync serve

  # Serve on a custom address
  l10nsync serve --addr 127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Address to listen on (default: server.addr)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg := getConfig()
	guard, err := policyGuard(cfg)
	if err != nil {
		return err
	}

	cctx, cleanup, err := NewCommandContext(cmd, guard, true)
	if err != nil {
		return err
	}
	defer cleanup()

	addr := cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	secret := cfg.Server.SessionSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		cctx.Logger.Warn("server.session_secret is not set; notifications will not survive a restart")
	}

	srv := server.NewServer(server.Config{
		Engine:            cctx.Engine,
		Auth:              guard,
		Addr:              addr,
		SessionSecret:     secret,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		Logger:            cctx.Logger,
	})

	cctx.Renderer.Printf("Serving l10nsync on %s\n", addr)
	return srv.Serve(cmd.Context())
}

// policyGuard builds the access guard from the access section.
func policyGuard(cfg *config.Config) (*access.PolicyGuard, error) {
	grants := make([]access.Grant, 0, len(cfg.Access.Grants))
	for _, g := range cfg.Access.Grants {
		grants = append(grants, access.Grant{User: g.User, Projects: g.Projects, Capabilities: g.Capabilities})
	}
	guard, err := access.NewPolicyGuard(cfg.Access.Tokens, grants)
	if err != nil {
		return nil, fmt.Errorf("invalid access configuration: %w", err)
	}
	return guard, nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
