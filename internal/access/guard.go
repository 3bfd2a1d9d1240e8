// Package access decides whether a caller may run a capability on a node.
//
// Every guard fails closed: an anonymous caller, an unknown user or a node
// without a matching grant is denied with core.ErrForbidden.
package access

import (
	"context"
	"crypto/subtle"
	"fmt"
	"path"
	"slices"

	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// Guard authorizes a caller against a hierarchy node.
type Guard interface {
	Authorize(ctx context.Context, caller string, node core.NodePath, capability core.Capability) error
}

// Any matches every user, project or capability in a Grant.
const Any = "*"

// Grant gives User the listed capabilities on projects matching Projects.
// Project entries are path.Match patterns. Any grant on a project lets the
// user view it.
type Grant struct {
	User         string
	Projects     []string
	Capabilities []string
}

func (g Grant) matches(caller string, node core.NodePath, capability core.Capability) bool {
	if g.User != Any && g.User != caller {
		return false
	}
	if capability != core.CapView && !slices.Contains(g.Capabilities, Any) && !slices.Contains(g.Capabilities, string(capability)) {
		return false
	}
	for _, pattern := range g.Projects {
		if ok, err := path.Match(pattern, node.Project); err == nil && ok {
			return true
		}
	}
	return false
}

// Validate checks the grant's patterns and capability names.
func (g Grant) Validate() error {
	if g.User == "" {
		return fmt.Errorf("grant has no user")
	}
	if len(g.Projects) == 0 {
		return fmt.Errorf("grant for %s lists no projects", g.User)
	}
	for _, p := range g.Projects {
		if _, err := path.Match(p, ""); err != nil {
			return fmt.Errorf("grant for %s: bad project pattern %q: %w", g.User, p, err)
		}
	}
	for _, c := range g.Capabilities {
		if c == Any {
			continue
		}
		if _, err := core.ParseCapability(c); err != nil {
			return fmt.Errorf("grant for %s: %w", g.User, err)
		}
	}
	return nil
}

// PolicyGuard authorizes callers against configured grants and resolves
// API tokens to users.
type PolicyGuard struct {
	tokens map[string]string
	grants []Grant
}

// NewPolicyGuard builds a guard. tokens maps an API token to a user name.
func NewPolicyGuard(tokens map[string]string, grants []Grant) (*PolicyGuard, error) {
	for _, g := range grants {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}
	t := make(map[string]string, len(tokens))
	for token, user := range tokens {
		if token == "" || user == "" {
			return nil, fmt.Errorf("access tokens need a token and a user")
		}
		t[token] = user
	}
	return &PolicyGuard{tokens: t, grants: slices.Clone(grants)}, nil
}

// Authenticate returns the user owning token.
func (g *PolicyGuard) Authenticate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	for known, user := range g.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return user, true
		}
	}
	return "", false
}

// Authorize implements Guard.
func (g *PolicyGuard) Authorize(_ context.Context, caller string, node core.NodePath, capability core.Capability) error {
	if caller == "" {
		return core.WrapErrorf(core.ErrForbidden, "anonymous caller may not %s %s", capability, node)
	}
	for _, grant := range g.grants {
		if grant.matches(caller, node, capability) {
			return nil
		}
	}
	return core.WrapErrorf(core.ErrForbidden, "%s may not %s %s", caller, capability, node)
}

// Local authorizes any named caller. It serves the CLI, whose operator
// already owns the working copies.
type Local struct{}

// Authorize implements Guard.
func (Local) Authorize(_ context.Context, caller string, node core.NodePath, capability core.Capability) error {
	if caller == "" {
		return core.WrapErrorf(core.ErrForbidden, "anonymous caller may not %s %s", capability, node)
	}
	return nil
}

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the caller stored by WithCaller, or "" when anonymous.
func CallerFrom(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey{}).(string)
	return caller
}
