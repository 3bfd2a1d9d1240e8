package config

import (
	"errors"
	"fmt"
	"path"

	"github.com/leapstack-labs/l10nsync/internal/translation"
	"github.com/leapstack-labs/l10nsync/internal/translation/format"
	"github.com/leapstack-labs/l10nsync/internal/vcs"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// Validate checks the hierarchy and reports every problem found.
func (h *HierarchyConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if h.Sync.Workers <= 0 {
		add("sync.workers must be positive, got %d", h.Sync.Workers)
	}
	if _, err := vcs.ParseLockPolicy(h.Sync.LockPolicy); err != nil {
		add("sync.lock_policy: %v", err)
	}
	if h.Sync.NetworkTimeout < 0 {
		add("sync.network_timeout must not be negative")
	}

	projects := map[string]bool{}
	for i, p := range h.Projects {
		where := fmt.Sprintf("projects[%d]", i)
		if err := validateSlug(p.Slug); err != nil {
			add("%s.slug: %v", where, err)
		} else if projects[p.Slug] {
			add("%s.slug: duplicate project %q", where, p.Slug)
		}
		projects[p.Slug] = true

		components := map[string]bool{}
		for j, c := range p.Components {
			where := fmt.Sprintf("projects[%d].components[%d]", i, j)
			if err := validateSlug(c.Slug); err != nil {
				add("%s.slug: %v", where, err)
			} else if components[c.Slug] {
				add("%s.slug: duplicate component %q in project %q", where, c.Slug, p.Slug)
			}
			components[c.Slug] = true

			if c.Repo == "" {
				add("%s.repo is required", where)
			}
			if c.Branch == "" {
				add("%s.branch is required", where)
			}
			if _, err := translation.ParseMask(c.FileMask); err != nil {
				add("%s.file_mask: %v", where, err)
			}
			if _, err := format.Lookup(c.Format); err != nil {
				add("%s.format: %v", where, err)
			}
			for _, code := range c.Languages {
				if _, err := translation.ParseLanguage(code); err != nil {
					add("%s.languages: %v", where, err)
				}
			}
		}
	}

	return errors.Join(errs...)
}

// Validate checks grants and tokens.
func (a *AccessConfig) Validate() error {
	var errs []error
	for token, user := range a.Tokens {
		if token == "" || user == "" {
			errs = append(errs, fmt.Errorf("access.tokens: empty token or user"))
		}
	}
	for i, g := range a.Grants {
		if g.User == "" {
			errs = append(errs, fmt.Errorf("access.grants[%d].user is required", i))
		}
		for _, pattern := range g.Projects {
			if _, err := path.Match(pattern, ""); err != nil {
				errs = append(errs, fmt.Errorf("access.grants[%d].projects: bad pattern %q", i, pattern))
			}
		}
		for _, c := range g.Capabilities {
			if c == "*" {
				continue
			}
			if _, err := core.ParseCapability(c); err != nil {
				errs = append(errs, fmt.Errorf("access.grants[%d].capabilities: %w", i, err))
			}
		}
	}
	return errors.Join(errs...)
}

func validateSlug(slug string) error {
	if slug == "" {
		return fmt.Errorf("is required")
	}
	if _, err := core.ParseNodePath(slug); err != nil || path.Base(slug) != slug || slug == "." || slug == ".." {
		return fmt.Errorf("invalid slug %q", slug)
	}
	return nil
}
