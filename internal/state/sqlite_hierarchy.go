package state

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// SaveProject inserts or updates a project.
func (s *SQLiteStore) SaveProject(p *core.ProjectRecord) error {
	if err := s.opened(); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO projects (slug, name, position, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			position = excluded.position,
			updated_at = excluded.updated_at`,
		p.Slug, p.Name, p.Position, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save project %s: %w", p.Slug, err)
	}
	return nil
}

// SaveComponent inserts or updates a component. Its project must exist.
func (s *SQLiteStore) SaveComponent(c *core.ComponentRecord) error {
	if err := s.opened(); err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO components (project, slug, name, repo, branch, file_mask, format, enabled, position, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (project, slug) DO UPDATE SET
			name = excluded.name,
			repo = excluded.repo,
			branch = excluded.branch,
			file_mask = excluded.file_mask,
			format = excluded.format,
			enabled = excluded.enabled,
			position = excluded.position,
			updated_at = excluded.updated_at`,
		c.Project, c.Slug, c.Name, c.Repo, c.Branch, c.FileMask, c.Format,
		boolToInt(c.Enabled), c.Position, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save component %s/%s: %w", c.Project, c.Slug, err)
	}
	return nil
}

// SaveTranslation inserts or updates a translation. Its component must exist.
func (s *SQLiteStore) SaveTranslation(t *core.TranslationRecord) error {
	if err := s.opened(); err != nil {
		return err
	}
	t.UpdatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO translations (project, component, language, path, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (project, component, language) DO UPDATE SET
			path = excluded.path,
			updated_at = excluded.updated_at`,
		t.Project, t.Component, t.Language, t.Path, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save translation %s/%s/%s: %w", t.Project, t.Component, t.Language, err)
	}
	return nil
}

// ListProjects returns every project in display order.
func (s *SQLiteStore) ListProjects() ([]*core.ProjectRecord, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT slug, name, position, updated_at FROM projects ORDER BY position, slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.ProjectRecord
	for rows.Next() {
		p := &core.ProjectRecord{}
		if err := rows.Scan(&p.Slug, &p.Name, &p.Position, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListComponents returns the components of a project in display order.
func (s *SQLiteStore) ListComponents(project string) ([]*core.ComponentRecord, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT project, slug, name, repo, branch, file_mask, format, enabled, position, updated_at
		FROM components
		WHERE project = ?
		ORDER BY position, slug`, project)
	if err != nil {
		return nil, fmt.Errorf("failed to list components of %s: %w", project, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.ComponentRecord
	for rows.Next() {
		c := &core.ComponentRecord{}
		var enabled int
		if err := rows.Scan(&c.Project, &c.Slug, &c.Name, &c.Repo, &c.Branch, &c.FileMask,
			&c.Format, &enabled, &c.Position, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan component: %w", err)
		}
		c.Enabled = enabled != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListTranslations returns the translations of a component ordered by language.
func (s *SQLiteStore) ListTranslations(project, component string) ([]*core.TranslationRecord, error) {
	if err := s.opened(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT project, component, language, path, updated_at
		FROM translations
		WHERE project = ? AND component = ?
		ORDER BY language`, project, component)
	if err != nil {
		return nil, fmt.Errorf("failed to list translations of %s/%s: %w", project, component, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.TranslationRecord
	for rows.Next() {
		t := &core.TranslationRecord{}
		if err := rows.Scan(&t.Project, &t.Component, &t.Language, &t.Path, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan translation: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PruneProjects deletes every project whose slug is not in keep, together
// with its components and translations.
func (s *SQLiteStore) PruneProjects(keep []string) (int64, error) {
	if err := s.opened(); err != nil {
		return 0, err
	}

	existing, err := s.ListProjects()
	if err != nil {
		return 0, err
	}
	wanted := make(map[string]struct{}, len(keep))
	for _, slug := range keep {
		wanted[slug] = struct{}{}
	}

	var removed int64
	for _, p := range existing {
		if _, ok := wanted[p.Slug]; ok {
			continue
		}
		res, err := s.db.Exec(`DELETE FROM projects WHERE slug = ?`, p.Slug)
		if err != nil {
			return removed, fmt.Errorf("failed to delete project %s: %w", p.Slug, err)
		}
		n, _ := res.RowsAffected()
		removed += n
		s.logger.Debug("pruned project", slog.String("project", p.Slug))
	}
	return removed, nil
}
