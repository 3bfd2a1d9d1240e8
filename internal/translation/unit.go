// Package translation holds the per-language catalogs of a component.
//
// A Unit keeps the catalog last read from the working copy (its base) and
// the edits recorded since the last successful commit. Materialize writes
// base plus edits to the working copy; MarkCommitted folds the written
// edits into the base once the owning component has committed them.
package translation

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/l10nsync/internal/translation/format"
	"github.com/leapstack-labs/l10nsync/pkg/core"
)

// ErrEmptyKey is returned by RecordEdit for an empty message key.
var ErrEmptyKey = errors.New("message key is required")

type edit struct {
	value  string
	author string
	seq    uint64
}

// Snapshot describes one Materialize call.
type Snapshot struct {
	Language string
	Path     string

	// Seq is the highest edit sequence included in the write.
	Seq uint64

	// Written is false when the file already held the serialized bytes.
	Written bool

	// Authors of the included edits, sorted and de-duplicated.
	Authors []string

	// Keys is the number of edited keys included.
	Keys int
}

// Unit is one language file of a component.
type Unit struct {
	fs     billy.Filesystem
	tag    language.Tag
	code   string
	path   string
	format format.Format

	mu    sync.Mutex
	base  map[string]string
	meta  format.Meta
	edits map[string]edit
	seq   uint64
}

// ParseLanguage validates a BCP 47 language code and returns its canonical form.
func ParseLanguage(code string) (language.Tag, error) {
	tag, err := language.Parse(code)
	if err != nil {
		return language.Und, fmt.Errorf("invalid language code %q: %w", code, err)
	}
	return tag, nil
}

// NewUnit creates a unit for code whose file lives at filePath inside fs.
// The file is not read until Reload.
func NewUnit(fs billy.Filesystem, code, filePath string, f format.Format) (*Unit, error) {
	tag, err := ParseLanguage(code)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("translation %s: format is required", code)
	}
	return &Unit{
		fs:     fs,
		tag:    tag,
		code:   code,
		path:   path.Clean(filePath),
		format: f,
		base:   map[string]string{},
		edits:  map[string]edit{},
	}, nil
}

// Language returns the language code as configured.
func (u *Unit) Language() string { return u.code }

// Tag returns the parsed language tag.
func (u *Unit) Tag() language.Tag { return u.tag }

// Path returns the file path relative to the working copy root.
func (u *Unit) Path() string { return u.path }

// Format returns the unit's file format.
func (u *Unit) Format() format.Format { return u.format }

// HasPendingEdits reports whether an edit was recorded since the last
// successful commit.
func (u *Unit) HasPendingEdits() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.edits) > 0
}

// PendingKeys returns the keys with pending edits, sorted.
func (u *Unit) PendingKeys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	keys := make([]string, 0, len(u.edits))
	for k := range u.edits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecordEdit sets key to value. Recording the value already on disk is
// still an edit until committed.
func (u *Unit) RecordEdit(key, value, author string) error {
	if key == "" {
		return ErrEmptyKey
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.seq++
	u.edits[key] = edit{value: value, author: author, seq: u.seq}
	return nil
}

// Message returns the current value of key, edits first.
func (u *Unit) Message(key string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if e, ok := u.edits[key]; ok {
		return e.value, true
	}
	v, ok := u.base[key]
	return v, ok
}

// Catalog returns base plus edits.
func (u *Unit) Catalog() map[string]string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.catalogLocked()
}

func (u *Unit) catalogLocked() map[string]string {
	out := make(map[string]string, len(u.base)+len(u.edits))
	for k, v := range u.base {
		out[k] = v
	}
	for k, e := range u.edits {
		out[k] = e.value
	}
	return out
}

// Materialize serializes base plus edits into the unit's file. The file is
// only written when its bytes would change.
func (u *Unit) Materialize() (Snapshot, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	snap := Snapshot{Language: u.code, Path: u.path, Seq: u.seq, Keys: len(u.edits)}
	authors := make(map[string]struct{})
	for _, e := range u.edits {
		if e.author != "" {
			authors[e.author] = struct{}{}
		}
	}
	for a := range authors {
		snap.Authors = append(snap.Authors, a)
	}
	sort.Strings(snap.Authors)

	data, err := u.format.Marshal(u.catalogLocked(), u.meta)
	if err != nil {
		return snap, core.WrapErrorf(core.ErrIO, "serialize %s: %v", u.path, err)
	}

	current, err := util.ReadFile(u.fs, u.path)
	switch {
	case err == nil && bytes.Equal(current, data):
		return snap, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return snap, core.WrapErrorf(core.ErrIO, "read %s: %v", u.path, err)
	}

	if dir := path.Dir(u.path); dir != "." {
		if err := u.fs.MkdirAll(dir, 0o755); err != nil {
			return snap, core.WrapErrorf(core.ErrIO, "create %s: %v", dir, err)
		}
	}
	if err := util.WriteFile(u.fs, u.path, data, 0o644); err != nil {
		return snap, core.WrapErrorf(core.ErrIO, "write %s: %v", u.path, err)
	}
	snap.Written = true
	return snap, nil
}

// MarkCommitted folds the edits included in snap into the base. Edits
// recorded after snap was taken stay pending.
func (u *Unit) MarkCommitted(snap Snapshot) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for k, e := range u.edits {
		if e.seq <= snap.Seq {
			u.base[k] = e.value
			delete(u.edits, k)
		}
	}
}

// Discard drops every pending edit.
func (u *Unit) Discard() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.edits = map[string]edit{}
}

// Reload replaces the base with the file's current content. A missing file
// loads as an empty catalog. Entries the format treats as metadata are kept
// and written back by Materialize. Pending edits are kept.
func (u *Unit) Reload() error {
	data, err := util.ReadFile(u.fs, u.path)
	if errors.Is(err, os.ErrNotExist) {
		data, err = nil, nil
	}
	if err != nil {
		return core.WrapErrorf(core.ErrIO, "read %s: %v", u.path, err)
	}

	catalog, meta, err := u.format.Unmarshal(data)
	if err != nil {
		return core.WrapErrorf(core.ErrIO, "parse %s: %v", u.path, err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.base = catalog
	u.meta = meta
	return nil
}
