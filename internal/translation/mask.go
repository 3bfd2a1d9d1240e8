package translation

import (
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Mask locates translation files inside a working copy. Its single "*"
// stands for the language code, as in "locale/*.json".
type Mask string

// ParseMask validates a file mask.
func ParseMask(s string) (Mask, error) {
	s = strings.TrimPrefix(path.Clean(s), "/")
	if strings.Count(s, "*") != 1 {
		return "", fmt.Errorf("file mask %q must contain exactly one '*'", s)
	}
	if strings.ContainsAny(s, "?[") {
		return "", fmt.Errorf("file mask %q may only use '*'", s)
	}
	if strings.HasPrefix(s, "../") || s == ".." {
		return "", fmt.Errorf("file mask %q escapes the working copy", s)
	}
	return Mask(s), nil
}

// Path returns the file path for a language.
func (m Mask) Path(code string) string {
	return strings.Replace(string(m), "*", code, 1)
}

// Language extracts the language code from a path matching the mask.
func (m Mask) Language(p string) (string, bool) {
	prefix, suffix, _ := strings.Cut(string(m), "*")
	if !strings.HasPrefix(p, prefix) || !strings.HasSuffix(p, suffix) {
		return "", false
	}
	code := p[len(prefix) : len(p)-len(suffix)]
	if code == "" || strings.Contains(code, "/") {
		return "", false
	}
	return code, true
}

// Discover lists the languages whose files exist in fs, sorted. Matches that
// are not valid language codes (a template file, for example) are skipped.
func (m Mask) Discover(fs billy.Filesystem) ([]string, error) {
	matches, err := util.Glob(fs, string(m))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", m, err)
	}

	var codes []string
	for _, match := range matches {
		code, ok := m.Language(path.Clean(strings.ReplaceAll(match, "\\", "/")))
		if !ok {
			continue
		}
		if _, err := ParseLanguage(code); err != nil {
			continue
		}
		codes = append(codes, code)
	}
	return codes, nil
}
