// Package format serializes translation catalogs to and from files.
//
// A catalog is a flat key -> message map. Every Format must produce
// byte-identical output for equal catalogs so an unchanged catalog never
// rewrites its file.
package format

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Format converts a catalog to file bytes and back.
type Format interface {
	// Name is the identifier used in configuration.
	Name() string

	// Extension is the file extension including the dot.
	Extension() string

	// Marshal writes catalog and meta. A message key shadows a meta key
	// of the same name.
	Marshal(catalog map[string]string, meta Meta) ([]byte, error)

	// Unmarshal splits a file into its messages and its meta entries.
	Unmarshal(data []byte) (map[string]string, Meta, error)
}

// Meta holds file entries that are not messages, such as a JSON "$schema",
// each in the format's own encoding. Formats write them back unchanged.
type Meta map[string][]byte

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Format)
)

// Register adds a format to the registry.
// Called by format implementations in their init() functions.
func Register(f Format) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(f.Name())] = f
}

// Get returns a registered format by name.
func Get(name string) (Format, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

// Lookup is Get with an error listing the known formats.
func Lookup(name string) (Format, error) {
	f, ok := Get(name)
	if !ok {
		return nil, &UnknownFormatError{Name: name, Available: List()}
	}
	return f, nil
}

// List returns all registered format names (sorted).
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownFormatError is returned when an unknown format is requested.
type UnknownFormatError struct {
	Name      string
	Available []string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("unknown translation format %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(b []byte) []byte {
	return bytes.TrimPrefix(b, utf8BOM)
}
