package format

import (
	"bytes"
	"encoding/json"
	"fmt"
)

func init() {
	Register(JSON{})
}

// JSON is a flat object of string messages, keys sorted, two-space indent.
// Keys starting with "$" (for example "$schema") are metadata: they are kept
// as Meta with any value and never treated as messages.
type JSON struct{}

// Name implements Format.
func (JSON) Name() string { return "json" }

// Extension implements Format.
func (JSON) Extension() string { return ".json" }

// Marshal implements Format.
func (JSON) Marshal(catalog map[string]string, meta Meta) ([]byte, error) {
	doc := make(map[string]any, len(catalog)+len(meta))
	for k, raw := range meta {
		doc[k] = json.RawMessage(raw)
	}
	for k, v := range catalog {
		doc[k] = v
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode json catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal implements Format. Non-string message values are rejected.
func (JSON) Unmarshal(data []byte) (map[string]string, Meta, error) {
	data = bytes.TrimSpace(stripBOM(data))
	if len(data) == 0 {
		return map[string]string{}, nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("invalid json catalog: %w", err)
	}
	out := make(map[string]string, len(raw))
	var meta Meta
	for k, v := range raw {
		if len(k) > 0 && k[0] == '$' {
			if meta == nil {
				meta = Meta{}
			}
			meta[k] = []byte(v)
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, nil, fmt.Errorf("invalid json catalog: key %q must be a string", k)
		}
		out[k] = s
	}
	return out, meta, nil
}
