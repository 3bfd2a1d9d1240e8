package format

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

func init() {
	Register(YAML{})
}

// YAML is a flat mapping of string messages with keys in sorted order.
// Meta entries are YAML-encoded values.
type YAML struct{}

// Name implements Format.
func (YAML) Name() string { return "yaml" }

// Extension implements Format.
func (YAML) Extension() string { return ".yml" }

// Marshal implements Format.
func (YAML) Marshal(catalog map[string]string, meta Meta) ([]byte, error) {
	keys := make([]string, 0, len(catalog)+len(meta))
	for k := range catalog {
		keys = append(keys, k)
	}
	for k := range meta {
		if _, ok := catalog[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: catalog[k]}
		if _, ok := catalog[k]; !ok {
			var doc yaml.Node
			if err := yaml.Unmarshal(meta[k], &doc); err != nil || len(doc.Content) == 0 {
				return nil, fmt.Errorf("encode yaml catalog: invalid meta entry %q", k)
			}
			value = doc.Content[0]
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			value,
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, fmt.Errorf("encode yaml catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal implements Format. Nested values are rejected.
func (YAML) Unmarshal(data []byte) (map[string]string, Meta, error) {
	data = stripBOM(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]string{}, nil, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("invalid yaml catalog: %w", err)
	}
	if len(doc.Content) == 0 {
		return map[string]string{}, nil, nil
	}
	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("invalid yaml catalog: top level must be a mapping")
	}

	out := make(map[string]string, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, nil, fmt.Errorf("invalid yaml catalog: key %q must map to a scalar", k.Value)
		}
		out[k.Value] = v.Value
	}
	return out, nil, nil
}
