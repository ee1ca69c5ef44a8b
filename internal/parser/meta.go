package parser

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const timestampTag = "!!timestamp"

// isTimestamp reports whether s, written as a plain scalar, reads back as a
// YAML timestamp.
func isTimestamp(s string) bool {
	n := yaml.Node{Kind: yaml.ScalarNode, Value: s}
	return n.ShortTag() == timestampTag
}

// decodeMapping converts a YAML mapping node into Meta, keeping key order.
func decodeMapping(n *yaml.Node) (Meta, error) {
	meta := make(Meta, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		v, err := decodeValue(val)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key.Value, err)
		}
		meta = append(meta, Field{Key: key.Value, Value: v})
	}
	return meta, nil
}

func decodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return decodeValue(n.Alias)
	case yaml.MappingNode:
		return decodeMapping(n)
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		// Dates stay in their written form.
		if n.ShortTag() == timestampTag {
			return n.Value, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported yaml node kind %d", n.Kind)
}

func encodeValue(v any) (*yaml.Node, error) {
	switch x := v.(type) {
	case Meta:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, f := range x {
			val, err := encodeValue(f.Value)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", f.Key, err)
			}
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key}
			n.Content = append(n.Content, key, val)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range x {
			child, err := encodeValue(item)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, child)
		}
		return n, nil
	case string:
		if isTimestamp(x) {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: timestampTag, Value: x}, nil
		}
	case []string:
		items := make([]any, len(x))
		for i, s := range x {
			items[i] = s
		}
		return encodeValue(items)
	}
	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return n, nil
}

// compactSequences outdents block sequences nested in a mapping so their "- "
// lines line up with the parent key, the layout most YAML writers produce.
// Each moved block is shifted as a whole, literal scalars included.
func compactSequences(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	var keys []int // key columns of the open sequences, in input coordinates
	var prev string
	literal := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			out = append(out, line)
			continue
		}
		ind := len(line) - len(strings.TrimLeft(line, " "))
		if literal >= 0 && ind > literal {
			out = append(out, line[min(2*len(keys), ind):])
			continue
		}
		literal = -1
		for len(keys) > 0 && ind <= keys[len(keys)-1] {
			keys = keys[:len(keys)-1]
		}
		if strings.HasPrefix(line[ind:], "- ") || line[ind:] == "-" {
			if col, ok := keyColumn(prev); ok && col == ind-2 {
				keys = append(keys, col)
			}
		}
		out = append(out, line[min(2*len(keys), ind):])
		if isBlockScalarHeader(line) {
			literal = ind
		}
		prev = line
	}
	return strings.Join(out, "\n")
}

// keyColumn returns the column of the key on a line of the form "key:",
// possibly inside sequence items ("- key:").
func keyColumn(line string) (int, bool) {
	trimmed := strings.TrimRight(line, " ")
	if !strings.HasSuffix(trimmed, ":") {
		return 0, false
	}
	col := len(line) - len(strings.TrimLeft(line, " "))
	for strings.HasPrefix(line[col:], "- ") {
		col += 2
	}
	return col, true
}

func isBlockScalarHeader(line string) bool {
	trimmed := strings.TrimRight(line, " ")
	for _, h := range []string{"|", "|-", "|+", ">", ">-", ">+"} {
		if strings.HasSuffix(trimmed, " "+h) || trimmed == "- "+h {
			return true
		}
	}
	return false
}
