package board

import (
	"fmt"
	"sort"

	"github.com/starford/ganban/internal/node"
	"github.com/starford/ganban/internal/parser"
)

// DocumentNodes converts a parsed document into a sections list and a meta
// node. An untitled first section takes fallbackTitle.
func DocumentNodes(doc *parser.Document, fallbackTitle string) (*node.ListNode, *node.Node) {
	sections := node.NewList()
	for i, s := range doc.Sections {
		title := s.Title
		if i == 0 && title == "" {
			title = fallbackTitle
		}
		sections.Add(title, s.Body)
	}
	return sections, MetaNode(doc.Meta)
}

// NodeDocument is the inverse of DocumentNodes.
func NodeDocument(sections *node.ListNode, meta *node.Node) *parser.Document {
	doc := &parser.Document{}
	if sections != nil {
		for _, key := range sections.Keys() {
			body, _ := sections.Get(key).(string)
			doc.Sections = append(doc.Sections, parser.Section{Title: key, Body: body})
		}
	}
	if meta != nil {
		doc.Meta = NodeMeta(meta)
	}
	return doc
}

// MetaNode converts front matter into a node, keeping key order.
func MetaNode(meta parser.Meta) *node.Node {
	n := node.New()
	for _, f := range meta {
		n.Set(f.Key, metaValue(f.Value))
	}
	return n
}

func metaValue(v any) any {
	switch x := v.(type) {
	case parser.Meta:
		return MetaNode(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			if m, ok := item.(parser.Meta); ok {
				out[i] = metaMap(m)
				continue
			}
			out[i] = item
		}
		return out
	}
	return v
}

func metaMap(m parser.Meta) map[string]any {
	out := make(map[string]any, len(m))
	for _, f := range m {
		switch x := f.Value.(type) {
		case parser.Meta:
			out[f.Key] = metaMap(x)
		default:
			out[f.Key] = x
		}
	}
	return out
}

// NodeMeta converts a node back into front matter, keeping key order.
func NodeMeta(n *node.Node) parser.Meta {
	meta := make(parser.Meta, 0, n.Len())
	for _, key := range n.Keys() {
		meta = append(meta, parser.Field{Key: key, Value: fieldValue(n.Get(key))})
	}
	return meta
}

func fieldValue(v any) any {
	switch x := v.(type) {
	case *node.Node:
		return NodeMeta(x)
	case *node.ListNode:
		return mapMeta(x.ToMap())
	case map[string]any:
		return mapMeta(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = fieldValue(item)
		}
		return out
	}
	return v
}

func mapMeta(m map[string]any) parser.Meta {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	meta := make(parser.Meta, 0, len(keys))
	for _, k := range keys {
		meta = append(meta, parser.Field{Key: k, Value: fieldValue(m[k])})
	}
	return meta
}

// scalarStrings renders a scalar or a sequence of scalars as strings.
func scalarStrings(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case []string:
		return x
	}
	return []string{fmt.Sprint(v)}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	}
	return true
}
