package board

import (
	"strconv"
	"strings"

	"github.com/starford/ganban/internal/checksum"
	"github.com/starford/ganban/internal/ids"
	"github.com/starford/ganban/internal/node"
)

// Palette holds the colours labels without an override are drawn from.
var Palette = []string{
	"#800000", "#008000", "#808000", "#000080", "#800080",
	"#008080", "#c0c0c0", "#808080", "#ff0000", "#00ff00",
	"#ffff00", "#0000ff", "#ff00ff", "#00ffff", "#ffffff",
}

// NormalizeLabel is the key a label is indexed under.
func NormalizeLabel(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LabelColor picks a palette colour from the label's checksum.
func LabelColor(name string) string {
	sum := checksum.Sum([]byte(name))
	v, err := strconv.ParseUint(sum[len(sum)-2:], 16, 8)
	if err != nil {
		return Palette[0]
	}
	return Palette[int(v)%len(Palette)]
}

// labelOverrides returns the board's meta.labels node, or nil.
func labelOverrides(b *Board) *node.Node {
	if m := b.Meta(); m != nil {
		return m.Child(MetaLabels)
	}
	return nil
}

func overrideColor(overrides *node.Node, name string) string {
	if overrides == nil {
		return ""
	}
	for _, key := range overrides.Keys() {
		if NormalizeLabel(key) != name {
			continue
		}
		if o := overrides.Child(key); o != nil {
			return o.String("color")
		}
	}
	return ""
}

func (d *derived) rebuildLabels() {
	cardsByLabel := make(map[string][]string)
	for _, c := range d.b.AllCards() {
		seen := make(map[string]bool)
		for _, l := range c.Labels() {
			name := NormalizeLabel(l)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			cardsByLabel[name] = append(cardsByLabel[name], c.ID())
		}
	}
	overrides := labelOverrides(d.b)
	if overrides != nil {
		for _, key := range overrides.Keys() {
			name := NormalizeLabel(key)
			if _, ok := cardsByLabel[name]; !ok && name != "" {
				cardsByLabel[name] = nil
			}
		}
	}

	index := make(map[string]any, len(cardsByLabel))
	for name, cards := range cardsByLabel {
		ids.Sort(cards)
		color := overrideColor(overrides, name)
		if color == "" {
			color = LabelColor(name)
		}
		if cards == nil {
			cards = []string{}
		}
		index[name] = map[string]any{"color": color, "cards": cards}
	}
	fresh := node.FromMap(index)

	if current := d.b.Labels(); current != nil {
		current.Update(fresh)
		return
	}
	d.b.root.Set(KeyLabels, fresh)
}

// LabelCards returns the ids of the cards carrying the label, from the index.
func LabelCards(b *Board, name string) []string {
	labels := b.Labels()
	if labels == nil {
		return nil
	}
	entry := labels.Child(NormalizeLabel(name))
	if entry == nil {
		return nil
	}
	return entry.Strings("cards")
}

// RenameLabel renames a label on every card and in the board's colour
// overrides, matching names after normalization. It returns the number of
// cards changed.
func RenameLabel(b *Board, oldName, newName string) int {
	from := NormalizeLabel(oldName)
	newName = strings.TrimSpace(newName)
	if from == "" || newName == "" {
		return 0
	}
	changed := 0
	for _, c := range b.AllCards() {
		labels := c.Labels()
		if !containsLabel(labels, from) {
			continue
		}
		var out []string
		for _, l := range labels {
			if NormalizeLabel(l) == from {
				l = newName
			}
			if !containsLabel(out, NormalizeLabel(l)) {
				out = append(out, l)
			}
		}
		c.Meta().Set(MetaLabels, out)
		changed++
	}

	if overrides := labelOverrides(b); overrides != nil {
		to := NormalizeLabel(newName)
		var src, dst string
		for _, key := range overrides.Keys() {
			switch NormalizeLabel(key) {
			case from:
				src = key
			case to:
				dst = key
			}
		}
		switch {
		case src == "":
		case dst != "" && dst != src:
			overrides.Delete(src)
		default:
			overrides.RenameKey(src, newName)
		}
	}
	return changed
}

// DeleteLabel removes a label from every card and drops its colour override.
// It returns the number of cards changed.
func DeleteLabel(b *Board, name string) int {
	target := NormalizeLabel(name)
	changed := 0
	for _, c := range b.AllCards() {
		labels := c.Labels()
		if !containsLabel(labels, target) {
			continue
		}
		var out []string
		for _, l := range labels {
			if NormalizeLabel(l) != target {
				out = append(out, l)
			}
		}
		if len(out) == 0 {
			c.Meta().Delete(MetaLabels)
		} else {
			c.Meta().Set(MetaLabels, out)
		}
		changed++
	}

	if overrides := labelOverrides(b); overrides != nil {
		for _, key := range overrides.Keys() {
			if NormalizeLabel(key) == target {
				overrides.Delete(key)
			}
		}
		if overrides.Len() == 0 {
			b.Meta().Delete(MetaLabels)
		}
	}
	return changed
}

func containsLabel(labels []string, normalized string) bool {
	for _, l := range labels {
		if NormalizeLabel(l) == normalized {
			return true
		}
	}
	return false
}
