package board

import (
	"strconv"
	"strings"

	"github.com/starford/ganban/internal/gitrepo"
	"github.com/starford/ganban/internal/node"
)

// ConfigSection is the git config section holding board settings.
const ConfigSection = "ganban"

// Merge strategies for conflicting edits.
const (
	MergeAbort  = "abort"
	MergeNewest = "newest"
)

// DefaultSyncInterval is the sync period in seconds when none is configured.
const DefaultSyncInterval = 30

// configDefaults types the keys of the ganban section. Keys use their
// in-memory names.
var configDefaults = map[string]any{
	"sync_interval":  DefaultSyncInterval,
	"sync_local":     true,
	"sync_remote":    true,
	"merge_strategy": MergeAbort,
}

// GitConfig converts git config entries into a node. The ganban section is
// typed and defaulted; every other section is a flat string map. Keys with a
// subsection are skipped.
func GitConfig(entries []gitrepo.ConfigEntry) *node.Node {
	sections := make(map[string]map[string]any)
	ganban := make(map[string]any, len(configDefaults))
	for k, v := range configDefaults {
		ganban[k] = v
	}
	sections[ConfigSection] = ganban

	for _, e := range entries {
		section, key, ok := strings.Cut(e.Key, ".")
		if !ok || strings.Contains(key, ".") {
			continue
		}
		if section == ConfigSection {
			name := strings.ReplaceAll(key, "-", "_")
			ganban[name] = typedValue(configDefaults[name], e.Value)
			continue
		}
		if sections[section] == nil {
			sections[section] = make(map[string]any)
		}
		sections[section][key] = e.Value
	}

	out := make(map[string]any, len(sections))
	for name, values := range sections {
		out[name] = values
	}
	return node.FromMap(out)
}

// typedValue coerces raw to the type of def. Unparseable values fall back to
// def; keys without a default stay strings.
func typedValue(def any, raw string) any {
	switch d := def.(type) {
	case int:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return d
		}
		return n
	case bool:
		b, ok := parseGitBool(raw)
		if !ok {
			return d
		}
		return b
	}
	return raw
}

func parseGitBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "true", "yes", "on", "1":
		return true, true
	case "false", "no", "off", "0":
		return false, true
	}
	return false, false
}

// SetGitSnapshot records the committer list and repository configuration.
func SetGitSnapshot(b *Board, committers []string, config *node.Node) {
	if committers == nil {
		committers = []string{}
	}
	g := node.New()
	g.Set("committers", committers)
	g.Set("config", config)
	if current := b.Git(); current != nil {
		current.Update(g)
		return
	}
	b.root.Set(KeyGit, g)
}

// Committers returns the snapshot of recent commit authors.
func (b *Board) Committers() []string {
	if g := b.Git(); g != nil {
		return g.Strings("committers")
	}
	return nil
}

func (b *Board) setting(key string) any {
	if g := b.Git(); g != nil {
		if cfg := g.Child("config"); cfg != nil {
			if s := cfg.Child(ConfigSection); s != nil && s.Has(key) {
				return s.Get(key)
			}
		}
	}
	return configDefaults[key]
}

// SyncInterval returns the configured seconds between sync cycles.
func (b *Board) SyncInterval() int {
	if n, ok := b.setting("sync_interval").(int); ok && n > 0 {
		return n
	}
	return DefaultSyncInterval
}

// SyncLocal reports whether live sync merges the local branch.
func (b *Board) SyncLocal() bool {
	v, _ := b.setting("sync_local").(bool)
	return v
}

// SyncRemote reports whether live sync talks to remotes.
func (b *Board) SyncRemote() bool {
	v, _ := b.setting("sync_remote").(bool)
	return v
}

// MergeStrategy returns how conflicting edits are handled.
func (b *Board) MergeStrategy() string {
	if s, ok := b.setting("merge_strategy").(string); ok && s == MergeNewest {
		return MergeNewest
	}
	return MergeAbort
}
