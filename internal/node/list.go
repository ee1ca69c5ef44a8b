package node

import "slices"

// ListNode is an ordered, string-keyed reactive collection. Insertion order is
// the canonical traversal order.
type ListNode struct {
	core
	keys  []string
	items map[string]any
}

var _ Container = (*ListNode)(nil)

// NewList returns an empty detached ListNode.
func NewList() *ListNode {
	return &ListNode{items: make(map[string]any)}
}

// Get returns the item stored under key, or nil.
func (l *ListNode) Get(key string) any { return l.items[key] }

// Has reports whether key is present.
func (l *ListNode) Has(key string) bool {
	_, ok := l.items[key]
	return ok
}

// Keys returns the keys in order.
func (l *ListNode) Keys() []string { return slices.Clone(l.keys) }

// Values returns the items in order.
func (l *ListNode) Values() []any {
	out := make([]any, len(l.keys))
	for i, k := range l.keys {
		out[i] = l.items[k]
	}
	return out
}

// Len returns the number of items.
func (l *ListNode) Len() int { return len(l.keys) }

// Index returns the position of key, or -1.
func (l *ListNode) Index(key string) int { return slices.Index(l.keys, key) }

// First returns the first key and item.
func (l *ListNode) First() (string, any, bool) {
	if len(l.keys) == 0 {
		return "", nil, false
	}
	return l.keys[0], l.items[l.keys[0]], true
}

// Node returns the item under key when it is a *Node.
func (l *ListNode) Node(key string) *Node {
	n, _ := l.items[key].(*Node)
	return n
}

// Path returns the dotted path from the root to this list.
func (l *ListNode) Path() string { return pathOf(l) }

// Set assigns value to key. An existing key is replaced in place, a new key is
// appended, and a nil value removes the key.
func (l *ListNode) Set(key string, value any) {
	value = normalize(value)
	old, existed := l.items[key]
	if value == nil {
		if !existed {
			return
		}
		delete(l.items, key)
		l.keys = slices.DeleteFunc(l.keys, func(k string) bool { return k == key })
		detach(old, l)
		l.version++
		emit(l, key, old, nil)
		return
	}
	value = wrap(value, l, key)
	if !existed {
		l.keys = append(l.keys, key)
	}
	l.items[key] = value
	if Equal(old, value) {
		return
	}
	if existed {
		detach(old, l)
	}
	l.version++
	emit(l, key, old, value)
}

// Delete removes key.
func (l *ListNode) Delete(key string) { l.Set(key, nil) }

// Add stores value under key, suffixing " (1)", " (2)", ... when the key is
// already taken. It returns the key actually used.
func (l *ListNode) Add(key string, value any) string {
	existing := make(map[string]bool, len(l.keys))
	for _, k := range l.keys {
		existing[k] = true
	}
	key = uniqueKey(key, existing)
	l.Set(key, value)
	return key
}

// Update reconciles l in place to match other. Keys missing from other are
// removed, matching child containers are updated recursively, equal values are
// left alone, and everything else is replaced. If the resulting order differs
// from other's, a single Wildcard event carries the old and new key orders.
// A nil other empties l.
func (l *ListNode) Update(other *ListNode) {
	if other == nil {
		other = NewList()
	}
	for _, key := range l.Keys() {
		if !other.Has(key) {
			l.Set(key, nil)
		}
	}
	for _, key := range other.Keys() {
		oldValue, newValue := l.items[key], other.items[key]
		if !reconcile(oldValue, newValue) {
			l.Set(key, newValue)
		}
	}
	oldKeys := l.Keys()
	newKeys := other.Keys()
	if slices.Equal(oldKeys, newKeys) {
		return
	}
	l.keys = newKeys
	l.version++
	emit(l, Wildcard, oldKeys, newKeys)
}

// RenameFirstKey renames the first key to title, made unique among the other
// keys, by rebuilding the list.
func (l *ListNode) RenameFirstKey(title string) {
	if len(l.keys) == 0 {
		return
	}
	keys := l.Keys()
	values := l.Values()
	others := make(map[string]bool, len(keys))
	for _, k := range keys[1:] {
		others[k] = true
	}
	title = uniqueKey(title, others)
	if title == keys[0] {
		return
	}
	for _, k := range keys {
		l.Set(k, nil)
	}
	keys[0] = title
	for i, k := range keys {
		l.Set(k, values[i])
	}
}

// MarshalJSON encodes the list as a JSON object with keys in order.
func (l *ListNode) MarshalJSON() ([]byte, error) {
	return marshalOrdered(l.keys, l.items)
}

// ToMap returns a plain copy of l with child containers converted recursively.
func (l *ListNode) ToMap() map[string]any {
	return toMap(l.keys, l.items)
}
