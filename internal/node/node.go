// Package node implements the reactive object tree that a loaded board lives in.
//
// Two container kinds exist: Node, an ordered string-keyed record, and ListNode,
// an ordered string-keyed collection. Every real change fires the subscriptions
// registered for the changed key and then bubbles up the parent chain: each
// ancestor fires the subscriptions registered for the key its child is attached
// under, receiving the original source, key, old and new values.
//
// The tree is single-threaded. Callbacks run inline and may mutate the tree
// again; the subscriber list is snapshotted before every dispatch.
package node

import (
	"bytes"
	"encoding/json"
	"reflect"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Wildcard is the key used for bulk reorder events on a ListNode.
const Wildcard = "*"

// Callback receives the container that changed, the changed key, and the old
// and new values. A nil new value means the key was removed.
type Callback func(src Container, key string, old, new any)

// Container is implemented by *Node and *ListNode.
type Container interface {
	Get(key string) any
	Set(key string, value any)
	Keys() []string
	Len() int
	Watch(key string, cb Callback) (unwatch func())
	Parent() Container
	Key() string
	Path() string
	Version() int

	base() *core
}

type subscription struct {
	id uint64
	cb Callback
}

// core holds what both container kinds share: the parent back-reference, the
// attachment key, the version counter, and subscriptions.
type core struct {
	parent   Container
	key      string
	version  int
	nextID   uint64
	watchers map[string][]subscription
}

func (c *core) base() *core { return c }

// Parent returns the container this one is attached to, or nil for a root.
func (c *core) Parent() Container { return c.parent }

// Key returns the key this container is attached under.
func (c *core) Key() string { return c.key }

// Version returns the number of real changes applied to this container.
func (c *core) Version() int { return c.version }

// Watch registers cb for changes to key. For a child container key, cb also
// fires for every change anywhere beneath that child.
func (c *core) Watch(key string, cb Callback) func() {
	if c.watchers == nil {
		c.watchers = make(map[string][]subscription)
	}
	c.nextID++
	id := c.nextID
	c.watchers[key] = append(c.watchers[key], subscription{id: id, cb: cb})
	return func() {
		subs := c.watchers[key]
		for i, s := range subs {
			if s.id == id {
				c.watchers[key] = slices.Delete(slices.Clone(subs), i, i+1)
				return
			}
		}
	}
}

func (c *core) fire(src Container, watchKey, key string, old, new any) {
	subs := c.watchers[watchKey]
	if len(subs) == 0 {
		return
	}
	for _, s := range slices.Clone(subs) {
		s.cb(src, key, old, new)
	}
}

// emit fires local subscriptions for key and then bubbles up the parent chain.
func emit(src Container, key string, old, new any) {
	src.base().fire(src, key, key, old, new)
	child := src
	for parent := child.Parent(); parent != nil; parent = child.Parent() {
		parent.base().fire(src, child.Key(), key, old, new)
		child = parent
	}
}

func pathOf(c Container) string {
	var parts []string
	for cur := c; cur != nil && cur.Key() != ""; cur = cur.Parent() {
		parts = append(parts, cur.Key())
	}
	slices.Reverse(parts)
	return strings.Join(parts, ".")
}

// normalize turns a typed nil container into an untyped nil so it deletes.
func normalize(value any) any {
	switch v := value.(type) {
	case *Node:
		if v == nil {
			return nil
		}
	case *ListNode:
		if v == nil {
			return nil
		}
	}
	return value
}

// wrap promotes plain maps to child Nodes, normalizes string slices, and
// re-parents containers being attached.
func wrap(value any, parent Container, key string) any {
	switch v := value.(type) {
	case map[string]any:
		n := FromMap(v)
		n.parent, n.key = parent, key
		return n
	case *Node:
		v.parent, v.key = parent, key
	case *ListNode:
		v.parent, v.key = parent, key
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	}
	return value
}

// detach clears the back-reference of a container removed from parent, unless
// it has since been attached elsewhere.
func detach(value any, parent Container) {
	if c, ok := value.(Container); ok && c.Parent() == parent {
		b := c.base()
		b.parent, b.key = nil, ""
	}
}

// Equal reports value equality as used for change detection: containers by
// identity, sequences element-wise, everything else deeply.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case *Node:
		y, ok := b.(*Node)
		return ok && x == y
	case *ListNode:
		y, ok := b.(*ListNode)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// Node is an ordered, string-keyed reactive record.
type Node struct {
	core
	keys   []string
	values map[string]any
}

var _ Container = (*Node)(nil)

// New returns an empty detached Node.
func New() *Node {
	return &Node{values: make(map[string]any)}
}

// FromMap builds a Node from m with keys in sorted order. Nested maps become
// child Nodes.
func FromMap(m map[string]any) *Node {
	n := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.Set(k, m[k])
	}
	return n
}

// Get returns the value stored under key, or nil.
func (n *Node) Get(key string) any { return n.values[key] }

// Has reports whether key is present.
func (n *Node) Has(key string) bool {
	_, ok := n.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (n *Node) Keys() []string { return slices.Clone(n.keys) }

// Len returns the number of keys.
func (n *Node) Len() int { return len(n.keys) }

// Path returns the dotted path from the root to this node.
func (n *Node) Path() string { return pathOf(n) }

// Set assigns value to key. A nil value deletes the key. Setting a value equal
// to the current one is a no-op.
func (n *Node) Set(key string, value any) {
	value = normalize(value)
	old, existed := n.values[key]
	if value == nil {
		if !existed {
			return
		}
		delete(n.values, key)
		n.keys = slices.DeleteFunc(n.keys, func(k string) bool { return k == key })
		detach(old, n)
	} else {
		value = wrap(value, n, key)
		if !existed {
			n.keys = append(n.keys, key)
		}
		n.values[key] = value
		if existed && old != nil && !Equal(old, value) {
			detach(old, n)
		}
	}
	if Equal(old, value) {
		return
	}
	n.version++
	emit(n, key, old, value)
}

// Delete removes key.
func (n *Node) Delete(key string) { n.Set(key, nil) }

// Update reconciles n in place to match other without replacing unchanged
// child containers, so subscriptions on them survive. A nil other empties n.
func (n *Node) Update(other *Node) {
	if other == nil {
		other = New()
	}
	for _, key := range n.Keys() {
		if !other.Has(key) {
			n.Set(key, nil)
		}
	}
	for _, key := range other.Keys() {
		oldValue, newValue := n.values[key], other.values[key]
		if !reconcile(oldValue, newValue) {
			n.Set(key, newValue)
		}
	}
}

// RenameKey renames oldKey to newKey keeping its position. The new key is made
// unique among the siblings.
func (n *Node) RenameKey(oldKey, newKey string) {
	value, ok := n.values[oldKey]
	if !ok {
		return
	}
	siblings := make(map[string]bool, len(n.keys))
	for _, k := range n.keys {
		if k != oldKey {
			siblings[k] = true
		}
	}
	newKey = uniqueKey(newKey, siblings)
	for i, k := range n.keys {
		if k == oldKey {
			n.keys[i] = newKey
		}
	}
	delete(n.values, oldKey)
	n.values[newKey] = value
	if c, ok := value.(Container); ok {
		c.base().key = newKey
	}
	n.version++
	emit(n, oldKey, value, nil)
	emit(n, newKey, nil, value)
}

// String returns the string stored under key, or "".
func (n *Node) String(key string) string {
	s, _ := n.values[key].(string)
	return s
}

// Bool returns the bool stored under key, or false.
func (n *Node) Bool(key string) bool {
	b, _ := n.values[key].(bool)
	return b
}

// Int returns the integer stored under key, or 0.
func (n *Node) Int(key string) int {
	switch v := n.values[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Strings returns the sequence stored under key as strings. Non-string items
// are skipped; a scalar string is returned as a one-item slice.
func (n *Node) Strings(key string) []string {
	return toStrings(n.values[key])
}

// Child returns the child Node stored under key, or nil.
func (n *Node) Child(key string) *Node {
	c, _ := n.values[key].(*Node)
	return c
}

// List returns the child ListNode stored under key, or nil.
func (n *Node) List(key string) *ListNode {
	c, _ := n.values[key].(*ListNode)
	return c
}

// MarshalJSON encodes the node as a JSON object with keys in order.
func (n *Node) MarshalJSON() ([]byte, error) {
	return marshalOrdered(n.keys, n.values)
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case []string:
		return slices.Clone(s)
	case string:
		return []string{s}
	}
	return nil
}

// reconcile recursively updates old from new when both are containers of the
// same kind, or reports true when they are already equal. It returns false
// when the caller has to replace the value.
func reconcile(oldValue, newValue any) bool {
	newValue = normalize(newValue)
	switch o := oldValue.(type) {
	case *Node:
		if nv, ok := newValue.(*Node); ok {
			o.Update(nv)
			return true
		}
	case *ListNode:
		if nv, ok := newValue.(*ListNode); ok {
			o.Update(nv)
			return true
		}
	}
	return oldValue != nil && Equal(oldValue, newValue)
}

func uniqueKey(desired string, existing map[string]bool) string {
	if !existing[desired] {
		return desired
	}
	for i := 1; ; i++ {
		candidate := desired + " (" + strconv.Itoa(i) + ")"
		if !existing[candidate] {
			return candidate
		}
	}
}

func marshalOrdered(keys []string, values map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ToMap returns a plain copy of n with child containers converted recursively.
// Key order is lost.
func (n *Node) ToMap() map[string]any {
	return toMap(n.keys, n.values)
}

func toMap(keys []string, values map[string]any) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		switch v := values[k].(type) {
		case *Node:
			out[k] = v.ToMap()
		case *ListNode:
			out[k] = v.ToMap()
		case []any:
			out[k] = slices.Clone(v)
		default:
			out[k] = v
		}
	}
	return out
}
