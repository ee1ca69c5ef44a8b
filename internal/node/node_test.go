package node

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type event struct {
	src      Container
	key      string
	old, new any
}

func record(events *[]event) Callback {
	return func(src Container, key string, old, new any) {
		*events = append(*events, event{src, key, old, new})
	}
}

func TestNode_SetAndGet(t *testing.T) {
	n := New()
	n.Set("name", "Backlog")
	if got := n.String("name"); got != "Backlog" {
		t.Errorf("name = %q, want %q", got, "Backlog")
	}
	if n.Get("missing") != nil {
		t.Error("missing key should be nil")
	}
}

func TestNode_SetNilDeletes(t *testing.T) {
	n := New()
	n.Set("color", "#800000")
	n.Set("color", nil)
	if n.Has("color") {
		t.Error("color should be deleted")
	}
	v := n.Version()
	n.Delete("color")
	if n.Version() != v {
		t.Error("deleting a missing key must not bump the version")
	}
}

func TestNode_SetTypedNilDeletes(t *testing.T) {
	n := New()
	n.Set("meta", map[string]any{"color": "red"})
	n.Set("sections", NewList())

	var events []event
	n.Watch("meta", record(&events))
	n.Watch("sections", record(&events))

	var child *Node
	var list *ListNode
	n.Set("meta", child)
	n.Set("sections", list)
	n.Set("missing", child)

	if n.Has("meta") || n.Has("sections") || n.Has("missing") {
		t.Errorf("keys left after typed nil set: %v", n.Keys())
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
	for _, ev := range events {
		if ev.new != nil {
			t.Errorf("event %q new = %#v, want untyped nil", ev.key, ev.new)
		}
	}
}

func TestListNode_SetTypedNilDeletes(t *testing.T) {
	l := NewList()
	l.Set("a", New())
	l.Set("b", "x")

	var child *Node
	l.Set("a", child)
	l.Set("c", child)

	if diff := cmp.Diff([]string{"b"}, l.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
}

func TestUpdate_TypedNil(t *testing.T) {
	live := New()
	live.Set("meta", map[string]any{"color": "red"})
	live.Set("keep", "same")

	fresh := New()
	fresh.Set("keep", "same")
	fresh.values["meta"] = (*Node)(nil)
	fresh.keys = append(fresh.keys, "meta")

	live.Update(fresh)
	if live.Has("meta") {
		t.Error("meta should be deleted by a typed nil")
	}

	var empty *ListNode
	l := NewList()
	l.Set("a", "x")
	l.Update(empty)
	if l.Len() != 0 {
		t.Errorf("nil update left %v", l.Keys())
	}
}

func TestNode_AutoWrapMap(t *testing.T) {
	n := New()
	n.Set("meta", map[string]any{"color": "#800000"})
	meta := n.Child("meta")
	if meta == nil {
		t.Fatal("map should be promoted to *Node")
	}
	if meta.Parent() != Container(n) || meta.Key() != "meta" {
		t.Errorf("child not attached: parent=%v key=%q", meta.Parent(), meta.Key())
	}
	if meta.Path() != "meta" {
		t.Errorf("path = %q", meta.Path())
	}
}

func TestNode_VersionAndNoOp(t *testing.T) {
	n := New()
	n.Set("a", 1)
	n.Set("a", 2)
	if n.Version() != 2 {
		t.Fatalf("version = %d, want 2", n.Version())
	}

	var events []event
	n.Watch("links", record(&events))
	n.Set("links", []string{"1", "2"})
	n.Set("links", []any{"1", "2"})
	if len(events) != 1 {
		t.Errorf("equal sequence should not fire, got %d events", len(events))
	}
	if n.Version() != 3 {
		t.Errorf("version = %d, want 3", n.Version())
	}
}

func TestNode_WatchAndUnwatch(t *testing.T) {
	n := New()
	n.Set("color", "#800000")
	var events []event
	unwatch := n.Watch("color", record(&events))

	n.Set("color", "#ff0000")
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].src != Container(n) || events[0].old != "#800000" || events[0].new != "#ff0000" {
		t.Errorf("unexpected event %+v", events[0])
	}

	unwatch()
	n.Set("color", "#00ff00")
	if len(events) != 1 {
		t.Errorf("unwatched callback fired")
	}
}

func TestNode_WatchersFireInRegistrationOrder(t *testing.T) {
	n := New()
	var order []string
	n.Watch("k", func(Container, string, any, any) { order = append(order, "a") })
	n.Watch("k", func(Container, string, any, any) { order = append(order, "b") })
	n.Set("k", "v")
	if diff := cmp.Diff([]string{"a", "b"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestNode_DeepBubble(t *testing.T) {
	root := New()
	root.Set("a", map[string]any{"b": map[string]any{"color": "#800000"}})
	leaf := root.Child("a").Child("b")

	var events []event
	root.Watch("a", record(&events))

	leaf.Set("color", "#ff0000")

	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.src != Container(leaf) || ev.key != "color" || ev.old != "#800000" || ev.new != "#ff0000" {
		t.Errorf("bubbled event = %+v", ev)
	}
}

func TestNode_BubbleThroughListNode(t *testing.T) {
	root := New()
	root.Set("columns", NewList())
	root.List("columns").Set("1", map[string]any{"color": "#800000"})

	var events []event
	root.Watch("columns", record(&events))
	root.List("columns").Node("1").Set("color", "#ff0000")

	if len(events) != 1 || events[0].key != "color" {
		t.Fatalf("events = %+v", events)
	}
}

func TestNode_ReentrantMutation(t *testing.T) {
	n := New()
	n.Watch("a", func(src Container, key string, old, new any) {
		n.Set("b", new)
	})
	var bEvents []event
	n.Watch("b", record(&bEvents))

	n.Set("a", "x")
	if n.String("b") != "x" {
		t.Errorf("b = %q, want x", n.String("b"))
	}
	if len(bEvents) != 1 {
		t.Errorf("b events = %d, want 1", len(bEvents))
	}
}

func TestNode_WatchDuringDispatch(t *testing.T) {
	n := New()
	calls := 0
	n.Watch("a", func(Container, string, any, any) {
		n.Watch("a", func(Container, string, any, any) { calls++ })
	})
	n.Set("a", 1)
	if calls != 0 {
		t.Errorf("subscription added during dispatch fired in the same dispatch")
	}
}

func TestNode_Update(t *testing.T) {
	live := New()
	live.Set("keep", "same")
	live.Set("drop", "x")
	live.Set("meta", map[string]any{"color": "red"})
	meta := live.Child("meta")

	fresh := New()
	fresh.Set("keep", "same")
	fresh.Set("meta", map[string]any{"color": "blue"})
	fresh.Set("added", true)

	var events []event
	live.Watch("keep", record(&events))

	live.Update(fresh)

	if live.Has("drop") {
		t.Error("drop should be removed")
	}
	if live.Child("meta") != meta {
		t.Error("child node identity should be preserved")
	}
	if meta.String("color") != "blue" {
		t.Errorf("color = %q", meta.String("color"))
	}
	if !live.Bool("added") {
		t.Error("added missing")
	}
	if len(events) != 0 {
		t.Error("unchanged key fired")
	}
}

func TestNode_RenameKey(t *testing.T) {
	n := New()
	n.Set("a", 1)
	n.Set("bug", map[string]any{"color": "#f00"})
	n.Set("c", 3)
	n.RenameKey("bug", "defect")

	if diff := cmp.Diff([]string{"a", "defect", "c"}, n.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	if n.Child("defect").Key() != "defect" {
		t.Error("child key not updated")
	}
}

func TestNode_MarshalJSONKeepsOrder(t *testing.T) {
	n := New()
	n.Set("z", 1)
	n.Set("a", []string{"x"})
	b, err := json.Marshal(n)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"z":1,"a":["x"]}` {
		t.Errorf("json = %s", b)
	}
}

func TestListNode_OrderAndReplace(t *testing.T) {
	l := NewList()
	l.Set("1", "Backlog")
	l.Set("2", "Doing")
	l.Set("3", "Done")
	l.Set("2", "In Progress")

	if diff := cmp.Diff([]any{"Backlog", "In Progress", "Done"}, l.Values()); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}

	l.Set("1", nil)
	if diff := cmp.Diff([]string{"2", "3"}, l.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
}

func TestListNode_DuplicateValues(t *testing.T) {
	l := NewList()
	l.Set("a", "same")
	l.Set("b", "same")
	l.Set("c", "other")
	l.Set("b", "updated")
	if diff := cmp.Diff([]any{"same", "updated", "other"}, l.Values()); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
}

func TestListNode_ChildAttachment(t *testing.T) {
	root := New()
	root.Set("columns", NewList())
	cols := root.List("columns")
	cols.Set("1", map[string]any{"name": "Backlog"})
	if cols.Node("1").Path() != "columns.1" {
		t.Errorf("path = %q", cols.Node("1").Path())
	}
}

func TestListNode_Add(t *testing.T) {
	l := NewList()
	if k := l.Add("Notes", "a"); k != "Notes" {
		t.Errorf("key = %q", k)
	}
	if k := l.Add("Notes", "b"); k != "Notes (1)" {
		t.Errorf("key = %q", k)
	}
	if k := l.Add("Notes", "c"); k != "Notes (2)" {
		t.Errorf("key = %q", k)
	}
}

func TestListNode_UpdateReorderFiresOnce(t *testing.T) {
	live := NewList()
	for _, k := range []string{"a", "b", "c"} {
		live.Set(k, map[string]any{"name": k})
	}
	nodes := map[string]*Node{"a": live.Node("a"), "b": live.Node("b"), "c": live.Node("c")}

	var itemWatch []event
	nodes["b"].Watch("name", record(&itemWatch))

	fresh := NewList()
	for _, k := range []string{"c", "a", "b"} {
		fresh.Set(k, map[string]any{"name": k})
	}

	var events []event
	live.Watch(Wildcard, record(&events))
	live.Update(fresh)

	if len(events) != 1 {
		t.Fatalf("reorder events = %d, want 1", len(events))
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, events[0].old); diff != "" {
		t.Errorf("old order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"c", "a", "b"}, events[0].new); diff != "" {
		t.Errorf("new order (-want +got):\n%s", diff)
	}
	for k, n := range nodes {
		if live.Node(k) != n {
			t.Errorf("item %q lost identity", k)
		}
	}
	if len(itemWatch) != 0 {
		t.Error("unchanged item fired")
	}
}

func TestListNode_UpdateReorderBubblesOnce(t *testing.T) {
	root := New()
	root.Set("cards", NewList())
	root.List("cards").Set("1", "x")
	root.List("cards").Set("2", "y")

	fresh := NewList()
	fresh.Set("2", "y")
	fresh.Set("1", "x")

	var events []event
	root.Watch("cards", record(&events))
	root.List("cards").Update(fresh)
	if len(events) != 1 || events[0].key != Wildcard {
		t.Errorf("events = %+v", events)
	}
}

func TestListNode_RenameFirstKey(t *testing.T) {
	l := NewList()
	l.Set("Backlog", "body")
	l.Set("Notes", "n")
	l.RenameFirstKey("Notes")
	if diff := cmp.Diff([]string{"Notes (1)", "Notes"}, l.Keys()); diff != "" {
		t.Errorf("keys (-want +got):\n%s", diff)
	}
	if l.Get("Notes (1)") != "body" {
		t.Error("body lost")
	}
}

func TestEqual(t *testing.T) {
	n := New()
	cases := []struct {
		a, b any
		want bool
	}{
		{nil, nil, true},
		{"a", "a", true},
		{1, 1, true},
		{[]any{"1"}, []any{"1"}, true},
		{[]any{"1"}, []any{"2"}, false},
		{n, n, true},
		{n, New(), false},
		{"1", nil, false},
	}
	for _, c := range cases {
		if got := Equal(c.a, c.b); got != c.want {
			t.Errorf("Equal(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
