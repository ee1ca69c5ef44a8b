// Package board gives typed access to a board held in a reactive node tree and
// implements the operations that mutate it.
//
// A Board is a thin view over its root *node.Node. All state lives in the
// tree, so subscriptions registered on the tree observe every mutation made
// through this package.
package board

import (
	"fmt"

	"github.com/starford/ganban/internal/ids"
	"github.com/starford/ganban/internal/node"
)

// Branch is the git branch boards are stored on.
const Branch = "ganban"

// DefaultTitle is used when a board has no title of its own.
const DefaultTitle = "ganban"

// Keys of the root node.
const (
	KeySections = "sections"
	KeyMeta     = "meta"
	KeyCards    = "cards"
	KeyColumns  = "columns"
	KeyRepoPath = "repo_path"
	KeyCommit   = "commit"
	KeyLabels   = "labels"
	KeyGit      = "git"
)

// Board is a loaded board.
type Board struct {
	root *node.Node
}

// New returns an empty board for the repository at repoPath.
func New(repoPath string) *Board {
	root := node.New()
	root.Set(KeySections, node.NewList())
	root.Set(KeyMeta, node.New())
	root.Set(KeyCards, node.NewList())
	root.Set(KeyColumns, node.NewList())
	root.Set(KeyRepoPath, repoPath)
	return &Board{root: root}
}

// Wrap returns a Board view over an existing root node.
func Wrap(root *node.Node) *Board { return &Board{root: root} }

// Root returns the underlying tree.
func (b *Board) Root() *node.Node { return b.root }

func (b *Board) Sections() *node.ListNode { return b.root.List(KeySections) }
func (b *Board) Meta() *node.Node { return b.root.Child(KeyMeta) }
func (b *Board) Cards() *node.ListNode { return b.root.List(KeyCards) }
func (b *Board) Columns() *node.ListNode { return b.root.List(KeyColumns) }
func (b *Board) Labels() *node.Node { return b.root.Child(KeyLabels) }
func (b *Board) Git() *node.Node { return b.root.Child(KeyGit) }

// RepoPath returns the repository the board was loaded from.
func (b *Board) RepoPath() string { return b.root.String(KeyRepoPath) }

// Commit returns the commit the in-memory state is based on, or "".
func (b *Board) Commit() string { return b.root.String(KeyCommit) }

// SetCommit records the commit the in-memory state is based on.
func (b *Board) SetCommit(commit string) {
	if commit == "" {
		b.root.Delete(KeyCommit)
		return
	}
	b.root.Set(KeyCommit, commit)
}

// Title returns the board title.
func (b *Board) Title() string { return firstKey(b.Sections()) }

// Card returns the card with the given id, or nil.
func (b *Board) Card(id string) *Card {
	n := b.Cards().Node(id)
	if n == nil {
		return nil
	}
	return &Card{n: n}
}

// CardIDs returns every card id in collection order.
func (b *Board) CardIDs() []string { return b.Cards().Keys() }

// AllCards returns every card in collection order.
func (b *Board) AllCards() []*Card {
	var out []*Card
	for _, id := range b.Cards().Keys() {
		if c := b.Card(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Column returns the column with the given order id, or nil.
func (b *Board) Column(order string) *Column {
	n := b.Columns().Node(order)
	if n == nil {
		return nil
	}
	return &Column{n: n}
}

// AllColumns returns the columns in board order.
func (b *Board) AllColumns() []*Column {
	var out []*Column
	for _, order := range b.Columns().Keys() {
		if c := b.Column(order); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// NextCardID returns the id a new card would get.
func (b *Board) NextCardID() string { return ids.NextAfter(b.Cards().Keys()) }

// Column is one column of a board.
type Column struct {
	n *node.Node
}

// Column node keys.
const (
	KeyOrder   = "order"
	KeyDirPath = "dir_path"
	KeyHidden  = "hidden"
	KeyLinks   = "links"
)

// NewColumn builds a detached column node.
func NewColumn(order, name string, hidden bool) *Column {
	n := node.New()
	n.Set(KeyOrder, order)
	n.Set(KeyDirPath, ColumnPath(order, name, hidden))
	n.Set(KeyHidden, hidden)
	sections := node.NewList()
	sections.Set(name, "")
	n.Set(KeySections, sections)
	n.Set(KeyMeta, node.New())
	n.Set(KeyLinks, []string{})
	return &Column{n: n}
}

func (c *Column) Node() *node.Node { return c.n }
func (c *Column) Order() string { return c.n.String(KeyOrder) }
func (c *Column) DirPath() string { return c.n.String(KeyDirPath) }
func (c *Column) Hidden() bool { return c.n.Bool(KeyHidden) }
func (c *Column) Sections() *node.ListNode { return c.n.List(KeySections) }
func (c *Column) Meta() *node.Node { return c.n.Child(KeyMeta) }

// Name returns the column title.
func (c *Column) Name() string { return firstKey(c.Sections()) }

// Links returns the ids of the cards in the column, in order.
func (c *Column) Links() []string { return c.n.Strings(KeyLinks) }

// SetLinks replaces the column's card ids in a single assignment.
func (c *Column) SetLinks(links []string) {
	if links == nil {
		links = []string{}
	}
	c.n.Set(KeyLinks, links)
}

// Card is one card of a board.
type Card struct {
	n *node.Node
}

// Card node keys. Archived and Blocked are derived and never persisted.
const (
	KeyArchived = "archived"
	KeyBlocked  = "blocked"
)

// Recognized card meta keys.
const (
	MetaAssigned = "assigned"
	MetaDue      = "due"
	MetaLabels   = "labels"
	MetaDeps     = "deps"
	MetaDone     = "done"
)

// NewCard builds a detached card node.
func NewCard(title, body string) *Card {
	n := node.New()
	sections := node.NewList()
	sections.Set(title, body)
	n.Set(KeySections, sections)
	n.Set(KeyMeta, node.New())
	return &Card{n: n}
}

func (c *Card) Node() *node.Node { return c.n }
func (c *Card) ID() string { return c.n.Key() }
func (c *Card) Sections() *node.ListNode { return c.n.List(KeySections) }
func (c *Card) Meta() *node.Node { return c.n.Child(KeyMeta) }
func (c *Card) Archived() bool { return c.n.Bool(KeyArchived) }
func (c *Card) Blocked() bool { return c.n.Bool(KeyBlocked) }

// Title returns the card title.
func (c *Card) Title() string { return firstKey(c.Sections()) }

// Body returns the body of the first section.
func (c *Card) Body() string {
	_, v, ok := c.Sections().First()
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Labels returns the card's labels as written.
func (c *Card) Labels() []string {
	if m := c.Meta(); m != nil {
		return scalarStrings(m.Get(MetaLabels))
	}
	return nil
}

// Deps returns the ids the card depends on.
func (c *Card) Deps() []string {
	if m := c.Meta(); m != nil {
		return scalarStrings(m.Get(MetaDeps))
	}
	return nil
}

// Done reports whether the card's meta marks it done.
func (c *Card) Done() bool {
	if m := c.Meta(); m != nil {
		return truthy(m.Get(MetaDone))
	}
	return false
}

// Assigned returns the assignee, or "".
func (c *Card) Assigned() string { return c.metaString(MetaAssigned) }

// Due returns the due date as written, or "".
func (c *Card) Due() string { return c.metaString(MetaDue) }

func (c *Card) metaString(key string) string {
	m := c.Meta()
	if m == nil || m.Get(key) == nil {
		return ""
	}
	if s, ok := m.Get(key).(string); ok {
		return s
	}
	return fmt.Sprint(m.Get(key))
}

func firstKey(l *node.ListNode) string {
	if l == nil {
		return ""
	}
	k, _, _ := l.First()
	return k
}
