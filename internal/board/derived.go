package board

import (
	"slices"

	"github.com/starford/ganban/internal/ids"
	"github.com/starford/ganban/internal/node"
)

// AttachDerived computes the archived and blocked flags and the label index,
// and subscribes to the tree so they stay current as the board is edited.
// The returned function removes the subscriptions.
func AttachDerived(b *Board) (detach func()) {
	d := &derived{b: b}
	d.recomputeArchived(b.CardIDs())
	d.recomputeBlocked()
	d.rebuildLabels()

	unwatch := []func(){
		b.root.Watch(KeyColumns, d.onColumns),
		b.root.Watch(KeyCards, d.onCards),
		b.root.Watch(KeyMeta, d.onBoardMeta),
	}
	return func() {
		for _, u := range unwatch {
			u()
		}
	}
}

type derived struct {
	b *Board
}

func (d *derived) onColumns(src node.Container, key string, old, new any) {
	switch {
	case src == node.Container(d.b.Columns()):
		// Columns added, removed or reordered.
		d.recomputeArchived(d.b.CardIDs())
	case key == KeyLinks && src.Parent() == node.Container(d.b.Columns()):
		d.recomputeArchived(symmetricDiff(scalarStrings(old), scalarStrings(new)))
	}
}

func (d *derived) onCards(src node.Container, key string, old, new any) {
	cards := d.b.Cards()
	if src == node.Container(cards) {
		if added, ok := new.(*node.Node); ok && key != node.Wildcard {
			d.recomputeArchived([]string{added.Key()})
		}
		d.recomputeBlocked()
		d.rebuildLabels()
		return
	}

	card, meta := owningCard(src, cards)
	if card == nil {
		return
	}
	switch {
	case !meta && key == KeyArchived:
		d.recomputeBlocked()
	case !meta && key == KeyMeta:
		d.recomputeBlocked()
		d.rebuildLabels()
	case meta && (key == MetaDone || key == MetaDeps):
		d.recomputeBlocked()
	case meta && key == MetaLabels:
		d.rebuildLabels()
	}
}

func (d *derived) onBoardMeta(src node.Container, key string, _, _ any) {
	if src == node.Container(d.b.Meta()) && key != MetaLabels {
		return
	}
	d.rebuildLabels()
}

// owningCard finds the card a change happened in, and whether it happened
// directly inside that card's meta node.
func owningCard(src node.Container, cards *node.ListNode) (card *node.Node, inMeta bool) {
	var prev node.Container
	for cur := src; cur != nil; cur = cur.Parent() {
		if cur.Parent() == node.Container(cards) {
			n, _ := cur.(*node.Node)
			return n, prev == src && src.Key() == KeyMeta
		}
		prev = cur
	}
	return nil, false
}

func (d *derived) recomputeArchived(cardIDs []string) {
	if len(cardIDs) == 0 {
		return
	}
	linked := make(map[string]bool)
	for _, col := range d.b.AllColumns() {
		for _, id := range col.Links() {
			linked[id] = true
		}
	}
	for _, id := range cardIDs {
		if c := d.b.Card(id); c != nil {
			c.n.Set(KeyArchived, !linked[id])
		}
	}
}

// recomputeBlocked reevaluates every card. A card is blocked while any card it
// depends on is neither archived nor done.
func (d *derived) recomputeBlocked() {
	cards := d.b.AllCards()
	byID := make(map[string]*Card, len(cards))
	for _, c := range cards {
		byID[ids.Normalize(c.ID())] = c
	}
	for _, c := range cards {
		blocked := false
		for _, dep := range c.Deps() {
			target, ok := byID[ids.Normalize(dep)]
			if ok && target != c && !target.Archived() && !target.Done() {
				blocked = true
				break
			}
		}
		c.n.Set(KeyBlocked, blocked)
	}
}

func symmetricDiff(a, b []string) []string {
	var out []string
	for _, id := range a {
		if !slices.Contains(b, id) {
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !slices.Contains(a, id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
