package board

import (
	"github.com/starford/ganban/internal/node"
	"github.com/starford/ganban/internal/parser"
)

// CardDocument returns the document a card is stored as.
func CardDocument(c *Card) *parser.Document {
	return NodeDocument(c.Sections(), c.Meta())
}

// ColumnDocument returns the document stored as a column's index.md.
func ColumnDocument(col *Column) *parser.Document {
	return NodeDocument(col.Sections(), col.Meta())
}

// BoardDocument returns the document stored as the board's index.md.
func BoardDocument(b *Board) *parser.Document {
	return NodeDocument(b.Sections(), b.Meta())
}

// SetCardDocument replaces a card's sections and metadata with doc. An
// untitled first section keeps the current title.
func SetCardDocument(c *Card, doc *parser.Document) {
	applyDocument(c.n, doc, c.Title())
}

// SetColumnDocument replaces a column's sections and metadata with doc and
// moves its directory to match the new name.
func SetColumnDocument(col *Column, doc *parser.Document) {
	applyDocument(col.n, doc, col.Name())
	col.n.Set(KeyDirPath, ColumnPath(col.Order(), col.Name(), col.Hidden()))
}

// SetBoardDocument replaces the board's sections and metadata with doc.
func SetBoardDocument(b *Board, doc *parser.Document) {
	applyDocument(b.root, doc, b.Title())
}

// applyDocument reconciles owner's sections and meta in place, so nodes and
// their subscriptions survive wherever the content is unchanged.
func applyDocument(owner *node.Node, doc *parser.Document, fallbackTitle string) {
	sections, meta := DocumentNodes(doc, fallbackTitle)
	if cur := owner.List(KeySections); cur != nil {
		cur.Update(sections)
	} else {
		owner.Set(KeySections, sections)
	}
	if cur := owner.Child(KeyMeta); cur != nil {
		cur.Update(meta)
	} else {
		owner.Set(KeyMeta, meta)
	}
}
