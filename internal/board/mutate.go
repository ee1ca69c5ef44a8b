package board

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/ganban/internal/apperr"
	"github.com/starford/ganban/internal/ids"
)

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases text and collapses every run of other characters into a
// single hyphen.
func Slugify(text string) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(text), "-"), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}

// ColumnPath returns the directory name of a column.
func ColumnPath(order, name string, hidden bool) string {
	prefix := ""
	if hidden {
		prefix = "."
	}
	return prefix + order + "." + Slugify(name)
}

// CreateCard adds a card and links it into col at pos. A nil col means the
// first column; a negative pos appends. The card is unlinked when the board
// has no columns.
func CreateCard(b *Board, title, body string, col *Column, pos int) *Card {
	id := b.NextCardID()
	b.Cards().Set(id, NewCard(title, body).Node())
	card := b.Card(id)

	if col == nil {
		if cols := b.AllColumns(); len(cols) > 0 {
			col = cols[0]
		}
	}
	if col != nil {
		col.SetLinks(insertAt(col.Links(), id, pos))
	}
	return card
}

// FindCardColumn returns the column linking the card, or nil.
func FindCardColumn(b *Board, id string) *Column {
	for _, col := range b.AllColumns() {
		if slices.Contains(col.Links(), id) {
			return col
		}
	}
	return nil
}

// MoveCard links the card into target at pos, unlinking it from its current
// column. A reorder within one column is a single assignment.
func MoveCard(b *Board, id string, target *Column, pos int) error {
	if b.Card(id) == nil {
		return fmt.Errorf("card %s: %w", id, apperr.ErrNotFound)
	}
	source := FindCardColumn(b, id)
	if source != nil && source.Order() == target.Order() {
		links := slices.DeleteFunc(source.Links(), func(l string) bool { return l == id })
		source.SetLinks(insertAt(links, id, pos))
		return nil
	}
	if source != nil {
		source.SetLinks(slices.DeleteFunc(source.Links(), func(l string) bool { return l == id }))
	}
	target.SetLinks(insertAt(target.Links(), id, pos))
	return nil
}

// ArchiveCard unlinks the card from its column. The card itself is kept.
func ArchiveCard(b *Board, id string) error {
	if b.Card(id) == nil {
		return fmt.Errorf("card %s: %w", id, apperr.ErrNotFound)
	}
	if col := FindCardColumn(b, id); col != nil {
		col.SetLinks(slices.DeleteFunc(col.Links(), func(l string) bool { return l == id }))
	}
	return nil
}

func insertAt(links []string, id string, pos int) []string {
	if pos < 0 || pos > len(links) {
		pos = len(links)
	}
	return slices.Insert(links, pos, id)
}

// CreateColumn appends a column. An empty order takes the next free order id.
func CreateColumn(b *Board, name, order string, hidden bool) (*Column, error) {
	if order == "" {
		order = ids.NextAfter(b.Columns().Keys())
	}
	if b.Columns().Has(order) {
		return nil, fmt.Errorf("column %s: %w", order, apperr.ErrAlreadyExists)
	}
	b.Columns().Set(order, NewColumn(order, name, hidden).Node())
	return b.Column(order), nil
}

// MoveColumn moves col to index and renumbers every column densely from "1",
// rebuilding directory names.
func MoveColumn(b *Board, col *Column, index int) {
	cols := b.AllColumns()
	cols = slices.DeleteFunc(cols, func(c *Column) bool { return c.n == col.n })
	if index < 0 || index > len(cols) {
		index = len(cols)
	}
	cols = slices.Insert(cols, index, col)

	columns := b.Columns()
	for _, key := range columns.Keys() {
		columns.Delete(key)
	}
	for i, c := range cols {
		order := strconv.Itoa(i + 1)
		c.n.Set(KeyOrder, order)
		c.n.Set(KeyDirPath, ColumnPath(order, c.Name(), c.Hidden()))
		columns.Set(order, c.n)
	}
}

// RenameColumn retitles col and rebuilds its directory name.
func RenameColumn(col *Column, name string) {
	col.Sections().RenameFirstKey(name)
	col.n.Set(KeyDirPath, ColumnPath(col.Order(), col.Name(), col.Hidden()))
}

// ArchiveColumn removes the column. Its cards become archived.
func ArchiveColumn(b *Board, order string) error {
	if !b.Columns().Has(order) {
		return fmt.Errorf("column %s: %w", order, apperr.ErrNotFound)
	}
	b.Columns().Delete(order)
	return nil
}
