package boardservice

import (
	"slices"

	"github.com/starford/ganban/internal/board"
)

// Section is one titled part of a document.
type Section struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CardView is the representation of a card.
type CardView struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Sections []Section      `json:"sections"`
	Column   string         `json:"column,omitempty"`
	Labels   []string       `json:"labels"`
	Assigned string         `json:"assigned,omitempty"`
	Due      string         `json:"due,omitempty"`
	Deps     []string       `json:"deps"`
	Done     bool           `json:"done"`
	Archived bool           `json:"archived"`
	Blocked  bool           `json:"blocked"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// ColumnView is the representation of a column with its card ids in order.
type ColumnView struct {
	Order  string   `json:"order"`
	Name   string   `json:"name"`
	Hidden bool     `json:"hidden"`
	Cards  []string `json:"cards"`
}

// LabelView is one entry of the label index.
type LabelView struct {
	Name  string   `json:"name"`
	Color string   `json:"color"`
	Cards []string `json:"cards"`
}

// BoardView is a snapshot of the whole board.
type BoardView struct {
	Title   string       `json:"title"`
	Commit  string       `json:"commit"`
	Columns []ColumnView `json:"columns"`
	Cards   []CardView   `json:"cards"`
	Labels  []LabelView  `json:"labels"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func cardView(b *board.Board, c *board.Card) CardView {
	v := CardView{
		ID:       c.ID(),
		Title:    c.Title(),
		Body:     c.Body(),
		Labels:   nonNil(c.Labels()),
		Assigned: c.Assigned(),
		Due:      c.Due(),
		Deps:     nonNil(c.Deps()),
		Done:     c.Done(),
		Archived: c.Archived(),
		Blocked:  c.Blocked(),
	}
	for _, key := range c.Sections().Keys() {
		body, _ := c.Sections().Get(key).(string)
		v.Sections = append(v.Sections, Section{Title: key, Body: body})
	}
	if col := board.FindCardColumn(b, c.ID()); col != nil {
		v.Column = col.Order()
	}
	if m := c.Meta(); m != nil && m.Len() > 0 {
		v.Meta = m.ToMap()
	}
	return v
}

func columnView(c *board.Column) ColumnView {
	return ColumnView{
		Order:  c.Order(),
		Name:   c.Name(),
		Hidden: c.Hidden(),
		Cards:  nonNil(c.Links()),
	}
}

func boardView(b *board.Board) BoardView {
	v := BoardView{
		Title:   b.Title(),
		Commit:  b.Commit(),
		Columns: []ColumnView{},
		Cards:   []CardView{},
		Labels:  []LabelView{},
	}
	for _, col := range b.AllColumns() {
		v.Columns = append(v.Columns, columnView(col))
	}
	for _, c := range b.AllCards() {
		v.Cards = append(v.Cards, cardView(b, c))
	}
	if labels := b.Labels(); labels != nil {
		names := labels.Keys()
		slices.Sort(names)
		for _, name := range names {
			entry := labels.Child(name)
			if entry == nil {
				continue
			}
			v.Labels = append(v.Labels, LabelView{
				Name:  name,
				Color: entry.String("color"),
				Cards: nonNil(entry.Strings("cards")),
			})
		}
	}
	return v
}
