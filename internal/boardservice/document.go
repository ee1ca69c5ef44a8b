package boardservice

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ganban/internal/apperr"
	"github.com/starford/ganban/internal/board"
	"github.com/starford/ganban/internal/parser"
	"github.com/starford/ganban/internal/sse"
)

const maxDocumentRunes = 1 << 20

// CardDocument returns a card as the Markdown it is stored as.
func (s *Service) CardDocument(ctx context.Context, id string) (string, error) {
	if err := s.lock(ctx); err != nil {
		return "", err
	}
	defer s.unlock()

	c := s.live.Card(id)
	if c == nil {
		return "", fmt.Errorf("card %s: %w", id, apperr.ErrNotFound)
	}
	return render(board.CardDocument(c))
}

// SetCardDocument replaces a card's title, sections and front matter with
// the given Markdown. Parts that did not change are left untouched.
func (s *Service) SetCardDocument(ctx context.Context, id, text string) (CardView, error) {
	doc, err := parseDocument(text)
	if err != nil {
		return CardView{}, err
	}
	if err := s.lock(ctx); err != nil {
		return CardView{}, err
	}
	defer s.unlock()

	c := s.live.Card(id)
	if c == nil {
		return CardView{}, fmt.Errorf("card %s: %w", id, apperr.ErrNotFound)
	}
	board.SetCardDocument(c, doc)
	if err := s.persist(ctx, "Update card "+id); err != nil {
		return CardView{}, err
	}
	s.publishCard(sse.CardUpdated, id)
	return s.cardOrNotFound(id)
}

// ColumnDocument returns a column's index.md.
func (s *Service) ColumnDocument(ctx context.Context, order string) (string, error) {
	if err := s.lock(ctx); err != nil {
		return "", err
	}
	defer s.unlock()

	col := s.live.Column(order)
	if col == nil {
		return "", fmt.Errorf("column %s: %w", order, apperr.ErrNotFound)
	}
	return render(board.ColumnDocument(col))
}

// SetColumnDocument replaces a column's index.md. A new first heading
// renames the column.
func (s *Service) SetColumnDocument(ctx context.Context, order, text string) (ColumnView, error) {
	doc, err := parseDocument(text)
	if err != nil {
		return ColumnView{}, err
	}
	if err := s.lock(ctx); err != nil {
		return ColumnView{}, err
	}
	defer s.unlock()

	col := s.live.Column(order)
	if col == nil {
		return ColumnView{}, fmt.Errorf("column %s: %w", order, apperr.ErrNotFound)
	}
	board.SetColumnDocument(col, doc)
	if err := s.persist(ctx, "Update column "+order); err != nil {
		return ColumnView{}, err
	}
	s.publishBoard("column.updated", order)
	return s.columnOrNotFound(order)
}

// BoardDocument returns the board's index.md.
func (s *Service) BoardDocument(ctx context.Context) (string, error) {
	if err := s.lock(ctx); err != nil {
		return "", err
	}
	defer s.unlock()
	return render(board.BoardDocument(s.live))
}

// SetBoardDocument replaces the board's index.md, which holds the title,
// the description and the label colors.
func (s *Service) SetBoardDocument(ctx context.Context, text string) (BoardView, error) {
	doc, err := parseDocument(text)
	if err != nil {
		return BoardView{}, err
	}
	if err := s.lock(ctx); err != nil {
		return BoardView{}, err
	}
	defer s.unlock()

	board.SetBoardDocument(s.live, doc)
	if err := s.persist(ctx, "Update board document"); err != nil {
		return BoardView{}, err
	}
	s.publishBoard("board.document", s.live.Commit())
	return boardView(s.live), nil
}

func parseDocument(text string) (*parser.Document, error) {
	if err := validation.Validate(text, validation.Required, validation.RuneLength(1, maxDocumentRunes)); err != nil {
		return nil, invalid(fmt.Errorf("markdown: %w", err))
	}
	doc, err := parser.Parse([]byte(text))
	if err != nil {
		return nil, invalid(err)
	}
	return doc, nil
}

func render(doc *parser.Document) (string, error) {
	out, err := parser.Serialize(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
