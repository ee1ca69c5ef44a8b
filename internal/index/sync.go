package index

import (
	"log/slog"
	"strconv"

	"github.com/starford/ganban/internal/board"
	"github.com/starford/ganban/internal/checksum"
	"github.com/starford/ganban/internal/parser"
)

// Sync brings the index up to date with a loaded board:
//   - new/changed cards are upserted
//   - cards no longer on the board are deleted from the index
//
// The board must not be mutated concurrently.
func Sync(db CardIndex, b *board.Board, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	columns := make(map[string]*board.Column)
	for _, col := range b.AllColumns() {
		for _, id := range col.Links() {
			if _, seen := columns[id]; !seen {
				columns[id] = col
			}
		}
	}

	present := make(map[string]struct{})
	for _, card := range b.AllCards() {
		present[card.ID()] = struct{}{}
		row, body, err := cardRow(card, columns[card.ID()])
		if err != nil {
			logger.Warn("index: serialize failed", slog.String("card", card.ID()), slog.String("error", err.Error()))
			continue
		}
		if checksums[row.ID] == row.Checksum {
			continue
		}
		if err := db.UpsertCard(row, body, card.Deps()); err != nil {
			logger.Warn("index: upsert failed", slog.String("card", row.ID), slog.String("error", err.Error()))
		} else {
			logger.Debug("index: indexed", slog.String("card", row.ID))
		}
	}

	// Remove stale entries.
	for id := range checksums {
		if _, ok := present[id]; !ok {
			if err := db.DeleteCard(id); err != nil {
				logger.Warn("index: delete failed", slog.String("card", id), slog.String("error", err.Error()))
			} else {
				logger.Debug("index: removed stale", slog.String("card", id))
			}
		}
	}

	return nil
}

// cardRow builds the index row for card. The checksum covers the card file
// plus everything the row derives from the rest of the board.
func cardRow(card *board.Card, col *board.Column) (CardRow, string, error) {
	doc := board.NodeDocument(card.Sections(), card.Meta())
	data, err := parser.Serialize(doc)
	if err != nil {
		return CardRow{}, "", err
	}

	row := CardRow{
		ID:       card.ID(),
		Title:    card.Title(),
		Labels:   normalizedLabels(card.Labels()),
		Assigned: card.Assigned(),
		Due:      card.Due(),
		Archived: card.Archived(),
		Blocked:  card.Blocked(),
	}
	if col != nil {
		row.ColumnOrder = col.Order()
		row.ColumnName = col.Name()
	}

	key := append([]byte{}, data...)
	for _, part := range []string{row.ColumnOrder, row.ColumnName, strconv.FormatBool(row.Archived), strconv.FormatBool(row.Blocked)} {
		key = append(key, 0)
		key = append(key, part...)
	}
	row.Checksum = checksum.Sum(key)
	return row, doc.Text(), nil
}

func normalizedLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if n := board.NormalizeLabel(l); n != "" {
			out = append(out, n)
		}
	}
	return out
}
