package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/ganban/internal/apperr"
)

// CardRow represents a row in the cards table.
type CardRow struct {
	ID          string
	Title       string
	ColumnOrder string
	ColumnName  string
	Labels      []string
	Assigned    string
	Due         string
	Archived    bool
	Blocked     bool
	Checksum    string
	UpdatedAt   time.Time
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string
	Title   string
	Snippet string
}

// ListFilter narrows ListCards. Empty fields match everything.
type ListFilter struct {
	ColumnOrder     string
	Label           string
	IncludeArchived bool
}

// UpsertCard inserts or replaces a card, its FTS entry, and its dependencies within a transaction.
func (db *DB) UpsertCard(c CardRow, body string, deps []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if c.Labels == nil {
		c.Labels = []string{}
	}
	labelsJSON, _ := json.Marshal(c.Labels)
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}

	_, err = tx.Exec(`
		INSERT INTO cards (id, title, col_order, col_name, labels, assigned, due, archived, blocked, checksum, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title      = excluded.title,
			col_order  = excluded.col_order,
			col_name   = excluded.col_name,
			labels     = excluded.labels,
			assigned   = excluded.assigned,
			due        = excluded.due,
			archived   = excluded.archived,
			blocked    = excluded.blocked,
			checksum   = excluded.checksum,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, c.ID, c.Title, c.ColumnOrder, c.ColumnName, string(labelsJSON), c.Assigned, c.Due,
		c.Archived, c.Blocked, c.Checksum, body, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert card: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, c.ID, c.Title, body, c.Labels); err != nil {
		return err
	}

	_, _ = tx.Exec(`DELETE FROM deps WHERE card = ?`, c.ID)
	if len(deps) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO deps (card, dep) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare dep insert: %w", err)
		}
		defer stmt.Close()
		for _, dep := range deps {
			if _, err := stmt.Exec(c.ID, dep); err != nil {
				return fmt.Errorf("index: insert dep: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteCard removes a card, its FTS entry, and its dependencies.
func (db *DB) DeleteCard(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	_, _ = tx.Exec(`DELETE FROM deps WHERE card = ?`, id)
	_, _ = tx.Exec(`DELETE FROM cards WHERE id = ?`, id)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a card, or empty string if not found.
func (db *DB) GetChecksum(id string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM cards WHERE id = ?`, id).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

const cardColumns = `id, title, col_order, col_name, labels, assigned, due, archived, blocked, checksum, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanCard(s scanner) (CardRow, error) {
	var (
		c      CardRow
		labels string
	)
	if err := s.Scan(&c.ID, &c.Title, &c.ColumnOrder, &c.ColumnName, &labels, &c.Assigned, &c.Due,
		&c.Archived, &c.Blocked, &c.Checksum, &c.UpdatedAt); err != nil {
		return CardRow{}, err
	}
	_ = json.Unmarshal([]byte(labels), &c.Labels)
	if c.Labels == nil {
		c.Labels = []string{}
	}
	return c, nil
}

// GetCard returns one indexed card.
func (db *DB) GetCard(id string) (*CardRow, error) {
	row := db.conn.QueryRow(`SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get card: %w", err)
	}
	return &c, nil
}

// ListCards returns indexed cards matching filter, ordered by column then id
// with archived cards last.
func (db *DB) ListCards(filter ListFilter) ([]CardRow, error) {
	var (
		where []string
		args  []any
	)
	if filter.ColumnOrder != "" {
		where = append(where, "col_order = ?")
		args = append(args, filter.ColumnOrder)
	}
	if filter.Label != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(cards.labels) WHERE json_each.value = ?)")
		args = append(args, strings.ToLower(strings.TrimSpace(filter.Label)))
	}
	if !filter.IncludeArchived {
		where = append(where, "archived = 0")
	}
	q := `SELECT ` + cardColumns + ` FROM cards`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY archived, length(col_order), col_order, length(id), id"

	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list cards: %w", err)
	}
	defer rows.Close()

	var out []CardRow
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AllChecksums returns the checksum of every indexed card keyed by id.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT id, checksum FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id, cs string
		if err := rows.Scan(&id, &cs); err != nil {
			return nil, err
		}
		out[id] = cs
	}
	return out, rows.Err()
}

// Dependents returns the ids of all cards that depend on the given card.
func (db *DB) Dependents(id string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT card FROM deps WHERE dep = ? ORDER BY length(card), card`, id)
	if err != nil {
		return nil, fmt.Errorf("index: dependents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
