//go:build sqlite_fts5

package index

import (
	"testing"
	"time"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM cards_fts`).Scan(&count); err != nil {
		t.Fatalf("cards_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	row := CardRow{
		ID:        "1",
		Title:     "FTS Card",
		Checksum:  "f1",
		Labels:    []string{"search"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertCard(row, "Ganban provides powerful full-text search over cards.", nil); err != nil {
		t.Fatalf("UpsertCard: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ID != "1" {
		t.Errorf("id = %q", results[0].ID)
	}
	// FTS5 snippet should contain bold markers.
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertCard(CardRow{ID: "9", Checksum: "g"}, "vanishing content", nil)
	_ = db.DeleteCard("9")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.ID == "9" {
			t.Error("deleted card still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertCard(CardRow{ID: "5", Title: "Old", Checksum: "1"}, "original text", nil)
	_ = db.UpsertCard(CardRow{ID: "5", Title: "New", Checksum: "2"}, "replacement text", nil)

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
