package api

import (
	"github.com/starford/ganban/internal/boardservice"
	"github.com/starford/ganban/internal/syncer"
)

// BoardResponse is the whole board (aliased from the domain layer).
type BoardResponse = boardservice.BoardView

// CardResponse is a single card (aliased from the domain layer).
type CardResponse = boardservice.CardView

// ColumnResponse is a single column (aliased from the domain layer).
type ColumnResponse = boardservice.ColumnView

// CreateCardRequest is the request body for creating a card.
type CreateCardRequest = boardservice.CreateCardInput

// MoveCardRequest is the request body for moving a card.
type MoveCardRequest = boardservice.MoveCardInput

// CreateColumnRequest is the request body for creating a column.
type CreateColumnRequest = boardservice.CreateColumnInput

// MoveColumnRequest is the request body for moving a column.
type MoveColumnRequest struct {
	Index int `json:"index" example:"0"`
}

// RenameRequest is the request body for renaming a column or a label.
type RenameRequest struct {
	Name string `json:"name" example:"In progress" validate:"required"`
}

// LabelChangeResponse reports how many cards a label change touched.
type LabelChangeResponse struct {
	Changed int `json:"changed" example:"3"`
}

// SaveResponse carries the commit the board was saved as.
type SaveResponse struct {
	Commit string `json:"commit" example:"4b825dc642cb6eb9a060e54bf8d69288fbee4904" validate:"required"`
}

// SyncResponse is the outcome of a sync cycle.
type SyncResponse = syncer.Result

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	ID      string `json:"id" example:"12" validate:"required"`
	Title   string `json:"title" example:"Fix login" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// CardSummary is one row of the card listing.
type CardSummary struct {
	ID       string   `json:"id" example:"12" validate:"required"`
	Title    string   `json:"title" example:"Fix login" validate:"required"`
	Column   string   `json:"column" example:"2"`
	Labels   []string `json:"labels" validate:"required"`
	Assigned string   `json:"assigned,omitempty" example:"Jane <jane@example.com>"`
	Due      string   `json:"due,omitempty" example:"2026-11-01"`
	Archived bool     `json:"archived"`
	Blocked  bool     `json:"blocked"`
}

// CardListResponse wraps a card listing.
type CardListResponse struct {
	Cards []CardSummary `json:"cards" validate:"required"`
}

// DependentsResponse lists the cards that depend on a card.
type DependentsResponse struct {
	IDs []string `json:"ids" validate:"required"`
}

// DocumentRequest carries the Markdown a card, column or board is stored as.
type DocumentRequest struct {
	Markdown string `json:"markdown" example:"# Fix login\n\nUsers cannot sign in." validate:"required"`
}

// DocumentResponse carries a stored Markdown document.
type DocumentResponse struct {
	Markdown string `json:"markdown" validate:"required"`
}
