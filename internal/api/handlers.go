package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ganban/internal/boardservice"
	"github.com/starford/ganban/internal/index"
)

// Handler holds API route handlers.
type Handler struct {
	svc *boardservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *boardservice.Service) *Handler {
	return &Handler{svc: svc}
}

// urlParam returns a decoded route parameter. Label names may carry escaped
// characters.
func urlParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// GetBoard handles GET /api/board.
//
//	@Summary		Get the whole board
//	@Tags			board
//	@Produce		json
//	@Success		200	{object}	BoardResponse
//	@Security		BearerAuth
//	@Router			/board [get]
func (h *Handler) GetBoard(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Board(r.Context())
	if err != nil {
		writeError(w, "get board", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetCard handles GET /api/cards/{id}.
//
//	@Summary		Get a single card
//	@Tags			cards
//	@Produce		json
//	@Param			id	path		string	true	"Card id"
//	@Success		200	{object}	CardResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id} [get]
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Card(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get card", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ListCards handles GET /api/cards.
//
//	@Summary		List cards from the index
//	@Tags			cards
//	@Produce		json
//	@Param			column		query		string	false	"Column order id"
//	@Param			label		query		string	false	"Label name"
//	@Param			archived	query		bool	false	"Include archived cards"
//	@Success		200			{object}	CardListResponse
//	@Security		BearerAuth
//	@Router			/cards [get]
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	archived, _ := strconv.ParseBool(q.Get("archived"))
	rows, err := h.svc.ListCards(r.Context(), index.ListFilter{
		ColumnOrder:     q.Get("column"),
		Label:           q.Get("label"),
		IncludeArchived: archived,
	})
	if err != nil {
		writeError(w, "list cards", err)
		return
	}
	cards := make([]CardSummary, 0, len(rows))
	for _, row := range rows {
		cards = append(cards, CardSummary{
			ID:       row.ID,
			Title:    row.Title,
			Column:   row.ColumnOrder,
			Labels:   row.Labels,
			Assigned: row.Assigned,
			Due:      row.Due,
			Archived: row.Archived,
			Blocked:  row.Blocked,
		})
	}
	writeJSON(w, http.StatusOK, CardListResponse{Cards: cards})
}

// Dependents handles GET /api/cards/{id}/dependents.
//
//	@Summary		List cards that depend on a card
//	@Tags			cards
//	@Produce		json
//	@Param			id	path		string	true	"Card id"
//	@Success		200	{object}	DependentsResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id}/dependents [get]
func (h *Handler) Dependents(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.Dependents(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "dependents", err)
		return
	}
	writeJSON(w, http.StatusOK, DependentsResponse{IDs: ids})
}

// CreateCard handles POST /api/cards.
//
//	@Summary		Create a card
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateCardRequest	true	"Card to create"
//	@Success		201		{object}	CardResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards [post]
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.CreateCard(r.Context(), req)
	if err != nil {
		writeError(w, "create card", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// MoveCard handles POST /api/cards/{id}/move.
//
//	@Summary		Move a card to a column and position
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Card id"
//	@Param			body	body		MoveCardRequest	true	"Target column and position"
//	@Success		200		{object}	CardResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id}/move [post]
func (h *Handler) MoveCard(w http.ResponseWriter, r *http.Request) {
	var req MoveCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.MoveCard(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "move card", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ArchiveCard handles POST /api/cards/{id}/archive.
//
//	@Summary		Archive a card
//	@Tags			cards
//	@Param			id	path	string	true	"Card id"
//	@Success		204	"Card archived"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id}/archive [post]
func (h *Handler) ArchiveCard(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ArchiveCard(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "archive card", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateColumn handles POST /api/columns.
//
//	@Summary		Append a column
//	@Tags			columns
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateColumnRequest	true	"Column to create"
//	@Success		201		{object}	ColumnResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/columns [post]
func (h *Handler) CreateColumn(w http.ResponseWriter, r *http.Request) {
	var req CreateColumnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	col, err := h.svc.CreateColumn(r.Context(), req)
	if err != nil {
		writeError(w, "create column", err)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

// MoveColumn handles POST /api/columns/{order}/move.
//
//	@Summary		Move a column; every column is renumbered
//	@Tags			columns
//	@Accept			json
//	@Param			order	path	string				true	"Column order id"
//	@Param			body	body	MoveColumnRequest	true	"Target index"
//	@Success		204		"Column moved"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/columns/{order}/move [post]
func (h *Handler) MoveColumn(w http.ResponseWriter, r *http.Request) {
	var req MoveColumnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.MoveColumn(r.Context(), chi.URLParam(r, "order"), req.Index); err != nil {
		writeError(w, "move column", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameColumn handles POST /api/columns/{order}/rename.
//
//	@Summary		Rename a column
//	@Tags			columns
//	@Accept			json
//	@Produce		json
//	@Param			order	path		string			true	"Column order id"
//	@Param			body	body		RenameRequest	true	"New name"
//	@Success		200		{object}	ColumnResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/columns/{order}/rename [post]
func (h *Handler) RenameColumn(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	col, err := h.svc.RenameColumn(r.Context(), chi.URLParam(r, "order"), req.Name)
	if err != nil {
		writeError(w, "rename column", err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// ArchiveColumn handles DELETE /api/columns/{order}.
//
//	@Summary		Archive a column and the cards in it
//	@Tags			columns
//	@Param			order	path	string	true	"Column order id"
//	@Success		204		"Column archived"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/columns/{order} [delete]
func (h *Handler) ArchiveColumn(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ArchiveColumn(r.Context(), chi.URLParam(r, "order")); err != nil {
		writeError(w, "archive column", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameLabel handles POST /api/labels/{name}/rename.
//
//	@Summary		Rename a label on every card
//	@Tags			labels
//	@Accept			json
//	@Produce		json
//	@Param			name	path		string			true	"Label name"
//	@Param			body	body		RenameRequest	true	"New name"
//	@Success		200		{object}	LabelChangeResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/labels/{name}/rename [post]
func (h *Handler) RenameLabel(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.RenameLabel(r.Context(), urlParam(r, "name"), req.Name)
	if err != nil {
		writeError(w, "rename label", err)
		return
	}
	writeJSON(w, http.StatusOK, LabelChangeResponse{Changed: n})
}

// DeleteLabel handles DELETE /api/labels/{name}.
//
//	@Summary		Remove a label from every card
//	@Tags			labels
//	@Produce		json
//	@Param			name	path		string	true	"Label name"
//	@Success		200		{object}	LabelChangeResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/labels/{name} [delete]
func (h *Handler) DeleteLabel(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteLabel(r.Context(), urlParam(r, "name"))
	if err != nil {
		writeError(w, "delete label", err)
		return
	}
	writeJSON(w, http.StatusOK, LabelChangeResponse{Changed: n})
}

// Save handles POST /api/save.
//
//	@Summary		Commit the live board
//	@Tags			board
//	@Produce		json
//	@Success		200	{object}	SaveResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/save [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	commit, err := h.svc.Save(r.Context())
	if err != nil {
		writeError(w, "save", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{Commit: commit})
}

// Sync handles POST /api/sync. The response is always 200; a failed cycle
// is reported in the error field.
//
//	@Summary		Fetch, merge and push the board branch
//	@Tags			board
//	@Produce		json
//	@Success		200	{object}	SyncResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Sync(r.Context()))
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across active cards
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	hits, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		results = append(results, SearchResult{ID: hit.ID, Title: hit.Title, Snippet: hit.Snippet})
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// GetCardDocument handles GET /api/cards/{id}/document.
//
//	@Summary		Get a card as Markdown
//	@Tags			cards
//	@Produce		json
//	@Param			id	path		string	true	"Card id"
//	@Success		200	{object}	DocumentResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id}/document [get]
func (h *Handler) GetCardDocument(w http.ResponseWriter, r *http.Request) {
	md, err := h.svc.CardDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get card document", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Markdown: md})
}

// PutCardDocument handles PUT /api/cards/{id}/document.
//
//	@Summary		Replace a card's Markdown
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Card id"
//	@Param			body	body		DocumentRequest	true	"Card document"
//	@Success		200		{object}	CardResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id}/document [put]
func (h *Handler) PutCardDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.SetCardDocument(r.Context(), chi.URLParam(r, "id"), req.Markdown)
	if err != nil {
		writeError(w, "update card document", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetColumnDocument handles GET /api/columns/{order}/document.
//
//	@Summary		Get a column's index.md
//	@Tags			columns
//	@Produce		json
//	@Param			order	path		string	true	"Column order id"
//	@Success		200		{object}	DocumentResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/columns/{order}/document [get]
func (h *Handler) GetColumnDocument(w http.ResponseWriter, r *http.Request) {
	md, err := h.svc.ColumnDocument(r.Context(), chi.URLParam(r, "order"))
	if err != nil {
		writeError(w, "get column document", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Markdown: md})
}

// PutColumnDocument handles PUT /api/columns/{order}/document.
//
//	@Summary		Replace a column's index.md
//	@Tags			columns
//	@Accept			json
//	@Produce		json
//	@Param			order	path		string			true	"Column order id"
//	@Param			body	body		DocumentRequest	true	"Column document"
//	@Success		200		{object}	ColumnResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/columns/{order}/document [put]
func (h *Handler) PutColumnDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	col, err := h.svc.SetColumnDocument(r.Context(), chi.URLParam(r, "order"), req.Markdown)
	if err != nil {
		writeError(w, "update column document", err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

// GetBoardDocument handles GET /api/board/document.
//
//	@Summary		Get the board's index.md
//	@Tags			board
//	@Produce		json
//	@Success		200	{object}	DocumentResponse
//	@Security		BearerAuth
//	@Router			/board/document [get]
func (h *Handler) GetBoardDocument(w http.ResponseWriter, r *http.Request) {
	md, err := h.svc.BoardDocument(r.Context())
	if err != nil {
		writeError(w, "get board document", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Markdown: md})
}

// PutBoardDocument handles PUT /api/board/document.
//
//	@Summary		Replace the board's index.md
//	@Tags			board
//	@Accept			json
//	@Produce		json
//	@Param			body	body		DocumentRequest	true	"Board document"
//	@Success		200		{object}	BoardResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/board/document [put]
func (h *Handler) PutBoardDocument(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := h.svc.SetBoardDocument(r.Context(), req.Markdown)
	if err != nil {
		writeError(w, "update board document", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
