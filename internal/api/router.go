package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ganban/internal/boardservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *boardservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/board", h.GetBoard)
	r.Get("/board/document", h.GetBoardDocument)
	r.Put("/board/document", h.PutBoardDocument)

	// Cards.
	r.Get("/cards", h.ListCards)
	r.Post("/cards", h.CreateCard)
	r.Get("/cards/{id}", h.GetCard)
	r.Get("/cards/{id}/dependents", h.Dependents)
	r.Get("/cards/{id}/document", h.GetCardDocument)
	r.Put("/cards/{id}/document", h.PutCardDocument)
	r.Post("/cards/{id}/move", h.MoveCard)
	r.Post("/cards/{id}/archive", h.ArchiveCard)

	// Columns.
	r.Post("/columns", h.CreateColumn)
	r.Post("/columns/{order}/move", h.MoveColumn)
	r.Post("/columns/{order}/rename", h.RenameColumn)
	r.Get("/columns/{order}/document", h.GetColumnDocument)
	r.Put("/columns/{order}/document", h.PutColumnDocument)
	r.Delete("/columns/{order}", h.ArchiveColumn)

	// Labels.
	r.Post("/labels/{name}/rename", h.RenameLabel)
	r.Delete("/labels/{name}", h.DeleteLabel)

	// Persistence.
	r.Post("/save", h.Save)
	r.Post("/sync", h.Sync)

	r.Get("/search", h.Search)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
