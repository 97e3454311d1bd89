package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Capture pipeline.
	r.Post("/process", h.Process)

	// Records.
	r.Get("/records", h.ListRecords)
	r.Get("/records/{id}", h.GetRecord)
	r.Get("/records/{id}/related", h.RelatedRecords)
	r.Delete("/records/{id}", h.DeleteRecord)

	// Feed subscriptions.
	r.Get("/feeds", h.ListFeeds)
	r.Post("/feeds", h.AddFeed)
	r.Delete("/feeds/{id}", h.RemoveFeed)
	r.Post("/feeds/refresh", h.RefreshFeeds)

	// Search, tags, stats.
	r.Get("/search", h.Search)
	r.Get("/tags", h.Tags)
	r.Get("/stats", h.Stats)

	// Note file viewer.
	r.Get("/notes/*", h.GetNote)

	// Redacted configuration snapshot.
	r.Get("/config", h.Config)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
