package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(deps Deps, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(deps)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/workspaces/{ws}/scenes", func(r chi.Router) {
		r.Get("/", h.ListScenes)
		r.Post("/", h.CreateScene)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetScene)
			r.Delete("/", h.DeleteScene)
			r.Get("/content", h.GetContent)
			r.Put("/content", h.PutContent)
			r.Get("/preview", h.GetPreview)
			r.Put("/preview", h.PutPreview)
		})
	})

	// Live view.
	r.Get("/view", h.GetView)
	r.Post("/view/open", h.OpenView)
	r.Put("/view/content", h.SaveView)
	r.Post("/session/logout", h.Logout)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
