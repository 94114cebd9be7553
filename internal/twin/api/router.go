// Package api implements the API.ai v1 intents and entities endpoints of the twin.
package api

import (
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/apiai-git/internal/twin/store"
	"github.com/wondertwin-ai/apiai-git/internal/twin/twincore"
)

// Handler holds all API handler state.
type Handler struct {
	store *store.MemoryStore
	mw    *twincore.Middleware
	token string

	writeMu sync.Mutex // serializes uniqueness checks with writes
}

// NewHandler creates a new API handler. An empty token accepts any bearer token.
func NewHandler(s *store.MemoryStore, mw *twincore.Middleware, token string) *Handler {
	return &Handler{store: s, mw: mw, token: token}
}

// Routes mounts the API.ai routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1/{kind}", func(r chi.Router) {
		r.Use(h.bearerAuthMiddleware)
		r.Use(h.mw.FaultInjection)

		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
}

// bearerAuthMiddleware validates the developer access token.
func (h *Handler) bearerAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth == "" {
			twincore.Error(w, http.StatusUnauthorized, "unauthorized",
				"Authorization header is missing. Include 'Authorization: Bearer <developer access token>'.")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token == "" {
			twincore.Error(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format.")
			return
		}
		if h.token != "" && token != h.token {
			twincore.Error(w, http.StatusUnauthorized, "unauthorized", "Invalid developer access token.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
