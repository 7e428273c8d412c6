package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the API under /api. metrics may be nil.
func NewRouter(apiHandler *APIHandler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", apiHandler.ListConversationsHandler)
			r.Post("/", apiHandler.CreateConversationHandler)

			r.Get("/active", apiHandler.GetActiveHandler)
			r.Put("/active", apiHandler.SelectActiveHandler)

			r.Get("/{conversationID}", apiHandler.GetConversationHandler)
			r.Patch("/{conversationID}", apiHandler.RenameConversationHandler)
			r.Delete("/{conversationID}", apiHandler.DeleteConversationHandler)
			r.Post("/{conversationID}/messages", apiHandler.PostMessageHandler)
		})
	})

	return r
}
