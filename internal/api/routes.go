package api

import (
	"net/http"
	"time"

	myMiddleware "campus-chat/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(h *Handler, auth *myMiddleware.AuthMiddleware) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Get("/healthz", h.Health)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)

		// WebSocket (Real-time)
		r.Get("/ws", h.ServeWs)

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/contact-requests", h.StartConversation)
			r.Get("/conversations", h.ListConversations)
			r.Route("/conversations/{conversationID}", func(r chi.Router) {
				r.Get("/messages", h.ListMessages)
				r.Post("/messages", h.SendMessage)
				r.Post("/read", h.MarkRead)
			})
			r.Get("/notifications/unread", h.UnreadSummary)
		})
	})

	return r
}
