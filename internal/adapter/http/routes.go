package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router. chatLimit,
// when non-nil, wraps only the chat endpoint.
func MountRoutes(r chi.Router, h *Handlers, chatLimit func(http.Handler) http.Handler) {
	r.Get("/health", Health)

	r.Route("/api", func(r chi.Router) {
		// Chat
		if chatLimit != nil {
			r.With(chatLimit).Post("/chat", h.PostChat)
		} else {
			r.Post("/chat", h.PostChat)
		}

		// Conversations
		r.Get("/conversations", h.ListConversations)
		r.Post("/conversations", h.CreateConversation)
		r.Get("/conversations/active", h.LoadActiveConversation)
		r.Get("/conversations/{id}", h.LoadConversation)
		r.Patch("/conversations/{id}", h.RenameConversation)
		r.Delete("/conversations/{id}", h.DeleteConversation)

		// Dashboard
		r.Get("/dashboard/controls", h.GetControls)
		r.Patch("/dashboard/controls", h.PatchControls)
	})
}
