package http

import (
	"net/http"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/domain/settings"
	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/service"
)

const defaultBodyLimit = 1 << 20 // 1 MB

// Handlers holds the services the HTTP API exposes.
type Handlers struct {
	Chat          *service.ChatService
	Conversations *service.ConversationService
	Dashboard     *service.DashboardService
	// ChatBodyLimit bounds chat bodies, which carry base64 attachments.
	ChatBodyLimit int64
}

// PostChat handles POST /api/chat. Errors found before streaming are JSON
// responses; later failures are stream error parts.
func (h *Handlers) PostChat(w http.ResponseWriter, r *http.Request) {
	limit := h.ChatBodyLimit
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	req, ok := readJSON[service.ChatRequest](w, r, limit)
	if !ok {
		return
	}

	turn, err := h.Chat.Prepare(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	defer turn.Close()

	sse := newSSEWriter(w)
	turn.Stream(r.Context(), sse)
	if r.Context().Err() == nil {
		_ = sse.Done()
	}
}

// ListConversations handles GET /api/conversations.
func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := h.Conversations.List(r.Context())
	if err != nil {
		writeDomainError(w, err, "conversations not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

// CreateConversation handles POST /api/conversations.
func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	v, err := h.Conversations.Create(r.Context())
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// LoadActiveConversation handles GET /api/conversations/active.
func (h *Handlers) LoadActiveConversation(w http.ResponseWriter, r *http.Request) {
	v, err := h.Conversations.LoadActive(r.Context())
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// LoadConversation handles GET /api/conversations/{id}.
func (h *Handlers) LoadConversation(w http.ResponseWriter, r *http.Request) {
	v, err := h.Conversations.Load(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type renameRequest struct {
	Name string `json:"name"`
}

// RenameConversation handles PATCH /api/conversations/{id}.
func (h *Handlers) RenameConversation(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[renameRequest](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	sum, err := h.Conversations.Rename(r.Context(), urlParam(r, "id"), req.Name)
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// DeleteConversation handles DELETE /api/conversations/{id}.
func (h *Handlers) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Conversations.Delete(r.Context(), urlParam(r, "id"), r.URL.Query().Get("preferredActiveId"))
	if err != nil {
		writeDomainError(w, err, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetControls handles GET /api/dashboard/controls.
func (h *Handlers) GetControls(w http.ResponseWriter, r *http.Request) {
	c, err := h.Dashboard.Controls(r.Context())
	if err != nil {
		writeDomainError(w, err, "controls not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// PatchControls handles PATCH /api/dashboard/controls.
func (h *Handlers) PatchControls(w http.ResponseWriter, r *http.Request) {
	u, ok := readJSON[settings.Update](w, r, defaultBodyLimit)
	if !ok {
		return
	}
	c, err := h.Dashboard.Update(r.Context(), u)
	if err != nil {
		writeDomainError(w, err, "controls not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
