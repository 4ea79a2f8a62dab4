package conversation

import (
	"strings"
	"time"
)

// UIPart is one part of a UI message. Only text parts carry content the
// store keeps.
type UIPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// UIMessage is the message shape exchanged with the chat UI.
type UIMessage struct {
	ID      string   `json:"id"`
	Role    string   `json:"role"`
	Parts   []UIPart `json:"parts"`
	Content string   `json:"content,omitempty"`
}

// Text joins the text parts of m, falling back to the legacy content field.
func (m UIMessage) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == "text" || p.Type == "" {
			b.WriteString(p.Text)
		}
	}
	if b.Len() == 0 {
		return m.Content
	}
	return b.String()
}

// Summary is the list entry for one conversation.
type Summary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
	MessageCount int    `json:"messageCount"`
	Model        string `json:"model"`
	Active       bool   `json:"active"`
}

// View is a conversation projected for the UI.
type View struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Model    string      `json:"model"`
	Messages []UIMessage `json:"messages"`
}

// FromUI converts incoming UI messages into stored form. Messages with a
// role other than user/assistant or without text are skipped; missing ids
// are generated.
func FromUI(in []UIMessage, now time.Time) []Message {
	ts := Timestamp(now)
	out := make([]Message, 0, len(in))
	for _, m := range in {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != RoleUser && role != RoleAssistant {
			continue
		}
		text := m.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		id := SanitizeMessageID(m.ID)
		if id == "" {
			id = NewMessageID()
		}
		out = append(out, Message{ID: id, Role: role, Text: text, CreatedAt: ts})
	}
	return out
}

// SanitizeMessageID trims and caps a client supplied message id.
func SanitizeMessageID(raw string) string {
	id := strings.TrimSpace(raw)
	if len(id) > 200 {
		id = id[:200]
	}
	return id
}

// ToUI projects stored messages for the UI.
func ToUI(msgs []Message) []UIMessage {
	out := make([]UIMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, UIMessage{
			ID:    m.ID,
			Role:  m.Role,
			Parts: []UIPart{{Type: "text", Text: m.Text}},
		})
	}
	return out
}

// ViewOf projects a bundle for the UI.
func ViewOf(b *Bundle) View {
	return View{
		ID:       b.Conversation.ID,
		Name:     b.Conversation.Name,
		Model:    b.Model.Name,
		Messages: ToUI(b.Messages.Messages),
	}
}

// SummaryOf builds the list entry for a bundle.
func SummaryOf(b *Bundle, activeID string) Summary {
	return Summary{
		ID:           b.Conversation.ID,
		Name:         b.Conversation.Name,
		CreatedAt:    b.Conversation.CreatedAt,
		UpdatedAt:    b.Conversation.UpdatedAt,
		MessageCount: len(b.Messages.Messages),
		Model:        b.Model.Name,
		Active:       b.Conversation.ID == activeID,
	}
}

// LatestUserText returns the text of the last user message in msgs.
func LatestUserText(msgs []UIMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if strings.EqualFold(strings.TrimSpace(msgs[i].Role), RoleUser) {
			return msgs[i].Text()
		}
	}
	return ""
}
