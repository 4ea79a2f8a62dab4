// Package conversation defines the persisted conversation bundle and its
// normalization rules.
package conversation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Bundle format identifiers written into every conversation file.
const (
	FormatName     = "conversation_bundle"
	FormatVersion  = "1.0"
	Charset        = "utf-8"
	LineEndings    = "lf"
	DefaultKind    = "dedalus"
	DefaultModel   = "anthropic/claude-opus-4-5"
	MaxNameLength  = 120
	idPrefix       = "conversation"
	timestampShape = "2006-01-02T15:04:05.000Z07:00"
)

// Roles that may be persisted. System messages are never stored.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Bundle is the full persisted JSON record for one conversation.
type Bundle struct {
	Format       Format     `json:"format"`
	Encoding     Encoding   `json:"encoding"`
	Conversation Meta       `json:"conversation"`
	Model        Model      `json:"model"`
	Messages     Transcript `json:"messages"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
}

// Format names the bundle schema.
type Format struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Encoding records how the file is encoded on disk.
type Encoding struct {
	Charset     string `json:"charset"`
	LineEndings string `json:"line_endings"`
}

// Meta identifies the conversation and its owner.
type Meta struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NameHashSHA256 string `json:"name_hash_sha256"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	UserID         string `json:"userId,omitempty"`
	UserName       string `json:"userName,omitempty"`
}

// Model is the last model used for the conversation.
type Model struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// Transcript holds the ordered messages plus auxiliary fields.
type Transcript struct {
	Messages  []Message `json:"messages"`
	Filepaths []string  `json:"filepaths"`
	Tools     []string  `json:"tools"`
	Notes     string    `json:"notes"`
}

// Message is a single stored chat message.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

var (
	invalidIDChars  = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
	numberedIDRegex = regexp.MustCompile(`(?i)^conversation(\d+)$`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// SanitizeID strips every character outside [a-zA-Z0-9_-]. An empty result
// means the id is absent.
func SanitizeID(raw string) string {
	return invalidIDChars.ReplaceAllString(raw, "")
}

// IDNumber returns N for ids of the form conversation<N>.
func IDNumber(id string) (int, bool) {
	m := numberedIDRegex.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// IDForNumber formats the sequential id conversation<N>.
func IDForNumber(n int) string {
	return idPrefix + strconv.Itoa(n)
}

// DefaultTitle is the display name used when a conversation has none.
func DefaultTitle(id string) string {
	if n, ok := IDNumber(id); ok {
		return fmt.Sprintf("Conversation %d", n)
	}
	return id
}

// NormalizeTitle trims a stored name and maps "conversationN" style names to
// their display form.
func NormalizeTitle(raw, id string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, "NONE") {
		return DefaultTitle(id)
	}
	if n, ok := IDNumber(trimmed); ok {
		return fmt.Sprintf("Conversation %d", n)
	}
	return trimmed
}

// SanitizeName collapses whitespace and caps the name at MaxNameLength runes.
// The result is empty when nothing but whitespace was supplied.
func SanitizeName(raw string) string {
	collapsed := strings.TrimSpace(whitespaceRun.ReplaceAllString(raw, " "))
	runes := []rune(collapsed)
	if len(runes) > MaxNameLength {
		collapsed = strings.TrimSpace(string(runes[:MaxNameLength]))
	}
	return collapsed
}

// NameHash returns the hex sha256 of a display name.
func NameHash(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])
}

// Timestamp formats t the way bundle timestamps are stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampShape)
}

// NewMessageID returns a fresh message id.
func NewMessageID() string {
	return "msg-" + uuid.NewString()
}

// New returns a fresh bundle for id.
func New(id string, now time.Time) *Bundle {
	b := &Bundle{}
	b.Normalize(id, now)
	return b
}

// Normalize fills defaults and repairs a loaded bundle in place. The id is
// always taken from the file name, never from the file contents.
func (b *Bundle) Normalize(id string, now time.Time) {
	ts := Timestamp(now)

	b.Format = Format{Name: FormatName, Version: FormatVersion}
	b.Encoding = Encoding{Charset: Charset, LineEndings: LineEndings}

	b.Conversation.ID = id
	b.Conversation.Name = NormalizeTitle(b.Conversation.Name, id)
	b.Conversation.NameHashSHA256 = NameHash(b.Conversation.Name)
	if strings.TrimSpace(b.Conversation.CreatedAt) == "" {
		b.Conversation.CreatedAt = ts
	}
	if strings.TrimSpace(b.Conversation.UpdatedAt) == "" {
		b.Conversation.UpdatedAt = b.Conversation.CreatedAt
	}

	if strings.TrimSpace(b.Model.Kind) == "" {
		b.Model.Kind = DefaultKind
	}
	if strings.TrimSpace(b.Model.Name) == "" {
		b.Model.Name = DefaultModel
	}

	b.Messages.Messages = normalizeMessages(b.Messages.Messages, b.Conversation.CreatedAt)
	if b.Messages.Filepaths == nil {
		b.Messages.Filepaths = []string{}
	}
	if b.Messages.Tools == nil {
		b.Messages.Tools = []string{}
	}
}

// normalizeMessages keeps user/assistant messages, assigns missing ids and
// drops repeated ids, keeping the first occurrence.
func normalizeMessages(in []Message, fallbackTS string) []Message {
	out := make([]Message, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, m := range in {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != RoleUser && role != RoleAssistant {
			continue
		}
		m.Role = role
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			m.ID = NewMessageID()
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if strings.TrimSpace(m.CreatedAt) == "" {
			m.CreatedAt = fallbackTS
		}
		out = append(out, m)
	}
	return out
}

// Rename sets a new display name (already sanitized) and refreshes the hash.
func (b *Bundle) Rename(name string) {
	b.Conversation.Name = name
	b.Conversation.NameHashSHA256 = NameHash(name)
}

// Touch bumps updated_at. It never moves backwards.
func (b *Bundle) Touch(now time.Time) {
	if ts := Timestamp(now); ts > b.Conversation.UpdatedAt {
		b.Conversation.UpdatedAt = ts
	}
}

// MergeMessages appends every incoming message whose id is not stored yet.
// Stored messages are never dropped or reordered. Returns the number added.
func (b *Bundle) MergeMessages(incoming []Message) int {
	seen := make(map[string]struct{}, len(b.Messages.Messages))
	for _, m := range b.Messages.Messages {
		seen[m.ID] = struct{}{}
	}
	added := 0
	for _, m := range incoming {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		b.Messages.Messages = append(b.Messages.Messages, m)
		added++
	}
	return added
}

// AppendAssistant appends an assistant message unless text is blank or it
// repeats the last assistant message exactly. Reports whether it appended.
func (b *Bundle) AppendAssistant(text string, now time.Time) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	msgs := b.Messages.Messages
	if n := len(msgs); n > 0 && msgs[n-1].Role == RoleAssistant && msgs[n-1].Text == text {
		return false
	}
	b.Messages.Messages = append(msgs, Message{
		ID:        NewMessageID(),
		Role:      RoleAssistant,
		Text:      text,
		CreatedAt: Timestamp(now),
	})
	return true
}

// CountUserMessages returns how many stored messages have the user role.
func (b *Bundle) CountUserMessages() int {
	n := 0
	for _, m := range b.Messages.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// SetOwner records the owning user when the values are non-empty and mirrors
// them into the notes field as "userId:" / "userName:" lines.
func (b *Bundle) SetOwner(userID, userName string) {
	userID = strings.TrimSpace(userID)
	userName = strings.TrimSpace(userName)
	if userID != "" {
		b.Conversation.UserID = userID
		b.Messages.Notes = setNoteLine(b.Messages.Notes, "userId", userID)
	}
	if userName != "" {
		b.Conversation.UserName = userName
		b.Messages.Notes = setNoteLine(b.Messages.Notes, "userName", userName)
	}
}

func setNoteLine(notes, key, value string) string {
	prefix := key + ":"
	lines := strings.Split(notes, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), prefix) || strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, l)
	}
	kept = append(kept, prefix+" "+value)
	return strings.Join(kept, "\n")
}
