// Package messagequeue defines the port for publishing chat turn events.
package messagequeue

import "context"

// Publisher sends events to subscribers outside the process.
type Publisher interface {
	// Publish sends data on subject. The request id of ctx travels with it.
	Publish(ctx context.Context, subject string, data []byte) error

	// IsConnected reports whether the connection is currently up.
	IsConnected() bool
}

// Subjects published by the chat pipeline.
const (
	SubjectChatCompleted = "verdant.chat.completed"
	SubjectChatFailed    = "verdant.chat.failed"
)

// StreamSubjects is the subject filter of the event stream.
const StreamSubjects = "verdant.>"
