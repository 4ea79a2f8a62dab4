package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nmino-cmu/prodHacks-HeavyFingers-2026/internal/service"
)

const (
	headerUIStream = "x-vercel-ai-ui-message-stream"
	uiStreamV1     = "v1"
	sseDone        = "[DONE]"
)

// sseWriter frames UI message stream parts as server-sent events. After the
// first failed write every later write is a no-op.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	err     error
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(headerUIStream, uiStreamV1)
	w.WriteHeader(http.StatusOK)

	s := &sseWriter{w: w}
	s.flusher, _ = w.(http.Flusher)
	return s
}

// WritePart implements service.StreamWriter.
func (s *sseWriter) WritePart(p service.Part) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.write(data)
}

// Done writes the terminating [DONE] event.
func (s *sseWriter) Done() error {
	return s.write([]byte(sseDone))
}

func (s *sseWriter) write(data []byte) error {
	if s.err != nil {
		return s.err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.err = err
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
