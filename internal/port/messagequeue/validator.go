package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks that data is well-formed for subject before it is
// published. Unknown subjects only need to be valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectChatCompleted:
		var p ChatCompletedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.ConversationID == "" || p.Model == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errMissingField)
		}
	case SubjectChatFailed:
		var p ChatFailedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.ConversationID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errMissingField)
		}
	}
	return nil
}

var errMissingField = errors.New("missing required field")
