package messagequeue

// ChatCompletedPayload is the schema for verdant.chat.completed.
type ChatCompletedPayload struct {
	ConversationID   string  `json:"conversation_id"`
	UserID           string  `json:"user_id,omitempty"`
	Model            string  `json:"model"`
	Tier             string  `json:"tier"`
	FailedOver       bool    `json:"failed_over"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CarbonKg         float64 `json:"carbon_kg"`
	CarbonSource     string  `json:"carbon_source"`
	DurationMs       int64   `json:"duration_ms"`
}

// ChatFailedPayload is the schema for verdant.chat.failed.
type ChatFailedPayload struct {
	ConversationID string   `json:"conversation_id"`
	UserID         string   `json:"user_id,omitempty"`
	ModelsTried    []string `json:"models_tried"`
	Error          string   `json:"error"`
}
