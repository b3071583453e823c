// Package scoring builds the lead-scoring request, calls the reasoning
// model with a forced JSON schema, and normalizes the result so score and
// label always agree.
package scoring

// Input is one message to score, with the tenant context that shapes the
// prompt.
type Input struct {
	Message       string
	ThreadContext string
	Source        string
	SenderName    string
	Profile       ProfileContext
}

// Score is the structured result the model must produce.
type Score struct {
	IntentScore    float64  `json:"intent_score"`
	IntentLabel    string   `json:"intent_label"`
	SummaryBullets []string `json:"summary_bullets"`
	SuggestedReply string   `json:"suggested_reply"`
}

// Usage is the token accounting for one scoring call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Result is a validated score plus call metadata, persisted on the lead.
type Result struct {
	Score     Score
	Usage     Usage
	LatencyMs int64
	Model     string
}
