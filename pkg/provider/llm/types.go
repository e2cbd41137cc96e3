package llm

import "errors"

// ErrTruncated is returned when the model stopped at its token limit, which
// leaves a structured reply unparseable.
var ErrTruncated = errors.New("llm: reply truncated at token limit")

// Message is one chat message; Role is "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// ModelCapabilities are the limits of one model, zero when unknown.
type ModelCapabilities struct {
	ContextWindow    int
	MaxOutputTokens  int
	SupportsJSONMode bool
}

// EstimateTokens approximates the prompt size of messages at four bytes per
// token plus four tokens of framing per message. English prose rarely comes
// out much higher.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += (len(m.Content)+3)/4 + 4
	}
	return total
}
