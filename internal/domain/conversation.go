package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role of a conversation participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Message is one element of an LLM request.
type Message struct {
	Role    Role
	Content string
}

// MemoryMode selects the conversation retention policy.
type MemoryMode string

const (
	MemoryBuffer  MemoryMode = "buffer"
	MemorySummary MemoryMode = "summary"
)

// ParseMemoryMode accepts "buffer" or "summary" in any case.
func ParseMemoryMode(s string) (MemoryMode, error) {
	switch MemoryMode(strings.ToLower(strings.TrimSpace(s))) {
	case MemoryBuffer, "":
		return MemoryBuffer, nil
	case MemorySummary:
		return MemorySummary, nil
	}
	return "", fmt.Errorf("%w: memory mode %q", ErrInvalidInput, s)
}

// Provenance describes the retrieved context behind a grounded answer.
type Provenance struct {
	Sources        []SourceMetadata `json:"document_sources"`
	ContextPreview string           `json:"context_used"`
}

// AnswerResult is what the user receives for one input.
type AnswerResult struct {
	Text       string
	Grounded   bool
	Provenance *Provenance
	// Err is the generation failure, if any. Text already carries a
	// user-facing rendering of it.
	Err error
}

// ExchangeRecord is forwarded to the analytics sink.
type ExchangeRecord struct {
	UserInput  string         `json:"user_input"`
	AIResponse string         `json:"ai_response"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
