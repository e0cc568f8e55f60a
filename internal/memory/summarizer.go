package memory

import (
	"context"
	"fmt"
	"strings"

	"ragchat/internal/domain"
)

const summaryPrompt = `Progressively summarize the lines of conversation provided, adding onto the previous summary and returning a new summary.

Current summary:
%s

New lines of conversation:
%s

New summary:`

// LLMSummarizer asks the chat model to extend the running summary.
type LLMSummarizer struct {
	LLM domain.LLM
}

var _ domain.Summarizer = LLMSummarizer{}

// Summarize returns the model's new summary.
func (s LLMSummarizer) Summarize(ctx context.Context, summary string, turns []domain.Turn) (string, error) {
	if s.LLM == nil {
		return "", domain.ErrLLMUnavailable
	}
	prompt := fmt.Sprintf(summaryPrompt, summary, renderTurns(turns))
	out, err := s.LLM.Complete(ctx, []domain.Message{{Role: domain.RoleUser, Content: prompt}})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}
