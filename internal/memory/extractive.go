package memory

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"ragchat/internal/domain"
)

// Extractive keeps the highest-scoring sentences of the summary and new
// turns, ranked by normalized word frequency. It needs no LLM, so it serves
// as the fallback when the model cannot be reached.
type Extractive struct {
	MaxSentences int

	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

var _ domain.Summarizer = (*Extractive)(nil)

// NewExtractive returns an Extractive summarizer keeping at most
// maxSentences sentences.
func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 8
	}
	return &Extractive{
		MaxSentences:    maxSentences,
		tokenPattern:    regexp.MustCompile(`\p{Han}|\p{L}+(?:['’]\p{L}+)*`),
		sentencePattern: regexp.MustCompile(`[^.!?。！？\n]+[.!?。！？]*`),
		stopwords:       stopwords(),
	}
}

// Summarize never fails.
func (s *Extractive) Summarize(_ context.Context, summary string, turns []domain.Turn) (string, error) {
	var b strings.Builder
	b.WriteString(summary)
	for _, t := range turns {
		b.WriteString("\n")
		b.WriteString(roleLabel(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return s.rank(b.String()), nil
}

func (s *Extractive) rank(text string) string {
	var sentences []string
	for _, sent := range s.sentencePattern.FindAllString(text, -1) {
		if sent = strings.TrimSpace(sent); sent != "" {
			sentences = append(sentences, sent)
		}
	}
	if len(sentences) <= s.MaxSentences {
		return strings.Join(sentences, " ")
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		total := 0.0
		for _, tok := range toks {
			total += freq[tok] / maxF
		}
		// Long sentences would otherwise always win.
		if len(toks) > 0 {
			total /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{i, total}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, s.MaxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}

func (s *Extractive) tokens(text string) []string {
	raw := s.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := s.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func stopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "it", "this", "that", "from", "so", "into", "about", "can", "will", "just", "user", "assistant",
		"的", "了", "是", "在", "我", "你", "他", "和", "也", "就",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
