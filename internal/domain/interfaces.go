package domain

import "context"

// Embedder converts text into fixed-dimension vectors.
// Every vector returned by one Embedder has length Dimension().
type Embedder interface {
	ModelName() string
	Dimension() int
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// LLM is the external chat-completion service. Generation parameters are
// bound at construction time; a parameter change produces a new LLM.
type LLM interface {
	ModelName() string
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Summarizer folds conversation turns into a running summary.
type Summarizer interface {
	Summarize(ctx context.Context, summary string, turns []Turn) (string, error)
}

// Sink receives finished exchanges for analytics. Failures are never
// surfaced to the user.
type Sink interface {
	Record(ctx context.Context, rec ExchangeRecord) error
}
