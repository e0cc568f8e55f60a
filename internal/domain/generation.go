package domain

import (
	"fmt"
	"math"
)

// GenerationConfig holds the LLM sampling parameters. It is a value type;
// use With to derive a changed copy.
type GenerationConfig struct {
	Temperature     float64 `yaml:"temperature" toml:"temperature" json:"temperature"`
	MaxTokens       int     `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`
	TopP            float64 `yaml:"top_p" toml:"top_p" json:"top_p"`
	PresencePenalty float64 `yaml:"presence_penalty" toml:"presence_penalty" json:"presence_penalty"`
}

// DefaultGenerationConfig returns the parameters used when none are configured.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.7,
		MaxTokens:       1024,
		TopP:            0.95,
		PresencePenalty: 0.1,
	}
}

// GenerationUpdate is a partial change; nil fields keep their value.
type GenerationUpdate struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxTokens       *int     `json:"max_tokens,omitempty"`
	TopP            *float64 `json:"top_p,omitempty"`
	PresencePenalty *float64 `json:"presence_penalty,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u GenerationUpdate) Empty() bool {
	return u.Temperature == nil && u.MaxTokens == nil && u.TopP == nil && u.PresencePenalty == nil
}

// With returns a copy of c with u applied. The receiver is never modified.
func (c GenerationConfig) With(u GenerationUpdate) (GenerationConfig, error) {
	next := c
	if u.Temperature != nil {
		next.Temperature = *u.Temperature
	}
	if u.MaxTokens != nil {
		next.MaxTokens = *u.MaxTokens
	}
	if u.TopP != nil {
		next.TopP = *u.TopP
	}
	if u.PresencePenalty != nil {
		next.PresencePenalty = *u.PresencePenalty
	}
	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

// Validate checks every parameter against the range accepted by
// OpenAI-compatible APIs.
func (c GenerationConfig) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"temperature", c.Temperature},
		{"top_p", c.TopP},
		{"presence_penalty", c.PresencePenalty},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("%w: %s must be a finite number", ErrInvalidInput, f.name)
		}
	}
	switch {
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("%w: temperature %v not in [0,2]", ErrInvalidInput, c.Temperature)
	case c.MaxTokens <= 0:
		return fmt.Errorf("%w: max_tokens %d must be positive", ErrInvalidInput, c.MaxTokens)
	case c.TopP <= 0 || c.TopP > 1:
		return fmt.Errorf("%w: top_p %v not in (0,1]", ErrInvalidInput, c.TopP)
	case c.PresencePenalty < -2 || c.PresencePenalty > 2:
		return fmt.Errorf("%w: presence_penalty %v not in [-2,2]", ErrInvalidInput, c.PresencePenalty)
	}
	return nil
}
