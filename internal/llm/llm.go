// Package llm calls generative models with a fixed three-turn exchange:
// the instruction as a user turn, a model turn acknowledging it, and the
// user prompt.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrInvalidConfig indicates an unusable generator configuration.
	ErrInvalidConfig = errors.New("invalid generation configuration")

	// ErrGenerationFailed indicates the model call failed.
	ErrGenerationFailed = errors.New("generation failed")
)

// Exchange is the conversation sent for one answer.
type Exchange struct {
	// System is the instruction, sent as the first user turn.
	System string
	// Priming is the model's acknowledgement of the instruction.
	Priming string
	// User is the prompt carrying context and question.
	User string
}

// Decoding holds sampling parameters.
type Decoding struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
	TopK        int
}

// DefaultDecoding returns the parameters used for grounded answers.
func DefaultDecoding() Decoding {
	return Decoding{Temperature: 0.3, MaxTokens: 1000, TopP: 0.8, TopK: 10}
}

// Generator produces the model's reply text. Empty text is not an error.
type Generator interface {
	Generate(ctx context.Context, ex Exchange, dec Decoding) (string, error)
}
