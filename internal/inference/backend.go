package inference

import "context"

// Candidate is one possible next token with its log-probability under the model.
type Candidate struct {
	ID      int
	LogProb float64
}

// OpenRequest describes the weights and placement an Engine must serve.
type OpenRequest struct {
	WeightsPath string
	Runtime     RuntimeConfig
	ContextSize int
}

// Backend starts compute engines. It is the only part of the host that touches the device.
type Backend interface {
	Open(ctx context.Context, req OpenRequest) (Engine, error)
}

// Engine exposes the primitives of a loaded model. Sampling policy lives in the host,
// the engine only scores the next position.
type Engine interface {
	// Tokenize encodes text. addSpecial prepends the model's BOS token when it uses one.
	Tokenize(ctx context.Context, text string, addSpecial bool) ([]int, error)
	// Detokenize turns ids back into text.
	Detokenize(ctx context.Context, tokens []int) (string, error)
	// NextTokens returns the topK most likely next tokens after the sequence, raw model
	// distribution, highest first.
	NextTokens(ctx context.Context, tokens []int, topK int) ([]Candidate, error)
	// Close releases the model.
	Close() error
}
