package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/UnknownOlympus/magma/internal/gguf"
)

// Decoding policy used for every narrative.
const (
	DefaultMaxLength     = 1000
	DefaultTemperature   = 0.7
	DefaultTopP          = 1.0
	DefaultTopK          = 50
	DefaultNoRepeatNGram = 3
)

// GenerationRequest carries the decoding parameters of one generate call.
type GenerationRequest struct {
	Prompt            string
	MaxLength         int // prompt plus continuation, in tokens
	Temperature       float64
	TopP              float64
	TopK              int
	NoRepeatNGramSize int
	DoSample          bool
	NumSequences      int
}

// DefaultRequest returns the fixed decoding policy for prompt. Only the length is up to the caller.
func DefaultRequest(prompt string, maxLength int) GenerationRequest {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	return GenerationRequest{
		Prompt:            prompt,
		MaxLength:         maxLength,
		Temperature:       DefaultTemperature,
		TopP:              DefaultTopP,
		TopK:              DefaultTopK,
		NoRepeatNGramSize: DefaultNoRepeatNGram,
		DoSample:          true,
		NumSequences:      1,
	}
}

// Validate rejects requests the host cannot serve.
func (r GenerationRequest) Validate() error {
	switch {
	case r.MaxLength <= 0:
		return fmt.Errorf("max length must be positive, got %d", r.MaxLength)
	case r.NumSequences != 1:
		return fmt.Errorf("only one returned sequence is supported, got %d", r.NumSequences)
	case r.DoSample && r.Temperature <= 0:
		return fmt.Errorf("temperature must be positive when sampling, got %v", r.Temperature)
	case r.TopP < 0 || r.TopP > 1:
		return fmt.Errorf("top-p must be within [0, 1], got %v", r.TopP)
	case r.TopK < 0:
		return fmt.Errorf("top-k must not be negative, got %d", r.TopK)
	case r.NoRepeatNGramSize < 0:
		return fmt.Errorf("no-repeat n-gram size must not be negative, got %d", r.NoRepeatNGramSize)
	}

	return nil
}

// Output is the raw result of Generate: the (truncated) prompt tokens followed by the continuation.
type Output struct {
	Tokens       []int
	PromptLength int
}

// Continuation returns the generated tokens only.
func (o Output) Continuation() []int {
	if o.PromptLength >= len(o.Tokens) {
		return nil
	}

	return o.Tokens[o.PromptLength:]
}

// candidatePool is how many next-token candidates are scored when top-k is disabled.
const candidatePool = 100

// Session is one loaded model. It is created once by Load and read-only afterwards, except
// for the sampler state. Generate must not be called concurrently on the same Session.
type Session struct {
	runtime     RuntimeConfig
	weights     string
	metadata    *gguf.Metadata
	tokenizer   Tokenizer
	engine      Engine
	contextSize int
	sampler     *Sampler
}

func newSession(
	runtime RuntimeConfig,
	weights string,
	md *gguf.Metadata,
	tokenizer Tokenizer,
	engine Engine,
	contextSize int,
	seed uint64,
) *Session {
	return &Session{
		runtime:     runtime,
		weights:     weights,
		metadata:    md,
		tokenizer:   tokenizer,
		engine:      engine,
		contextSize: contextSize,
		sampler:     NewSampler(seed),
	}
}

// Runtime returns the placement resolved at load time.
func (s *Session) Runtime() RuntimeConfig { return s.runtime }

// WeightsPath returns the file the engine serves.
func (s *Session) WeightsPath() string { return s.weights }

// FileType returns the storage type of the served weights.
func (s *Session) FileType() gguf.FileType { return s.metadata.FileType }

// Tokenizer returns the special token ids of the model.
func (s *Session) Tokenizer() Tokenizer { return s.tokenizer }

// Generate runs bounded-length sampling. The prompt is truncated to req.MaxLength tokens and
// generation stops at the end-of-sequence token or when the sequence reaches req.MaxLength
// (or the engine's context size, if smaller).
func (s *Session) Generate(ctx context.Context, req GenerationRequest) (Output, error) {
	if err := req.Validate(); err != nil {
		return Output{}, err
	}

	limit := req.MaxLength
	if s.contextSize > 0 && s.contextSize < limit {
		limit = s.contextSize
	}

	tokens, err := s.engine.Tokenize(ctx, req.Prompt, true)
	if err != nil {
		return Output{}, fmt.Errorf("failed to tokenize prompt: %w", err)
	}
	if len(tokens) > limit {
		tokens = tokens[:limit]
	}
	promptLength := len(tokens)

	pool := req.TopK
	if pool <= 0 {
		pool = candidatePool
	}

	for len(tokens) < limit {
		if err = ctx.Err(); err != nil {
			return Output{}, err
		}

		cands, nextErr := s.engine.NextTokens(ctx, tokens, pool)
		if nextErr != nil {
			return Output{}, fmt.Errorf("failed to score position %d: %w", len(tokens), nextErr)
		}

		next, sampleErr := s.sampler.Sample(cands, tokens, req)
		if errors.Is(sampleErr, ErrNoCandidates) {
			break
		}
		if sampleErr != nil {
			return Output{}, sampleErr
		}

		tokens = append(tokens, next)
		if next == s.tokenizer.EOSID {
			break
		}
	}

	return Output{Tokens: tokens, PromptLength: promptLength}, nil
}

// Decode returns the continuation as text: prompt echo and special tokens removed, whitespace trimmed.
func (s *Session) Decode(ctx context.Context, out Output) (string, error) {
	continuation := out.Continuation()
	kept := make([]int, 0, len(continuation))
	for _, id := range continuation {
		if !s.tokenizer.IsSpecial(id) {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		return "", nil
	}

	text, err := s.engine.Detokenize(ctx, kept)
	if err != nil {
		return "", fmt.Errorf("failed to detokenize output: %w", err)
	}

	return strings.TrimSpace(text), nil
}

// Close stops the engine.
func (s *Session) Close() error {
	return s.engine.Close()
}
