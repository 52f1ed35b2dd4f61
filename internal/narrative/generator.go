// Package narrative turns geological records into a free-text description.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnknownOlympus/magma/internal/inference"
	"github.com/UnknownOlympus/magma/internal/metrics"
	"github.com/UnknownOlympus/magma/internal/models"
	"github.com/UnknownOlympus/magma/internal/prompt"
)

// FallbackText is returned whenever a narrative could not be generated.
const FallbackText = "Basic geological information is available above."

// ErrEmptyGeneration means the model produced no text after the prompt.
var ErrEmptyGeneration = errors.New("model produced an empty continuation")

// Host is the loaded model session. *inference.Session implements it.
type Host interface {
	Generate(ctx context.Context, req inference.GenerationRequest) (inference.Output, error)
	Decode(ctx context.Context, out inference.Output) (string, error)
}

// Result is always displayable: Text is the narrative, or FallbackText with Fallback set and
// Err carrying the recovered failure.
type Result struct {
	Text     string
	Fallback bool
	Err      error
}

// Generator builds prompts and runs them through the host. It does not serialize calls;
// callers sharing one host must not invoke Describe concurrently.
type Generator struct {
	host      Host
	maxLength int
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewGenerator returns a Generator. maxLength bounds prompt plus continuation in tokens,
// 0 selects inference.DefaultMaxLength.
func NewGenerator(host Host, maxLength int, log *slog.Logger, metrics *metrics.Metrics) *Generator {
	if maxLength <= 0 {
		maxLength = inference.DefaultMaxLength
	}

	return &Generator{host: host, maxLength: maxLength, log: log, metrics: metrics}
}

// Describe returns the narrative for a location. It never fails: any error while tokenizing,
// generating or decoding is logged and replaced by FallbackText.
func (g *Generator) Describe(ctx context.Context, location string, dataset models.Dataset) Result {
	startTime := time.Now()
	g.metrics.ActiveGenerations.Inc()
	defer g.metrics.ActiveGenerations.Dec()

	text, tokens, err := g.generate(ctx, location, dataset)
	g.metrics.GenerationSeconds.Observe(time.Since(startTime).Seconds())

	if err != nil {
		g.metrics.Narratives.WithLabelValues("fallback").Inc()
		g.log.ErrorContext(ctx, "Narrative generation failed, using fallback",
			"location", location, "units", len(dataset), "error", err)
		return Result{Text: FallbackText, Fallback: true, Err: err}
	}

	g.metrics.Narratives.WithLabelValues("generated").Inc()
	g.metrics.GeneratedTokens.Observe(float64(tokens))
	g.log.InfoContext(ctx, "Narrative generated",
		"location", location, "units", len(dataset), "tokens", tokens, "duration", time.Since(startTime))

	return Result{Text: text}
}

func (g *Generator) generate(ctx context.Context, location string, dataset models.Dataset) (string, int, error) {
	req := inference.DefaultRequest(prompt.Build(location, dataset), g.maxLength)

	out, err := g.host.Generate(ctx, req)
	if err != nil {
		return "", 0, fmt.Errorf("generate: %w", err)
	}

	text, err := g.host.Decode(ctx, out)
	if err != nil {
		return "", 0, fmt.Errorf("decode: %w", err)
	}
	if text == "" {
		return "", 0, ErrEmptyGeneration
	}

	return text, len(out.Continuation()), nil
}
