package inference_test

import (
	"context"
	"testing"

	"github.com/UnknownOlympus/magma/internal/gguf"
	"github.com/UnknownOlympus/magma/internal/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSession(t *testing.T, engine *fakeEngine) *inference.Session {
	t.Helper()

	dir := t.TempDir()
	writeModel(t, dir, "model.gguf", gguf.FileTypeF32, false)

	session, err := inference.Load(context.Background(), dir, &fakeBackend{engine: engine},
		inference.LoadOptions{Accelerator: accelerator(false), Seed: 7})
	require.NoError(t, err)

	return session
}

func TestDefaultRequest(t *testing.T) {
	req := inference.DefaultRequest("prompt", 0)

	assert.Equal(t, inference.GenerationRequest{
		Prompt:            "prompt",
		MaxLength:         1000,
		Temperature:       0.7,
		TopP:              1.0,
		TopK:              50,
		NoRepeatNGramSize: 3,
		DoSample:          true,
		NumSequences:      1,
	}, req)
	require.NoError(t, req.Validate())
	assert.Equal(t, 200, inference.DefaultRequest("prompt", 200).MaxLength)
}

func TestGenerationRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*inference.GenerationRequest)
	}{
		{"zero length", func(r *inference.GenerationRequest) { r.MaxLength = 0 }},
		{"several sequences", func(r *inference.GenerationRequest) { r.NumSequences = 2 }},
		{"zero temperature", func(r *inference.GenerationRequest) { r.Temperature = 0 }},
		{"top-p above one", func(r *inference.GenerationRequest) { r.TopP = 1.5 }},
		{"negative top-k", func(r *inference.GenerationRequest) { r.TopK = -1 }},
		{"negative n-gram", func(r *inference.GenerationRequest) { r.NoRepeatNGramSize = -3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := inference.DefaultRequest("prompt", 100)
			tt.modify(&req)

			require.Error(t, req.Validate())
		})
	}
}

func TestSession_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("stops at end of sequence and decodes the continuation", func(t *testing.T) {
		engine := newFakeEngine(only(3), only(6), only(7), only(eosID))
		session := loadSession(t, engine)

		out, err := session.Generate(ctx, inference.DefaultRequest("Location: granite", 100))
		require.NoError(t, err)

		assert.Equal(t, 3, out.PromptLength)
		assert.Equal(t, []int{bosID, 2, 4, 3, 6, 7, eosID}, out.Tokens)
		assert.Equal(t, []int{3, 6, 7, eosID}, out.Continuation())
		assert.Len(t, engine.seen, 4)

		text, err := session.Decode(ctx, out)
		require.NoError(t, err)
		assert.Equal(t, "basalt formed here", text)
	})

	t.Run("prompt is truncated to the maximum length", func(t *testing.T) {
		engine := newFakeEngine(only(3))
		session := loadSession(t, engine)

		out, err := session.Generate(ctx, inference.DefaultRequest("Location: granite shale formed here", 3))
		require.NoError(t, err)

		assert.Equal(t, []int{bosID, 2, 4}, out.Tokens)
		assert.Equal(t, 3, out.PromptLength)
		assert.Empty(t, out.Continuation())
		assert.Empty(t, engine.seen)
	})

	t.Run("total length is bounded", func(t *testing.T) {
		engine := newFakeEngine(only(3), only(4), only(5), only(6), only(7))
		session := loadSession(t, engine)

		out, err := session.Generate(ctx, inference.DefaultRequest("Location:", 4))
		require.NoError(t, err)

		assert.Len(t, out.Tokens, 4)
		assert.Equal(t, []int{3, 4}, out.Continuation())
	})

	t.Run("repeated trigram is never emitted", func(t *testing.T) {
		// "basalt formed here basalt formed" must not be followed by "here" again.
		engine := newFakeEngine(
			only(3), only(6), only(7), only(3), only(6),
			[]inference.Candidate{{ID: 7, LogProb: 0}, {ID: 8, LogProb: -5}},
		)
		session := loadSession(t, engine)
		req := inference.DefaultRequest("Location:", 100)
		req.DoSample = false

		out, err := session.Generate(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, []int{3, 6, 7, 3, 6, 8, eosID}, out.Continuation())
	})

	t.Run("engine failure is returned", func(t *testing.T) {
		engine := newFakeEngine()
		engine.err = errEngine
		session := loadSession(t, engine)

		_, err := session.Generate(ctx, inference.DefaultRequest("Location:", 100))

		require.ErrorIs(t, err, errEngine)
	})

	t.Run("invalid request is rejected before tokenizing", func(t *testing.T) {
		engine := newFakeEngine()
		session := loadSession(t, engine)
		req := inference.DefaultRequest("Location:", 100)
		req.NumSequences = 3

		_, err := session.Generate(ctx, req)

		require.Error(t, err)
		assert.Empty(t, engine.seen)
	})

	t.Run("cancelled context stops generation", func(t *testing.T) {
		session := loadSession(t, newFakeEngine(only(3)))
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := session.Generate(cancelled, inference.DefaultRequest("Location:", 100))

		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestSession_Decode(t *testing.T) {
	ctx := context.Background()

	t.Run("only special tokens decode to empty text", func(t *testing.T) {
		session := loadSession(t, newFakeEngine())

		text, err := session.Decode(ctx, inference.Output{Tokens: []int{bosID, 2, eosID}, PromptLength: 2})

		require.NoError(t, err)
		assert.Empty(t, text)
	})

	t.Run("detokenize failure is returned", func(t *testing.T) {
		engine := newFakeEngine()
		engine.detokErr = errEngine
		session := loadSession(t, engine)

		_, err := session.Decode(ctx, inference.Output{Tokens: []int{bosID, 3}, PromptLength: 1})

		require.ErrorIs(t, err, errEngine)
	})
}

func TestSession_Close(t *testing.T) {
	engine := newFakeEngine()
	session := loadSession(t, engine)

	require.NoError(t, session.Close())
	assert.True(t, engine.closed)
}
