package inference_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/UnknownOlympus/magma/internal/inference"
)

const (
	bosID = 0
	eosID = 1
)

// fakeEngine encodes whitespace-separated words against a fixed vocabulary and replays a
// script of next-token candidates, one entry per scored position.
type fakeEngine struct {
	mu       sync.Mutex
	vocab    []string
	script   [][]inference.Candidate
	calls    int
	seen     [][]int
	err      error
	detokErr error
	closed   bool
}

func newFakeEngine(script ...[]inference.Candidate) *fakeEngine {
	return &fakeEngine{
		vocab:  []string{"<s>", "</s>", "Location:", "basalt", "granite", "shale", "formed", "here", "slowly"},
		script: script,
	}
}

func (f *fakeEngine) id(word string) int {
	for i, w := range f.vocab {
		if w == word {
			return i
		}
	}
	f.vocab = append(f.vocab, word)
	return len(f.vocab) - 1
}

func (f *fakeEngine) Tokenize(_ context.Context, text string, addSpecial bool) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []int
	if addSpecial {
		ids = append(ids, bosID)
	}
	for _, w := range strings.Fields(text) {
		ids = append(ids, f.id(w))
	}
	return ids, nil
}

func (f *fakeEngine) Detokenize(_ context.Context, tokens []int) (string, error) {
	if f.detokErr != nil {
		return "", f.detokErr
	}
	words := make([]string, 0, len(tokens))
	for _, id := range tokens {
		words = append(words, f.vocab[id])
	}
	return "  " + strings.Join(words, " ") + "\n", nil
}

func (f *fakeEngine) NextTokens(_ context.Context, tokens []int, _ int) ([]inference.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seen = append(f.seen, append([]int(nil), tokens...))
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.script) {
		return []inference.Candidate{{ID: eosID, LogProb: 0}}, nil
	}
	c := f.script[f.calls]
	f.calls++
	return c, nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

type fakeBackend struct {
	engine *fakeEngine
	err    error
	req    inference.OpenRequest
	opened int
}

func (b *fakeBackend) Open(_ context.Context, req inference.OpenRequest) (inference.Engine, error) {
	b.req = req
	b.opened++
	if b.err != nil {
		return nil, b.err
	}
	return b.engine, nil
}

var errEngine = errors.New("engine unavailable")

// only returns a single certain candidate.
func only(id int) []inference.Candidate {
	return []inference.Candidate{{ID: id, LogProb: 0}}
}
