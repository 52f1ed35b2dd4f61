// Package llamacpp runs model inference through a local llama.cpp server.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/UnknownOlympus/magma/internal/inference"
)

// ErrNotReady is returned by Health while the server is still loading the model.
var ErrNotReady = errors.New("llama.cpp server is not ready")

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a llama.cpp server. It implements inference.Engine; Close is a no-op
// because the client does not own the server.
type Client struct {
	client  HTTPClient
	baseURL string
}

// NewClient returns a Client for the server at baseURL.
func NewClient(client HTTPClient, baseURL string) *Client {
	return &Client{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type tokenizeRequest struct {
	Content    string `json:"content"`
	AddSpecial bool   `json:"add_special"`
}

type tokenizeResponse struct {
	Tokens []int `json:"tokens"`
}

type detokenizeRequest struct {
	Tokens []int `json:"tokens"`
}

type detokenizeResponse struct {
	Content string `json:"content"`
}

type completionRequest struct {
	Prompt            []int `json:"prompt"`
	NPredict          int   `json:"n_predict"`
	NProbs            int   `json:"n_probs"`
	CachePrompt       bool  `json:"cache_prompt"`
	PostSamplingProbs bool  `json:"post_sampling_probs"`
	Stream            bool  `json:"stream"`
}

type tokenLogProb struct {
	ID      int     `json:"id"`
	Token   string  `json:"token"`
	LogProb float64 `json:"logprob"`
}

type completionResponse struct {
	Probabilities []struct {
		tokenLogProb
		TopLogProbs []tokenLogProb `json:"top_logprobs"`
	} `json:"completion_probabilities"`
}

// Tokenize encodes text with the model vocabulary.
func (c *Client) Tokenize(ctx context.Context, text string, addSpecial bool) ([]int, error) {
	var resp tokenizeResponse
	if err := c.post(ctx, "/tokenize", tokenizeRequest{Content: text, AddSpecial: addSpecial}, &resp); err != nil {
		return nil, err
	}

	return resp.Tokens, nil
}

// Detokenize turns token ids back into text.
func (c *Client) Detokenize(ctx context.Context, tokens []int) (string, error) {
	var resp detokenizeResponse
	if err := c.post(ctx, "/detokenize", detokenizeRequest{Tokens: tokens}, &resp); err != nil {
		return "", err
	}

	return resp.Content, nil
}

// NextTokens scores one position past tokens and returns the topK raw log-probabilities.
// The server keeps the evaluated prefix cached, so each step only computes the new token.
func (c *Client) NextTokens(ctx context.Context, tokens []int, topK int) ([]inference.Candidate, error) {
	req := completionRequest{
		Prompt:      tokens,
		NPredict:    1,
		NProbs:      topK,
		CachePrompt: true,
	}

	var resp completionResponse
	if err := c.post(ctx, "/completion", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Probabilities) == 0 {
		return nil, errors.New("completion response carries no token probabilities")
	}

	top := resp.Probabilities[0].TopLogProbs
	cands := make([]inference.Candidate, 0, len(top))
	for _, p := range top {
		cands = append(cands, inference.Candidate{ID: p.ID, LogProb: p.LogProb})
	}

	return cands, nil
}

// Health reports whether the server has finished loading the model.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrNotReady, resp.StatusCode)
	}

	return nil
}

// Close implements inference.Engine.
func (c *Client) Close() error {
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llama.cpp %s returned status %d: %s", path, resp.StatusCode, string(body))
	}

	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}
