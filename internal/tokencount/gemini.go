// Package tokencount implements the precise token-counting capability used by
// the memory estimator. Production counting goes through the Gemini
// countTokens endpoint; the estimator falls back to a heuristic whenever this
// package returns an error, so failures here are transient, not fatal.
package tokencount

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiCounter counts tokens with the Gemini API using the same model that
// generates replies, so the estimate matches what generation will be billed.
type GeminiCounter struct {
	client *genai.Client
	model  string
}

// NewGeminiCounter constructs a GeminiCounter for the given model name
// (e.g. "gemini-2.0-flash").
func NewGeminiCounter(ctx context.Context, apiKey, model string) (*GeminiCounter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("tokencount: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("tokencount: create Gemini client: %w", err)
	}
	return &GeminiCounter{client: client, model: model}, nil
}

// Count returns the exact token count of texts according to the model's
// tokenizer. Network and quota errors are returned as-is for the caller
// (the memory estimator) to absorb.
func (c *GeminiCounter) Count(ctx context.Context, texts []string) (int, error) {
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	resp, err := c.client.Models.CountTokens(ctx, c.model, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("tokencount: count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}
