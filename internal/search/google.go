// Package search provides a Google Custom Search client for the !search
// command. Results are flattened into title/snippet lines ready to be folded
// into a summarization prompt.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// defaultEndpoint is the Google Custom Search JSON API endpoint.
const defaultEndpoint = "https://www.googleapis.com/customsearch/v1"

// Client queries the Google Custom Search JSON API. Safe for concurrent use.
type Client struct {
	apiKey   string
	engineID string
	endpoint string
	client   *http.Client
}

// Config holds the settings for constructing a Client.
type Config struct {
	// APIKey is the Google Custom Search API key.
	APIKey string
	// EngineID is the programmable search engine ID.
	EngineID string
	// Endpoint overrides the API endpoint (tests only).
	Endpoint string
}

// NewClient constructs a Client from the given config.
func NewClient(cfg *Config) *Client {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		apiKey:   cfg.APIKey,
		engineID: cfg.EngineID,
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// searchResponse is the subset of the Custom Search response we consume.
type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"items"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Result is one search hit.
type Result struct {
	// Title is the page title.
	Title string
	// Snippet is the result excerpt.
	Snippet string
}

// Search runs the query and returns up to num results.
func (c *Client) Search(ctx context.Context, query string, num int) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("key", c.apiKey)
	q.Set("cx", c.engineID)
	q.Set("num", strconv.Itoa(num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error.Message != "" {
			msg = result.Error.Message
		}
		return nil, fmt.Errorf("search: %s", msg)
	}

	results := make([]Result, 0, len(result.Items))
	for _, item := range result.Items {
		results = append(results, Result{Title: item.Title, Snippet: item.Snippet})
	}
	return results, nil
}

// FormatResults renders results as bullet lines for prompt injection, or a
// no-results notice when the query came back empty.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No relevant results were found."
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Snippet)
	}
	return strings.TrimRight(b.String(), "\n")
}
