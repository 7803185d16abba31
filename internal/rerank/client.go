package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls an external rerank service (Cohere wire format). Given a
// query and candidate passages it returns up to topN passage indices in
// the service's preference order.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a rerank client.
func NewClient(endpoint, apiKey, model string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank returns the indices of the topN most relevant passages, best
// first, as judged by the rerank service.
func (c *Client) Rerank(ctx context.Context, query string, passages []string, topN int) ([]int, error) {
	payload := rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: passages,
		TopN:      topN,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank API error: %d - %s", resp.StatusCode, string(body))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	// The service is not trusted on the shape of its answer: indices must
	// be in range and unique, and the result never widens past topN.
	seen := make(map[int]bool, len(result.Results))
	indices := make([]int, 0, topN)
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(passages) {
			return nil, fmt.Errorf("rerank returned out-of-range index %d", r.Index)
		}
		if seen[r.Index] {
			return nil, fmt.Errorf("rerank returned duplicate index %d", r.Index)
		}
		seen[r.Index] = true
		indices = append(indices, r.Index)
		if len(indices) == topN {
			break
		}
	}
	return indices, nil
}
