package anima

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultAPIURL is the hosted memory service endpoint.
const DefaultAPIURL = "https://recallbricks-api-clean.onrender.com"

// APIError is a non-2xx response from the memory service.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("memory service returned %d: %s", e.StatusCode, e.Message)
}

// APIClient is a Backend over the hosted memory service's HTTP API.
// It is stateless and safe for concurrent use.
type APIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// APIClientOption configures an APIClient.
type APIClientOption func(*APIClient)

// WithBaseURL sets a custom service URL.
func WithBaseURL(url string) APIClientOption {
	return func(c *APIClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client (timeouts, transport).
func WithHTTPClient(client *http.Client) APIClientOption {
	return func(c *APIClient) {
		c.client = client
	}
}

// NewAPIClient creates a client for the hosted memory service.
func NewAPIClient(apiKey string, opts ...APIClientOption) *APIClient {
	c := &APIClient{
		apiKey:  apiKey,
		baseURL: DefaultAPIURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type recallRequest struct {
	Query     string `json:"query"`
	Limit     int    `json:"limit"`
	Organized bool   `json:"organized"`
}

type wireMemory struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Score     float64        `json:"score"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

type recallResponse struct {
	Memories   []wireMemory   `json:"memories"`
	Categories map[string]int `json:"categories,omitempty"`
	Total      int            `json:"total"`
}

type saveMemoryRequest struct {
	Text     string         `json:"text"`
	Tags     []string       `json:"tags,omitempty"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type saveMemoryResponse struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

type registerRequest struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Purpose string `json:"purpose"`
}

// Recall asks the service for candidate memories matching the query.
func (c *APIClient) Recall(ctx context.Context, query string, limit int, organized bool) (*RecallResult, error) {
	var resp recallResponse
	err := c.post(ctx, "/recall", recallRequest{
		Query:     query,
		Limit:     limit,
		Organized: organized,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("recall failed: %w", err)
	}

	result := &RecallResult{
		Memories:   make([]Memory, 0, len(resp.Memories)),
		Categories: resp.Categories,
		Total:      resp.Total,
	}
	for _, wm := range resp.Memories {
		result.Memories = append(result.Memories, memoryFromWire(wm))
	}
	return result, nil
}

// Save persists one piece of text with the service.
func (c *APIClient) Save(ctx context.Context, req SaveRequest) (*SavedMemory, error) {
	var resp saveMemoryResponse
	err := c.post(ctx, "/memories", saveMemoryRequest{
		Text:     req.Text,
		Tags:     req.Tags,
		Source:   req.Source,
		Metadata: req.Metadata,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("save failed: %w", err)
	}

	return &SavedMemory{
		ID:        resp.ID,
		Text:      resp.Text,
		Metadata:  resp.Metadata,
		CreatedAt: resp.CreatedAt,
	}, nil
}

// Register announces the agent's identity to the service. Callers treat
// failures as best-effort.
func (c *APIClient) Register(ctx context.Context, agentID, name, purpose string) error {
	if err := c.post(ctx, "/agents/register", registerRequest{
		AgentID: agentID,
		Name:    name,
		Purpose: purpose,
	}, nil); err != nil {
		return fmt.Errorf("register failed: %w", err)
	}
	return nil
}

// post sends a JSON request and decodes the JSON response into out
// (when out is non-nil). Non-2xx statuses become *APIError.
func (c *APIClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// memoryFromWire converts a wire memory to the runtime model. Kind and
// tags travel in metadata when the service knows them.
func memoryFromWire(wm wireMemory) Memory {
	m := Memory{
		ID:         wm.ID,
		Content:    wm.Text,
		Kind:       KindConversation,
		Importance: clamp01(wm.Score),
		Timestamp:  wm.CreatedAt,
		Metadata:   wm.Metadata,
	}
	if kind, ok := wm.Metadata["kind"].(string); ok && kind != "" {
		m.Kind = MemoryKind(kind)
	}
	if raw, ok := wm.Metadata["tags"].([]any); ok {
		for _, t := range raw {
			if tag, ok := t.(string); ok {
				m.Tags = append(m.Tags, tag)
			}
		}
	}
	return m
}

var (
	_ Backend   = (*APIClient)(nil)
	_ Registrar = (*APIClient)(nil)
)
