// Package ollama is a minimal client for the Ollama generate API, used to
// turn natural language questions into SQL.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is the default Ollama API endpoint.
const DefaultEndpoint = "http://localhost:11434"

// DefaultModel is the model used when none is configured.
const DefaultModel = "llama3"

// DefaultTimeout is generous because local inference can be slow.
const DefaultTimeout = 120 * time.Second

// UpstreamError reports that the model service was unreachable or returned a
// non-success status.
type UpstreamError struct {
	StatusCode int // 0 when the request never reached the service
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("ollama API error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ollama API unreachable: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client calls the Ollama generate endpoint.
type Client struct {
	endpoint string
	model    string
	client   *http.Client
}

// New creates a Client. Empty endpoint or model fall back to the defaults.
func New(endpoint, model string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate sends prompt to the model and returns the full (non-streamed)
// response text. Any transport or non-200 failure is returned as an
// *UpstreamError.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/generate", bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &UpstreamError{Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	}

	var ollamaResp struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return ollamaResp.Response, nil
}
