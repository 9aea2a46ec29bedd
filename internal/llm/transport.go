package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CallTimeout bounds every outbound LLM call. There is no cancellation
// mechanism beyond it.
const CallTimeout = 30 * time.Second

// Request is one outbound LLM call before encoding.
type Request struct {
	Endpoint   string
	Credential string
	Body       RequestBody
}

// RequestBody is the structured wire body sent to a backend.
type RequestBody struct {
	Prompt      string  `json:"prompt"`
	Action      string  `json:"action"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Language    string  `json:"language"`
}

// Transport performs one outbound request and returns the raw response body
// with its HTTP status. Interpreting the body is the client's job.
type Transport interface {
	Do(ctx context.Context, req *Request) (body []byte, status int, err error)
}

// HTTPTransport is the production Transport.
type HTTPTransport struct {
	httpClient *http.Client
}

// NewHTTPTransport creates a transport with the fixed call timeout.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		httpClient: &http.Client{Timeout: CallTimeout},
	}
}

// Do posts the encoded body to the model endpoint with the credential header.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) ([]byte, int, error) {
	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Credential != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Credential)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

var _ Transport = (*HTTPTransport)(nil)
