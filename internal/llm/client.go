// Package llm performs a single generate/check/fix/feature call end to end:
// cache lookup, rate budget, transport, response parsing. Inputs arrive
// already sanitized by the orchestrator.
//
// The client never retries; a rate-limit or API failure is returned to the
// caller, which decides whether to skip or fail the run.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"adversarial-mcp/backend/internal/analytics"
	"adversarial-mcp/backend/internal/cache"
	"adversarial-mcp/backend/internal/logging"
	"adversarial-mcp/backend/internal/ratelimit"
	"adversarial-mcp/backend/pkg/models"
)

// APIError reports a transport failure, non-success status, or an explicit
// error field in the backend response. Error responses are never cached.
type APIError struct {
	ModelID string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("api error from model %q (status %d): %s", e.ModelID, e.Status, e.Message)
	}
	return fmt.Sprintf("api error from model %q: %s", e.ModelID, e.Message)
}

// responseBody is the structured wire response from a backend.
type responseBody struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Client issues single LLM calls through the shared limiter and cache.
type Client struct {
	transport Transport
	limiter   *ratelimit.Limiter
	cache     *cache.Cache
	sink      analytics.Sink
	logger    logging.Logger
	ttl       time.Duration
}

// NewClient assembles a client. A non-positive ttl uses the cache default.
func NewClient(transport Transport, limiter *ratelimit.Limiter, responseCache *cache.Cache, sink analytics.Sink, logger logging.Logger, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Client{
		transport: transport,
		limiter:   limiter,
		cache:     responseCache,
		sink:      sink,
		logger:    logger,
		ttl:       ttl,
	}
}

// Call performs one call against model. Identical (model, input, action,
// language) tuples within the TTL are served from the cache without touching
// the transport or the rate budget.
func (c *Client) Call(ctx context.Context, model models.ModelConfig, input, action, language string) (string, error) {
	key := cache.Key(model.ID, input, action, language)
	if text, ok := c.cache.Get(key); ok {
		c.logger.Debug("llm cache hit", "model_id", model.ID, "action", action)
		return text, nil
	}

	defaults := model.DefaultsFor(action)
	tokensIn := estimateTokens(input)
	if err := c.limiter.Acquire(model.ID, tokensIn+defaults.MaxTokens); err != nil {
		return "", err
	}

	requestID := uuid.New().String()
	callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	start := time.Now()
	body, status, err := c.transport.Do(callCtx, &Request{
		Endpoint:   model.Endpoint,
		Credential: model.Credential,
		Body: RequestBody{
			Prompt:      input,
			Action:      action,
			Temperature: defaults.Temperature,
			MaxTokens:   defaults.MaxTokens,
			Language:    language,
		},
	})
	duration := time.Since(start)

	text, apiErr := parseResponse(model.ID, body, status, err)
	if apiErr != nil {
		c.sink.LogAPICall(ctx, analytics.APICall{
			RequestID: requestID,
			ModelID:   model.ID,
			Action:    action,
			TokensIn:  tokensIn,
			Duration:  duration,
			Status:    "error",
		})
		return "", apiErr
	}

	c.cache.Put(key, text, c.ttl)
	c.sink.LogAPICall(ctx, analytics.APICall{
		RequestID: requestID,
		ModelID:   model.ID,
		Action:    action,
		TokensIn:  tokensIn,
		TokensOut: estimateTokens(text),
		Duration:  duration,
		Status:    "success",
	})
	return text, nil
}

// parseResponse maps a transport result to text or an *APIError.
func parseResponse(modelID string, body []byte, status int, err error) (string, *APIError) {
	if err != nil {
		return "", &APIError{ModelID: modelID, Status: status, Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return "", &APIError{ModelID: modelID, Status: status, Message: string(body)}
	}

	var resp responseBody
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return "", &APIError{ModelID: modelID, Status: status, Message: fmt.Sprintf("failed to parse response: %v", jsonErr)}
	}
	if resp.Error != "" {
		return "", &APIError{ModelID: modelID, Status: status, Message: resp.Error}
	}
	return resp.Text, nil
}

// estimateTokens approximates token count as one per four characters.
func estimateTokens(s string) int {
	return len(s)/4 + 1
}
