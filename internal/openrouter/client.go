package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

const maxErrorBody = 4096

// Client is an OpenRouter API client. Each ChatCompletion call is exactly
// one HTTP attempt; retrying is the caller's decision.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	title      string
	referer    string
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithRateLimit caps outgoing requests per second. rps <= 0 disables the cap.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAppInfo sets the attribution headers OpenRouter shows in its dashboard.
func WithAppInfo(title, referer string) Option {
	return func(c *Client) {
		c.title = title
		c.referer = referer
	}
}

// NewClient creates a new Client with the default OpenRouter base URL.
func NewClient(apiKey string, opts ...Option) *Client {
	return NewClientWithBaseURL(apiKey, DefaultBaseURL, opts...)
}

// NewClientWithBaseURL creates a new Client with a custom base URL (for
// testing or OpenAI-compatible gateways).
func NewClientWithBaseURL(apiKey, baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatCompletion sends one chat completion request.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter: encoding request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if _, ok := ctx.Deadline(); ok && ctx.Err() == nil {
				// The limiter refuses waits that would outlive the deadline.
				err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			}
			return nil, fmt.Errorf("openrouter: rate limiter: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter: %w", newAPIError(resp))
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if chatResp.Error != nil {
		status := chatResp.Error.Code
		if status == 0 {
			status = http.StatusBadGateway
		}
		return nil, fmt.Errorf("openrouter: %w", &APIError{StatusCode: status, Body: chatResp.Error.Message})
	}
	if len(chatResp.Choices) == 0 {
		return nil, ErrEmptyChoices
	}
	return &chatResp, nil
}

// ListModels retrieves available models from OpenRouter.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter: %w", newAPIError(resp))
	}

	var modelsResp ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return modelsResp.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
	}
}

func newAPIError(resp *http.Response) *APIError {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(respBody)),
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return apiErr
}
