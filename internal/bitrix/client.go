// Package bitrix implements a rate-limited, retrying client for the
// Bitrix24 webhook REST API, plus the payload normalization helpers the
// export pipeline shares.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIError is a logical rejection reported inside a structurally valid
// response body. It is never retried.
type APIError struct {
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("bitrix api error: %s", e.Description)
	}
	return fmt.Sprintf("bitrix api error: %s", e.Code)
}

// RetryPolicy controls how transient transport faults are retried.
// Sleep is injectable so tests can run with a fake clock.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       func(time.Duration)
}

// DefaultRetryPolicy matches the production defaults: 3 attempts, 1s base.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
}

// Delay returns the backoff before retrying after the given attempt
// (base delay doubled per attempt).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (p RetryPolicy) sleep(d time.Duration) {
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}

// Command is one logical operation inside a batch request.
type Command struct {
	Method string
	Params url.Values
}

// Client talks to one configured Bitrix24 webhook base URL.
type Client struct {
	webhookBase string
	batchSize   int
	retry       RetryPolicy
	httpClient  *http.Client
	batchClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithBatchSize overrides the maximum commands per batch request.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithTimeout overrides the single-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for the given webhook base URL. A trailing
// slash is appended when missing.
func NewClient(webhookBase string, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(webhookBase)
	if base == "" {
		return nil, fmt.Errorf("webhook base not configured")
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	c := &Client{
		webhookBase: base,
		batchSize:   50,
		retry:       DefaultRetryPolicy(),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		batchClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	if u, err := url.Parse(base); err == nil {
		log.Printf("bitrix webhook in use: %s://%s/rest/.../***/", u.Scheme, u.Host)
	}
	return c, nil
}

// Call issues one GET request for the given API method. Transient faults
// (connection errors, timeouts, non-2xx statuses) are retried with
// exponential backoff up to the retry ceiling. A response body carrying an
// "error" field is promoted to *APIError and never retried.
func (c *Client) Call(ctx context.Context, method string, params url.Values) (map[string]any, error) {
	reqURL := c.webhookBase + method
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		data, err := c.doGET(ctx, reqURL)
		if err == nil {
			if apiErr := errorIn(data); apiErr != nil {
				log.Printf("bitrix %s rejected: %v", method, apiErr)
				return nil, apiErr
			}
			return data, nil
		}

		lastErr = err
		if attempt < c.retry.MaxAttempts-1 {
			wait := c.retry.Delay(attempt)
			log.Printf("bitrix %s failed (attempt %d/%d): %v, retrying in %v",
				method, attempt+1, c.retry.MaxAttempts, err, wait)
			c.retry.sleep(wait)
		}
	}
	return nil, fmt.Errorf("bitrix %s failed after %d attempts: %w", method, c.retry.MaxAttempts, lastErr)
}

func (c *Client) doGET(ctx context.Context, reqURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return data, nil
}

// errorIn promotes a body-level error indicator to a typed failure.
func errorIn(data map[string]any) *APIError {
	code, ok := data["error"]
	if !ok || code == nil || code == "" {
		return nil
	}
	apiErr := &APIError{Code: fmt.Sprint(code)}
	if desc, ok := data["error_description"].(string); ok {
		apiErr.Description = desc
	}
	return apiErr
}

// BatchCall submits the commands through the batch endpoint, chunked to the
// configured batch size, and returns one result per command in input order.
// A command whose key is missing from the response, or whose whole chunk
// failed at the transport level, yields a nil slot rather than an error so
// one bad item cannot poison the rest.
func (c *Client) BatchCall(ctx context.Context, commands []Command) []any {
	results := make([]any, 0, len(commands))

	for start := 0; start < len(commands); start += c.batchSize {
		end := start + c.batchSize
		if end > len(commands) {
			end = len(commands)
		}
		chunk := commands[start:end]

		// Keys are generated locally per chunk; the response is keyed by
		// them, so results can be realigned no matter what order the
		// backend answers in.
		prefix := uuid.NewString()[:8]
		keys := make([]string, len(chunk))
		cmd := make(map[string]string, len(chunk))
		for i, command := range chunk {
			key := fmt.Sprintf("c%s_%d", prefix, i)
			keys[i] = key
			if encoded := command.Params.Encode(); encoded != "" {
				cmd[key] = command.Method + "?" + encoded
			} else {
				cmd[key] = command.Method
			}
		}

		data, err := c.postBatch(ctx, map[string]any{"cmd": cmd})
		if err != nil {
			log.Printf("bitrix batch chunk of %d failed: %v", len(chunk), err)
			for range chunk {
				results = append(results, nil)
			}
			continue
		}

		if apiErr := errorIn(data); apiErr != nil {
			log.Printf("bitrix batch chunk rejected: %v", apiErr)
			for range chunk {
				results = append(results, nil)
			}
			continue
		}

		results = append(results, alignChunk(data, keys)...)
	}

	return results
}

// alignChunk extracts per-command results in key order. The batch envelope
// nests results one level deeper than single calls ("result.result"); some
// portals have been observed answering with the flat form, so the outer
// level is a fallback.
func alignChunk(data map[string]any, keys []string) []any {
	outer, _ := data["result"].(map[string]any)
	inner, _ := outer["result"].(map[string]any)
	if len(inner) == 0 {
		inner = outer
	}

	out := make([]any, 0, len(keys))
	for _, key := range keys {
		val, ok := inner[key]
		if !ok {
			log.Printf("bitrix batch key %s missing from response", key)
			out = append(out, nil)
			continue
		}
		// Individual slots sometimes arrive JSON-encoded as strings.
		if s, isStr := val.(string); isStr {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err == nil {
				val = decoded
			}
		}
		out = append(out, val)
	}
	return out
}

func (c *Client) postBatch(ctx context.Context, body map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		data, err := c.doPOST(ctx, c.webhookBase+"batch", payload)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if attempt < c.retry.MaxAttempts-1 {
			wait := c.retry.Delay(attempt)
			log.Printf("bitrix batch failed (attempt %d/%d): %v, retrying in %v",
				attempt+1, c.retry.MaxAttempts, err, wait)
			c.retry.sleep(wait)
		}
	}
	return nil, lastErr
}

func (c *Client) doPOST(ctx context.Context, reqURL string, payload []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.batchClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var data map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding batch response: %w", err)
	}
	return data, nil
}
