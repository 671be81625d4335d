// Package kobold is the HTTP client for a KoboldAI-compatible generation
// backend. It owns the single blocking network call of a chat turn: bounded
// per-attempt timeout, exponential backoff, capped attempt count.
package kobold

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/krizar/koboldbot/internal/logging"
	"github.com/krizar/koboldbot/internal/prompt"
)

// Generation failure kinds, matched with errors.Is. Transport and 5xx
// failures are retried; the rest are not.
var (
	ErrTimeout           = errors.New("kobold: request timed out")
	ErrTransport         = errors.New("kobold: transport failure")
	ErrBadStatus         = errors.New("kobold: bad response status")
	ErrMalformedResponse = errors.New("kobold: malformed response")
)

type Client struct {
	endpoint    string
	httpClient  *http.Client
	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	log         logging.Logger
}

type generateResponse struct {
	Results []struct {
		Text string `json:"text"`
	} `json:"results"`
}

func NewClient(endpoint string, timeout time.Duration, maxAttempts int, log logging.Logger) *Client {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Client{
		endpoint:    strings.TrimRight(endpoint, "/"),
		httpClient:  &http.Client{},
		timeout:     timeout,
		maxAttempts: maxAttempts,
		backoffBase: time.Second,
		log:         log,
	}
}

// Generate posts the request and returns the raw generated continuation
// (first result's text). Retries apply to connection failures, timeouts and
// 5xx responses only; 4xx and malformed bodies fail immediately.
func (c *Client) Generate(ctx context.Context, req prompt.GenerationRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("kobold: encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoffBase << (attempt - 1)
			c.log.Warn(ctx, "retrying generation request", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.Canceled) {
					return "", ctx.Err()
				}
				return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			}
		}

		text, retry, err := c.attempt(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retry {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) attempt(ctx context.Context, body []byte) (text string, retry bool, err error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.endpoint + "/api/v1/generate"
	httpReq, err := http.NewRequestWithContext(actx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// a caller-canceled turn is neither a timeout nor retryable
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", false, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || actx.Err() != nil {
			return "", true, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", true, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", resp.StatusCode >= 500, fmt.Errorf("%w: status %d", ErrBadStatus, resp.StatusCode)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(decoded.Results) == 0 {
		return "", false, fmt.Errorf("%w: no results", ErrMalformedResponse)
	}
	return decoded.Results[0].Text, false, nil
}
