package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oggyb/outreach-campaigns/internal/request"
	"github.com/oggyb/outreach-campaigns/internal/response"
	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds send, status and reply calls.
	DefaultTimeout = 5 * time.Second
	healthTimeout  = 2 * time.Second

	// healthProbeID is never issued by the provider; a reachable provider
	// answers 404 for it.
	healthProbeID = "invalid_id"
)

// HTTPClient talks to the provider's JSON HTTP API.
type HTTPClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient creates a client for the provider rooted at baseURL
// (e.g. http://localhost:8000/mock). A non-positive timeout uses DefaultTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		httpClient: &http.Client{
			Timeout: 2 * timeout, // ctx is the primary bound
		},
		logger: logger,
	}
}

// withTimeout bounds a single call by d, or by the caller's deadline if that
// comes first.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= d {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// Send implements Client.Send by posting a JSON payload to /send.
func (c *HTTPClient) Send(ctx context.Context, phone, body string) SendResponse {
	to := NormalizePhone(phone)

	raw, status, err := c.do(ctx, c.timeout, http.MethodPost, "/send", request.ProviderSendRequest{To: to, Body: body})
	if err != nil {
		c.logger.Error("send failed", zap.String("to", to), zap.Error(err))
		return SendResponse{Status: StatusFailed, Error: err.Error()}
	}

	if status == http.StatusUnprocessableEntity {
		c.logger.Error("malformed payload", zap.String("to", to), zap.String("body", string(raw)))
		return SendResponse{Status: StatusInvalidPayload, Error: fmt.Sprintf("%v: %s", ErrInvalidPayload, raw)}
	}
	if status < 200 || status >= 300 {
		c.logger.Error("send returned non-2xx", zap.String("to", to), zap.Int("status", status))
		return SendResponse{Status: StatusFailed, Error: fmt.Sprintf("%v: status %d", ErrUnexpectedResponse, status)}
	}

	var parsed response.ProviderSendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return SendResponse{Status: StatusFailed, Error: fmt.Sprintf("%v: %v", ErrUnexpectedResponse, err)}
	}
	if parsed.MessageID == "" {
		return SendResponse{Status: StatusFailed, Error: fmt.Sprintf("%v: missing message_id", ErrUnexpectedResponse)}
	}

	st := Status(parsed.Status)
	if st == "" {
		st = StatusQueued
	}
	return SendResponse{Status: st, MessageID: parsed.MessageID}
}

// Status implements Client.Status with GET /status/{id}.
func (c *HTTPClient) Status(ctx context.Context, messageID string) (Status, error) {
	raw, status, err := c.do(ctx, c.timeout, http.MethodGet, "/status/"+url.PathEscape(messageID), nil)
	if err != nil {
		return StatusUnknown, err
	}
	if err := classify(status); err != nil {
		return StatusUnknown, fmt.Errorf("status %s: %w", messageID, err)
	}

	var parsed response.ProviderStatusResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return StatusUnknown, fmt.Errorf("status %s: %w: %v", messageID, ErrUnexpectedResponse, err)
	}
	if parsed.Status == "" {
		return StatusUnknown, nil
	}
	return Status(parsed.Status), nil
}

// Reply implements Client.Reply with GET /reply/{id}.
func (c *HTTPClient) Reply(ctx context.Context, messageID string) (ReplyResponse, error) {
	raw, status, err := c.do(ctx, c.timeout, http.MethodGet, "/reply/"+url.PathEscape(messageID), nil)
	if err != nil {
		return ReplyResponse{}, err
	}
	if err := classify(status); err != nil {
		return ReplyResponse{}, fmt.Errorf("reply %s: %w", messageID, err)
	}

	var parsed response.ProviderReplyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ReplyResponse{}, fmt.Errorf("reply %s: %w: %v", messageID, ErrUnexpectedResponse, err)
	}

	var out ReplyResponse
	if parsed.Reply != nil {
		out.Reply = *parsed.Reply
	}
	if parsed.Timestamp != nil {
		out.Timestamp = *parsed.Timestamp
	}
	return out, nil
}

// Health probes the provider with an id it never issues; a live provider
// answers 404.
func (c *HTTPClient) Health(ctx context.Context) error {
	_, status, err := c.do(ctx, healthTimeout, http.MethodGet, "/status/"+healthProbeID, nil)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("health: %w: status %d", ErrUnexpectedResponse, status)
	}
	return nil
}

// do performs one bounded request and returns the raw body and status code.
// Only transport failures are returned as errors.
func (c *HTTPClient) do(ctx context.Context, timeout time.Duration, method, path string, payload any) ([]byte, int, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal provider payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, 0, fmt.Errorf("provider request timeout or canceled: %w", err)
		}
		return nil, 0, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read provider response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func classify(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrUnknownMessage
	case status == http.StatusUnprocessableEntity:
		return ErrInvalidPayload
	case status < 200 || status >= 300:
		return fmt.Errorf("%w: status %d", ErrUnexpectedResponse, status)
	}
	return nil
}

// compile-time check: HTTPClient satisfies the Client interface.
var _ Client = (*HTTPClient)(nil)
