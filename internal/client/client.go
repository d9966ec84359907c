// Package client provides an API client for remote Sentinel management.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"grimm.is/sentinel/internal/accesslog"
	"grimm.is/sentinel/internal/brand"
	"grimm.is/sentinel/internal/firewall"
	"grimm.is/sentinel/internal/threat"
)

// APIClient defines the interface for interacting with a remote Sentinel instance.
type APIClient interface {
	Health(ctx context.Context) (*Status, error)
	Rules(ctx context.Context) ([]firewall.Rule, error)
	AddRule(ctx context.Context, draft firewall.RuleDraft) (*firewall.Rule, error)
	DeleteRule(ctx context.Context, id int) (bool, error)
	Simulate(ctx context.Context, p firewall.Packet) (*Decision, error)
	Logs(ctx context.Context, limit int) ([]accesslog.Entry, error)
	Threats(ctx context.Context) ([]threat.Threat, error)
	Report(ctx context.Context, format string) (*Report, error)
	Watch(ctx context.Context, topics []string, fn func(Event)) error
}

// Status mirrors the health endpoint response.
type Status struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Decision mirrors the simulate response. RuleID is nil when the default
// action applied.
type Decision struct {
	Action firewall.Action `json:"action"`
	RuleID *int            `json:"rule_id,omitempty"`
}

// Report is a downloaded report in its wire encoding.
type Report struct {
	Filename    string
	ContentType string
	Body        []byte
}

// Event is one message from the websocket feed.
type Event struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Details    string `json:"details,omitempty"`
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Details != "" {
		return fmt.Sprintf("API error (status %d): %s: %s", e.StatusCode, msg, e.Details)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, msg)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// HTTPClient is an HTTP-based implementation of APIClient.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// ClientOption configures the HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewHTTPClient creates a new HTTPClient for the given base URL.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  brand.UserAgent(brand.Version),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do performs an HTTP request and returns the response body.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, apiErr) != nil {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(s) * time.Second
		}
		return resp, respBody, apiErr
	}
	return resp, respBody, nil
}

// doJSON performs a request and decodes the JSON response into result.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body, result any) error {
	_, respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Health checks liveness.
func (c *HTTPClient) Health(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.doJSON(ctx, http.MethodGet, "/healthz", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Rules lists rules in priority order.
func (c *HTTPClient) Rules(ctx context.Context) ([]firewall.Rule, error) {
	var rules []firewall.Rule
	if err := c.doJSON(ctx, http.MethodGet, "/rules", nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// AddRule appends a rule.
func (c *HTTPClient) AddRule(ctx context.Context, draft firewall.RuleDraft) (*firewall.Rule, error) {
	var rule firewall.Rule
	if err := c.doJSON(ctx, http.MethodPost, "/rules", draft, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// DeleteRule removes a rule, reporting whether it existed.
func (c *HTTPClient) DeleteRule(ctx context.Context, id int) (bool, error) {
	var resp struct {
		Deleted bool `json:"deleted"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/rules/"+strconv.Itoa(id), nil, &resp); err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

// Simulate evaluates one packet on the server.
func (c *HTTPClient) Simulate(ctx context.Context, p firewall.Packet) (*Decision, error) {
	var d Decision
	if err := c.doJSON(ctx, http.MethodPost, "/simulate", p, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Logs returns the newest limit entries, oldest first. A negative limit
// uses the server default; 0 returns every retained entry.
func (c *HTTPClient) Logs(ctx context.Context, limit int) ([]accesslog.Entry, error) {
	path := "/logs"
	if limit >= 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var entries []accesslog.Entry
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Threats lists detected threats.
func (c *HTTPClient) Threats(ctx context.Context) ([]threat.Threat, error) {
	var threats []threat.Threat
	if err := c.doJSON(ctx, http.MethodGet, "/threats", nil, &threats); err != nil {
		return nil, err
	}
	return threats, nil
}

// Report downloads a report in format "json" or "yaml".
func (c *HTTPClient) Report(ctx context.Context, format string) (*Report, error) {
	path := "/report"
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	resp, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	r := &Report{ContentType: resp.Header.Get("Content-Type"), Body: body}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		r.Filename = params["filename"]
	}
	return r, nil
}

// Watch streams websocket events for topics (all when empty) to fn until
// ctx is cancelled or the server closes the connection. Cancellation returns
// nil.
func (c *HTTPClient) Watch(ctx context.Context, topics []string, fn func(Event)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	if len(topics) > 0 {
		wsURL += "?topics=" + url.QueryEscape(strings.Join(topics, ","))
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	headers := http.Header{}
	headers.Set("User-Agent", c.userAgent)

	conn, _, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		var msg struct {
			Topic string `json:"topic"`
			Data  Event  `json:"data"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue // Skip malformed
		}
		msg.Data.Topic = msg.Topic
		fn(msg.Data)
	}
}
