// Package webhook delivers crawl results to caller-supplied endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Sender delivers a JSON payload to a webhook URL.
type Sender interface {
	// Send encodes payload as JSON and sends it with method (POST when
	// empty). Any non-2xx response is an error.
	Send(ctx context.Context, url, method string, payload any) error
}

// Option configures the webhook client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	token string
	http  *http.Client
}

// NewClient creates a Sender that authenticates with a bearer token. An empty
// token sends no Authorization header.
func NewClient(token string, opts ...Option) Sender {
	c := &httpClient{
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Send(ctx context.Context, url, method string, payload any) error {
	if url == "" {
		return eris.New("webhook: empty url")
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "webhook: marshal payload")
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "webhook: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log := zap.L().With(zap.String("webhook", url), zap.String("method", method))
	log.Info("sending webhook")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "webhook: request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Warn("webhook rejected", zap.Int("status", resp.StatusCode), zap.ByteString("body", msg))
		return eris.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(msg))
	}
	log.Info("webhook sent", zap.Int("status", resp.StatusCode))
	return nil
}
