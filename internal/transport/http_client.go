package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fiscal-offline-go/config"

	log "github.com/sirupsen/logrus"
)

// HTTPClient implementiert Port über net/http
type HTTPClient struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
}

// NewHTTPClient erstellt einen Client für die konfigurierte API
func NewHTTPClient(cfg config.APIConfig) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		headers: headers,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Request sendet die Anfrage. Statuscodes ab 400 ergeben einen *Error mit KindRemote.
func (c *HTTPClient) Request(ctx context.Context, method, rawURL string, payload []byte, headers map[string]string) (*Response, error) {
	target := c.resolve(rawURL)

	var body io.Reader
	if len(payload) > 0 {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), target, body)
	if err != nil {
		return nil, &Error{Kind: KindInvalid, Message: "failed to create request", Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	log.Debugf("Sending %s %s", req.Method, target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, NewRemoteError(resp.StatusCode, data)
	}

	return &Response{
		Data:    data,
		Status:  resp.StatusCode,
		Headers: resp.Header,
	}, nil
}

// resolve stellt relativen Pfaden die Basis-URL voran
func (c *HTTPClient) resolve(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.IsAbs() {
		return rawURL
	}
	if c.baseURL == "" {
		return rawURL
	}
	return c.baseURL + "/" + strings.TrimLeft(rawURL, "/")
}

func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request canceled: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "deadline exceeded", Err: err}
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	return &Error{Kind: KindNetwork, Message: "request failed", Err: err}
}
