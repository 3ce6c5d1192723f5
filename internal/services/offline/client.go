// Package offline ist der Einstiegspunkt für Aufrufer der Fiskal-API.
// Lesende Anfragen laufen über den Cache, mutierende Anfragen werden bei
// fehlender Verbindung in die Warteschlange gestellt.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"fiscal-offline-go/internal/cache"
	"fiscal-offline-go/internal/cachekey"
	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/queue"
	"fiscal-offline-go/internal/transport"

	log "github.com/sirupsen/logrus"
)

// ErrOffline wird geliefert, wenn eine Leseanfrage offline nicht aus dem Cache bedient werden kann
var ErrOffline = errors.New("offline and no cached response available")

// Connectivity liefert den aktuellen Verbindungsstatus
type Connectivity interface {
	IsOnline() bool
}

// Mutation ist eine schreibende Anfrage an die API
type Mutation struct {
	Method   string            `json:"method"`
	URL      string            `json:"url"`
	Payload  json.RawMessage   `json:"payload,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
	Priority int               `json:"priority"`
}

// SubmitResult beschreibt, was mit einer Mutation geschehen ist. Entweder
// ist Response gesetzt (direkt ausgeführt) oder Queued mit Operation.
type SubmitResult struct {
	Response  *transport.Response
	Queued    bool
	Operation *models.QueuedOperation
}

// Client verbindet Transport, Cache und Warteschlange
type Client struct {
	port         transport.Port
	manager      *queue.Manager
	cache        *cache.Store
	keys         *cachekey.Generator
	connectivity Connectivity
}

// NewClient erstellt einen Client. Ohne Connectivity gilt der Client als online.
func NewClient(port transport.Port, manager *queue.Manager, cacheStore *cache.Store, keys *cachekey.Generator, conn Connectivity) *Client {
	if keys == nil {
		keys = cachekey.NewGenerator(nil)
	}
	return &Client{
		port:         port,
		manager:      manager,
		cache:        cacheStore,
		keys:         keys,
		connectivity: conn,
	}
}

func (c *Client) online() bool {
	return c.connectivity == nil || c.connectivity.IsOnline()
}

// Submit führt eine Mutation aus. Online wird sie direkt gesendet; scheitert
// sie vorübergehend oder ist keine Verbindung vorhanden, landet sie in der
// Warteschlange. Endgültige Ablehnungen gehen an den Aufrufer zurück.
func (c *Client) Submit(ctx context.Context, m Mutation) (*SubmitResult, error) {
	if m.Method == "" || m.URL == "" {
		return nil, fmt.Errorf("%w: method and url are required", queue.ErrInvalidRequest)
	}
	if !cachekey.IsMutating(m.Method) {
		return nil, fmt.Errorf("%w: method %s does not mutate, use Read", queue.ErrInvalidRequest, m.Method)
	}

	if c.online() {
		resp, err := c.port.Request(ctx, m.Method, m.URL, m.Payload, m.Headers)
		if err == nil {
			c.invalidate(m.URL, m.Method)
			return &SubmitResult{Response: resp}, nil
		}
		if !transport.IsRetryable(err) {
			return nil, err
		}
		log.WithError(err).WithField("url", m.URL).Warn("Direct request failed, queueing mutation")
	}

	req := queue.EnqueueRequest{
		Endpoint: m.URL,
		Method:   m.Method,
		Payload:  m.Payload,
		Headers:  m.Headers,
		Priority: m.Priority,
	}
	if res, ok := c.keys.ParseResource(m.URL); ok {
		req.ResourceType = res.Tag
	}

	op, err := c.manager.Enqueue(ctx, req)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Queued: true, Operation: op}, nil
}

// Read liefert eine Antwort aus dem Cache oder von der API. Der bool meldet einen Cache-Treffer.
func (c *Client) Read(ctx context.Context, rawURL string, params map[string]string) (*transport.Response, bool, error) {
	key, keyErr := c.keys.Generate(rawURL, params)
	cacheable := c.cache != nil && keyErr == nil && c.keys.ShouldCache(http.MethodGet, rawURL)

	if cacheable {
		if data, ok := c.cache.Get(key); ok {
			return &transport.Response{Data: data, Status: http.StatusOK, Headers: http.Header{}}, true, nil
		}
	}

	if !c.online() {
		return nil, false, ErrOffline
	}

	target, err := withParams(rawURL, params)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.port.Request(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		return nil, false, err
	}

	if cacheable {
		res, _ := c.keys.ParseResource(rawURL)
		c.cache.Set(key, resp.Data, res.Tag, c.keys.TTL(rawURL))
	}
	return resp, false, nil
}

func (c *Client) invalidate(rawURL, method string) {
	if c.cache == nil {
		return
	}
	for _, p := range c.keys.InvalidationPatterns(rawURL, method) {
		c.cache.Evict(p)
	}
}

func withParams(rawURL string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
