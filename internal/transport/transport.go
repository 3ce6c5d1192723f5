// Package transport führt Anfragen gegen die Fiskal-API aus und ordnet
// Fehler den Klassen Netzwerk, Zeitüberschreitung und Ablehnung zu.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind klassifiziert einen Transportfehler
type Kind string

const (
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindRemote  Kind = "remote"
	KindInvalid Kind = "invalid" // Anfrage ließ sich nicht erstellen
)

// Response ist die rohe Antwort der API
type Response struct {
	Data    []byte
	Status  int
	Headers http.Header
}

// Port ist die Schnittstelle, über die Warteschlange und Client Anfragen absetzen
type Port interface {
	Request(ctx context.Context, method, rawURL string, payload []byte, headers map[string]string) (*Response, error)
}

// PortFunc erlaubt einfache Funktionen als Port
type PortFunc func(ctx context.Context, method, rawURL string, payload []byte, headers map[string]string) (*Response, error)

// Request ruft f auf
func (f PortFunc) Request(ctx context.Context, method, rawURL string, payload []byte, headers map[string]string) (*Response, error) {
	return f(ctx, method, rawURL, payload, headers)
}

// Error ist ein klassifizierter Transportfehler. Status und Body sind nur
// bei KindRemote gesetzt.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Body    []byte
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindRemote:
		return fmt.Sprintf("remote rejected request with status %d: %s", e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable meldet, ob ein späterer Versuch Erfolg haben kann.
// Netzwerkfehler und Zeitüberschreitungen sind vorübergehend, von
// Ablehnungen nur 408, 429 und 5xx.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout:
		return true
	case KindInvalid:
		return false
	case KindRemote:
		return e.Status == http.StatusRequestTimeout ||
			e.Status == http.StatusTooManyRequests ||
			e.Status >= 500
	}
	return true
}

// IsRetryable klassifiziert beliebige Fehler. Fehler außerhalb des Transports
// (auch Kontextabbrüche) gelten als vorübergehend.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return true
}

// NewRemoteError erzeugt eine Ablehnung mit Status
func NewRemoteError(status int, body []byte) *Error {
	return &Error{
		Kind:    KindRemote,
		Status:  status,
		Message: http.StatusText(status),
		Body:    body,
	}
}
