package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fiscal-offline-go/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Request(t *testing.T) {
	var gotMethod, gotPath, gotBody, gotAuth, gotTrace, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.RequestURI()
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotAuth = r.Header.Get("Authorization")
		gotTrace = r.Header.Get("X-Trace")
		gotType = r.Header.Get("Content-Type")
		w.Header().Set("X-Request-Id", "42")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"r1"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(config.APIConfig{
		BaseURL: srv.URL + "/",
		Timeout: time.Second,
		Headers: map[string]string{"Authorization": "Bearer t"},
	})

	resp, err := c.Request(context.Background(), "post", "/mf1/receipts?x=1", []byte(`{"a":1}`), map[string]string{"X-Trace": "abc"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, `{"id":"r1"}`, string(resp.Data))
	assert.Equal(t, "42", resp.Headers.Get("X-Request-Id"))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/mf1/receipts?x=1", gotPath)
	assert.Equal(t, `{"a":1}`, gotBody)
	assert.Equal(t, "Bearer t", gotAuth)
	assert.Equal(t, "abc", gotTrace)
	assert.Equal(t, "application/json", gotType)
}

func TestHTTPClient_AbsoluteURLBypassesBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(config.APIConfig{BaseURL: "http://invalid.example"})
	resp, err := c.Request(context.Background(), http.MethodDelete, srv.URL+"/mf1/receipts/1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
}

func TestHTTPClient_RemoteRejection(t *testing.T) {
	status := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"detail":"invalid"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(config.APIConfig{BaseURL: srv.URL})

	_, err := c.Request(context.Background(), http.MethodPost, "/mf1/receipts", nil, nil)
	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindRemote, te.Kind)
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Equal(t, `{"detail":"invalid"}`, string(te.Body))
	assert.False(t, IsRetryable(err))

	status = http.StatusServiceUnavailable
	_, err = c.Request(context.Background(), http.MethodPost, "/mf1/receipts", nil, nil)
	assert.True(t, IsRetryable(err))
}

func TestHTTPClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(config.APIConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})

	_, err := c.Request(context.Background(), http.MethodGet, "/mf1/receipts", nil, nil)
	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindTimeout, te.Kind)
	assert.True(t, IsRetryable(err))
}

func TestHTTPClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := NewHTTPClient(config.APIConfig{BaseURL: addr, Timeout: time.Second})

	_, err := c.Request(context.Background(), http.MethodGet, "/mf1/receipts", nil, nil)
	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindNetwork, te.Kind)
	assert.True(t, IsRetryable(err))
}

func TestHTTPClient_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewHTTPClient(config.APIConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Request(ctx, http.MethodGet, "/mf1/receipts", nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var te *Error
	assert.False(t, errors.As(err, &te), "cancellation is not a transport failure")
	assert.True(t, IsRetryable(err))
}

func TestHTTPClient_InvalidRequestIsTerminal(t *testing.T) {
	c := NewHTTPClient(config.APIConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})

	_, err := c.Request(context.Background(), "BAD METHOD", "/mf1/receipts", nil, nil)
	require.Error(t, err)

	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, KindInvalid, te.Kind)
	assert.False(t, IsRetryable(err))
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("store unavailable"), true},
		{&Error{Kind: KindNetwork}, true},
		{&Error{Kind: KindTimeout}, true},
		{NewRemoteError(http.StatusRequestTimeout, nil), true},
		{NewRemoteError(http.StatusTooManyRequests, nil), true},
		{NewRemoteError(http.StatusBadGateway, nil), true},
		{NewRemoteError(http.StatusNotFound, nil), false},
		{NewRemoteError(http.StatusConflict, nil), false},
		{NewRemoteError(http.StatusUnprocessableEntity, nil), false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRetryable(tc.err), "%v", tc.err)
	}
}
