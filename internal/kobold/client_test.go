package kobold

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/krizar/koboldbot/internal/logging"
	"github.com/krizar/koboldbot/internal/prompt"
)

func testClient(t *testing.T, url string, attempts int) *Client {
	t.Helper()
	c := NewClient(url, 5*time.Second, attempts, logging.NewNop())
	c.backoffBase = time.Millisecond
	return c
}

func testRequest() prompt.GenerationRequest {
	return prompt.GenerationRequest{Prompt: "Alice: hi\nVillain:", MaxLength: 120}
}

func TestGenerate_ParsesFirstResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/generate", r.URL.Path)

		var req prompt.GenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "Alice: hi\nVillain:", req.Prompt)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"text":" greetings\nignored"},{"text":"other"}]}`))
	}))
	defer srv.Close()

	text, err := testClient(t, srv.URL, 3).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, " greetings\nignored", text)
}

func TestGenerate_Retries5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"results":[{"text":"ok"}]}`))
	}))
	defer srv.Close()

	text, err := testClient(t, srv.URL, 3).Generate(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, "ok", text)
	require.Equal(t, int32(3), calls.Load())
}

func TestGenerate_AttemptsAreCapped(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 3).Generate(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrBadStatus)
	require.Equal(t, int32(3), calls.Load())
}

func TestGenerate_NoRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 3).Generate(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrBadStatus)
	require.Equal(t, int32(1), calls.Load())
}

func TestGenerate_NoRetryOnMalformedResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL, 3).Generate(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrMalformedResponse)
	require.Equal(t, int32(1), calls.Load())
}

func TestGenerate_ConnectionFailureIsTransport(t *testing.T) {
	// nothing listens here
	c := testClient(t, "http://127.0.0.1:1", 2)

	_, err := c.Generate(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrTransport)
}

func TestGenerate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"results":[{"text":"late"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 20*time.Millisecond, 1, logging.NewNop())
	c.backoffBase = time.Millisecond

	_, err := c.Generate(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrTimeout)
}

func TestGenerate_CancellationIsNotTimeoutAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := testClient(t, srv.URL, 3).Generate(ctx, testRequest())
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrTimeout)
	require.Equal(t, int32(1), calls.Load())
}
