package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeliverer() *Deliverer {
	d := NewDeliverer(NewClient())
	d.backoffBase = time.Millisecond
	return d
}

func TestDeliverWithRetryRecoversFromServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	out, attempts := newTestDeliverer().DeliverWithRetry(
		context.Background(), srv.URL, []byte(`{"event":"USER_CREATED"}`), "secret", EventUserCreated)

	assert.True(t, out.Succeeded())
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliverWithRetryDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`rejected`))
	}))
	defer srv.Close()

	out, attempts := newTestDeliverer().DeliverWithRetry(
		context.Background(), srv.URL, []byte(`{}`), "secret", EventUserCreated)

	assert.False(t, out.Succeeded())
	assert.Equal(t, OutcomeHTTPFailure, out.Kind)
	assert.Equal(t, http.StatusBadRequest, out.StatusCode)
	assert.Equal(t, "rejected", out.Response)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDeliverWithRetryExhaustsAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	out, attempts := newTestDeliverer().DeliverWithRetry(
		context.Background(), srv.URL, []byte(`{}`), "secret", EventUserCreated)

	assert.False(t, out.Succeeded())
	assert.Equal(t, http.StatusBadGateway, out.StatusCode)
	assert.Equal(t, DefaultMaxAttempts, attempts)
	assert.Equal(t, int32(DefaultMaxAttempts), atomic.LoadInt32(&calls))
}

func TestDeliverWithRetryNetworkFailure(t *testing.T) {
	// Nothing listens here; connections are refused immediately.
	out, attempts := newTestDeliverer().DeliverWithRetry(
		context.Background(), "http://127.0.0.1:1", []byte(`{}`), "secret", EventUserCreated)

	assert.Equal(t, OutcomeNetworkFailure, out.Kind)
	assert.False(t, out.Succeeded())
	assert.NotEmpty(t, out.Error)
	assert.Equal(t, DefaultMaxAttempts, attempts)
}

func TestAttemptSendsContractHeaders(t *testing.T) {
	var got http.Header
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	payload := []byte(`{"event":"POST_PUBLISHED","timestamp":"2026-01-01T00:00:00Z","data":{}}`)
	sig := Sign(payload, "s3cret")

	out := NewClient().Attempt(context.Background(), srv.URL, payload, sig, EventPostPublished)

	require.True(t, out.Succeeded())
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, sig, got.Get("X-Webhook-Signature"))
	assert.Equal(t, "POST_PUBLISHED", got.Get("X-Webhook-Event"))
	assert.Equal(t, "Andorinha-Webhooks/1.0", got.Get("User-Agent"))
	assert.Equal(t, payload, body)
}

func TestOutcomeRetryable(t *testing.T) {
	assert.True(t, Outcome{Kind: OutcomeNetworkFailure}.Retryable())
	assert.True(t, Outcome{Kind: OutcomeHTTPFailure, StatusCode: 500}.Retryable())
	assert.True(t, Outcome{Kind: OutcomeHTTPFailure, StatusCode: 503}.Retryable())
	assert.False(t, Outcome{Kind: OutcomeHTTPFailure, StatusCode: 400}.Retryable())
	assert.False(t, Outcome{Kind: OutcomeHTTPFailure, StatusCode: 404}.Retryable())
	assert.False(t, Outcome{Kind: OutcomeHTTPFailure, StatusCode: 429}.Retryable())
	assert.False(t, Outcome{Kind: OutcomeSuccess, StatusCode: 200}.Retryable())
}
