package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	headerSignature = "X-Webhook-Signature"
	headerEvent     = "X-Webhook-Event"
	userAgent       = "Andorinha-Webhooks/1.0"

	requestTimeout = 10 * time.Second

	// Response bodies are stored in the delivery log; cap what we read.
	maxResponseBytes = 64 * 1024
)

// OutcomeKind classifies the terminal result of a delivery attempt.
type OutcomeKind int

const (
	// OutcomeSuccess: the receiver answered with a 2xx status.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeHTTPFailure: the receiver answered with a non-2xx status.
	OutcomeHTTPFailure
	// OutcomeNetworkFailure: no HTTP response (timeout, DNS, refused, TLS).
	OutcomeNetworkFailure
)

// Outcome is the classified result of one attempt (or, after retries, the
// final attempt of a delivery chain).
type Outcome struct {
	Kind       OutcomeKind `json:"-"`
	StatusCode int         `json:"status_code,omitempty"`
	Response   string      `json:"response,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Succeeded reports whether the receiver accepted the delivery.
func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSuccess }

// Retryable reports whether a further attempt may change the result: network
// failures and 5xx responses are transient, 4xx rejections are not.
func (o Outcome) Retryable() bool {
	switch o.Kind {
	case OutcomeNetworkFailure:
		return true
	case OutcomeHTTPFailure:
		return o.StatusCode >= 500
	default:
		return false
	}
}

// Client performs single webhook POST attempts. It never retries; retry policy
// lives in Deliverer.
type Client struct {
	http *http.Client
}

func NewClient() *Client {
	return &Client{http: &http.Client{Timeout: requestTimeout}}
}

// Attempt sends one POST carrying the payload and signature to the target URL
// and classifies the result.
func (c *Client) Attempt(ctx context.Context, url string, payload []byte, signature string, event Event) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Outcome{Kind: OutcomeNetworkFailure, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSignature, signature)
	req.Header.Set(headerEvent, string(event))
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return Outcome{Kind: OutcomeNetworkFailure, Error: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Outcome{Kind: OutcomeSuccess, StatusCode: resp.StatusCode, Response: string(body)}
	}
	return Outcome{
		Kind:       OutcomeHTTPFailure,
		StatusCode: resp.StatusCode,
		Response:   string(body),
		Error:      fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
