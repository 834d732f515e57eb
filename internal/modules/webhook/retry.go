package webhook

import (
	"context"
	"time"
)

// DefaultMaxAttempts bounds one delivery chain: the first attempt plus up to
// three retries.
const DefaultMaxAttempts = 4

// Deliverer wraps a Client with exponential-backoff retry. Backoff waits
// suspend only the goroutine delivering to one subscriber.
type Deliverer struct {
	client      *Client
	maxAttempts int
	backoffBase time.Duration
}

func NewDeliverer(client *Client) *Deliverer {
	return &Deliverer{
		client:      client,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: time.Second,
	}
}

// DeliverWithRetry signs the payload and attempts delivery until success, a
// non-retryable failure, or maxAttempts is exhausted. Retryable failures wait
// 2^i×base before attempt i+1 (1s, 2s, 4s at the default base). It returns
// the final outcome and the number of attempts made.
func (d *Deliverer) DeliverWithRetry(ctx context.Context, url string, payload []byte, secret string, event Event) (Outcome, int) {
	signature := Sign(payload, secret)

	var out Outcome
	for attempt := 0; attempt < d.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := d.backoffBase * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return out, attempt
			case <-time.After(delay):
			}
		}

		out = d.client.Attempt(ctx, url, payload, signature, event)
		if out.Succeeded() || !out.Retryable() {
			return out, attempt + 1
		}
	}
	return out, d.maxAttempts
}
