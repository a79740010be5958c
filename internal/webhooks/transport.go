package webhooks

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"hookrelay/internal/model"
)

// Reserved request headers; subscription-level static headers can never
// override these.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// maxResponseBytes caps the stored response body.
const maxResponseBytes = 5000

// Outcome classifies one delivery attempt. Err is set only for
// transport-level failures (timeout, DNS, connection refused); a non-2xx
// response has a StatusCode and no Err.
type Outcome struct {
	StatusCode *int
	Body       string
	Err        error
	LatencyMs  int
}

// Success reports a 2xx response.
func (o Outcome) Success() bool {
	return o.Err == nil && o.StatusCode != nil && *o.StatusCode >= 200 && *o.StatusCode < 300
}

// Transport performs single bounded-timeout POST attempts. The shared
// http.Client carries no timeout of its own; each attempt is bounded by the
// subscription's timeoutMs through the request context. The optional limiter
// throttles outbound requests across all pipelines.
type Transport struct {
	Client  *http.Client
	Limiter *rate.Limiter
}

func NewTransport(ratePerSec float64, burst int) *Transport {
	t := &Transport{Client: &http.Client{}}
	if ratePerSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		t.Limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return t
}

// Deliver issues one signed POST to the subscription URL and classifies the
// result. A timeout aborts the in-flight request and counts as a transport
// error, not a response.
func (t *Transport) Deliver(ctx context.Context, sub model.Subscription, body []byte, event, timestamp string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, sub.Timeout())
	defer cancel()

	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return Outcome{Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Err: err}
	}
	for k, v := range sub.Headers {
		req.Header.Set(k, v)
	}
	// Reserved headers last so they win over static ones.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(sub.Secret, body))
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderTimestamp, timestamp)

	start := time.Now()
	resp, err := t.Client.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		return Outcome{Err: err, LatencyMs: latency}
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	code := resp.StatusCode
	return Outcome{StatusCode: &code, Body: string(b), LatencyMs: latency}
}
