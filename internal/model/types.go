package model

import (
	"encoding/json"
	"time"
)

// Delivery attempt statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Defaults applied at subscription creation.
const (
	DefaultRetryCount = 3
	DefaultTimeoutMs  = 30000
)

// Subscription is a tenant's registered webhook endpoint plus its event
// filter and delivery policy.
type Subscription struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenantId"`
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Secret     string            `json:"secret,omitempty"`
	Events     []string          `json:"events"`
	Headers    map[string]string `json:"headers,omitempty"`
	RetryCount int               `json:"retryCount"`
	TimeoutMs  int               `json:"timeoutMs"`
	IsActive   bool              `json:"isActive"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// WantsEvent reports whether the subscription's event filter includes event.
func (s Subscription) WantsEvent(event string) bool {
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Timeout returns the per-attempt network timeout as a duration.
func (s Subscription) Timeout() time.Duration {
	ms := s.TimeoutMs
	if ms <= 0 {
		ms = DefaultTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Redacted returns a copy with the secret stripped; everything except the
// create response returns subscriptions in this form.
func (s Subscription) Redacted() Subscription {
	s.Secret = ""
	return s
}

// SubscriptionRequest is the caller-supplied spec for a new subscription.
// The secret is always generated server-side and never accepted here.
type SubscriptionRequest struct {
	Name       string            `json:"name"`
	URL        string            `json:"url"`
	Events     []string          `json:"events"`
	Headers    map[string]string `json:"headers,omitempty"`
	RetryCount *int              `json:"retryCount,omitempty"`
	TimeoutMs  *int              `json:"timeoutMs,omitempty"`
	IsActive   *bool             `json:"isActive,omitempty"`
}

// SubscriptionPatch is a partial update; nil fields are left unchanged.
// URL changes are re-validated; the secret is immutable.
type SubscriptionPatch struct {
	Name       *string           `json:"name,omitempty"`
	URL        *string           `json:"url,omitempty"`
	Events     []string          `json:"events,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	RetryCount *int              `json:"retryCount,omitempty"`
	TimeoutMs  *int              `json:"timeoutMs,omitempty"`
	IsActive   *bool             `json:"isActive,omitempty"`
}

// DeliveryAttempt is one row of the delivery audit trail. A retry appends a
// new record with Attempt incremented; prior records are never rewritten.
type DeliveryAttempt struct {
	ID           string          `json:"id"`
	WebhookID    string          `json:"webhookId"`
	TenantID     string          `json:"tenantId"`
	Event        string          `json:"event"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	Attempt      int             `json:"attempt"`
	StatusCode   *int            `json:"statusCode,omitempty"`
	ResponseBody string          `json:"responseBody,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// AttemptPatch finalizes a pending attempt record once the network call
// resolves.
type AttemptPatch struct {
	Status       string
	StatusCode   *int
	ResponseBody string
	Error        string
	CompletedAt  *time.Time
}

// AttemptFilter narrows delivery log queries. Zero values mean "no filter".
type AttemptFilter struct {
	Status string
	Event  string
	Since  time.Time
	Until  time.Time
	Limit  int
}

// EventPayload is the wire body POSTed to subscribers. The signature is
// computed over the serialized bytes of this value; the exact bytes sent are
// signed, never a re-marshaled copy.
type EventPayload struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
	TenantID  string         `json:"tenantId"`
}
