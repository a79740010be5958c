package webhooks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/model"
	"hookrelay/internal/store"
)

// ValidationError rejects a malformed subscription spec before anything is
// persisted. The API maps it to 400.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Reason) }

// secretBytes gives a 256-bit HMAC key, hex-encoded to 64 chars.
const secretBytes = 32

// Registry owns subscription lifecycle: validation, server-side secret
// generation, defaults, and tenant-scoped CRUD on top of the store.
type Registry struct {
	Store store.Store
}

func NewRegistry(s store.Store) *Registry { return &Registry{Store: s} }

// Create validates the spec, generates the secret and persists the
// subscription. The returned value carries the secret in plaintext; this is
// the only place it is ever revealed.
func (r *Registry) Create(ctx context.Context, tenantID string, req model.SubscriptionRequest) (model.Subscription, error) {
	if err := validateSpec(req.Name, req.URL, req.Events); err != nil {
		return model.Subscription{}, err
	}
	secret, err := newSecret()
	if err != nil {
		return model.Subscription{}, err
	}
	sub := model.Subscription{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		Name:       req.Name,
		URL:        req.URL,
		Secret:     secret,
		Events:     req.Events,
		Headers:    req.Headers,
		RetryCount: model.DefaultRetryCount,
		TimeoutMs:  model.DefaultTimeoutMs,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if req.RetryCount != nil { sub.RetryCount = *req.RetryCount }
	if req.TimeoutMs != nil { sub.TimeoutMs = *req.TimeoutMs }
	if req.IsActive != nil { sub.IsActive = *req.IsActive }
	if sub.RetryCount < 0 {
		return model.Subscription{}, &ValidationError{Field: "retryCount", Reason: "must be >= 0"}
	}
	if sub.TimeoutMs <= 0 {
		return model.Subscription{}, &ValidationError{Field: "timeoutMs", Reason: "must be > 0"}
	}
	if err := r.Store.CreateSubscription(ctx, sub); err != nil {
		return model.Subscription{}, err
	}
	return sub, nil
}

// Update applies a partial patch. The secret is immutable; a changed URL is
// re-validated before persisting.
func (r *Registry) Update(ctx context.Context, tenantID, id string, patch model.SubscriptionPatch) (model.Subscription, error) {
	sub, err := r.Store.GetSubscription(ctx, tenantID, id)
	if err != nil {
		return model.Subscription{}, err
	}
	if patch.Name != nil { sub.Name = *patch.Name }
	if patch.URL != nil { sub.URL = *patch.URL }
	if patch.Events != nil { sub.Events = patch.Events }
	if patch.Headers != nil { sub.Headers = patch.Headers }
	if patch.RetryCount != nil { sub.RetryCount = *patch.RetryCount }
	if patch.TimeoutMs != nil { sub.TimeoutMs = *patch.TimeoutMs }
	if patch.IsActive != nil { sub.IsActive = *patch.IsActive }
	if err := validateSpec(sub.Name, sub.URL, sub.Events); err != nil {
		return model.Subscription{}, err
	}
	if sub.RetryCount < 0 {
		return model.Subscription{}, &ValidationError{Field: "retryCount", Reason: "must be >= 0"}
	}
	if sub.TimeoutMs <= 0 {
		return model.Subscription{}, &ValidationError{Field: "timeoutMs", Reason: "must be > 0"}
	}
	if err := r.Store.UpdateSubscription(ctx, sub); err != nil {
		return model.Subscription{}, err
	}
	return sub.Redacted(), nil
}

func (r *Registry) Get(ctx context.Context, tenantID, id string) (model.Subscription, error) {
	sub, err := r.Store.GetSubscription(ctx, tenantID, id)
	if err != nil {
		return model.Subscription{}, err
	}
	return sub.Redacted(), nil
}

func (r *Registry) Delete(ctx context.Context, tenantID, id string) error {
	return r.Store.DeleteSubscription(ctx, tenantID, id)
}

func (r *Registry) List(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	subs, err := r.Store.ListSubscriptions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		subs[i] = subs[i].Redacted()
	}
	return subs, nil
}

func (r *Registry) ListActiveForEvent(ctx context.Context, tenantID, event string) ([]model.Subscription, error) {
	return r.Store.ListActiveForEvent(ctx, tenantID, event)
}

func validateSpec(name, rawURL string, events []string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if err := validateURL(rawURL); err != nil {
		return err
	}
	if len(events) == 0 {
		return &ValidationError{Field: "events", Reason: "at least one event required"}
	}
	for _, e := range events {
		if strings.TrimSpace(e) == "" {
			return &ValidationError{Field: "events", Reason: "event names must be non-empty"}
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ValidationError{Field: "url", Reason: "must be an absolute URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Reason: "scheme must be http or https"}
	}
	return nil
}

func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
