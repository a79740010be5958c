package store

import (
	"context"
	"errors"

	"hookrelay/internal/model"
)

// Store is the persistence contract shared by the webhook registry and the
// delivery log. All reads and mutations are tenant-scoped; operations on an
// id the tenant does not own fail with ErrNotFound so callers cannot tell a
// foreign subscription apart from a missing one.
type Store interface {
	// Subscriptions (registry)
	CreateSubscription(ctx context.Context, sub model.Subscription) error
	GetSubscription(ctx context.Context, tenantID, id string) (model.Subscription, error)
	UpdateSubscription(ctx context.Context, sub model.Subscription) error
	DeleteSubscription(ctx context.Context, tenantID, id string) error
	ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error)
	ListActiveForEvent(ctx context.Context, tenantID, event string) ([]model.Subscription, error)

	// Delivery attempts (audit log)
	AppendAttempt(ctx context.Context, att model.DeliveryAttempt) (model.DeliveryAttempt, error)
	UpdateAttempt(ctx context.Context, id string, patch model.AttemptPatch) error
	QueryAttempts(ctx context.Context, tenantID, webhookID string, f model.AttemptFilter) ([]model.DeliveryAttempt, error)

	Ping(ctx context.Context) error
}

// MaxQueryLimit caps delivery log reads; it is also the default page size.
const MaxQueryLimit = 100

// ErrNotFound covers both a genuinely missing id and a cross-tenant access;
// the API maps it to 404 without leaking which one it was.
var ErrNotFound = errors.New("not found or access denied")
