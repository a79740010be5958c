package webhooks

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"hookrelay/internal/model"
	"hookrelay/internal/store"
)

func newTestRegistry() *Registry { return NewRegistry(store.NewMemory()) }

func TestCreateGeneratesSecretAndDefaults(t *testing.T) {
	r := newTestRegistry()
	sub, err := r.Create(context.Background(), "t1", model.SubscriptionRequest{
		Name: "orders", URL: "https://example.com/hook", Events: []string{"order.created"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b, err := hex.DecodeString(sub.Secret); err != nil || len(b) != secretBytes {
		t.Fatalf("secret should be %d random bytes hex-encoded, got %q", secretBytes, sub.Secret)
	}
	if sub.RetryCount != model.DefaultRetryCount || sub.TimeoutMs != model.DefaultTimeoutMs {
		t.Fatalf("defaults not applied: %+v", sub)
	}
	if !sub.IsActive {
		t.Fatalf("new subscription should be active")
	}
	// Secret is revealed at create only.
	got, err := r.Get(context.Background(), "t1", sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Secret != "" {
		t.Fatalf("get must not return the secret")
	}
}

func TestCreateValidation(t *testing.T) {
	r := newTestRegistry()
	cases := []model.SubscriptionRequest{
		{Name: "", URL: "https://example.com", Events: []string{"a"}},
		{Name: "x", URL: "not-a-url", Events: []string{"a"}},
		{Name: "x", URL: "ftp://example.com", Events: []string{"a"}},
		{Name: "x", URL: "/relative", Events: []string{"a"}},
		{Name: "x", URL: "https://example.com", Events: nil},
		{Name: "x", URL: "https://example.com", Events: []string{" "}},
	}
	for i, req := range cases {
		_, err := r.Create(context.Background(), "t1", req)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestUpdatePreservesSecret(t *testing.T) {
	r := newTestRegistry()
	sub, err := r.Create(context.Background(), "t1", model.SubscriptionRequest{
		Name: "orders", URL: "https://example.com/hook", Events: []string{"order.created"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	name := "renamed"
	if _, err := r.Update(context.Background(), "t1", sub.ID, model.SubscriptionPatch{Name: &name}); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored, err := r.Store.GetSubscription(context.Background(), "t1", sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Secret != sub.Secret {
		t.Fatalf("secret must be immutable")
	}
	if stored.Name != "renamed" {
		t.Fatalf("patch not applied: %+v", stored)
	}
}

func TestUpdateRejectsBadURL(t *testing.T) {
	r := newTestRegistry()
	sub, _ := r.Create(context.Background(), "t1", model.SubscriptionRequest{
		Name: "orders", URL: "https://example.com/hook", Events: []string{"order.created"},
	})
	bad := "::::"
	_, err := r.Update(context.Background(), "t1", sub.ID, model.SubscriptionPatch{URL: &bad})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTenantIsolation(t *testing.T) {
	r := newTestRegistry()
	sub, _ := r.Create(context.Background(), "tenant-a", model.SubscriptionRequest{
		Name: "orders", URL: "https://example.com/hook", Events: []string{"order.created"},
	})
	ctx := context.Background()
	if _, err := r.Get(ctx, "tenant-b", sub.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cross-tenant get: want ErrNotFound, got %v", err)
	}
	name := "stolen"
	if _, err := r.Update(ctx, "tenant-b", sub.ID, model.SubscriptionPatch{Name: &name}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cross-tenant update: want ErrNotFound, got %v", err)
	}
	if err := r.Delete(ctx, "tenant-b", sub.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cross-tenant delete: want ErrNotFound, got %v", err)
	}
	// The owner still sees it.
	if _, err := r.Get(ctx, "tenant-a", sub.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
}

func TestListActiveForEventFilters(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	mk := func(events []string, active bool) model.Subscription {
		sub, err := r.Create(ctx, "t1", model.SubscriptionRequest{
			Name: "s", URL: "https://example.com/hook", Events: events, IsActive: &active,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return sub
	}
	match := mk([]string{"order.created", "order.updated"}, true)
	mk([]string{"order.created"}, false)    // inactive
	mk([]string{"invoice.created"}, true)   // wrong event
	subs, err := r.ListActiveForEvent(ctx, "t1", "order.created")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != match.ID {
		t.Fatalf("expected exactly the matching active subscription, got %+v", subs)
	}
}
