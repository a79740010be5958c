package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"hookrelay/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	subs     map[string]model.Subscription // id -> subscription
	subsTen  map[string][]string           // tenant -> subscription ids
	attempts map[string]*model.DeliveryAttempt
	byHook   map[string][]string // webhookID -> attempt ids, append order
}

func NewMemory() *Memory {
	return &Memory{
		subs:     map[string]model.Subscription{},
		subsTen:  map[string][]string{},
		attempts: map[string]*model.DeliveryAttempt{},
		byHook:   map[string][]string{},
	}
}

func (m *Memory) CreateSubscription(ctx context.Context, sub model.Subscription) error {
	m.mu.Lock(); defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	m.subsTen[sub.TenantID] = append(m.subsTen[sub.TenantID], sub.ID)
	return nil
}

func (m *Memory) GetSubscription(ctx context.Context, tenantID, id string) (model.Subscription, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.TenantID != tenantID { return model.Subscription{}, ErrNotFound }
	return s, nil
}

func (m *Memory) UpdateSubscription(ctx context.Context, sub model.Subscription) error {
	m.mu.Lock(); defer m.mu.Unlock()
	cur, ok := m.subs[sub.ID]
	if !ok || cur.TenantID != sub.TenantID { return ErrNotFound }
	m.subs[sub.ID] = sub
	return nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock(); defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok || s.TenantID != tenantID { return ErrNotFound }
	delete(m.subs, id)
	ids := m.subsTen[tenantID]
	out := make([]string, 0, len(ids))
	for _, v := range ids { if v != id { out = append(out, v) } }
	m.subsTen[tenantID] = out
	return nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID string) ([]model.Subscription, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, id := range m.subsTen[tenantID] {
		out = append(out, m.subs[id])
	}
	return out, nil
}

func (m *Memory) ListActiveForEvent(ctx context.Context, tenantID, event string) ([]model.Subscription, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, id := range m.subsTen[tenantID] {
		s := m.subs[id]
		if s.IsActive && s.WantsEvent(event) { out = append(out, s) }
	}
	return out, nil
}

// Delivery attempts

func (m *Memory) AppendAttempt(ctx context.Context, att model.DeliveryAttempt) (model.DeliveryAttempt, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	if att.ID == "" { att.ID = uuid.New().String() }
	cp := att
	m.attempts[att.ID] = &cp
	m.byHook[att.WebhookID] = append(m.byHook[att.WebhookID], att.ID)
	return att, nil
}

func (m *Memory) UpdateAttempt(ctx context.Context, id string, patch model.AttemptPatch) error {
	m.mu.Lock(); defer m.mu.Unlock()
	a := m.attempts[id]
	if a == nil { return ErrNotFound }
	if patch.Status != "" { a.Status = patch.Status }
	if patch.StatusCode != nil { a.StatusCode = patch.StatusCode }
	if patch.ResponseBody != "" { a.ResponseBody = patch.ResponseBody }
	if patch.Error != "" { a.Error = patch.Error }
	if patch.CompletedAt != nil { a.CompletedAt = patch.CompletedAt }
	return nil
}

func (m *Memory) QueryAttempts(ctx context.Context, tenantID, webhookID string, f model.AttemptFilter) ([]model.DeliveryAttempt, error) {
	m.mu.Lock(); defer m.mu.Unlock()
	// Ownership check mirrors the registry's tenant isolation.
	s, ok := m.subs[webhookID]
	if !ok || s.TenantID != tenantID { return nil, ErrNotFound }
	limit := f.Limit
	if limit <= 0 || limit > MaxQueryLimit { limit = MaxQueryLimit }
	out := []model.DeliveryAttempt{}
	for _, id := range m.byHook[webhookID] {
		a := m.attempts[id]
		if a == nil { continue }
		if f.Status != "" && a.Status != f.Status { continue }
		if f.Event != "" && a.Event != f.Event { continue }
		if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) { continue }
		if !f.Until.IsZero() && a.CreatedAt.After(f.Until) { continue }
		out = append(out, *a)
	}
	// newest first
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit { out = out[:limit] }
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
