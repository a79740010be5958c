package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hookrelay/internal/config"
	"hookrelay/internal/model"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(config.Config{}, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func adminReq(method, path string, body []byte) *http.Request {
	var r *http.Request
	if body != nil {
		r = httptest.NewRequest(method, path, bytes.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	r.Header.Set("X-Tenant-Id", "t_test")
	r.Header.Set("X-Role", "admin")
	return r
}

func createWebhook(t *testing.T, s *Server, url string, events ...string) model.Subscription {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"name": "test hook", "url": url, "events": events})
	rr := httptest.NewRecorder()
	s.WebhooksHandler(rr, adminReq(http.MethodPost, "/v1/webhooks", body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create webhook: %d %s", rr.Code, rr.Body.String())
	}
	var sub model.Subscription
	if err := json.Unmarshal(rr.Body.Bytes(), &sub); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	return sub
}

func TestHealthReady(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.HealthHandler(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.ReadyHandler(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
}

func TestWebhookLifecycle(t *testing.T) {
	s := newTestServer(t)
	sub := createWebhook(t, s, "https://example.com/hook", "order.created")
	if len(sub.Secret) != 64 {
		t.Fatalf("create should reveal a 64-char secret, got %q", sub.Secret)
	}
	if sub.RetryCount != 3 || sub.TimeoutMs != 30000 || !sub.IsActive {
		t.Fatalf("defaults not applied: %+v", sub)
	}

	// GET hides the secret
	rr := httptest.NewRecorder()
	s.WebhookByIDHandler(rr, adminReq(http.MethodGet, "/v1/webhooks/"+sub.ID, nil))
	if rr.Code != 200 {
		t.Fatalf("get: %d", rr.Code)
	}
	var got model.Subscription
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if got.Secret != "" {
		t.Fatalf("get must not reveal the secret")
	}

	// PATCH
	patch := []byte(`{"name":"renamed","retryCount":1}`)
	rr = httptest.NewRecorder()
	s.WebhookByIDHandler(rr, adminReq(http.MethodPatch, "/v1/webhooks/"+sub.ID, patch))
	if rr.Code != 200 {
		t.Fatalf("patch: %d %s", rr.Code, rr.Body.String())
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if got.Name != "renamed" || got.RetryCount != 1 {
		t.Fatalf("patch not applied: %+v", got)
	}

	// list
	rr = httptest.NewRecorder()
	s.WebhooksHandler(rr, adminReq(http.MethodGet, "/v1/webhooks", nil))
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), sub.ID) {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}

	// DELETE then GET -> 404
	rr = httptest.NewRecorder()
	s.WebhookByIDHandler(rr, adminReq(http.MethodDelete, "/v1/webhooks/"+sub.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	s.WebhookByIDHandler(rr, adminReq(http.MethodGet, "/v1/webhooks/"+sub.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rr.Code)
	}
}

func TestWebhookValidationProblem(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"name":"x","url":"ftp://example.com","events":["a"]}`)
	rr := httptest.NewRecorder()
	s.WebhooksHandler(rr, adminReq(http.MethodPost, "/v1/webhooks", body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var p Problem
	if err := json.Unmarshal(rr.Body.Bytes(), &p); err != nil || p.Status != 400 {
		t.Fatalf("expected problem body: %v %s", err, rr.Body.String())
	}
}

func TestCrossTenantIsNotFound(t *testing.T) {
	s := newTestServer(t)
	sub := createWebhook(t, s, "https://example.com/hook", "order.created")

	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks/"+sub.ID, nil)
	req.Header.Set("X-Tenant-Id", "t_other")
	req.Header.Set("X-Role", "admin")
	rr := httptest.NewRecorder()
	s.WebhookByIDHandler(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("cross-tenant get should be 404, got %d", rr.Code)
	}
}

func TestNonAdminForbidden(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/webhooks", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	req.Header.Set("X-Role", "viewer")
	rr := httptest.NewRecorder()
	s.WebhooksHandler(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestEventsTriggerAndDeliveriesList(t *testing.T) {
	s := newTestServer(t)
	var calls int32
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(200)
	}))
	defer endpoint.Close()
	sub := createWebhook(t, s, endpoint.URL, "order.created")

	body := []byte(`{"event":"order.created","data":{"orderId":"o1"}}`)
	rr := httptest.NewRecorder()
	s.EventsHandler(rr, adminReq(http.MethodPost, "/v1/events", body))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("trigger: %d %s", rr.Code, rr.Body.String())
	}

	// poll the delivery log until the attempt is finalized
	deadline := time.Now().Add(2 * time.Second)
	var items []model.DeliveryAttempt
	for time.Now().Before(deadline) {
		rr = httptest.NewRecorder()
		s.WebhookByIDHandler(rr, adminReq(http.MethodGet, "/v1/webhooks/"+sub.ID+"/deliveries", nil))
		if rr.Code != 200 {
			t.Fatalf("deliveries: %d", rr.Code)
		}
		var res struct {
			Items []model.DeliveryAttempt `json:"items"`
		}
		_ = json.Unmarshal(rr.Body.Bytes(), &res)
		items = res.Items
		if len(items) == 1 && items[0].Status == model.StatusSuccess {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(items) != 1 || items[0].Status != model.StatusSuccess {
		t.Fatalf("expected one successful delivery, got %+v", items)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("endpoint called %d times", calls)
	}
	if items[0].Event != "order.created" || items[0].StatusCode == nil || *items[0].StatusCode != 200 {
		t.Fatalf("record fields: %+v", items[0])
	}
}

func TestEventsRequiresEvent(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.EventsHandler(rr, adminReq(http.MethodPost, "/v1/events", []byte(`{"data":{}}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestTestDeliveryEndpoint(t *testing.T) {
	s := newTestServer(t)
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer endpoint.Close()
	sub := createWebhook(t, s, endpoint.URL, "order.created")

	rr := httptest.NewRecorder()
	s.WebhookByIDHandler(rr, adminReq(http.MethodPost, "/v1/webhooks/"+sub.ID+"/test", nil))
	if rr.Code != 200 {
		t.Fatalf("test delivery: %d %s", rr.Code, rr.Body.String())
	}
	var rec model.DeliveryAttempt
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Event != "webhook.test" || rec.Attempt != 1 || rec.Status != model.StatusSuccess {
		t.Fatalf("unexpected test record: %+v", rec)
	}
}

func TestTestDeliveryUnknownWebhook(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	s.WebhookByIDHandler(rr, adminReq(http.MethodPost, "/v1/webhooks/nope/test", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDeliveryResultsReachBroker(t *testing.T) {
	s := newTestServer(t)
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer endpoint.Close()
	sub := createWebhook(t, s, endpoint.URL, "order.created")

	ch := s.Broker.Subscribe(sub.ID)
	defer s.Broker.Unsubscribe(sub.ID, ch)

	rr := httptest.NewRecorder()
	s.WebhookByIDHandler(rr, adminReq(http.MethodPost, "/v1/webhooks/"+sub.ID+"/test", nil))
	if rr.Code != 200 {
		t.Fatalf("test delivery: %d", rr.Code)
	}

	select {
	case evt := <-ch:
		if evt.WebhookID != sub.ID || evt.Attempt.Event != "webhook.test" {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery event published")
	}
}
