package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hookrelay/internal/buildinfo"
	"hookrelay/internal/model"
)

// WebhooksHandler handles POST/GET /v1/webhooks
func (s *Server) WebhooksHandler(w http.ResponseWriter, r *http.Request) {
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Registry.Create(r.Context(), p.Tenant, req)
		if err != nil {
			writeError(w, r, "Create webhook failed", err)
			return
		}
		// The only response that ever carries the secret.
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		items, err := s.Registry.List(r.Context(), p.Tenant)
		if err != nil {
			writeError(w, r, "List webhooks failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// WebhookByIDHandler handles /v1/webhooks/{id} plus the /test, /deliveries
// and /deliveries/stream subresources.
func (s *Server) WebhookByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/webhooks/")
	if rest == r.URL.Path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	sub := strings.Join(parts[1:], "/")

	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}

	switch sub {
	case "":
		s.webhookResource(w, r, p.Tenant, id)
	case "test":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rec, err := s.Dispatcher.TestDelivery(r.Context(), p.Tenant, id)
		if err != nil {
			writeError(w, r, "Test delivery failed", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case "deliveries":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.deliveriesList(w, r, p.Tenant, id)
	case "deliveries/stream":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.deliveriesStream(w, r, p.Tenant, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) webhookResource(w http.ResponseWriter, r *http.Request, tenant, id string) {
	switch r.Method {
	case http.MethodGet:
		sub, err := s.Registry.Get(r.Context(), tenant, id)
		if err != nil {
			writeError(w, r, "Get webhook failed", err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	case http.MethodPatch:
		var patch model.SubscriptionPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		sub, err := s.Registry.Update(r.Context(), tenant, id, patch)
		if err != nil {
			writeError(w, r, "Update webhook failed", err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	case http.MethodDelete:
		if err := s.Registry.Delete(r.Context(), tenant, id); err != nil {
			writeError(w, r, "Delete webhook failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) deliveriesList(w http.ResponseWriter, r *http.Request, tenant, id string) {
	q := r.URL.Query()
	filter := model.AttemptFilter{
		Status: q.Get("status"),
		Event:  q.Get("event"),
	}
	if v := q.Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &filter.Limit)
	}
	if v := q.Get("since"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Since = ts
		}
	}
	if v := q.Get("until"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Until = ts
		}
	}
	items, err := s.Store.QueryAttempts(r.Context(), tenant, id, filter)
	if err != nil {
		writeError(w, r, "List deliveries failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// EventsHandler handles POST /v1/events: fire-and-forget fan-out.
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	var req struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if strings.TrimSpace(req.Event) == "" {
		writeProblem(w, http.StatusBadRequest, "Missing event", "event is required", r.URL.Path)
		return
	}
	// Pipelines outlive the request; detach from the request context.
	s.Dispatcher.Trigger(context.WithoutCancel(r.Context()), p.Tenant, req.Event, req.Data)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Info())
}
