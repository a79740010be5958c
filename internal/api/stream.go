package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"hookrelay/internal/store"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// deliveriesStream upgrades to a WebSocket and pushes DeliveryEvents for one
// webhook as its attempts are recorded. The ownership check runs before the
// upgrade so cross-tenant IDs get a plain 404.
func (s *Server) deliveriesStream(w http.ResponseWriter, r *http.Request, tenant, id string) {
	if _, err := s.Registry.Get(r.Context(), tenant, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Webhook not found", err.Error(), r.URL.Path)
		} else {
			writeProblem(w, http.StatusInternalServerError, "Stream setup failed", err.Error(), r.URL.Path)
		}
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)

	// Drain the read side so pings and close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
