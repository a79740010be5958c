// Package main runs a demo WebSocket client for webhook delivery streams.
// It registers a webhook against a local receiver, opens the delivery
// stream, fires an event and prints the attempt records as they arrive.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Local receiver for the deliveries
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatal(err)
	}
	go func() {
		_ = http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("receiver <- %s %s", r.Header.Get("X-Webhook-Event"), r.Header.Get("X-Webhook-Signature"))
			w.WriteHeader(200)
		}))
	}()
	receiverURL := "http://" + ln.Addr().String()

	// Register a webhook
	body, _ := json.Marshal(map[string]any{
		"name": "demo", "url": receiverURL, "events": []string{"demo.event"},
	})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var sub struct {
		ID     string `json:"id"`
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		log.Fatal(err)
	}
	log.Printf("Webhook ID: %s (secret %s...)", sub.ID, sub.Secret[:8])

	// Open the delivery stream
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/webhooks/" + sub.ID + "/deliveries/stream"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s", msg)
		}
	}()

	// Fire an event
	time.Sleep(500 * time.Millisecond)
	evt := []byte(`{"event":"demo.event","data":{"demo":true}}`)
	evtReq, _ := http.NewRequest(http.MethodPost, base+"/v1/events", bytes.NewReader(evt))
	evtReq.Header.Set("Content-Type", "application/json")
	evtReq.Header.Set("X-Tenant-Id", "t_demo")
	evtReq.Header.Set("X-Role", "admin")
	_, _ = http.DefaultClient.Do(evtReq)

	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
}
