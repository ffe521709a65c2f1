// Package main runs a demo WebSocket client for entity KPI events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create an entity to watch
	body := []byte(`{"tenantId":"t_demo","entityType":"Provisión","start":"02/01/2024 - 09:00"}`)
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/entities", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Fatal(err)
	}
	if created.ID == "" {
		log.Fatal("no entity id returned")
	}
	entityID := created.ID
	log.Printf("created entity %s", entityID)

	// Connect WebSocket
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("localhost:%s", port), Path: "/v1/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	// subscribe to the entity's events
	pl, _ := json.Marshal(map[string]any{"entityId": entityID})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// Trigger events: add a stop, then finalize
	time.Sleep(500 * time.Millisecond)
	stopBody := []byte(`{"stops":[{"type":"Global","start":"02/01/2024 - 12:00","end":"02/01/2024 - 13:00"}]}`)
	stopReq, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/v1/entities/%s/stops", base, entityID), bytes.NewReader(stopBody))
	stopReq.Header.Set("Content-Type", "application/json")
	stopReq.Header.Set("X-Tenant-Id", "t_demo")
	stopReq.Header.Set("X-Role", "admin")
	_, _ = http.DefaultClient.Do(stopReq)

	finBody := []byte(`{"end":"03/01/2024 - 18:00"}`)
	finReq, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/v1/entities/%s/finalize", base, entityID), bytes.NewReader(finBody))
	finReq.Header.Set("Content-Type", "application/json")
	finReq.Header.Set("X-Tenant-Id", "t_demo")
	finReq.Header.Set("X-Role", "admin")
	_, _ = http.DefaultClient.Do(finReq)

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
