package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/huntmap/internal/adapters/nats"
	"github.com/samirrijal/huntmap/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to a team's changes.
type wsMessage struct {
	Action string `json:"action"` // "subscribe" | "unsubscribe"
	Team   string `json:"team"`
}

// WebSocketHandler returns a handler that upgrades to WebSocket and relays
// annotation change events from NATS to connected clients.
// Clients send JSON: {"action":"subscribe","team":"team-42"}.
// A ?team= query parameter subscribes on connect.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		if nc == nil {
			_ = c.WriteJSON(map[string]string{"error": "event relay not configured"})
			return
		}

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(team string) {
			subject := natsadapter.Subject(team)
			if _, exists := subs[subject]; exists {
				_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
				return
			}
			s, err := nc.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(json.RawMessage(msg.Data))
			})
			if err != nil {
				_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
				return
			}
			subs[subject] = s
			_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})
		}

		if team := c.Query("team"); team != "" {
			subscribe(team)
		}

		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if m.Team == "" {
				_ = writeJSON(map[string]string{"error": "team is required"})
				continue
			}

			switch m.Action {
			case "subscribe":
				subscribe(m.Team)

			case "unsubscribe":
				subject := natsadapter.Subject(m.Team)
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
