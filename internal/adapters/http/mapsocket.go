package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/huntmap/internal/adapters/mapbridge"
	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/core/usecases"
	"github.com/samirrijal/huntmap/internal/pkg/metrics"
)

// mapInbound is a message from the browser. Type "event" carries a widget
// event in Payload; the other types are user actions.
type mapInbound struct {
	Type    string             `json:"type"` // event | select_tool | submit | cancel | switch_team | refresh
	Payload json.RawMessage    `json:"payload,omitempty"`
	Mode    string             `json:"mode,omitempty"`
	Team    string             `json:"team,omitempty"`
	Values  ports.DialogValues `json:"values"`
}

// mapOutbound is a message to the browser.
type mapOutbound struct {
	Type    string                `json:"type"` // command | hint | dialog | notify | load_failed | error
	Command *mapbridge.Command    `json:"command,omitempty"`
	Hint    *ports.UIHint         `json:"hint,omitempty"`
	Dialog  *ports.DialogSnapshot `json:"dialog,omitempty"`
	Level   string                `json:"level,omitempty"`
	Message string                `json:"message,omitempty"`
}

// mapClient binds one browser connection to one MapSession. It is the
// session's view and the engine's command sink.
type mapClient struct {
	write func([]byte) error

	mu      sync.Mutex
	engine  *mapbridge.Engine
	session *usecases.MapSession

	// jobs tracks storage-bound actions running off the read loop.
	jobs sync.WaitGroup
}

func newMapClient(deps *Dependencies, userID string, write func([]byte) error) *mapClient {
	mc := &mapClient{write: write}
	factory := mapbridge.Factory(mapbridge.SenderFunc(mc.sendCommand), mc.setEngine)

	opts := deps.Session
	opts.UserID = userID
	mc.session = usecases.NewMapSession(factory, deps.Tokens, deps.Annotations, deps.Subscriber, mc, opts)
	return mc
}

func (mc *mapClient) setEngine(e *mapbridge.Engine) {
	mc.mu.Lock()
	mc.engine = e
	mc.mu.Unlock()
}

func (mc *mapClient) currentEngine() *mapbridge.Engine {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.engine
}

// async runs fn off the read loop. Widget events and tool selections are
// still dispatched while fn waits on storage.
func (mc *mapClient) async(fn func() error) {
	mc.jobs.Add(1)
	go func() {
		defer mc.jobs.Done()
		if err := fn(); err != nil {
			_ = mc.send(mapOutbound{Type: "error", Message: err.Error()})
		}
	}()
}

// wait blocks until every action started by async has returned.
func (mc *mapClient) wait() {
	mc.jobs.Wait()
}

func (mc *mapClient) send(msg mapOutbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return mc.write(data)
}

func (mc *mapClient) sendCommand(cmd mapbridge.Command) error {
	return mc.send(mapOutbound{Type: "command", Command: &cmd})
}

func (mc *mapClient) HintChanged(hint ports.UIHint) {
	_ = mc.send(mapOutbound{Type: "hint", Hint: &hint})
}

func (mc *mapClient) DialogChanged(dialog ports.DialogSnapshot) {
	_ = mc.send(mapOutbound{Type: "dialog", Dialog: &dialog})
}

func (mc *mapClient) Notify(level, message string) {
	_ = mc.send(mapOutbound{Type: "notify", Level: level, Message: message})
}

func (mc *mapClient) LoadFailed(err error) {
	_ = mc.send(mapOutbound{Type: "load_failed", Message: err.Error()})
}

// handle processes one browser message.
func (mc *mapClient) handle(ctx context.Context, raw []byte) error {
	var m mapInbound
	if err := json.Unmarshal(raw, &m); err != nil {
		return errors.New("invalid JSON")
	}

	switch m.Type {
	case "event":
		ev, err := mapbridge.DecodeEvent(m.Payload)
		if err != nil {
			return err
		}
		eng := mc.currentEngine()
		if eng == nil {
			return errors.New("map not initialized")
		}
		eng.Dispatch(ev)
		return nil

	case "select_tool":
		err := mc.session.SelectTool(domain.InteractionMode(m.Mode))
		if errors.Is(err, usecases.ErrToolsDisabled) {
			return nil
		}
		return err

	case "submit":
		mc.async(func() error {
			// outcomes reach the browser through the dialog state and Notify
			_ = mc.session.Submit(ctx, m.Values)
			return nil
		})
		return nil

	case "cancel":
		mc.session.Cancel()
		return nil

	case "switch_team":
		return mc.session.SwitchTeam(ctx, m.Team)

	case "refresh":
		mc.async(func() error { return mc.session.Refresh(ctx) })
		return nil
	}
	return fmt.Errorf("unknown message type: %s", m.Type)
}

// MapSocketHandler bridges a browser map widget to a server-side map
// session. Query parameters: team (selected team), container (widget
// container id, default "map"), user (author recorded on new annotations).
func MapSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		team := c.Query("team")
		container := c.Query("container", "map")
		userID := c.Query("user")
		log := slog.Default().With("remote", c.RemoteAddr().String(), "team_id", team)

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var wmu sync.Mutex
		write := func(data []byte) error {
			wmu.Lock()
			defer wmu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		mc := newMapClient(deps, userID, write)
		ctx, cancel := context.WithCancel(context.Background())
		defer func() {
			cancel()
			mc.wait()
			if err := mc.session.Close(); err != nil {
				log.Warn("map session close", "error", err)
			}
		}()

		if err := mc.session.Open(ctx, container, team); err != nil {
			log.Warn("map session open failed", "error", err)
			return
		}
		log.Info("map session opened")

		done := make(chan struct{})
		defer close(done)
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					wmu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					wmu.Unlock()
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
			if err := mc.handle(ctx, msg); err != nil {
				_ = mc.send(mapOutbound{Type: "error", Message: err.Error()})
			}
		}
		log.Info("map session closed")
	}
}

// requireUpgrade rejects plain HTTP requests on WebSocket routes.
func requireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}
