package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/huntmap/internal/core/domain"
)

// Subscriber implements ports.EventSubscriber using NATS JetStream. Each
// subscription is an ephemeral push consumer that only sees new events.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext

	mu   sync.Mutex
	subs map[*nats.Subscription]struct{}
}

// NewSubscriber creates a subscriber on its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, subs: make(map[*nats.Subscription]struct{})}, nil
}

// SubscribeAnnotationChanges delivers teamID's change events to handler
// until the returned func is called.
func (s *Subscriber) SubscribeAnnotationChanges(ctx context.Context, teamID string, handler func(ctx context.Context, event domain.AnnotationEvent)) (func(), error) {
	sub, err := s.js.Subscribe(Subject(teamID), func(msg *nats.Msg) {
		var ev domain.AnnotationEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("dropping malformed annotation event", "subject", msg.Subject, "error", err)
			return
		}
		handler(ctx, ev)
	},
		nats.DeliverNew(),
		nats.AckNone(),
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", Subject(teamID), err)
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub)
			s.mu.Unlock()
			_ = sub.Unsubscribe()
		})
	}, nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	s.mu.Lock()
	for sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = map[*nats.Subscription]struct{}{}
	s.mu.Unlock()
	_ = s.conn.Drain()
}
