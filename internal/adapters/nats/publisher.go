package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/huntmap/internal/core/domain"
)

const (
	// StreamName is the JetStream stream holding annotation change events.
	StreamName = "ANNOTATIONS"
	// SubjectPrefix is followed by the team token.
	SubjectPrefix = "annotations.changed."
	// SubjectAll matches every team.
	SubjectAll = SubjectPrefix + ">"
)

var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// Subject returns the subject carrying teamID's change events.
func Subject(teamID string) string {
	return SubjectPrefix + subjectToken.Replace(teamID)
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if err := ensureStream(js); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{conn: conn, js: js}, nil
}

func ensureStream(js nats.JetStreamContext) error {
	cfg := nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectAll},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// already exists
		if _, err := js.UpdateStream(&cfg); err != nil {
			return fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// PublishAnnotationChanged publishes ev on the team's subject.
func (p *Publisher) PublishAnnotationChanged(ctx context.Context, ev domain.AnnotationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(Subject(ev.TeamID), data, nats.Context(ctx))
	return err
}

// Conn exposes the underlying connection, e.g. for readiness checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("huntmap"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
