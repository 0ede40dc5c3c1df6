package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/huntmap/internal/adapters/postgres"
	"github.com/samirrijal/huntmap/internal/adapters/valkey"
	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Annotations *usecases.AnnotationService
	Tokens      ports.TokenProvider
	Subscriber  ports.EventSubscriber
	Session     usecases.SessionOptions
	NATS        *nats.Conn
	DB          *postgres.DB
	Cache       *valkey.Cache
}
