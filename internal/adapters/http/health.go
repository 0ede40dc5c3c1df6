package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/huntmap/internal/adapters/valkey"
)

// Version is stamped at build time with -ldflags "-X ...http.Version=...".
var Version = "dev"

const readyTimeout = 3 * time.Second

var errNotConfigured = errors.New("not configured")

// ReadyStatus is the readiness report.
type ReadyStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// probe is one readiness dependency. An optional probe that is not
// configured is reported but does not fail readiness.
type probe struct {
	name     string
	required bool
	check    func(ctx context.Context) error
}

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).Round(time.Second).String(),
			"version": Version,
		})
	}
}

func readinessProbes(deps *Dependencies) []probe {
	return []probe{
		{name: "annotations", required: true, check: func(context.Context) error {
			if deps.Annotations == nil {
				return errNotConfigured
			}
			return nil
		}},
		{name: "database", check: func(ctx context.Context) error {
			if deps.DB == nil {
				return errNotConfigured
			}
			return deps.DB.Ping(ctx)
		}},
		{name: "nats", check: func(context.Context) error {
			if deps.NATS == nil {
				return errNotConfigured
			}
			if !deps.NATS.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}},
		{name: "cache", check: func(ctx context.Context) error {
			if deps.Cache == nil {
				return errNotConfigured
			}
			if err := deps.Cache.Ping(ctx); err != nil && !valkey.IsMiss(err) {
				return err
			}
			return nil
		}},
	}
}

// ReadyHandler runs the dependency probes concurrently. Storage, NATS and
// cache are optional: with in-memory storage there is no database, and
// without NATS or valkey the service still serves annotations.
func ReadyHandler(deps *Dependencies) fiber.Handler {
	probes := readinessProbes(deps)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readyTimeout)
		defer cancel()

		results := make([]error, len(probes))
		var wg sync.WaitGroup
		for i, p := range probes {
			wg.Add(1)
			go func(i int, p probe) {
				defer wg.Done()
				results[i] = p.check(ctx)
			}(i, p)
		}
		wg.Wait()

		report := ReadyStatus{Status: "ready", Checks: make(map[string]string, len(probes))}
		for i, p := range probes {
			err := results[i]
			switch {
			case err == nil:
				report.Checks[p.name] = "ok"
			case errors.Is(err, errNotConfigured):
				report.Checks[p.name] = err.Error()
				if p.required {
					report.Status = "not ready"
				}
			default:
				report.Checks[p.name] = "error: " + err.Error()
				report.Status = "not ready"
			}
		}

		code := fiber.StatusOK
		if report.Status != "ready" {
			code = fiber.StatusServiceUnavailable
		}
		return c.Status(code).JSON(report)
	}
}
