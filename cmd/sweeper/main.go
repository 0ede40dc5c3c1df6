package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/huntmap/internal/adapters/postgres"
	"github.com/samirrijal/huntmap/internal/core/usecases"
	"github.com/samirrijal/huntmap/internal/pkg/config"
	"github.com/samirrijal/huntmap/internal/pkg/logging"
	"github.com/samirrijal/huntmap/internal/workflows"
)

func main() {
	cfg, err := config.Load("huntmap-sweeper")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	if cfg.Storage.Backend != config.StoragePostgres {
		log.Fatalf("sweeper requires the postgres backend, got %q", cfg.Storage.Backend)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	annotations := usecases.NewAnnotationService(postgres.NewAnnotationRepo(db), nil, nil)

	// One-shot mode for cron jobs and manual cleanup
	if len(os.Args) > 1 && os.Args[1] == "once" {
		deleted, err := annotations.SweepOrphanPassAreas(ctx, cfg.Sweeper.GracePeriod)
		if err != nil {
			log.Fatalf("sweep: %v", err)
		}
		slog.Info("sweep finished", "deleted", deleted)
		return
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	if err := ensureSchedule(ctx, c, cfg); err != nil {
		log.Fatalf("schedule: %v", err)
	}

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.OrphanSweepWorkflow)
	w.RegisterActivity(&workflows.SweepActivities{Sweeper: annotations})

	slog.Info("sweeper worker started", "task_queue", cfg.Temporal.TaskQueue, "interval", cfg.Sweeper.Interval)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

// ensureSchedule registers the recurring sweep. An existing schedule is
// left as is.
func ensureSchedule(ctx context.Context, c client.Client, cfg *config.Config) error {
	_, err := c.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: workflows.ScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: cfg.Sweeper.Interval}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:                       workflows.ScheduleID + "-run",
			Workflow:                 workflows.OrphanSweepWorkflow,
			Args:                     []any{workflows.SweepInput{GracePeriod: cfg.Sweeper.GracePeriod}},
			TaskQueue:                cfg.Temporal.TaskQueue,
			WorkflowExecutionTimeout: 10 * time.Minute,
		},
	})
	if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		slog.Info("sweep schedule already registered", "id", workflows.ScheduleID)
		return nil
	}
	return err
}
