package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// TaskQueue is the default queue the sweeper worker listens on.
	TaskQueue = "huntmap-sweeper"
	// ScheduleID identifies the recurring sweep schedule.
	ScheduleID = "huntmap-orphan-sweep"
)

// SweepInput is the input for the orphan sweep workflow.
type SweepInput struct {
	GracePeriod time.Duration
}

// SweepResult reports what one sweep did.
type SweepResult struct {
	Deleted int
}

// OrphanSweepWorkflow removes pass micro-areas left behind by pass
// creations that never completed. Areas younger than the grace period are
// left alone so an in-flight creation is never raced.
func OrphanSweepWorkflow(ctx workflow.Context, input SweepInput) (SweepResult, error) {
	logger := workflow.GetLogger(ctx)

	if input.GracePeriod < time.Minute {
		input.GracePeriod = time.Minute
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 10 * time.Second,
			MaximumAttempts: 3,
		},
	})

	var a *SweepActivities
	var deleted int
	if err := workflow.ExecuteActivity(ctx, a.SweepOrphanPassAreas, input.GracePeriod).Get(ctx, &deleted); err != nil {
		logger.Warn("orphan sweep failed", "error", err)
		return SweepResult{}, err
	}

	logger.Info("orphan sweep finished", "deleted", deleted)
	return SweepResult{Deleted: deleted}, nil
}
