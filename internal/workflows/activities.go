package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
)

// OrphanSweeper deletes pass micro-areas that no pass references.
type OrphanSweeper interface {
	SweepOrphanPassAreas(ctx context.Context, olderThan time.Duration) (int, error)
}

// SweepActivities holds the activity implementations for the orphan sweep.
type SweepActivities struct {
	Sweeper OrphanSweeper
}

// SweepOrphanPassAreas runs one sweep and returns the number of deleted areas.
func (a *SweepActivities) SweepOrphanPassAreas(ctx context.Context, grace time.Duration) (int, error) {
	logger := activity.GetLogger(ctx)

	deleted, err := a.Sweeper.SweepOrphanPassAreas(ctx, grace)
	if err != nil {
		return deleted, fmt.Errorf("sweep orphan pass areas: %w", err)
	}
	if deleted > 0 {
		logger.Info("orphan pass areas removed", "deleted", deleted)
	}
	return deleted, nil
}
