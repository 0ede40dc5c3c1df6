package ports

import (
	"context"
	"time"

	"github.com/samirrijal/huntmap/internal/core/domain"
)

// AnnotationRepository persists drive areas and passes.
type AnnotationRepository interface {
	// ListAreas returns the team's areas (drawn and pass micro-areas) ordered
	// by creation time.
	ListAreas(ctx context.Context, teamID string) ([]domain.DriveArea, error)
	ListPasses(ctx context.Context, teamID string) ([]domain.HuntingPass, error)
	CreateDriveArea(ctx context.Context, area domain.NewDriveArea) (*domain.DriveArea, error)
	// CreatePassWithArea writes the micro-area and the pass referencing it
	// atomically: either both rows exist afterwards or neither does.
	CreatePassWithArea(ctx context.Context, area domain.NewDriveArea, pass domain.NewHuntingPass) (*domain.HuntingPass, *domain.DriveArea, error)
	// ListOrphanPassAreas returns pass micro-areas created before the cutoff
	// that no pass references.
	ListOrphanPassAreas(ctx context.Context, createdBefore time.Time, limit int) ([]domain.DriveArea, error)
	DeleteDriveArea(ctx context.Context, id string) error
}
