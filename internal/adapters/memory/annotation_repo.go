// Package memory is an in-process AnnotationRepository for local runs
// without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/huntmap/internal/core/domain"
)

// AnnotationRepository keeps drive areas and passes in memory.
type AnnotationRepository struct {
	mu     sync.RWMutex
	areas  []domain.DriveArea
	passes []domain.HuntingPass
	now    func() time.Time
}

// NewAnnotationRepository creates an empty repository.
func NewAnnotationRepository() *AnnotationRepository {
	return &AnnotationRepository{now: time.Now}
}

func (r *AnnotationRepository) ListAreas(_ context.Context, teamID string) ([]domain.DriveArea, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.DriveArea{}
	for _, a := range r.areas {
		if a.TeamID == teamID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *AnnotationRepository) ListPasses(_ context.Context, teamID string) ([]domain.HuntingPass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.HuntingPass{}
	for _, p := range r.passes {
		if p.TeamID == teamID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *AnnotationRepository) CreateDriveArea(_ context.Context, in domain.NewDriveArea) (*domain.DriveArea, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.newAreaLocked(in)
	r.areas = append(r.areas, a)
	return &a, nil
}

func (r *AnnotationRepository) CreatePassWithArea(_ context.Context, area domain.NewDriveArea, pass domain.NewHuntingPass) (*domain.HuntingPass, *domain.DriveArea, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.newAreaLocked(area)
	p := domain.HuntingPass{
		ID:          uuid.NewString(),
		TeamID:      pass.TeamID,
		DriveAreaID: a.ID,
		Name:        pass.Name,
		Location:    geojson.NewGeometry(pass.Location),
		Description: pass.Description,
		CreatedBy:   pass.CreatedBy,
		CreatedAt:   a.CreatedAt,
	}
	r.areas = append(r.areas, a)
	r.passes = append(r.passes, p)
	return &p, &a, nil
}

func (r *AnnotationRepository) ListOrphanPassAreas(_ context.Context, createdBefore time.Time, limit int) ([]domain.DriveArea, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	referenced := make(map[string]struct{}, len(r.passes))
	for _, p := range r.passes {
		referenced[p.DriveAreaID] = struct{}{}
	}
	out := []domain.DriveArea{}
	for _, a := range r.areas {
		if a.Kind != domain.AreaKindPass || !a.CreatedAt.Before(createdBefore) {
			continue
		}
		if _, ok := referenced[a.ID]; ok {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *AnnotationRepository) DeleteDriveArea(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.passes {
		if p.DriveAreaID == id {
			return domain.NewValidationError("id", "area is referenced by pass "+p.ID)
		}
	}
	for i, a := range r.areas {
		if a.ID == id {
			r.areas = append(r.areas[:i], r.areas[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// Seed inserts records as-is, e.g. orphaned areas left by an older release.
func (r *AnnotationRepository) Seed(areas []domain.DriveArea, passes []domain.HuntingPass) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.areas = append(r.areas, areas...)
	r.passes = append(r.passes, passes...)
	sort.SliceStable(r.areas, func(i, j int) bool { return r.areas[i].CreatedAt.Before(r.areas[j].CreatedAt) })
}

func (r *AnnotationRepository) newAreaLocked(in domain.NewDriveArea) domain.DriveArea {
	return domain.DriveArea{
		ID:        uuid.NewString(),
		TeamID:    in.TeamID,
		Name:      in.Name,
		Kind:      in.Kind,
		Boundary:  domain.BoundaryFeature(in.Boundary),
		CreatedBy: in.CreatedBy,
		CreatedAt: r.now().UTC(),
	}
}
