package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/samirrijal/huntmap/internal/core/domain"
)

var square = orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}

func TestAnnotationRepository_TeamScoping(t *testing.T) {
	r := NewAnnotationRepository()
	ctx := context.Background()

	if _, err := r.CreateDriveArea(ctx, domain.NewDriveArea{TeamID: "A", Name: "a1", Kind: domain.AreaKindDrawn, Boundary: square}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := r.CreatePassWithArea(ctx,
		domain.NewDriveArea{TeamID: "B", Name: "p1", Kind: domain.AreaKindPass, Boundary: square},
		domain.NewHuntingPass{TeamID: "B", Name: "p1", Location: orb.Point{0.5, 0.5}},
	); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	areasA, _ := r.ListAreas(ctx, "A")
	areasB, _ := r.ListAreas(ctx, "B")
	passesA, _ := r.ListPasses(ctx, "A")
	passesB, _ := r.ListPasses(ctx, "B")
	if len(areasA) != 1 || len(areasB) != 1 || len(passesA) != 0 || len(passesB) != 1 {
		t.Fatalf("unexpected counts: areasA=%d areasB=%d passesA=%d passesB=%d",
			len(areasA), len(areasB), len(passesA), len(passesB))
	}
	if passesB[0].DriveAreaID != areasB[0].ID {
		t.Errorf("pass should reference its micro-area")
	}
	if areasA[0].Boundary == nil || areasA[0].Boundary.Geometry == nil {
		t.Error("expected stored boundary feature")
	}

	empty, _ := r.ListAreas(ctx, "C")
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", empty)
	}
}

func TestAnnotationRepository_Orphans(t *testing.T) {
	r := NewAnnotationRepository()
	ctx := context.Background()
	old := time.Now().Add(-2 * time.Hour)

	r.Seed([]domain.DriveArea{
		{ID: "orphan", TeamID: "A", Kind: domain.AreaKindPass, CreatedAt: old},
		{ID: "drawn", TeamID: "A", Kind: domain.AreaKindDrawn, CreatedAt: old},
		{ID: "owned", TeamID: "A", Kind: domain.AreaKindPass, CreatedAt: old},
		{ID: "fresh", TeamID: "A", Kind: domain.AreaKindPass, CreatedAt: time.Now()},
	}, []domain.HuntingPass{{ID: "p", TeamID: "A", DriveAreaID: "owned"}})

	got, err := r.ListOrphanPassAreas(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "orphan" {
		t.Fatalf("expected only the orphan, got %+v", got)
	}

	var ve *domain.ValidationError
	if err := r.DeleteDriveArea(ctx, "owned"); !errors.As(err, &ve) {
		t.Errorf("expected validation error for referenced area, got %v", err)
	}
	if err := r.DeleteDriveArea(ctx, "orphan"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := r.DeleteDriveArea(ctx, "orphan"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
