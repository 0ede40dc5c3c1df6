package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/pkg/geospatial"
	"github.com/samirrijal/huntmap/internal/pkg/metrics"
	"github.com/samirrijal/huntmap/internal/pkg/telemetry"
)

const annotationCacheTTL = 60 // seconds

// DriveAreaInput is a request to persist a drawn area.
type DriveAreaInput struct {
	TeamID    string
	Name      string
	CreatedBy string
	Boundary  orb.Polygon
}

// PassInput is a request to persist a pass at a point.
type PassInput struct {
	TeamID      string
	Name        string
	Description string
	CreatedBy   string
	Location    orb.Point
}

// AnnotationService handles drive-area and pass business logic.
type AnnotationService struct {
	repo         ports.AnnotationRepository
	cache        ports.CacheService
	publisher    ports.EventPublisher
	passHalfSide float64

	// writes counts changes per team. A list read that overlaps a change is
	// returned but not cached.
	mu     sync.Mutex
	writes map[string]uint64
}

// NewAnnotationService creates a new AnnotationService. cache and publisher
// may be nil.
func NewAnnotationService(repo ports.AnnotationRepository, cache ports.CacheService, publisher ports.EventPublisher) *AnnotationService {
	return &AnnotationService{
		repo:         repo,
		cache:        cache,
		publisher:    publisher,
		passHalfSide: geospatial.DefaultPassHalfSide,
		writes:       make(map[string]uint64),
	}
}

// SetPassHalfSide overrides the micro-area half side in degrees.
func (s *AnnotationService) SetPassHalfSide(h float64) {
	if h > 0 {
		s.passHalfSide = h
	}
}

func areasKey(teamID string) string  { return "annotations:" + teamID + ":areas" }
func passesKey(teamID string) string { return "annotations:" + teamID + ":passes" }

// ListAreas returns the team's drive areas. No team yields an empty list.
func (s *AnnotationService) ListAreas(ctx context.Context, teamID string) ([]domain.DriveArea, error) {
	if teamID == "" {
		return []domain.DriveArea{}, nil
	}

	key := areasKey(teamID)
	var areas []domain.DriveArea
	if s.cachedInto(ctx, key, &areas) {
		return areas, nil
	}
	seen := s.writeCount(teamID)

	areas, err := s.repo.ListAreas(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	if areas == nil {
		areas = []domain.DriveArea{}
	}

	s.store(ctx, teamID, seen, key, areas)
	return areas, nil
}

// ListPasses returns the team's passes. No team yields an empty list.
func (s *AnnotationService) ListPasses(ctx context.Context, teamID string) ([]domain.HuntingPass, error) {
	if teamID == "" {
		return []domain.HuntingPass{}, nil
	}

	key := passesKey(teamID)
	var passes []domain.HuntingPass
	if s.cachedInto(ctx, key, &passes) {
		return passes, nil
	}
	seen := s.writeCount(teamID)

	passes, err := s.repo.ListPasses(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	if passes == nil {
		passes = []domain.HuntingPass{}
	}

	s.store(ctx, teamID, seen, key, passes)
	return passes, nil
}

// CreateDriveArea validates and persists a drawn polygon. The ring is
// closed if the caller handed it over open.
func (s *AnnotationService) CreateDriveArea(ctx context.Context, in DriveAreaInput) (_ *domain.DriveArea, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCreateArea, telemetry.AttrTeamID.String(in.TeamID))
	defer func() { telemetry.EndSpan(span, err) }()

	name, err := validateOwner(in.TeamID, in.Name)
	if err != nil {
		return nil, err
	}
	boundary := geospatial.NormalizePolygon(in.Boundary)
	if err := domain.ValidateBoundary(boundary); err != nil {
		return nil, domain.NewValidationError("boundary", err.Error())
	}

	area, err := s.repo.CreateDriveArea(ctx, domain.NewDriveArea{
		TeamID:    in.TeamID,
		Name:      name,
		Kind:      domain.AreaKindDrawn,
		Boundary:  boundary,
		CreatedBy: in.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create drive area: %w", err)
	}

	span.SetAttributes(telemetry.AttrAreaID.String(area.ID))
	metrics.AnnotationsCreated.WithLabelValues("area").Inc()
	s.changed(ctx, in.TeamID, "areas", "created", area.ID)
	return area, nil
}

// CreatePass validates and persists a pass together with its generated
// micro-area in a single repository transaction.
func (s *AnnotationService) CreatePass(ctx context.Context, in PassInput) (_ *domain.HuntingPass, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanCreatePass, telemetry.AttrTeamID.String(in.TeamID))
	defer func() { telemetry.EndSpan(span, err) }()

	name, err := validateOwner(in.TeamID, in.Name)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateLocation(in.Location); err != nil {
		return nil, domain.NewValidationError("location", err.Error())
	}

	micro := geospatial.BuildPassArea(in.Location, s.passHalfSide)
	pass, area, err := s.repo.CreatePassWithArea(ctx,
		domain.NewDriveArea{
			TeamID:    in.TeamID,
			Name:      name,
			Kind:      domain.AreaKindPass,
			Boundary:  micro,
			CreatedBy: in.CreatedBy,
		},
		domain.NewHuntingPass{
			TeamID:      in.TeamID,
			Name:        name,
			Description: strings.TrimSpace(in.Description),
			Location:    in.Location,
			CreatedBy:   in.CreatedBy,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create pass: %w", err)
	}

	slog.DebugContext(ctx, "pass created",
		"pass_id", pass.ID,
		"area_id", area.ID,
		"side_m", geospatial.PointDistance(micro[0][1], micro[0][2]),
	)

	span.SetAttributes(telemetry.AttrPassID.String(pass.ID), telemetry.AttrAreaID.String(area.ID))
	metrics.AnnotationsCreated.WithLabelValues("pass").Inc()
	s.changed(ctx, in.TeamID, "areas", "created", area.ID)
	s.changed(ctx, in.TeamID, "passes", "created", pass.ID)
	return pass, nil
}

// OrphanPassAreas returns pass micro-areas older than grace with no pass.
func (s *AnnotationService) OrphanPassAreas(ctx context.Context, grace time.Duration, limit int) ([]domain.DriveArea, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	return s.repo.ListOrphanPassAreas(ctx, time.Now().Add(-grace), limit)
}

// DeleteOrphanArea removes one orphaned micro-area and signals the change.
func (s *AnnotationService) DeleteOrphanArea(ctx context.Context, area domain.DriveArea) error {
	if area.Kind != domain.AreaKindPass {
		return fmt.Errorf("area %s is not a pass area", area.ID)
	}
	if err := s.repo.DeleteDriveArea(ctx, area.ID); err != nil {
		return fmt.Errorf("delete area %s: %w", area.ID, err)
	}
	metrics.OrphanAreasDeleted.Inc()
	s.changed(ctx, area.TeamID, "areas", "deleted", area.ID)
	return nil
}

// SweepOrphanPassAreas deletes pass micro-areas older than olderThan that
// no pass references, batch by batch, and returns how many were removed.
// A failed delete is logged and skipped.
func (s *AnnotationService) SweepOrphanPassAreas(ctx context.Context, olderThan time.Duration) (deleted int, err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanSweepOrphan)
	defer func() {
		span.SetAttributes(telemetry.AttrDeleted.Int(deleted))
		telemetry.EndSpan(span, err)
	}()

	seen := make(map[string]struct{})
	for {
		batch, listErr := s.OrphanPassAreas(ctx, olderThan, 0)
		if listErr != nil {
			return deleted, fmt.Errorf("list orphan areas: %w", listErr)
		}
		progressed := false
		for _, a := range batch {
			if _, ok := seen[a.ID]; ok {
				continue
			}
			seen[a.ID] = struct{}{}
			progressed = true
			if err := s.DeleteOrphanArea(ctx, a); err != nil {
				slog.WarnContext(ctx, "orphan area delete failed", "area_id", a.ID, "error", err)
				continue
			}
			deleted++
		}
		if !progressed {
			return deleted, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return deleted, ctxErr
		}
	}
}

func validateOwner(teamID, name string) (string, error) {
	if teamID == "" {
		return "", domain.NewValidationError("team", "no team selected")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.NewValidationError("name", "name is required")
	}
	if len(name) > 200 {
		return "", domain.NewValidationError("name", "name too long (max 200 characters)")
	}
	return name, nil
}

// changed invalidates the team's cached lists and publishes the change.
// Both steps are best-effort: the write already succeeded.
func (s *AnnotationService) changed(ctx context.Context, teamID, resource, action, id string) {
	// Counted before the delete, so a concurrent store either sees the new
	// count or lands before the delete removes it.
	s.mu.Lock()
	s.writes[teamID]++
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Delete(ctx, areasKey(teamID), passesKey(teamID)); err != nil {
			slog.WarnContext(ctx, "cache invalidation failed", "team_id", teamID, "error", err)
		}
	}
	if s.publisher != nil {
		ev := domain.AnnotationEvent{TeamID: teamID, Resource: resource, Action: action, ID: id, At: time.Now()}
		if err := s.publisher.PublishAnnotationChanged(ctx, ev); err != nil {
			slog.WarnContext(ctx, "publish annotation change failed", "team_id", teamID, "error", err)
		}
	}
}

func (s *AnnotationService) cachedInto(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.CacheMisses.WithLabelValues("annotations").Inc()
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		metrics.CacheMisses.WithLabelValues("annotations").Inc()
		return false
	}
	metrics.CacheHits.WithLabelValues("annotations").Inc()
	return true
}

func (s *AnnotationService) writeCount(teamID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[teamID]
}

// store caches v unless the team changed since seen was taken.
func (s *AnnotationService) store(ctx context.Context, teamID string, seen uint64, key string, v any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writes[teamID] != seen {
		slog.DebugContext(ctx, "skipping cache fill after concurrent change", "team_id", teamID, "key", key)
		return
	}
	_ = s.cache.Set(ctx, key, data, annotationCacheTTL)
}
