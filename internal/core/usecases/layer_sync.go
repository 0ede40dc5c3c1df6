package usecases

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/pkg/metrics"
)

// ErrStaleTeam is returned by Apply for results fetched for a team that is
// no longer selected. Callers drop them.
var ErrStaleTeam = errors.New("result belongs to a previous team")

// LayerStyle is the paint applied to area layers.
type LayerStyle struct {
	FillColor   string
	FillOpacity float64
	LineColor   string
	LineWidth   float64
}

// DefaultLayerStyle is used when no style is configured.
var DefaultLayerStyle = LayerStyle{
	FillColor:   "#e8590c",
	FillOpacity: 0.2,
	LineColor:   "#e8590c",
	LineWidth:   2,
}

// SyncResult counts the outcome of one Apply.
type SyncResult struct {
	Added     int
	Removed   int
	Unchanged int
	Skipped   int
}

// FeatureLayerSync reconciles the rendered layers with the persisted areas
// and passes of the selected team. It adds only what is missing and removes
// only what disappeared, so repeated application of the same data does no
// engine work.
type FeatureLayerSync struct {
	surface *MapSurface
	style   LayerStyle

	mu      sync.Mutex
	teamID  string
	handles map[string]domain.LayerHandle
}

// NewFeatureLayerSync creates a sync over surface.
func NewFeatureLayerSync(surface *MapSurface, style LayerStyle) *FeatureLayerSync {
	if style == (LayerStyle{}) {
		style = DefaultLayerStyle
	}
	return &FeatureLayerSync{
		surface: surface,
		style:   style,
		handles: make(map[string]domain.LayerHandle),
	}
}

func areaKey(id string) string { return "area:" + id }
func passKey(id string) string { return "pass:" + id }

// SetTeam selects the team whose results Apply will accept. Changing team
// removes every tracked handle.
func (s *FeatureLayerSync) SetTeam(teamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if teamID == s.teamID {
		return
	}
	s.teamID = teamID
	s.removeAllLocked()
}

// Team returns the selected team.
func (s *FeatureLayerSync) Team() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teamID
}

type areaOrPass struct {
	area *domain.DriveArea
	pass *domain.HuntingPass
}

// Apply reconciles the rendered handles with areas and passes fetched for
// teamID. Records with malformed geometry are skipped and logged.
func (s *FeatureLayerSync) Apply(teamID string, areas []domain.DriveArea, passes []domain.HuntingPass) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SyncResult
	if teamID != s.teamID {
		return res, ErrStaleTeam
	}
	if !s.surface.IsReady() {
		return res, ErrNotReady
	}

	desired := make(map[string]areaOrPass, len(areas)+len(passes))
	for i := range areas {
		a := &areas[i]
		key := areaKey(a.ID)
		if _, dup := desired[key]; dup {
			continue
		}
		if _, err := domain.AreaPolygon(*a); err != nil {
			s.skip(domain.FeatureArea, a.ID, err)
			res.Skipped++
			continue
		}
		desired[key] = areaOrPass{area: a}
	}
	for i := range passes {
		p := &passes[i]
		key := passKey(p.ID)
		if _, dup := desired[key]; dup {
			continue
		}
		if _, err := domain.PassPoint(*p); err != nil {
			s.skip(domain.FeaturePass, p.ID, err)
			res.Skipped++
			continue
		}
		desired[key] = areaOrPass{pass: p}
	}

	for key, h := range s.handles {
		if _, keep := desired[key]; keep {
			continue
		}
		s.removeHandleLocked(h)
		res.Removed++
	}

	// Sorted so that layers are stacked in a stable order.
	keys := make([]string, 0, len(desired))
	for key := range desired {
		if _, have := s.handles[key]; have {
			res.Unchanged++
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		rec := desired[key]
		var (
			h   domain.LayerHandle
			err error
		)
		if rec.area != nil {
			h, err = s.addAreaLocked(*rec.area)
		} else {
			h, err = s.addPassLocked(*rec.pass)
		}
		if err != nil {
			if errors.Is(err, ErrNotReady) {
				return res, err
			}
			slog.Error("add layer failed", "key", key, "error", err)
			continue
		}
		s.handles[key] = h
		res.Added++
	}

	if res.Added > 0 || res.Removed > 0 {
		slog.Debug("layers synced",
			"team_id", teamID,
			"added", res.Added,
			"removed", res.Removed,
			"unchanged", res.Unchanged,
			"skipped", res.Skipped,
		)
	}
	return res, nil
}

// Teardown removes every tracked handle unconditionally.
func (s *FeatureLayerSync) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeAllLocked()
}

// HandleCount returns the number of tracked handles.
func (s *FeatureLayerSync) HandleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Handles returns the tracked handles sorted by key.
func (s *FeatureLayerSync) Handles() []domain.LayerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LayerHandle, 0, len(s.handles))
	for _, h := range s.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *FeatureLayerSync) skip(kind domain.FeatureKind, id string, err error) {
	metrics.SyncSkipped.WithLabelValues(string(kind)).Inc()
	slog.Warn("skipping record with malformed geometry", "kind", kind, "id", id, "error", err)
}

func (s *FeatureLayerSync) addAreaLocked(a domain.DriveArea) (domain.LayerHandle, error) {
	poly, _ := domain.AreaPolygon(a)
	sourceID := "drive-area-" + a.ID

	f := geojson.NewFeature(poly)
	f.ID = a.ID
	f.Properties["name"] = a.Name
	f.Properties["kind"] = a.Kind
	fc := geojson.NewFeatureCollection().Append(f)

	if err := s.surface.AddSource(sourceID, fc); err != nil {
		return domain.LayerHandle{}, err
	}
	h := domain.LayerHandle{Key: areaKey(a.ID), RecordID: a.ID, Kind: domain.FeatureArea, SourceID: sourceID}

	layers := []ports.LayerSpec{
		{
			ID:     sourceID + "-fill",
			Type:   ports.LayerFill,
			Source: sourceID,
			Paint:  map[string]any{"fill-color": s.style.FillColor, "fill-opacity": s.style.FillOpacity},
		},
		{
			ID:     sourceID + "-outline",
			Type:   ports.LayerLine,
			Source: sourceID,
			Paint:  map[string]any{"line-color": s.style.LineColor, "line-width": s.style.LineWidth},
		},
	}
	for _, spec := range layers {
		if err := s.surface.AddLayer(spec); err != nil {
			// Undo the partial add so nothing untracked stays on the map.
			s.removeHandleLocked(h)
			return domain.LayerHandle{}, err
		}
		h.LayerIDs = append(h.LayerIDs, spec.ID)
	}

	metrics.LayerOps.WithLabelValues("add", string(domain.FeatureArea)).Inc()
	return h, nil
}

func (s *FeatureLayerSync) addPassLocked(p domain.HuntingPass) (domain.LayerHandle, error) {
	pt, _ := domain.PassPoint(p)
	markerID := "pass-" + p.ID
	if err := s.surface.AddMarker(markerID, pt); err != nil {
		return domain.LayerHandle{}, err
	}
	metrics.LayerOps.WithLabelValues("add", string(domain.FeaturePass)).Inc()
	return domain.LayerHandle{Key: passKey(p.ID), RecordID: p.ID, Kind: domain.FeaturePass, MarkerID: markerID}, nil
}

// removeHandleLocked removes layers before their source, as the engine
// refuses to drop a source still in use.
func (s *FeatureLayerSync) removeHandleLocked(h domain.LayerHandle) {
	for i := len(h.LayerIDs) - 1; i >= 0; i-- {
		if err := s.surface.RemoveLayer(h.LayerIDs[i]); err != nil && !errors.Is(err, ErrNotReady) {
			slog.Warn("remove layer failed", "layer_id", h.LayerIDs[i], "error", err)
		}
	}
	if h.SourceID != "" {
		if err := s.surface.RemoveSource(h.SourceID); err != nil && !errors.Is(err, ErrNotReady) {
			slog.Warn("remove source failed", "source_id", h.SourceID, "error", err)
		}
	}
	if h.MarkerID != "" {
		if err := s.surface.RemoveMarker(h.MarkerID); err != nil && !errors.Is(err, ErrNotReady) {
			slog.Warn("remove marker failed", "marker_id", h.MarkerID, "error", err)
		}
	}
	delete(s.handles, h.Key)
	metrics.LayerOps.WithLabelValues("remove", string(h.Kind)).Inc()
}

func (s *FeatureLayerSync) removeAllLocked() {
	for _, h := range s.handles {
		s.removeHandleLocked(h)
	}
}
