package usecases_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/core/usecases"
	"github.com/samirrijal/huntmap/internal/pkg/geospatial"
)

func testArea(id, team string, lng, lat float64) domain.DriveArea {
	return domain.DriveArea{
		ID:       id,
		TeamID:   team,
		Name:     "Area " + id,
		Kind:     domain.AreaKindDrawn,
		Boundary: domain.BoundaryFeature(geospatial.BuildPassArea(orb.Point{lng, lat}, 0.01)),
	}
}

func testPass(id, team string, lng, lat float64) domain.HuntingPass {
	return domain.HuntingPass{
		ID:       id,
		TeamID:   team,
		Name:     "Pass " + id,
		Location: geojson.NewGeometry(orb.Point{lng, lat}),
	}
}

func areasByID(team string, ids ...int) []domain.DriveArea {
	out := make([]domain.DriveArea, 0, len(ids))
	for _, id := range ids {
		out = append(out, testArea(fmt.Sprintf("a%d", id), team, 18+float64(id)*0.1, 59))
	}
	return out
}

func newSync(t *testing.T, team string) (*usecases.FeatureLayerSync, *fakeEngine) {
	t.Helper()
	surface, engine := readySurface(t)
	sync := usecases.NewFeatureLayerSync(surface, usecases.LayerStyle{})
	sync.SetTeam(team)
	return sync, engine
}

func TestLayerSync_AreaRendersFillAndOutline(t *testing.T) {
	sync, engine := newSync(t, "team-A")

	res, err := sync.Apply("team-A", areasByID("team-A", 1), []domain.HuntingPass{testPass("p1", "team-A", 18.05, 59.05)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Added != 2 {
		t.Errorf("expected 2 added handles, got %d", res.Added)
	}

	sources, layers, markers, _ := engine.counts()
	if sources != 1 || layers != 2 || markers != 1 {
		t.Errorf("expected 1 source, 2 layers, 1 marker; got %d, %d, %d", sources, layers, markers)
	}
	fill, ok := engine.layers["drive-area-a1-fill"]
	if !ok {
		t.Fatal("missing fill layer")
	}
	outline, ok := engine.layers["drive-area-a1-outline"]
	if !ok {
		t.Fatal("missing outline layer")
	}
	if fill.Source != "drive-area-a1" || outline.Source != fill.Source {
		t.Errorf("fill and outline must share one source, got %q and %q", fill.Source, outline.Source)
	}
	if _, ok := engine.markers["pass-p1"]; !ok {
		t.Error("missing pass marker")
	}
}

func TestLayerSync_Idempotent(t *testing.T) {
	sync, engine := newSync(t, "team-A")
	areas := areasByID("team-A", 1, 2, 3)
	passes := []domain.HuntingPass{testPass("p1", "team-A", 18.2, 59.1)}

	if _, err := sync.Apply("team-A", areas, passes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := sync.HandleCount()
	_, _, _, opsBefore := engine.counts()

	res, err := sync.Apply("team-A", areas, passes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sync.HandleCount() != before {
		t.Errorf("handle count changed: %d -> %d", before, sync.HandleCount())
	}
	_, _, _, opsAfter := engine.counts()
	if opsAfter != opsBefore {
		t.Errorf("second apply touched the engine %d times", opsAfter-opsBefore)
	}
	if res.Added != 0 || res.Removed != 0 || res.Unchanged != 4 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestLayerSync_DiffMinimality(t *testing.T) {
	tests := []struct {
		name string
		a, b []int
	}{
		{"disjoint", []int{1, 2}, []int{3, 4, 5}},
		{"overlap", []int{1, 2, 3}, []int{2, 3, 4, 5}},
		{"large overlap", []int{1, 2, 3, 4, 5, 6, 7, 8}, []int{2, 3, 4, 5, 6, 7, 8, 9}},
		{"shrink to empty", []int{1, 2}, nil},
		{"identical", []int{1, 2, 3}, []int{1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sync, _ := newSync(t, "team-A")
			if _, err := sync.Apply("team-A", areasByID("team-A", tt.a...), nil); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			res, err := sync.Apply("team-A", areasByID("team-A", tt.b...), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			inA := map[int]bool{}
			for _, id := range tt.a {
				inA[id] = true
			}
			inB := map[int]bool{}
			for _, id := range tt.b {
				inB[id] = true
			}
			wantAdd, wantRemove := 0, 0
			for id := range inB {
				if !inA[id] {
					wantAdd++
				}
			}
			for id := range inA {
				if !inB[id] {
					wantRemove++
				}
			}

			if res.Added != wantAdd || res.Removed != wantRemove {
				t.Errorf("expected +%d -%d, got +%d -%d", wantAdd, wantRemove, res.Added, res.Removed)
			}
			if sync.HandleCount() != len(inB) {
				t.Errorf("expected %d handles, got %d", len(inB), sync.HandleCount())
			}
		})
	}
}

func TestLayerSync_SkipsMalformedRecords(t *testing.T) {
	sync, engine := newSync(t, "team-A")

	triangleOpen := testArea("bad-ring", "team-A", 18, 59)
	triangleOpen.Boundary = geojson.NewFeature(orb.Polygon{{{18, 59}, {18.1, 59}, {18, 59}}})
	notPolygon := testArea("bad-type", "team-A", 18, 59)
	notPolygon.Boundary = geojson.NewFeature(orb.Point{18, 59})
	noBoundary := testArea("no-boundary", "team-A", 18, 59)
	noBoundary.Boundary = nil
	noLocation := testPass("bad-pass", "team-A", 18, 59)
	noLocation.Location = nil

	areas := append(areasByID("team-A", 1), triangleOpen, notPolygon, noBoundary)
	passes := []domain.HuntingPass{testPass("p1", "team-A", 18.1, 59.1), noLocation}

	res, err := sync.Apply("team-A", areas, passes)
	if err != nil {
		t.Fatalf("a malformed record must not abort the pass: %v", err)
	}
	if res.Skipped != 4 {
		t.Errorf("expected 4 skipped, got %d", res.Skipped)
	}
	if res.Added != 2 {
		t.Errorf("expected 2 added, got %d", res.Added)
	}
	sources, layers, markers, _ := engine.counts()
	if sources != 1 || layers != 2 || markers != 1 {
		t.Errorf("expected only valid records rendered, got %d sources, %d layers, %d markers", sources, layers, markers)
	}
}

func TestLayerSync_DuplicateIDsRenderOnce(t *testing.T) {
	sync, engine := newSync(t, "team-A")
	areas := append(areasByID("team-A", 1), areasByID("team-A", 1)...)

	if _, err := sync.Apply("team-A", areas, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sources, _, _, _ := engine.counts(); sources != 1 {
		t.Errorf("expected 1 source, got %d", sources)
	}
}

func TestLayerSync_TeamSwitchRemovesAllHandles(t *testing.T) {
	sync, engine := newSync(t, "team-A")

	if _, err := sync.Apply("team-A", areasByID("team-A", 1, 2), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sync.HandleCount() != 2 {
		t.Fatalf("expected 2 handles, got %d", sync.HandleCount())
	}

	sync.SetTeam("team-B")
	res, err := sync.Apply("team-B", []domain.DriveArea{}, []domain.HuntingPass{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Added != 0 {
		t.Errorf("expected nothing added for team-B, got %d", res.Added)
	}
	if sync.HandleCount() != 0 {
		t.Errorf("expected 0 handles, got %d", sync.HandleCount())
	}
	sources, layers, markers, _ := engine.counts()
	if sources+layers+markers != 0 {
		t.Errorf("expected empty map, got %d sources, %d layers, %d markers", sources, layers, markers)
	}
}

func TestLayerSync_StaleTeamResultDiscarded(t *testing.T) {
	sync, engine := newSync(t, "team-A")
	sync.SetTeam("team-B")
	_, _, _, opsBefore := engine.counts()

	_, err := sync.Apply("team-A", areasByID("team-A", 1, 2), nil)
	if !errors.Is(err, usecases.ErrStaleTeam) {
		t.Fatalf("expected ErrStaleTeam, got %v", err)
	}
	if _, _, _, opsAfter := engine.counts(); opsAfter != opsBefore {
		t.Error("stale result must not touch the engine")
	}
}

func TestLayerSync_NotReady(t *testing.T) {
	engine := newFakeEngine()
	var calls int
	surface := usecases.NewMapSurface(countingFactory(engine, &calls), &mockTokens{token: "pk.test"})
	sync := usecases.NewFeatureLayerSync(surface, usecases.LayerStyle{})
	sync.SetTeam("team-A")

	if _, err := sync.Apply("team-A", areasByID("team-A", 1), nil); !errors.Is(err, usecases.ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	if sync.HandleCount() != 0 {
		t.Error("no handles may be tracked before ready")
	}
}

func TestLayerSync_Teardown(t *testing.T) {
	sync, engine := newSync(t, "team-A")
	if _, err := sync.Apply("team-A", areasByID("team-A", 1, 2), []domain.HuntingPass{testPass("p1", "team-A", 18, 59)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sync.Teardown()

	if sync.HandleCount() != 0 {
		t.Errorf("expected 0 handles, got %d", sync.HandleCount())
	}
	sources, layers, markers, _ := engine.counts()
	if sources+layers+markers != 0 {
		t.Errorf("teardown left %d sources, %d layers, %d markers", sources, layers, markers)
	}
}

func TestLayerSync_HandlesSorted(t *testing.T) {
	sync, _ := newSync(t, "team-A")
	if _, err := sync.Apply("team-A", areasByID("team-A", 2, 1), []domain.HuntingPass{testPass("p1", "team-A", 18, 59)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handles := sync.Handles()
	want := []string{"area:a1", "area:a2", "pass:p1"}
	if len(handles) != len(want) {
		t.Fatalf("expected %d handles, got %d", len(want), len(handles))
	}
	for i, h := range handles {
		if h.Key != want[i] {
			t.Errorf("handle %d: expected %s, got %s", i, want[i], h.Key)
		}
	}
	if len(handles[0].LayerIDs) != 2 || handles[0].SourceID == "" {
		t.Errorf("area handle should record its source and layers, got %+v", handles[0])
	}
	if handles[2].MarkerID == "" {
		t.Errorf("pass handle should record its marker, got %+v", handles[2])
	}
}
