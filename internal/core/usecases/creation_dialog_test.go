package usecases_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/paulmach/orb"

	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/core/usecases"
)

// --- Mock AnnotationCreator ---

type mockCreator struct {
	mu           sync.Mutex
	createAreaFn func(ctx context.Context, in usecases.DriveAreaInput) (*domain.DriveArea, error)
	createPassFn func(ctx context.Context, in usecases.PassInput) (*domain.HuntingPass, error)
	areaCalls    []usecases.DriveAreaInput
	passCalls    []usecases.PassInput
}

func (m *mockCreator) CreateDriveArea(ctx context.Context, in usecases.DriveAreaInput) (*domain.DriveArea, error) {
	m.mu.Lock()
	m.areaCalls = append(m.areaCalls, in)
	m.mu.Unlock()
	if m.createAreaFn != nil {
		return m.createAreaFn(ctx, in)
	}
	return &domain.DriveArea{ID: "a1", TeamID: in.TeamID, Name: in.Name}, nil
}

func (m *mockCreator) CreatePass(ctx context.Context, in usecases.PassInput) (*domain.HuntingPass, error) {
	m.mu.Lock()
	m.passCalls = append(m.passCalls, in)
	m.mu.Unlock()
	if m.createPassFn != nil {
		return m.createPassFn(ctx, in)
	}
	return &domain.HuntingPass{ID: "p1", TeamID: in.TeamID, Name: in.Name}, nil
}

func (m *mockCreator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.areaCalls) + len(m.passCalls)
}

type recordingGate struct {
	mu     sync.Mutex
	states []bool
}

func (g *recordingGate) SetToolsEnabled(enabled bool) {
	g.mu.Lock()
	g.states = append(g.states, enabled)
	g.mu.Unlock()
}

var squareFeature = domain.PendingFeature{
	Kind:     domain.FeatureArea,
	Geometry: orb.Polygon{{{18.0, 59.0}, {18.1, 59.0}, {18.1, 59.1}, {18.0, 59.1}, {18.0, 59.0}}},
}

var passFeature = domain.PendingFeature{Kind: domain.FeaturePass, Geometry: orb.Point{18.05, 59.05}}

func TestCreationDialog_EmptyNameMakesNoCall(t *testing.T) {
	creator := &mockCreator{}
	dialog := usecases.NewCreationDialogFlow(creator, nil, nil, nil)
	dialog.Open(squareFeature)

	err := dialog.Submit(context.Background(), "team-A", "user-1", ports.DialogValues{Name: "   "})
	if !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if creator.calls() != 0 {
		t.Errorf("expected no repository call, got %d", creator.calls())
	}
	snap := dialog.Snapshot()
	if snap.State != ports.DialogPending {
		t.Errorf("dialog must stay open, state %s", snap.State)
	}
	if snap.ValidationError == "" {
		t.Error("expected inline validation message")
	}
}

func TestCreationDialog_MissingTeamMakesNoCall(t *testing.T) {
	creator := &mockCreator{}
	dialog := usecases.NewCreationDialogFlow(creator, nil, nil, nil)
	dialog.Open(squareFeature)

	if err := dialog.Submit(context.Background(), "", "user-1", ports.DialogValues{Name: "Norrskogen"}); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if creator.calls() != 0 {
		t.Error("expected no repository call without a team")
	}
}

func TestCreationDialog_SubmitAreaSuccess(t *testing.T) {
	creator := &mockCreator{}
	gate := &recordingGate{}
	var changed []string
	var snaps []ports.DialogSnapshot
	dialog := usecases.NewCreationDialogFlow(creator, gate,
		func(team string) { changed = append(changed, team) },
		func(s ports.DialogSnapshot) { snaps = append(snaps, s) },
	)

	dialog.Open(squareFeature)
	if snap := dialog.Snapshot(); snap.ShowDescription {
		t.Error("area dialog must not ask for a description")
	}

	err := dialog.Submit(context.Background(), "team-A", "user-1", ports.DialogValues{Name: "Norrskogen", Description: "ignored"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(creator.areaCalls) != 1 {
		t.Fatalf("expected 1 area call, got %d", len(creator.areaCalls))
	}
	in := creator.areaCalls[0]
	if in.TeamID != "team-A" || in.Name != "Norrskogen" || in.CreatedBy != "user-1" {
		t.Errorf("unexpected input %+v", in)
	}
	if len(in.Boundary) != 1 || len(in.Boundary[0]) != 5 {
		t.Errorf("unexpected boundary %v", in.Boundary)
	}

	snap := dialog.Snapshot()
	if snap.State != ports.DialogIdle || snap.Kind != "" || snap.Values.Name != "" {
		t.Errorf("expected cleared idle dialog, got %+v", snap)
	}
	if len(changed) != 1 || changed[0] != "team-A" {
		t.Errorf("expected one change signal for team-A, got %v", changed)
	}

	states := []ports.DialogState{}
	for _, s := range snaps {
		states = append(states, s.State)
	}
	want := []ports.DialogState{ports.DialogPending, ports.DialogSubmitting, ports.DialogIdle}
	if len(states) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], states[i])
		}
	}

	if len(gate.states) != 2 || gate.states[0] || !gate.states[1] {
		t.Errorf("expected tools disabled then re-enabled, got %v", gate.states)
	}
}

func TestCreationDialog_SubmitPassCarriesDescription(t *testing.T) {
	creator := &mockCreator{}
	dialog := usecases.NewCreationDialogFlow(creator, nil, nil, nil)

	dialog.Open(passFeature)
	if !dialog.Snapshot().ShowDescription {
		t.Error("pass dialog should offer a description")
	}
	if err := dialog.Submit(context.Background(), "team-A", "user-1", ports.DialogValues{Name: "Pass 1", Description: "Tower by the creek"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(creator.passCalls) != 1 {
		t.Fatalf("expected 1 pass call, got %d", len(creator.passCalls))
	}
	in := creator.passCalls[0]
	if in.Description != "Tower by the creek" || !in.Location.Equal(orb.Point{18.05, 59.05}) {
		t.Errorf("unexpected input %+v", in)
	}
}

func TestCreationDialog_FailureKeepsValues(t *testing.T) {
	creator := &mockCreator{
		createPassFn: func(ctx context.Context, in usecases.PassInput) (*domain.HuntingPass, error) {
			return nil, errors.New("insert failed")
		},
	}
	gate := &recordingGate{}
	changed := 0
	dialog := usecases.NewCreationDialogFlow(creator, gate, func(string) { changed++ }, nil)
	dialog.Open(passFeature)

	values := ports.DialogValues{Name: "Pass 1", Description: "North edge"}
	if err := dialog.Submit(context.Background(), "team-A", "user-1", values); err == nil {
		t.Fatal("expected error")
	}

	snap := dialog.Snapshot()
	if snap.State != ports.DialogPending {
		t.Errorf("expected dialog to stay open, state %s", snap.State)
	}
	if snap.Values != values {
		t.Errorf("entered values lost: %+v", snap.Values)
	}
	if changed != 0 {
		t.Error("no change signal on failure")
	}
	if len(gate.states) != 2 || !gate.states[1] {
		t.Errorf("tools must be re-enabled after failure, got %v", gate.states)
	}

	// Retry is a single call with the same pending feature.
	creator.createPassFn = nil
	if err := dialog.Submit(context.Background(), "team-A", "user-1", values); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if len(creator.passCalls) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(creator.passCalls))
	}
}

func TestCreationDialog_ServerValidationShownInline(t *testing.T) {
	creator := &mockCreator{
		createAreaFn: func(ctx context.Context, in usecases.DriveAreaInput) (*domain.DriveArea, error) {
			return nil, domain.NewValidationError("name", "name too long (max 200 characters)")
		},
	}
	dialog := usecases.NewCreationDialogFlow(creator, nil, nil, nil)
	dialog.Open(squareFeature)

	_ = dialog.Submit(context.Background(), "team-A", "user-1", ports.DialogValues{Name: "x"})
	if msg := dialog.Snapshot().ValidationError; msg != "name too long (max 200 characters)" {
		t.Errorf("expected server validation message inline, got %q", msg)
	}
}

func TestCreationDialog_OpenIgnoredWhileSubmitting(t *testing.T) {
	release := make(chan struct{})
	submitting := make(chan struct{})
	creator := &mockCreator{
		createAreaFn: func(ctx context.Context, in usecases.DriveAreaInput) (*domain.DriveArea, error) {
			close(submitting)
			<-release
			return &domain.DriveArea{ID: "a1"}, nil
		},
	}
	dialog := usecases.NewCreationDialogFlow(creator, nil, nil, nil)
	dialog.Open(squareFeature)

	done := make(chan error, 1)
	go func() {
		done <- dialog.Submit(context.Background(), "team-A", "user-1", ports.DialogValues{Name: "Norrskogen"})
	}()
	<-submitting

	if dialog.Open(passFeature) {
		t.Error("open must be ignored while submitting")
	}
	if dialog.Cancel() {
		t.Error("cancel must be ignored while submitting")
	}
	if dialog.Snapshot().State != ports.DialogSubmitting {
		t.Error("expected submitting state")
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dialog.Snapshot().State != ports.DialogIdle {
		t.Error("expected idle after submit")
	}
}

func TestCreationDialog_ReopenReplacesPending(t *testing.T) {
	creator := &mockCreator{}
	dialog := usecases.NewCreationDialogFlow(creator, nil, nil, nil)

	dialog.Open(squareFeature)
	dialog.Open(passFeature)
	if dialog.Snapshot().Kind != domain.FeaturePass {
		t.Fatal("expected the newer feature to replace the pending one")
	}
	if err := dialog.Submit(context.Background(), "team-A", "u", ports.DialogValues{Name: "Pass 1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(creator.areaCalls) != 0 || len(creator.passCalls) != 1 {
		t.Errorf("expected only the pass to be saved, got %d areas %d passes", len(creator.areaCalls), len(creator.passCalls))
	}
}

func TestCreationDialog_CancelAndEmptySubmit(t *testing.T) {
	dialog := usecases.NewCreationDialogFlow(&mockCreator{}, nil, nil, nil)

	if dialog.Cancel() {
		t.Error("cancel on an idle dialog reports nothing to close")
	}
	if err := dialog.Submit(context.Background(), "team-A", "u", ports.DialogValues{Name: "x"}); !errors.Is(err, usecases.ErrNoPendingFeature) {
		t.Errorf("expected ErrNoPendingFeature, got %v", err)
	}

	dialog.Open(squareFeature)
	if !dialog.Cancel() {
		t.Error("expected cancel to close the dialog")
	}
	if dialog.Snapshot().State != ports.DialogIdle {
		t.Error("expected idle after cancel")
	}
}
