package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/pkg/metrics"
	"github.com/samirrijal/huntmap/internal/pkg/telemetry"
)

// SessionOptions configures a MapSession.
type SessionOptions struct {
	UserID string
	Fit    ports.FitOptions
	Style  LayerStyle
}

// MapSession wires the map components for one connected client: the
// surface, the drawing controller, layer sync, the viewport fitter and the
// creation dialog. It refreshes the rendered annotations after its own
// saves and whenever another client changes the selected team's data.
type MapSession struct {
	annotations *AnnotationService
	subscriber  ports.EventSubscriber
	view        ports.SessionView
	userID      string

	surface    *MapSurface
	controller *DrawingModeController
	layers     *FeatureLayerSync
	fitter     *ViewportFitter
	dialog     *CreationDialogFlow

	refreshMu sync.Mutex // serializes Refresh so results apply in request order

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	teamID      string
	unsubscribe func()
	cancelReady func()
	opened      bool
	closed      bool
}

// NewMapSession builds an unopened session. subscriber may be nil.
func NewMapSession(
	factory ports.EngineFactory,
	tokens ports.TokenProvider,
	annotations *AnnotationService,
	subscriber ports.EventSubscriber,
	view ports.SessionView,
	opts SessionOptions,
) *MapSession {
	s := &MapSession{
		annotations: annotations,
		subscriber:  subscriber,
		view:        view,
		userID:      opts.UserID,
	}
	s.surface = NewMapSurface(factory, tokens)
	s.layers = NewFeatureLayerSync(s.surface, opts.Style)
	s.fitter = NewViewportFitter(s.surface, opts.Fit)
	s.controller = NewDrawingModeController(s.surface, s.featureCreated, view.HintChanged)
	s.dialog = NewCreationDialogFlow(annotations, s.controller, s.dataChanged, view.DialogChanged)
	return s
}

// Surface exposes the session's map surface.
func (s *MapSession) Surface() *MapSurface { return s.surface }

// Controller exposes the drawing controller.
func (s *MapSession) Controller() *DrawingModeController { return s.controller }

// Layers exposes the layer sync.
func (s *MapSession) Layers() *FeatureLayerSync { return s.layers }

// Dialog exposes the creation dialog.
func (s *MapSession) Dialog() *CreationDialogFlow { return s.dialog }

// Team returns the selected team.
func (s *MapSession) Team() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teamID
}

// Open initializes the map inside container and selects teamID. Layers are
// drawn once the engine reports ready. An initialization failure is
// reported to the view and is final for this session.
func (s *MapSession) Open(ctx context.Context, container, teamID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	if s.opened {
		s.mu.Unlock()
		return errors.New("session already open")
	}
	s.opened = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	sessCtx := s.ctx
	s.mu.Unlock()

	metrics.ActiveMapSessions.Inc()
	s.selectTeam(sessCtx, teamID)

	cancelReady := s.surface.OnReady(func() {
		s.view.HintChanged(s.controller.Hint())
		go func() {
			if err := s.Refresh(sessCtx); err != nil {
				slog.Warn("initial refresh failed", "team_id", s.Team(), "error", err)
			}
		}()
	})
	s.mu.Lock()
	s.cancelReady = cancelReady
	s.mu.Unlock()

	if err := s.surface.Initialize(sessCtx, container); err != nil {
		s.view.LoadFailed(err)
		return err
	}
	return nil
}

// SwitchTeam selects another team. Handles of the previous team are removed
// at once; results still in flight for it are discarded when they arrive.
func (s *MapSession) SwitchTeam(ctx context.Context, teamID string) error {
	s.mu.Lock()
	sessCtx := s.ctx
	s.mu.Unlock()
	if sessCtx == nil {
		return errors.New("session not open")
	}
	if !s.selectTeam(sessCtx, teamID) {
		return nil
	}
	return s.Refresh(ctx)
}

// selectTeam reports whether the team changed.
func (s *MapSession) selectTeam(ctx context.Context, teamID string) bool {
	s.mu.Lock()
	if s.teamID == teamID && s.unsubscribe != nil {
		s.mu.Unlock()
		return false
	}
	s.teamID = teamID
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.layers.SetTeam(teamID)
	s.fitter.Reset()
	s.dialog.Cancel()

	if s.subscriber == nil || teamID == "" {
		s.setUnsubscribe(teamID, func() {})
		return true
	}
	unsub, err := s.subscriber.SubscribeAnnotationChanges(ctx, teamID, func(_ context.Context, ev domain.AnnotationEvent) {
		if ev.TeamID != s.Team() {
			return
		}
		if err := s.Refresh(ctx); err != nil {
			slog.Warn("refresh after remote change failed", "team_id", ev.TeamID, "error", err)
		}
	})
	if err != nil {
		slog.Warn("subscribe to annotation changes failed", "team_id", teamID, "error", err)
		unsub = func() {}
	}
	s.setUnsubscribe(teamID, unsub)
	return true
}

func (s *MapSession) setUnsubscribe(teamID string, unsub func()) {
	s.mu.Lock()
	if s.teamID != teamID || s.closed {
		s.mu.Unlock()
		unsub()
		return
	}
	s.unsubscribe = unsub
	s.mu.Unlock()
}

// Refresh fetches the selected team's annotations and reconciles the map
// with them. It is a no-op before the map is ready.
func (s *MapSession) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if !s.surface.IsReady() {
		return nil
	}
	teamID := s.Team()
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRefresh, telemetry.AttrTeamID.String(teamID))
	defer span.End()

	areas, err := s.annotations.ListAreas(ctx, teamID)
	if err != nil {
		s.view.Notify(ports.NotifyError, "Could not load drive areas")
		return err
	}
	passes, err := s.annotations.ListPasses(ctx, teamID)
	if err != nil {
		s.view.Notify(ports.NotifyError, "Could not load passes")
		return err
	}

	if _, err := s.layers.Apply(teamID, areas, passes); err != nil {
		if errors.Is(err, ErrStaleTeam) || errors.Is(err, ErrNotReady) {
			slog.Debug("discarding refresh result", "team_id", teamID, "reason", err)
			return nil
		}
		return err
	}
	s.fitter.Consider(areas)
	return nil
}

// SelectTool switches the interaction mode.
func (s *MapSession) SelectTool(mode domain.InteractionMode) error {
	err := s.controller.SelectTool(mode)
	if errors.Is(err, ErrToolsDisabled) {
		s.view.Notify(ports.NotifyInfo, "Wait for the current save to finish")
	}
	return err
}

// Submit saves the pending feature with values.
func (s *MapSession) Submit(ctx context.Context, values ports.DialogValues) error {
	err := s.dialog.Submit(ctx, s.Team(), s.userID, values)
	switch {
	case err == nil:
		s.view.Notify(ports.NotifyInfo, "Saved")
	case domain.IsValidation(err), errors.Is(err, ErrNoPendingFeature):
		// Shown inline by the dialog.
	default:
		s.view.Notify(ports.NotifyError, fmt.Sprintf("Could not save: %v", err))
	}
	return err
}

// Cancel closes the dialog without saving.
func (s *MapSession) Cancel() {
	s.dialog.Cancel()
}

// Close tears everything down. It is safe to call more than once.
func (s *MapSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasOpen := s.opened
	cancel := s.cancel
	unsubscribe := s.unsubscribe
	cancelReady := s.cancelReady
	s.unsubscribe = nil
	s.cancelReady = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if cancelReady != nil {
		cancelReady()
	}

	// Controller and layers go first, while the engine still accepts their
	// detach and remove commands.
	s.controller.Close()
	s.layers.Teardown()
	s.fitter.Reset()
	err := s.surface.Teardown()

	if wasOpen {
		metrics.ActiveMapSessions.Dec()
	}
	return err
}

func (s *MapSession) featureCreated(f domain.PendingFeature) {
	s.dialog.Open(f)
}

func (s *MapSession) dataChanged(teamID string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil || teamID != s.Team() {
		return
	}
	if err := s.Refresh(ctx); err != nil {
		slog.Warn("refresh after save failed", "team_id", teamID, "error", err)
	}
}
