package usecases

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/pkg/geospatial"
)

// ErrToolsDisabled is returned by SelectTool while a submission is in flight.
var ErrToolsDisabled = errors.New("drawing tools disabled")

const (
	cursorCrosshair = "crosshair"
	drawAreaBanner  = "Click to add corners. Double-click or click the first corner to finish."
)

// DrawingModeController is the interaction state machine over the map
// surface. At most one mode is active, and every listener it attached for a
// mode is detached before the next mode is entered.
type DrawingModeController struct {
	surface  *MapSurface
	onCreate func(domain.PendingFeature)
	onHint   func(ports.UIHint)

	mu           sync.Mutex
	mode         domain.InteractionMode
	offs         []func()
	toolsEnabled bool
	epoch        uint64
}

// NewDrawingModeController creates a controller in pan mode. onCreate
// receives every completed gesture; onHint (optional) receives cursor and
// banner changes. Both run outside the controller's lock.
func NewDrawingModeController(surface *MapSurface, onCreate func(domain.PendingFeature), onHint func(ports.UIHint)) *DrawingModeController {
	return &DrawingModeController{
		surface:      surface,
		onCreate:     onCreate,
		onHint:       onHint,
		mode:         domain.ModePan,
		toolsEnabled: true,
	}
}

// Mode returns the active interaction mode.
func (c *DrawingModeController) Mode() domain.InteractionMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Hint returns the current cursor/banner state.
func (c *DrawingModeController) Hint() ports.UIHint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hintLocked()
}

// ListenerCount returns the number of engine listeners the active mode holds.
func (c *DrawingModeController) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.offs)
}

// SelectTool switches to mode. Selecting pan cancels any in-progress gesture.
// While tools are disabled every mode except pan returns ErrToolsDisabled;
// pan stays available since it only ends a gesture and creates nothing.
func (c *DrawingModeController) SelectTool(mode domain.InteractionMode) error {
	if !mode.Valid() {
		return domain.NewValidationError("mode", fmt.Sprintf("unknown mode %q", mode))
	}

	c.mu.Lock()
	if !c.toolsEnabled && mode != domain.ModePan {
		c.mu.Unlock()
		return ErrToolsDisabled
	}
	if !c.surface.IsReady() {
		c.mu.Unlock()
		return ErrNotReady
	}

	c.exitLocked()

	var err error
	switch mode {
	case domain.ModeDrawArea:
		err = c.enterDrawAreaLocked()
	case domain.ModePlacePass:
		err = c.enterPlacePassLocked()
	}
	if err != nil {
		c.exitLocked()
	} else {
		c.mode = mode
	}
	hint := c.hintLocked()
	c.mu.Unlock()

	c.emitHint(hint)
	return err
}

// SetToolsEnabled enables or disables tool selection. Disabling does not
// interrupt the active mode.
func (c *DrawingModeController) SetToolsEnabled(enabled bool) {
	c.mu.Lock()
	if c.toolsEnabled == enabled {
		c.mu.Unlock()
		return
	}
	c.toolsEnabled = enabled
	hint := c.hintLocked()
	c.mu.Unlock()

	c.emitHint(hint)
}

// Close leaves the active mode and detaches its listeners.
func (c *DrawingModeController) Close() {
	c.mu.Lock()
	c.exitLocked()
	c.mu.Unlock()
}

func (c *DrawingModeController) enterDrawAreaLocked() error {
	epoch := c.epoch
	offCreate, err := c.surface.On(ports.EventDrawCreate, func(ev ports.EngineEvent) {
		c.handleDrawCreate(epoch, ev)
	})
	if err != nil {
		return err
	}
	c.offs = append(c.offs, offCreate)

	offMode, err := c.surface.On(ports.EventDrawModeChange, func(ev ports.EngineEvent) {
		c.handleDrawModeChange(epoch, ev)
	})
	if err != nil {
		return err
	}
	c.offs = append(c.offs, offMode)

	if err := c.surface.ChangeDrawMode(ports.DrawModePolygon); err != nil {
		return err
	}
	// draw-area is entered from here on; exitLocked must clear the widget.
	c.mode = domain.ModeDrawArea
	return c.surface.SetCursor(cursorCrosshair)
}

func (c *DrawingModeController) enterPlacePassLocked() error {
	epoch := c.epoch
	off, err := c.surface.On(ports.EventClick, func(ev ports.EngineEvent) {
		c.handlePlaceClick(epoch, ev)
	})
	if err != nil {
		return err
	}
	c.offs = append(c.offs, off)
	c.mode = domain.ModePlacePass
	return c.surface.SetCursor(cursorCrosshair)
}

// exitLocked returns to pan. Engine errors are logged only: the surface may
// already be gone.
func (c *DrawingModeController) exitLocked() {
	offs := c.offs
	c.offs = nil
	for _, off := range offs {
		off()
	}

	if c.mode == domain.ModeDrawArea {
		if err := c.surface.ChangeDrawMode(ports.DrawModeSimpleSelect); err != nil && !errors.Is(err, ErrNotReady) {
			slog.Warn("reset draw mode failed", "error", err)
		}
		if err := c.surface.ClearDrawing(); err != nil && !errors.Is(err, ErrNotReady) {
			slog.Warn("clear drawing failed", "error", err)
		}
	}
	if c.mode != domain.ModePan {
		if err := c.surface.SetCursor(""); err != nil && !errors.Is(err, ErrNotReady) {
			slog.Warn("reset cursor failed", "error", err)
		}
	}

	c.mode = domain.ModePan
	c.epoch++
}

func (c *DrawingModeController) handleDrawCreate(epoch uint64, ev ports.EngineEvent) {
	c.mu.Lock()
	if c.epoch != epoch || c.mode != domain.ModeDrawArea {
		c.mu.Unlock()
		return
	}
	poly, ok := drawnPolygon(ev)
	c.exitLocked()
	hint := c.hintLocked()
	c.mu.Unlock()

	c.emitHint(hint)
	if !ok {
		slog.Warn("draw result has no usable polygon", "features", len(ev.Features))
		return
	}
	if c.onCreate != nil {
		c.onCreate(domain.PendingFeature{Kind: domain.FeatureArea, Geometry: poly})
	}
}

func (c *DrawingModeController) handleDrawModeChange(epoch uint64, ev ports.EngineEvent) {
	if ev.Mode == ports.DrawModePolygon {
		return
	}
	c.mu.Lock()
	if c.epoch != epoch || c.mode != domain.ModeDrawArea {
		c.mu.Unlock()
		return
	}
	// The widget left polygon mode without producing a shape.
	c.exitLocked()
	hint := c.hintLocked()
	c.mu.Unlock()

	c.emitHint(hint)
}

func (c *DrawingModeController) handlePlaceClick(epoch uint64, ev ports.EngineEvent) {
	c.mu.Lock()
	if c.epoch != epoch || c.mode != domain.ModePlacePass {
		c.mu.Unlock()
		return
	}
	c.exitLocked()
	hint := c.hintLocked()
	c.mu.Unlock()

	c.emitHint(hint)
	if c.onCreate != nil {
		c.onCreate(domain.PendingFeature{Kind: domain.FeaturePass, Geometry: ev.LngLat})
	}
}

func (c *DrawingModeController) hintLocked() ports.UIHint {
	h := ports.UIHint{Mode: c.mode, ToolsEnabled: c.toolsEnabled}
	switch c.mode {
	case domain.ModeDrawArea:
		h.Cursor = cursorCrosshair
		h.Banner = drawAreaBanner
	case domain.ModePlacePass:
		h.Cursor = cursorCrosshair
	}
	return h
}

func (c *DrawingModeController) emitHint(h ports.UIHint) {
	if c.onHint != nil {
		c.onHint(h)
	}
}

// drawnPolygon picks the first polygon out of a draw.create payload.
func drawnPolygon(ev ports.EngineEvent) (orb.Polygon, bool) {
	for _, f := range ev.Features {
		if f == nil {
			continue
		}
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			continue
		}
		poly = geospatial.NormalizePolygon(poly)
		if len(poly) == 0 || len(poly[0]) < domain.MinRingPositions {
			continue
		}
		return poly, true
	}
	return nil, false
}
