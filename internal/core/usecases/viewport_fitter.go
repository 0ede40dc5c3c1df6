package usecases

import (
	"log/slog"
	"sync"

	"github.com/paulmach/orb"

	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/pkg/geospatial"
)

// DefaultFitOptions frame the areas with 50px padding and never zoom past 15.
var DefaultFitOptions = ports.FitOptions{Padding: 50, MaxZoom: 15}

// ViewportFitter frames the team's areas once per session. Later data loads
// leave the user's viewport alone until Reset.
type ViewportFitter struct {
	surface *MapSurface
	opts    ports.FitOptions

	mu     sync.Mutex
	fitted bool
}

// NewViewportFitter creates a fitter. Zero options fall back to DefaultFitOptions.
func NewViewportFitter(surface *MapSurface, opts ports.FitOptions) *ViewportFitter {
	if opts.Padding <= 0 {
		opts.Padding = DefaultFitOptions.Padding
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = DefaultFitOptions.MaxZoom
	}
	return &ViewportFitter{surface: surface, opts: opts}
}

// Consider fits the viewport to the union bounds of areas if no fit has
// happened yet. It reports whether it moved the viewport.
func (f *ViewportFitter) Consider(areas []domain.DriveArea) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fitted {
		return false
	}

	polys := make([]orb.Polygon, 0, len(areas))
	for _, a := range areas {
		poly, err := domain.AreaPolygon(a)
		if err != nil {
			continue
		}
		polys = append(polys, poly)
	}
	bound, ok := geospatial.UnionBound(polys...)
	if !ok {
		return false
	}

	if err := f.surface.FitBounds(bound, f.opts); err != nil {
		slog.Warn("fit bounds failed", "error", err)
		return false
	}
	f.fitted = true
	return true
}

// Fitted reports whether the one-shot fit has happened.
func (f *ViewportFitter) Fitted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fitted
}

// Reset re-arms the fit, e.g. after a team switch.
func (f *ViewportFitter) Reset() {
	f.mu.Lock()
	f.fitted = false
	f.mu.Unlock()
}
