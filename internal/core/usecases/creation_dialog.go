package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/paulmach/orb"

	"github.com/samirrijal/huntmap/internal/core/domain"
	"github.com/samirrijal/huntmap/internal/core/ports"
)

// ErrNoPendingFeature is returned by Submit when there is nothing to save.
var ErrNoPendingFeature = errors.New("no pending feature")

// AnnotationCreator persists completed features.
type AnnotationCreator interface {
	CreateDriveArea(ctx context.Context, in DriveAreaInput) (*domain.DriveArea, error)
	CreatePass(ctx context.Context, in PassInput) (*domain.HuntingPass, error)
}

// ToolGate lets the dialog lock tool selection while a save is in flight.
type ToolGate interface {
	SetToolsEnabled(enabled bool)
}

// CreationDialogFlow turns a pending feature plus user-entered metadata
// into a persisted record: idle -> pending -> submitting -> idle, falling
// back to pending with the entered values intact when a save fails.
type CreationDialogFlow struct {
	creator   AnnotationCreator
	tools     ToolGate
	onChanged func(teamID string)
	onState   func(ports.DialogSnapshot)

	mu         sync.Mutex
	state      ports.DialogState
	pending    *domain.PendingFeature
	values     ports.DialogValues
	validation string
}

// NewCreationDialogFlow creates an idle dialog. tools, onChanged and
// onState may be nil.
func NewCreationDialogFlow(creator AnnotationCreator, tools ToolGate, onChanged func(teamID string), onState func(ports.DialogSnapshot)) *CreationDialogFlow {
	return &CreationDialogFlow{
		creator:   creator,
		tools:     tools,
		onChanged: onChanged,
		onState:   onState,
		state:     ports.DialogIdle,
	}
}

// Open shows the dialog for f, replacing any earlier pending feature. It is
// ignored while a submission is in flight.
func (d *CreationDialogFlow) Open(f domain.PendingFeature) bool {
	d.mu.Lock()
	if d.state == ports.DialogSubmitting {
		d.mu.Unlock()
		return false
	}
	d.state = ports.DialogPending
	d.pending = &f
	d.values = ports.DialogValues{}
	d.validation = ""
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.emit(snap)
	return true
}

// Cancel discards the pending feature. It is ignored while submitting.
func (d *CreationDialogFlow) Cancel() bool {
	d.mu.Lock()
	if d.state == ports.DialogSubmitting {
		d.mu.Unlock()
		return false
	}
	wasOpen := d.state == ports.DialogPending
	d.resetLocked()
	snap := d.snapshotLocked()
	d.mu.Unlock()

	if wasOpen {
		d.emit(snap)
	}
	return wasOpen
}

// Snapshot returns the current dialog state.
func (d *CreationDialogFlow) Snapshot() ports.DialogSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Submit validates values and persists the pending feature for teamID.
// Validation failures keep the dialog pending with an inline message and
// make no repository call.
func (d *CreationDialogFlow) Submit(ctx context.Context, teamID, userID string, values ports.DialogValues) error {
	d.mu.Lock()
	if d.state != ports.DialogPending || d.pending == nil {
		d.mu.Unlock()
		return ErrNoPendingFeature
	}
	d.values = values

	var verr *domain.ValidationError
	switch {
	case strings.TrimSpace(values.Name) == "":
		verr = domain.NewValidationError("name", "Name is required")
	case teamID == "":
		verr = domain.NewValidationError("team", "Select a team first")
	}
	if verr != nil {
		d.validation = verr.Message
		snap := d.snapshotLocked()
		d.mu.Unlock()
		d.emit(snap)
		return verr
	}

	feature := *d.pending
	d.state = ports.DialogSubmitting
	d.validation = ""
	snap := d.snapshotLocked()
	d.mu.Unlock()

	d.emit(snap)
	if d.tools != nil {
		d.tools.SetToolsEnabled(false)
	}

	err := d.persist(ctx, feature, teamID, userID, values)

	if d.tools != nil {
		d.tools.SetToolsEnabled(true)
	}

	d.mu.Lock()
	if err != nil {
		d.state = ports.DialogPending
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			d.validation = ve.Message
		}
		snap = d.snapshotLocked()
		d.mu.Unlock()
		d.emit(snap)
		return err
	}
	d.resetLocked()
	snap = d.snapshotLocked()
	d.mu.Unlock()

	d.emit(snap)
	if d.onChanged != nil {
		d.onChanged(teamID)
	}
	return nil
}

func (d *CreationDialogFlow) persist(ctx context.Context, f domain.PendingFeature, teamID, userID string, values ports.DialogValues) error {
	switch f.Kind {
	case domain.FeatureArea:
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			return fmt.Errorf("pending area has %T geometry", f.Geometry)
		}
		_, err := d.creator.CreateDriveArea(ctx, DriveAreaInput{
			TeamID:    teamID,
			Name:      values.Name,
			CreatedBy: userID,
			Boundary:  poly,
		})
		return err
	case domain.FeaturePass:
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			return fmt.Errorf("pending pass has %T geometry", f.Geometry)
		}
		_, err := d.creator.CreatePass(ctx, PassInput{
			TeamID:      teamID,
			Name:        values.Name,
			Description: values.Description,
			CreatedBy:   userID,
			Location:    pt,
		})
		return err
	}
	return fmt.Errorf("unknown feature kind %q", f.Kind)
}

func (d *CreationDialogFlow) resetLocked() {
	d.state = ports.DialogIdle
	d.pending = nil
	d.values = ports.DialogValues{}
	d.validation = ""
}

func (d *CreationDialogFlow) snapshotLocked() ports.DialogSnapshot {
	snap := ports.DialogSnapshot{
		State:           d.state,
		Values:          d.values,
		ValidationError: d.validation,
	}
	if d.pending != nil {
		snap.Kind = d.pending.Kind
		snap.ShowDescription = d.pending.Kind == domain.FeaturePass
	}
	return snap
}

func (d *CreationDialogFlow) emit(s ports.DialogSnapshot) {
	if d.onState != nil {
		d.onState(s)
	}
}
