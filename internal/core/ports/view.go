package ports

import "github.com/samirrijal/huntmap/internal/core/domain"

// UIHint is the derived cursor/banner/tool state of the drawing controller.
type UIHint struct {
	Mode         domain.InteractionMode `json:"mode"`
	Cursor       string                 `json:"cursor"`
	Banner       string                 `json:"banner,omitempty"`
	ToolsEnabled bool                   `json:"tools_enabled"`
}

// DialogState is the state of the creation dialog.
type DialogState string

const (
	DialogIdle       DialogState = "idle"
	DialogPending    DialogState = "pending"
	DialogSubmitting DialogState = "submitting"
)

// DialogValues are the fields entered by the user.
type DialogValues struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// DialogSnapshot is what the view renders for the creation dialog.
type DialogSnapshot struct {
	State           DialogState        `json:"state"`
	Kind            domain.FeatureKind `json:"kind,omitempty"`
	Values          DialogValues       `json:"values"`
	ValidationError string             `json:"validation_error,omitempty"`
	ShowDescription bool               `json:"show_description"`
}

// Notification levels.
const (
	NotifyInfo  = "info"
	NotifyError = "error"
)

// SessionView renders map session state for one client.
type SessionView interface {
	HintChanged(hint UIHint)
	DialogChanged(dialog DialogSnapshot)
	Notify(level, message string)
	LoadFailed(err error)
}
