package domain

import "time"

// Widget represents the canonical runtime truth of a dashboard widget.
//
// It is NOT tied to Redis, the seed file or any external source.
// All inputs (API, seed file, cache) are merged into this structure.
//
// A Widget is uniquely identified by its ID.
type Widget struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is the canonical unique identifier (UUID).
	ID string

	// ─────────────────────────────
	// Target description
	// ─────────────────────────────

	// Name is a user-facing label.
	// Example: "Grafana CPU panel"
	Name string

	// URL is the page the widget embeds a region of.
	URL string

	// Selection describes which region of the page is shown.
	// Replaced wholesale by a fresh picking session, never edited in place.
	Selection *Selection

	// ─────────────────────────────
	// Session & credentials
	// ─────────────────────────────

	// Partition is the opaque cookie/storage isolation key.
	// Widgets sharing a Partition share cookies and login state.
	Partition string

	// HasCredentials is true when a credential record exists for
	// this widget (per-widget or via a group).
	HasCredentials bool

	// CredentialGroupID references a shared credential group, or is
	// empty when the widget has no group. When set, captures use the
	// group's partition instead of the widget's own.
	CredentialGroupID string

	// ─────────────────────────────
	// Refresh & display
	// ─────────────────────────────

	// RefreshInterval is the auto-refresh period in seconds.
	// 0 disables auto-refresh (manual only).
	RefreshInterval int

	// ZoomLevel is a display scaling hint for the dashboard UI.
	// It does not affect capture.
	ZoomLevel float64

	// ─────────────────────────────
	// Provenance & metadata
	// ─────────────────────────────

	// Sources indicates where this widget was defined.
	// Example: api, seedfile
	Sources []string

	// CreatedAt is the first time the widget was created.
	CreatedAt time.Time

	// UpdatedAt is updated on any mutation.
	UpdatedAt time.Time

	// ─────────────────────────────
	// Liveness & cleanup
	// ─────────────────────────────

	// Disabled marks a widget as soft-deleted.
	// It may be garbage-collected later.
	Disabled bool
}

// EffectivePartition returns the partition captures should run in:
// the credential group's partition when the widget belongs to a group,
// the widget's own partition otherwise.
func (w *Widget) EffectivePartition(group *CredentialGroup) string {
	if w.CredentialGroupID != "" && group != nil && group.Partition != "" {
		return group.Partition
	}
	return w.Partition
}

// CredentialGroup is a named login session shared by several widgets.
// All widgets referencing the group capture inside the group's partition,
// so a single auto-login serves all of them.
type CredentialGroup struct {
	// ID is the canonical unique identifier (UUID).
	ID string

	// Name is a user-facing label. Example: "Grafana admin"
	Name string

	// Partition is the shared session partition for the group.
	Partition string

	// LoginURL is the page auto-login should run on, matched as a
	// case-insensitive substring of the current URL. Empty = any
	// detected login page.
	LoginURL string

	CreatedAt time.Time
	UpdatedAt time.Time
}
