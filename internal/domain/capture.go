package domain

import "time"

// CaptureRequest is the ephemeral value handed to the capture controller
// for one refresh of one widget. It is never persisted.
type CaptureRequest struct {
	WidgetID  string
	URL       string
	Partition string
	Selection *Selection

	// Credentials is nil when the widget has no login configured.
	Credentials *Credentials
}

// CaptureErrorKind classifies capture failures so the dashboard can
// explain them instead of showing a generic error.
type CaptureErrorKind string

const (
	// CaptureErrNavigation is a genuine page load failure. Loads
	// aborted by a superseding navigation are not reported.
	CaptureErrNavigation CaptureErrorKind = "navigation_failed"
	// CaptureErrTimeout means readiness signals never arrived within
	// the pass ceiling.
	CaptureErrTimeout CaptureErrorKind = "timeout"
	// CaptureErrScript is a DOM script evaluation failure that could
	// not be degraded away.
	CaptureErrScript CaptureErrorKind = "script_error"
	// CaptureErrDecryption means the credential blobs could not be
	// opened (the secret store key changed).
	CaptureErrDecryption CaptureErrorKind = "decryption_failed"
	// CaptureErrInternal covers everything else.
	CaptureErrInternal CaptureErrorKind = "internal"
)

// CaptureResult is the outcome of one capture pass. Either PNG is set
// (success) or ErrKind/ErrMessage are (failure). Held only for the
// current refresh cycle's display, never persisted.
type CaptureResult struct {
	WidgetID string

	// PNG is the rendered snapshot of the isolated context. For crop
	// selections it is already clipped to the stored rectangle.
	PNG []byte

	// Filtered is true when a CSS selection was applied; false when
	// the selectors no longer resolved and the full page is shown
	// (the soft-failure path).
	Filtered bool

	CapturedAt time.Time

	ErrKind    CaptureErrorKind
	ErrMessage string
}

// OK reports whether the pass produced a displayable snapshot.
func (r *CaptureResult) OK() bool { return r != nil && r.ErrKind == "" }
