package capture

import (
	"context"
	"strings"
)

// Page is the capture pipeline's view of one browsing context. The
// production implementation drives a Chrome tab over CDP; tests use a
// scripted fake, which is what keeps the whole capture protocol unit
// testable without a browser.
type Page interface {
	// Navigate loads url and returns once the DOM is ready (content
	// loaded; scripts and SPA rendering may still be running).
	Navigate(ctx context.Context, url string) error

	// WaitReady blocks until the next DOM-ready signal, for passes
	// resumed after a navigation the page triggered itself (login
	// submits in particular).
	WaitReady(ctx context.Context) error

	// ExpectNavigation discards any buffered ready signal so the next
	// WaitReady only completes on a load started after this call. Must
	// be called immediately before an action expected to trigger a
	// navigation.
	ExpectNavigation()

	// CurrentURL returns the page's current location.
	CurrentURL(ctx context.Context) (string, error)

	// Eval evaluates a script, decoding its result into out when out
	// is non-nil.
	Eval(ctx context.Context, js string, out any) error

	// Screenshot captures the current viewport as PNG. A non-nil clip
	// restricts the capture to that document-coordinate rectangle.
	Screenshot(ctx context.Context, clip *Clip) ([]byte, error)

	// Input returns the driver used to replay credentials into the
	// page.
	Input() InputDriver

	// Close releases the tab.
	Close()
}

// Clip is a document-coordinate capture rectangle in CSS pixels.
type Clip struct {
	X, Y, Width, Height float64
}

// InputDriver replays user input into a page. Production simulates
// discrete keystroke events because many login forms only validate on
// real key sequences; tests swap in a direct-assignment fake.
type InputDriver interface {
	// TypeInto focuses the element, clears any existing value, then
	// enters text as individual keystrokes.
	TypeInto(ctx context.Context, sel, text string) error

	// Click dispatches a click on the element.
	Click(ctx context.Context, sel string) error

	// PressEnter sends an Enter keypress to the element, the fallback
	// submission path when no submit selector resolves.
	PressEnter(ctx context.Context, sel string) error
}

// navigationAborted reports whether a navigation error was caused by a
// superseding navigation rather than a genuine load failure. Aborts are
// expected mid-login and are never surfaced.
func navigationAborted(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "net::ERR_ABORTED")
}
