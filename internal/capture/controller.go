// Package capture turns a stored widget selection into a displayable
// snapshot of the target page.
//
// One Capture call is one "capture pass" in the protocol sense: load
// the page in the widget's partition, auto-login if the page asks for
// it, renavigate if login bounced us elsewhere, apply the stored
// selection, snapshot. Steps that trigger a navigation never assume
// synchronous completion; the pipeline suspends until the next
// DOM-ready signal and resumes from an explicit continuation.
package capture

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/logger"
)

// ErrReadyTimeout means a DOM-ready wait hit its ceiling. It bounds the
// user-visible loading state; the pipeline proceeds with whatever the
// page currently shows rather than treating it as fatal.
var ErrReadyTimeout = errors.New("timed out waiting for page ready")

// loginKeywords mark a URL as a login page regardless of its markup.
var loginKeywords = []string{"login", "signin", "sign-in", "auth", "account"}

// continuation names where a suspended pass resumes after a
// navigation-triggering step.
type continuation int

const (
	applyingSelection continuation = iota
	awaitingPostLoginLoad
	awaitingTargetPageLoad
)

// Tunables are the capture pipeline's timing knobs.
type Tunables struct {
	// SettleDelay runs after DOM-ready before probing CSS selectors;
	// SPA frameworks paint well after the ready signal.
	SettleDelay time.Duration
	// ScrollMargin is the gap left above the topmost matched element
	// when scrolling isolated content into view.
	ScrollMargin float64
	// PassTimeout bounds one whole capture pass.
	PassTimeout time.Duration
	// MaxRestarts bounds navigation-triggered pipeline restarts
	// (login bounce, renavigation) within one pass.
	MaxRestarts int
}

// DefaultTunables match the documented protocol values.
func DefaultTunables() Tunables {
	return Tunables{
		SettleDelay:  1500 * time.Millisecond,
		ScrollMargin: 10,
		PassTimeout:  45 * time.Second,
		MaxRestarts:  4,
	}
}

// PageFactory opens a page in the given partition.
type PageFactory func(ctx context.Context, partition string) (Page, error)

// Controller executes capture passes.
type Controller struct {
	newPage PageFactory
	logger  logger.Logger
	tun     Tunables
}

// NewController builds a controller around a page factory, so tests can
// swap Chrome out for a scripted page.
func NewController(newPage PageFactory, log logger.Logger, tun Tunables) *Controller {
	if tun.SettleDelay <= 0 {
		tun.SettleDelay = DefaultTunables().SettleDelay
	}
	if tun.ScrollMargin <= 0 {
		tun.ScrollMargin = DefaultTunables().ScrollMargin
	}
	if tun.PassTimeout <= 0 {
		tun.PassTimeout = DefaultTunables().PassTimeout
	}
	if tun.MaxRestarts <= 0 {
		tun.MaxRestarts = DefaultTunables().MaxRestarts
	}
	return &Controller{newPage: newPage, logger: log, tun: tun}
}

// Capture runs one capture pass for the request. Errors are returned
// inside the result, never panicked or propagated: a widget's failure
// must stay that widget's failure.
func (c *Controller) Capture(ctx context.Context, req *domain.CaptureRequest) *domain.CaptureResult {
	ctx, cancel := context.WithTimeout(ctx, c.tun.PassTimeout)
	defer cancel()

	page, err := c.newPage(ctx, req.Partition)
	if err != nil {
		return errResult(req, domain.CaptureErrInternal, fmt.Sprintf("failed to open page: %v", err))
	}
	defer page.Close()

	if err := page.Navigate(ctx, req.URL); err != nil {
		if !navigationAborted(err) {
			return errResult(req, domain.CaptureErrNavigation, err.Error())
		}
		// A superseding navigation cancelled ours; whatever wins the
		// race fires the next ready signal.
		c.waitReadySoft(ctx, page, req.WidgetID)
	}

	cont := applyingSelection
	loginAttempted := false

	for restart := 0; restart <= c.tun.MaxRestarts; restart++ {
		if ctx.Err() != nil {
			return errResult(req, domain.CaptureErrTimeout, "capture pass timed out")
		}

		if cont != applyingSelection {
			c.waitReadySoft(ctx, page, req.WidgetID)
			cont = applyingSelection
		}

		currentURL, err := page.CurrentURL(ctx)
		if err != nil {
			return errResult(req, domain.CaptureErrInternal, fmt.Sprintf("failed to read page location: %v", err))
		}

		onLogin := c.isLoginPage(ctx, page, currentURL)

		if req.Credentials != nil && onLogin && !loginAttempted &&
			loginURLMatches(req.Credentials.LoginURL, currentURL) {
			loginAttempted = true
			if c.autoLogin(ctx, page, req) {
				// A successful submit navigates out from under us.
				// Whether it actually worked is only observable on
				// the next load.
				cont = awaitingPostLoginLoad
				continue
			}
			// Fields missing or typing failed: fall through and apply
			// the selection to whatever page this is.
		}

		if !onLogin {
			if mismatch := pathMismatch(req.URL, currentURL); mismatch {
				page.ExpectNavigation()
				if err := page.Navigate(ctx, req.URL); err != nil && !navigationAborted(err) {
					return errResult(req, domain.CaptureErrNavigation, err.Error())
				}
				cont = awaitingTargetPageLoad
				continue
			}
		}

		return c.applyAndSnapshot(ctx, page, req)
	}

	return errResult(req, domain.CaptureErrTimeout, "page never settled on the target URL")
}

// waitReadySoft waits for the next DOM-ready signal; a ceiling hit is
// logged and swallowed so a lost signal cannot spin the widget forever.
func (c *Controller) waitReadySoft(ctx context.Context, page Page, widgetID string) {
	if err := page.WaitReady(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("proceeding without ready signal",
			logger.String("widget_id", widgetID),
			logger.Error(err))
	}
}

// isLoginPage detects login pages: a password input anywhere in the
// document, or a login keyword in the URL.
func (c *Controller) isLoginPage(ctx context.Context, page Page, currentURL string) bool {
	lowered := strings.ToLower(currentURL)
	for _, kw := range loginKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}

	var hasPassword bool
	if err := page.Eval(ctx, detectLoginJS, &hasPassword); err != nil {
		// Script evaluation failures degrade to "not a login page".
		c.logger.Debug("login detection script failed", logger.Error(err))
		return false
	}
	return hasPassword
}

// applyAndSnapshot applies the stored selection and captures the
// result. CSS selections that no longer resolve degrade to an
// unfiltered full-page snapshot instead of failing the pass.
func (c *Controller) applyAndSnapshot(ctx context.Context, page Page, req *domain.CaptureRequest) *domain.CaptureResult {
	sel := req.Selection

	switch {
	case sel == nil:
		return c.snapshot(ctx, page, req, nil, false)

	case sel.Kind == domain.SelectionCSS && sel.CSS != nil:
		// DOM-ready alone is not enough for SPA content; give
		// client-side rendering a moment to paint.
		if !sleepCtx(ctx, c.tun.SettleDelay) {
			return errResult(req, domain.CaptureErrTimeout, "capture pass timed out")
		}

		var hits int
		if err := page.Eval(ctx, probeJS(sel.CSS.Selectors), &hits); err != nil {
			c.logger.Warn("selector probe failed, showing unfiltered page",
				logger.String("widget_id", req.WidgetID),
				logger.Error(err))
			return c.snapshot(ctx, page, req, nil, false)
		}
		if hits == 0 {
			c.logger.Warn("no stored selector resolves, showing unfiltered page",
				logger.String("widget_id", req.WidgetID),
				logger.String("url", req.URL))
			return c.snapshot(ctx, page, req, nil, false)
		}

		var minTop float64
		if err := page.Eval(ctx, isolateJS(sel.CSS.Selectors, c.tun.ScrollMargin), &minTop); err != nil {
			c.logger.Warn("isolation script failed, showing unfiltered page",
				logger.String("widget_id", req.WidgetID),
				logger.Error(err))
			return c.snapshot(ctx, page, req, nil, false)
		}
		return c.snapshot(ctx, page, req, nil, true)

	case sel.Kind == domain.SelectionCrop && sel.Crop != nil:
		crop := sel.Crop
		if err := page.Eval(ctx, scrollJS(crop.ScrollX, crop.ScrollY), nil); err != nil {
			c.logger.Warn("crop scroll failed", logger.Error(err))
		}
		clip := &Clip{
			X:      crop.ScrollX + crop.X,
			Y:      crop.ScrollY + crop.Y,
			Width:  crop.Width,
			Height: crop.Height,
		}
		return c.snapshot(ctx, page, req, clip, true)
	}

	return errResult(req, domain.CaptureErrInternal,
		fmt.Sprintf("malformed selection of kind %q", sel.Kind))
}

func (c *Controller) snapshot(ctx context.Context, page Page, req *domain.CaptureRequest, clip *Clip, filtered bool) *domain.CaptureResult {
	png, err := page.Screenshot(ctx, clip)
	if err != nil {
		return errResult(req, domain.CaptureErrInternal, fmt.Sprintf("snapshot failed: %v", err))
	}
	return &domain.CaptureResult{
		WidgetID:   req.WidgetID,
		PNG:        png,
		Filtered:   filtered,
		CapturedAt: time.Now(),
	}
}

// pathMismatch reports whether the page drifted off the configured
// URL's path. Root-path targets never force a renavigation: landing on
// any page of the site satisfies them.
func pathMismatch(configured, current string) bool {
	cu, err := url.Parse(configured)
	if err != nil {
		return false
	}
	pu, err := url.Parse(current)
	if err != nil {
		return false
	}
	cPath := normalizePath(cu.Path)
	if cPath == "/" {
		return false
	}
	return cPath != normalizePath(pu.Path)
}

func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	return strings.TrimSuffix(p, "/")
}

// loginURLMatches applies the credentials' login-URL restriction:
// empty matches any login page, otherwise the current URL must contain
// it case-insensitively.
func loginURLMatches(loginURL, currentURL string) bool {
	if loginURL == "" {
		return true
	}
	return strings.Contains(strings.ToLower(currentURL), strings.ToLower(loginURL))
}

// sleepCtx sleeps for d, returning false if ctx expires first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func errResult(req *domain.CaptureRequest, kind domain.CaptureErrorKind, msg string) *domain.CaptureResult {
	return &domain.CaptureResult{
		WidgetID:   req.WidgetID,
		ErrKind:    kind,
		ErrMessage: msg,
	}
}
