package capture

import (
	"context"
	"fmt"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/logger"
)

// autoLogin replays stored credentials into a detected login page.
// It returns true when a submission was triggered (the page is about to
// navigate away) and false when login was skipped or failed softly;
// the pass then applies the selection to whatever page is showing.
//
// Success is never confirmed here: the submit navigates out from under
// the evaluation, and the outcome is only observable on the next
// DOM-ready pass.
func (c *Controller) autoLogin(ctx context.Context, page Page, req *domain.CaptureRequest) bool {
	creds := req.Credentials
	fields := creds.Fields

	if !fields.Complete() {
		c.logger.Warn("credentials lack field selectors, skipping auto-login",
			logger.String("widget_id", req.WidgetID))
		return false
	}

	// Both field selectors must resolve before anything is typed.
	// A redesigned login form means stale selectors; skipping login is
	// the known soft-failure path.
	for _, sel := range []string{fields.UsernameSelector, fields.PasswordSelector} {
		ok, err := c.probeOne(ctx, page, sel)
		if err != nil {
			c.logger.Warn("login field probe failed, skipping auto-login",
				logger.String("widget_id", req.WidgetID),
				logger.Error(err))
			return false
		}
		if !ok {
			c.logger.Warn("login field not found, skipping auto-login",
				logger.String("widget_id", req.WidgetID),
				logger.String("selector", sel))
			return false
		}
	}

	in := page.Input()

	if err := in.TypeInto(ctx, fields.UsernameSelector, creds.Username); err != nil {
		c.logger.Warn("failed to enter username, skipping auto-login",
			logger.String("widget_id", req.WidgetID),
			logger.Error(err))
		return false
	}
	if err := in.TypeInto(ctx, fields.PasswordSelector, creds.Password); err != nil {
		c.logger.Warn("failed to enter password, skipping auto-login",
			logger.String("widget_id", req.WidgetID),
			logger.Error(err))
		return false
	}

	// Submit via the stored selector when it still resolves; otherwise
	// fall back to an Enter keypress in the password field, which
	// matches the form-submit semantics of nearly every login form.
	if fields.SubmitSelector != "" {
		if ok, _ := c.probeOne(ctx, page, fields.SubmitSelector); ok {
			page.ExpectNavigation()
			if err := in.Click(ctx, fields.SubmitSelector); err != nil {
				c.logger.Warn("submit click failed",
					logger.String("widget_id", req.WidgetID),
					logger.Error(err))
				return false
			}
			return true
		}
		c.logger.Warn("submit selector no longer resolves, falling back to enter",
			logger.String("widget_id", req.WidgetID),
			logger.String("selector", fields.SubmitSelector))
	}

	page.ExpectNavigation()
	if err := in.PressEnter(ctx, fields.PasswordSelector); err != nil {
		c.logger.Warn("enter submission failed",
			logger.String("widget_id", req.WidgetID),
			logger.Error(err))
		return false
	}
	return true
}

// probeOne reports whether a selector currently resolves to an element.
func (c *Controller) probeOne(ctx context.Context, page Page, sel string) (bool, error) {
	var found bool
	js := fmt.Sprintf(`(function() {
	try { return !!document.querySelector(%q); } catch (e) { return false; }
})()`, sel)
	if err := page.Eval(ctx, js, &found); err != nil {
		return false, err
	}
	return found, nil
}
