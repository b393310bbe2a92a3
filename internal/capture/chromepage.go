package capture

import (
	"context"
	"fmt"
	"time"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// PageOptions tunes the CDP-backed page.
type PageOptions struct {
	// ReadyCeiling bounds every DOM-ready wait. Losing a readiness
	// signal must not spin forever; hitting the ceiling degrades to
	// "proceed with whatever is rendered".
	ReadyCeiling time.Duration
	// KeystrokeDelay is the pause between simulated keystrokes.
	KeystrokeDelay time.Duration
}

// chromePage drives one Chrome tab over CDP.
type chromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    PageOptions
	readyCh chan struct{}
	input   InputDriver
}

// NewChromePage wraps a chromedp tab context as a Page. cancel is
// invoked on Close.
func NewChromePage(ctx context.Context, cancel context.CancelFunc, opts PageOptions) Page {
	if opts.ReadyCeiling <= 0 {
		opts.ReadyCeiling = 4 * time.Second
	}
	if opts.KeystrokeDelay <= 0 {
		opts.KeystrokeDelay = 30 * time.Millisecond
	}
	p := &chromePage{
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		readyCh: make(chan struct{}, 4),
	}
	p.input = &chromeInput{page: p}

	chromedp.ListenTarget(ctx, func(ev any) {
		if _, ok := ev.(*cdppage.EventDomContentEventFired); ok {
			select {
			case p.readyCh <- struct{}{}:
			default:
			}
		}
	})
	return p
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	run, stop := p.run(ctx)
	defer stop()
	if err := chromedp.Run(run, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// ExpectNavigation drains buffered ready signals. Navigate waits out
// its own load while the listener buffers that load's signal; without
// the drain, a WaitReady after a submit click would consume the stale
// signal and resume on the still-current page.
func (p *chromePage) ExpectNavigation() {
	for {
		select {
		case <-p.readyCh:
		default:
			return
		}
	}
}

// WaitReady waits for the next DOM-ready signal, bounded by the ready
// ceiling. Hitting the ceiling is reported as ErrReadyTimeout so the
// caller can proceed with the page as it stands.
func (p *chromePage) WaitReady(ctx context.Context) error {
	timer := time.NewTimer(p.opts.ReadyCeiling)
	defer timer.Stop()
	select {
	case <-p.readyCh:
		return nil
	case <-timer.C:
		return ErrReadyTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

func (p *chromePage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	run, stop := p.run(ctx)
	defer stop()
	if err := chromedp.Run(run, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

func (p *chromePage) Eval(ctx context.Context, js string, out any) error {
	run, stop := p.run(ctx)
	defer stop()
	if err := chromedp.Run(run, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context, clip *Clip) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if clip == nil {
		action = chromedp.CaptureScreenshot(&buf)
	} else {
		action = chromedp.ActionFunc(func(ctx context.Context) error {
			data, err := cdppage.CaptureScreenshot().
				WithFormat(cdppage.CaptureScreenshotFormatPng).
				WithClip(&cdppage.Viewport{
					X:      clip.X,
					Y:      clip.Y,
					Width:  clip.Width,
					Height: clip.Height,
					Scale:  1,
				}).Do(ctx)
			if err != nil {
				return err
			}
			buf = data
			return nil
		})
	}
	run, stop := p.run(ctx)
	defer stop()
	if err := chromedp.Run(run, action); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}
	return buf, nil
}

func (p *chromePage) Input() InputDriver { return p.input }

func (p *chromePage) Close() {
	if p.cancel != nil {
		p.cancel()
	}
}

// run derives an action context that honors both the tab's lifetime and
// the caller's deadline. The returned stop must be called when the
// action completes.
func (p *chromePage) run(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.ctx, func() {}
	}
	merged, cancel := context.WithCancel(p.ctx)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}

// chromeInput simulates user input through CDP key events. Values are
// never assigned directly: framework-driven validation and masked
// inputs only react to keystroke-shaped event sequences.
type chromeInput struct {
	page *chromePage
}

func (in *chromeInput) TypeInto(ctx context.Context, sel, text string) error {
	run, stop := in.page.run(ctx)
	defer stop()

	// Focus and clear first; typing must not append to a remembered
	// value.
	if err := chromedp.Run(run,
		chromedp.Focus(sel, chromedp.ByQuery),
		chromedp.Clear(sel, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("focus %s: %w", sel, err)
	}

	for _, r := range text {
		if err := chromedp.Run(run, chromedp.SendKeys(sel, string(r), chromedp.ByQuery)); err != nil {
			return fmt.Errorf("type into %s: %w", sel, err)
		}
		select {
		case <-time.After(in.page.opts.KeystrokeDelay):
		case <-run.Done():
			return run.Err()
		}
	}
	return nil
}

func (in *chromeInput) Click(ctx context.Context, sel string) error {
	run, stop := in.page.run(ctx)
	defer stop()
	if err := chromedp.Run(run, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (in *chromeInput) PressEnter(ctx context.Context, sel string) error {
	run, stop := in.page.run(ctx)
	defer stop()
	if err := chromedp.Run(run, chromedp.SendKeys(sel, kb.Enter, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("press enter on %s: %w", sel, err)
	}
	return nil
}
