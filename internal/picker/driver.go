package picker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/logger"
)

// ErrUnknownSession is returned for session IDs the service is not
// tracking (already collected, cancelled, or never existed).
var ErrUnknownSession = errors.New("unknown picker session")

// Result is the outcome of a finished picking session. Exactly one of
// Selection (region sessions) or Fields (credential sessions) is set
// unless the session was cancelled.
type Result struct {
	Selection *domain.Selection           `json:"selection,omitempty"`
	Fields    *domain.LoginFieldSelection `json:"fields,omitempty"`
	Cancelled bool                        `json:"cancelled"`
}

// PageOpener opens an interactive (headful) browser tab in a partition.
type PageOpener interface {
	HeadfulPage(ctx context.Context, part string) (context.Context, context.CancelFunc, error)
}

// Service runs picking sessions in visible browser windows and collects
// their results. Sessions are identified by opaque IDs so the HTTP
// layer can poll for completion.
type Service struct {
	engine PageOpener
	logger logger.Logger

	mu       sync.Mutex
	sessions map[string]*liveSession
}

type liveSession struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	region *RegionSession
	creds  *CredentialSession
	result *Result
}

// NewService creates a picker service on top of a browser engine.
func NewService(engine PageOpener, log logger.Logger) *Service {
	return &Service{
		engine:   engine,
		logger:   log,
		sessions: make(map[string]*liveSession),
	}
}

// StartRegion opens url in a visible window with the region picker
// overlay and returns the session ID to poll.
func (s *Service) StartRegion(ctx context.Context, url, partition string) (string, error) {
	return s.start(ctx, url, partition, RegionOverlayScript(), func(ls *liveSession, r Renderer) {
		ls.region = NewRegionSession(url, r)
	})
}

// StartCredential opens url in a visible window with the credential
// field picker overlay and returns the session ID to poll.
func (s *Service) StartCredential(ctx context.Context, url, partition string) (string, error) {
	return s.start(ctx, url, partition, CredentialOverlayScript(), func(ls *liveSession, r Renderer) {
		ls.creds = NewCredentialSession(url, r)
	})
}

func (s *Service) start(ctx context.Context, url, partition, overlay string, bind func(*liveSession, Renderer)) (string, error) {
	tabCtx, cancel, err := s.engine.HeadfulPage(ctx, partition)
	if err != nil {
		return "", fmt.Errorf("open picker window: %w", err)
	}

	ls := &liveSession{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	bind(ls, &jsRenderer{ctx: tabCtx, logger: s.logger})

	// Events flow back through the CDP binding; the overlay script is
	// installed on every document so it survives in-page navigations.
	chromedp.ListenTarget(tabCtx, func(ev any) {
		called, ok := ev.(*runtime.EventBindingCalled)
		if !ok || called.Name != BindingName {
			return
		}
		go s.dispatch(ls, []byte(called.Payload))
	})

	if err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return runtime.AddBinding(BindingName).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := cdppage.AddScriptToEvaluateOnNewDocument(overlay).Do(ctx)
			return err
		}),
		chromedp.Navigate(url),
	); err != nil {
		cancel()
		return "", fmt.Errorf("start picker session: %w", err)
	}

	s.mu.Lock()
	s.sessions[ls.id] = ls
	s.mu.Unlock()

	// The user may simply close the window; that counts as a cancel.
	go func() {
		select {
		case <-tabCtx.Done():
			s.complete(ls, &Result{Cancelled: true})
		case <-ls.done:
		}
	}()

	s.logger.Info("picker session started",
		logger.String("session_id", ls.id),
		logger.String("url", url))
	return ls.id, nil
}

// Result returns the session's outcome. done is false while the user is
// still picking. A completed session is forgotten once collected.
func (s *Service) Result(id string) (*Result, bool, error) {
	s.mu.Lock()
	ls, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, false, ErrUnknownSession
	}

	select {
	case <-ls.done:
	default:
		return nil, false, nil
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.result, true, nil
}

// Cancel aborts a running session and closes its window.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	ls, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	ls.mu.Lock()
	if ls.region != nil {
		ls.region.Cancel()
	}
	if ls.creds != nil {
		ls.creds.Cancel()
	}
	ls.mu.Unlock()

	s.complete(ls, &Result{Cancelled: true})
	return nil
}

// Close cancels every running session.
func (s *Service) Close() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		_ = s.Cancel(id)
	}
}

// overlayEvent is the wire shape of one overlay report.
type overlayEvent struct {
	Type    string       `json:"type"`
	Element *ElementInfo `json:"element,omitempty"`
	Point   *Point       `json:"point,omitempty"`
	Scroll  *Point       `json:"scroll,omitempty"`
}

func (s *Service) dispatch(ls *liveSession, payload []byte) {
	var ev overlayEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		s.logger.Debug("malformed picker event", logger.Error(err))
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.result != nil {
		return
	}

	if ls.region != nil {
		s.dispatchRegion(ls, ev)
		return
	}
	s.dispatchCredential(ls, ev)
}

func (s *Service) dispatchRegion(ls *liveSession, ev overlayEvent) {
	sess := ls.region
	switch ev.Type {
	case "ready":
		// Overlay injected; nothing to do until the user picks a mode.
	case "mode_css":
		_ = sess.EnterCSSMode()
	case "mode_crop":
		_ = sess.EnterCropMode()
	case "hover":
		if ev.Element != nil {
			sess.Hover(*ev.Element)
		}
	case "click":
		if ev.Element != nil {
			_ = sess.ToggleElement(*ev.Element)
		}
	case "pointerdown":
		if ev.Point != nil {
			sess.PointerDown(*ev.Point)
		}
	case "pointermove":
		if ev.Point != nil {
			sess.PointerMove(*ev.Point)
		}
	case "pointerup":
		if ev.Point != nil {
			// Under-floor drags already prompted through the renderer;
			// the session stays open for a retry.
			_ = sess.PointerUp(*ev.Point)
		}
	case "finish":
		scroll := Point{}
		if ev.Scroll != nil {
			scroll = *ev.Scroll
		}
		sel, err := sess.Finish(scroll)
		if err != nil {
			s.logger.Debug("picker finish rejected", logger.Error(err))
			return
		}
		s.completeLocked(ls, &Result{Selection: sel})
	case "cancel":
		sess.Cancel()
		s.completeLocked(ls, &Result{Cancelled: true})
	}
}

func (s *Service) dispatchCredential(ls *liveSession, ev overlayEvent) {
	sess := ls.creds
	switch ev.Type {
	case "ready":
	case "hover":
		if ev.Element != nil {
			sess.Hover(*ev.Element)
		}
	case "click":
		if ev.Element != nil {
			// Ineligible clicks are ignored; the step prompt stands.
			_ = sess.ClickElement(*ev.Element)
		}
	case "skip":
		_ = sess.Skip()
	case "done":
		fields, err := sess.Done()
		if err != nil {
			s.logger.Debug("credential picker done rejected", logger.Error(err))
			return
		}
		s.completeLocked(ls, &Result{Fields: &fields})
	case "cancel":
		sess.Cancel()
		s.completeLocked(ls, &Result{Cancelled: true})
	}
}

// complete records a result exactly once and closes the window.
func (s *Service) complete(ls *liveSession, res *Result) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	s.completeLocked(ls, res)
}

func (s *Service) completeLocked(ls *liveSession, res *Result) {
	if ls.result != nil {
		return
	}
	ls.result = res
	close(ls.done)
	ls.cancel()
}

// jsRenderer projects session state into the page by calling the
// overlay's drawing API. Failures are logged and swallowed: a draw that
// misses must never stall the state machine.
type jsRenderer struct {
	ctx    context.Context
	logger logger.Logger
}

func (r *jsRenderer) eval(call string, args ...any) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return
		}
		encoded[i] = string(b)
	}
	expr := "window.__peekdeckOverlay && window.__peekdeckOverlay." + call + "("
	for i, e := range encoded {
		if i > 0 {
			expr += ","
		}
		expr += e
	}
	expr += ")"

	if err := chromedp.Run(r.ctx, chromedp.Evaluate(expr, nil)); err != nil {
		r.logger.Debug("overlay draw failed",
			logger.String("call", call),
			logger.Error(err))
	}
}

func (r *jsRenderer) SetMode(s State)         { r.eval("setMode", s.String()) }
func (r *jsRenderer) Highlight(el ElementInfo) { r.eval("highlight", el.Token) }
func (r *jsRenderer) ClearHighlight()          { r.eval("clearHighlight") }
func (r *jsRenderer) AddBadge(el ElementInfo, n int) {
	r.eval("addBadge", el.Token, n)
}
func (r *jsRenderer) RemoveBadge(token string)        { r.eval("removeBadge", token) }
func (r *jsRenderer) RenumberBadge(token string, n int) { r.eval("renumberBadge", token, n) }
func (r *jsRenderer) DrawRect(rect Rect) {
	r.eval("drawRect", rect.X, rect.Y, rect.Width, rect.Height)
}
func (r *jsRenderer) ClearRect()               { r.eval("clearRect") }
func (r *jsRenderer) MarkField(el ElementInfo) { r.eval("markField", el.Token) }
func (r *jsRenderer) Prompt(msg string)        { r.eval("prompt", msg) }
func (r *jsRenderer) Teardown()                { r.eval("teardown") }
