package capture

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/logger"
)

// fakePage scripts a browsing context so the full capture protocol runs
// without Chrome.
type fakePage struct {
	currentURL string

	// redirects maps a navigation target to the URL the page actually
	// lands on (login bounces). Each entry fires once.
	redirects map[string]string
	navErr    map[string]error

	// passwordInput marks the current page as a login form.
	passwordInput bool

	// resolvable answers per-selector existence probes.
	resolvable map[string]bool

	probeHits  int
	isolateErr error

	isolated    bool
	scrolled    []string
	screenshots []*Clip

	input *fakeInput

	// readyLeft counts buffered DOM-ready signals, mirroring how the
	// CDP page's listener retains the signal of a load Navigate already
	// waited out. pendingURL is a navigation in flight after a submit:
	// it only completes when WaitReady blocks past the buffered
	// signals.
	readyLeft  int
	pendingURL string
	drains     int

	navigations []string
	closed      bool
}

func newFakePage(start string) *fakePage {
	p := &fakePage{
		redirects:  map[string]string{},
		navErr:     map[string]error{},
		resolvable: map[string]bool{},
	}
	p.input = &fakeInput{page: p}
	p.currentURL = start
	return p
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navigations = append(p.navigations, url)
	if err := p.navErr[url]; err != nil {
		return err
	}
	if to, ok := p.redirects[url]; ok {
		p.currentURL = to
		delete(p.redirects, url)
	} else {
		p.currentURL = url
	}
	p.readyLeft++
	return nil
}

func (p *fakePage) WaitReady(ctx context.Context) error {
	if p.readyLeft > 0 {
		p.readyLeft--
		return nil
	}
	if p.pendingURL != "" {
		p.currentURL = p.pendingURL
		p.pendingURL = ""
		p.passwordInput = false
		return nil
	}
	return ErrReadyTimeout
}

func (p *fakePage) ExpectNavigation() {
	p.drains++
	p.readyLeft = 0
}

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	return p.currentURL, nil
}

func (p *fakePage) Eval(ctx context.Context, js string, out any) error {
	switch {
	case js == detectLoginJS:
		*out.(*bool) = p.passwordInput
	case strings.Contains(js, "try { return !!document.querySelector"):
		found := false
		for sel, ok := range p.resolvable {
			if ok && strings.Contains(js, sel) {
				found = true
			}
		}
		*out.(*bool) = found
	case strings.Contains(js, "var hits = 0"):
		*out.(*int) = p.probeHits
	case strings.Contains(js, "var matched = []"):
		if p.isolateErr != nil {
			return p.isolateErr
		}
		p.isolated = true
		*out.(*float64) = 240
	case strings.Contains(js, "window.scrollTo"):
		p.scrolled = append(p.scrolled, js)
	default:
		return errors.New("unexpected script: " + js)
	}
	return nil
}

func (p *fakePage) Screenshot(ctx context.Context, clip *Clip) ([]byte, error) {
	p.screenshots = append(p.screenshots, clip)
	return []byte("png"), nil
}

func (p *fakePage) Input() InputDriver { return p.input }
func (p *fakePage) Close()             { p.closed = true }

// fakeInput assigns values directly instead of simulating keystrokes,
// and simulates the post-submit navigation.
type fakeInput struct {
	page *fakePage

	typed   []string // "selector=value" in call order
	clicked []string
	entered []string

	// afterLogin is where a submit lands the page.
	afterLogin string
}

func (in *fakeInput) TypeInto(ctx context.Context, sel, text string) error {
	in.typed = append(in.typed, sel+"="+text)
	return nil
}

func (in *fakeInput) Click(ctx context.Context, sel string) error {
	in.clicked = append(in.clicked, sel)
	in.submit()
	return nil
}

func (in *fakeInput) PressEnter(ctx context.Context, sel string) error {
	in.entered = append(in.entered, sel)
	in.submit()
	return nil
}

func (in *fakeInput) submit() {
	if in.afterLogin != "" {
		in.page.pendingURL = in.afterLogin
	}
}

func testController(p *fakePage) *Controller {
	factory := func(ctx context.Context, partition string) (Page, error) {
		return p, nil
	}
	tun := DefaultTunables()
	tun.SettleDelay = time.Millisecond
	return NewController(factory, logger.New("error", false), tun)
}

func cssRequest(selectors ...string) *domain.CaptureRequest {
	return &domain.CaptureRequest{
		WidgetID:  "w1",
		URL:       "https://example.com/dash",
		Partition: "p1",
		Selection: &domain.Selection{
			SourceURL: "https://example.com/dash",
			Kind:      domain.SelectionCSS,
			CSS:       &domain.CSSSelection{Selectors: selectors},
		},
	}
}

func TestCaptureCSSSelectionResolves(t *testing.T) {
	page := newFakePage("")
	page.probeHits = 1
	c := testController(page)

	res := c.Capture(context.Background(), cssRequest("#panel"))

	if !res.OK() {
		t.Fatalf("capture failed: %s %s", res.ErrKind, res.ErrMessage)
	}
	if !res.Filtered {
		t.Error("Filtered = false, want isolated content")
	}
	if !page.isolated {
		t.Error("isolation script never ran")
	}
	if len(page.screenshots) != 1 || page.screenshots[0] != nil {
		t.Errorf("screenshots = %v, want one unclipped", page.screenshots)
	}
	if !page.closed {
		t.Error("page not closed after pass")
	}
}

func TestCaptureCSSSelectionUnresolvableDegrades(t *testing.T) {
	page := newFakePage("")
	page.probeHits = 0
	c := testController(page)

	res := c.Capture(context.Background(), cssRequest("#gone"))

	if !res.OK() {
		t.Fatalf("capture must complete unfiltered, got error: %s", res.ErrMessage)
	}
	if res.Filtered {
		t.Error("Filtered = true, want unfiltered full page")
	}
	if page.isolated {
		t.Error("isolation must not run when nothing resolves")
	}
}

func TestCaptureIsolationScriptErrorDegrades(t *testing.T) {
	page := newFakePage("")
	page.probeHits = 1
	page.isolateErr = errors.New("Uncaught TypeError")
	c := testController(page)

	res := c.Capture(context.Background(), cssRequest("#panel"))

	if !res.OK() {
		t.Fatalf("script errors must degrade, got: %s", res.ErrMessage)
	}
	if res.Filtered {
		t.Error("Filtered = true after isolation failure")
	}
}

func TestCaptureCropSelection(t *testing.T) {
	page := newFakePage("")
	c := testController(page)

	req := &domain.CaptureRequest{
		WidgetID:  "w1",
		URL:       "https://example.com/dash",
		Partition: "p1",
		Selection: &domain.Selection{
			Kind: domain.SelectionCrop,
			Crop: &domain.CropSelection{
				X: 50, Y: 60, Width: 200, Height: 250,
				ScrollX: 0, ScrollY: 400,
			},
		},
	}

	res := c.Capture(context.Background(), req)
	if !res.OK() {
		t.Fatalf("capture failed: %s", res.ErrMessage)
	}
	if len(page.scrolled) == 0 {
		t.Error("page was not scrolled to the stored offsets")
	}
	if len(page.screenshots) != 1 {
		t.Fatalf("got %d screenshots, want 1", len(page.screenshots))
	}
	clip := page.screenshots[0]
	if clip == nil {
		t.Fatal("crop capture must clip the snapshot")
	}
	if clip.X != 50 || clip.Y != 460 || clip.Width != 200 || clip.Height != 250 {
		t.Errorf("clip = %+v, want document rect {50 460 200 250}", *clip)
	}
}

func TestCaptureAutoLoginFlow(t *testing.T) {
	page := newFakePage("")
	// Loading the dashboard bounces to the login page.
	page.redirects["https://example.com/dash"] = "https://example.com/login"
	page.passwordInput = true
	page.resolvable["#user"] = true
	page.resolvable["#pass"] = true
	page.resolvable["#go"] = true
	page.probeHits = 1
	page.input.afterLogin = "https://example.com/dash"
	c := testController(page)

	req := cssRequest("#panel")
	req.Credentials = &domain.Credentials{
		Username: "alice",
		Password: "s3cret",
		Fields: domain.LoginFieldSelection{
			UsernameSelector: "#user",
			PasswordSelector: "#pass",
			SubmitSelector:   "#go",
		},
	}

	res := c.Capture(context.Background(), req)
	if !res.OK() {
		t.Fatalf("capture failed: %s %s", res.ErrKind, res.ErrMessage)
	}

	wantTyped := []string{"#user=alice", "#pass=s3cret"}
	if len(page.input.typed) != 2 || page.input.typed[0] != wantTyped[0] || page.input.typed[1] != wantTyped[1] {
		t.Errorf("typed = %v, want %v (username before password)", page.input.typed, wantTyped)
	}
	if len(page.input.clicked) != 1 || page.input.clicked[0] != "#go" {
		t.Errorf("clicked = %v, want [#go]", page.input.clicked)
	}
	if !res.Filtered {
		t.Error("selection not applied after login")
	}
}

func TestCaptureAutoLoginEnterFallback(t *testing.T) {
	page := newFakePage("")
	page.redirects["https://example.com/dash"] = "https://example.com/login"
	page.passwordInput = true
	page.resolvable["#user"] = true
	page.resolvable["#pass"] = true
	page.probeHits = 1
	page.input.afterLogin = "https://example.com/dash"
	c := testController(page)

	req := cssRequest("#panel")
	req.Credentials = &domain.Credentials{
		Username: "alice",
		Password: "s3cret",
		Fields: domain.LoginFieldSelection{
			UsernameSelector: "#user",
			PasswordSelector: "#pass",
			// No submit selector recorded.
		},
	}

	res := c.Capture(context.Background(), req)
	if !res.OK() {
		t.Fatalf("capture failed: %s", res.ErrMessage)
	}
	if len(page.input.clicked) != 0 {
		t.Errorf("clicked = %v, want none", page.input.clicked)
	}
	if len(page.input.entered) != 1 || page.input.entered[0] != "#pass" {
		t.Errorf("entered = %v, want enter on #pass", page.input.entered)
	}
}

// The login page's own load leaves a buffered ready signal behind. A
// submit must not let the resumed pass consume that stale signal and
// snapshot the login form before the post-login navigation lands.
func TestCaptureLoginSubmitOutwaitsBufferedReady(t *testing.T) {
	page := newFakePage("")
	page.redirects["https://example.com/dash"] = "https://example.com/login"
	page.passwordInput = true
	page.resolvable["#user"] = true
	page.resolvable["#pass"] = true
	page.resolvable["#go"] = true
	page.probeHits = 1
	page.input.afterLogin = "https://example.com/dash"
	c := testController(page)

	req := cssRequest("#panel")
	req.Credentials = &domain.Credentials{
		Username: "alice",
		Password: "s3cret",
		Fields: domain.LoginFieldSelection{
			UsernameSelector: "#user",
			PasswordSelector: "#pass",
			SubmitSelector:   "#go",
		},
	}

	res := c.Capture(context.Background(), req)
	if !res.OK() {
		t.Fatalf("capture failed: %s %s", res.ErrKind, res.ErrMessage)
	}
	if page.drains == 0 {
		t.Error("buffered ready signal was not discarded before the submit")
	}
	if page.pendingURL != "" {
		t.Error("pass finished while the post-login navigation was still in flight")
	}
	if page.currentURL != "https://example.com/dash" {
		t.Errorf("snapshot taken on %q, want the post-login page", page.currentURL)
	}
}

func TestCaptureAutoLoginFieldMissingIsSoft(t *testing.T) {
	page := newFakePage("")
	page.redirects["https://example.com/dash"] = "https://example.com/login"
	page.passwordInput = true
	// Neither stored selector resolves on the redesigned form.
	page.probeHits = 0
	c := testController(page)

	req := cssRequest("#panel")
	req.Credentials = &domain.Credentials{
		Username: "alice",
		Password: "s3cret",
		Fields: domain.LoginFieldSelection{
			UsernameSelector: "#old-user",
			PasswordSelector: "#old-pass",
		},
	}

	res := c.Capture(context.Background(), req)
	if !res.OK() {
		t.Fatalf("missing login fields must degrade, got: %s", res.ErrMessage)
	}
	if len(page.input.typed) != 0 {
		t.Errorf("typed = %v, want nothing typed", page.input.typed)
	}
	if res.Filtered {
		t.Error("selection should not resolve on the login page")
	}
}

func TestCaptureLoginURLRestriction(t *testing.T) {
	page := newFakePage("")
	page.redirects["https://example.com/dash"] = "https://sso.example.com/signin"
	page.passwordInput = true
	page.resolvable["#user"] = true
	page.resolvable["#pass"] = true
	c := testController(page)

	req := cssRequest("#panel")
	req.Credentials = &domain.Credentials{
		Username: "alice",
		Password: "s3cret",
		LoginURL: "other-idp.example.com",
		Fields: domain.LoginFieldSelection{
			UsernameSelector: "#user",
			PasswordSelector: "#pass",
		},
	}

	_ = c.Capture(context.Background(), req)
	if len(page.input.typed) != 0 {
		t.Errorf("typed on a non-matching login URL: %v", page.input.typed)
	}
}

func TestCaptureNavigationFailure(t *testing.T) {
	page := newFakePage("")
	page.navErr["https://example.com/dash"] = errors.New("net::ERR_NAME_NOT_RESOLVED")
	c := testController(page)

	res := c.Capture(context.Background(), cssRequest("#panel"))
	if res.OK() {
		t.Fatal("expected a navigation error result")
	}
	if res.ErrKind != domain.CaptureErrNavigation {
		t.Errorf("ErrKind = %s, want navigation_failed", res.ErrKind)
	}
	if !strings.Contains(res.ErrMessage, "ERR_NAME_NOT_RESOLVED") {
		t.Errorf("ErrMessage = %q, want the navigation description", res.ErrMessage)
	}
}

func TestCaptureAbortedNavigationIgnored(t *testing.T) {
	page := newFakePage("")
	page.navErr["https://example.com/dash"] = errors.New("page load error net::ERR_ABORTED")
	page.currentURL = "https://example.com/dash"
	page.probeHits = 1
	c := testController(page)

	res := c.Capture(context.Background(), cssRequest("#panel"))
	if !res.OK() {
		t.Fatalf("aborted navigation must not fail the pass: %s", res.ErrMessage)
	}
}

func TestCaptureRenavigatesOnPathDrift(t *testing.T) {
	page := newFakePage("")
	// First load lands on the site root instead of the configured path.
	page.redirects["https://example.com/dash"] = "https://example.com/"
	page.probeHits = 1
	c := testController(page)

	res := c.Capture(context.Background(), cssRequest("#panel"))
	if !res.OK() {
		t.Fatalf("capture failed: %s", res.ErrMessage)
	}
	if len(page.navigations) != 2 {
		t.Fatalf("navigations = %v, want one corrective renavigation", page.navigations)
	}
	if !res.Filtered {
		t.Error("selection not applied after the corrective navigation")
	}
}

func TestPathMismatch(t *testing.T) {
	tests := []struct {
		configured, current string
		want                bool
	}{
		{"https://a.com/dash", "https://a.com/dash", false},
		{"https://a.com/dash", "https://a.com/", true},
		{"https://a.com/", "https://a.com/anything", false},
		{"https://a.com", "https://a.com/anything", false},
		{"https://a.com/dash/", "https://a.com/dash", false},
	}
	for _, tt := range tests {
		if got := pathMismatch(tt.configured, tt.current); got != tt.want {
			t.Errorf("pathMismatch(%q, %q) = %v, want %v", tt.configured, tt.current, got, tt.want)
		}
	}
}

func TestLoginURLMatches(t *testing.T) {
	tests := []struct {
		loginURL, current string
		want              bool
	}{
		{"", "https://anything", true},
		{"sso.example.com", "https://SSO.Example.com/signin", true},
		{"sso.example.com", "https://idp.other.com/signin", false},
	}
	for _, tt := range tests {
		if got := loginURLMatches(tt.loginURL, tt.current); got != tt.want {
			t.Errorf("loginURLMatches(%q, %q) = %v, want %v", tt.loginURL, tt.current, got, tt.want)
		}
	}
}
