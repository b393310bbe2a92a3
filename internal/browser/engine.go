// Package browser owns the headless Chrome processes behind captures
// and picker sessions.
//
// Isolation model: one Chrome instance per partition key, each with its
// own user-data directory. Contexts in the same partition share cookies,
// storage and login state; different partitions share nothing. This is
// exactly what lets several widgets reuse one login session by pointing
// at the same partition.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"

	"github.com/peekdeck/peekdeck/internal/logger"
)

// Options configures the engine.
type Options struct {
	// ExecPath is the Chrome/Chromium binary. Empty = chromedp's
	// default lookup.
	ExecPath string
	// Headless disables the visible browser window. Picker sessions
	// force a headful window regardless.
	Headless bool
	// DataDir is the root under which per-partition profile
	// directories are created.
	DataDir string
	// WindowWidth/WindowHeight size the emulated viewport.
	WindowWidth  int
	WindowHeight int
}

type partition struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	headless      bool
}

// Engine hands out chromedp contexts keyed by partition.
type Engine struct {
	opts   Options
	logger logger.Logger

	mu         sync.Mutex
	partitions map[string]*partition
	closed     bool
}

// New creates an engine. Chrome processes are started lazily, one per
// partition, on first use.
func New(opts Options, log logger.Logger) *Engine {
	if opts.WindowWidth <= 0 {
		opts.WindowWidth = 1280
	}
	if opts.WindowHeight <= 0 {
		opts.WindowHeight = 900
	}
	return &Engine{
		opts:       opts,
		logger:     log,
		partitions: make(map[string]*partition),
	}
}

// Page returns a fresh tab context inside the partition's browser. The
// returned cancel closes only the tab; the browser stays warm so the
// partition's session survives between captures.
func (e *Engine) Page(ctx context.Context, part string) (context.Context, context.CancelFunc, error) {
	return e.page(ctx, part, e.opts.Headless)
}

// HeadfulPage is like Page but forces a visible window; picker sessions
// need the user to see and interact with the target page.
func (e *Engine) HeadfulPage(ctx context.Context, part string) (context.Context, context.CancelFunc, error) {
	return e.page(ctx, part, false)
}

func (e *Engine) page(ctx context.Context, part string, headless bool) (context.Context, context.CancelFunc, error) {
	p, err := e.partition(ctx, part, headless)
	if err != nil {
		return nil, nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(p.browserCtx)
	return tabCtx, tabCancel, nil
}

func (e *Engine) partition(ctx context.Context, part string, headless bool) (*partition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, fmt.Errorf("browser engine closed")
	}

	if p, ok := e.partitions[part]; ok {
		if p.headless == headless {
			return p, nil
		}
		// Headless/headful mismatch: restart the partition's browser
		// in the requested mode. The profile directory persists, so
		// the session does too.
		p.browserCancel()
		p.allocCancel()
		delete(e.partitions, part)
	}

	dir := e.PartitionDir(part)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create partition dir: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(dir),
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-component-update", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(e.opts.WindowWidth, e.opts.WindowHeight),
	)
	if e.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(e.opts.ExecPath))
	}

	// The allocator hangs off the engine's lifetime, not the caller's
	// request context: the browser outlives individual captures.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Materialize the browser process now so failures surface here
	// rather than in the middle of a capture pass.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser for partition: %w", err)
	}

	p := &partition{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		headless:      headless,
	}
	e.partitions[part] = p

	e.logger.Info("browser partition started",
		logger.String("partition", part),
		logger.String("dir", dir))

	return p, nil
}

// PartitionDir returns the profile directory for a partition key.
func (e *Engine) PartitionDir(part string) string {
	return filepath.Join(e.opts.DataDir, "partitions", SanitizePartition(part))
}

// DropPartition shuts the partition's browser down and deletes its
// profile directory, destroying any stored session state.
func (e *Engine) DropPartition(part string) error {
	e.mu.Lock()
	if p, ok := e.partitions[part]; ok {
		p.browserCancel()
		p.allocCancel()
		delete(e.partitions, part)
	}
	e.mu.Unlock()

	dir := e.PartitionDir(part)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove partition dir: %w", err)
	}
	e.logger.Info("browser partition dropped", logger.String("partition", part))
	return nil
}

// ActivePartitions lists partitions with a running browser.
func (e *Engine) ActivePartitions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.partitions))
	for part := range e.partitions {
		out = append(out, part)
	}
	return out
}

// StoredPartitions lists partition keys that have a profile directory
// on disk, running or not.
func (e *Engine) StoredPartitions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(e.opts.DataDir, "partitions"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read partitions dir: %w", err)
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	return out, nil
}

// Close shuts down every partition's browser.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for part, p := range e.partitions {
		p.browserCancel()
		p.allocCancel()
		delete(e.partitions, part)
	}
	e.closed = true
}

// SanitizePartition maps an opaque partition key onto a safe directory
// name. Keys are UUIDs in practice, but seed files may use free text.
func SanitizePartition(part string) string {
	var b strings.Builder
	for _, r := range part {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
