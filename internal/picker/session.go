// Package picker implements the interactive element/region picking
// sessions that run against a target page.
//
// The state machines here are pure: they know nothing about a real DOM.
// Everything visual is projected through the Renderer interface, and
// element identity arrives as ElementInfo values reported by the overlay
// script. One session instance owns one picking run from start to
// Finish/Cancel; sessions are never shared across invocations.
package picker

import (
	"fmt"

	"github.com/peekdeck/peekdeck/internal/domain"
)

// State is the region picker's mode.
type State int

const (
	// StateIdle is the initial state, before a mode is chosen.
	StateIdle State = iota
	// StateCSS is element multi-selection mode.
	StateCSS
	// StateCrop is pixel-rectangle drag mode.
	StateCrop
	// StateClosed is terminal (finished or cancelled).
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCSS:
		return "css"
	case StateCrop:
		return "crop"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ElementInfo describes a page element as reported by the overlay
// script. Token is an opaque per-session handle; Selector was generated
// in-page by the selector algorithm's JavaScript mirror.
type ElementInfo struct {
	Token     string
	Tag       string
	InputType string
	Selector  string

	// ButtonAncestor is set when the element sits inside a <button>;
	// the credential picker resolves submit clicks to the ancestor.
	ButtonAncestor *ElementInfo
}

// Point is a viewport coordinate in pixels.
type Point struct {
	X, Y float64
}

// Rect is a viewport-relative rectangle in pixels.
type Rect struct {
	X, Y, Width, Height float64
}

// ErrSelectionTooSmall is returned when a crop drag lands under the
// 50px floor. The session stays in crop mode so the user can retry.
var ErrSelectionTooSmall = fmt.Errorf("selection smaller than %dpx minimum", domain.MinCropSize)

// ErrNothingSelected is returned by Finish when no elements are picked
// and no crop rectangle was committed.
var ErrNothingSelected = fmt.Errorf("nothing selected")

// ErrSessionClosed is returned by any event sent to a closed session.
var ErrSessionClosed = fmt.Errorf("picker session closed")

// RegionSession drives one region-picking run: CSS element
// multi-selection or pixel crop, ending in exactly one Selection
// emission (or none, on cancel).
type RegionSession struct {
	sourceURL string
	renderer  Renderer

	state  State
	picked []ElementInfo // selection order preserved

	dragAnchor *Point
	dragRect   *Rect
	committed  *Rect
}

// NewRegionSession creates a session for a page. The renderer projects
// state changes onto the page; use NullRenderer for headless tests.
func NewRegionSession(sourceURL string, r Renderer) *RegionSession {
	if r == nil {
		r = NullRenderer{}
	}
	return &RegionSession{
		sourceURL: sourceURL,
		renderer:  r,
		state:     StateIdle,
	}
}

// State returns the current mode.
func (s *RegionSession) State() State { return s.state }

// Picked returns the picked elements in selection order.
func (s *RegionSession) Picked() []ElementInfo {
	out := make([]ElementInfo, len(s.picked))
	copy(out, s.picked)
	return out
}

// CanFinish reports whether Finish would currently succeed.
func (s *RegionSession) CanFinish() bool {
	switch s.state {
	case StateCSS:
		return len(s.picked) > 0
	case StateCrop:
		return s.committed != nil
	}
	return false
}

// EnterCSSMode switches to element selection. Crop artifacts are torn
// down; an existing multi-selection survives mode hopping.
func (s *RegionSession) EnterCSSMode() error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if s.state == StateCSS {
		return nil
	}
	s.teardownCrop()
	s.state = StateCSS
	s.renderer.SetMode(StateCSS)
	for i, el := range s.picked {
		s.renderer.AddBadge(el, i+1)
	}
	return nil
}

// EnterCropMode switches to rectangle dragging. CSS-mode highlights and
// badges are removed from the page, but the selection set is preserved
// in case the user switches back.
func (s *RegionSession) EnterCropMode() error {
	if s.state == StateClosed {
		return ErrSessionClosed
	}
	if s.state == StateCrop {
		return nil
	}
	s.renderer.ClearHighlight()
	for _, el := range s.picked {
		s.renderer.RemoveBadge(el.Token)
	}
	s.state = StateCrop
	s.renderer.SetMode(StateCrop)
	return nil
}

// Hover highlights the element currently under the cursor. Only
// meaningful in CSS mode; elsewhere it is ignored.
func (s *RegionSession) Hover(el ElementInfo) {
	if s.state != StateCSS {
		return
	}
	s.renderer.Highlight(el)
}

// ToggleElement adds the element to the ordered selection, or removes it
// if already selected. On removal the remaining badges are renumbered
// contiguously from 1, preserving relative order.
func (s *RegionSession) ToggleElement(el ElementInfo) error {
	if s.state != StateCSS {
		return fmt.Errorf("toggle outside css mode (state %s)", s.state)
	}

	for i, p := range s.picked {
		if p.Token == el.Token {
			s.picked = append(s.picked[:i], s.picked[i+1:]...)
			s.renderer.RemoveBadge(el.Token)
			for j, rest := range s.picked {
				s.renderer.RenumberBadge(rest.Token, j+1)
			}
			return nil
		}
	}

	s.picked = append(s.picked, el)
	s.renderer.AddBadge(el, len(s.picked))
	return nil
}

// PointerDown records the drag anchor in crop mode.
func (s *RegionSession) PointerDown(p Point) {
	if s.state != StateCrop {
		return
	}
	s.dragAnchor = &p
	s.dragRect = nil
}

// PointerMove extends the in-progress rectangle. Dragging works in any
// of the four directions: the rectangle is the min/max envelope of the
// anchor and the current point.
func (s *RegionSession) PointerMove(p Point) {
	if s.state != StateCrop || s.dragAnchor == nil {
		return
	}
	r := normalizeRect(*s.dragAnchor, p)
	s.dragRect = &r
	s.renderer.DrawRect(r)
}

// PointerUp finalizes the rectangle. Rectangles under the 50px floor
// are discarded: the user is prompted to retry and the session stays in
// crop mode with nothing committed.
func (s *RegionSession) PointerUp(p Point) error {
	if s.state != StateCrop || s.dragAnchor == nil {
		return nil
	}
	r := normalizeRect(*s.dragAnchor, p)
	s.dragAnchor = nil
	s.dragRect = nil

	if r.Width < domain.MinCropSize || r.Height < domain.MinCropSize {
		s.committed = nil
		s.renderer.ClearRect()
		s.renderer.Prompt(fmt.Sprintf("Selection too small, drag at least %dx%d pixels", domain.MinCropSize, domain.MinCropSize))
		return ErrSelectionTooSmall
	}

	s.committed = &r
	s.renderer.DrawRect(r)
	return nil
}

// Finish emits the Selection for the current mode and closes the
// session. scroll is the page scroll offset at commit time, stored so a
// crop rectangle can be reproduced after reload.
func (s *RegionSession) Finish(scroll Point) (*domain.Selection, error) {
	switch s.state {
	case StateClosed:
		return nil, ErrSessionClosed
	case StateCSS:
		if len(s.picked) == 0 {
			return nil, ErrNothingSelected
		}
		selectors := make([]string, len(s.picked))
		for i, el := range s.picked {
			selectors[i] = el.Selector
		}
		s.close()
		return &domain.Selection{
			SourceURL: s.sourceURL,
			Kind:      domain.SelectionCSS,
			CSS:       &domain.CSSSelection{Selectors: selectors},
		}, nil
	case StateCrop:
		if s.committed == nil {
			return nil, ErrNothingSelected
		}
		r := *s.committed
		s.close()
		return &domain.Selection{
			SourceURL: s.sourceURL,
			Kind:      domain.SelectionCrop,
			Crop: &domain.CropSelection{
				X:       r.X,
				Y:       r.Y,
				Width:   r.Width,
				Height:  r.Height,
				ScrollX: scroll.X,
				ScrollY: scroll.Y,
			},
		}, nil
	}
	return nil, ErrNothingSelected
}

// Cancel tears down all injected UI and closes the session without
// emitting anything. Cancelling is not an error.
func (s *RegionSession) Cancel() {
	if s.state == StateClosed {
		return
	}
	s.close()
}

func (s *RegionSession) close() {
	s.teardownCrop()
	s.renderer.ClearHighlight()
	for _, el := range s.picked {
		s.renderer.RemoveBadge(el.Token)
	}
	s.renderer.Teardown()
	s.state = StateClosed
}

func (s *RegionSession) teardownCrop() {
	s.dragAnchor = nil
	s.dragRect = nil
	s.committed = nil
	s.renderer.ClearRect()
}

func normalizeRect(a, b Point) Rect {
	x0, x1 := a.X, b.X
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	y0, y1 := a.Y, b.Y
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
