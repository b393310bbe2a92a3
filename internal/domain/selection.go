package domain

import (
	"fmt"

	"github.com/peekdeck/peekdeck/internal/selector"
)

// SelectionKind discriminates the two ways a widget can describe the
// region of a page it embeds.
type SelectionKind string

const (
	// SelectionCSS locates one or more elements by CSS selector.
	SelectionCSS SelectionKind = "css"
	// SelectionCrop isolates a viewport-relative pixel rectangle.
	SelectionCrop SelectionKind = "crop"
)

// MinCropSize is the usability floor for crop rectangles, in pixels.
// Drags producing a smaller rectangle are rejected and the user is asked
// to retry. This is a UX floor, not a security boundary.
const MinCropSize = 50

// Selection is the result of one picking session: either a set of CSS
// selectors or a pixel crop rectangle, made against SourceURL.
//
// A Selection is immutable once persisted on a widget; a re-pick fully
// replaces it.
type Selection struct {
	// SourceURL is the page the selection was made on.
	SourceURL string `json:"sourceUrl"`

	// Kind selects which of the two payloads below is meaningful.
	Kind SelectionKind `json:"kind"`

	// CSS is set when Kind == SelectionCSS.
	CSS *CSSSelection `json:"css,omitempty"`

	// Crop is set when Kind == SelectionCrop.
	Crop *CropSelection `json:"crop,omitempty"`
}

// CSSSelection holds one selector per picked element, in pick order.
// The order is used to label and index elements on the dashboard.
type CSSSelection struct {
	Selectors []string `json:"selectors"`
}

// CropSelection is a viewport-relative rectangle plus the scroll offsets
// active when it was picked, so the same rectangle can be reproduced
// after a reload.
type CropSelection struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	ScrollX float64 `json:"scrollX"`
	ScrollY float64 `json:"scrollY"`
}

// Validate checks the structural invariants of a selection.
func (s *Selection) Validate() error {
	switch s.Kind {
	case SelectionCSS:
		if s.CSS == nil || len(s.CSS.Selectors) == 0 {
			return fmt.Errorf("css selection requires at least one selector")
		}
		for i, sel := range s.CSS.Selectors {
			if sel == "" {
				return fmt.Errorf("css selection has empty selector at index %d", i)
			}
			if err := selector.Valid(sel); err != nil {
				return fmt.Errorf("css selection at index %d: %w", i, err)
			}
		}
	case SelectionCrop:
		if s.Crop == nil {
			return fmt.Errorf("crop selection requires a rectangle")
		}
		if s.Crop.Width < MinCropSize || s.Crop.Height < MinCropSize {
			return fmt.Errorf("crop rectangle %.0fx%.0f below %dpx minimum",
				s.Crop.Width, s.Crop.Height, MinCropSize)
		}
	default:
		return fmt.Errorf("unknown selection kind %q", s.Kind)
	}
	return nil
}

// LoginFieldSelection is the result of one credential-field picking
// session. UsernameSelector and PasswordSelector are required for the
// session to finish; SubmitSelector may be empty (skipped), in which
// case submission falls back to Enter-key semantics at login time.
type LoginFieldSelection struct {
	UsernameSelector string `json:"usernameSelector"`
	PasswordSelector string `json:"passwordSelector"`
	SubmitSelector   string `json:"submitSelector"`
}

// Complete reports whether the selection carries the minimum fields
// required to attempt an auto-login.
func (l LoginFieldSelection) Complete() bool {
	return l.UsernameSelector != "" && l.PasswordSelector != ""
}

// Validate checks that every non-empty field selector parses.
func (l LoginFieldSelection) Validate() error {
	for name, sel := range map[string]string{
		"username": l.UsernameSelector,
		"password": l.PasswordSelector,
		"submit":   l.SubmitSelector,
	} {
		if sel == "" {
			continue
		}
		if err := selector.Valid(sel); err != nil {
			return fmt.Errorf("%s field: %w", name, err)
		}
	}
	return nil
}
