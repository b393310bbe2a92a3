package picker

import (
	"fmt"
	"strings"

	"github.com/peekdeck/peekdeck/internal/domain"
)

// Step is the credential picker's position in its three-field walk.
type Step int

const (
	// StepUsername captures the username field.
	StepUsername Step = iota
	// StepPassword captures the password field.
	StepPassword
	// StepSubmit captures the submit control (optional).
	StepSubmit
	// StepClosed is terminal.
	StepClosed
)

func (s Step) String() string {
	switch s {
	case StepUsername:
		return "username"
	case StepPassword:
		return "password"
	case StepSubmit:
		return "submit"
	case StepClosed:
		return "closed"
	}
	return "unknown"
}

// ErrIncomplete is returned by Done before both the username and
// password selectors are recorded. The submit selector is optional.
var ErrIncomplete = fmt.Errorf("username and password fields are required")

// ErrIneligibleElement is returned when a click lands on an element the
// current step cannot use (e.g. a div during the username step).
var ErrIneligibleElement = fmt.Errorf("element not usable for this step")

// CredentialSession drives one credential-field picking run:
// username, then password, then submit, then Done.
type CredentialSession struct {
	sourceURL string
	renderer  Renderer

	step   Step
	fields domain.LoginFieldSelection
}

// NewCredentialSession creates a three-step field picking session.
func NewCredentialSession(sourceURL string, r Renderer) *CredentialSession {
	if r == nil {
		r = NullRenderer{}
	}
	return &CredentialSession{
		sourceURL: sourceURL,
		renderer:  r,
		step:      StepUsername,
	}
}

// Step returns the current step.
func (s *CredentialSession) Step() Step { return s.step }

// Fields returns the selection recorded so far.
func (s *CredentialSession) Fields() domain.LoginFieldSelection { return s.fields }

// CanFinish reports whether Done would succeed: both the username and
// password selectors recorded. Submit stays optional.
func (s *CredentialSession) CanFinish() bool {
	return s.step != StepClosed && s.fields.Complete()
}

// Eligible reports whether el is a plausible target for the current
// step. Hover highlighting is restricted to eligible elements.
func (s *CredentialSession) Eligible(el ElementInfo) bool {
	tag := strings.ToLower(el.Tag)
	typ := strings.ToLower(el.InputType)

	switch s.step {
	case StepUsername, StepPassword:
		if tag == "textarea" {
			return true
		}
		if tag != "input" {
			return false
		}
		switch typ {
		case "", "text", "password", "email", "tel":
			return true
		}
		return false
	case StepSubmit:
		switch tag {
		case "button", "input", "a":
			return true
		}
		return el.ButtonAncestor != nil
	}
	return false
}

// Hover highlights the element when it is eligible for the current step.
func (s *CredentialSession) Hover(el ElementInfo) {
	if s.step == StepClosed || !s.Eligible(el) {
		s.renderer.ClearHighlight()
		return
	}
	s.renderer.Highlight(el)
}

// ClickElement records the clicked element's selector for the current
// step and advances. A submit click landing inside a <button> resolves
// to that ancestor rather than the exact click target.
func (s *CredentialSession) ClickElement(el ElementInfo) error {
	if s.step == StepClosed {
		return ErrSessionClosed
	}
	if !s.Eligible(el) {
		return ErrIneligibleElement
	}

	resolved := el
	if s.step == StepSubmit && strings.ToLower(el.Tag) != "button" && el.ButtonAncestor != nil {
		resolved = *el.ButtonAncestor
	}

	switch s.step {
	case StepUsername:
		s.fields.UsernameSelector = resolved.Selector
	case StepPassword:
		s.fields.PasswordSelector = resolved.Selector
	case StepSubmit:
		s.fields.SubmitSelector = resolved.Selector
	}

	s.renderer.MarkField(resolved)
	s.advance()
	return nil
}

// Skip advances to the next step without recording a selector, leaving
// the current step's field empty.
func (s *CredentialSession) Skip() error {
	if s.step == StepClosed {
		return ErrSessionClosed
	}
	s.advance()
	return nil
}

// Done emits the LoginFieldSelection and closes the session. It fails
// while either required field is missing.
func (s *CredentialSession) Done() (domain.LoginFieldSelection, error) {
	if s.step == StepClosed {
		return domain.LoginFieldSelection{}, ErrSessionClosed
	}
	if !s.fields.Complete() {
		return domain.LoginFieldSelection{}, ErrIncomplete
	}
	fields := s.fields
	s.close()
	return fields, nil
}

// Cancel aborts the session with no emission.
func (s *CredentialSession) Cancel() {
	if s.step == StepClosed {
		return
	}
	s.close()
}

func (s *CredentialSession) advance() {
	switch s.step {
	case StepUsername:
		s.step = StepPassword
		s.renderer.Prompt("Click the password field")
	case StepPassword:
		s.step = StepSubmit
		s.renderer.Prompt("Click the submit button (or skip)")
	case StepSubmit:
		// Past the last step the session idles until Done or Cancel;
		// further clicks keep overwriting the submit selector.
		s.renderer.Prompt("Press Done to save")
	}
}

func (s *CredentialSession) close() {
	s.renderer.ClearHighlight()
	s.renderer.Teardown()
	s.step = StepClosed
}
