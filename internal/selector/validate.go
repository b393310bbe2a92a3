package selector

import (
	"fmt"

	"github.com/andybalholm/cascadia"
)

// Valid reports whether sel parses as a CSS selector group. Selectors
// are stored once and replayed on every capture pass, so unparseable
// ones are rejected at the boundary instead of failing every pass.
func Valid(sel string) error {
	if _, err := cascadia.ParseGroup(sel); err != nil {
		return fmt.Errorf("invalid css selector %q: %w", sel, err)
	}
	return nil
}
