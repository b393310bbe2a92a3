package redis

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := errNotFound("widget", "w1")
	want := "not_found: widget not found: w1"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := errBackend(cause, "failed to save widget %s", "w1")

	if !errors.Is(err, cause) {
		t.Error("errors.Is() should reach the wrapped cause")
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not found error", errNotFound("widget", "w1"), true},
		{"wrapped not found", fmt.Errorf("lookup: %w", errNotFound("widget", "w1")), true},
		{"backend error", errBackend(errors.New("down"), "failed"), false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}
