package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/logger"
	"github.com/peekdeck/peekdeck/internal/sources/seedfile"
)

// fakeRegistry records lifecycle writes.
type fakeRegistry struct {
	widgets map[string]*domain.Widget
	created []string
	updated []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{widgets: make(map[string]*domain.Widget)}
}

func (r *fakeRegistry) ListWidgets(ctx context.Context) ([]*domain.Widget, error) {
	out := make([]*domain.Widget, 0, len(r.widgets))
	for _, w := range r.widgets {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRegistry) CreateWidget(ctx context.Context, w *domain.Widget) (*domain.Widget, error) {
	r.created = append(r.created, w.ID)
	cp := *w
	r.widgets[w.ID] = &cp
	return w, nil
}

func (r *fakeRegistry) UpdateWidget(ctx context.Context, w *domain.Widget) (*domain.Widget, error) {
	r.updated = append(r.updated, w.ID)
	cp := *w
	r.widgets[w.ID] = &cp
	return w, nil
}

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "widgets.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create seed file: %v", err)
	}
	return path
}

func TestSeedReloadCreatesNewWidgets(t *testing.T) {
	path := writeSeedFile(t, `---
widgets:
  - name: Grafana CPU
    url: https://grafana.example.com/d/abc
`)
	registry := newFakeRegistry()
	sr := NewSeedReloader(path, registry, logger.New("error", false), 0, nil)

	if err := sr.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if len(registry.created) != 1 {
		t.Fatalf("created = %v, want one widget", registry.created)
	}
	if len(registry.updated) != 0 {
		t.Errorf("updated = %v, want none on first load", registry.updated)
	}
}

func TestSeedReloadUpdatesExistingWidgets(t *testing.T) {
	path := writeSeedFile(t, `---
widgets:
  - name: Grafana CPU
    url: https://grafana.example.com/d/abc
    refreshInterval: 600
`)
	registry := newFakeRegistry()
	id := seedfile.SeedID("Grafana CPU", "https://grafana.example.com/d/abc")
	registry.widgets[id] = &domain.Widget{
		ID:                id,
		Name:              "Grafana CPU",
		URL:               "https://grafana.example.com/d/abc",
		RefreshInterval:   300,
		Sources:           []string{"seedfile"},
		CredentialGroupID: "g1",
		HasCredentials:    true,
	}

	sr := NewSeedReloader(path, registry, logger.New("error", false), 0, nil)
	if err := sr.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if len(registry.created) != 0 {
		t.Errorf("created = %v, want none", registry.created)
	}
	if len(registry.updated) != 1 {
		t.Fatalf("updated = %v, want the existing widget", registry.updated)
	}

	w := registry.widgets[id]
	if w.RefreshInterval != 600 {
		t.Errorf("RefreshInterval = %v, want the seeded 600", w.RefreshInterval)
	}
	// Credential wiring is runtime state the seed file must not clobber.
	if w.CredentialGroupID != "g1" || !w.HasCredentials {
		t.Errorf("credential fields lost on reload: %+v", w)
	}
}

func TestSeedReloadDisablesRemovedWidgets(t *testing.T) {
	path := writeSeedFile(t, `---
widgets:
  - name: Keeper
    url: https://keeper.example.com
`)
	registry := newFakeRegistry()
	goneID := seedfile.SeedID("Gone", "https://gone.example.com")
	registry.widgets[goneID] = &domain.Widget{
		ID:      goneID,
		Name:    "Gone",
		URL:     "https://gone.example.com",
		Sources: []string{"seedfile"},
	}
	apiID := "api-widget"
	registry.widgets[apiID] = &domain.Widget{
		ID:      apiID,
		Name:    "Manual",
		URL:     "https://manual.example.com",
		Sources: []string{"api"},
	}

	sr := NewSeedReloader(path, registry, logger.New("error", false), 0, nil)
	if err := sr.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if !registry.widgets[goneID].Disabled {
		t.Error("removed seeded widget not disabled")
	}
	if registry.widgets[apiID].Disabled {
		t.Error("api-sourced widget must never be touched by seed reloads")
	}
}

func TestSeedReloadMissingFile(t *testing.T) {
	sr := NewSeedReloader("/nonexistent/widgets.yaml", newFakeRegistry(), logger.New("error", false), 0, nil)
	if err := sr.Reload(context.Background()); err == nil {
		t.Error("Reload() with missing file should return error")
	}
}
