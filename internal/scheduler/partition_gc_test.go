package scheduler

import (
	"context"
	"testing"

	"github.com/peekdeck/peekdeck/internal/browser"
	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/logger"
)

type fakeEngine struct {
	stored  []string
	dropped []string
	failOn  string
}

func (e *fakeEngine) StoredPartitions() ([]string, error) {
	return e.stored, nil
}

func (e *fakeEngine) DropPartition(part string) error {
	if part == e.failOn {
		return context.DeadlineExceeded
	}
	e.dropped = append(e.dropped, part)
	return nil
}

type fakeLister struct {
	widgets []*domain.Widget
	groups  []*domain.CredentialGroup
}

func (l *fakeLister) ListWidgets(ctx context.Context) ([]*domain.Widget, error) {
	return l.widgets, nil
}

func (l *fakeLister) ListGroups(ctx context.Context) ([]*domain.CredentialGroup, error) {
	return l.groups, nil
}

func TestPartitionGCCollect(t *testing.T) {
	engine := &fakeEngine{
		stored: []string{"widget-part", "group-part", "orphan-1", "orphan-2"},
	}
	lister := &fakeLister{
		widgets: []*domain.Widget{{ID: "w1", Partition: "widget-part"}},
		groups:  []*domain.CredentialGroup{{ID: "g1", Partition: "group-part"}},
	}

	gc := NewPartitionGC(engine, lister, logger.New("error", false), 0)
	if err := gc.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	if len(engine.dropped) != 2 {
		t.Fatalf("dropped = %v, want the two orphans", engine.dropped)
	}
	for _, part := range engine.dropped {
		if part == "widget-part" || part == "group-part" {
			t.Errorf("referenced partition %q was dropped", part)
		}
	}
}

func TestPartitionGCSanitizesReferences(t *testing.T) {
	// Free-text partition keys land on disk under sanitized names;
	// the comparison must happen in directory space.
	raw := "team space/1"
	engine := &fakeEngine{stored: []string{browser.SanitizePartition(raw)}}
	lister := &fakeLister{
		widgets: []*domain.Widget{{ID: "w1", Partition: raw}},
	}

	gc := NewPartitionGC(engine, lister, logger.New("error", false), 0)
	if err := gc.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(engine.dropped) != 0 {
		t.Errorf("dropped = %v, want none", engine.dropped)
	}
}

func TestPartitionGCDropFailureContinues(t *testing.T) {
	engine := &fakeEngine{
		stored: []string{"orphan-1", "orphan-2"},
		failOn: "orphan-1",
	}
	gc := NewPartitionGC(engine, &fakeLister{}, logger.New("error", false), 0)

	if err := gc.Collect(context.Background()); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if len(engine.dropped) != 1 || engine.dropped[0] != "orphan-2" {
		t.Errorf("dropped = %v, want the collector to continue past failures", engine.dropped)
	}
}

func TestPartitionGCNothingStored(t *testing.T) {
	gc := NewPartitionGC(&fakeEngine{}, &fakeLister{}, logger.New("error", false), 0)
	if err := gc.Collect(context.Background()); err != nil {
		t.Errorf("Collect() with no partitions error = %v", err)
	}
}
