package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/logger"
	"github.com/peekdeck/peekdeck/internal/sources/seedfile"
)

// WidgetRegistry is the lifecycle surface the reloader writes through,
// so seeded widgets get timers and initial captures like any other.
type WidgetRegistry interface {
	ListWidgets(ctx context.Context) ([]*domain.Widget, error)
	CreateWidget(ctx context.Context, w *domain.Widget) (*domain.Widget, error)
	UpdateWidget(ctx context.Context, w *domain.Widget) (*domain.Widget, error)
}

// SeedReloader handles periodic reloading of the widgets.yaml seed file
type SeedReloader struct {
	loader        *seedfile.Loader
	mapper        *seedfile.Mapper
	widgets       WidgetRegistry
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewSeedReloader creates a new seed file reloader
func NewSeedReloader(
	seedFile string,
	widgets WidgetRegistry,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *SeedReloader {
	return &SeedReloader{
		loader:        seedfile.NewLoader(seedFile),
		mapper:        seedfile.NewMapper(),
		widgets:       widgets,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start begins the periodic reload process
func (sr *SeedReloader) Start(ctx context.Context) error {
	// Load immediately on start
	if err := sr.Reload(ctx); err != nil {
		return fmt.Errorf("initial seed reload failed: %w", err)
	}

	// Start periodic reload
	ticker := time.NewTicker(sr.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed file",
						logger.Error(err))
				}
			case <-sr.manualTrigger:
				sr.logger.Info("manual seed reload triggered")
				if err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload seed file",
						logger.Error(err))
				}
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (sr *SeedReloader) Stop() {
	close(sr.stopCh)
}

// Reload loads the seed file and reconciles it against stored widgets:
// new entries are created, changed ones updated, removed ones
// soft-disabled. Widgets from other sources are never touched.
func (sr *SeedReloader) Reload(ctx context.Context) error {
	sr.logger.Info("reloading widgets from seed file")

	config, err := sr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load seed file: %w", err)
	}

	seeded, err := sr.mapper.MapWidgets(config)
	if err != nil {
		return fmt.Errorf("failed to map seed widgets: %w", err)
	}

	sr.logger.Info("loaded widgets from seed file",
		logger.Int("count", len(seeded)))

	existing, err := sr.getSeededWidgets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list widgets: %w", err)
	}
	existingByID := make(map[string]*domain.Widget, len(existing))
	for _, w := range existing {
		existingByID[w.ID] = w
	}

	seededIDs := make(map[string]bool, len(seeded))
	for _, w := range seeded {
		seededIDs[w.ID] = true

		if prev, ok := existingByID[w.ID]; ok {
			// Keep runtime-owned fields the seed file does not know.
			w.CredentialGroupID = prev.CredentialGroupID
			w.HasCredentials = prev.HasCredentials
			if _, err := sr.widgets.UpdateWidget(ctx, w); err != nil {
				sr.logger.Warn("failed to update seeded widget",
					logger.String("widget_id", w.ID),
					logger.Error(err))
			}
			continue
		}
		if _, err := sr.widgets.CreateWidget(ctx, w); err != nil {
			sr.logger.Warn("failed to create seeded widget",
				logger.String("widget_id", w.ID),
				logger.Error(err))
		}
	}

	// Soft-disable widgets removed from the seed file.
	disabled := 0
	for _, prev := range existing {
		if seededIDs[prev.ID] || prev.Disabled {
			continue
		}
		prev.Disabled = true
		if _, err := sr.widgets.UpdateWidget(ctx, prev); err != nil {
			sr.logger.Warn("failed to disable removed seeded widget",
				logger.String("widget_id", prev.ID),
				logger.Error(err))
			continue
		}
		disabled++
	}
	if disabled > 0 {
		sr.logger.Info("disabled widgets removed from seed file",
			logger.Int("count", disabled))
	}

	return nil
}

// getSeededWidgets returns stored widgets that came from the seed file
func (sr *SeedReloader) getSeededWidgets(ctx context.Context) ([]*domain.Widget, error) {
	all, err := sr.widgets.ListWidgets(ctx)
	if err != nil {
		return nil, err
	}

	var seeded []*domain.Widget
	for _, w := range all {
		for _, source := range w.Sources {
			if source == "seedfile" {
				seeded = append(seeded, w)
				break
			}
		}
	}
	return seeded, nil
}
