package scheduler

import (
	"context"
	"time"

	"github.com/peekdeck/peekdeck/internal/browser"
	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/logger"
)

// PartitionEngine is the browser surface the collector needs.
type PartitionEngine interface {
	StoredPartitions() ([]string, error)
	DropPartition(part string) error
}

// PartitionLister enumerates everything that may reference a partition.
type PartitionLister interface {
	ListWidgets(ctx context.Context) ([]*domain.Widget, error)
	ListGroups(ctx context.Context) ([]*domain.CredentialGroup, error)
}

// PartitionGC removes browser profile directories whose partition key
// no longer belongs to any widget or credential group. Deleting a
// widget leaves its profile behind on purpose (another widget may share
// the partition); this collector cleans up once nothing references it.
type PartitionGC struct {
	engine   PartitionEngine
	lister   PartitionLister
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewPartitionGC creates a new partition garbage collector
func NewPartitionGC(
	engine PartitionEngine,
	lister PartitionLister,
	log logger.Logger,
	interval time.Duration,
) *PartitionGC {
	return &PartitionGC{
		engine:   engine,
		lister:   lister,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection process
func (gc *PartitionGC) Start(ctx context.Context) error {
	// Run immediately on start
	if err := gc.Collect(ctx); err != nil {
		gc.logger.Warn("initial partition collection failed",
			logger.Error(err))
	}

	ticker := time.NewTicker(gc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := gc.Collect(ctx); err != nil {
					gc.logger.Error("partition collection failed",
						logger.Error(err))
				}
			case <-gc.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the collector
func (gc *PartitionGC) Stop() {
	close(gc.stopCh)
}

// Collect drops every stored partition no widget or group references
func (gc *PartitionGC) Collect(ctx context.Context) error {
	stored, err := gc.engine.StoredPartitions()
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		return nil
	}

	referenced, err := gc.referencedPartitions(ctx)
	if err != nil {
		return err
	}

	dropped := 0
	for _, part := range stored {
		if referenced[part] {
			continue
		}
		if err := gc.engine.DropPartition(part); err != nil {
			gc.logger.Warn("failed to drop orphaned partition",
				logger.String("partition", part),
				logger.Error(err))
			continue
		}
		gc.logger.Info("dropped orphaned partition",
			logger.String("partition", part))
		dropped++
	}

	if dropped > 0 {
		gc.logger.Info("partition collection completed",
			logger.Int("dropped", dropped))
	} else {
		gc.logger.Debug("no orphaned partitions")
	}
	return nil
}

// referencedPartitions returns the set of sanitized partition directory
// names still claimed by a widget or credential group. Stored names are
// already sanitized, so both sides compare in directory space.
func (gc *PartitionGC) referencedPartitions(ctx context.Context) (map[string]bool, error) {
	referenced := make(map[string]bool)

	widgets, err := gc.lister.ListWidgets(ctx)
	if err != nil {
		return nil, err
	}
	for _, w := range widgets {
		if w.Partition != "" {
			referenced[browser.SanitizePartition(w.Partition)] = true
		}
	}

	groups, err := gc.lister.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		if g.Partition != "" {
			referenced[browser.SanitizePartition(g.Partition)] = true
		}
	}
	return referenced, nil
}
