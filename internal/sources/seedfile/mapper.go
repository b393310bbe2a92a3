package seedfile

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/peekdeck/peekdeck/internal/domain"
)

// Mapper converts seed file entries to domain.Widget entities
type Mapper struct{}

// NewMapper creates a new mapper instance
func NewMapper() *Mapper {
	return &Mapper{}
}

// MapWidgets converts a SeedConfig to []domain.Widget. Entries without
// a name or a parseable URL are skipped. IDs are derived from name+URL
// so repeated reloads address the same widgets.
func (m *Mapper) MapWidgets(config *SeedConfig) ([]*domain.Widget, error) {
	var widgets []*domain.Widget
	now := time.Now()

	for _, entry := range config.Widgets {
		if entry.Name == "" || entry.URL == "" {
			continue
		}

		parsedURL, err := url.Parse(entry.URL)
		if err != nil || parsedURL.Hostname() == "" {
			// Skip invalid URLs
			continue
		}

		id := SeedID(entry.Name, entry.URL)
		partition := entry.Partition
		if partition == "" {
			partition = id
		}

		widget := &domain.Widget{
			ID:              id,
			Name:            entry.Name,
			URL:             entry.URL,
			Partition:       partition,
			RefreshInterval: entry.RefreshInterval,
			ZoomLevel:       entry.ZoomLevel,
			Disabled:        entry.Disabled,
			Sources:         []string{"seedfile"},
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if entry.Selection != nil {
			sel, err := mapSelection(entry.URL, entry.Selection)
			if err != nil {
				// A broken selection degrades to a full-page widget.
				widget.Selection = nil
			} else {
				widget.Selection = sel
			}
		}

		widgets = append(widgets, widget)
	}

	if len(widgets) == 0 {
		return nil, fmt.Errorf("no valid widgets found in seed config")
	}

	return widgets, nil
}

// SeedID derives the stable widget ID for a seed entry.
func SeedID(name, rawURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name+"|"+rawURL)).String()
}

func mapSelection(sourceURL string, entry *SelectionEntry) (*domain.Selection, error) {
	sel := &domain.Selection{
		SourceURL: sourceURL,
		Kind:      domain.SelectionKind(entry.Kind),
	}
	switch sel.Kind {
	case domain.SelectionCSS:
		sel.CSS = &domain.CSSSelection{Selectors: entry.Selectors}
	case domain.SelectionCrop:
		if entry.Crop == nil {
			return nil, fmt.Errorf("crop selection without rectangle")
		}
		sel.Crop = &domain.CropSelection{
			X:       entry.Crop.X,
			Y:       entry.Crop.Y,
			Width:   entry.Crop.Width,
			Height:  entry.Crop.Height,
			ScrollX: entry.Crop.ScrollX,
			ScrollY: entry.Crop.ScrollY,
		}
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	return sel, nil
}
