package seedfile

// SeedConfig represents the top-level structure of widgets.yaml
type SeedConfig struct {
	Widgets []WidgetEntry `yaml:"widgets"`
}

// WidgetEntry is one declaratively seeded widget
type WidgetEntry struct {
	Name            string          `yaml:"name"`
	URL             string          `yaml:"url"`
	RefreshInterval int             `yaml:"refreshInterval,omitempty"`
	Partition       string          `yaml:"partition,omitempty"`
	ZoomLevel       float64         `yaml:"zoomLevel,omitempty"`
	Disabled        bool            `yaml:"disabled,omitempty"`
	Selection       *SelectionEntry `yaml:"selection,omitempty"`
}

// SelectionEntry describes the embedded region. Kind is "css" or "crop".
type SelectionEntry struct {
	Kind      string     `yaml:"kind"`
	Selectors []string   `yaml:"selectors,omitempty"`
	Crop      *CropEntry `yaml:"crop,omitempty"`
}

// CropEntry is a viewport rectangle plus scroll offsets
type CropEntry struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Width   float64 `yaml:"width"`
	Height  float64 `yaml:"height"`
	ScrollX float64 `yaml:"scrollX,omitempty"`
	ScrollY float64 `yaml:"scrollY,omitempty"`
}
