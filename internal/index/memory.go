package index

import (
	"sync"
	"time"

	"github.com/peekdeck/peekdeck/internal/domain"
)

// WidgetState is the runtime side of a widget: everything the dashboard
// needs to render it that is not part of its stored definition.
type WidgetState struct {
	Loading      bool
	LastResult   *domain.CaptureResult // nil until the first pass finishes
	FailureCount int                   // consecutive failed passes
	RefreshedAt  time.Time
}

// MemoryIndex provides in-memory storage and lookup for per-widget
// runtime state. Runtime state is rebuilt from scratch on every start;
// it is never persisted.
type MemoryIndex struct {
	mu      sync.RWMutex
	widgets map[string]*WidgetState // widget ID -> state
}

// NewMemoryIndex creates a new memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		widgets: make(map[string]*WidgetState),
	}
}

// Get retrieves a copy of a widget's runtime state
func (idx *MemoryIndex) Get(id string) (WidgetState, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	st, ok := idx.widgets[id]
	if !ok {
		return WidgetState{}, false
	}
	return *st, true
}

// BeginRefresh marks a widget as loading. It returns false when a
// refresh is already in flight, which is how overlapping refresh
// requests get skipped.
func (idx *MemoryIndex) BeginRefresh(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	st, ok := idx.widgets[id]
	if !ok {
		st = &WidgetState{}
		idx.widgets[id] = st
	}
	if st.Loading {
		return false
	}
	st.Loading = true
	return true
}

// EndRefresh records the outcome of a capture pass and clears the
// loading flag. Failed passes keep the previous good result so the
// dashboard shows stale content instead of a hole.
func (idx *MemoryIndex) EndRefresh(id string, result *domain.CaptureResult) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	st, ok := idx.widgets[id]
	if !ok {
		st = &WidgetState{}
		idx.widgets[id] = st
	}
	st.Loading = false
	st.RefreshedAt = time.Now()
	if result.OK() {
		st.LastResult = result
		st.FailureCount = 0
		return
	}
	st.FailureCount++
	if st.LastResult == nil {
		st.LastResult = result
	} else {
		// Keep the stale PNG, surface the fresh error.
		st.LastResult = &domain.CaptureResult{
			WidgetID:   result.WidgetID,
			PNG:        st.LastResult.PNG,
			Filtered:   st.LastResult.Filtered,
			CapturedAt: st.LastResult.CapturedAt,
			ErrKind:    result.ErrKind,
			ErrMessage: result.ErrMessage,
		}
	}
}

// Delete removes a widget's runtime state
func (idx *MemoryIndex) Delete(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.widgets, id)
}

// Count returns the number of widgets with runtime state
func (idx *MemoryIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.widgets)
}
