package index

import (
	"sync"
	"testing"
	"time"

	"github.com/peekdeck/peekdeck/internal/domain"
)

func TestNewMemoryIndex(t *testing.T) {
	index := NewMemoryIndex()
	if index == nil {
		t.Fatal("NewMemoryIndex() returned nil")
	}
	if index.Count() != 0 {
		t.Errorf("NewMemoryIndex() should start empty, got %v widgets", index.Count())
	}
}

func TestBeginRefreshGuardsInFlight(t *testing.T) {
	index := NewMemoryIndex()

	if !index.BeginRefresh("w1") {
		t.Fatal("first BeginRefresh() = false, want true")
	}
	if index.BeginRefresh("w1") {
		t.Error("BeginRefresh() while in flight = true, want skip")
	}

	index.EndRefresh("w1", &domain.CaptureResult{WidgetID: "w1", PNG: []byte("png"), CapturedAt: time.Now()})

	if !index.BeginRefresh("w1") {
		t.Error("BeginRefresh() after EndRefresh() = false, want true")
	}
}

func TestEndRefreshSuccessResetsFailures(t *testing.T) {
	index := NewMemoryIndex()

	index.BeginRefresh("w1")
	index.EndRefresh("w1", &domain.CaptureResult{WidgetID: "w1", ErrKind: domain.CaptureErrTimeout, ErrMessage: "timed out"})
	index.BeginRefresh("w1")
	index.EndRefresh("w1", &domain.CaptureResult{WidgetID: "w1", ErrKind: domain.CaptureErrTimeout, ErrMessage: "timed out"})

	st, ok := index.Get("w1")
	if !ok {
		t.Fatal("widget state missing")
	}
	if st.FailureCount != 2 {
		t.Errorf("FailureCount = %v, want 2", st.FailureCount)
	}

	index.BeginRefresh("w1")
	index.EndRefresh("w1", &domain.CaptureResult{WidgetID: "w1", PNG: []byte("png"), CapturedAt: time.Now()})

	st, _ = index.Get("w1")
	if st.FailureCount != 0 {
		t.Errorf("FailureCount after success = %v, want 0", st.FailureCount)
	}
	if st.Loading {
		t.Error("Loading should be cleared by EndRefresh()")
	}
}

func TestEndRefreshFailureKeepsStaleSnapshot(t *testing.T) {
	index := NewMemoryIndex()

	good := &domain.CaptureResult{WidgetID: "w1", PNG: []byte("good"), Filtered: true, CapturedAt: time.Now()}
	index.BeginRefresh("w1")
	index.EndRefresh("w1", good)

	index.BeginRefresh("w1")
	index.EndRefresh("w1", &domain.CaptureResult{WidgetID: "w1", ErrKind: domain.CaptureErrNavigation, ErrMessage: "dns"})

	st, _ := index.Get("w1")
	if st.LastResult == nil {
		t.Fatal("LastResult = nil after a failure following a success")
	}
	if string(st.LastResult.PNG) != "good" {
		t.Errorf("PNG = %q, want the stale good snapshot", st.LastResult.PNG)
	}
	if st.LastResult.ErrKind != domain.CaptureErrNavigation {
		t.Errorf("ErrKind = %q, want the fresh error", st.LastResult.ErrKind)
	}
	if st.FailureCount != 1 {
		t.Errorf("FailureCount = %v, want 1", st.FailureCount)
	}
}

func TestDelete(t *testing.T) {
	index := NewMemoryIndex()

	index.BeginRefresh("w1")
	index.EndRefresh("w1", &domain.CaptureResult{WidgetID: "w1", PNG: []byte("png")})
	index.Delete("w1")

	if _, ok := index.Get("w1"); ok {
		t.Error("Get() after Delete() found state")
	}
	if index.Count() != 0 {
		t.Errorf("Count() = %v, want 0", index.Count())
	}
}

func TestConcurrentAccess(t *testing.T) {
	index := NewMemoryIndex()

	var wg sync.WaitGroup
	var wins int64
	var mu sync.Mutex

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if index.BeginRefresh("w1") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
			_, _ = index.Get("w1")
		}()
	}
	wg.Wait()

	// Exactly one goroutine may win the in-flight slot.
	if wins != 1 {
		t.Errorf("BeginRefresh() granted %v concurrent slots, want 1", wins)
	}
}
