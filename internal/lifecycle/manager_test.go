package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/index"
	"github.com/peekdeck/peekdeck/internal/logger"
	"github.com/peekdeck/peekdeck/internal/secrets"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu      sync.Mutex
	widgets map[string]*domain.Widget
	groups  map[string]*domain.CredentialGroup
	creds   map[string]*domain.StoredCredentials
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		widgets: make(map[string]*domain.Widget),
		groups:  make(map[string]*domain.CredentialGroup),
		creds:   make(map[string]*domain.StoredCredentials),
	}
}

func (s *fakeStore) SaveWidget(ctx context.Context, w *domain.Widget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.widgets[w.ID] = &cp
	return nil
}

func (s *fakeStore) GetWidget(ctx context.Context, id string) (*domain.Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.widgets[id]
	if !ok {
		return nil, errors.New("widget not found: " + id)
	}
	cp := *w
	return &cp, nil
}

func (s *fakeStore) GetAllWidgets(ctx context.Context) ([]*domain.Widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Widget, 0, len(s.widgets))
	for _, w := range s.widgets {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) DeleteWidget(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.widgets, id)
	delete(s.creds, id)
	return nil
}

func (s *fakeStore) SaveGroup(ctx context.Context, g *domain.CredentialGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	s.groups[g.ID] = &cp
	return nil
}

func (s *fakeStore) GetGroup(ctx context.Context, id string) (*domain.CredentialGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, errors.New("credential group not found: " + id)
	}
	cp := *g
	return &cp, nil
}

func (s *fakeStore) GetAllGroups(ctx context.Context) ([]*domain.CredentialGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.CredentialGroup, 0, len(s.groups))
	for _, g := range s.groups {
		cp := *g
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) DeleteGroup(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, id)
	delete(s.creds, id)
	return nil
}

func (s *fakeStore) SaveCredentials(ctx context.Context, c *domain.StoredCredentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.creds[c.OwnerID] = &cp
	return nil
}

func (s *fakeStore) GetCredentials(ctx context.Context, ownerID string) (*domain.StoredCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[ownerID]
	if !ok {
		return nil, errors.New("credentials not found: " + ownerID)
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) DeleteCredentials(ctx context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, ownerID)
	return nil
}

// fakeCapturer records requests and returns canned results.
type fakeCapturer struct {
	mu       sync.Mutex
	requests []*domain.CaptureRequest
	block    chan struct{} // non-nil: Capture blocks until closed
}

func (c *fakeCapturer) Capture(ctx context.Context, req *domain.CaptureRequest) *domain.CaptureResult {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	if c.block != nil {
		<-c.block
	}
	return &domain.CaptureResult{WidgetID: req.WidgetID, PNG: []byte("png"), CapturedAt: time.Now()}
}

func (c *fakeCapturer) captured() []*domain.CaptureRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*domain.CaptureRequest(nil), c.requests...)
}

// fakeSecrets is a reversible stand-in for the secret store.
type fakeSecrets struct {
	failDecrypt bool
}

func (f *fakeSecrets) Encrypt(plaintext string) ([]byte, error) {
	return []byte("enc:" + plaintext), nil
}

func (f *fakeSecrets) Decrypt(blob []byte) (string, error) {
	if f.failDecrypt {
		return "", secrets.ErrDecryptionFailed
	}
	return string(blob[len("enc:"):]), nil
}

type fakePartitions struct {
	mu      sync.Mutex
	dropped []string
}

func (p *fakePartitions) DropPartition(part string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropped = append(p.dropped, part)
	return nil
}

func newTestManager(store Store, capt Capturer) (*Manager, *index.MemoryIndex, *fakePartitions) {
	states := index.NewMemoryIndex()
	parts := &fakePartitions{}
	m := NewManager(store, capt, &fakeSecrets{}, parts, states, logger.New("error", false))
	return m, states, parts
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestCreateWidgetFillsIdentity(t *testing.T) {
	store := newFakeStore()
	capt := &fakeCapturer{}
	m, states, _ := newTestManager(store, capt)
	defer m.Stop()

	w, err := m.CreateWidget(context.Background(), &domain.Widget{Name: "cpu", URL: "https://g.example/d"})
	if err != nil {
		t.Fatalf("CreateWidget() error = %v", err)
	}
	if w.ID == "" {
		t.Error("ID not assigned")
	}
	if w.Partition == "" {
		t.Error("Partition not assigned")
	}
	if len(w.Sources) != 1 || w.Sources[0] != "api" {
		t.Errorf("Sources = %v, want [api]", w.Sources)
	}

	// Creation kicks an initial capture.
	waitFor(t, func() bool {
		st, ok := states.Get(w.ID)
		return ok && !st.Loading && st.LastResult != nil
	})
	if got := capt.captured(); len(got) != 1 || got[0].WidgetID != w.ID {
		t.Errorf("captured = %v requests, want the initial refresh", len(got))
	}
}

func TestRefreshSkipsWhenInFlight(t *testing.T) {
	store := newFakeStore()
	capt := &fakeCapturer{block: make(chan struct{})}
	m, _, _ := newTestManager(store, capt)
	defer m.Stop()

	w := &domain.Widget{ID: "w1", URL: "https://a.example", Partition: "p1"}
	if err := store.SaveWidget(context.Background(), w); err != nil {
		t.Fatal(err)
	}

	if err := m.Refresh(context.Background(), "w1"); err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	waitFor(t, func() bool { return len(capt.captured()) == 1 })

	if err := m.Refresh(context.Background(), "w1"); !errors.Is(err, ErrRefreshInFlight) {
		t.Errorf("second Refresh() error = %v, want ErrRefreshInFlight", err)
	}

	close(capt.block)
}

func TestRefreshDisabledWidget(t *testing.T) {
	store := newFakeStore()
	m, _, _ := newTestManager(store, &fakeCapturer{})
	defer m.Stop()

	_ = store.SaveWidget(context.Background(), &domain.Widget{ID: "w1", Disabled: true})

	if err := m.Refresh(context.Background(), "w1"); !errors.Is(err, ErrWidgetDisabled) {
		t.Errorf("Refresh() error = %v, want ErrWidgetDisabled", err)
	}
}

func TestRefreshUsesGroupPartitionAndCredentials(t *testing.T) {
	store := newFakeStore()
	capt := &fakeCapturer{}
	m, states, _ := newTestManager(store, capt)
	defer m.Stop()

	ctx := context.Background()
	_ = store.SaveGroup(ctx, &domain.CredentialGroup{ID: "g1", Partition: "shared", LoginURL: "sso.example.com"})
	_ = store.SaveCredentials(ctx, &domain.StoredCredentials{
		OwnerID:      "g1",
		UsernameBlob: []byte("enc:alice"),
		PasswordBlob: []byte("enc:s3cret"),
		Fields:       domain.LoginFieldSelection{UsernameSelector: "#u", PasswordSelector: "#p"},
	})
	_ = store.SaveWidget(ctx, &domain.Widget{
		ID: "w1", URL: "https://a.example", Partition: "private",
		CredentialGroupID: "g1", HasCredentials: true,
	})

	if err := m.Refresh(ctx, "w1"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	waitFor(t, func() bool {
		st, ok := states.Get("w1")
		return ok && !st.Loading
	})

	reqs := capt.captured()
	if len(reqs) != 1 {
		t.Fatalf("captured %d requests, want 1", len(reqs))
	}
	req := reqs[0]
	if req.Partition != "shared" {
		t.Errorf("Partition = %q, want the group partition", req.Partition)
	}
	if req.Credentials == nil {
		t.Fatal("Credentials = nil, want the decrypted group record")
	}
	if req.Credentials.Username != "alice" || req.Credentials.Password != "s3cret" {
		t.Errorf("credentials = %q/%q, want alice/s3cret", req.Credentials.Username, req.Credentials.Password)
	}
	if req.Credentials.LoginURL != "sso.example.com" {
		t.Errorf("LoginURL = %q, want the group's", req.Credentials.LoginURL)
	}
}

func TestRefreshDecryptionFailureIsContained(t *testing.T) {
	store := newFakeStore()
	states := index.NewMemoryIndex()
	m := NewManager(store, &fakeCapturer{}, &fakeSecrets{failDecrypt: true}, &fakePartitions{}, states, logger.New("error", false))
	defer m.Stop()

	ctx := context.Background()
	_ = store.SaveCredentials(ctx, &domain.StoredCredentials{
		OwnerID:      "w1",
		UsernameBlob: []byte("enc:alice"),
		PasswordBlob: []byte("enc:s3cret"),
	})
	_ = store.SaveWidget(ctx, &domain.Widget{ID: "w1", URL: "https://a.example", Partition: "p1", HasCredentials: true})

	if err := m.Refresh(ctx, "w1"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	waitFor(t, func() bool {
		st, ok := states.Get("w1")
		return ok && !st.Loading && st.LastResult != nil
	})

	st, _ := states.Get("w1")
	if st.LastResult.ErrKind != domain.CaptureErrDecryption {
		t.Errorf("ErrKind = %q, want decryption_failed", st.LastResult.ErrKind)
	}
}

func TestSetCredentialsEncryptsAndFlagsWidget(t *testing.T) {
	store := newFakeStore()
	m, _, _ := newTestManager(store, &fakeCapturer{})
	defer m.Stop()

	ctx := context.Background()
	_ = store.SaveWidget(ctx, &domain.Widget{ID: "w1", URL: "https://a.example"})

	fields := domain.LoginFieldSelection{UsernameSelector: "#u", PasswordSelector: "#p"}
	if err := m.SetCredentials(ctx, "w1", "alice", "s3cret", "", fields); err != nil {
		t.Fatalf("SetCredentials() error = %v", err)
	}

	record, err := store.GetCredentials(ctx, "w1")
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if string(record.UsernameBlob) == "alice" || string(record.PasswordBlob) == "s3cret" {
		t.Error("credentials stored in plaintext")
	}

	w, _ := store.GetWidget(ctx, "w1")
	if !w.HasCredentials {
		t.Error("HasCredentials not set on the widget")
	}
}

func TestDeleteGroupDetachesWidgets(t *testing.T) {
	store := newFakeStore()
	m, _, parts := newTestManager(store, &fakeCapturer{})
	defer m.Stop()

	ctx := context.Background()
	_ = store.SaveGroup(ctx, &domain.CredentialGroup{ID: "g1", Partition: "shared"})
	_ = store.SaveCredentials(ctx, &domain.StoredCredentials{OwnerID: "g1"})
	_ = store.SaveWidget(ctx, &domain.Widget{ID: "w1", Partition: "shared", CredentialGroupID: "g1", HasCredentials: true})
	_ = store.SaveWidget(ctx, &domain.Widget{ID: "w2", Partition: "own", HasCredentials: true})

	if err := m.DeleteGroup(ctx, "g1"); err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}

	w1, _ := store.GetWidget(ctx, "w1")
	if w1.CredentialGroupID != "" {
		t.Error("CredentialGroupID not cleared")
	}
	if w1.HasCredentials {
		t.Error("HasCredentials not cleared")
	}
	if w1.Partition == "shared" || w1.Partition == "" {
		t.Errorf("Partition = %q, want a fresh private partition", w1.Partition)
	}

	// Unrelated widgets stay untouched.
	w2, _ := store.GetWidget(ctx, "w2")
	if w2.Partition != "own" || !w2.HasCredentials {
		t.Errorf("unrelated widget modified: %+v", w2)
	}

	if _, err := store.GetGroup(ctx, "g1"); err == nil {
		t.Error("group still stored after delete")
	}
	if len(parts.dropped) != 1 || parts.dropped[0] != "shared" {
		t.Errorf("dropped partitions = %v, want [shared]", parts.dropped)
	}
}

func TestTimerFiresPeriodicRefresh(t *testing.T) {
	store := newFakeStore()
	capt := &fakeCapturer{}
	m, _, _ := newTestManager(store, capt)

	ctx := context.Background()
	_ = store.SaveWidget(ctx, &domain.Widget{ID: "w1", URL: "https://a.example", Partition: "p1", RefreshInterval: 1})

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	// Initial refresh plus at least one timer fire.
	waitFor(t, func() bool { return len(capt.captured()) >= 2 })
}

func TestStartContextCancelEndsRefreshLifetime(t *testing.T) {
	store := newFakeStore()
	m, _, _ := newTestManager(store, &fakeCapturer{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer m.Stop()

	cancel()
	waitFor(t, func() bool {
		select {
		case <-m.ctx.Done():
			return true
		default:
			return false
		}
	})
}
