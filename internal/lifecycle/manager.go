// Package lifecycle owns widgets from creation to deletion: refresh
// timers, manual refreshes, credential records and the group delete
// cascade. It is the only writer of widget definitions; the HTTP layer
// calls in here instead of touching the store directly.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/index"
	"github.com/peekdeck/peekdeck/internal/logger"
	"github.com/peekdeck/peekdeck/internal/secrets"
)

// ErrRefreshInFlight means a refresh for the widget is already running;
// the new request is skipped, not queued.
var ErrRefreshInFlight = errors.New("refresh already in flight")

// ErrWidgetDisabled rejects refreshes of soft-deleted widgets.
var ErrWidgetDisabled = errors.New("widget is disabled")

// Store is the persistence surface the manager needs.
type Store interface {
	SaveWidget(ctx context.Context, widget *domain.Widget) error
	GetWidget(ctx context.Context, id string) (*domain.Widget, error)
	GetAllWidgets(ctx context.Context) ([]*domain.Widget, error)
	DeleteWidget(ctx context.Context, id string) error

	SaveGroup(ctx context.Context, group *domain.CredentialGroup) error
	GetGroup(ctx context.Context, id string) (*domain.CredentialGroup, error)
	GetAllGroups(ctx context.Context) ([]*domain.CredentialGroup, error)
	DeleteGroup(ctx context.Context, id string) error

	SaveCredentials(ctx context.Context, creds *domain.StoredCredentials) error
	GetCredentials(ctx context.Context, ownerID string) (*domain.StoredCredentials, error)
	DeleteCredentials(ctx context.Context, ownerID string) error
}

// Capturer runs one capture pass.
type Capturer interface {
	Capture(ctx context.Context, req *domain.CaptureRequest) *domain.CaptureResult
}

// SecretStore seals and opens credential values.
type SecretStore interface {
	Encrypt(plaintext string) ([]byte, error)
	Decrypt(blob []byte) (string, error)
}

// Partitions releases browser session partitions.
type Partitions interface {
	DropPartition(part string) error
}

// Manager drives the widget lifecycle.
type Manager struct {
	store      Store
	capturer   Capturer
	secrets    SecretStore
	partitions Partitions
	states     *index.MemoryIndex
	logger     logger.Logger

	mu     sync.Mutex
	timers map[string]chan struct{} // widget ID -> timer stop channel
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a lifecycle manager
func NewManager(
	store Store,
	capturer Capturer,
	sec SecretStore,
	parts Partitions,
	states *index.MemoryIndex,
	log logger.Logger,
) *Manager {
	m := &Manager{
		store:      store,
		capturer:   capturer,
		secrets:    sec,
		partitions: parts,
		states:     states,
		logger:     log,
		timers:     make(map[string]chan struct{}),
	}
	// Refreshes can begin before Start (widget creation kicks one off),
	// so the shared lifetime exists from construction. Stop ends it.
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// Start loads all widgets, arms their refresh timers and kicks one
// initial refresh per enabled widget. Cancelling ctx ends the refresh
// lifetime the same way Stop does.
func (m *Manager) Start(ctx context.Context) error {
	context.AfterFunc(ctx, m.cancel)

	widgets, err := m.store.GetAllWidgets(ctx)
	if err != nil {
		return fmt.Errorf("load widgets: %w", err)
	}

	for _, w := range widgets {
		if w.Disabled {
			continue
		}
		m.armTimer(w)
		m.tryRefresh(w.ID)
	}

	m.logger.Info("widget lifecycle started", logger.Int("widgets", len(widgets)))
	return nil
}

// Stop cancels all timers and waits for running refreshes to settle.
func (m *Manager) Stop() {
	m.mu.Lock()
	for id, stop := range m.timers {
		close(stop)
		delete(m.timers, id)
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// ─────────────────────────────────────────────────────────────────
// Widget CRUD
// ─────────────────────────────────────────────────────────────────

// CreateWidget persists a new widget, arms its timer and starts its
// first capture. Missing identity fields are filled in.
func (m *Manager) CreateWidget(ctx context.Context, w *domain.Widget) (*domain.Widget, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Partition == "" {
		w.Partition = uuid.NewString()
	}
	if len(w.Sources) == 0 {
		w.Sources = []string{"api"}
	}
	now := time.Now()
	w.CreatedAt = now
	w.UpdatedAt = now

	if err := m.store.SaveWidget(ctx, w); err != nil {
		return nil, err
	}

	if !w.Disabled {
		m.armTimer(w)
		m.tryRefresh(w.ID)
	}
	return w, nil
}

// UpdateWidget replaces a widget definition and re-arms its timer.
// Identity and provenance fields are preserved from the stored record.
func (m *Manager) UpdateWidget(ctx context.Context, w *domain.Widget) (*domain.Widget, error) {
	existing, err := m.store.GetWidget(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	w.CreatedAt = existing.CreatedAt
	if len(w.Sources) == 0 {
		w.Sources = existing.Sources
	}
	if w.Partition == "" {
		w.Partition = existing.Partition
	}
	w.UpdatedAt = time.Now()

	if err := m.store.SaveWidget(ctx, w); err != nil {
		return nil, err
	}

	m.disarmTimer(w.ID)
	if !w.Disabled {
		m.armTimer(w)
		m.tryRefresh(w.ID)
	}
	return w, nil
}

// DeleteWidget removes a widget, its credential record and its runtime
// state. Partition directories are left to the partition garbage
// collector, which knows whether anything else still references them.
func (m *Manager) DeleteWidget(ctx context.Context, id string) error {
	m.disarmTimer(id)
	if err := m.store.DeleteWidget(ctx, id); err != nil {
		return err
	}
	m.states.Delete(id)
	return nil
}

// GetWidget returns a stored widget definition.
func (m *Manager) GetWidget(ctx context.Context, id string) (*domain.Widget, error) {
	return m.store.GetWidget(ctx, id)
}

// ListWidgets returns all stored widget definitions.
func (m *Manager) ListWidgets(ctx context.Context) ([]*domain.Widget, error) {
	return m.store.GetAllWidgets(ctx)
}

// GetGroup returns a stored credential group.
func (m *Manager) GetGroup(ctx context.Context, id string) (*domain.CredentialGroup, error) {
	return m.store.GetGroup(ctx, id)
}

// ListGroups returns all stored credential groups.
func (m *Manager) ListGroups(ctx context.Context) ([]*domain.CredentialGroup, error) {
	return m.store.GetAllGroups(ctx)
}

// State returns a widget's runtime state.
func (m *Manager) State(id string) (index.WidgetState, bool) {
	return m.states.Get(id)
}

// Refresh triggers a manual capture pass. Overlapping requests for the
// same widget are skipped with ErrRefreshInFlight.
func (m *Manager) Refresh(ctx context.Context, id string) error {
	w, err := m.store.GetWidget(ctx, id)
	if err != nil {
		return err
	}
	if w.Disabled {
		return ErrWidgetDisabled
	}
	if !m.states.BeginRefresh(id) {
		return ErrRefreshInFlight
	}
	m.spawnRefresh(id)
	return nil
}

// ─────────────────────────────────────────────────────────────────
// Credentials & groups
// ─────────────────────────────────────────────────────────────────

// CreateGroup persists a new credential group with its own partition.
func (m *Manager) CreateGroup(ctx context.Context, g *domain.CredentialGroup) (*domain.CredentialGroup, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Partition == "" {
		g.Partition = uuid.NewString()
	}
	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now

	if err := m.store.SaveGroup(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// DeleteGroup removes a credential group and detaches every widget that
// referenced it: the reference and credential flag are cleared and the
// widget gets a fresh private partition, so the group's login session
// cannot leak into later captures.
func (m *Manager) DeleteGroup(ctx context.Context, id string) error {
	group, err := m.store.GetGroup(ctx, id)
	if err != nil {
		return err
	}

	widgets, err := m.store.GetAllWidgets(ctx)
	if err != nil {
		return err
	}
	for _, w := range widgets {
		if w.CredentialGroupID != id {
			continue
		}
		w.CredentialGroupID = ""
		w.HasCredentials = false
		w.Partition = uuid.NewString()
		w.UpdatedAt = time.Now()
		if err := m.store.SaveWidget(ctx, w); err != nil {
			return err
		}
	}

	if err := m.store.DeleteGroup(ctx, id); err != nil {
		return err
	}

	if err := m.partitions.DropPartition(group.Partition); err != nil {
		m.logger.Warn("failed to drop group partition",
			logger.String("group_id", id),
			logger.Error(err))
	}
	return nil
}

// SetCredentials encrypts and stores a credential record for a widget
// or a credential group.
func (m *Manager) SetCredentials(ctx context.Context, ownerID, username, password, loginURL string, fields domain.LoginFieldSelection) error {
	userBlob, err := m.secrets.Encrypt(username)
	if err != nil {
		return fmt.Errorf("encrypt username: %w", err)
	}
	passBlob, err := m.secrets.Encrypt(password)
	if err != nil {
		return fmt.Errorf("encrypt password: %w", err)
	}

	now := time.Now()
	record := &domain.StoredCredentials{
		OwnerID:      ownerID,
		UsernameBlob: userBlob,
		PasswordBlob: passBlob,
		LoginURL:     loginURL,
		Fields:       fields,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := m.store.SaveCredentials(ctx, record); err != nil {
		return err
	}

	// Widget owners carry a flag so the dashboard can show a lock icon
	// without fetching the record.
	if w, err := m.store.GetWidget(ctx, ownerID); err == nil {
		w.HasCredentials = true
		w.UpdatedAt = now
		return m.store.SaveWidget(ctx, w)
	}
	return nil
}

// DeleteCredentials removes the credential record for a widget or group.
func (m *Manager) DeleteCredentials(ctx context.Context, ownerID string) error {
	if err := m.store.DeleteCredentials(ctx, ownerID); err != nil {
		return err
	}
	if w, err := m.store.GetWidget(ctx, ownerID); err == nil && w.CredentialGroupID == "" {
		w.HasCredentials = false
		w.UpdatedAt = time.Now()
		return m.store.SaveWidget(ctx, w)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────
// Refresh machinery
// ─────────────────────────────────────────────────────────────────

// armTimer starts the periodic refresh loop for a widget. Widgets with
// RefreshInterval 0 are manual-only and get no timer.
func (m *Manager) armTimer(w *domain.Widget) {
	if w.RefreshInterval <= 0 {
		return
	}

	stop := make(chan struct{})
	m.mu.Lock()
	if old, ok := m.timers[w.ID]; ok {
		close(old)
	}
	m.timers[w.ID] = stop
	m.mu.Unlock()

	interval := time.Duration(w.RefreshInterval) * time.Second
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.tryRefresh(w.ID)
			case <-stop:
				return
			case <-m.ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) disarmTimer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stop, ok := m.timers[id]; ok {
		close(stop)
		delete(m.timers, id)
	}
}

// tryRefresh starts a refresh unless one is already in flight.
func (m *Manager) tryRefresh(id string) {
	if !m.states.BeginRefresh(id) {
		m.logger.Debug("refresh already in flight, skipping",
			logger.String("widget_id", id))
		return
	}
	m.spawnRefresh(id)
}

// spawnRefresh runs a capture pass in the background. The caller must
// have won BeginRefresh; EndRefresh always runs, whatever happens.
func (m *Manager) spawnRefresh(id string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx := m.ctx

		w, err := m.store.GetWidget(ctx, id)
		if err != nil {
			m.states.EndRefresh(id, &domain.CaptureResult{
				WidgetID:   id,
				ErrKind:    domain.CaptureErrInternal,
				ErrMessage: err.Error(),
			})
			return
		}

		req, err := m.buildRequest(ctx, w)
		if err != nil {
			kind := domain.CaptureErrInternal
			if errors.Is(err, secrets.ErrDecryptionFailed) {
				kind = domain.CaptureErrDecryption
			}
			m.states.EndRefresh(id, &domain.CaptureResult{
				WidgetID:   id,
				ErrKind:    kind,
				ErrMessage: err.Error(),
			})
			return
		}

		m.states.EndRefresh(id, m.capturer.Capture(ctx, req))
	}()
}

// buildRequest assembles a capture request, resolving credentials
// lazily: the record is fetched and decrypted per pass, never cached.
func (m *Manager) buildRequest(ctx context.Context, w *domain.Widget) (*domain.CaptureRequest, error) {
	req := &domain.CaptureRequest{
		WidgetID:  w.ID,
		URL:       w.URL,
		Partition: w.Partition,
		Selection: w.Selection,
	}

	if w.CredentialGroupID != "" {
		group, err := m.store.GetGroup(ctx, w.CredentialGroupID)
		if err != nil {
			// A dangling reference degrades to a credential-less pass.
			m.logger.Warn("credential group missing, capturing without login",
				logger.String("widget_id", w.ID),
				logger.String("group_id", w.CredentialGroupID))
			return req, nil
		}
		req.Partition = w.EffectivePartition(group)

		creds, err := m.loadCredentials(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		if creds != nil && creds.LoginURL == "" {
			creds.LoginURL = group.LoginURL
		}
		req.Credentials = creds
		return req, nil
	}

	if w.HasCredentials {
		creds, err := m.loadCredentials(ctx, w.ID)
		if err != nil {
			return nil, err
		}
		req.Credentials = creds
	}
	return req, nil
}

// loadCredentials fetches and decrypts the record for an owner. A
// missing record is not an error; an undecryptable one is.
func (m *Manager) loadCredentials(ctx context.Context, ownerID string) (*domain.Credentials, error) {
	record, err := m.store.GetCredentials(ctx, ownerID)
	if err != nil {
		m.logger.Warn("credential record missing, capturing without login",
			logger.String("owner_id", ownerID))
		return nil, nil
	}

	username, err := m.secrets.Decrypt(record.UsernameBlob)
	if err != nil {
		return nil, fmt.Errorf("open username for %s: %w", ownerID, err)
	}
	password, err := m.secrets.Decrypt(record.PasswordBlob)
	if err != nil {
		return nil, fmt.Errorf("open password for %s: %w", ownerID, err)
	}

	return &domain.Credentials{
		Username: username,
		Password: password,
		LoginURL: record.LoginURL,
		Fields:   record.Fields,
	}, nil
}
