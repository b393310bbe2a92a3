package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/httpserver/deps"
	"github.com/peekdeck/peekdeck/internal/logger"
)

// widgetPayload is the wire shape of a widget. The domain struct stays
// transport-agnostic; this is the only place the JSON contract lives.
type widgetPayload struct {
	ID                string            `json:"id,omitempty"`
	Name              string            `json:"name"`
	URL               string            `json:"url"`
	Selection         *domain.Selection `json:"selection,omitempty"`
	Partition         string            `json:"partition,omitempty"`
	HasCredentials    bool              `json:"hasCredentials"`
	CredentialGroupID string            `json:"credentialGroupId,omitempty"`
	RefreshInterval   int               `json:"refreshInterval"`
	ZoomLevel         float64           `json:"zoomLevel,omitempty"`
	Sources           []string          `json:"sources,omitempty"`
	CreatedAt         time.Time         `json:"createdAt,omitempty"`
	UpdatedAt         time.Time         `json:"updatedAt,omitempty"`
	Disabled          bool              `json:"disabled"`
}

func widgetToPayload(w *domain.Widget) widgetPayload {
	return widgetPayload{
		ID:                w.ID,
		Name:              w.Name,
		URL:               w.URL,
		Selection:         w.Selection,
		Partition:         w.Partition,
		HasCredentials:    w.HasCredentials,
		CredentialGroupID: w.CredentialGroupID,
		RefreshInterval:   w.RefreshInterval,
		ZoomLevel:         w.ZoomLevel,
		Sources:           w.Sources,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
		Disabled:          w.Disabled,
	}
}

func (p widgetPayload) toDomain() *domain.Widget {
	return &domain.Widget{
		ID:                p.ID,
		Name:              p.Name,
		URL:               p.URL,
		Selection:         p.Selection,
		Partition:         p.Partition,
		CredentialGroupID: p.CredentialGroupID,
		RefreshInterval:   p.RefreshInterval,
		ZoomLevel:         p.ZoomLevel,
		Disabled:          p.Disabled,
	}
}

func validateWidgetPayload(p widgetPayload) string {
	if strings.TrimSpace(p.Name) == "" {
		return "name is required"
	}
	if strings.TrimSpace(p.URL) == "" {
		return "url is required"
	}
	if p.RefreshInterval < 0 {
		return "refreshInterval must be >= 0"
	}
	if p.Selection != nil {
		if err := p.Selection.Validate(); err != nil {
			return err.Error()
		}
	}
	return ""
}

func ListWidgets(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		widgets, err := d.Lifecycle.ListWidgets(r.Context())
		if err != nil {
			d.Logger.Error("failed to list widgets", logger.Error(err))
			writeStoreError(w, err)
			return
		}
		out := make([]widgetPayload, 0, len(widgets))
		for _, widget := range widgets {
			out = append(out, widgetToPayload(widget))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func CreateWidget(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p widgetPayload
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if msg := validateWidgetPayload(p); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		created, err := d.Lifecycle.CreateWidget(r.Context(), p.toDomain())
		if err != nil {
			d.Logger.Error("failed to create widget", logger.Error(err))
			writeStoreError(w, err)
			return
		}
		d.Logger.Info("widget created",
			logger.String("widget_id", created.ID),
			logger.String("name", created.Name))
		writeJSON(w, http.StatusCreated, widgetToPayload(created))
	}
}

func GetWidget(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		widget, err := d.Lifecycle.GetWidget(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, widgetToPayload(widget))
	}
}

func UpdateWidget(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p widgetPayload
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if msg := validateWidgetPayload(p); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		widget := p.toDomain()
		widget.ID = chi.URLParam(r, "id")
		updated, err := d.Lifecycle.UpdateWidget(r.Context(), widget)
		if err != nil {
			d.Logger.Error("failed to update widget",
				logger.String("widget_id", widget.ID),
				logger.Error(err))
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, widgetToPayload(updated))
	}
}

func DeleteWidget(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := d.Lifecycle.DeleteWidget(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		d.Logger.Info("widget deleted", logger.String("widget_id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

// RefreshWidget kicks one capture pass. The pass runs in the
// background; poll the state endpoint for the outcome.
func RefreshWidget(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := d.Lifecycle.Refresh(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
	}
}

type widgetStateResponse struct {
	Loading      bool      `json:"loading"`
	HasSnapshot  bool      `json:"hasSnapshot"`
	Filtered     bool      `json:"filtered,omitempty"`
	FailureCount int       `json:"failureCount"`
	RefreshedAt  time.Time `json:"refreshedAt,omitempty"`
	CapturedAt   time.Time `json:"capturedAt,omitempty"`
	ErrKind      string    `json:"errKind,omitempty"`
	ErrMessage   string    `json:"errMessage,omitempty"`
}

// WidgetState exposes the runtime side of a widget: loading flag,
// failure streak and the last pass's error, if any.
func WidgetState(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		st, ok := d.Lifecycle.State(id)
		if !ok {
			writeError(w, http.StatusNotFound, "no runtime state for widget")
			return
		}

		resp := widgetStateResponse{
			Loading:      st.Loading,
			FailureCount: st.FailureCount,
			RefreshedAt:  st.RefreshedAt,
		}
		if st.LastResult != nil {
			resp.HasSnapshot = len(st.LastResult.PNG) > 0
			resp.Filtered = st.LastResult.Filtered
			resp.CapturedAt = st.LastResult.CapturedAt
			resp.ErrKind = string(st.LastResult.ErrKind)
			resp.ErrMessage = st.LastResult.ErrMessage
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// WidgetSnapshot serves the widget's latest PNG. After a failed pass
// the previous good snapshot is still served; the error rides along in
// headers so the dashboard can badge the tile as stale.
func WidgetSnapshot(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		st, ok := d.Lifecycle.State(id)
		if !ok || st.LastResult == nil || len(st.LastResult.PNG) == 0 {
			writeError(w, http.StatusNotFound, "no snapshot captured yet")
			return
		}

		res := st.LastResult
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Captured-At", res.CapturedAt.Format(time.RFC3339))
		if res.Filtered {
			w.Header().Set("X-Filtered", "true")
		}
		if res.ErrKind != "" {
			w.Header().Set("X-Capture-Error", string(res.ErrKind))
		}
		if _, err := w.Write(res.PNG); err != nil {
			d.Logger.Debug("failed to write snapshot", logger.Error(err))
		}
	}
}
