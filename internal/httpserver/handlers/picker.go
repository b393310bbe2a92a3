package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/peekdeck/peekdeck/internal/domain"
	"github.com/peekdeck/peekdeck/internal/httpserver/deps"
	"github.com/peekdeck/peekdeck/internal/logger"
	"github.com/peekdeck/peekdeck/internal/picker"
)

// Picker bundles the picking session handlers. Sessions are
// asynchronous: starting one opens a browser window and returns an ID,
// the dashboard polls until the user finishes in the window. Region
// sessions started for a widget apply their selection to that widget on
// collection.
type Picker struct {
	d deps.Deps

	mu      sync.Mutex
	regions map[string]string // session ID -> widget ID
}

func NewPicker(d deps.Deps) *Picker {
	return &Picker{d: d, regions: make(map[string]string)}
}

type startPickerRequest struct {
	WidgetID string `json:"widgetId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
	URL      string `json:"url,omitempty"`
}

type startPickerResponse struct {
	SessionID string `json:"sessionId"`
}

// StartRegion opens the widget's page with the region picker overlay.
func (h *Picker) StartRegion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startPickerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if req.WidgetID == "" {
			writeError(w, http.StatusBadRequest, "widgetId is required")
			return
		}

		widget, err := h.d.Lifecycle.GetWidget(r.Context(), req.WidgetID)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		url := widget.URL
		if req.URL != "" {
			url = req.URL
		}
		partition := h.effectivePartition(r, widget)

		id, err := h.d.Pickers.StartRegion(r.Context(), url, partition)
		if err != nil {
			h.d.Logger.Error("failed to start region picker",
				logger.String("widget_id", widget.ID),
				logger.Error(err))
			writeError(w, http.StatusBadGateway, "could not open picker window")
			return
		}

		h.mu.Lock()
		h.regions[id] = widget.ID
		h.mu.Unlock()

		writeJSON(w, http.StatusAccepted, startPickerResponse{SessionID: id})
	}
}

// StartCredential opens the login page with the field picker overlay.
// Either widgetId or groupId identifies the session partition; for
// groups the URL comes from the body or the group's login URL.
func (h *Picker) StartCredential() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startPickerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		var url, partition string
		switch {
		case req.WidgetID != "":
			widget, err := h.d.Lifecycle.GetWidget(r.Context(), req.WidgetID)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			url = widget.URL
			partition = h.effectivePartition(r, widget)
		case req.GroupID != "":
			group, err := h.d.Lifecycle.GetGroup(r.Context(), req.GroupID)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			url = group.LoginURL
			partition = group.Partition
		default:
			writeError(w, http.StatusBadRequest, "widgetId or groupId is required")
			return
		}
		if req.URL != "" {
			url = req.URL
		}
		if strings.TrimSpace(url) == "" {
			writeError(w, http.StatusBadRequest, "no login page URL available, pass url")
			return
		}

		id, err := h.d.Pickers.StartCredential(r.Context(), url, partition)
		if err != nil {
			h.d.Logger.Error("failed to start credential picker", logger.Error(err))
			writeError(w, http.StatusBadGateway, "could not open picker window")
			return
		}
		writeJSON(w, http.StatusAccepted, startPickerResponse{SessionID: id})
	}
}

type pickerResultResponse struct {
	Done      bool                        `json:"done"`
	Cancelled bool                        `json:"cancelled,omitempty"`
	Selection *domain.Selection           `json:"selection,omitempty"`
	Fields    *domain.LoginFieldSelection `json:"fields,omitempty"`
}

// Result reports a session's outcome. While the user is still picking
// it answers done=false; once finished, a region session's selection is
// applied to its widget before the response goes out.
func (h *Picker) Result() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		res, done, err := h.d.Pickers.Result(id)
		if errors.Is(err, picker.ErrUnknownSession) {
			writeError(w, http.StatusNotFound, "unknown picker session")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !done {
			writeJSON(w, http.StatusOK, pickerResultResponse{Done: false})
			return
		}

		h.mu.Lock()
		widgetID, isRegion := h.regions[id]
		delete(h.regions, id)
		h.mu.Unlock()

		if isRegion && !res.Cancelled && res.Selection != nil {
			h.applySelection(w, r, widgetID, res.Selection)
		}

		writeJSON(w, http.StatusOK, pickerResultResponse{
			Done:      true,
			Cancelled: res.Cancelled,
			Selection: res.Selection,
			Fields:    res.Fields,
		})
	}
}

// Cancel aborts a running session, closing its browser window.
func (h *Picker) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := h.d.Pickers.Cancel(id); errors.Is(err, picker.ErrUnknownSession) {
			writeError(w, http.StatusNotFound, "unknown picker session")
			return
		}
		h.mu.Lock()
		delete(h.regions, id)
		h.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Picker) applySelection(w http.ResponseWriter, r *http.Request, widgetID string, sel *domain.Selection) {
	// Picked selections go through the same validation as API-submitted
	// ones before they are persisted.
	if err := sel.Validate(); err != nil {
		h.d.Logger.Warn("discarding invalid picked selection",
			logger.String("widget_id", widgetID),
			logger.Error(err))
		return
	}
	widget, err := h.d.Lifecycle.GetWidget(r.Context(), widgetID)
	if err != nil {
		h.d.Logger.Warn("picked selection for missing widget",
			logger.String("widget_id", widgetID),
			logger.Error(err))
		return
	}
	widget.Selection = sel
	if _, err := h.d.Lifecycle.UpdateWidget(r.Context(), widget); err != nil {
		h.d.Logger.Error("failed to apply picked selection",
			logger.String("widget_id", widgetID),
			logger.Error(err))
		return
	}
	h.d.Logger.Info("selection applied from picker session",
		logger.String("widget_id", widgetID),
		logger.String("kind", string(sel.Kind)))
}

// effectivePartition resolves the partition a session should run in,
// honoring the widget's credential group when it has one.
func (h *Picker) effectivePartition(r *http.Request, widget *domain.Widget) string {
	if widget.CredentialGroupID == "" {
		return widget.Partition
	}
	group, err := h.d.Lifecycle.GetGroup(r.Context(), widget.CredentialGroupID)
	if err != nil {
		h.d.Logger.Warn("widget references missing group, using own partition",
			logger.String("widget_id", widget.ID),
			logger.String("group_id", widget.CredentialGroupID))
		return widget.Partition
	}
	return widget.EffectivePartition(group)
}
