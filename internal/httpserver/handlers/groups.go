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

type groupPayload struct {
	ID        string    `json:"id,omitempty"`
	Name      string    `json:"name"`
	Partition string    `json:"partition,omitempty"`
	LoginURL  string    `json:"loginUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

func groupToPayload(g *domain.CredentialGroup) groupPayload {
	return groupPayload{
		ID:        g.ID,
		Name:      g.Name,
		Partition: g.Partition,
		LoginURL:  g.LoginURL,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
}

func ListGroups(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := d.Lifecycle.ListGroups(r.Context())
		if err != nil {
			d.Logger.Error("failed to list credential groups", logger.Error(err))
			writeStoreError(w, err)
			return
		}
		out := make([]groupPayload, 0, len(groups))
		for _, g := range groups {
			out = append(out, groupToPayload(g))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func CreateGroup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p groupPayload
		if err := decodeJSON(r, &p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
		if strings.TrimSpace(p.Name) == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		created, err := d.Lifecycle.CreateGroup(r.Context(), &domain.CredentialGroup{
			Name:     p.Name,
			LoginURL: p.LoginURL,
		})
		if err != nil {
			d.Logger.Error("failed to create credential group", logger.Error(err))
			writeStoreError(w, err)
			return
		}
		d.Logger.Info("credential group created",
			logger.String("group_id", created.ID),
			logger.String("name", created.Name))
		writeJSON(w, http.StatusCreated, groupToPayload(created))
	}
}

func GetGroup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		group, err := d.Lifecycle.GetGroup(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, groupToPayload(group))
	}
}

// DeleteGroup removes a group and cascades: member widgets are detached
// onto fresh private partitions and the group's shared session is
// destroyed.
func DeleteGroup(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := d.Lifecycle.DeleteGroup(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		d.Logger.Info("credential group deleted", logger.String("group_id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

type credentialsPayload struct {
	Username string                     `json:"username"`
	Password string                     `json:"password"`
	LoginURL string                     `json:"loginUrl,omitempty"`
	Fields   domain.LoginFieldSelection `json:"fields"`
}

func setCredentials(d deps.Deps, ownerID string, w http.ResponseWriter, r *http.Request) {
	var p credentialsPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if p.Username == "" || p.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if !p.Fields.Complete() {
		writeError(w, http.StatusBadRequest, "username and password field selectors are required")
		return
	}
	if err := p.Fields.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := d.Lifecycle.SetCredentials(r.Context(), ownerID, p.Username, p.Password, p.LoginURL, p.Fields); err != nil {
		d.Logger.Error("failed to store credentials",
			logger.String("owner_id", ownerID),
			logger.Error(err))
		writeStoreError(w, err)
		return
	}
	d.Logger.Info("credentials stored", logger.String("owner_id", ownerID))
	w.WriteHeader(http.StatusNoContent)
}

// SetWidgetCredentials stores an encrypted login record for a widget.
// The plaintext exists only inside this request.
func SetWidgetCredentials(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := d.Lifecycle.GetWidget(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		setCredentials(d, id, w, r)
	}
}

func DeleteWidgetCredentials(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := d.Lifecycle.DeleteCredentials(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// SetGroupCredentials stores the shared login record for a group.
func SetGroupCredentials(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := d.Lifecycle.GetGroup(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		setCredentials(d, id, w, r)
	}
}

func DeleteGroupCredentials(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := d.Lifecycle.DeleteCredentials(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
