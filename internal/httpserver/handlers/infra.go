package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/peekdeck/peekdeck/internal/httpserver/deps"
)

type componentStatus struct {
	OK            bool   `json:"ok"`
	WidgetsLoaded *int   `json:"widgets_loaded,omitempty"`
	Mode          string `json:"mode,omitempty"`
	Impact        string `json:"impact,omitempty"`
	Error         string `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		widgetCount := d.MemoryIndex.Count()

		seedMode := "disabled"
		if d.SeedFile != "" {
			seedMode = "enabled"
		}

		components := map[string]componentStatus{
			"widgets": {
				OK:            true,
				WidgetsLoaded: &widgetCount,
			},
			"redis": checkRedis(d),
			"seedfile": {
				OK:   true,
				Mode: seedMode,
			},
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Status:     overallStatus(components),
			Components: components,
		})
	}
}

func overallStatus(components map[string]componentStatus) string {
	// Redis down means no widget definitions can be read or written.
	if redis, exists := components["redis"]; exists && !redis.OK {
		return "critical"
	}
	return "ok"
}

func checkRedis(d deps.Deps) componentStatus {
	if d.RedisClient == nil {
		return componentStatus{
			OK:     false,
			Mode:   "down",
			Impact: "widget-storage-unavailable",
			Error:  "client not initialized",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := d.RedisClient.Ping(ctx).Err()
	if err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "down",
			Impact: "widget-storage-unavailable",
			Error:  "timeout",
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "none",
		Error:  "none",
	}
}
