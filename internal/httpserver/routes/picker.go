package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/peekdeck/peekdeck/internal/httpserver/deps"
	"github.com/peekdeck/peekdeck/internal/httpserver/handlers"
	"github.com/peekdeck/peekdeck/internal/httpserver/mw"
)

func init() { Register(registerPicker) }

func registerPicker(r chi.Router, d deps.Deps) {
	h := handlers.NewPicker(d)

	// Each session start opens a real browser window, so starts are
	// rate limited per client IP. Polling is cheap and is not.
	rl := mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.PickerRateBurst,
		RefillPerIPPerMin: d.PickerRatePerMinute,
		MaxEntries:        1024,
		SweepInterval:     time.Minute,
		IdleTTL:           15 * time.Minute,
		TrustProxy:        d.TrustProxy,
	})

	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger), mw.EnforceHost(d.AllowedHosts, d.Logger)).
		Route("/picker", func(r chi.Router) {
			r.With(rl).Post("/region", h.StartRegion())
			r.With(rl).Post("/credentials", h.StartCredential())

			r.Get("/sessions/{id}", h.Result())
			r.Delete("/sessions/{id}", h.Cancel())
		})
}
