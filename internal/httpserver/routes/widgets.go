package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/peekdeck/peekdeck/internal/httpserver/deps"
	"github.com/peekdeck/peekdeck/internal/httpserver/handlers"
	"github.com/peekdeck/peekdeck/internal/httpserver/mw"
)

func init() { Register(registerWidgets) }

func registerWidgets(r chi.Router, d deps.Deps) {
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger), mw.EnforceHost(d.AllowedHosts, d.Logger)).
		Route("/widgets", func(r chi.Router) {
			r.Get("/", handlers.ListWidgets(d))
			r.Post("/", handlers.CreateWidget(d))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handlers.GetWidget(d))
				r.Put("/", handlers.UpdateWidget(d))
				r.Delete("/", handlers.DeleteWidget(d))

				r.Post("/refresh", handlers.RefreshWidget(d))
				r.Get("/state", handlers.WidgetState(d))
				r.Get("/snapshot", handlers.WidgetSnapshot(d))

				r.Put("/credentials", handlers.SetWidgetCredentials(d))
				r.Delete("/credentials", handlers.DeleteWidgetCredentials(d))
			})
		})
}
