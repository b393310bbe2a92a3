package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/peekdeck/peekdeck/internal/httpserver/deps"
	"github.com/peekdeck/peekdeck/internal/httpserver/handlers"
	"github.com/peekdeck/peekdeck/internal/httpserver/mw"
)

func init() { Register(registerGroups) }

func registerGroups(r chi.Router, d deps.Deps) {
	r.With(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger), mw.EnforceHost(d.AllowedHosts, d.Logger)).
		Route("/groups", func(r chi.Router) {
			r.Get("/", handlers.ListGroups(d))
			r.Post("/", handlers.CreateGroup(d))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handlers.GetGroup(d))
				r.Delete("/", handlers.DeleteGroup(d))

				r.Put("/credentials", handlers.SetGroupCredentials(d))
				r.Delete("/credentials", handlers.DeleteGroupCredentials(d))
			})
		})
}
