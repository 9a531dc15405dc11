package delivery

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the JSON API over the login flows of deps.
func NewRouter(deps AppDependencies) http.Handler {
	r := chi.NewRouter()

	h := &HTTPEndpoint{
		app:   deps,
		flows: newFlowRegistry(deps.FlowTTL()),
	}

	// --- Global Middleware ---
	r.Use(middleware.RequestID)
	r.Use(requestLogger(deps.Logger()))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthHandler)

	// --- Login Flow Routes ---
	r.Post("/login", h.createFlowHandler)
	r.Route("/login/{flowID}", func(r chi.Router) {
		r.Get("/", h.getFlowHandler)
		r.Delete("/", h.deleteFlowHandler)
		r.Put("/fields/{field}", h.setFieldHandler)
		r.Post("/submit", h.submitHandler)
		r.Delete("/error", h.dismissErrorHandler)

		r.Put("/mfa/code", h.setCodeHandler)
		r.Post("/mfa/submit", h.submitCodeHandler)
		r.Delete("/mfa/error", h.dismissCodeErrorHandler)
	})

	return r
}
