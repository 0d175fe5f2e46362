package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/erazemk/kitstok/internal/auth"
	"github.com/erazemk/kitstok/internal/inventory"
)

// NewRouter creates the API router with all endpoints registered. Routes are
// relative to the /api mount point.
func NewRouter(authn *auth.Authenticator, inv *inventory.Service, logger *slog.Logger) http.Handler {
	logger = logger.With(slog.String("component", "api"))
	authHandler := &AuthHandler{Auth: authn, Logger: logger}
	kitsHandler := &KitsHandler{Inventory: inv, Logger: logger}

	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Public: login.
	r.Post("/auth/login", authHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(authn))

		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/catalog", kitsHandler.Catalog)

		r.Get("/kits", kitsHandler.List)
		r.Post("/kits", kitsHandler.Create)
		r.Delete("/kits", kitsHandler.Delete)
		r.Get("/kits/expired", kitsHandler.Expired)
		r.Get("/kits/deleted", kitsHandler.Deleted)

		r.Post("/sweep", kitsHandler.Sweep)
		r.Get("/movements", kitsHandler.Movements)
		r.Get("/alerts", kitsHandler.Alerts)
	})

	return r
}

// NewRootHandler combines the API, health, metrics and page routers behind
// the shared request id, logging and metrics middleware.
func NewRootHandler(apiRouter, pages http.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID, RequestLogger(logger.With(slog.String("component", "http"))), Metrics)

	r.Get("/healthz", Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/api", apiRouter)
	r.Mount("/", pages)
	return r
}
