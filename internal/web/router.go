package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/kitstok/internal/auth"
	"github.com/erazemk/kitstok/internal/inventory"
	webembed "github.com/erazemk/kitstok/web"
)

// NewRouter creates the web page router with all page routes registered.
func NewRouter(authn *auth.Authenticator, inv *inventory.Service, secureCookies bool, logger *slog.Logger) (http.Handler, error) {
	logger = logger.With(slog.String("component", "web"))
	templates, err := LoadTemplates(logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Auth:          authn,
		Inventory:     inv,
		Templates:     templates,
		SecureCookies: secureCookies,
		Logger:        logger,
	}

	r := chi.NewRouter()

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(webembed.StaticFS()))))

	r.Get("/login", s.LoginPage)
	r.Post("/login", s.LoginSubmit)
	r.Post("/logout", s.Logout)

	r.Group(func(r chi.Router) {
		r.Use(s.CookieAuthMiddleware)
		r.Get("/", s.Dashboard)
		r.Post("/kits", s.KitCreateSubmit)
		r.Post("/kits/delete", s.KitDeleteSubmit)
		r.Get("/archive", s.ArchivePage)
	})

	return r, nil
}
