package web

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/erazemk/kitstok/internal/auth"
	"github.com/erazemk/kitstok/internal/inventory"
	"github.com/erazemk/kitstok/internal/model"
	"github.com/erazemk/kitstok/internal/notify"
	webembed "github.com/erazemk/kitstok/web"
)

// Templates holds parsed HTML templates.
type Templates struct {
	templates map[string]*template.Template
	logger    *slog.Logger
}

// FuncMap returns the template function map.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return model.FormatDate(t)
		},
		"datetime": func(t time.Time) string {
			return t.Local().Format("2006-01-02 15:04")
		},
		"daysLabel": func(days int) string {
			switch {
			case days < 0:
				return fmt.Sprintf("%d gün önce doldu", -days)
			case days == 0:
				return "bugün"
			default:
				return fmt.Sprintf("%d gün", days)
			}
		},
		"statusName": func(s model.Status) string {
			switch s {
			case model.StatusActive:
				return "Aktif"
			case model.StatusExpired:
				return "Süresi dolmuş"
			case model.StatusDeleted:
				return "Silinmiş"
			default:
				return string(s)
			}
		},
		"outcomeName": func(o string) string {
			switch notify.Outcome(o) {
			case notify.Delivered:
				return "Gönderildi"
			case notify.Skipped:
				return "Atlandı"
			case notify.Failed:
				return "Başarısız"
			default:
				return o
			}
		},
	}
}

var pages = []string{
	"login.html",
	"dashboard.html",
	"archive.html",
}

// LoadTemplates parses all page templates with the layout.
func LoadTemplates(logger *slog.Logger) (*Templates, error) {
	tfs := webembed.TemplatesFS()

	layoutBytes, err := fs.ReadFile(tfs, "layout.html")
	if err != nil {
		return nil, fmt.Errorf("reading layout template: %w", err)
	}

	ts := &Templates{templates: make(map[string]*template.Template), logger: logger}

	for _, page := range pages {
		pageBytes, err := fs.ReadFile(tfs, page)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", page, err)
		}

		tmpl := template.New(page).Funcs(FuncMap())
		tmpl, err = tmpl.Parse(string(layoutBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing layout for %s: %w", page, err)
		}
		tmpl, err = tmpl.Parse(string(pageBytes))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}

		ts.templates[page] = tmpl
	}

	return ts, nil
}

// Render renders a template with the given data and status code.
func (ts *Templates) Render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := ts.templates[name]
	if !ok {
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		ts.logger.Error("failed to render template", "template", name, "error", err)
	}
}

// PageData is the base data passed to all templates.
type PageData struct {
	Title   string
	User    *auth.Session
	Error   string
	Success string
}

// Server holds all dependencies for page handlers.
type Server struct {
	Auth          *auth.Authenticator
	Inventory     *inventory.Service
	Templates     *Templates
	SecureCookies bool
	Logger        *slog.Logger
}
