package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erazemk/kitstok/internal/auth"
)

// LoginPage handles GET /login.
func (s *Server) LoginPage(w http.ResponseWriter, r *http.Request) {
	s.Templates.Render(w, http.StatusOK, "login.html", &PageData{Title: "Giriş"})
}

// LoginSubmit handles POST /login.
func (s *Server) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		s.Templates.Render(w, http.StatusBadRequest, "login.html", &PageData{
			Title: "Giriş",
			Error: "Kullanıcı adı ve şifre girin.",
		})
		return
	}

	session, err := s.Auth.Login(r.Context(), username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		s.Templates.Render(w, http.StatusUnauthorized, "login.html", &PageData{
			Title: "Giriş",
			Error: "Hatalı kullanıcı adı veya şifre.",
		})
		return
	}
	if err != nil {
		s.Logger.Error("login failed", "error", err)
		s.Templates.Render(w, http.StatusInternalServerError, "login.html", &PageData{
			Title: "Giriş",
			Error: "Giriş sırasında bir hata oluştu.",
		})
		return
	}

	s.setAuthCookie(w, session)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout handles POST /logout.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(cookieName); err == nil && cookie.Value != "" {
		if session, err := s.Auth.Authenticate(r.Context(), cookie.Value); err == nil {
			if err := s.Auth.Logout(r.Context(), session); err != nil {
				s.Logger.Error("failed to revoke session", "error", err)
			}
		}
	}
	s.clearAuthCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
