package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/erazemk/kitstok/internal/auth"
)

type webContextKey string

const webSessionKey webContextKey = "websession"

const cookieName = "token"

// CookieAuthMiddleware resolves the session cookie, rejecting revoked and
// expired tokens, and adds the session to the context.
func (s *Server) CookieAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		session, err := s.Auth.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidSession) {
				s.Logger.Error("failed to check session", "error", err)
			}
			s.clearAuthCookie(w)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), webSessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) setAuthCookie(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    session.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
	})
}

// clearAuthCookie clears the authentication cookie with consistent attributes.
func (s *Server) clearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// GetWebSession retrieves the session from web context.
func GetWebSession(ctx context.Context) *auth.Session {
	session, _ := ctx.Value(webSessionKey).(*auth.Session)
	return session
}
