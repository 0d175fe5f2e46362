package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/erazemk/kitstok/internal/auth"
	"github.com/erazemk/kitstok/internal/db"
	"github.com/erazemk/kitstok/internal/inventory"
	"github.com/erazemk/kitstok/internal/model"
	"github.com/erazemk/kitstok/internal/notify"
	"github.com/erazemk/kitstok/internal/recordstore"
	"github.com/erazemk/kitstok/internal/store"
)

type silentNotifier struct{}

func (silentNotifier) Notify(context.Context, string, string) notify.Result {
	return notify.Result{Outcome: notify.Skipped}
}

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	database := db.NewTestDB(t)

	records := recordstore.New(&store.Datasets{DB: database}, logger)
	inv := inventory.New(records, silentNotifier{}, database, inventory.Config{
		Active:      recordstore.Dataset{Name: "active", Path: "data/kits.csv", Status: model.StatusActive},
		Expired:     recordstore.Dataset{Name: "expired", Path: "data/expired.csv", Status: model.StatusExpired},
		Deleted:     recordstore.Dataset{Name: "deleted", Path: "data/deleted.csv", Status: model.StatusDeleted},
		WarnHorizon: 5,
		Duplicates:  inventory.DuplicatesReject,
		Location:    time.UTC,
		Now:         func() time.Time { return time.Date(2025, time.June, 10, 9, 0, 0, 0, time.UTC) },
	}, logger)
	if _, err := inv.Seed(ctx); err != nil {
		t.Fatal(err)
	}

	hash, err := auth.HashPassword("password")
	if err != nil {
		t.Fatal(err)
	}
	authn, err := auth.NewAuthenticator(ctx, database, "admin", hash, time.Hour, logger)
	if err != nil {
		t.Fatal(err)
	}

	router, err := NewRouter(authn, inv, false, logger)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

// noRedirectClient returns redirects to the caller instead of following them.
func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func login(t *testing.T, server *httptest.Server) *http.Cookie {
	t.Helper()
	resp, err := noRedirectClient().PostForm(server.URL+"/login", url.Values{
		"username": {"admin"},
		"password": {"password"},
	})
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login: expected 303, got %d", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if c.Name == cookieName && c.Value != "" {
			if !c.HttpOnly || c.SameSite != http.SameSiteStrictMode {
				t.Errorf("auth cookie missing attributes: %+v", c)
			}
			return c
		}
	}
	t.Fatal("login did not set the auth cookie")
	return nil
}

func request(t *testing.T, method, target string, cookie *http.Cookie, form url.Values) (*http.Response, string) {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, target, body)
	if err != nil {
		t.Fatal(err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := noRedirectClient().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, string(data)
}

func TestLoginPage(t *testing.T) {
	server := setupTestServer(t)

	resp, body := request(t, "GET", server.URL+"/login", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `name="password"`) {
		t.Error("login page has no password field")
	}

	resp, body = request(t, "POST", server.URL+"/login", nil, url.Values{"username": {"admin"}, "password": {"wrong"}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Hatalı kullanıcı adı veya şifre.") {
		t.Error("bad password: expected error message on page")
	}

	resp, _ = request(t, "POST", server.URL+"/login", nil, url.Values{"username": {"admin"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing password: expected 400, got %d", resp.StatusCode)
	}
}

func TestDashboardRequiresLogin(t *testing.T) {
	server := setupTestServer(t)

	for _, path := range []string{"/", "/archive"} {
		resp, _ := request(t, "GET", server.URL+path, nil, nil)
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
			t.Errorf("GET %s: expected redirect to /login, got %d %s", path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}

	resp, _ := request(t, "GET", server.URL+"/", &http.Cookie{Name: cookieName, Value: "forged"}, nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("forged cookie: expected redirect, got %d", resp.StatusCode)
	}
}

func TestAddAndDeleteKit(t *testing.T) {
	server := setupTestServer(t)
	cookie := login(t, server)

	form := url.Values{
		"lot_number":  {"L-7"},
		"test_name":   {"TSH"},
		"quantity":    {"200"},
		"expiry_date": {"2025-06-13"},
	}
	resp, _ := request(t, "POST", server.URL+"/kits", cookie, form)
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/?ok=added" {
		t.Fatalf("add kit: expected redirect to /?ok=added, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, body := request(t, "GET", server.URL+"/?ok=added", cookie, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", resp.StatusCode)
	}
	for _, want := range []string{"Kit eklendi.", "L-7", "2025-06-13"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}

	// Same key again.
	resp, body = request(t, "POST", server.URL+"/kits", cookie, form)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "zaten bir kayıt var") {
		t.Error("duplicate: expected message on page")
	}

	// Bad quantity keeps the form values.
	bad := url.Values{"lot_number": {"L-8"}, "test_name": {"TSH"}, "quantity": {"many"}, "expiry_date": {"2026-01-01"}}
	resp, body = request(t, "POST", server.URL+"/kits", cookie, bad)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad quantity: expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, `value="L-8"`) {
		t.Error("bad quantity: form values not redisplayed")
	}

	resp, _ = request(t, "POST", server.URL+"/kits/delete", cookie, url.Values{
		"lot_number":  {"L-7"},
		"test_name":   {"TSH"},
		"expiry_date": {"2025-06-13"},
	})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/?ok=deleted" {
		t.Fatalf("delete kit: expected redirect to /?ok=deleted, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, body = request(t, "GET", server.URL+"/archive", cookie, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("archive: expected 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "L-7") {
		t.Error("archive should list the deleted kit")
	}

	resp, _ = request(t, "POST", server.URL+"/kits/delete", cookie, url.Values{"lot_number": {"L-7"}, "test_name": {"TSH"}})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", resp.StatusCode)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	server := setupTestServer(t)
	cookie := login(t, server)

	resp, _ := request(t, "POST", server.URL+"/logout", cookie, url.Values{})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/login" {
		t.Fatalf("logout: expected redirect to /login, got %d", resp.StatusCode)
	}

	// The old cookie value must no longer work.
	resp, _ = request(t, "GET", server.URL+"/", cookie, nil)
	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("expected revoked session to redirect, got %d", resp.StatusCode)
	}
}

func TestStaticAssets(t *testing.T) {
	server := setupTestServer(t)

	resp, body := request(t, "GET", server.URL+"/static/style.css", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body == "" {
		t.Error("empty stylesheet")
	}
}
