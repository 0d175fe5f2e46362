package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/kitstok/internal/blob"
	"github.com/erazemk/kitstok/internal/inventory"
	"github.com/erazemk/kitstok/internal/model"
	"github.com/erazemk/kitstok/internal/recordstore"
)

// kitForm keeps the add form values so a failed submit can be redisplayed.
type kitForm struct {
	LotNumber string
	TestName  string
	Quantity  string
	Expiry    string
}

type dashboardData struct {
	PageData
	Listing     *inventory.Listing
	Catalog     []string
	Form        kitForm
	WarnHorizon int
}

var flashMessages = map[string]string{
	"added":   "Kit eklendi.",
	"deleted": "Kit silindi ve arşive taşındı.",
}

// Dashboard handles GET /. Loading the page runs the expiry sweep.
func (s *Server) Dashboard(w http.ResponseWriter, r *http.Request) {
	s.renderDashboard(w, r, http.StatusOK, kitForm{}, "", flashMessages[r.URL.Query().Get("ok")])
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, status int, form kitForm, errMsg, success string) {
	session := GetWebSession(r.Context())
	test := r.URL.Query().Get("test")

	listing, err := s.Inventory.List(r.Context(), session.Username, test)
	if err != nil {
		s.Logger.Error("failed to list kits", "error", err)
		status = errorStatus(err)
		if errMsg == "" {
			errMsg = userMessage(err)
		}
	}

	s.Templates.Render(w, status, "dashboard.html", &dashboardData{
		PageData:    PageData{Title: "Kit Stok", User: session, Error: errMsg, Success: success},
		Listing:     listing,
		Catalog:     model.TestCatalog,
		Form:        form,
		WarnHorizon: s.Inventory.WarnHorizon(),
	})
}

// KitCreateSubmit handles POST /kits.
func (s *Server) KitCreateSubmit(w http.ResponseWriter, r *http.Request) {
	session := GetWebSession(r.Context())
	form := kitForm{
		LotNumber: strings.TrimSpace(r.FormValue("lot_number")),
		TestName:  r.FormValue("test_name"),
		Quantity:  strings.TrimSpace(r.FormValue("quantity")),
		Expiry:    strings.TrimSpace(r.FormValue("expiry_date")),
	}

	kit := model.Kit{LotNumber: form.LotNumber, TestName: form.TestName}
	var problems []string
	qty, err := strconv.Atoi(form.Quantity)
	if err != nil {
		problems = append(problems, "test sayısı bir tam sayı olmalı")
	}
	kit.Quantity = qty
	if form.Expiry != "" {
		if kit.Expiry, err = model.ParseDate(form.Expiry); err != nil {
			problems = append(problems, "son kullanma tarihi geçersiz")
		}
	}
	if len(problems) > 0 {
		s.renderDashboard(w, r, http.StatusBadRequest, form, "Geçersiz giriş: "+strings.Join(problems, ", ")+".", "")
		return
	}

	if _, err := s.Inventory.Add(r.Context(), session.Username, kit); err != nil {
		s.Logger.Warn("failed to add kit", "user", session.Username, "lot", kit.LotNumber, "error", err)
		s.renderDashboard(w, r, errorStatus(err), form, userMessage(err), "")
		return
	}
	http.Redirect(w, r, "/?ok=added", http.StatusSeeOther)
}

// KitDeleteSubmit handles POST /kits/delete.
func (s *Server) KitDeleteSubmit(w http.ResponseWriter, r *http.Request) {
	session := GetWebSession(r.Context())
	key := model.Key{LotNumber: r.FormValue("lot_number"), TestName: r.FormValue("test_name")}

	if _, err := s.Inventory.Delete(r.Context(), session.Username, key, r.FormValue("expiry_date")); err != nil {
		s.Logger.Warn("failed to delete kit", "user", session.Username, "lot", key.LotNumber, "error", err)
		s.renderDashboard(w, r, errorStatus(err), kitForm{}, userMessage(err), "")
		return
	}
	http.Redirect(w, r, "/?ok=deleted", http.StatusSeeOther)
}

// userMessage turns a workflow error into text for the page.
func userMessage(err error) string {
	switch {
	case errors.Is(err, inventory.ErrValidation):
		return "Geçersiz giriş. Lot numarası, test, pozitif test sayısı ve son kullanma tarihi gerekli."
	case errors.Is(err, inventory.ErrDuplicate):
		return "Bu lot numarası ve test için zaten bir kayıt var."
	case errors.Is(err, inventory.ErrKitNotFound):
		return "Kit bulunamadı. Sayfayı yenileyin."
	case errors.Is(err, blob.ErrConflict):
		return "Veriler başka bir oturumda değiştirildi. Sayfayı yenileyip işlemi tekrarlayın."
	case errors.Is(err, blob.ErrNotFound):
		return "Veri dosyası bulunamadı."
	case errors.Is(err, recordstore.ErrDecode):
		return "Veri dosyası okunamadı."
	default:
		return "Depolama hatası. Lütfen daha sonra tekrar deneyin."
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, inventory.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrDuplicate), errors.Is(err, blob.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, inventory.ErrKitNotFound):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}
