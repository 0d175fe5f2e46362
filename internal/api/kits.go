package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/erazemk/kitstok/internal/inventory"
	"github.com/erazemk/kitstok/internal/model"
)

// KitsHandler handles kit inventory endpoints.
type KitsHandler struct {
	Inventory *inventory.Service
	Logger    *slog.Logger
}

type kitResponse struct {
	LotNumber  string       `json:"lot_number"`
	TestName   string       `json:"test_name"`
	Quantity   int          `json:"quantity"`
	ExpiryDate string       `json:"expiry_date"`
	AlertSent  bool         `json:"alert_sent"`
	Status     model.Status `json:"status"`
	DaysLeft   *int         `json:"days_left,omitempty"`
	Expiring   bool         `json:"expiring,omitempty"`
}

func newKitResponse(k model.Kit) kitResponse {
	return kitResponse{
		LotNumber:  k.LotNumber,
		TestName:   k.TestName,
		Quantity:   k.Quantity,
		ExpiryDate: k.ExpiryText(),
		AlertSent:  k.AlertSent,
		Status:     k.Status,
	}
}

func newKitResponses(kits []model.Kit) []kitResponse {
	out := make([]kitResponse, 0, len(kits))
	for _, k := range kits {
		out = append(out, newKitResponse(k))
	}
	return out
}

type alertedResponse struct {
	kitResponse
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}

type reportResponse struct {
	Today   string            `json:"today"`
	Alerted []alertedResponse `json:"alerted"`
	Expired []kitResponse     `json:"expired"`
}

func newReportResponse(r *inventory.SweepReport) reportResponse {
	resp := reportResponse{
		Today:   model.FormatDate(r.Today),
		Alerted: make([]alertedResponse, 0, len(r.Alerted)),
		Expired: newKitResponses(r.Expired),
	}
	for _, a := range r.Alerted {
		kr := newKitResponse(a.Kit)
		days := a.DaysLeft
		kr.DaysLeft = &days
		kr.Expiring = true
		resp.Alerted = append(resp.Alerted, alertedResponse{
			kitResponse: kr,
			Outcome:     string(a.Result.Outcome),
			Reason:      a.Result.Reason,
		})
	}
	return resp
}

type listResponse struct {
	Kits   []kitResponse  `json:"kits"`
	Total  int            `json:"total"`
	Test   string         `json:"test,omitempty"`
	Report reportResponse `json:"sweep"`
}

type createKitRequest struct {
	LotNumber  string `json:"lot_number"`
	TestName   string `json:"test_name"`
	Quantity   int    `json:"quantity"`
	ExpiryDate string `json:"expiry_date"`
}

// Catalog handles GET /api/catalog.
func (h *KitsHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string][]string{"tests": model.TestCatalog})
}

// List handles GET /api/kits.
func (h *KitsHandler) List(w http.ResponseWriter, r *http.Request) {
	test := strings.TrimSpace(r.URL.Query().Get("test"))
	if test != "" && !model.IsCatalogTest(test) {
		jsonError(w, http.StatusBadRequest, "unknown test")
		return
	}

	listing, err := h.Inventory.List(r.Context(), actor(r), test)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}

	resp := listResponse{
		Kits:   make([]kitResponse, 0, len(listing.Kits)),
		Total:  listing.Total,
		Test:   listing.Test,
		Report: newReportResponse(listing.Report),
	}
	for _, v := range listing.Kits {
		kr := newKitResponse(v.Kit)
		if v.Dated {
			days := v.DaysLeft
			kr.DaysLeft = &days
			kr.Expiring = v.Expiring
		}
		resp.Kits = append(resp.Kits, kr)
	}
	jsonResponse(w, http.StatusOK, resp)
}

// Create handles POST /api/kits.
func (h *KitsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKitRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	expiry, err := model.ParseDate(req.ExpiryDate)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid expiry_date, expected YYYY-MM-DD")
		return
	}

	kit := model.Kit{
		LotNumber: strings.TrimSpace(req.LotNumber),
		TestName:  strings.TrimSpace(req.TestName),
		Quantity:  req.Quantity,
		Expiry:    expiry,
		Status:    model.StatusActive,
	}

	report, err := h.Inventory.Add(r.Context(), actor(r), kit)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}

	jsonResponse(w, http.StatusCreated, map[string]any{
		"kit":   newKitResponse(kit),
		"sweep": newReportResponse(report),
	})
}

// Delete handles DELETE /api/kits?lot=&test=&expiry=.
func (h *KitsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := model.Key{
		LotNumber: strings.TrimSpace(q.Get("lot")),
		TestName:  strings.TrimSpace(q.Get("test")),
	}
	if key.LotNumber == "" || key.TestName == "" {
		jsonError(w, http.StatusBadRequest, "lot and test are required")
		return
	}

	report, err := h.Inventory.Delete(r.Context(), actor(r), key, strings.TrimSpace(q.Get("expiry")))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{
		"deleted": key.String(),
		"sweep":   newReportResponse(report),
	})
}

// Expired handles GET /api/kits/expired.
func (h *KitsHandler) Expired(w http.ResponseWriter, r *http.Request) {
	kits, err := h.Inventory.Expired(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, newKitResponses(kits))
}

// Deleted handles GET /api/kits/deleted.
func (h *KitsHandler) Deleted(w http.ResponseWriter, r *http.Request) {
	kits, err := h.Inventory.Deleted(r.Context())
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, newKitResponses(kits))
}

// Sweep handles POST /api/sweep.
func (h *KitsHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.Inventory.Sweep(r.Context(), actor(r))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, newReportResponse(report))
}

// Movements handles GET /api/movements.
func (h *KitsHandler) Movements(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	movements, err := h.Inventory.Movements(r.Context(), limit)
	if err != nil {
		h.Logger.Error("listing movements", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list movements")
		return
	}
	jsonResponse(w, http.StatusOK, movements)
}

// Alerts handles GET /api/alerts.
func (h *KitsHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.Inventory.Alerts(r.Context(), 100)
	if err != nil {
		h.Logger.Error("listing alerts", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	jsonResponse(w, http.StatusOK, alerts)
}

// Health handles GET /healthz.
func Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func actor(r *http.Request) string {
	if s := GetSession(r.Context()); s != nil {
		return s.Username
	}
	return ""
}
