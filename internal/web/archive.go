package web

import (
	"net/http"

	"github.com/erazemk/kitstok/internal/model"
)

const archiveLimit = 100

// ArchivePage handles GET /archive.
func (s *Server) ArchivePage(w http.ResponseWriter, r *http.Request) {
	session := GetWebSession(r.Context())
	ctx := r.Context()
	data := &struct {
		PageData
		Expired   []model.Kit
		Deleted   []model.Kit
		Movements []model.Movement
		Alerts    []model.Alert
	}{
		PageData: PageData{Title: "Arşiv", User: session},
	}

	var err error
	if data.Expired, err = s.Inventory.Expired(ctx); err != nil {
		s.Logger.Error("failed to load expired kits", "error", err)
		data.Error = userMessage(err)
	}
	if data.Deleted, err = s.Inventory.Deleted(ctx); err != nil {
		s.Logger.Error("failed to load deleted kits", "error", err)
		data.Error = userMessage(err)
	}
	if data.Movements, err = s.Inventory.Movements(ctx, archiveLimit); err != nil {
		s.Logger.Error("failed to list movements", "error", err)
	}
	if data.Alerts, err = s.Inventory.Alerts(ctx, archiveLimit); err != nil {
		s.Logger.Error("failed to list alerts", "error", err)
	}

	s.Templates.Render(w, http.StatusOK, "archive.html", data)
}
