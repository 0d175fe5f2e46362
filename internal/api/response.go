package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/kitstok/internal/blob"
	"github.com/erazemk/kitstok/internal/inventory"
	"github.com/erazemk/kitstok/internal/recordstore"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// writeError maps a workflow error to a status code and message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, inventory.ErrValidation):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, inventory.ErrDuplicate):
		jsonError(w, http.StatusConflict, err.Error())
	case errors.Is(err, inventory.ErrKitNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, blob.ErrConflict):
		jsonError(w, http.StatusConflict, "dataset changed since it was read; reload and retry")
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, recordstore.ErrDecode):
		logger.Error("dataset unavailable", "error", err)
		jsonError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("store request failed", "error", err)
		jsonError(w, http.StatusBadGateway, "record store unavailable")
	}
}
