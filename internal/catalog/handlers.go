package catalog

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-pos/internal/common"
)

// Handler exposes variant lookup for the POS screen.
type Handler struct {
	Store *Store
}

// Routes mounts the lookup endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/variants", h.Search)
	r.Get("/variants/code/{code}", h.ByCode)
	r.Get("/variants/{variantID}", h.ByID)
}

// Search handles GET /variants?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 0)
	rows, err := h.Store.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// ByCode handles GET /variants/code/{code}, the barcode scanner path.
func (h *Handler) ByCode(w http.ResponseWriter, r *http.Request) {
	v, err := h.Store.ByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeLookupError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

// ByID handles GET /variants/{variantID}.
func (h *Handler) ByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "variantID")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid variant id", nil)
		return
	}
	v, err := h.Store.Variant(r.Context(), id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		err = common.NotFound("VARIANT_NOT_FOUND", "variant not found", err)
	}
	common.WriteError(w, err)
}
