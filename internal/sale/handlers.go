package sale

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-pos/internal/common"
)

const dateLayout = "2006-01-02"

// Reader is the read side of the sale repository.
type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	List(ctx context.Context, f ListFilter) ([]Record, int, error)
}

// Handler exposes sale history and reports.
type Handler struct {
	Sales          Reader
	Reports        *Reports
	DefaultPerPage int
	MaxPerPage     int
}

// Routes mounts the handlers.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/report", h.Report)
	r.Get("/{saleID}", h.Get)
}

// List handles GET /sales?from=YYYY-MM-DD&to=YYYY-MM-DD&page=&limit=. Both
// dates are inclusive and default to today.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.dateRange(r)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	page, perPage := common.ParsePagination(r, h.defaultPerPage())
	if h.MaxPerPage > 0 && perPage > h.MaxPerPage {
		perPage = h.MaxPerPage
	}
	rows, total, err := h.Sales.List(r.Context(), ListFilter{From: from, To: to, Page: page, PerPage: perPage})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get handles GET /sales/{saleID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "saleID")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid sale id", nil)
		return
	}
	rec, err := h.Sales.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "SALE_NOT_FOUND", "sale not found", nil)
		return
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

// Report handles GET /sales/report?from=&to= with per-method totals. Without
// dates it reports the current store day.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	var (
		rep Report
		err error
	)
	q := r.URL.Query()
	if q.Get("from") == "" && q.Get("to") == "" {
		rep, err = h.Reports.Today(r.Context())
	} else {
		var from, to time.Time
		if from, to, err = h.dateRange(r); err == nil {
			rep, err = h.Reports.Range(r.Context(), from, to)
		}
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rep})
}

func (h *Handler) defaultPerPage() int {
	if h.DefaultPerPage > 0 {
		return h.DefaultPerPage
	}
	return 20
}

func (h *Handler) dateRange(r *http.Request) (time.Time, time.Time, error) {
	todayStart, _ := h.Reports.DayRange(h.Reports.now())
	loc := todayStart.Location()
	parse := func(name string) (time.Time, error) {
		raw := strings.TrimSpace(r.URL.Query().Get(name))
		if raw == "" {
			return todayStart, nil
		}
		t, err := time.ParseInLocation(dateLayout, raw, loc)
		if err != nil {
			return time.Time{}, common.BadRequest(name+" must be YYYY-MM-DD", err)
		}
		return t, nil
	}
	from, err := parse("from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parse("to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, common.BadRequest("to must not be before from", nil)
	}
	return from, to.AddDate(0, 0, 1), nil
}
