package sale_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pos/internal/sale"
)

type stubReader struct {
	records []sale.Record
	filter  sale.ListFilter
}

func (s *stubReader) Get(_ context.Context, id uuid.UUID) (sale.Record, error) {
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return sale.Record{}, fmt.Errorf("%s: %w", id, sale.ErrNotFound)
}

func (s *stubReader) List(_ context.Context, f sale.ListFilter) ([]sale.Record, int, error) {
	s.filter = f
	return s.records, len(s.records), nil
}

func newRouter(t *testing.T) (*chi.Mux, *stubReader, *stubSummarizer) {
	t.Helper()
	reader := &stubReader{records: []sale.Record{{ID: uuid.New(), ReceiptNumber: 1, Total: money("47.50")}}}
	summarizer := &stubSummarizer{}
	h := &sale.Handler{Sales: reader, Reports: newReports(t, summarizer), DefaultPerPage: 10, MaxPerPage: 50}
	r := chi.NewRouter()
	r.Route("/sales", h.Routes)
	return r, reader, summarizer
}

func TestListDefaultsToToday(t *testing.T) {
	r, reader, _ := newRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/?limit=500", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), reader.filter.From)
	require.Equal(t, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC), reader.filter.To)
	require.Equal(t, 1, reader.filter.Page)
	require.Equal(t, 50, reader.filter.PerPage)

	var body struct {
		Data       []sale.Record `json:"data"`
		Pagination struct {
			TotalItems int `json:"total_items"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Equal(t, 1, body.Pagination.TotalItems)
}

func TestListInclusiveDates(t *testing.T) {
	r, reader, _ := newRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/?from=2026-10-01&to=2026-10-03&page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), reader.filter.From)
	require.Equal(t, time.Date(2026, 10, 4, 0, 0, 0, 0, time.UTC), reader.filter.To)
	require.Equal(t, 2, reader.filter.Page)
	require.Equal(t, 10, reader.filter.PerPage)
}

func TestListRejectsBadDates(t *testing.T) {
	r, _, _ := newRouter(t)
	for _, q := range []string{"from=yesterday", "from=2026-10-05&to=2026-10-01"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/?"+q, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, q)
		require.Contains(t, rec.Body.String(), "BAD_REQUEST")
	}
}

func TestGetSale(t *testing.T) {
	r, reader, _ := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/"+reader.records[0].ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/123", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportEndpoint(t *testing.T) {
	r, _, summarizer := newRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/report?from=2026-10-01&to=2026-10-01", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, summarizer.calls)
	require.Equal(t, time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC), summarizer.to)

	var body struct {
		Data sale.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Data.SalesCount)
}

func TestReportDefaultsToToday(t *testing.T) {
	r, _, summarizer := newRouter(t)
	for range 2 {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sales/report", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	// The open day is never served from cache.
	require.Equal(t, 2, summarizer.calls)
	require.Equal(t, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC), summarizer.from)
}
