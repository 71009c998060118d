package pos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/catalog"
	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/customer"
	"github.com/noah-isme/toko-pos/internal/events"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/payment"
	"github.com/noah-isme/toko-pos/internal/sale"
)

const cashierID = "cashier-1"

var (
	shirtID  = uuid.MustParse("6f1f0c1e-0000-4000-8000-000000000001")
	jeansID  = uuid.MustParse("6f1f0c1e-0000-4000-8000-000000000002")
	cashID   = uuid.MustParse("7a000000-0000-4000-8000-000000000001")
	pixID    = uuid.MustParse("7a000000-0000-4000-8000-000000000002")
	creditID = uuid.MustParse("7a000000-0000-4000-8000-000000000003")
	fiadoID  = uuid.MustParse("7a000000-0000-4000-8000-000000000004")
	anaID    = uuid.MustParse("8b000000-0000-4000-8000-000000000001")

	testNow = time.Date(2026, 10, 15, 14, 30, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cashierCtx() context.Context {
	return common.WithCashierID(context.Background(), cashierID)
}

type fakeCatalog struct {
	variants []catalog.Variant
}

func (f fakeCatalog) Variant(_ context.Context, id uuid.UUID) (catalog.Variant, error) {
	for _, v := range f.variants {
		if v.ID == id {
			return v, nil
		}
	}
	return catalog.Variant{}, fmt.Errorf("variant %s: %w", id, catalog.ErrNotFound)
}

func (f fakeCatalog) ByCode(_ context.Context, code string) (catalog.Variant, error) {
	for _, v := range f.variants {
		if v.SKU == code || v.EAN == code {
			return v, nil
		}
	}
	return catalog.Variant{}, fmt.Errorf("code %s: %w", code, catalog.ErrNotFound)
}

type fakeMethods struct {
	methods []payment.Method
	err     error
}

func (f fakeMethods) List(context.Context) ([]payment.Method, error) {
	return f.methods, f.err
}

type fakeCustomers map[uuid.UUID]customer.Customer

func (f fakeCustomers) Get(_ context.Context, id uuid.UUID) (customer.Customer, error) {
	c, ok := f[id]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	return c, nil
}

type fakeSales struct {
	mu       sync.Mutex
	failures int
	records  []sale.Record
}

func (f *fakeSales) Create(_ context.Context, rec sale.Record) (sale.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return sale.Record{}, errors.New("connection reset")
	}
	rec.ID = uuid.New()
	rec.ReceiptNumber = int64(len(f.records) + 1)
	rec.CreatedAt = testNow
	f.records = append(f.records, rec)
	return rec, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	topics []string
}

func (f *fakeEvents) Emit(_ context.Context, topic string, aggregateID uuid.UUID, _ any) (events.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

type fakeStock struct {
	mu    sync.Mutex
	sales []uuid.UUID
	err   error
}

func (f *fakeStock) Enqueue(_ context.Context, rec sale.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sales = append(f.sales, rec.ID)
	return nil
}

func testMethods() []payment.Method {
	return []payment.Method{
		{ID: cashID, Name: "Dinheiro", Type: payment.Cash, MaxInstallments: 1, Active: true},
		{ID: pixID, Name: "PIX", Type: payment.Pix, FeePercentage: d("0.99"), MaxInstallments: 1, Active: true},
		{ID: creditID, Name: "Cartao de Credito", Type: payment.CreditCard, FeePercentage: d("3"), InterestRate: d("2"), MaxInstallments: 6, Active: true},
		{ID: fiadoID, Name: "Fiado", Type: payment.StoreCredit, MaxInstallments: 1, Active: true},
	}
}

type harness struct {
	svc     *Service
	sales   *fakeSales
	events  *fakeEvents
	stock   *fakeStock
	metrics *obs.POSMetrics
	clock   *time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	now := testNow
	h := &harness{
		sales:   &fakeSales{},
		events:  &fakeEvents{},
		stock:   &fakeStock{},
		metrics: obs.NewPOSMetrics("pos", prometheus.NewRegistry()),
		clock:   &now,
	}
	h.svc = &Service{
		Registry: NewRegistry(2*time.Hour, h.metrics),
		Catalog: fakeCatalog{variants: []catalog.Variant{
			{ID: shirtID, ProductName: "Camiseta Basica", SKU: "CAM-P-AZ", EAN: "7890000000011", Size: "P", Color: "Azul", Price: d("50.00")},
			{ID: jeansID, ProductName: "Calca Jeans", SKU: "CAL-42", Size: "42", Price: d("149.00")},
		}},
		Methods: fakeMethods{methods: testMethods()},
		Customers: fakeCustomers{
			anaID: {ID: anaID, Name: "Ana", DiscountPercentage: d("10"), CreditLimit: d("50")},
		},
		Sales:        h.sales,
		Events:       h.events,
		Stock:        h.stock,
		Metrics:      h.metrics,
		Logger:       zerolog.Nop(),
		RoundingStep: d("0.05"),
		Now:          func() time.Time { return *h.clock },
	}
	return h
}
