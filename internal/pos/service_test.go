package pos

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-pos/internal/catalog"
	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/events"
	"github.com/noah-isme/toko-pos/internal/lock"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/payment"
)

func requireMoney(t *testing.T, want string, got interface{ String() string }) {
	t.Helper()
	require.Equal(t, d(want).String(), got.String())
}

func openWith(t *testing.T, h *harness, ref ItemRef, qty int) uuid.UUID {
	t.Helper()
	ctx := cashierCtx()
	v, err := h.svc.Open(ctx)
	require.NoError(t, err)
	_, err = h.svc.AddItem(ctx, v.ID, ref, qty)
	require.NoError(t, err)
	return v.ID
}

func TestOpenRequiresCashier(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Open(context.Background())
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAddItemByIDAndCode(t *testing.T) {
	h := newHarness(t)
	ctx := cashierCtx()
	v, err := h.svc.Open(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{events.TopicPOSSessionOpened}, h.events.topics)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.OpenSessions))

	_, err = h.svc.AddItem(ctx, v.ID, ItemRef{VariantID: shirtID}, 1)
	require.NoError(t, err)
	v, err = h.svc.AddItem(ctx, v.ID, ItemRef{Code: " 7890000000011 "}, 2)
	require.NoError(t, err)
	v, err = h.svc.AddItem(ctx, v.ID, ItemRef{Code: "CAL-42"}, 1)
	require.NoError(t, err)

	require.Len(t, v.Items, 2)
	require.Equal(t, "Camiseta Basica - P / Azul", v.Items[0].DisplayName)
	require.Equal(t, 3, v.Items[0].Quantity)
	require.Equal(t, 4, v.Units)
	requireMoney(t, "299.00", v.Summary.Total)

	_, err = h.svc.AddItem(ctx, v.ID, ItemRef{Code: "missing"}, 1)
	require.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = h.svc.AddItem(ctx, v.ID, ItemRef{}, 1)
	require.Error(t, err)
}

func TestCartEditsAndCustomerDiscount(t *testing.T) {
	h := newHarness(t)
	ctx := cashierCtx()
	id := openWith(t, h, ItemRef{VariantID: shirtID}, 1)
	_, err := h.svc.AddItem(ctx, id, ItemRef{VariantID: jeansID}, 1)
	require.NoError(t, err)

	_, err = h.svc.ApplyCustomerDiscount(ctx, id)
	require.ErrorIs(t, err, ErrCustomerRequired)

	v, err := h.svc.AttachCustomer(ctx, id, anaID)
	require.NoError(t, err)
	require.NotNil(t, v.Customer)
	requireMoney(t, "19.90", v.CustomerDiscount)
	requireMoney(t, "199.00", v.Summary.Total)

	v, err = h.svc.ApplyCustomerDiscount(ctx, id)
	require.NoError(t, err)
	requireMoney(t, "19.90", v.Summary.Discount)
	requireMoney(t, "179.10", v.Summary.Total)

	v, err = h.svc.DetachCustomer(ctx, id)
	require.NoError(t, err)
	require.Nil(t, v.Customer)
	requireMoney(t, "179.10", v.Summary.Total)

	v, err = h.svc.SetItemDiscount(ctx, id, jeansID, d("9"))
	require.NoError(t, err)
	requireMoney(t, "170.10", v.Summary.Total)

	v, err = h.svc.UpdateQuantity(ctx, id, shirtID, 0)
	require.NoError(t, err)
	require.Len(t, v.Items, 1)

	_, err = h.svc.SetItemPrice(ctx, id, jeansID, d("-1"))
	require.Error(t, err)

	v, err = h.svc.Clear(ctx, id)
	require.NoError(t, err)
	require.Empty(t, v.Items)
	requireMoney(t, "0", v.Summary.Total)

	_, err = h.svc.AttachCustomer(ctx, id, uuid.New())
	require.Error(t, err)
}

func TestCartFrozenDuringCheckout(t *testing.T) {
	h := newHarness(t)
	ctx := cashierCtx()
	v, err := h.svc.Open(ctx)
	require.NoError(t, err)

	_, err = h.svc.BeginCheckout(ctx, v.ID, false)
	require.ErrorIs(t, err, ErrEmptyCart)
	_, err = h.svc.AddPayment(ctx, v.ID, cashID, d("10"), 1)
	require.ErrorIs(t, err, ErrCheckoutNotStarted)

	_, err = h.svc.AddItem(ctx, v.ID, ItemRef{VariantID: shirtID}, 1)
	require.NoError(t, err)
	v, err = h.svc.BeginCheckout(ctx, v.ID, false)
	require.NoError(t, err)
	require.NotNil(t, v.Checkout)
	requireMoney(t, "50", v.Checkout.Target)

	_, err = h.svc.BeginCheckout(ctx, v.ID, false)
	require.ErrorIs(t, err, ErrCheckoutInProgress)
	_, err = h.svc.AddItem(ctx, v.ID, ItemRef{VariantID: jeansID}, 1)
	require.ErrorIs(t, err, ErrCheckoutInProgress)
	_, err = h.svc.SetTotalDiscount(ctx, v.ID, d("5"))
	require.ErrorIs(t, err, ErrCheckoutInProgress)
	_, err = h.svc.AttachCustomer(ctx, v.ID, anaID)
	require.ErrorIs(t, err, ErrCheckoutInProgress)

	v, err = h.svc.CancelCheckout(ctx, v.ID)
	require.NoError(t, err)
	require.Nil(t, v.Checkout)
	_, err = h.svc.AddItem(ctx, v.ID, ItemRef{VariantID: jeansID}, 1)
	require.NoError(t, err)
}

func TestSplitPaymentFinalize(t *testing.T) {
	h := newHarness(t)
	ctx := cashierCtx()
	id := openWith(t, h, ItemRef{VariantID: shirtID}, 2)

	_, err := h.svc.BeginCheckout(ctx, id, false)
	require.NoError(t, err)

	res, err := h.svc.AddPayment(ctx, id, cashID, d("40"), 0)
	require.NoError(t, err)
	requireMoney(t, "60", res.Receipt.Remaining)
	require.False(t, res.Session.Checkout.CanFinalize)

	_, err = h.svc.Finalize(ctx, id)
	require.ErrorIs(t, err, payment.ErrSettlementIncomplete)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SalesFinalized.WithLabelValues(obs.ResultIncomplete)))

	res, err = h.svc.PayRemaining(ctx, id, pixID, 0)
	require.NoError(t, err)
	requireMoney(t, "0", res.Receipt.Remaining)
	requireMoney(t, "0.59", res.Receipt.Entry.FeeAmount)
	require.True(t, res.Session.Checkout.CanFinalize)

	rec, err := h.svc.Finalize(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(1), rec.ReceiptNumber)
	require.Equal(t, cashierID, rec.CashierID)
	require.Equal(t, id, rec.SessionID)
	requireMoney(t, "100.00", rec.Total)
	requireMoney(t, "0.59", rec.FeeAmount)
	requireMoney(t, "99.41", rec.NetTotal)
	require.Len(t, rec.Items, 1)
	require.Len(t, rec.Payments, 2)
	require.Equal(t, payment.Cash, rec.Payments[0].MethodType)
	require.Equal(t, payment.Pix, rec.Payments[1].MethodType)

	require.Equal(t, []uuid.UUID{rec.ID}, h.stock.sales)
	require.Contains(t, h.events.topics, events.TopicSaleFinalized)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SalesFinalized.WithLabelValues(obs.ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PaymentEntries.WithLabelValues("cash")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PaymentEntries.WithLabelValues("pix")))
	require.Zero(t, testutil.ToFloat64(h.metrics.OpenSessions))

	_, err = h.svc.Get(ctx, id)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.svc.Finalize(ctx, id)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCashChange(t *testing.T) {
	h := newHarness(t)
	ctx := cashierCtx()
	id := openWith(t, h, ItemRef{VariantID: shirtID}, 1)
	_, err := h.svc.SetItemDiscount(ctx, id, shirtID, d("2.50"))
	require.NoError(t, err)
	_, err = h.svc.BeginCheckout(ctx, id, false)
	require.NoError(t, err)

	res, err := h.svc.AddPayment(ctx, id, cashID, d("50"), 1)
	require.NoError(t, err)
	requireMoney(t, "2.50", res.Receipt.Change)
	requireMoney(t, "47.50", res.Receipt.Entry.Amount)

	rec, err := h.svc.Finalize(ctx, id)
	require.NoError(t, err)
	requireMoney(t, "50.00", rec.CashReceived)
	requireMoney(t, "2.50", rec.Change)
}

func TestCashRoundingOnRequest(t *testing.T) {
	h := newHarness(t)
	ctx := cashierCtx()
	id := openWith(t, h, ItemRef{VariantID: shirtID}, 1)
	_, err := h.svc.SetItemPrice(ctx, id, shirtID, d("100.07"))
	require.NoError(t, err)

	v, err := h.svc.BeginCheckout(ctx, id, false)
	require.NoError(t, err)
	requireMoney(t, "100.07", v.Checkout.Target)
	_, err = h.svc.CancelCheckout(ctx, id)
	require.NoError(t, err)

	v, err = h.svc.BeginCheckout(ctx, id, true)
	require.NoError(t, err)
	requireMoney(t, "100.07", v.Checkout.OriginalTotal)
	requireMoney(t, "100.05", v.Checkout.Target)
}

func TestStoreCreditRules(t *testing.T) {
	h := newHarness(t)
	ctx := cashierCtx()
	id := openWith(t, h, ItemRef{VariantID: jeansID}, 1)

	_, err := h.svc.BeginCheckout(ctx, id, false)
	require.NoError(t, err)
	_, err = h.svc.AddPayment(ctx, id, fiadoID, d("10"), 1)
	require.ErrorIs(t, err, ErrCustomerRequired)
	_, err = h.svc.CancelCheckout(ctx, id)
	require.NoError(t, err)

	_, err = h.svc.AttachCustomer(ctx, id, anaID)
	require.NoError(t, err)
	_, err = h.svc.BeginCheckout(ctx, id, false)
	require.NoError(t, err)

	_, err = h.svc.AddPayment(ctx, id, fiadoID, d("60"), 1)
	require.ErrorIs(t, err, ErrCreditLimitExceeded)
	_, err = h.svc.PayRemaining(ctx, id, fiadoID, 1)
	require.ErrorIs(t, err, ErrCreditLimitExceeded)

	res, err := h.svc.AddPayment(ctx, id, fiadoID, d("50"), 1)
	require.NoError(t, err)
	requireMoney(t, "99", res.Receipt.Remaining)

	_, err = h.svc.AddPayment(ctx, id, fiadoID, d("0.01"), 1)
	require.ErrorIs(t, err, ErrCreditLimitExceeded)

	res, err = h.svc.PayRemaining(ctx, id, creditID, 3)
	require.NoError(t, err)
	require.Equal(t, 3, res.Receipt.Entry.Installments)

	rec, err := h.svc.Finalize(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, rec.CustomerID)
	require.Equal(t, anaID, *rec.CustomerID)
}

func TestRemovePayment(t *testing.T) {
	h := newHarness(t)
	ctx := cashierCtx()
	id := openWith(t, h, ItemRef{VariantID: shirtID}, 1)
	_, err := h.svc.BeginCheckout(ctx, id, false)
	require.NoError(t, err)
	_, err = h.svc.AddPayment(ctx, id, pixID, d("20"), 1)
	require.NoError(t, err)

	_, err = h.svc.AddPayment(ctx, id, uuid.New(), d("1"), 1)
	require.ErrorIs(t, err, payment.ErrMethodNotFound)

	v, err := h.svc.RemovePayment(ctx, id, 0)
	require.NoError(t, err)
	require.Empty(t, v.Checkout.Entries)
	requireMoney(t, "50", v.Checkout.Remaining)
}

func TestFinalizeRetriesAfterPersistenceFailure(t *testing.T) {
	h := newHarness(t)
	h.sales.failures = 1
	ctx := cashierCtx()
	id := openWith(t, h, ItemRef{VariantID: shirtID}, 1)
	_, err := h.svc.BeginCheckout(ctx, id, false)
	require.NoError(t, err)
	_, err = h.svc.PayRemaining(ctx, id, cashID, 1)
	require.NoError(t, err)

	_, err = h.svc.Finalize(ctx, id)
	require.ErrorContains(t, err, "connection reset")
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SalesFinalized.WithLabelValues(obs.ResultError)))
	require.Empty(t, h.stock.sales)

	_, err = h.svc.CancelCheckout(ctx, id)
	require.ErrorIs(t, err, payment.ErrSettled)

	rec, err := h.svc.Finalize(ctx, id)
	require.NoError(t, err)
	require.Len(t, h.sales.records, 1)
	requireMoney(t, "50.00", rec.Total)
}

func TestFinalizeBusyLock(t *testing.T) {
	h := newHarness(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	h.svc.Locker = lock.Locker{R: rdb, RetryBackoff: 5 * time.Millisecond, MaxWait: 30 * time.Millisecond}

	ctx := cashierCtx()
	id := openWith(t, h, ItemRef{VariantID: shirtID}, 1)
	_, err := h.svc.BeginCheckout(ctx, id, false)
	require.NoError(t, err)
	_, err = h.svc.PayRemaining(ctx, id, pixID, 1)
	require.NoError(t, err)

	require.NoError(t, mr.Set(lock.SessionKey(id), "other-instance"))
	_, err = h.svc.Finalize(ctx, id)
	require.ErrorIs(t, err, lock.ErrBusy)
	require.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SalesFinalized.WithLabelValues(obs.ResultBusy)))

	mr.Del(lock.SessionKey(id))
	_, err = h.svc.Finalize(ctx, id)
	require.NoError(t, err)
	require.False(t, mr.Exists(lock.SessionKey(id)))
}

func TestSessionsAreScopedToCashier(t *testing.T) {
	h := newHarness(t)
	id := openWith(t, h, ItemRef{VariantID: shirtID}, 1)

	other := common.WithCashierID(context.Background(), "cashier-2")
	_, err := h.svc.Get(other, id)
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.ErrorIs(t, h.svc.Discard(other, id), ErrSessionNotFound)

	require.NoError(t, h.svc.Discard(cashierCtx(), id))
	require.Contains(t, h.events.topics, events.TopicPOSSessionDiscarded)
	_, err = h.svc.Get(cashierCtx(), id)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	h := newHarness(t)
	h.sales.failures = 1
	ctx := cashierCtx()
	idle := openWith(t, h, ItemRef{VariantID: shirtID}, 1)

	unsaved := openWith(t, h, ItemRef{VariantID: shirtID}, 1)
	_, err := h.svc.BeginCheckout(ctx, unsaved, false)
	require.NoError(t, err)
	_, err = h.svc.PayRemaining(ctx, unsaved, cashID, 1)
	require.NoError(t, err)
	_, err = h.svc.Finalize(ctx, unsaved)
	require.Error(t, err)

	*h.clock = testNow.Add(90 * time.Minute)
	active := openWith(t, h, ItemRef{VariantID: jeansID}, 1)

	*h.clock = testNow.Add(150 * time.Minute)
	require.Equal(t, 1, h.svc.Sweep())

	_, err = h.svc.Get(ctx, idle)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = h.svc.Get(ctx, active)
	require.NoError(t, err)
	require.Equal(t, 2, h.svc.Registry.Len())
	require.Equal(t, 2.0, testutil.ToFloat64(h.metrics.OpenSessions))

	// a paid sale whose persistence failed outlives the idle TTL and can
	// still be finalized
	rec, err := h.svc.Finalize(ctx, unsaved)
	require.NoError(t, err)
	requireMoney(t, "50.00", rec.Total)
	require.Len(t, h.sales.records, 1)
}

func TestInstallmentOptions(t *testing.T) {
	h := newHarness(t)
	quotes, err := h.svc.InstallmentOptions(context.Background(), creditID, d("300"))
	require.NoError(t, err)
	require.Len(t, quotes, 6)
	require.Equal(t, 1, quotes[0].Installments)
	requireMoney(t, "300", quotes[0].TotalWithInterest)

	_, err = h.svc.InstallmentOptions(context.Background(), uuid.New(), d("300"))
	require.ErrorIs(t, err, payment.ErrMethodNotFound)
}
