package pos

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/catalog"
	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/customer"
	"github.com/noah-isme/toko-pos/internal/events"
	"github.com/noah-isme/toko-pos/internal/lock"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/payment"
	"github.com/noah-isme/toko-pos/internal/pricing"
	"github.com/noah-isme/toko-pos/internal/sale"
)

var (
	// ErrSessionNotFound is returned for unknown, closed or foreign sessions.
	ErrSessionNotFound = errors.New("pos session not found")
	// ErrCheckoutInProgress rejects cart changes while a settlement is open.
	ErrCheckoutInProgress = errors.New("checkout in progress")
	// ErrCheckoutNotStarted rejects payment operations before BeginCheckout.
	ErrCheckoutNotStarted = errors.New("checkout not started")
	// ErrEmptyCart rejects checkout of a cart with no lines.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrCustomerRequired is returned when an operation needs an attached customer.
	ErrCustomerRequired = errors.New("customer required")
	// ErrCreditLimitExceeded rejects store credit above the customer's limit.
	ErrCreditLimitExceeded = errors.New("store credit limit exceeded")
	// ErrUnauthenticated is returned when the context carries no cashier.
	ErrUnauthenticated = errors.New("cashier not authenticated")
)

// VariantLookup resolves sellable variants.
type VariantLookup interface {
	Variant(ctx context.Context, id uuid.UUID) (catalog.Variant, error)
	ByCode(ctx context.Context, code string) (catalog.Variant, error)
}

// MethodLister lists the active payment method catalog.
type MethodLister interface {
	List(ctx context.Context) ([]payment.Method, error)
}

// SaleWriter persists finalized sales.
type SaleWriter interface {
	Create(ctx context.Context, rec sale.Record) (sale.Record, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

// StockEnqueuer schedules the stock decrement of a recorded sale.
type StockEnqueuer interface {
	Enqueue(ctx context.Context, rec sale.Record) error
}

// Locker serializes finalization of a session across API instances.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// ItemRef identifies the variant to add, by id or by scanned code.
type ItemRef struct {
	VariantID uuid.UUID
	Code      string
}

// PaymentResult is the outcome of applying a payment to a session.
type PaymentResult struct {
	Receipt payment.Receipt `json:"receipt"`
	Session View            `json:"session"`
}

// Service orchestrates checkout sessions.
type Service struct {
	Registry  *Registry
	Catalog   VariantLookup
	Methods   MethodLister
	Customers customer.Getter
	Sales     SaleWriter
	Events    Emitter
	Stock     StockEnqueuer
	Locker    Locker
	Metrics   *obs.POSMetrics
	Logger    zerolog.Logger
	// RoundingStep is applied to the checkout total when cash rounding is requested.
	RoundingStep decimal.Decimal
	LockTTL      time.Duration
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Open starts an empty session for the authenticated cashier.
func (s *Service) Open(ctx context.Context) (View, error) {
	cashierID, ok := common.CashierID(ctx)
	if !ok {
		return View{}, ErrUnauthenticated
	}
	sess := s.Registry.Open(cashierID, s.now())
	s.emit(ctx, events.TopicPOSSessionOpened, sess.ID, map[string]any{"sessionId": sess.ID, "cashierId": cashierID})
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// Get returns a snapshot of the session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (View, error) {
	return s.update(ctx, id, func(*Session) error { return nil })
}

// Discard drops the session and everything in it.
func (s *Service) Discard(ctx context.Context, id uuid.UUID) error {
	var items int
	_, err := s.update(ctx, id, func(sess *Session) error {
		items = sess.ledger.Len()
		s.Registry.Remove(sess)
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, events.TopicPOSSessionDiscarded, id, map[string]any{"sessionId": id, "items": items})
	return nil
}

// AddItem resolves the variant and adds qty units to the cart.
func (s *Service) AddItem(ctx context.Context, id uuid.UUID, ref ItemRef, qty int) (View, error) {
	v, err := s.resolve(ctx, ref)
	if err != nil {
		return View{}, err
	}
	return s.mutateCart(ctx, id, func(sess *Session) error {
		return sess.ledger.AddItem(v.CartVariant(), qty)
	})
}

func (s *Service) resolve(ctx context.Context, ref ItemRef) (catalog.Variant, error) {
	if ref.VariantID != uuid.Nil {
		return s.Catalog.Variant(ctx, ref.VariantID)
	}
	if code := strings.TrimSpace(ref.Code); code != "" {
		return s.Catalog.ByCode(ctx, code)
	}
	return catalog.Variant{}, fmt.Errorf("variant id or code required: %w", cart.ErrInvalidInput)
}

// UpdateQuantity sets a line quantity; zero or less removes the line.
func (s *Service) UpdateQuantity(ctx context.Context, id, variantID uuid.UUID, qty int) (View, error) {
	return s.mutateCart(ctx, id, func(sess *Session) error {
		sess.ledger.UpdateQuantity(variantID, qty)
		return nil
	})
}

// RemoveItem removes a line.
func (s *Service) RemoveItem(ctx context.Context, id, variantID uuid.UUID) (View, error) {
	return s.mutateCart(ctx, id, func(sess *Session) error {
		sess.ledger.RemoveItem(variantID)
		return nil
	})
}

// SetItemPrice overrides a line's unit price.
func (s *Service) SetItemPrice(ctx context.Context, id, variantID uuid.UUID, price decimal.Decimal) (View, error) {
	return s.mutateCart(ctx, id, func(sess *Session) error {
		return sess.ledger.SetItemPrice(variantID, price)
	})
}

// SetItemDiscount sets a line's discount.
func (s *Service) SetItemDiscount(ctx context.Context, id, variantID uuid.UUID, discount decimal.Decimal) (View, error) {
	return s.mutateCart(ctx, id, func(sess *Session) error {
		return sess.ledger.SetItemDiscount(variantID, discount)
	})
}

// SetTotalDiscount sets the sale-wide discount.
func (s *Service) SetTotalDiscount(ctx context.Context, id uuid.UUID, discount decimal.Decimal) (View, error) {
	return s.mutateCart(ctx, id, func(sess *Session) error {
		return sess.ledger.SetTotalDiscount(discount)
	})
}

// AttachCustomer loads the customer and attaches it to the cart.
func (s *Service) AttachCustomer(ctx context.Context, id, customerID uuid.UUID) (View, error) {
	c, err := s.Customers.Get(ctx, customerID)
	if err != nil {
		return View{}, err
	}
	return s.mutateCart(ctx, id, func(sess *Session) error {
		sess.customer = &c
		sess.ledger.AttachCustomer(c.CartCustomer())
		return nil
	})
}

// DetachCustomer removes the customer. Discounts already applied stay.
func (s *Service) DetachCustomer(ctx context.Context, id uuid.UUID) (View, error) {
	return s.mutateCart(ctx, id, func(sess *Session) error {
		sess.customer = nil
		sess.ledger.DetachCustomer()
		return nil
	})
}

// ApplyCustomerDiscount sets the total discount to the attached customer's
// percentage of the subtotal.
func (s *Service) ApplyCustomerDiscount(ctx context.Context, id uuid.UUID) (View, error) {
	return s.mutateCart(ctx, id, func(sess *Session) error {
		if sess.customer == nil {
			return ErrCustomerRequired
		}
		return sess.ledger.SetTotalDiscount(sess.ledger.CustomerDiscount())
	})
}

// Clear empties the cart.
func (s *Service) Clear(ctx context.Context, id uuid.UUID) (View, error) {
	return s.mutateCart(ctx, id, func(sess *Session) error {
		sess.ledger.Clear()
		return nil
	})
}

// BeginCheckout freezes the cart and opens a settlement for its total. The
// payment method catalog is loaded once and kept for the settlement.
func (s *Service) BeginCheckout(ctx context.Context, id uuid.UUID, roundCash bool) (View, error) {
	methods, err := s.Methods.List(ctx)
	if err != nil {
		return View{}, err
	}
	return s.update(ctx, id, func(sess *Session) error {
		if sess.inCheckout() {
			return ErrCheckoutInProgress
		}
		if sess.ledger.Len() == 0 {
			return ErrEmptyCart
		}
		step := decimal.Zero
		if roundCash {
			step = s.RoundingStep
		}
		settlement, err := payment.NewSettlement(sess.ledger.Total(), step)
		if err != nil {
			return err
		}
		sess.settlement = settlement
		sess.methods = methods
		return nil
	})
}

// CancelCheckout drops the open settlement and its entries and unfreezes the cart.
func (s *Service) CancelCheckout(ctx context.Context, id uuid.UUID) (View, error) {
	return s.update(ctx, id, func(sess *Session) error {
		if !sess.inCheckout() {
			return ErrCheckoutNotStarted
		}
		if sess.settled != nil {
			return payment.ErrSettled
		}
		sess.settlement = nil
		sess.methods = nil
		return nil
	})
}

// AddPayment applies amount with the given method.
func (s *Service) AddPayment(ctx context.Context, id, methodID uuid.UUID, amount decimal.Decimal, installments int) (PaymentResult, error) {
	return s.pay(ctx, id, methodID, func(sess *Session, m payment.Method) (payment.Receipt, error) {
		if err := s.checkStoreCredit(sess, m, amount); err != nil {
			return payment.Receipt{}, err
		}
		return sess.settlement.AddEntry(m, amount, installments)
	})
}

// PayRemaining applies the whole remaining balance with the given method.
func (s *Service) PayRemaining(ctx context.Context, id, methodID uuid.UUID, installments int) (PaymentResult, error) {
	return s.pay(ctx, id, methodID, func(sess *Session, m payment.Method) (payment.Receipt, error) {
		if err := s.checkStoreCredit(sess, m, sess.settlement.Remaining()); err != nil {
			return payment.Receipt{}, err
		}
		return sess.settlement.PayRemaining(m, installments)
	})
}

func (s *Service) pay(ctx context.Context, id, methodID uuid.UUID, apply func(*Session, payment.Method) (payment.Receipt, error)) (PaymentResult, error) {
	var receipt payment.Receipt
	v, err := s.update(ctx, id, func(sess *Session) error {
		if !sess.inCheckout() {
			return ErrCheckoutNotStarted
		}
		m, err := payment.Find(sess.methods, methodID)
		if err != nil {
			return err
		}
		receipt, err = apply(sess, m)
		return err
	})
	if err != nil {
		return PaymentResult{}, err
	}
	s.Metrics.PaymentEntry(receipt.Entry.MethodType.String())
	return PaymentResult{Receipt: receipt, Session: v}, nil
}

func (s *Service) checkStoreCredit(sess *Session, m payment.Method, amount decimal.Decimal) error {
	if m.Type != payment.StoreCredit {
		return nil
	}
	if sess.customer == nil {
		return ErrCustomerRequired
	}
	if !sess.customer.CanCharge(sess.storeCreditUsed().Add(amount)) {
		return fmt.Errorf("limit %s: %w", sess.customer.CreditLimit, ErrCreditLimitExceeded)
	}
	return nil
}

// RemovePayment deletes the entry at index.
func (s *Service) RemovePayment(ctx context.Context, id uuid.UUID, index int) (View, error) {
	return s.update(ctx, id, func(sess *Session) error {
		if !sess.inCheckout() {
			return ErrCheckoutNotStarted
		}
		return sess.settlement.RemoveEntry(index)
	})
}

// Finalize closes the settlement, persists the sale and hands it to the
// stock and event collaborators. The session is dropped on success.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID) (sale.Record, error) {
	ctx, span := otel.Tracer("pos.Service").Start(ctx, "Finalize")
	defer span.End()
	span.SetAttributes(attribute.String("pos.session_id", id.String()))

	var rec sale.Record
	run := func(ctx context.Context) error {
		_, err := s.update(ctx, id, func(sess *Session) error {
			out, err := s.finalizeLocked(ctx, sess)
			if err != nil {
				return err
			}
			rec = out
			s.Registry.Remove(sess)
			return nil
		})
		return err
	}

	var err error
	if s.Locker != nil {
		err = s.Locker.WithLock(ctx, lock.SessionKey(id), s.LockTTL, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		s.Metrics.ObserveFinalize(finalizeResult(err), 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return sale.Record{}, err
	}
	total, _ := rec.Total.Float64()
	s.Metrics.ObserveFinalize(obs.ResultOK, total)
	span.SetAttributes(
		attribute.String("sale.id", rec.ID.String()),
		attribute.Int64("sale.receipt_number", rec.ReceiptNumber),
	)

	if _, err := s.emitErr(ctx, events.TopicSaleFinalized, rec.ID, rec); err != nil {
		s.Logger.Error().Err(err).Str("sale_id", rec.ID.String()).Msg("emit sale finalized")
	}
	if s.Stock != nil {
		if err := s.Stock.Enqueue(ctx, rec); err != nil {
			s.Logger.Error().Err(err).Str("sale_id", rec.ID.String()).Msg("enqueue stock decrement")
		} else {
			s.Logger.Info().Str("sale_id", rec.ID.String()).Msg("stock task enqueued")
		}
	}
	s.Logger.Info().
		Str("sale_id", rec.ID.String()).
		Int64("receipt_number", rec.ReceiptNumber).
		Str("cashier_id", rec.CashierID).
		Str("total", rec.Total.StringFixed(2)).
		Int("payments", len(rec.Payments)).
		Msg("sale finalized")
	return rec, nil
}

func (s *Service) finalizeLocked(ctx context.Context, sess *Session) (sale.Record, error) {
	if !sess.inCheckout() {
		return sale.Record{}, ErrCheckoutNotStarted
	}
	if sess.settled == nil {
		settled, err := sess.settlement.Finalize()
		if err != nil {
			return sale.Record{}, err
		}
		sess.settled = &settled
	}
	checkout := sale.Checkout{
		SessionID: sess.ID,
		CashierID: sess.CashierID,
		Lines:     sess.ledger.Lines(),
		Summary:   sess.ledger.Summary(),
		Settled:   *sess.settled,
	}
	if sess.customer != nil {
		cid := sess.customer.ID
		checkout.CustomerID = &cid
	}
	rec, err := s.Sales.Create(ctx, sale.NewRecord(checkout))
	if err != nil {
		return sale.Record{}, fmt.Errorf("persist sale: %w", err)
	}
	return rec, nil
}

func finalizeResult(err error) string {
	switch {
	case errors.Is(err, payment.ErrSettlementIncomplete):
		return obs.ResultIncomplete
	case errors.Is(err, lock.ErrBusy):
		return obs.ResultBusy
	default:
		return obs.ResultError
	}
}

// Sweep evicts idle sessions.
func (s *Service) Sweep() int {
	n := s.Registry.Sweep(s.now())
	if n > 0 {
		s.Logger.Info().Int("evicted", n).Msg("idle pos sessions evicted")
	}
	return n
}

// RunSweeper evicts idle sessions every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// mutateCart runs fn against an open session whose cart is not frozen.
func (s *Service) mutateCart(ctx context.Context, id uuid.UUID, fn func(*Session) error) (View, error) {
	return s.update(ctx, id, func(sess *Session) error {
		if sess.inCheckout() {
			return ErrCheckoutInProgress
		}
		return fn(sess)
	})
}

// update runs fn with the session locked and returns the resulting view.
func (s *Service) update(ctx context.Context, id uuid.UUID, fn func(*Session) error) (View, error) {
	cashierID, ok := common.CashierID(ctx)
	if !ok {
		return View{}, ErrUnauthenticated
	}
	sess, err := s.Registry.Get(id, cashierID)
	if err != nil {
		return View{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return View{}, ErrSessionNotFound
	}
	sess.touchedAt = s.now()
	if err := fn(sess); err != nil {
		return View{}, err
	}
	return sess.view(), nil
}

func (s *Service) emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) {
	if _, err := s.emitErr(ctx, topic, aggregateID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Msg("emit event")
	}
}

func (s *Service) emitErr(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error) {
	if s.Events == nil {
		return events.Event{}, nil
	}
	return s.Events.Emit(ctx, topic, aggregateID, payload)
}

// MethodCatalog exposes the active payment methods for previews.
func (s *Service) MethodCatalog(ctx context.Context) ([]payment.Method, error) {
	return s.Methods.List(ctx)
}

// InstallmentOptions lists the installment plans methodID offers for amount.
func (s *Service) InstallmentOptions(ctx context.Context, methodID uuid.UUID, amount decimal.Decimal) ([]payment.Quote, error) {
	methods, err := s.Methods.List(ctx)
	if err != nil {
		return nil, err
	}
	m, err := payment.Find(methods, methodID)
	if err != nil {
		return nil, err
	}
	return m.InstallmentOptions(pricing.Round(amount))
}
