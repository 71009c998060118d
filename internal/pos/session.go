package pos

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/customer"
	"github.com/noah-isme/toko-pos/internal/obs"
	"github.com/noah-isme/toko-pos/internal/payment"
	"github.com/noah-isme/toko-pos/internal/pricing"
)

// Session is one cashier's in-progress sale. All fields are guarded by mu.
type Session struct {
	ID        uuid.UUID
	CashierID string
	OpenedAt  time.Time

	mu         sync.Mutex
	touchedAt  time.Time
	closed     bool
	ledger     *cart.Ledger
	customer   *customer.Customer
	settlement *payment.Settlement
	methods    []payment.Method
	// settled is kept when persistence fails after the settlement closed so
	// Finalize can be retried.
	settled *payment.SettledSale
}

// CheckoutView is the payment side of a session snapshot.
type CheckoutView struct {
	OriginalTotal decimal.Decimal `json:"originalTotal"`
	Target        decimal.Decimal `json:"target"`
	Collected     decimal.Decimal `json:"collected"`
	Remaining     decimal.Decimal `json:"remaining"`
	CanFinalize   bool            `json:"canFinalize"`
	Entries       []payment.Entry `json:"entries"`
}

// View is a point-in-time snapshot of a session, safe to serialize.
type View struct {
	ID               uuid.UUID       `json:"id"`
	CashierID        string          `json:"cashierId"`
	OpenedAt         time.Time       `json:"openedAt"`
	Items            []cart.LineItem `json:"items"`
	Units            int             `json:"units"`
	Customer         *cart.Customer  `json:"customer,omitempty"`
	CustomerDiscount decimal.Decimal `json:"customerDiscount"`
	Summary          pricing.Summary `json:"summary"`
	Checkout         *CheckoutView   `json:"checkout,omitempty"`
}

func (s *Session) view() View {
	v := View{
		ID:               s.ID,
		CashierID:        s.CashierID,
		OpenedAt:         s.OpenedAt,
		Items:            s.ledger.Lines(),
		Units:            s.ledger.Units(),
		CustomerDiscount: s.ledger.CustomerDiscount(),
		Summary:          s.ledger.Summary(),
	}
	if c, ok := s.ledger.Customer(); ok {
		v.Customer = &c
	}
	if st := s.settlement; st != nil {
		v.Checkout = &CheckoutView{
			OriginalTotal: st.OriginalTotal(),
			Target:        pricing.Round(st.Target()),
			Collected:     pricing.Round(st.Collected()),
			Remaining:     pricing.Round(st.Remaining()),
			CanFinalize:   st.CanFinalize(),
			Entries:       st.Entries(),
		}
	}
	return v
}

func (s *Session) inCheckout() bool { return s.settlement != nil }

// storeCreditUsed sums store-credit entries already applied.
func (s *Session) storeCreditUsed() decimal.Decimal {
	used := decimal.Zero
	if s.settlement == nil {
		return used
	}
	for _, e := range s.settlement.Entries() {
		if e.MethodType == payment.StoreCredit {
			used = used.Add(e.Amount)
		}
	}
	return used
}

// Registry holds open sessions in memory.
type Registry struct {
	IdleTTL time.Duration
	Metrics *obs.POSMetrics

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry(idleTTL time.Duration, metrics *obs.POSMetrics) *Registry {
	return &Registry{IdleTTL: idleTTL, Metrics: metrics, sessions: make(map[uuid.UUID]*Session)}
}

// Open registers a new empty session for cashierID.
func (r *Registry) Open(cashierID string, now time.Time) *Session {
	s := &Session{
		ID:        uuid.New(),
		CashierID: cashierID,
		OpenedAt:  now,
		touchedAt: now,
		ledger:    cart.NewLedger(),
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()
	r.Metrics.SetOpenSessions(n)
	return s
}

// Get returns the session if it exists and belongs to cashierID. Sessions of
// other cashiers are reported as missing.
func (r *Registry) Get(id uuid.UUID, cashierID string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.CashierID != cashierID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove drops a session. Callers must hold the session lock.
func (r *Registry) Remove(s *Session) {
	s.closed = true
	r.mu.Lock()
	delete(r.sessions, s.ID)
	n := len(r.sessions)
	r.mu.Unlock()
	r.Metrics.SetOpenSessions(n)
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than IdleTTL and returns how many
// were removed. Sessions busy with a request are skipped, as are sessions
// holding a settled sale that still has to be persisted.
func (r *Registry) Sweep(now time.Time) int {
	if r.IdleTTL <= 0 {
		return 0
	}
	r.mu.Lock()
	evicted := 0
	for id, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.settled == nil && now.Sub(s.touchedAt) > r.IdleTTL {
			s.closed = true
			delete(r.sessions, id)
			evicted++
		}
		s.mu.Unlock()
	}
	n := len(r.sessions)
	r.mu.Unlock()
	if evicted > 0 {
		r.Metrics.SetOpenSessions(n)
	}
	return evicted
}
