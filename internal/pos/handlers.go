package pos

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/cart"
	"github.com/noah-isme/toko-pos/internal/catalog"
	"github.com/noah-isme/toko-pos/internal/common"
	"github.com/noah-isme/toko-pos/internal/customer"
	"github.com/noah-isme/toko-pos/internal/lock"
	"github.com/noah-isme/toko-pos/internal/payment"
	"github.com/noah-isme/toko-pos/internal/pricing"
)

// Handler exposes checkout sessions over HTTP.
type Handler struct {
	Svc *Service
	// Idem guards finalize against duplicate submissions; nil disables it.
	Idem     func(http.Handler) http.Handler
	validate *validator.Validate
}

// NewHandler builds a handler with its request validator.
func NewHandler(svc *Service, idem func(http.Handler) http.Handler) *Handler {
	return &Handler{Svc: svc, Idem: idem, validate: newValidator()}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Routes mounts the session endpoints under /pos.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/payment-methods", h.ListMethods)
	r.Get("/payment-methods/{methodID}/installments", h.InstallmentOptions)

	r.Post("/sessions", h.Open)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Discard)

		r.Post("/items", h.AddItem)
		r.Delete("/items", h.Clear)
		r.Put("/items/{variantID}/quantity", h.UpdateQuantity)
		r.Put("/items/{variantID}/price", h.SetItemPrice)
		r.Put("/items/{variantID}/discount", h.SetItemDiscount)
		r.Delete("/items/{variantID}", h.RemoveItem)
		r.Put("/discount", h.SetTotalDiscount)

		r.Put("/customer", h.AttachCustomer)
		r.Delete("/customer", h.DetachCustomer)
		r.Post("/customer/discount", h.ApplyCustomerDiscount)

		r.Post("/checkout", h.BeginCheckout)
		r.Delete("/checkout", h.CancelCheckout)
		r.Post("/payments", h.AddPayment)
		r.Post("/payments/remaining", h.PayRemaining)
		r.Delete("/payments/{index}", h.RemovePayment)

		finalize := http.Handler(http.HandlerFunc(h.Finalize))
		if h.Idem != nil {
			finalize = h.Idem(finalize)
		}
		r.Method(http.MethodPost, "/finalize", finalize)
	})
}

type addItemRequest struct {
	VariantID *uuid.UUID `json:"variantId" validate:"required_without=Code"`
	Code      string     `json:"code" validate:"required_without=VariantID,max=64"`
	Quantity  int        `json:"quantity" validate:"gte=0"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type priceRequest struct {
	UnitPrice decimal.Decimal `json:"unitPrice" validate:"gte=0"`
}

type discountRequest struct {
	Discount decimal.Decimal `json:"discount" validate:"gte=0"`
}

type customerRequest struct {
	CustomerID uuid.UUID `json:"customerId" validate:"required"`
}

type checkoutRequest struct {
	RoundCash bool `json:"roundCash"`
}

type paymentRequest struct {
	MethodID     uuid.UUID       `json:"paymentMethodId" validate:"required"`
	Amount       decimal.Decimal `json:"amount" validate:"gt=0"`
	Installments int             `json:"installments" validate:"gte=0,lte=48"`
}

type remainingRequest struct {
	MethodID     uuid.UUID `json:"paymentMethodId" validate:"required"`
	Installments int       `json:"installments" validate:"gte=0,lte=48"`
}

// Open handles POST /sessions.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	v, err := h.Svc.Open(r.Context())
	h.respond(w, http.StatusCreated, v, err)
}

// Get handles GET /sessions/{sessionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.Get(r.Context(), id)
	h.respond(w, http.StatusOK, v, err)
}

// Discard handles DELETE /sessions/{sessionID}.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Discard(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem handles POST /sessions/{sessionID}/items. Quantity defaults to one.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	ref := ItemRef{Code: req.Code}
	if req.VariantID != nil {
		ref.VariantID = *req.VariantID
	}
	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	v, err := h.Svc.AddItem(r.Context(), id, ref, qty)
	h.respond(w, http.StatusOK, v, err)
}

// UpdateQuantity handles PUT /sessions/{sessionID}/items/{variantID}/quantity.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id, variantID, ok := itemIDs(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.Svc.UpdateQuantity(r.Context(), id, variantID, req.Quantity)
	h.respond(w, http.StatusOK, v, err)
}

// SetItemPrice handles PUT /sessions/{sessionID}/items/{variantID}/price.
func (h *Handler) SetItemPrice(w http.ResponseWriter, r *http.Request) {
	id, variantID, ok := itemIDs(w, r)
	if !ok {
		return
	}
	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.Svc.SetItemPrice(r.Context(), id, variantID, req.UnitPrice)
	h.respond(w, http.StatusOK, v, err)
}

// SetItemDiscount handles PUT /sessions/{sessionID}/items/{variantID}/discount.
func (h *Handler) SetItemDiscount(w http.ResponseWriter, r *http.Request) {
	id, variantID, ok := itemIDs(w, r)
	if !ok {
		return
	}
	var req discountRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.Svc.SetItemDiscount(r.Context(), id, variantID, req.Discount)
	h.respond(w, http.StatusOK, v, err)
}

// RemoveItem handles DELETE /sessions/{sessionID}/items/{variantID}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, variantID, ok := itemIDs(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.RemoveItem(r.Context(), id, variantID)
	h.respond(w, http.StatusOK, v, err)
}

// Clear handles DELETE /sessions/{sessionID}/items.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.Clear(r.Context(), id)
	h.respond(w, http.StatusOK, v, err)
}

// SetTotalDiscount handles PUT /sessions/{sessionID}/discount.
func (h *Handler) SetTotalDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req discountRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.Svc.SetTotalDiscount(r.Context(), id, req.Discount)
	h.respond(w, http.StatusOK, v, err)
}

// AttachCustomer handles PUT /sessions/{sessionID}/customer.
func (h *Handler) AttachCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req customerRequest
	if !h.decode(w, r, &req) {
		return
	}
	v, err := h.Svc.AttachCustomer(r.Context(), id, req.CustomerID)
	h.respond(w, http.StatusOK, v, err)
}

// DetachCustomer handles DELETE /sessions/{sessionID}/customer.
func (h *Handler) DetachCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.DetachCustomer(r.Context(), id)
	h.respond(w, http.StatusOK, v, err)
}

// ApplyCustomerDiscount handles POST /sessions/{sessionID}/customer/discount.
func (h *Handler) ApplyCustomerDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.ApplyCustomerDiscount(r.Context(), id)
	h.respond(w, http.StatusOK, v, err)
}

// BeginCheckout handles POST /sessions/{sessionID}/checkout. An empty body
// starts checkout without cash rounding.
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	v, err := h.Svc.BeginCheckout(r.Context(), id, req.RoundCash)
	h.respond(w, http.StatusOK, v, err)
}

// CancelCheckout handles DELETE /sessions/{sessionID}/checkout.
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	v, err := h.Svc.CancelCheckout(r.Context(), id)
	h.respond(w, http.StatusOK, v, err)
}

// AddPayment handles POST /sessions/{sessionID}/payments.
func (h *Handler) AddPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Svc.AddPayment(r.Context(), id, req.MethodID, req.Amount, req.Installments)
	h.respond(w, http.StatusOK, out, err)
}

// PayRemaining handles POST /sessions/{sessionID}/payments/remaining.
func (h *Handler) PayRemaining(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	var req remainingRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.Svc.PayRemaining(r.Context(), id, req.MethodID, req.Installments)
	h.respond(w, http.StatusOK, out, err)
}

// RemovePayment handles DELETE /sessions/{sessionID}/payments/{index}.
func (h *Handler) RemovePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payment index", nil)
		return
	}
	v, err := h.Svc.RemovePayment(r.Context(), id, index)
	h.respond(w, http.StatusOK, v, err)
}

// Finalize handles POST /sessions/{sessionID}/finalize.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	rec, err := h.Svc.Finalize(r.Context(), id)
	h.respond(w, http.StatusCreated, rec, err)
}

// ListMethods handles GET /payment-methods.
func (h *Handler) ListMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.Svc.MethodCatalog(r.Context())
	h.respond(w, http.StatusOK, methods, err)
}

// InstallmentOptions handles GET /payment-methods/{methodID}/installments?amount=.
func (h *Handler) InstallmentOptions(w http.ResponseWriter, r *http.Request) {
	methodID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "methodID")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payment method id", nil)
		return
	}
	amount, err := pricing.ParseMoney(strings.TrimSpace(r.URL.Query().Get("amount")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid amount", nil)
		return
	}
	quotes, err := h.Svc.InstallmentOptions(r.Context(), methodID, amount)
	h.respond(w, http.StatusOK, quotes, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.WriteError(w, common.BadRequest("invalid payload", err))
		return false
	}
	if h.validate == nil {
		h.validate = newValidator()
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", fields)
			return false
		}
		common.WriteError(w, common.BadRequest("invalid payload", err))
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, data any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, status, map[string]any{"data": data})
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "sessionID")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid session id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func itemIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	id, ok := sessionID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	variantID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "variantID")))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid variant id", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return id, variantID, true
}

// writeError maps domain errors onto the API error envelope.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
	case errors.Is(err, ErrSessionNotFound):
		common.JSONError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "pos session not found", nil)
	case errors.Is(err, catalog.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "VARIANT_NOT_FOUND", "variant not found", nil)
	case errors.Is(err, customer.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "CUSTOMER_NOT_FOUND", "customer not found", nil)
	case errors.Is(err, payment.ErrMethodNotFound):
		common.JSONError(w, http.StatusNotFound, "PAYMENT_METHOD_NOT_FOUND", "payment method not found", nil)
	case errors.Is(err, ErrCheckoutInProgress):
		common.JSONError(w, http.StatusConflict, "CHECKOUT_IN_PROGRESS", "cart is frozen while checkout is open", nil)
	case errors.Is(err, ErrCheckoutNotStarted):
		common.JSONError(w, http.StatusConflict, "CHECKOUT_NOT_STARTED", "checkout has not been started", nil)
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusConflict, "EMPTY_CART", "cart is empty", nil)
	case errors.Is(err, ErrCustomerRequired):
		common.JSONError(w, http.StatusConflict, "CUSTOMER_REQUIRED", "a customer must be attached", nil)
	case errors.Is(err, ErrCreditLimitExceeded):
		common.JSONError(w, http.StatusConflict, "CREDIT_LIMIT_EXCEEDED", "store credit limit exceeded", nil)
	case errors.Is(err, payment.ErrSettlementIncomplete):
		common.WriteError(w, common.Conflict("SETTLEMENT_INCOMPLETE", err.Error(), err))
	case errors.Is(err, payment.ErrSettled):
		common.JSONError(w, http.StatusConflict, "SETTLED", "settlement already finalized", nil)
	case errors.Is(err, lock.ErrBusy):
		common.JSONError(w, http.StatusConflict, "CHECKOUT_BUSY", "session is being finalized", nil)
	case errors.Is(err, cart.ErrInvalidInput), errors.Is(err, payment.ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
