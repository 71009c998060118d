package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pos/internal/events"
	"github.com/noah-isme/toko-pos/internal/obs"
)

// MovementSale is the stock movement type recorded for sold units.
const MovementSale = "saida_venda"

// Movement is an applied stock change.
type Movement struct {
	VariantID     uuid.UUID `json:"variantId"`
	Quantity      int       `json:"quantity"`
	PreviousStock int       `json:"previousStock"`
	NewStock      int       `json:"newStock"`
}

// Shortage is a line that could not be taken from stock.
type Shortage struct {
	VariantID uuid.UUID `json:"variantId"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Result is the outcome of applying a sale to stock.
type Result struct {
	Applied   []Movement `json:"applied"`
	Skipped   int        `json:"skipped"`
	Shortages []Shortage `json:"shortages"`
}

// Stock applies sold quantities.
type Stock interface {
	ApplySale(ctx context.Context, p DecrementPayload) (Result, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.Event, error)
}

// ResultShortage labels a task that applied with at least one shortage.
const ResultShortage = "shortage"

// Handler processes inventory:decrement tasks. A shortage never fails the
// task: the sale is already paid, so it is logged and published instead.
type Handler struct {
	Stock   Stock
	Events  Emitter
	Logger  zerolog.Logger
	Metrics *obs.POSMetrics
}

// ProcessTask implements asynq.Handler.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p DecrementPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("inventory: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.SaleID == uuid.Nil {
		return fmt.Errorf("inventory: sale id missing: %w", asynq.SkipRetry)
	}
	res, err := h.Stock.ApplySale(ctx, p)
	if err != nil {
		h.Metrics.StockTask(obs.ResultError)
		return fmt.Errorf("inventory: apply sale %s: %w", p.SaleID, err)
	}
	log := h.Logger.With().Str("sale_id", p.SaleID.String()).Logger()
	log.Info().Int("applied", len(res.Applied)).Int("skipped", res.Skipped).Msg("stock decremented")
	if len(res.Shortages) == 0 {
		h.Metrics.StockTask(obs.ResultOK)
		return nil
	}
	h.Metrics.StockTask(ResultShortage)
	for _, s := range res.Shortages {
		log.Warn().
			Str("variant_id", s.VariantID.String()).
			Int("requested", s.Requested).
			Int("available", s.Available).
			Msg("insufficient stock for sold item")
	}
	if h.Events != nil {
		payload := map[string]any{"saleId": p.SaleID, "shortages": res.Shortages}
		if _, err := h.Events.Emit(ctx, events.TopicStockInsufficient, p.SaleID, payload); err != nil {
			log.Error().Err(err).Msg("emit stock shortage event")
		}
	}
	return nil
}

// Register mounts the handler on mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeDecrement, h)
}
