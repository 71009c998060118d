package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-pos/internal/sale"
)

// TypeDecrement is the asynq task type that applies a sale to stock.
const TypeDecrement = "inventory:decrement"

// Queue is the asynq queue stock tasks run on.
const Queue = "inventory"

// Line is one variant quantity leaving stock.
type Line struct {
	VariantID uuid.UUID `json:"variantId"`
	Quantity  int       `json:"quantity"`
}

// DecrementPayload is the task body.
type DecrementPayload struct {
	SaleID    uuid.UUID `json:"saleId"`
	CashierID string    `json:"cashierId"`
	Lines     []Line    `json:"lines"`
}

// PayloadFor builds the stock payload for a recorded sale, merging repeated
// variants.
func PayloadFor(rec sale.Record) DecrementPayload {
	p := DecrementPayload{SaleID: rec.ID, CashierID: rec.CashierID, Lines: make([]Line, 0, len(rec.Items))}
	index := map[uuid.UUID]int{}
	for _, it := range rec.Items {
		if i, ok := index[it.VariantID]; ok {
			p.Lines[i].Quantity += it.Quantity
			continue
		}
		index[it.VariantID] = len(p.Lines)
		p.Lines = append(p.Lines, Line{VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return p
}

// NewDecrementTask encodes p as an asynq task.
func NewDecrementTask(p DecrementPayload) (*asynq.Task, error) {
	if p.SaleID == uuid.Nil {
		return nil, errors.New("inventory: sale id required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDecrement, data), nil
}

// TaskClient is the subset of *asynq.Client used to enqueue.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules stock decrements. The task id is the sale id, so a
// sale is never queued twice.
type Enqueuer struct {
	Client   TaskClient
	MaxRetry int
}

// Enqueue schedules the decrement for a recorded sale.
func (e Enqueuer) Enqueue(ctx context.Context, rec sale.Record) error {
	if e.Client == nil {
		return errors.New("inventory: task client not configured")
	}
	task, err := NewDecrementTask(PayloadFor(rec))
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.TaskID(rec.ID.String()), asynq.Queue(Queue)}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	_, err = e.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inventory: enqueue %s: %w", rec.ID, err)
	}
	return nil
}
