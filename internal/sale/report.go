package sale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pos/internal/cache"
	"github.com/noah-isme/toko-pos/internal/payment"
)

// MethodTotal aggregates payments of one method type.
type MethodTotal struct {
	MethodType payment.MethodType `json:"methodType"`
	Count      int                `json:"count"`
	Amount     decimal.Decimal    `json:"amount"`
	FeeAmount  decimal.Decimal    `json:"feeAmount"`
	NetAmount  decimal.Decimal    `json:"netAmount"`
}

// Report summarizes sales created in [From, To).
type Report struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	SalesCount int             `json:"salesCount"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Total      decimal.Decimal `json:"total"`
	FeeAmount  decimal.Decimal `json:"feeAmount"`
	NetTotal   decimal.Decimal `json:"netTotal"`
	Change     decimal.Decimal `json:"change"`
	ByMethod   []MethodTotal   `json:"byMethod"`
}

// Summarizer computes reports from storage.
type Summarizer interface {
	Summarize(ctx context.Context, from, to time.Time) (Report, error)
}

// Reports serves cached sales reports.
type Reports struct {
	Source   Summarizer
	Cache    *cache.JSON
	Logger   zerolog.Logger
	Location *time.Location
	Now      func() time.Time
}

func (s *Reports) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Reports) location() *time.Location {
	if s != nil && s.Location != nil {
		return s.Location
	}
	return time.Local
}

// DayRange returns [start of day, start of next day) for the day containing t
// in the report location.
func (s *Reports) DayRange(t time.Time) (time.Time, time.Time) {
	t = t.In(s.location())
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}

// Today reports on the current day.
func (s *Reports) Today(ctx context.Context) (Report, error) {
	from, to := s.DayRange(s.now())
	return s.Range(ctx, from, to)
}

// Range reports on [from, to). Ranges that end in the past are cached; the
// open current range always hits storage.
func (s *Reports) Range(ctx context.Context, from, to time.Time) (Report, error) {
	if s == nil || s.Source == nil {
		return Report{}, errors.New("sale reports not configured")
	}
	if !to.After(from) {
		return Report{}, fmt.Errorf("report range %s..%s is empty", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	cacheable := !to.After(s.now())
	key := cache.KeySalesReport(from, to)
	if cacheable {
		var rep Report
		if ok, err := s.Cache.Get(ctx, key, &rep); err != nil {
			s.Logger.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		} else if ok {
			return rep, nil
		}
	}
	rep, err := s.Source.Summarize(ctx, from, to)
	if err != nil {
		return Report{}, err
	}
	if cacheable {
		if err := s.Cache.Set(ctx, key, rep); err != nil {
			s.Logger.Warn().Err(err).Str("key", key).Msg("report cache write failed")
		}
	}
	return rep, nil
}
