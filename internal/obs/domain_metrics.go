package obs

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Sale finalization outcomes recorded on SalesFinalized.
const (
	ResultOK         = "ok"
	ResultIncomplete = "incomplete"
	ResultBusy       = "busy"
	ResultError      = "error"
)

// POSMetrics groups the checkout counters. A nil *POSMetrics records nothing.
type POSMetrics struct {
	SalesFinalized *prometheus.CounterVec
	PaymentEntries *prometheus.CounterVec
	SaleTotal      prometheus.Histogram
	OpenSessions   prometheus.Gauge
	StockTasks     *prometheus.CounterVec
}

// NewPOSMetrics registers the point-of-sale collectors, reusing any already present on reg.
func NewPOSMetrics(namespace string, reg prometheus.Registerer) *POSMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &POSMetrics{
		SalesFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_finalized_total",
			Help:      "Checkout finalization attempts by outcome.",
		}, []string{"result"}),
		PaymentEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_entries_total",
			Help:      "Payment entries accepted into settlements by method type.",
		}, []string{"method_type"}),
		SaleTotal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sale_total_amount",
			Help:      "Distribution of finalized sale totals in currency units.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		OpenSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Checkout sessions currently held in memory.",
		}),
		StockTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_tasks_total",
			Help:      "Stock decrement tasks by outcome.",
		}, []string{"result"}),
	}

	mustRegisterCollector(reg, m.SalesFinalized, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.SalesFinalized = v
		}
	})
	mustRegisterCollector(reg, m.PaymentEntries, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.PaymentEntries = v
		}
	})
	mustRegisterCollector(reg, m.SaleTotal, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Histogram); ok {
			m.SaleTotal = v
		}
	})
	mustRegisterCollector(reg, m.OpenSessions, func(existing prometheus.Collector) {
		if v, ok := existing.(prometheus.Gauge); ok {
			m.OpenSessions = v
		}
	})
	mustRegisterCollector(reg, m.StockTasks, func(existing prometheus.Collector) {
		if v, ok := existing.(*prometheus.CounterVec); ok {
			m.StockTasks = v
		}
	})
	return m
}

// ObserveFinalize records a finalization outcome and, on success, the sale total.
func (m *POSMetrics) ObserveFinalize(result string, total float64) {
	if m == nil {
		return
	}
	m.SalesFinalized.WithLabelValues(result).Inc()
	if result == ResultOK {
		m.SaleTotal.Observe(total)
	}
}

// PaymentEntry counts one accepted entry.
func (m *POSMetrics) PaymentEntry(methodType string) {
	if m == nil {
		return
	}
	m.PaymentEntries.WithLabelValues(methodType).Inc()
}

// SetOpenSessions publishes the registry size.
func (m *POSMetrics) SetOpenSessions(n int) {
	if m == nil {
		return
	}
	m.OpenSessions.Set(float64(n))
}

// StockTask counts a processed stock task.
func (m *POSMetrics) StockTask(result string) {
	if m == nil {
		return
	}
	m.StockTasks.WithLabelValues(result).Inc()
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
