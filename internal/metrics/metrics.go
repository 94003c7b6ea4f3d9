// Package metrics exposes prometheus metrics of the ledger operations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LedgerMetrics groups the ledger's metrics.
type LedgerMetrics struct {
	OperationTotal    *prometheus.CounterVec   // by operation, result
	OperationDuration *prometheus.HistogramVec // by operation

	EventsAppended *prometheus.CounterVec // by payment method
	SessionsSold   *prometheus.CounterVec // by plan

	RecomputeTotal    *prometheus.CounterVec // by result
	MainTableRows     prometheus.Gauge
	OutstandingAmount prometheus.Gauge // remaining prepaid across the main table

	BackupTotal *prometheus.CounterVec // by result
	Warnings    *prometheus.CounterVec // by source
}

// NewLedgerMetrics registers the metrics on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	f := promauto.With(reg)
	return &LedgerMetrics{
		OperationTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operation_total",
				Help: "Total number of ledger operations",
			},
			[]string{"operation", "result"}, // result: ok/input/not_found/rule/storage
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations including workbook I/O",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		EventsAppended: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_events_appended_total",
				Help: "Event rows appended to the ledger",
			},
			[]string{"payment_method"},
		),
		SessionsSold: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_sessions_sold_total",
				Help: "Sessions sold, promotion sessions included",
			},
			[]string{"plan"},
		),
		RecomputeTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_recompute_total",
				Help: "Main table recomputations",
			},
			[]string{"result"},
		),
		MainTableRows: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_main_table_rows",
			Help: "Rows in the last recomputed main table",
		}),
		OutstandingAmount: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_outstanding_prepaid",
			Help: "Remaining prepaid amount across all members",
		}),
		BackupTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_backup_total",
				Help: "Workbook backups",
			},
			[]string{"result"},
		),
		Warnings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_warnings_total",
				Help: "Secondary failures reported as warnings",
			},
			[]string{"source"},
		),
	}
}

// ObserveOperation records one finished operation.
func (m *LedgerMetrics) ObserveOperation(op, result string, elapsed time.Duration) {
	m.OperationTotal.WithLabelValues(op, result).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Handler serves the metrics of gatherer in the prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
