// Package telemetry holds the Prometheus metrics for the redemption engine
// and ingestion worker, grounded on the teacher's internal/escrow/metrics.go
// pattern: promauto-registered Vec types, recorded via small Record*
// methods instead of scattering promauto calls through business logic.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every counter/gauge this process records.
type Metrics struct {
	RedeemRequestsTotal     *prometheus.CounterVec
	RedeemCacheHintsTotal   *prometheus.CounterVec
	MonitorPaymentsIngested *prometheus.CounterVec
	MonitorRPCCallsTotal    *prometheus.CounterVec
	MonitorLastHeight       prometheus.Gauge
	MonitorBatchEntries     prometheus.Histogram
	StorageQueryTotal       *prometheus.CounterVec
}

// NewMetrics registers every metric against reg, which may be
// prometheus.DefaultRegisterer or a dedicated registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RedeemRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redeem_requests_total",
			Help: "Total redemption requests by outcome status.",
		}, []string{"status"}),

		RedeemCacheHintsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "redeem_cache_hints_total",
			Help: "Total absence-cache hints consulted during redemption, by hint type.",
		}, []string{"hint"}),

		MonitorPaymentsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_payments_ingested_total",
			Help: "Total transfer entries processed by the ingestion filter pipeline, by result.",
		}, []string{"result"}),

		MonitorRPCCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_rpc_calls_total",
			Help: "Total wallet RPC calls made by the ingestion worker, by result.",
		}, []string{"result"}),

		MonitorLastHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_last_processed_height",
			Help: "Most recently persisted monitor cursor height.",
		}),

		MonitorBatchEntries: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_batch_entries",
			Help:    "Number of transfer entries observed per ingestion tick.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		StorageQueryTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storage_query_total",
			Help: "Total storage queries issued, by operation.",
		}, []string{"op"}),
	}
}

// RecordRedeemRequest increments the redeem outcome counter.
func (m *Metrics) RecordRedeemRequest(status string) {
	m.RedeemRequestsTotal.WithLabelValues(status).Inc()
}

// RecordCacheHint increments the absence-cache hint counter.
func (m *Metrics) RecordCacheHint(hint string) {
	m.RedeemCacheHintsTotal.WithLabelValues(hint).Inc()
}

// RecordIngested increments the ingestion filter-pipeline outcome counter.
func (m *Metrics) RecordIngested(result string) {
	m.MonitorPaymentsIngested.WithLabelValues(result).Inc()
}

// RecordRPCCall increments the wallet RPC call outcome counter.
func (m *Metrics) RecordRPCCall(result string) {
	m.MonitorRPCCallsTotal.WithLabelValues(result).Inc()
}

// SetLastHeight records the most recently persisted cursor.
func (m *Metrics) SetLastHeight(height int64) {
	m.MonitorLastHeight.Set(float64(height))
}

// ObserveBatchEntries records the size of one ingestion tick's batch.
func (m *Metrics) ObserveBatchEntries(n int) {
	m.MonitorBatchEntries.Observe(float64(n))
}

// RecordStorageQuery increments the storage query counter; the redemption
// engine calls it once per storage operation it issues.
func (m *Metrics) RecordStorageQuery(op string) {
	m.StorageQueryTotal.WithLabelValues(op).Inc()
}
