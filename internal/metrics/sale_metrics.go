package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SaleMetrics содержит метрики операций с продажами.
type SaleMetrics struct {
	salesOpened  prometheus.Counter
	itemsChanged *prometheus.CounterVec
	salesClosed  *prometheus.CounterVec
	closeFailed  *prometheus.CounterVec

	closeDuration *prometheus.HistogramVec
	outboxEvents  prometheus.Counter

	openSales prometheus.Gauge
}

// NewSaleMetrics создаёт метрики в DefaultRegisterer.
func NewSaleMetrics() *SaleMetrics {
	return NewSaleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSaleMetricsWithRegisterer создаёт метрики в указанном registerer.
func NewSaleMetricsWithRegisterer(registerer prometheus.Registerer) *SaleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SaleMetrics{
		salesOpened: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pdv_sales_opened_total",
			Help: "Total number of sales opened",
		}),
		itemsChanged: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pdv_sale_items_total",
			Help: "Total number of sale item changes by operation and result",
		}, []string{"operation", "result"}),
		salesClosed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pdv_sales_closed_total",
			Help: "Total number of sales closed by settlement kind",
		}, []string{"settlement"}),
		closeFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "pdv_sale_close_failures_total",
			Help: "Total number of rejected or failed sale closes by reason",
		}, []string{"reason"}),
		closeDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "pdv_sale_close_duration_seconds",
			Help:    "Duration of sale close operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"outcome"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "pdv_outbox_events_total",
			Help: "Total number of sale events enqueued to the outbox",
		}),
		openSales: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "pdv_open_sales",
			Help: "Number of open sales observed by the last count",
		}),
	}
}

// RecordSaleOpened увеличивает счётчик открытых продаж.
func (m *SaleMetrics) RecordSaleOpened() {
	m.salesOpened.Inc()
}

// RecordItemChange учитывает добавление или удаление позиции.
func (m *SaleMetrics) RecordItemChange(operation, result string) {
	m.itemsChanged.WithLabelValues(operation, result).Inc()
}

// RecordSaleClosed учитывает успешное закрытие.
func (m *SaleMetrics) RecordSaleClosed(settlement string, duration time.Duration) {
	m.salesClosed.WithLabelValues(settlement).Inc()
	m.closeDuration.WithLabelValues("success").Observe(duration.Seconds())
}

// RecordCloseFailed учитывает отказ в закрытии.
func (m *SaleMetrics) RecordCloseFailed(reason string, duration time.Duration) {
	m.closeFailed.WithLabelValues(reason).Inc()
	m.closeDuration.WithLabelValues("failure").Observe(duration.Seconds())
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SaleMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// SetOpenSales выставляет число открытых продаж.
func (m *SaleMetrics) SetOpenSales(count int) {
	m.openSales.Set(float64(count))
}
