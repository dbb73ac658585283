package outbox

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdv_outbox_publish_attempts_total",
		Help: "Sale event publish attempts by event type and result.",
	}, []string{"event_type", "result"})
	deadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pdv_outbox_dead_lettered_total",
		Help: "Sale events moved to the dead letter queue by event type and reason.",
	}, []string{"event_type", "reason"})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pdv_outbox_pending_records",
		Help: "Sale events waiting in the transactional outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pdv_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest pending sale event.",
	})
)

// eventLabel ограничивает кардинальность метки event_type известными типами.
func eventLabel(eventType string) string {
	if domain.IsSaleEvent(eventType) {
		return eventType
	}
	return "unknown"
}

func observeBacklog(stats domain.OutboxStats, now time.Time) {
	pendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		oldestPendingAge.Set(0)
		return
	}
	oldestPendingAge.Set(max(now.Sub(stats.OldestPendingAt).Seconds(), 0))
}
