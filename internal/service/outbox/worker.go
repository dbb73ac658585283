package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// BatchResult: итог одного прохода по outbox.
type BatchResult struct {
	Sent         int
	DeadLettered int
	// Deferred: сообщения, оставленные pending из-за остановки воркера.
	Deferred int
}

// Worker переносит события продаж из transactional outbox в брокер.
// Событие публикуется с повторами; если доставка невозможна, оно уходит
// в DLQ и помечается failed. При остановке воркера недоставленные события
// остаются pending.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	opts      options
	now       func() time.Time
}

// NewWorker создаёт воркер с publisher по умолчанию.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.normalize()

	return &Worker{
		repo:      repo,
		publisher: publisher,
		opts:      o,
		now:       time.Now,
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.opts.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.opts.pollInterval)
	defer ticker.Stop()

	for {
		w.logBatch(w.ProcessOnce(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce забирает одну пачку pending-событий и доставляет их по очереди.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var res BatchResult
	if ctx.Err() != nil {
		return res
	}
	w.refreshBacklog(ctx)

	events, err := w.repo.PullPending(ctx, w.opts.batchSize)
	if err != nil {
		w.opts.logger.WithError(err).Warn("failed to pull pending sale events")
		return res
	}

	for i, event := range events {
		if ctx.Err() != nil {
			res.Deferred += len(events) - i
			break
		}
		switch w.deliver(ctx, event) {
		case outcomeSent:
			res.Sent++
		case outcomeDeadLettered:
			res.DeadLettered++
		case outcomeDeferred:
			res.Deferred++
		}
	}

	if len(events) > 0 {
		w.refreshBacklog(ctx)
	}
	return res
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeDeadLettered
	outcomeDeferred
)

func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) outcome {
	entry := w.opts.logger.WithFields(log.Fields{
		"outbox_id":  event.ID,
		"sale_id":    event.AggregateID,
		"event_type": event.EventType,
	})

	if err := checkSaleEvent(event); err != nil {
		w.deadLetter(ctx, event, err, 0, entry)
		return outcomeDeadLettered
	}

	attempts, err := w.publish(ctx, event)
	switch {
	case err == nil:
		w.mark(ctx, event.ID, w.repo.MarkSent, entry)
		return outcomeSent
	case ctx.Err() != nil:
		entry.WithField("attempts", attempts).Info("sale event left pending: worker is stopping")
		return outcomeDeferred
	default:
		w.deadLetter(ctx, event, err, attempts, entry)
		return outcomeDeadLettered
	}
}

// publish делает до maxAttempts попыток с удваивающейся паузой и возвращает
// число сделанных попыток.
func (w *Worker) publish(ctx context.Context, event domain.OutboxMessage) (int, error) {
	publisher := w.route(event.EventType)
	label := eventLabel(event.EventType)

	var lastErr error
	for attempt := 1; attempt <= w.opts.maxAttempts; attempt++ {
		if lastErr = publisher.Publish(event); lastErr == nil {
			publishAttempts.WithLabelValues(label, "sent").Inc()
			return attempt, nil
		}
		publishAttempts.WithLabelValues(label, "error").Inc()

		if attempt == w.opts.maxAttempts {
			break
		}
		if delay := retryDelay(w.opts.retryBaseDelay, attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return attempt, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return w.opts.maxAttempts, fmt.Errorf("%w: %s after %d attempts: %w",
		domain.ErrOutboxPublish, event.EventType, w.opts.maxAttempts, lastErr)
}

func (w *Worker) route(eventType string) domain.OutboxPublisher {
	if p, ok := w.opts.routes[eventType]; ok {
		return p
	}
	return w.publisher
}

// deadLetter отправляет событие в DLQ и помечает его failed. Событие
// помечается failed даже без DLQ, чтобы не блокировать остальные.
func (w *Worker) deadLetter(ctx context.Context, event domain.OutboxMessage, cause error, attempts int, entry *log.Entry) {
	reason := deadLetterReason(cause)
	entry = entry.WithFields(log.Fields{"reason": reason, "attempts": attempts})
	entry.WithError(cause).Error("sale event could not be delivered")
	deadLettered.WithLabelValues(eventLabel(event.EventType), reason).Inc()

	if w.opts.deadLetters != nil {
		msg, err := newDeadLetter(event, cause, attempts, w.now()).message(event)
		if err == nil {
			err = w.opts.deadLetters.Publish(msg)
		}
		if err != nil {
			entry.WithError(err).Warn("failed to publish sale event to DLQ")
			publishAttempts.WithLabelValues(eventLabel(event.EventType), "dlq_failed").Inc()
		}
	}

	w.mark(ctx, event.ID, w.repo.MarkFailed, entry)
}

func (w *Worker) mark(ctx context.Context, id string, markFn func(context.Context, string) error, entry *log.Entry) {
	err := markFn(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrOutboxPublish):
		// Запись уже обработана другим воркером.
		entry.Debug("outbox record is no longer pending")
	default:
		entry.WithError(err).Warn("failed to update outbox record state")
	}
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.opts.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	observeBacklog(stats, w.now())
}

func (w *Worker) logBatch(res BatchResult) {
	if res == (BatchResult{}) {
		return
	}
	w.opts.logger.WithFields(log.Fields{
		"sent":          res.Sent,
		"dead_lettered": res.DeadLettered,
		"deferred":      res.Deferred,
	}).Debug("outbox batch processed")
}
