package outbox

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

type options struct {
	logger         *log.Entry
	deadLetters    domain.OutboxPublisher
	routes         map[string]domain.OutboxPublisher
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*options)

func WithLogger(logger *log.Entry) Option {
	return func(o *options) { o.logger = logger }
}

// WithDLQPublisher задаёт publisher для событий, которые не удалось доставить.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(o *options) { o.deadLetters = publisher }
}

// WithRoute отправляет события одного типа в отдельный publisher.
// Остальные типы идут в publisher по умолчанию.
func WithRoute(eventType string, publisher domain.OutboxPublisher) Option {
	return func(o *options) {
		if publisher == nil {
			return
		}
		if o.routes == nil {
			o.routes = make(map[string]domain.OutboxPublisher)
		}
		o.routes[eventType] = publisher
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(o *options) { o.pollInterval = interval }
}

func WithBatchSize(batchSize int) Option {
	return func(o *options) { o.batchSize = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации до отправки в DLQ.
func WithMaxAttempts(maxAttempts int) Option {
	return func(o *options) { o.maxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт первую паузу между попытками; дальше она удваивается.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(o *options) { o.retryBaseDelay = delay }
}

func (o *options) normalize() {
	if o.logger == nil {
		o.logger = log.WithField("component", "outbox-worker")
	}
	if o.pollInterval <= 0 {
		o.pollInterval = defaultPollInterval
	}
	if o.batchSize <= 0 {
		o.batchSize = defaultBatchSize
	}
	if o.maxAttempts <= 0 {
		o.maxAttempts = defaultMaxAttempts
	}
	if o.retryBaseDelay < 0 {
		o.retryBaseDelay = 0
	}
}

// retryDelay: пауза перед попыткой attempt+1, не больше maxRetryDelay.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= maxRetryDelay/2 {
			return maxRetryDelay
		}
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}
