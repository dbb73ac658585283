package app

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pdv/internal/service/outbox"
)

// initKafkaProducer создаёт producer, если список брокеров не пуст.
// Пустой список означает работу без Kafka и возвращает nil, nil.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokerList = append(brokerList, b)
		}
	}
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// newOutboxWorker собирает воркер, который переносит события продаж из outbox
// в Kafka. Закрытия продаж идут в отдельный топик, недоставленные события в DLQ.
func newOutboxWorker(repo domain.OutboxRepository, producer *kafka.Producer, cfg Config, logger *log.Entry) *outbox.Worker {
	if repo == nil || producer == nil {
		return nil
	}

	return outbox.NewWorker(
		repo,
		kafka.NewOutboxPublisher(producer, kafka.TopicOutboxEvents),
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithRoute(domain.EventSaleClosed, kafka.NewOutboxPublisher(producer, kafka.TopicSaleClosed)),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
}
