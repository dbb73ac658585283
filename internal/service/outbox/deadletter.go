package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

var errInvalidEvent = errors.New("invalid sale event")

// Причины попадания в DLQ.
const (
	ReasonInvalidEvent  = "invalid_event"
	ReasonTimeout       = "timeout"
	ReasonPublishFailed = "publish_failed"
	ReasonUnknown       = "unknown"
)

var deadLetterReasons = []struct {
	err    error
	reason string
}{
	{errInvalidEvent, ReasonInvalidEvent},
	{context.DeadlineExceeded, ReasonTimeout},
	{domain.ErrOutboxPublish, ReasonPublishFailed},
}

func deadLetterReason(err error) string {
	for _, r := range deadLetterReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonUnknown
}

// checkSaleEvent отсеивает сообщения, которые повторная публикация не исправит.
func checkSaleEvent(msg domain.OutboxMessage) error {
	switch {
	case msg.AggregateType != domain.AggregateSale:
		return fmt.Errorf("%w: aggregate type %q", errInvalidEvent, msg.AggregateType)
	case strings.TrimSpace(msg.AggregateID) == "":
		return fmt.Errorf("%w: missing sale id", errInvalidEvent)
	case !domain.IsSaleEvent(msg.EventType):
		return fmt.Errorf("%w: unknown event type %q", errInvalidEvent, msg.EventType)
	case len(msg.Payload) > 0 && !json.Valid(msg.Payload):
		return fmt.Errorf("%w: payload is not json", errInvalidEvent)
	}
	return nil
}

// deadLetter: запись в DLQ. Формат читает cmd/dlq-replay.
type deadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	// RawPayload хранит payload, который не является JSON.
	RawPayload     string `json:"raw_payload,omitempty"`
	OccurredAt     string `json:"occurred_at"`
	PublishError   string `json:"publish_error"`
	Reason         string `json:"reason"`
	Attempts       int    `json:"attempts"`
	DeadLetteredAt string `json:"dlq_published_at"`
}

func newDeadLetter(msg domain.OutboxMessage, cause error, attempts int, now time.Time) deadLetter {
	dl := deadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		OccurredAt:     msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		PublishError:   cause.Error(),
		Reason:         deadLetterReason(cause),
		Attempts:       attempts,
		DeadLetteredAt: now.UTC().Format(time.RFC3339Nano),
	}
	if json.Valid(msg.Payload) {
		dl.Payload = json.RawMessage(msg.Payload)
	} else {
		dl.RawPayload = string(msg.Payload)
	}
	return dl
}

// message упаковывает запись в outbox-сообщение той же продажи,
// чтобы DLQ сохранял ключ партиционирования.
func (dl deadLetter) message(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	payload, err := json.Marshal(dl)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal dlq record: %w", err)
	}
	return domain.OutboxMessage{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		CreatedAt:     msg.CreatedAt,
	}, nil
}
