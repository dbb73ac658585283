package kafka

import "time"

// EventType определяет тип события
type EventType string

const (
	// События продажи
	EventTypeSaleOpened      EventType = "sale.opened"
	EventTypeSaleItemAdded   EventType = "sale.item_added"
	EventTypeSaleItemRemoved EventType = "sale.item_removed"
	EventTypeSaleClosed      EventType = "sale.closed"
	EventTypeSaleCloseFailed EventType = "sale.close_failed"
)

// Topics для Kafka. Закрытые продажи публикуются в TopicSaleClosed.
const (
	TopicSaleEvents      = "pdv.sale.events"
	TopicOutboxEvents    = "pdv.outbox.events"
	TopicSaleClosed      = "pdv.sale.closed"
	TopicDeadLetterQueue = "pdv.dlq"
)

// SaleEvent представляет событие продажи
type SaleEvent struct {
	EventType  EventType              `json:"event_type"`
	SaleID     string                 `json:"sale_id"`
	CustomerID string                 `json:"customer_id,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewSaleEvent создает новое событие продажи
func NewSaleEvent(eventType EventType, saleID, customerID, status string, metadata map[string]interface{}) *SaleEvent {
	return &SaleEvent{
		EventType:  eventType,
		SaleID:     saleID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now().UTC(),
		Metadata:   metadata,
	}
}
