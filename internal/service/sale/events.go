package sale

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/messaging/kafka"
)

var zero = decimal.Zero

const aggregateSale = domain.AggregateSale

const (
	eventSaleOpened      = domain.EventSaleOpened
	eventSaleItemAdded   = domain.EventSaleItemAdded
	eventSaleItemRemoved = domain.EventSaleItemRemoved
	eventSaleClosed      = domain.EventSaleClosed
)

// enqueue пишет событие в outbox в рамках текущей транзакции.
func (s *Service) enqueue(ctx context.Context, saleID, eventType string, payload map[string]interface{}) error {
	if s.deps.Outbox == nil {
		return nil
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["sale_id"] = saleID
	payload["ts"] = s.now().Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	if _, err := s.deps.Outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: aggregateSale,
		AggregateID:   saleID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     s.now(),
	}); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	if s.metrics != nil {
		s.metrics.RecordOutboxEvent()
	}
	return nil
}

// publish отправляет событие в Kafka; ошибки только логируются.
func (s *Service) publish(event *kafka.SaleEvent) {
	if s.events == nil || event == nil {
		return
	}
	if err := s.events.PublishEvent(kafka.TopicSaleEvents, event.SaleID, event); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"sale_id": event.SaleID,
			"event":   event.EventType,
		}).Warn("failed to publish sale event to kafka")
	}
}

func itemPayload(item domain.SaleItem) map[string]interface{} {
	return map[string]interface{}{
		"item_id":    item.ID,
		"product_id": item.ProductID,
		"quantity":   item.Quantity,
		"unit_price": item.UnitPrice.StringFixed(2),
	}
}

func openedEvent(sale domain.Sale) *kafka.SaleEvent {
	return kafka.NewSaleEvent(kafka.EventTypeSaleOpened, sale.ID, sale.CustomerID, string(sale.Status), map[string]interface{}{
		"owner": sale.Owner,
	})
}

func itemEvent(eventType string, item domain.SaleItem) *kafka.SaleEvent {
	kind := kafka.EventTypeSaleItemAdded
	if eventType == eventSaleItemRemoved {
		kind = kafka.EventTypeSaleItemRemoved
	}
	return kafka.NewSaleEvent(kind, item.SaleID, "", string(domain.SaleStatusOpen), itemPayload(item))
}

func closedEvent(sale domain.Sale, closing domain.SaleClosing, settlement domain.Settlement) *kafka.SaleEvent {
	return kafka.NewSaleEvent(kafka.EventTypeSaleClosed, sale.ID, sale.CustomerID, string(closing.Status), map[string]interface{}{
		"final_value":       closing.FinalValue.StringFixed(2),
		"discount":          closing.Discount.StringFixed(2),
		"surcharge":         closing.Surcharge.StringFixed(2),
		"payment_method_id": closing.PaymentMethod.ID,
		"settlement":        string(settlement),
	})
}
