package domain

// AggregateSale: тип агрегата для событий продажи в outbox.
const AggregateSale = "sale"

// Типы событий продажи в outbox.
const (
	EventSaleOpened      = "SaleOpened"
	EventSaleItemAdded   = "SaleItemAdded"
	EventSaleItemRemoved = "SaleItemRemoved"
	EventSaleClosed      = "SaleClosed"
)

// IsSaleEvent сообщает, известен ли тип события продажи.
func IsSaleEvent(eventType string) bool {
	switch eventType {
	case EventSaleOpened, EventSaleItemAdded, EventSaleItemRemoved, EventSaleClosed:
		return true
	}
	return false
}
