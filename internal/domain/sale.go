package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SaleStatus описывает жизненный цикл продажи.
type SaleStatus string

const (
	// SaleStatusOpen: продажа открыта, позиции можно добавлять и удалять.
	SaleStatusOpen SaleStatus = "OPEN"
	// SaleStatusClosed: продажа закрыта, финансовые поля зафиксированы.
	SaleStatusClosed SaleStatus = "CLOSED"
)

// StatusLabelOpen: метка статуса открытых продаж в фильтрах списка.
const StatusLabelOpen = "ABERTA"

// StatusFromLabel переводит метку фильтра в статус: "ABERTA" → OPEN, всё остальное → CLOSED.
func StatusFromLabel(label string) SaleStatus {
	if label == StatusLabelOpen {
		return SaleStatusOpen
	}
	return SaleStatusClosed
}

// Sale агрегирует состояние продажи.
type Sale struct {
	ID string
	// CustomerID может быть пустым: клиент обязателен только для рассрочки.
	CustomerID string
	Status     SaleStatus
	// ProductTotal: накопленная сумма позиций.
	ProductTotal    decimal.Decimal
	Note            string
	CreatedAt       time.Time
	Owner           string
	PaymentMethodID string
	FinalValue      decimal.Decimal
	Discount        decimal.Decimal
	Surcharge       decimal.Decimal
	ClosedAt        time.Time
	Version         int64
}

// IsNew сообщает, что продажа ещё не сохранялась.
func (s *Sale) IsNew() bool {
	return s.ID == ""
}

// IsOpen сообщает, что продажа открыта.
func (s *Sale) IsOpen() bool {
	return s.Status == SaleStatusOpen
}

// HasCustomer сообщает, привязан ли к продаже клиент.
func (s *Sale) HasCustomer() bool {
	return s.CustomerID != ""
}

// SaleItem: одна позиция продажи.
type SaleItem struct {
	ID        string
	SaleID    string
	ProductID string
	Quantity  int32
	UnitPrice decimal.Decimal
	CreatedAt time.Time
}

// Subtotal возвращает quantity × unit price.
func (i SaleItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

// Validate проверяет позицию перед сохранением.
func (i SaleItem) Validate() error {
	if i.SaleID == "" || i.ProductID == "" {
		return ErrInvalidItem
	}
	if i.Quantity <= 0 || i.UnitPrice.IsNegative() {
		return ErrInvalidItem
	}
	return nil
}

// ItemResult: результат операций с позициями продажи.
type ItemResult string

const (
	// ItemResultOK: операция выполнена.
	ItemResultOK ItemResult = "ok"
	// ItemResultSaleClosed: продажа закрыта, изменений нет.
	ItemResultSaleClosed ItemResult = "sale closed"
)

// SaleClosing: набор полей, которые фиксируются при закрытии продажи.
type SaleClosing struct {
	SaleID        string
	Status        SaleStatus
	FinalValue    decimal.Decimal
	Discount      decimal.Decimal
	Surcharge     decimal.Decimal
	ClosedAt      time.Time
	PaymentMethod PaymentMethod
}

// SaleFilter: фильтр поиска продаж.
type SaleFilter struct {
	ID string
}

// Page описывает страницу выборки.
type Page struct {
	Number int
	Size   int
}

const (
	// DefaultPageSize: размер страницы по умолчанию.
	DefaultPageSize = 20
	// MaxPageSize: верхняя граница размера страницы.
	MaxPageSize = 100
)

// Normalize приводит параметры страницы к допустимым значениям.
func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset возвращает смещение первой записи страницы.
func (p Page) Offset() int {
	return p.Number * p.Size
}

// SalePage: страница результатов поиска.
type SalePage struct {
	Sales []Sale
	Total int
	Page  Page
}
