package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RegisterSession: период работы открытой кассы.
type RegisterSession struct {
	ID       string
	OpenedBy string
	OpenedAt time.Time
}

// CashEntry: движение по кассе, привязанное к открытой смене.
type CashEntry struct {
	ID          string
	SessionID   string
	SaleID      string
	Amount      decimal.Decimal
	Username    string
	Description string
	CreatedAt   time.Time
}

// CardEntry: запись в карточном реестре.
type CardEntry struct {
	ID              string
	SaleID          string
	Amount          decimal.Decimal
	PaymentMethodID string
	Kind            PaymentKind
	CreatedAt       time.Time
}

// StockDirection: направление складского движения.
type StockDirection string

const (
	// StockOut: списание со склада (продажа).
	StockOut StockDirection = "OUT"
	// StockIn: возврат на склад.
	StockIn StockDirection = "IN"
)

// StockMovement: движение по одной позиции продажи.
type StockMovement struct {
	ID        string
	SaleID    string
	ProductID string
	Quantity  int32
	Direction StockDirection
	CreatedAt time.Time
}

// User: пользователь системы.
type User struct {
	ID       string
	Username string
	Name     string
}

// Principal: действующий пользователь, определяется на границе запроса.
type Principal struct {
	Username string
}
