package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Receivable: задолженность клиента, создаётся один раз при закрытии продажи.
type Receivable struct {
	ID         string
	SaleID     string
	CustomerID string
	Amount     decimal.Decimal
	Settlement Settlement
	CreatedAt  time.Time
}

// InstallmentRequest: параметры одной части рассрочки.
type InstallmentRequest struct {
	Amount        decimal.Decimal
	Discount      decimal.Decimal
	Surcharge     decimal.Decimal
	Receivable    Receivable
	Sequence      int
	Total         int
	DueDate       time.Time
	PaymentMethod PaymentMethod
	TitleID       string
}

// Installment: датированная часть задолженности.
type Installment struct {
	ID              string
	ReceivableID    string
	SaleID          string
	Sequence        int
	Total           int
	Amount          decimal.Decimal
	Discount        decimal.Decimal
	Surcharge       decimal.Decimal
	DueDate         time.Time
	PaymentMethodID string
	TitleID         string
}
