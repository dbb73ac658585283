package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// PaymentKind: закрытый набор поведений способа оплаты.
type PaymentKind string

const (
	// PaymentKindCash: оплата сразу, через кассу (код "00").
	PaymentKindCash PaymentKind = "cash"
	// PaymentKindCardDebit: дебетовая карта.
	PaymentKindCardDebit PaymentKind = "card_debit"
	// PaymentKindCardCredit: кредитная карта.
	PaymentKindCardCredit PaymentKind = "card_credit"
	// PaymentKindTerm: рассрочка с периодами в днях ("30", "30/60", ...).
	PaymentKindTerm PaymentKind = "term"
)

// Коды способов оплаты в справочнике.
const (
	PaymentCodeCash       = "00"
	PaymentCodeCashAlias  = "CASH"
	PaymentCodeCardDebit  = "CARD_DEBIT"
	PaymentCodeCardCredit = "CARD_CREDIT"
)

// PaymentBehavior: разобранный код способа оплаты.
type PaymentBehavior struct {
	Kind PaymentKind
	// Periods: сроки частей рассрочки в днях, только для PaymentKindTerm.
	Periods []int
}

// IsCard сообщает, что способ оплаты: карта.
func (b PaymentBehavior) IsCard() bool {
	return b.Kind == PaymentKindCardDebit || b.Kind == PaymentKindCardCredit
}

// InstallmentCount возвращает число частей рассрочки.
func (b PaymentBehavior) InstallmentCount() int {
	return len(b.Periods)
}

// PeriodFor возвращает срок (в днях) части с индексом idx. После последнего
// токена повторяется последний интервал.
func (b PaymentBehavior) PeriodFor(idx int) int {
	n := len(b.Periods)
	switch {
	case n == 0:
		return 0
	case idx < n:
		return b.Periods[idx]
	}
	step := b.Periods[n-1]
	if n > 1 {
		step = b.Periods[n-1] - b.Periods[n-2]
	}
	return b.Periods[n-1] + step*(idx-n+1)
}

// ParsePaymentBehavior разбирает код способа оплаты один раз при загрузке.
func ParsePaymentBehavior(code string) (PaymentBehavior, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	switch normalized {
	case "":
		return PaymentBehavior{}, fmt.Errorf("%w: empty code", ErrInvalidPaymentCode)
	case PaymentCodeCash, PaymentCodeCashAlias:
		return PaymentBehavior{Kind: PaymentKindCash}, nil
	case PaymentCodeCardDebit, string(TitleTypeCardDebit):
		return PaymentBehavior{Kind: PaymentKindCardDebit}, nil
	case PaymentCodeCardCredit, string(TitleTypeCardCredit):
		return PaymentBehavior{Kind: PaymentKindCardCredit}, nil
	}

	tokens := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == '/' || r == '-'
	})
	if len(tokens) == 0 {
		return PaymentBehavior{}, fmt.Errorf("%w: %q", ErrInvalidPaymentCode, code)
	}
	periods := make([]int, 0, len(tokens))
	for _, token := range tokens {
		days, err := strconv.Atoi(strings.TrimSpace(token))
		if err != nil || days <= 0 {
			return PaymentBehavior{}, fmt.Errorf("%w: %q", ErrInvalidPaymentCode, code)
		}
		periods = append(periods, days)
	}
	return PaymentBehavior{Kind: PaymentKindTerm, Periods: periods}, nil
}

// PaymentMethod: неизменяемый справочный способ оплаты.
type PaymentMethod struct {
	ID       string
	Name     string
	Code     string
	Behavior PaymentBehavior
}

// NewPaymentMethod создаёт способ оплаты, разбирая его код.
func NewPaymentMethod(id, name, code string) (PaymentMethod, error) {
	behavior, err := ParsePaymentBehavior(code)
	if err != nil {
		return PaymentMethod{}, err
	}
	return PaymentMethod{ID: id, Name: name, Code: code, Behavior: behavior}, nil
}
