package domain

import "errors"

// Ошибки валидации: детерминированы, исправляются вызывающей стороной и
// возвращаются клиенту как есть.
var (
	// ErrSaleAlreadyClosed: продажа уже закрыта.
	ErrSaleAlreadyClosed = errors.New("sale already closed")
	// ErrSaleNotFound возвращается, если продажа не найдена в хранилище.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrNoSaleValue: сумма товаров должна быть строго положительной.
	ErrNoSaleValue = errors.New("sale has no value, check it")
	// ErrNoOpenRegister: для расчёта наличными нужна открытая кассовая смена.
	ErrNoOpenRegister = errors.New("no open cash register")
	// ErrInstallmentSumMismatch: сумма частей не совпадает с суммой товаров.
	ErrInstallmentSumMismatch = errors.New("installments total differs from products total, check it")
	// ErrEmptyInstallment: часть оплаты наличными без значения.
	ErrEmptyInstallment = errors.New("installment without value, check it")
	// ErrNoCustomer: оплата в рассрочку требует клиента.
	ErrNoCustomer = errors.New("sale without customer, check it")
	// ErrInvalidInstallmentValue: некорректная сумма рассрочки.
	ErrInvalidInstallmentValue = errors.New("invalid installment value")
	// ErrSettlementUnknown: не удалось определить способ расчёта (наличные или карта).
	ErrSettlementUnknown = errors.New("settlement kind could not be determined, check the title")
	// ErrPaymentMethodNotFound: способ оплаты отсутствует в справочнике.
	ErrPaymentMethodNotFound = errors.New("payment method not found")
	// ErrInvalidPaymentCode: код поведения способа оплаты не распознан.
	ErrInvalidPaymentCode = errors.New("invalid payment method code")
	// ErrUnknownUser: текущий пользователь не найден в справочнике.
	ErrUnknownUser = errors.New("unknown user")
	// ErrItemNotFound: позиция не найдена в продаже.
	ErrItemNotFound = errors.New("sale item not found")
	// ErrInvalidItem: позиция с отрицательной ценой или без товара.
	ErrInvalidItem = errors.New("invalid sale item")
)

// Инфраструктурные ошибки.
var (
	// ErrCloseFailed: единственная ошибка, которую видит клиент при сбое
	// инфраструктуры во время закрытия продажи. Причина только логируется.
	ErrCloseFailed = errors.New("failed to close the sale, contact support")
	// ErrTitleNotFound: титул отсутствует в справочнике.
	ErrTitleNotFound = errors.New("title not found")
	// ErrReceivableNotFound: дебиторская задолженность не найдена.
	ErrReceivableNotFound = errors.New("receivable not found")
	// ErrSaleVersionConflict: конкурентная запись в продажу.
	ErrSaleVersionConflict = errors.New("sale version conflict")
	// ErrOutboxPublish: сообщение outbox не опубликовано или уже не ожидает публикации.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

var validationErrors = []error{
	ErrSaleAlreadyClosed,
	ErrSaleNotFound,
	ErrNoSaleValue,
	ErrNoOpenRegister,
	ErrInstallmentSumMismatch,
	ErrEmptyInstallment,
	ErrNoCustomer,
	ErrInvalidInstallmentValue,
	ErrSettlementUnknown,
	ErrPaymentMethodNotFound,
	ErrInvalidPaymentCode,
	ErrUnknownUser,
	ErrItemNotFound,
	ErrInvalidItem,
}

// IsValidation проверяет, относится ли ошибка к ошибкам валидации.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
