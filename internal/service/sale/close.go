package sale

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// CloseRequest: параметры закрытия продажи.
type CloseRequest struct {
	SaleID          string
	PaymentMethodID string
	ProductTotal    decimal.Decimal
	Discount        decimal.Decimal
	Surcharge       decimal.Decimal
	// InstallmentAmounts: суммы частей оплаты в текстовом виде, как их ввёл оператор.
	InstallmentAmounts []string
	// TitleIDs: титулы частей, парные InstallmentAmounts.
	TitleIDs []string
	// Settlement явно задаёт способ расчёта для оплаты кодом кассы.
	// Пустое значение: определить по первому титулу.
	Settlement domain.Settlement
}

// FinalValue возвращает productTotal + surcharge - discount.
func (r CloseRequest) FinalValue() decimal.Decimal {
	return r.ProductTotal.Add(r.Surcharge).Sub(r.Discount)
}

// closeState: данные, накопленные за одно закрытие.
type closeState struct {
	req        CloseRequest
	actor      domain.Principal
	sale       domain.Sale
	method     domain.PaymentMethod
	settlement domain.Settlement
	cardKind   domain.PaymentKind
	final      decimal.Decimal
	closedAt   time.Time
	closing    domain.SaleClosing
}

// stepError помечает инфраструктурную ошибку шагом, на котором она произошла.
type stepError struct {
	step domain.SaleStep
	err  error
}

func (e *stepError) Error() string {
	return fmt.Sprintf("%s: %v", e.step, e.err)
}

func (e *stepError) Unwrap() error {
	return e.err
}

func failStep(step domain.SaleStep, err error) error {
	if err == nil || domain.IsValidation(err) {
		return err
	}
	return &stepError{step: step, err: err}
}

// Close закрывает продажу: проверяет её, проводит оплату выбранным способом,
// списывает остатки и фиксирует итог. Всё выполняется в одной транзакции.
// Ошибки валидации возвращаются как есть, любые другие сводятся к ErrCloseFailed.
func (s *Service) Close(ctx context.Context, actor domain.Principal, req CloseRequest) (string, error) {
	start := time.Now()
	state := &closeState{req: req, actor: actor}
	logger := s.logger.WithFields(log.Fields{
		"sale_id":           req.SaleID,
		"payment_method_id": req.PaymentMethodID,
	})

	err := s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.closeWithinTx(ctx, state)
	})
	if err != nil {
		reason := failureReason(err)
		if s.metrics != nil {
			s.metrics.RecordCloseFailed(reason, time.Since(start))
		}
		if domain.IsValidation(err) {
			logger.WithField("reason", reason).Info("sale close rejected")
			return "", err
		}
		entry := logger.WithError(err)
		var se *stepError
		if errors.As(err, &se) {
			entry = entry.WithField("step", se.step)
		}
		entry.Error("sale close failed")
		return "", domain.ErrCloseFailed
	}

	if s.metrics != nil {
		s.metrics.RecordSaleClosed(string(state.settlement), time.Since(start))
	}
	logger.WithFields(log.Fields{
		"settlement":  state.settlement,
		"final_value": state.final.StringFixed(2),
	}).Info("sale closed")
	s.publish(closedEvent(state.sale, state.closing, state.settlement))
	return SuccessMessage, nil
}

func (s *Service) closeWithinTx(ctx context.Context, st *closeState) error {
	sale, err := s.deps.Sales.GetForUpdate(ctx, st.req.SaleID)
	if err != nil {
		if errors.Is(err, domain.ErrSaleNotFound) {
			// Закрыть можно только существующую открытую продажу.
			return fmt.Errorf("%w: %w", domain.ErrSaleAlreadyClosed, domain.ErrSaleNotFound)
		}
		return failStep(domain.SaleStepValidate, err)
	}
	if !sale.IsOpen() {
		return domain.ErrSaleAlreadyClosed
	}
	st.sale = sale

	if !st.req.ProductTotal.IsPositive() {
		return domain.ErrNoSaleValue
	}

	method, err := s.deps.PaymentMethods.Get(ctx, st.req.PaymentMethodID)
	if err != nil {
		return failStep(domain.SaleStepValidate, err)
	}
	st.method = method
	st.final = st.req.FinalValue()
	st.closedAt = s.now()

	switch behavior := method.Behavior; {
	case behavior.Kind == domain.PaymentKindCash:
		settlement, cardKind, err := s.resolveSettlement(ctx, st.req)
		if err != nil {
			return err
		}
		st.settlement = settlement
		st.cardKind = cardKind
		if settlement == domain.SettlementCash {
			err = s.settleCash(ctx, st)
		} else {
			err = s.settleCard(ctx, st)
		}
		if err != nil {
			return err
		}
	case behavior.IsCard():
		st.settlement = domain.SettlementCard
		st.cardKind = behavior.Kind
		if err := s.settleCard(ctx, st); err != nil {
			return err
		}
	case behavior.Kind == domain.PaymentKindTerm:
		st.settlement = domain.SettlementTerm
		if err := s.settleTerm(ctx, st); err != nil {
			return err
		}
	default:
		return domain.ErrInvalidPaymentCode
	}

	if err := s.deps.Stock.Move(ctx, sale.ID, domain.StockOut); err != nil {
		return failStep(domain.SaleStepStock, err)
	}

	st.closing = domain.SaleClosing{
		SaleID:        sale.ID,
		Status:        domain.SaleStatusClosed,
		FinalValue:    st.final,
		Discount:      st.req.Discount,
		Surcharge:     st.req.Surcharge,
		ClosedAt:      st.closedAt,
		PaymentMethod: method,
	}
	if err := s.deps.Sales.Close(ctx, st.closing); err != nil {
		return failStep(domain.SaleStepClose, err)
	}

	return failStep(domain.SaleStepClose, s.enqueue(ctx, sale.ID, eventSaleClosed, map[string]interface{}{
		"status":            string(domain.SaleStatusClosed),
		"final_value":       st.final.StringFixed(2),
		"payment_method_id": method.ID,
		"settlement":        string(st.settlement),
	}))
}

// resolveSettlement определяет способ расчёта для кода кассы. Явное значение
// в запросе имеет приоритет, иначе решает тип первого титула. Вид карты
// в обоих случаях берётся из первого титула.
func (s *Service) resolveSettlement(ctx context.Context, req CloseRequest) (domain.Settlement, domain.PaymentKind, error) {
	switch req.Settlement {
	case domain.SettlementCash:
		return domain.SettlementCash, "", nil
	case domain.SettlementCard:
		kind, err := s.explicitCardKind(ctx, req.TitleIDs)
		if err != nil {
			return "", "", err
		}
		return domain.SettlementCard, kind, nil
	case domain.SettlementUnspecified:
	default:
		return "", "", domain.ErrSettlementUnknown
	}

	if len(req.TitleIDs) == 0 || strings.TrimSpace(req.TitleIDs[0]) == "" {
		return "", "", domain.ErrSettlementUnknown
	}
	title, err := s.deps.Titles.Get(ctx, req.TitleIDs[0])
	if err != nil {
		if errors.Is(err, domain.ErrTitleNotFound) {
			return "", "", fmt.Errorf("%w: title %s", domain.ErrSettlementUnknown, req.TitleIDs[0])
		}
		return "", "", failStep(domain.SaleStepValidate, err)
	}
	settlement, ok := domain.SettlementForTitle(title)
	if !ok {
		return "", "", domain.ErrSettlementUnknown
	}
	if settlement == domain.SettlementCash {
		return settlement, "", nil
	}
	return settlement, cardKindForTitle(title), nil
}

// explicitCardKind: вид карты при явном расчёте картой. Без титула или
// с неизвестным титулом считается дебетовой.
func (s *Service) explicitCardKind(ctx context.Context, titleIDs []string) (domain.PaymentKind, error) {
	if len(titleIDs) == 0 || strings.TrimSpace(titleIDs[0]) == "" {
		return domain.PaymentKindCardDebit, nil
	}
	title, err := s.deps.Titles.Get(ctx, titleIDs[0])
	if err != nil {
		if errors.Is(err, domain.ErrTitleNotFound) {
			return domain.PaymentKindCardDebit, nil
		}
		return "", failStep(domain.SaleStepValidate, err)
	}
	return cardKindForTitle(title), nil
}

func cardKindForTitle(title domain.Title) domain.PaymentKind {
	if title.Type == domain.TitleTypeCardCredit {
		return domain.PaymentKindCardCredit
	}
	return domain.PaymentKindCardDebit
}

// settleCash проводит расчёт через кассовую смену.
func (s *Service) settleCash(ctx context.Context, st *closeState) error {
	open, err := s.deps.Registers.IsOpen(ctx)
	if err != nil {
		return failStep(domain.SaleStepCash, err)
	}
	if !open {
		return domain.ErrNoOpenRegister
	}
	session, err := s.deps.Registers.Current(ctx)
	if err != nil {
		return failStep(domain.SaleStepCash, err)
	}

	sum := decimal.Zero
	for _, raw := range st.req.InstallmentAmounts {
		amount, ok := parseAmount(raw)
		if !ok || !amount.IsPositive() {
			return domain.ErrEmptyInstallment
		}
		sum = sum.Add(amount)
	}
	if !sum.Round(2).Equal(st.req.ProductTotal.Round(2)) {
		return domain.ErrInstallmentSumMismatch
	}

	user, err := s.deps.Users.Lookup(ctx, st.actor.Username)
	if err != nil {
		return failStep(domain.SaleStepCash, err)
	}

	if _, err := s.registerReceivable(ctx, st); err != nil {
		return err
	}

	entry := domain.CashEntry{
		SessionID:   session.ID,
		SaleID:      st.sale.ID,
		Amount:      st.final,
		Username:    user.Username,
		Description: "sale " + st.sale.ID,
		CreatedAt:   st.closedAt,
	}
	if err := s.deps.Cash.Record(ctx, entry); err != nil {
		return failStep(domain.SaleStepCash, err)
	}
	return nil
}

// settleCard проводит расчёт через карточный реестр на сумму товаров.
func (s *Service) settleCard(ctx context.Context, st *closeState) error {
	if _, err := s.registerReceivable(ctx, st); err != nil {
		return err
	}
	entry := domain.CardEntry{
		SaleID:          st.sale.ID,
		Amount:          st.req.ProductTotal,
		PaymentMethodID: st.method.ID,
		Kind:            st.cardKind,
		CreatedAt:       st.closedAt,
	}
	if err := s.deps.Card.Record(ctx, entry); err != nil {
		return failStep(domain.SaleStepCard, err)
	}
	return nil
}

// settleTerm создаёт задолженность клиента и по одной части на каждую сумму.
func (s *Service) settleTerm(ctx context.Context, st *closeState) error {
	if !st.sale.HasCustomer() {
		return domain.ErrNoCustomer
	}
	if len(st.req.InstallmentAmounts) == 0 {
		return domain.ErrInvalidInstallmentValue
	}
	amounts := make([]decimal.Decimal, 0, len(st.req.InstallmentAmounts))
	for _, raw := range st.req.InstallmentAmounts {
		amount, ok := parseAmount(raw)
		if !ok || !amount.IsPositive() {
			return domain.ErrInvalidInstallmentValue
		}
		amounts = append(amounts, amount)
	}

	receivable, err := s.registerReceivable(ctx, st)
	if err != nil {
		return err
	}

	total := len(amounts)
	for i, amount := range amounts {
		titleID := ""
		if i < len(st.req.TitleIDs) {
			titleID = st.req.TitleIDs[i]
		}
		_, err := s.deps.Installments.Generate(ctx, domain.InstallmentRequest{
			Amount:        amount,
			Discount:      st.req.Discount,
			Surcharge:     st.req.Surcharge,
			Receivable:    receivable,
			Sequence:      i + 1,
			Total:         total,
			DueDate:       st.closedAt.AddDate(0, 0, st.method.Behavior.PeriodFor(i)),
			PaymentMethod: st.method,
			TitleID:       titleID,
		})
		if err != nil {
			return failStep(domain.SaleStepInstall, err)
		}
	}
	return nil
}

func (s *Service) registerReceivable(ctx context.Context, st *closeState) (domain.Receivable, error) {
	receivable, err := s.deps.Receivables.Register(ctx, domain.Receivable{
		SaleID:     st.sale.ID,
		CustomerID: st.sale.CustomerID,
		Amount:     st.final,
		Settlement: st.settlement,
		CreatedAt:  st.closedAt,
	})
	if err != nil {
		return domain.Receivable{}, failStep(domain.SaleStepReceivable, err)
	}
	return receivable, nil
}

// parseAmount разбирает сумму, допуская десятичную запятую.
func parseAmount(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, false
	}
	if !strings.Contains(trimmed, ".") {
		trimmed = strings.Replace(trimmed, ",", ".", 1)
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

var failureReasons = []struct {
	err    error
	reason string
}{
	{domain.ErrSaleAlreadyClosed, "already_closed"},
	{domain.ErrSaleNotFound, "not_found"},
	{domain.ErrNoSaleValue, "no_value"},
	{domain.ErrNoOpenRegister, "no_open_register"},
	{domain.ErrInstallmentSumMismatch, "sum_mismatch"},
	{domain.ErrEmptyInstallment, "empty_installment"},
	{domain.ErrNoCustomer, "no_customer"},
	{domain.ErrInvalidInstallmentValue, "invalid_installment"},
	{domain.ErrSettlementUnknown, "settlement_unknown"},
	{domain.ErrPaymentMethodNotFound, "payment_method_not_found"},
	{domain.ErrInvalidPaymentCode, "invalid_payment_code"},
	{domain.ErrUnknownUser, "unknown_user"},
}

func failureReason(err error) string {
	for _, r := range failureReasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}
