package sale

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/storage/memory"
)

const (
	methodCash   = "pm-cash"
	methodDebit  = "pm-debit"
	methodTerm   = "pm-30-60"
	titleCash    = "title-din"
	titleCard    = "title-cartdeb"
	titleCredit  = "title-cartcred"
	titleGeneric = "title-boleto"
	cashier      = "cashier"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stubReceivables считает вызовы и может вернуть ошибку.
type stubReceivables struct {
	mu    sync.Mutex
	err   error
	calls []domain.Receivable
	inner *memory.ReceivableLedger
}

func (s *stubReceivables) Register(ctx context.Context, r domain.Receivable) (domain.Receivable, error) {
	s.mu.Lock()
	s.calls = append(s.calls, r)
	s.mu.Unlock()
	if s.err != nil {
		return domain.Receivable{}, s.err
	}
	return s.inner.Register(ctx, r)
}

func (s *stubReceivables) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// stubGenerator записывает запросы на части рассрочки.
type stubGenerator struct {
	mu   sync.Mutex
	reqs []domain.InstallmentRequest
}

func (s *stubGenerator) Generate(_ context.Context, req domain.InstallmentRequest) (domain.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return domain.Installment{ID: "inst", Sequence: req.Sequence, Total: req.Total, Amount: req.Amount, DueDate: req.DueDate}, nil
}

func (s *stubGenerator) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

type stockCall struct {
	saleID    string
	direction domain.StockDirection
}

type stubStock struct {
	mu    sync.Mutex
	calls []stockCall
	err   error
}

func (s *stubStock) Move(_ context.Context, saleID string, direction domain.StockDirection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, stockCall{saleID: saleID, direction: direction})
	return s.err
}

func (s *stubStock) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// closeFailingSales подменяет финальный Close ошибкой.
type closeFailingSales struct {
	domain.SaleRepository
	closeErr error
}

func (s *closeFailingSales) Close(ctx context.Context, closing domain.SaleClosing) error {
	if s.closeErr != nil {
		return s.closeErr
	}
	return s.SaleRepository.Close(ctx, closing)
}

// countingItems считает записи позиций.
type countingItems struct {
	domain.SaleItemRepository
	mu     sync.Mutex
	writes int
}

func (c *countingItems) Add(ctx context.Context, item domain.SaleItem) (domain.SaleItem, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.SaleItemRepository.Add(ctx, item)
}

func (c *countingItems) Remove(ctx context.Context, itemID, saleID string) (domain.SaleItem, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.SaleItemRepository.Remove(ctx, itemID, saleID)
}

func (c *countingItems) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

type publishedEvent struct {
	topic string
	key   string
	event interface{}
}

type stubPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *stubPublisher) PublishEvent(topic, key string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, key: key, event: event})
	return p.err
}

type fixture struct {
	svc          *Service
	sales        *closeFailingSales
	items        *countingItems
	methods      *memory.PaymentMethodCatalog
	titles       *memory.TitleCatalog
	registers    *memory.RegisterSessions
	receivables  *stubReceivables
	installments *stubGenerator
	cash         *memory.CashLedger
	card         *memory.CardLedger
	stock        *stubStock
	users        *memory.UserDirectory
	outbox       *memory.OutboxRepository
	events       *stubPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cash, err := domain.NewPaymentMethod(methodCash, "Cash", "00")
	require.NoError(t, err)
	debit, err := domain.NewPaymentMethod(methodDebit, "Debit card", "CARD_DEBIT")
	require.NoError(t, err)
	term, err := domain.NewPaymentMethod(methodTerm, "30/60 days", "30/60")
	require.NoError(t, err)

	f := &fixture{
		sales:   &closeFailingSales{SaleRepository: memory.NewSaleRepository()},
		items:   &countingItems{SaleItemRepository: memory.NewSaleItemRepository()},
		methods: memory.NewPaymentMethodCatalog(cash, debit, term),
		titles: memory.NewTitleCatalog(
			domain.Title{ID: titleCash, Name: "Dinheiro", Type: domain.TitleTypeCash},
			domain.Title{ID: titleCard, Name: "Debit", Type: domain.TitleTypeCardDebit},
			domain.Title{ID: titleCredit, Name: "Credit", Type: domain.TitleTypeCardCredit},
			domain.Title{ID: titleGeneric, Name: "Boleto", Type: "BOL"},
		),
		registers:    memory.NewRegisterSessions(),
		receivables:  &stubReceivables{inner: memory.NewReceivableLedger()},
		installments: &stubGenerator{},
		cash:         memory.NewCashLedger(),
		card:         memory.NewCardLedger(),
		stock:        &stubStock{},
		users:        memory.NewUserDirectory(domain.User{ID: "u-1", Username: cashier, Name: "Cashier"}),
		outbox:       memory.NewOutboxRepository(),
		events:       &stubPublisher{},
	}

	logger := log.New()
	logger.SetOutput(io.Discard)

	svc, err := NewService(Dependencies{
		Sales:          f.sales,
		Items:          f.items,
		PaymentMethods: f.methods,
		Titles:         f.titles,
		Registers:      f.registers,
		Receivables:    f.receivables,
		Installments:   f.installments,
		Cash:           f.cash,
		Card:           f.card,
		Stock:          f.stock,
		Users:          f.users,
		Tx:             memory.NewTxManager(),
		Outbox:         f.outbox,
	},
		WithLogger(logger.WithField("component", "sale-service-test")),
		WithEventPublisher(f.events),
		WithClock(func() time.Time { return fixedNow }),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// openSale открывает продажу и добавляет одну позицию на сумму price.
func (f *fixture) openSale(t *testing.T, customerID, price string) string {
	t.Helper()
	ctx := context.Background()

	id, err := f.svc.Open(ctx, domain.Principal{Username: cashier}, domain.Sale{CustomerID: customerID})
	require.NoError(t, err)

	res, err := f.svc.AddItem(ctx, AddItemRequest{SaleID: id, ProductID: "product-1", UnitPrice: dec(price)})
	require.NoError(t, err)
	require.Equal(t, domain.ItemResultOK, res)
	return id
}

func (f *fixture) saleStatus(t *testing.T, id string) domain.SaleStatus {
	t.Helper()
	status, err := f.sales.Status(context.Background(), id)
	require.NoError(t, err)
	return status
}

func (f *fixture) assertNoSideEffects(t *testing.T) {
	t.Helper()
	require.Zero(t, f.receivables.count(), "receivables")
	require.Zero(t, f.installments.count(), "installments")
	require.Empty(t, f.cash.Entries(), "cash ledger")
	require.Empty(t, f.card.Entries(), "card ledger")
	require.Zero(t, f.stock.count(), "stock moves")
}

var errInfra = errors.New("connection reset by peer")
