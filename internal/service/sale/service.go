package sale

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
	"github.com/vladislavdragonenkov/pdv/internal/metrics"
)

// SuccessMessage возвращается клиенту после успешного закрытия продажи.
const SuccessMessage = "sale closed successfully"

// EventPublisher публикует события продаж наружу после фиксации транзакции.
type EventPublisher interface {
	PublishEvent(topic string, key string, event interface{}) error
}

// Dependencies: внешние коллабораторы сервиса продаж.
type Dependencies struct {
	Sales          domain.SaleRepository
	Items          domain.SaleItemRepository
	PaymentMethods domain.PaymentMethodCatalog
	Titles         domain.TitleCatalog
	Registers      domain.RegisterSessions
	Receivables    domain.ReceivableLedger
	Installments   domain.InstallmentGenerator
	Cash           domain.CashLedger
	Card           domain.CardLedger
	Stock          domain.StockMover
	Users          domain.UserDirectory
	Tx             domain.TxManager
	Outbox         domain.OutboxRepository
}

func (d Dependencies) validate() error {
	required := []struct {
		name    string
		missing bool
	}{
		{"sales", d.Sales == nil},
		{"items", d.Items == nil},
		{"payment methods", d.PaymentMethods == nil},
		{"titles", d.Titles == nil},
		{"registers", d.Registers == nil},
		{"receivables", d.Receivables == nil},
		{"installments", d.Installments == nil},
		{"cash ledger", d.Cash == nil},
		{"card ledger", d.Card == nil},
		{"stock", d.Stock == nil},
		{"users", d.Users == nil},
		{"tx manager", d.Tx == nil},
	}
	for _, dep := range required {
		if dep.missing {
			return fmt.Errorf("sale service: %s dependency is required", dep.name)
		}
	}
	return nil
}

// Service: оркестратор продаж: открытие, позиции, закрытие и выборки.
type Service struct {
	deps    Dependencies
	logger  *log.Entry
	metrics *metrics.SaleMetrics
	events  EventPublisher
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает запись метрик.
func WithMetrics(m *metrics.SaleMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithEventPublisher включает публикацию событий в Kafka после коммита.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт сервис продаж.
func NewService(deps Dependencies, opts ...Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	s := &Service{
		deps:   deps,
		logger: log.New().WithField("component", "sale-service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open создаёт новую продажу или обновляет клиента и примечание существующей.
func (s *Service) Open(ctx context.Context, actor domain.Principal, sale domain.Sale) (string, error) {
	if !sale.IsNew() {
		if err := s.deps.Sales.UpdateDetails(ctx, sale.ID, sale.CustomerID, sale.Note); err != nil {
			return "", fmt.Errorf("update sale details: %w", err)
		}
		return sale.ID, nil
	}

	user, err := s.deps.Users.Lookup(ctx, actor.Username)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownUser) {
			return "", err
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	sale.Status = domain.SaleStatusOpen
	sale.ProductTotal = zero
	sale.CreatedAt = s.now()
	sale.Owner = user.Username

	var id string
	err = s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		created, err := s.deps.Sales.Create(ctx, sale)
		if err != nil {
			return fmt.Errorf("create sale: %w", err)
		}
		id = created
		sale.ID = created
		return s.enqueue(ctx, created, eventSaleOpened, map[string]interface{}{
			"owner":       sale.Owner,
			"customer_id": sale.CustomerID,
		})
	})
	if err != nil {
		s.logger.WithError(err).Error("open sale failed")
		return "", err
	}

	if s.metrics != nil {
		s.metrics.RecordSaleOpened()
	}
	s.logger.WithFields(log.Fields{"sale_id": id, "owner": sale.Owner}).Info("sale opened")
	s.publish(openedEvent(sale))
	return id, nil
}

// Search ищет продажу по идентификатору или возвращает страницу по статусу.
func (s *Service) Search(ctx context.Context, filter domain.SaleFilter, statusLabel string, page domain.Page) (domain.SalePage, error) {
	page = page.Normalize()
	if filter.ID != "" {
		sale, err := s.deps.Sales.Get(ctx, filter.ID)
		if errors.Is(err, domain.ErrSaleNotFound) {
			return domain.SalePage{Sales: []domain.Sale{}, Page: page}, nil
		}
		if err != nil {
			return domain.SalePage{}, fmt.Errorf("get sale: %w", err)
		}
		return domain.SalePage{Sales: []domain.Sale{sale}, Total: 1, Page: page}, nil
	}
	result, err := s.deps.Sales.ListByStatus(ctx, domain.StatusFromLabel(statusLabel), page)
	if err != nil {
		return domain.SalePage{}, fmt.Errorf("list sales by status: %w", err)
	}
	return result, nil
}

// List возвращает все продажи.
func (s *Service) List(ctx context.Context) ([]domain.Sale, error) {
	sales, err := s.deps.Sales.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return sales, nil
}

// CountOpen возвращает число открытых продаж.
func (s *Service) CountOpen(ctx context.Context) (int, error) {
	count, err := s.deps.Sales.CountOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("count open sales: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SetOpenSales(count)
	}
	return count, nil
}
