package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SaleRepository описывает требования к хранилищу продаж.
type SaleRepository interface {
	// Status возвращает только статус продажи, без загрузки сущности.
	Status(ctx context.Context, id string) (SaleStatus, error)
	// Get возвращает продажу или ErrSaleNotFound.
	Get(ctx context.Context, id string) (Sale, error)
	// GetForUpdate читает продажу с блокировкой до конца транзакции.
	GetForUpdate(ctx context.Context, id string) (Sale, error)
	// Create сохраняет новую продажу и возвращает её идентификатор.
	Create(ctx context.Context, sale Sale) (string, error)
	// UpdateDetails меняет только клиента и примечание.
	UpdateDetails(ctx context.Context, id, customerID, note string) error
	// AdjustTotal прибавляет delta к накопленной сумме открытой продажи.
	AdjustTotal(ctx context.Context, id string, delta decimal.Decimal) error
	// Close фиксирует закрытие; ErrSaleAlreadyClosed, если продажа уже не открыта.
	Close(ctx context.Context, closing SaleClosing) error
	CountOpen(ctx context.Context) (int, error)
	List(ctx context.Context) ([]Sale, error)
	// ListByStatus возвращает страницу продаж со статусом, новые первыми.
	ListByStatus(ctx context.Context, status SaleStatus, page Page) (SalePage, error)
}

// SaleItemRepository хранит позиции продаж.
type SaleItemRepository interface {
	Add(ctx context.Context, item SaleItem) (SaleItem, error)
	// Remove удаляет позицию продажи и возвращает её; ErrItemNotFound, если её нет.
	Remove(ctx context.Context, itemID, saleID string) (SaleItem, error)
	ListBySale(ctx context.Context, saleID string) ([]SaleItem, error)
}

// PaymentMethodCatalog: справочник способов оплаты.
type PaymentMethodCatalog interface {
	Get(ctx context.Context, id string) (PaymentMethod, error)
}

// TitleCatalog: справочник титулов.
type TitleCatalog interface {
	Get(ctx context.Context, id string) (Title, error)
}

// RegisterSessions сообщает о состоянии кассовой смены.
type RegisterSessions interface {
	IsOpen(ctx context.Context) (bool, error)
	// Current возвращает открытую смену или ErrNoOpenRegister.
	Current(ctx context.Context) (RegisterSession, error)
}

// ReceivableLedger регистрирует задолженности.
type ReceivableLedger interface {
	Register(ctx context.Context, receivable Receivable) (Receivable, error)
}

// InstallmentGenerator создаёт части рассрочки.
type InstallmentGenerator interface {
	Generate(ctx context.Context, req InstallmentRequest) (Installment, error)
}

// InstallmentRepository хранит сгенерированные части рассрочки.
type InstallmentRepository interface {
	Save(ctx context.Context, installment Installment) (Installment, error)
	ListByReceivable(ctx context.Context, receivableID string) ([]Installment, error)
}

// StockMovementRepository хранит складские движения.
type StockMovementRepository interface {
	Save(ctx context.Context, movement StockMovement) (StockMovement, error)
	ListBySale(ctx context.Context, saleID string) ([]StockMovement, error)
}

// CashLedger записывает движения по кассе.
type CashLedger interface {
	Record(ctx context.Context, entry CashEntry) error
}

// CardLedger записывает карточные расчёты.
type CardLedger interface {
	Record(ctx context.Context, entry CardEntry) error
}

// StockMover двигает остатки по позициям продажи.
type StockMover interface {
	Move(ctx context.Context, saleID string, direction StockDirection) error
}

// UserDirectory разрешает имя пользователя; ErrUnknownUser, если его нет.
type UserDirectory interface {
	Lookup(ctx context.Context, username string) (User, error)
}

// TxManager выполняет fn как единую единицу работы.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// SaleStep задаёт константы шагов закрытия для метрик и логов.
type SaleStep string

const (
	SaleStepValidate   SaleStep = "validate"
	SaleStepReceivable SaleStep = "receivable"
	SaleStepCash       SaleStep = "cash"
	SaleStepCard       SaleStep = "card"
	SaleStepInstall    SaleStep = "installments"
	SaleStepStock      SaleStep = "stock"
	SaleStepClose      SaleStep = "close"
)
