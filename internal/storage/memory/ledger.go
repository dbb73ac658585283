package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// appendLog: общий журнал записей с откатом внутри единицы работы.
type appendLog[T any] struct {
	mu      sync.RWMutex
	entries []T
}

func (l *appendLog[T]) append(ctx context.Context, entry T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	n := len(l.entries) - 1
	remember(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if len(l.entries) > n {
			l.entries = l.entries[:n]
		}
	})
}

func (l *appendLog[T]) snapshot(keep func(T) bool) []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]T, 0, len(l.entries))
	for _, e := range l.entries {
		if keep == nil || keep(e) {
			result = append(result, e)
		}
	}
	return result
}

// ReceivableLedger: in-memory реестр задолженностей.
type ReceivableLedger struct {
	log appendLog[domain.Receivable]
}

// NewReceivableLedger создаёт пустой реестр задолженностей.
func NewReceivableLedger() *ReceivableLedger {
	return &ReceivableLedger{}
}

func (l *ReceivableLedger) Register(ctx context.Context, receivable domain.Receivable) (domain.Receivable, error) {
	if receivable.ID == "" {
		receivable.ID = uuid.NewString()
	}
	if receivable.CreatedAt.IsZero() {
		receivable.CreatedAt = time.Now().UTC()
	}
	l.log.append(ctx, receivable)
	return receivable, nil
}

// Entries возвращает копию всех задолженностей.
func (l *ReceivableLedger) Entries() []domain.Receivable {
	return l.log.snapshot(nil)
}

var _ domain.ReceivableLedger = (*ReceivableLedger)(nil)

// CashLedger: in-memory журнал кассовых движений.
type CashLedger struct {
	log appendLog[domain.CashEntry]
}

// NewCashLedger создаёт пустой кассовый журнал.
func NewCashLedger() *CashLedger {
	return &CashLedger{}
}

func (l *CashLedger) Record(ctx context.Context, entry domain.CashEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	l.log.append(ctx, entry)
	return nil
}

// Entries возвращает копию всех кассовых движений.
func (l *CashLedger) Entries() []domain.CashEntry {
	return l.log.snapshot(nil)
}

var _ domain.CashLedger = (*CashLedger)(nil)

// CardLedger: in-memory карточный реестр.
type CardLedger struct {
	log appendLog[domain.CardEntry]
}

// NewCardLedger создаёт пустой карточный реестр.
func NewCardLedger() *CardLedger {
	return &CardLedger{}
}

func (l *CardLedger) Record(ctx context.Context, entry domain.CardEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	l.log.append(ctx, entry)
	return nil
}

// Entries возвращает копию всех карточных записей.
func (l *CardLedger) Entries() []domain.CardEntry {
	return l.log.snapshot(nil)
}

var _ domain.CardLedger = (*CardLedger)(nil)

// InstallmentRepository хранит части рассрочки.
type InstallmentRepository struct {
	log appendLog[domain.Installment]
}

// NewInstallmentRepository создаёт пустое хранилище частей рассрочки.
func NewInstallmentRepository() *InstallmentRepository {
	return &InstallmentRepository{}
}

func (r *InstallmentRepository) Save(ctx context.Context, installment domain.Installment) (domain.Installment, error) {
	if installment.ID == "" {
		installment.ID = uuid.NewString()
	}
	r.log.append(ctx, installment)
	return installment, nil
}

func (r *InstallmentRepository) ListByReceivable(_ context.Context, receivableID string) ([]domain.Installment, error) {
	return r.log.snapshot(func(i domain.Installment) bool {
		return i.ReceivableID == receivableID
	}), nil
}

var _ domain.InstallmentRepository = (*InstallmentRepository)(nil)

// StockMovementRepository хранит складские движения.
type StockMovementRepository struct {
	log appendLog[domain.StockMovement]
}

// NewStockMovementRepository создаёт пустое хранилище движений.
func NewStockMovementRepository() *StockMovementRepository {
	return &StockMovementRepository{}
}

func (r *StockMovementRepository) Save(ctx context.Context, movement domain.StockMovement) (domain.StockMovement, error) {
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	r.log.append(ctx, movement)
	return movement, nil
}

func (r *StockMovementRepository) ListBySale(_ context.Context, saleID string) ([]domain.StockMovement, error) {
	return r.log.snapshot(func(m domain.StockMovement) bool {
		return m.SaleID == saleID
	}), nil
}

var _ domain.StockMovementRepository = (*StockMovementRepository)(nil)
