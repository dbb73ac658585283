package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

type receivableLedger struct {
	store *Store
}

// NewReceivableLedger создаёт реестр задолженностей поверх таблицы receivables.
func NewReceivableLedger(store *Store) domain.ReceivableLedger {
	return &receivableLedger{store: store}
}

// Register создаёт задолженность. Вторая задолженность по той же продаже
// нарушает уникальный индекс и считается конфликтом записи.
func (l *receivableLedger) Register(ctx context.Context, receivable domain.Receivable) (domain.Receivable, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if receivable.ID == "" {
		receivable.ID = uuid.NewString()
	}
	if receivable.CreatedAt.IsZero() {
		receivable.CreatedAt = time.Now().UTC()
	}

	if _, err := l.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO receivables (id, sale_id, customer_id, amount, settlement, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		receivable.ID, receivable.SaleID, receivable.CustomerID, receivable.Amount,
		string(receivable.Settlement), receivable.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.Receivable{}, domain.ErrSaleVersionConflict
		}
		return domain.Receivable{}, fmt.Errorf("insert receivable: %w", err)
	}
	return receivable, nil
}

var _ domain.ReceivableLedger = (*receivableLedger)(nil)

type installmentRepository struct {
	store *Store
}

// NewInstallmentRepository создаёт хранилище частей рассрочки.
func NewInstallmentRepository(store *Store) domain.InstallmentRepository {
	return &installmentRepository{store: store}
}

func (r *installmentRepository) Save(ctx context.Context, inst domain.Installment) (domain.Installment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}

	if _, err := r.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO installments (
			id, receivable_id, sale_id, sequence, total, amount, discount, surcharge,
			due_date, payment_method_id, title_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		inst.ID, inst.ReceivableID, inst.SaleID, inst.Sequence, inst.Total, inst.Amount,
		inst.Discount, inst.Surcharge, inst.DueDate, inst.PaymentMethodID, inst.TitleID,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.Installment{}, domain.ErrSaleVersionConflict
		}
		return domain.Installment{}, fmt.Errorf("insert installment: %w", err)
	}
	return inst, nil
}

func (r *installmentRepository) ListByReceivable(ctx context.Context, receivableID string) ([]domain.Installment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, `
		SELECT id, receivable_id, sale_id, sequence, total, amount, discount, surcharge,
		       due_date, payment_method_id, title_id
		FROM installments
		WHERE receivable_id = $1
		ORDER BY sequence
	`, receivableID)
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Installment, 0)
	for rows.Next() {
		var inst domain.Installment
		if err := rows.Scan(
			&inst.ID, &inst.ReceivableID, &inst.SaleID, &inst.Sequence, &inst.Total, &inst.Amount,
			&inst.Discount, &inst.Surcharge, &inst.DueDate, &inst.PaymentMethodID, &inst.TitleID,
		); err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		inst.DueDate = inst.DueDate.UTC()
		result = append(result, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate installments: %w", err)
	}
	return result, nil
}

var _ domain.InstallmentRepository = (*installmentRepository)(nil)

type cashLedger struct {
	store *Store
}

// NewCashLedger создаёт кассовый журнал.
func NewCashLedger(store *Store) domain.CashLedger {
	return &cashLedger{store: store}
}

func (l *cashLedger) Record(ctx context.Context, entry domain.CashEntry) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := l.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO cash_entries (id, session_id, sale_id, amount, username, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		entry.ID, entry.SessionID, entry.SaleID, entry.Amount, entry.Username,
		entry.Description, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert cash entry: %w", err)
	}
	return nil
}

var _ domain.CashLedger = (*cashLedger)(nil)

type cardLedger struct {
	store *Store
}

// NewCardLedger создаёт карточный реестр.
func NewCardLedger(store *Store) domain.CardLedger {
	return &cardLedger{store: store}
}

func (l *cardLedger) Record(ctx context.Context, entry domain.CardEntry) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if _, err := l.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO card_entries (id, sale_id, amount, payment_method_id, kind, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		entry.ID, entry.SaleID, entry.Amount, entry.PaymentMethodID, string(entry.Kind), entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert card entry: %w", err)
	}
	return nil
}

var _ domain.CardLedger = (*cardLedger)(nil)

type stockMovementRepository struct {
	store *Store
}

// NewStockMovementRepository создаёт хранилище складских движений.
func NewStockMovementRepository(store *Store) domain.StockMovementRepository {
	return &stockMovementRepository{store: store}
}

func (r *stockMovementRepository) Save(ctx context.Context, movement domain.StockMovement) (domain.StockMovement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}

	if _, err := r.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO stock_movements (id, sale_id, product_id, quantity, direction, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`,
		movement.ID, movement.SaleID, movement.ProductID, movement.Quantity,
		string(movement.Direction), movement.CreatedAt,
	); err != nil {
		return domain.StockMovement{}, fmt.Errorf("insert stock movement: %w", err)
	}
	return movement, nil
}

func (r *stockMovementRepository) ListBySale(ctx context.Context, saleID string) ([]domain.StockMovement, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, direction, created_at
		FROM stock_movements
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()

	result := make([]domain.StockMovement, 0)
	for rows.Next() {
		var (
			m         domain.StockMovement
			direction string
		)
		if err := rows.Scan(&m.ID, &m.SaleID, &m.ProductID, &m.Quantity, &direction, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		m.Direction = domain.StockDirection(direction)
		m.CreatedAt = m.CreatedAt.UTC()
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock movements: %w", err)
	}
	return result, nil
}

var _ domain.StockMovementRepository = (*stockMovementRepository)(nil)
