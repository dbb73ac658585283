package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

const saleColumns = `
	id, customer_id, status, product_total, note, owner, payment_method_id,
	final_value, discount, surcharge, created_at, closed_at, version`

type saleRepository struct {
	store *Store
}

// NewSaleRepository создаёт PostgreSQL-реализацию SaleRepository.
func NewSaleRepository(store *Store) domain.SaleRepository {
	return &saleRepository{store: store}
}

func (r *saleRepository) Status(ctx context.Context, id string) (domain.SaleStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var status string
	err := r.store.conn(ctx).QueryRowContext(ctx, `SELECT status FROM sales WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrSaleNotFound
		}
		return "", fmt.Errorf("select sale status: %w", err)
	}
	return domain.SaleStatus(status), nil
}

func (r *saleRepository) Get(ctx context.Context, id string) (domain.Sale, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate блокирует строку продажи до конца текущей транзакции.
func (r *saleRepository) GetForUpdate(ctx context.Context, id string) (domain.Sale, error) {
	return r.get(ctx, id, true)
}

func (r *saleRepository) get(ctx context.Context, id string, lock bool) (domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	sale, err := scanSale(r.store.conn(ctx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, domain.ErrSaleNotFound
		}
		return domain.Sale{}, fmt.Errorf("select sale: %w", err)
	}
	return sale, nil
}

func (r *saleRepository) Create(ctx context.Context, sale domain.Sale) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	_, err := r.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO sales (
			id, customer_id, status, product_total, note, owner, payment_method_id,
			final_value, discount, surcharge, created_at, version
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		sale.ID, sale.CustomerID, string(sale.Status), sale.ProductTotal, sale.Note, sale.Owner,
		sale.PaymentMethodID, sale.FinalValue, sale.Discount, sale.Surcharge, sale.CreatedAt, sale.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", domain.ErrSaleVersionConflict
		}
		return "", fmt.Errorf("insert sale: %w", err)
	}
	return sale.ID, nil
}

// UpdateDetails меняет только клиента и примечание.
func (r *saleRepository) UpdateDetails(ctx context.Context, id, customerID, note string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(ctx, `
		UPDATE sales
		SET customer_id = $2, note = $3, version = version + 1
		WHERE id = $1
	`, id, customerID, note)
	if err != nil {
		return fmt.Errorf("update sale details: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for sale details: %w", err)
	}
	if affected == 0 {
		return domain.ErrSaleNotFound
	}
	return nil
}

func (r *saleRepository) AdjustTotal(ctx context.Context, id string, delta decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(ctx, `
		UPDATE sales
		SET product_total = product_total + $2, version = version + 1
		WHERE id = $1 AND status = 'OPEN'
	`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust sale total: %w", err)
	}
	return r.checkOpenUpdate(ctx, res, id)
}

// Close фиксирует закрытие условным UPDATE: повторное закрытие не пройдёт
// даже без предварительного GetForUpdate.
func (r *saleRepository) Close(ctx context.Context, closing domain.SaleClosing) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.conn(ctx).ExecContext(ctx, `
		UPDATE sales
		SET status = $2,
		    final_value = $3,
		    discount = $4,
		    surcharge = $5,
		    closed_at = $6,
		    payment_method_id = $7,
		    version = version + 1
		WHERE id = $1 AND status = 'OPEN'
	`,
		closing.SaleID, string(closing.Status), closing.FinalValue, closing.Discount,
		closing.Surcharge, closing.ClosedAt, closing.PaymentMethod.ID,
	)
	if err != nil {
		return fmt.Errorf("close sale: %w", err)
	}
	return r.checkOpenUpdate(ctx, res, closing.SaleID)
}

// checkOpenUpdate различает «продажи нет» и «продажа уже закрыта», когда
// условный UPDATE не затронул ни одной строки.
func (r *saleRepository) checkOpenUpdate(ctx context.Context, res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for sale %s: %w", id, err)
	}
	if affected > 0 {
		return nil
	}
	if _, err := r.Status(ctx, id); err != nil {
		return err
	}
	return domain.ErrSaleAlreadyClosed
}

func (r *saleRepository) CountOpen(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var count int
	if err := r.store.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sales WHERE status = 'OPEN'`,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count open sales: %w", err)
	}
	return count, nil
}

func (r *saleRepository) List(ctx context.Context) ([]domain.Sale, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx,
		`SELECT `+saleColumns+` FROM sales ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	return collectSales(rows)
}

func (r *saleRepository) ListByStatus(ctx context.Context, status domain.SaleStatus, page domain.Page) (domain.SalePage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	page = page.Normalize()
	result := domain.SalePage{Page: page}

	q := r.store.conn(ctx)
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sales WHERE status = $1`, string(status),
	).Scan(&result.Total); err != nil {
		return domain.SalePage{}, fmt.Errorf("count sales by status: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, string(status), page.Size, page.Offset())
	if err != nil {
		return domain.SalePage{}, fmt.Errorf("list sales by status: %w", err)
	}
	sales, err := collectSales(rows)
	if err != nil {
		return domain.SalePage{}, err
	}
	result.Sales = sales
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale     domain.Sale
		status   string
		closedAt sql.NullTime
	)
	if err := row.Scan(
		&sale.ID, &sale.CustomerID, &status, &sale.ProductTotal, &sale.Note, &sale.Owner,
		&sale.PaymentMethodID, &sale.FinalValue, &sale.Discount, &sale.Surcharge,
		&sale.CreatedAt, &closedAt, &sale.Version,
	); err != nil {
		return domain.Sale{}, err
	}
	sale.Status = domain.SaleStatus(status)
	sale.CreatedAt = sale.CreatedAt.UTC()
	if closedAt.Valid {
		sale.ClosedAt = closedAt.Time.UTC()
	}
	return sale, nil
}

func collectSales(rows *sql.Rows) ([]domain.Sale, error) {
	defer rows.Close()

	sales := make([]domain.Sale, 0)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sales: %w", err)
	}
	return sales, nil
}

var _ domain.SaleRepository = (*saleRepository)(nil)

type saleItemRepository struct {
	store *Store
}

// NewSaleItemRepository создаёт PostgreSQL-реализацию SaleItemRepository.
func NewSaleItemRepository(store *Store) domain.SaleItemRepository {
	return &saleItemRepository{store: store}
}

func (r *saleItemRepository) Add(ctx context.Context, item domain.SaleItem) (domain.SaleItem, error) {
	if err := item.Validate(); err != nil {
		return domain.SaleItem{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	if _, err := r.store.conn(ctx).ExecContext(ctx, `
		INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.CreatedAt); err != nil {
		return domain.SaleItem{}, fmt.Errorf("insert sale item: %w", err)
	}
	return item, nil
}

// Remove удаляет позицию только в пределах своей продажи.
func (r *saleItemRepository) Remove(ctx context.Context, itemID, saleID string) (domain.SaleItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var item domain.SaleItem
	err := r.store.conn(ctx).QueryRowContext(ctx, `
		DELETE FROM sale_items
		WHERE id = $1 AND sale_id = $2
		RETURNING id, sale_id, product_id, quantity, unit_price, created_at
	`, itemID, saleID).Scan(
		&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SaleItem{}, domain.ErrItemNotFound
		}
		return domain.SaleItem{}, fmt.Errorf("delete sale item: %w", err)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return item, nil
}

func (r *saleItemRepository) ListBySale(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.store.conn(ctx).QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price, created_at
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY created_at, id
	`, saleID)
	if err != nil {
		return nil, fmt.Errorf("list sale items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0)
	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(
			&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sale items: %w", err)
	}
	return items, nil
}

var _ domain.SaleItemRepository = (*saleItemRepository)(nil)
