package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// saleRepositoryInMemory: простая in-memory реализация SaleRepository.
type saleRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.Sale
}

// NewSaleRepository возвращает in-memory репозиторий продаж для локальной разработки и тестов.
func NewSaleRepository() domain.SaleRepository {
	return &saleRepositoryInMemory{
		items: make(map[string]domain.Sale),
	}
}

func (r *saleRepositoryInMemory) Status(_ context.Context, id string) (domain.SaleStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sale, ok := r.items[id]
	if !ok {
		return "", domain.ErrSaleNotFound
	}
	return sale.Status, nil
}

// Get возвращает продажу или ErrSaleNotFound, если её нет.
func (r *saleRepositoryInMemory) Get(_ context.Context, id string) (domain.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sale, ok := r.items[id]
	if !ok {
		return domain.Sale{}, domain.ErrSaleNotFound
	}
	return sale, nil
}

// GetForUpdate совпадает с Get: единицы работы уже сериализованы TxManager.
func (r *saleRepositoryInMemory) GetForUpdate(ctx context.Context, id string) (domain.Sale, error) {
	return r.Get(ctx, id)
}

func (r *saleRepositoryInMemory) Create(ctx context.Context, sale domain.Sale) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if _, exists := r.items[sale.ID]; exists {
		return "", domain.ErrSaleVersionConflict
	}
	r.items[sale.ID] = sale

	id := sale.ID
	remember(ctx, func() { r.delete(id) })
	return id, nil
}

// UpdateDetails меняет только клиента и примечание, не трогая финансовые поля.
func (r *saleRepositoryInMemory) UpdateDetails(ctx context.Context, id, customerID, note string) error {
	return r.mutate(ctx, id, func(sale *domain.Sale) error {
		sale.CustomerID = customerID
		sale.Note = note
		return nil
	})
}

func (r *saleRepositoryInMemory) AdjustTotal(ctx context.Context, id string, delta decimal.Decimal) error {
	return r.mutate(ctx, id, func(sale *domain.Sale) error {
		if !sale.IsOpen() {
			return domain.ErrSaleAlreadyClosed
		}
		sale.ProductTotal = sale.ProductTotal.Add(delta)
		return nil
	})
}

// Close фиксирует закрытие только для открытой продажи.
func (r *saleRepositoryInMemory) Close(ctx context.Context, closing domain.SaleClosing) error {
	return r.mutate(ctx, closing.SaleID, func(sale *domain.Sale) error {
		if !sale.IsOpen() {
			return domain.ErrSaleAlreadyClosed
		}
		sale.Status = closing.Status
		sale.FinalValue = closing.FinalValue
		sale.Discount = closing.Discount
		sale.Surcharge = closing.Surcharge
		sale.ClosedAt = closing.ClosedAt
		sale.PaymentMethodID = closing.PaymentMethod.ID
		return nil
	})
}

func (r *saleRepositoryInMemory) CountOpen(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, sale := range r.items {
		if sale.IsOpen() {
			count++
		}
	}
	return count, nil
}

func (r *saleRepositoryInMemory) List(_ context.Context) ([]domain.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Sale, 0, len(r.items))
	for _, sale := range r.items {
		result = append(result, sale)
	}
	sortNewestFirst(result)
	return result, nil
}

// ListByStatus возвращает страницу продаж с заданным статусом.
func (r *saleRepositoryInMemory) ListByStatus(_ context.Context, status domain.SaleStatus, page domain.Page) (domain.SalePage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	page = page.Normalize()
	matched := make([]domain.Sale, 0)
	for _, sale := range r.items {
		if sale.Status == status {
			matched = append(matched, sale)
		}
	}
	sortNewestFirst(matched)

	result := domain.SalePage{Total: len(matched), Page: page}
	start := page.Offset()
	if start >= len(matched) {
		result.Sales = []domain.Sale{}
		return result, nil
	}
	end := start + page.Size
	if end > len(matched) {
		end = len(matched)
	}
	result.Sales = matched[start:end]
	return result, nil
}

// mutate применяет fn к копии продажи и запоминает прежнее состояние для отката.
func (r *saleRepositoryInMemory) mutate(ctx context.Context, id string, fn func(sale *domain.Sale) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return domain.ErrSaleNotFound
	}
	next := current
	if err := fn(&next); err != nil {
		return err
	}
	next.Version++
	r.items[id] = next

	remember(ctx, func() { r.restore(current) })
	return nil
}

func (r *saleRepositoryInMemory) delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

func (r *saleRepositoryInMemory) restore(sale domain.Sale) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[sale.ID] = sale
}

func sortNewestFirst(sales []domain.Sale) {
	sort.Slice(sales, func(i, j int) bool {
		if !sales[i].CreatedAt.Equal(sales[j].CreatedAt) {
			return sales[i].CreatedAt.After(sales[j].CreatedAt)
		}
		return sales[i].ID > sales[j].ID
	})
}

var _ domain.SaleRepository = (*saleRepositoryInMemory)(nil)

// saleItemRepositoryInMemory хранит позиции продаж.
type saleItemRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.SaleItem
}

// NewSaleItemRepository возвращает in-memory репозиторий позиций.
func NewSaleItemRepository() domain.SaleItemRepository {
	return &saleItemRepositoryInMemory{items: make(map[string]domain.SaleItem)}
}

func (r *saleItemRepositoryInMemory) Add(ctx context.Context, item domain.SaleItem) (domain.SaleItem, error) {
	if err := item.Validate(); err != nil {
		return domain.SaleItem{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	r.items[item.ID] = item

	id := item.ID
	remember(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.items, id)
	})
	return item, nil
}

// Remove удаляет позицию, только если она принадлежит продаже.
func (r *saleItemRepositoryInMemory) Remove(ctx context.Context, itemID, saleID string) (domain.SaleItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok || item.SaleID != saleID {
		return domain.SaleItem{}, domain.ErrItemNotFound
	}
	delete(r.items, itemID)

	remember(ctx, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.items[item.ID] = item
	})
	return item, nil
}

func (r *saleItemRepositoryInMemory) ListBySale(_ context.Context, saleID string) ([]domain.SaleItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.SaleItem, 0)
	for _, item := range r.items {
		if item.SaleID == saleID {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

var _ domain.SaleItemRepository = (*saleItemRepositoryInMemory)(nil)
