package sale

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// AddItemRequest: параметры новой позиции. Quantity <= 0 означает 1.
type AddItemRequest struct {
	SaleID    string
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int32
}

// AddItem добавляет позицию в открытую продажу.
func (s *Service) AddItem(ctx context.Context, req AddItemRequest) (domain.ItemResult, error) {
	qty := req.Quantity
	if qty <= 0 {
		qty = 1
	}
	item := domain.SaleItem{
		SaleID:    req.SaleID,
		ProductID: req.ProductID,
		Quantity:  qty,
		UnitPrice: req.UnitPrice,
		CreatedAt: s.now(),
	}

	result, err := s.changeItems(ctx, req.SaleID, "add", func(ctx context.Context) error {
		if err := item.Validate(); err != nil {
			return err
		}
		saved, err := s.deps.Items.Add(ctx, item)
		if err != nil {
			return fmt.Errorf("add sale item: %w", err)
		}
		item = saved
		if err := s.deps.Sales.AdjustTotal(ctx, req.SaleID, saved.Subtotal()); err != nil {
			return err
		}
		return s.enqueue(ctx, req.SaleID, eventSaleItemAdded, itemPayload(saved))
	})
	if err == nil && result == domain.ItemResultOK {
		s.publish(itemEvent(eventSaleItemAdded, item))
	}
	return result, err
}

// RemoveItem удаляет позицию из открытой продажи.
func (s *Service) RemoveItem(ctx context.Context, itemID, saleID string) (domain.ItemResult, error) {
	var removed domain.SaleItem
	result, err := s.changeItems(ctx, saleID, "remove", func(ctx context.Context) error {
		item, err := s.deps.Items.Remove(ctx, itemID, saleID)
		if err != nil {
			if errors.Is(err, domain.ErrItemNotFound) {
				return err
			}
			return fmt.Errorf("remove sale item: %w", err)
		}
		removed = item
		if err := s.deps.Sales.AdjustTotal(ctx, saleID, item.Subtotal().Neg()); err != nil {
			return err
		}
		return s.enqueue(ctx, saleID, eventSaleItemRemoved, itemPayload(item))
	})
	if err == nil && result == domain.ItemResultOK {
		s.publish(itemEvent(eventSaleItemRemoved, removed))
	}
	return result, err
}

// changeItems проверяет статус продажи и выполняет fn в одной транзакции.
func (s *Service) changeItems(ctx context.Context, saleID, operation string, fn func(ctx context.Context) error) (domain.ItemResult, error) {
	result := domain.ItemResultOK
	err := s.deps.Tx.WithinTx(ctx, func(ctx context.Context) error {
		status, err := s.deps.Sales.Status(ctx, saleID)
		if err != nil {
			if errors.Is(err, domain.ErrSaleNotFound) {
				return err
			}
			return fmt.Errorf("probe sale status: %w", err)
		}
		if status != domain.SaleStatusOpen {
			result = domain.ItemResultSaleClosed
			return nil
		}
		return fn(ctx)
	})

	// Продажа закрылась между проверкой и записью: изменения откатились.
	if errors.Is(err, domain.ErrSaleAlreadyClosed) {
		result, err = domain.ItemResultSaleClosed, nil
	}

	fields := log.Fields{"sale_id": saleID, "operation": operation}
	switch {
	case err != nil:
		s.logger.WithError(err).WithFields(fields).Warn("sale item change failed")
		s.recordItem(operation, "error")
		return "", err
	case result == domain.ItemResultSaleClosed:
		s.logger.WithFields(fields).Info("sale item change rejected: sale closed")
	default:
		s.logger.WithFields(fields).Debug("sale item changed")
	}
	s.recordItem(operation, string(result))
	return result, nil
}

func (s *Service) recordItem(operation, result string) {
	if s.metrics != nil {
		s.metrics.RecordItemChange(operation, result)
	}
}
