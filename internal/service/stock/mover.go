package stock

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// Mover записывает складское движение по каждой позиции продажи.
type Mover struct {
	items     domain.SaleItemRepository
	movements domain.StockMovementRepository
	logger    *log.Entry
	now       func() time.Time
}

// NewMover создаёт складской сервис.
func NewMover(items domain.SaleItemRepository, movements domain.StockMovementRepository, logger *log.Entry) *Mover {
	if logger == nil {
		logger = log.New().WithField("component", "stock-mover")
	}
	return &Mover{
		items:     items,
		movements: movements,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Move списывает (OUT) или возвращает (IN) остатки по позициям продажи.
func (m *Mover) Move(ctx context.Context, saleID string, direction domain.StockDirection) error {
	if direction != domain.StockOut && direction != domain.StockIn {
		return fmt.Errorf("move stock: unknown direction %q", direction)
	}
	items, err := m.items.ListBySale(ctx, saleID)
	if err != nil {
		return fmt.Errorf("list sale items: %w", err)
	}

	now := m.now()
	for _, item := range items {
		if _, err := m.movements.Save(ctx, domain.StockMovement{
			SaleID:    saleID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Direction: direction,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("save stock movement for product %s: %w", item.ProductID, err)
		}
	}

	m.logger.WithFields(log.Fields{
		"sale_id":   saleID,
		"direction": direction,
		"items":     len(items),
	}).Debug("stock moved")
	return nil
}

var _ domain.StockMover = (*Mover)(nil)
