package installment

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// Generator сохраняет одну датированную часть задолженности на каждый вызов.
type Generator struct {
	repo   domain.InstallmentRepository
	logger *log.Entry
}

// NewGenerator создаёт генератор частей рассрочки.
func NewGenerator(repo domain.InstallmentRepository, logger *log.Entry) *Generator {
	if logger == nil {
		logger = log.New().WithField("component", "installment-generator")
	}
	return &Generator{repo: repo, logger: logger}
}

// Generate проверяет запрос и сохраняет часть рассрочки.
func (g *Generator) Generate(ctx context.Context, req domain.InstallmentRequest) (domain.Installment, error) {
	if req.Receivable.ID == "" {
		return domain.Installment{}, fmt.Errorf("generate installment: %w", domain.ErrReceivableNotFound)
	}
	if req.Sequence < 1 || req.Total < req.Sequence {
		return domain.Installment{}, fmt.Errorf("generate installment: sequence %d of %d out of range", req.Sequence, req.Total)
	}
	if !req.Amount.IsPositive() {
		return domain.Installment{}, fmt.Errorf("generate installment: %w", domain.ErrInvalidInstallmentValue)
	}

	saved, err := g.repo.Save(ctx, domain.Installment{
		ReceivableID:    req.Receivable.ID,
		SaleID:          req.Receivable.SaleID,
		Sequence:        req.Sequence,
		Total:           req.Total,
		Amount:          req.Amount,
		Discount:        req.Discount,
		Surcharge:       req.Surcharge,
		DueDate:         req.DueDate,
		PaymentMethodID: req.PaymentMethod.ID,
		TitleID:         req.TitleID,
	})
	if err != nil {
		return domain.Installment{}, fmt.Errorf("save installment: %w", err)
	}

	g.logger.WithFields(log.Fields{
		"sale_id":  saved.SaleID,
		"sequence": saved.Sequence,
		"total":    saved.Total,
		"due_date": saved.DueDate.Format("2006-01-02"),
	}).Debug("installment generated")
	return saved, nil
}

var _ domain.InstallmentGenerator = (*Generator)(nil)
