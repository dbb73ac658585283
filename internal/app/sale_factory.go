package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/pdv/internal/metrics"
	"github.com/vladislavdragonenkov/pdv/internal/service/sale"
)

// newSaleService создаёт сервис продаж с метриками и, при наличии producer,
// публикацией событий в Kafka.
func newSaleService(deps *runtimeDependencies, producer *kafka.Producer, saleMetrics *metrics.SaleMetrics, logger *log.Entry) (*sale.Service, error) {
	opts := []sale.Option{
		sale.WithLogger(logger.WithField("component", "sale-service")),
	}
	if saleMetrics != nil {
		opts = append(opts, sale.WithMetrics(saleMetrics))
	}
	if producer != nil {
		opts = append(opts, sale.WithEventPublisher(producer))
	}

	return sale.NewService(deps.sale, opts...)
}
