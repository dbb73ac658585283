package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// cachedPaymentMethod: сериализуемая форма способа оплаты. Поведение не
// хранится: оно заново разбирается из кода при чтении.
type cachedPaymentMethod struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// PaymentMethodCatalog: read-through кэш справочника способов оплаты.
// Ошибки redis не ломают закрытие продажи: чтение уходит в основной справочник.
type PaymentMethodCatalog struct {
	next   domain.PaymentMethodCatalog
	store  *jsonStore[cachedPaymentMethod]
	logger *log.Entry
}

// NewPaymentMethodCatalog оборачивает справочник redis-кэшем.
func NewPaymentMethodCatalog(next domain.PaymentMethodCatalog, client redis.Cmdable, ttl time.Duration, logger *log.Entry) *PaymentMethodCatalog {
	if logger == nil {
		logger = log.New().WithField("component", "payment-method-cache")
	}
	return &PaymentMethodCatalog{
		next:   next,
		store:  newJSONStore[cachedPaymentMethod](client, "payment_method", ttl),
		logger: logger,
	}
}

func (c *PaymentMethodCatalog) Get(ctx context.Context, id string) (domain.PaymentMethod, error) {
	cached, err := c.store.get(ctx, id)
	if err == nil {
		method, parseErr := domain.NewPaymentMethod(cached.ID, cached.Name, cached.Code)
		if parseErr == nil {
			return method, nil
		}
		c.logger.WithError(parseErr).WithField("payment_method_id", id).Warn("cached payment method is invalid, dropping it")
		_ = c.store.delete(ctx, id)
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.WithError(err).WithField("payment_method_id", id).Warn("payment method cache read failed")
	}

	method, err := c.next.Get(ctx, id)
	if err != nil {
		return domain.PaymentMethod{}, err
	}

	if err := c.store.set(ctx, id, cachedPaymentMethod{ID: method.ID, Name: method.Name, Code: method.Code}); err != nil {
		c.logger.WithError(err).WithField("payment_method_id", id).Warn("payment method cache write failed")
	}
	return method, nil
}

// Invalidate удаляет способ оплаты из кэша после его изменения.
func (c *PaymentMethodCatalog) Invalidate(ctx context.Context, id string) error {
	return c.store.delete(ctx, id)
}

var _ domain.PaymentMethodCatalog = (*PaymentMethodCatalog)(nil)

type cachedTitle struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// TitleCatalog: read-through кэш справочника титулов.
type TitleCatalog struct {
	next   domain.TitleCatalog
	store  *jsonStore[cachedTitle]
	logger *log.Entry
}

// NewTitleCatalog оборачивает справочник титулов redis-кэшем.
func NewTitleCatalog(next domain.TitleCatalog, client redis.Cmdable, ttl time.Duration, logger *log.Entry) *TitleCatalog {
	if logger == nil {
		logger = log.New().WithField("component", "title-cache")
	}
	return &TitleCatalog{
		next:   next,
		store:  newJSONStore[cachedTitle](client, "title", ttl),
		logger: logger,
	}
}

func (c *TitleCatalog) Get(ctx context.Context, id string) (domain.Title, error) {
	cached, err := c.store.get(ctx, id)
	switch {
	case err == nil:
		return domain.Title{ID: cached.ID, Name: cached.Name, Type: domain.TitleType(cached.Type)}, nil
	case !errors.Is(err, ErrCacheMiss):
		c.logger.WithError(err).WithField("title_id", id).Warn("title cache read failed")
	}

	title, err := c.next.Get(ctx, id)
	if err != nil {
		return domain.Title{}, err
	}

	if err := c.store.set(ctx, id, cachedTitle{ID: title.ID, Name: title.Name, Type: string(title.Type)}); err != nil {
		c.logger.WithError(err).WithField("title_id", id).Warn("title cache write failed")
	}
	return title, nil
}

// Invalidate удаляет титул из кэша.
func (c *TitleCatalog) Invalidate(ctx context.Context, id string) error {
	return c.store.delete(ctx, id)
}

var _ domain.TitleCatalog = (*TitleCatalog)(nil)
