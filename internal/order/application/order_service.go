package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedCache "github.com/davicafu/hexadelivery/internal/shared/infra/platform/cache"
	"github.com/davicafu/hexadelivery/pkg/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const orderCacheTTL = 120

type CreateOrderCommand struct {
	OrderNumber string
	CustomerID  string
	Address     orderDomain.ShippingAddress
	Items       []orderDomain.Item
}

// OrderService define los casos de uso de pedidos.
type OrderService struct {
	repo  orderDomain.OrderRepository
	cache sharedCache.Cache
	clock clock.Clock
	log   *zap.Logger
}

func NewOrderService(repo orderDomain.OrderRepository, cache sharedCache.Cache, clk clock.Clock, log *zap.Logger) *OrderService {
	return &OrderService{repo: repo, cache: cache, clock: clk, log: log}
}

func (s *OrderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*orderDomain.Order, error) {
	if cmd.OrderNumber == "" {
		cmd.OrderNumber = "ORD-" + uuid.NewString()
	}
	now := s.clock.Now()

	o, evt, err := orderDomain.NewOrder(cmd.OrderNumber, cmd.CustomerID, cmd.Address, cmd.Items, now)
	if err != nil {
		return nil, err
	}
	msgs, err := stage(o, evt, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, o, msgs); err != nil {
		if !errors.Is(err, orderDomain.ErrOrderAlreadyExists) {
			s.log.Error("Failed to create order", zap.String("order_number", o.OrderNumber), zap.Error(err))
		}
		return nil, err
	}

	s.log.Info("🧾 Pedido creado", zap.String("order_number", o.OrderNumber))
	return o, nil
}

// PerformTransition aplica confirm/cancel y guarda pedido + outbox en la misma transacción.
func (s *OrderService) PerformTransition(ctx context.Context, orderNumber string, kind orderDomain.Transition) (*orderDomain.Order, error) {
	o, err := s.repo.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	evt, err := o.Apply(kind, now)
	if err != nil {
		return nil, err
	}
	msgs, err := stage(o, evt, now)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, o, msgs); err != nil {
		s.log.Warn("⚠️ No se pudo guardar la transición del pedido",
			zap.String("order_number", orderNumber),
			zap.String("transition", string(kind)),
			zap.Error(err),
		)
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, orderDomain.OrderCacheKeyByNumber(orderNumber)); err != nil {
			s.log.Warn("Cache invalidation failed", zap.String("order_number", orderNumber), zap.Error(err))
		}
	}
	return o, nil
}

// DeleteOrder borra el pedido y encola OrderDeleted en la misma transacción.
func (s *OrderService) DeleteOrder(ctx context.Context, orderNumber string) error {
	o, err := s.repo.GetByNumber(ctx, orderNumber)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	msgs, err := stage(o, o.Deleted(now), now)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, orderNumber, msgs); err != nil {
		if !errors.Is(err, orderDomain.ErrOrderNotFound) {
			s.log.Error("Failed to delete order", zap.String("order_number", orderNumber), zap.Error(err))
		}
		return err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, orderDomain.OrderCacheKeyByNumber(orderNumber)); err != nil {
			s.log.Warn("Cache invalidation failed", zap.String("order_number", orderNumber), zap.Error(err))
		}
	}
	s.log.Info("🗑️ Pedido eliminado", zap.String("order_number", orderNumber))
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNumber string) (*orderDomain.Order, error) {
	key := orderDomain.OrderCacheKeyByNumber(orderNumber)
	if s.cache != nil {
		var cached orderDomain.Order
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	o, err := s.repo.GetByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	sharedCache.AsyncCacheSet(ctx, s.cache, key, o, orderCacheTTL, s.log)
	return o, nil
}

func stage(o *orderDomain.Order, evt orderDomain.Event, now time.Time) ([]sharedDomain.OutboxMessage, error) {
	translated, err := Translate(evt, o)
	if err != nil {
		return nil, fmt.Errorf("failed to translate %s: %w", evt.Kind, err)
	}
	msg, err := sharedDomain.NewOutboxMessage(translated.AggregateType, translated.BusinessID, translated.EventType, translated.Payload, now)
	if err != nil {
		return nil, err
	}
	return []sharedDomain.OutboxMessage{msg}, nil
}
