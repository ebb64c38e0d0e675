package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	// --- Importaciones del dominio y compartidas ---
	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
	sharedCache "github.com/davicafu/hexadelivery/internal/shared/infra/platform/cache"
	sharedQuery "github.com/davicafu/hexadelivery/internal/shared/infra/platform/query"
	sharedUtils "github.com/davicafu/hexadelivery/internal/shared/infra/utils"
	"github.com/davicafu/hexadelivery/pkg/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	deliveryCacheTTL = 120
	// Notas y plazo con los que se crea una entrega a partir de un pedido confirmado.
	notesFromOrder      = "created from confirmed order"
	defaultLeadTime     = 24 * time.Hour
	deliveryFromOrderID = "DEL-%s"
)

// CreateDeliveryCommand son los datos de entrada del alta manual de una entrega.
type CreateDeliveryCommand struct {
	ID            string
	OrderNumber   string
	Address       deliveryDomain.Address
	ScheduledDate *time.Time
	Notes         string
}

// DeliveryService orquesta los casos de uso de entregas. Cada caso de uso que cambia
// el estado persiste la entrega y sus mensajes del outbox en una sola llamada al repositorio.
type DeliveryService struct {
	repo  deliveryDomain.DeliveryRepository
	cache sharedCache.Cache
	clock clock.Clock
	log   *zap.Logger
}

func NewDeliveryService(repo deliveryDomain.DeliveryRepository, cache sharedCache.Cache, clk clock.Clock, log *zap.Logger) *DeliveryService {
	return &DeliveryService{
		repo:  repo,
		cache: cache,
		clock: clk,
		log:   log,
	}
}

// CreateDelivery da de alta una entrega. Si no viene id se genera uno.
func (s *DeliveryService) CreateDelivery(ctx context.Context, cmd CreateDeliveryCommand) (*deliveryDomain.Delivery, error) {
	if cmd.ID == "" {
		cmd.ID = "DEL-" + uuid.NewString()
	}
	now := s.clock.Now()

	d, evt, err := deliveryDomain.NewDelivery(cmd.ID, cmd.OrderNumber, cmd.Address, cmd.ScheduledDate, cmd.Notes, now)
	if err != nil {
		return nil, err
	}

	msgs, err := s.stage(d, now, evt)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, d, msgs); err != nil {
		if !errors.Is(err, deliveryDomain.ErrDeliveryAlreadyExists) {
			s.log.Error("Failed to create delivery", zap.String("delivery_id", d.ID), zap.Error(err))
		}
		return nil, err
	}

	s.log.Info("📦 Entrega creada", zap.String("delivery_id", d.ID), zap.String("order_number", d.OrderNumber))
	return d, nil
}

// CreateDeliveryFromOrder crea la entrega asociada a un pedido confirmado.
// El id se deriva del número de pedido, así que reprocesar el mismo evento
// devuelve ErrDeliveryAlreadyExists en vez de duplicar la entrega.
func (s *DeliveryService) CreateDeliveryFromOrder(ctx context.Context, evt sharedEvents.OrderConfirmed) (*deliveryDomain.Delivery, error) {
	scheduled := s.clock.Now().Add(defaultLeadTime)
	return s.CreateDelivery(ctx, CreateDeliveryCommand{
		ID:          fmt.Sprintf(deliveryFromOrderID, evt.OrderNumber),
		OrderNumber: evt.OrderNumber,
		Address: deliveryDomain.Address{
			Street:     evt.Street,
			City:       evt.City,
			State:      sharedEvents.UnknownField,
			PostalCode: evt.PostalCode,
			Country:    evt.Country,
		},
		ScheduledDate: &scheduled,
		Notes:         notesFromOrder,
	})
}

// PerformTransition carga la entrega, aplica la transición y guarda estado + outbox
// de forma atómica. Un error de traducción aborta todo: la entrega no cambia.
func (s *DeliveryService) PerformTransition(ctx context.Context, id string, kind deliveryDomain.Transition, params deliveryDomain.TransitionParams) (*deliveryDomain.Delivery, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	evt, err := d.Apply(kind, params, now)
	if err != nil {
		return nil, err
	}

	msgs, err := s.stage(d, now, evt)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, d, msgs); err != nil {
		s.log.Warn("⚠️ No se pudo guardar la transición",
			zap.String("delivery_id", id),
			zap.String("transition", string(kind)),
			zap.Error(err),
		)
		return nil, err
	}

	s.invalidate(ctx, d.ID)
	s.log.Info("🔁 Transición aplicada",
		zap.String("delivery_id", d.ID),
		zap.String("transition", string(kind)),
		zap.String("status", string(d.Status)),
	)
	return d, nil
}

// UpdateNotes no emite evento: sólo se persiste la entrega.
func (s *DeliveryService) UpdateNotes(ctx context.Context, id, notes string) (*deliveryDomain.Delivery, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.UpdateNotes(notes, s.clock.Now())

	if err := s.repo.Update(ctx, d, nil); err != nil {
		return nil, err
	}
	s.invalidate(ctx, d.ID)
	return d, nil
}

// DeleteDelivery borra la entrega y encola DeliveryDeleted con su último estado.
func (s *DeliveryService) DeleteDelivery(ctx context.Context, id string) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	msgs, err := s.stage(d, now, d.Deleted(now))
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, msgs); err != nil {
		if !errors.Is(err, deliveryDomain.ErrDeliveryNotFound) {
			s.log.Error("Failed to delete delivery", zap.String("delivery_id", id), zap.Error(err))
		}
		return err
	}

	s.invalidate(ctx, id)
	if d.IsActive() {
		s.log.Warn("🗑️ Entrega activa eliminada", zap.String("delivery_id", id), zap.String("status", string(d.Status)))
	} else {
		s.log.Info("🗑️ Entrega eliminada", zap.String("delivery_id", id))
	}
	return nil
}

// GetDelivery usa cache-aside; los fallos transitorios del repositorio se reintentan.
func (s *DeliveryService) GetDelivery(ctx context.Context, id string) (*deliveryDomain.Delivery, error) {
	key := deliveryDomain.DeliveryCacheKeyByID(id)
	if s.cache != nil {
		var cached deliveryDomain.Delivery
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return &cached, nil
		}
	}

	var d *deliveryDomain.Delivery
	err := sharedUtils.Retry(ctx, 3, 100*time.Millisecond, func() error {
		var errRetry error
		d, errRetry = s.repo.GetByID(ctx, id)
		if errors.Is(errRetry, deliveryDomain.ErrDeliveryNotFound) {
			// No tiene sentido reintentar un "no existe"
			return backoff.Permanent(errRetry)
		}
		return errRetry
	})
	if errors.Is(err, deliveryDomain.ErrDeliveryNotFound) {
		s.log.Warn("Delivery not found", zap.String("delivery_id", id))
		return nil, err
	}
	if err != nil {
		s.log.Error("Failed to fetch delivery", zap.String("delivery_id", id), zap.Error(err))
		return nil, err
	}

	sharedCache.AsyncCacheSet(ctx, s.cache, key, d, deliveryCacheTTL, s.log)
	return d, nil
}

// ListDeliveries es un pass-through al repositorio.
func (s *DeliveryService) ListDeliveries(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*deliveryDomain.Delivery, error) {
	return s.repo.ListByCriteria(ctx, criteria, pagination, sort)
}

// stage traduce los eventos a mensajes de outbox con la foto actual de la entrega.
func (s *DeliveryService) stage(d *deliveryDomain.Delivery, now time.Time, evts ...deliveryDomain.Event) ([]sharedDomain.OutboxMessage, error) {
	msgs := make([]sharedDomain.OutboxMessage, 0, len(evts))
	for _, evt := range evts {
		translated, err := Translate(evt, d)
		if err != nil {
			return nil, fmt.Errorf("failed to translate %s: %w", evt.Kind, err)
		}
		msg, err := sharedDomain.NewOutboxMessage(translated.AggregateType, translated.BusinessID, translated.EventType, translated.Payload, now)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *DeliveryService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, deliveryDomain.DeliveryCacheKeyByID(id)); err != nil {
		s.log.Warn("Cache invalidation failed", zap.String("delivery_id", id), zap.Error(err))
	}
}
