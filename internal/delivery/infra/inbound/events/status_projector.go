package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
	sharedUtils "github.com/davicafu/hexadelivery/internal/shared/infra/utils"
)

const (
	defaultProjectorBatch = 100
	// Lotes que se retienen mientras el repositorio analítico no responde.
	maxPendingBatches = 10
)

// StatusProjector acumula los cambios de estado de entregas y los vuelca por lotes
// al repositorio analítico. Se vuelca al llenar el lote o en cada tick de Run.
// Si el repositorio cae, retiene como mucho maxPending cambios y descarta los más antiguos.
type StatusProjector struct {
	repo       deliveryDomain.DeliveryAnalyticsRepository
	batchSize  int
	maxPending int
	log        *zap.Logger

	mu      sync.Mutex
	pending []deliveryDomain.StatusChange
}

func NewStatusProjector(repo deliveryDomain.DeliveryAnalyticsRepository, batchSize int, log *zap.Logger) *StatusProjector {
	if batchSize <= 0 {
		batchSize = defaultProjectorBatch
	}
	return &StatusProjector{repo: repo, batchSize: batchSize, maxPending: batchSize * maxPendingBatches, log: log}
}

// HandleMessage acepta DeliveryCreated y DeliveryStatusChanged; ambos llevan el estado resultante.
func (p *StatusProjector) HandleMessage(ctx context.Context, key string, payload []byte) error {
	header, err := sharedEvents.Header(payload)
	if err != nil {
		return err
	}

	var change deliveryDomain.StatusChange
	switch header.EventType {
	case sharedEvents.DeliveryCreatedType:
		err = sharedUtils.UnmarshalAndHandle[sharedEvents.DeliveryCreated](p.log, payload, func(evt sharedEvents.DeliveryCreated) error {
			change = toStatusChange(evt.IntegrationEvent, evt.OrderNumber, evt.Status)
			return nil
		})
	case sharedEvents.DeliveryStatusChangedType:
		err = sharedUtils.UnmarshalAndHandle[sharedEvents.DeliveryStatusChanged](p.log, payload, func(evt sharedEvents.DeliveryStatusChanged) error {
			change = toStatusChange(evt.IntegrationEvent, evt.OrderNumber, evt.Status)
			return nil
		})
	default:
		return nil
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	if over := len(p.pending) + 1 - p.maxPending; over > 0 {
		p.log.Warn("🗑️ Proyección de estados llena, se descartan los cambios más antiguos",
			zap.Int("dropped", over),
			zap.String("oldest_delivery_id", p.pending[0].DeliveryID),
		)
		p.pending = append(p.pending[:0], p.pending[over:]...)
	}
	p.pending = append(p.pending, change)
	full := len(p.pending) >= p.batchSize
	p.mu.Unlock()

	// El fallo del volcado no se devuelve: el cambio ya está en memoria y Run reintenta.
	if full {
		_ = p.Flush(ctx)
	}
	return nil
}

// Pending devuelve cuántos cambios esperan volcado.
func (p *StatusProjector) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Flush escribe el lote pendiente. Si falla, el lote se conserva para el siguiente intento.
func (p *StatusProjector) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}

	if err := p.repo.LogBatch(ctx, p.pending); err != nil {
		p.log.Warn("⚠️ No se pudo volcar la proyección de estados", zap.Int("pending", len(p.pending)), zap.Error(err))
		return err
	}
	p.log.Debug("📊 Proyección de estados volcada", zap.Int("rows", len(p.pending)))
	p.pending = nil
	return nil
}

// Run vuelca periódicamente hasta que ctx se cancele; al salir hace un último volcado.
func (p *StatusProjector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			_ = p.Flush(ctx)
		}
	}
}

func toStatusChange(h sharedEvents.IntegrationEvent, orderNumber, status string) deliveryDomain.StatusChange {
	return deliveryDomain.StatusChange{
		DeliveryID:  h.AggregateBusinessID,
		OrderNumber: orderNumber,
		Status:      deliveryDomain.DeliveryStatus(status),
		OccurredAt:  h.OccurredAt,
	}
}
