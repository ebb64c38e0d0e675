package relayer

import (
	"context"
	"sync"
	"time"

	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedBus "github.com/davicafu/hexadelivery/internal/shared/infra/platform/bus"
	"github.com/davicafu/hexadelivery/pkg/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval       = 20 * time.Second
	DefaultBatchSize      = 50
	DefaultPublishTimeout = 5 * time.Second
)

// DispatchResult resume un ciclo del relayer.
type DispatchResult struct {
	Fetched           int
	Claimed           int
	Published         int
	Failed            int
	StateUpdateFailed int
	Reclaimed         int64
	Requeued          int64
	// Skipped indica que ya había un ciclo en marcha y este no hizo nada.
	Skipped bool
}

// Worker drena el outbox hacia el broker. Un ciclo nunca se solapa con otro.
type Worker struct {
	store          sharedDomain.OutboxStore
	publisher      sharedBus.Publisher
	keyed          sharedBus.KeyedPublisher
	clock          clock.Clock
	interval       time.Duration
	batchSize      int
	publishTimeout time.Duration
	reclaimAfter   time.Duration
	maxAttempts    int
	concurrency    int
	log            *zap.Logger

	running sync.Mutex

	// stop y done existen desde el constructor: Stop puede llegar antes que Start.
	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

type Option func(*Worker)

func WithInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithPublishTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.publishTimeout = d
		}
	}
}

// WithReclaimAfter activa el reclaim: filas en PROCESSING desde hace más de d vuelven a PENDING.
func WithReclaimAfter(d time.Duration) Option {
	return func(w *Worker) { w.reclaimAfter = d }
}

// WithMaxAttempts activa el reencolado de FAILED mientras attempts < n.
func WithMaxAttempts(n int) Option {
	return func(w *Worker) { w.maxAttempts = n }
}

// WithConcurrency publica hasta n mensajes del mismo lote en paralelo.
// Con n > 1 se pierde el orden dentro del lote.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithKeyedPublisher hace que cada mensaje se publique con su aggregate_id como clave.
func WithKeyedPublisher(p sharedBus.KeyedPublisher) Option {
	return func(w *Worker) { w.keyed = p }
}

func WithClock(c clock.Clock) Option {
	return func(w *Worker) { w.clock = c }
}

func NewOutboxWorker(store sharedDomain.OutboxStore, publisher sharedBus.Publisher, log *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		store:          store,
		publisher:      publisher,
		clock:          clock.NewRealClock(),
		interval:       DefaultInterval,
		batchSize:      DefaultBatchSize,
		publishTimeout: DefaultPublishTimeout,
		concurrency:    1,
		log:            log,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start inicia el bucle de polling y bloquea hasta que ctx se cancele o se llame a Stop.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.stopped {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("🚀 Outbox worker iniciado",
		zap.Duration("interval", w.interval),
		zap.Int("batch_size", w.batchSize),
		zap.Int("concurrency", w.concurrency),
	)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("🛑 Outbox worker detenido.")
			return
		case <-ticker.C:
			res := w.ProcessBatch(ctx)
			if res.Fetched > 0 || res.Reclaimed > 0 || res.Requeued > 0 {
				w.log.Info("🔄 Ciclo de outbox completado",
					zap.Int("fetched", res.Fetched),
					zap.Int("published", res.Published),
					zap.Int("failed", res.Failed),
					zap.Int("state_update_failed", res.StateUpdateFailed),
					zap.Int64("reclaimed", res.Reclaimed),
					zap.Int64("requeued", res.Requeued),
				)
			}
		}
	}
}

// Stop cancela el bucle y espera a que el mensaje en curso termine.
// Llamado antes de Start, hace que Start vuelva sin hacer ningún ciclo.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stop)
	}
	started := w.started
	w.mu.Unlock()
	if started {
		<-w.done
	}
}

// ProcessBatch ejecuta un ciclo. Si ya hay otro en marcha devuelve Skipped sin tocar el store.
func (w *Worker) ProcessBatch(ctx context.Context) DispatchResult {
	if !w.running.TryLock() {
		w.log.Debug("⏭️ Ciclo de outbox omitido: el anterior sigue en curso")
		return DispatchResult{Skipped: true}
	}
	defer w.running.Unlock()

	var res DispatchResult
	if ctx.Err() != nil {
		return res
	}

	if w.reclaimAfter > 0 {
		n, err := w.store.ReclaimStuck(ctx, w.clock.Now().Add(-w.reclaimAfter))
		if err != nil {
			w.log.Warn("⚠️ Error al recuperar mensajes colgados", zap.Error(err))
		}
		res.Reclaimed = n
	}
	if w.maxAttempts > 0 {
		n, err := w.store.RequeueFailed(ctx, w.maxAttempts)
		if err != nil {
			w.log.Warn("⚠️ Error al reencolar mensajes fallidos", zap.Error(err))
		}
		res.Requeued = n
	}

	msgs, err := w.store.FetchDue(ctx, w.batchSize)
	if err != nil {
		w.log.Warn("⚠️ Error al obtener mensajes pendientes", zap.Error(err))
		return res
	}
	res.Fetched = len(msgs)
	if len(msgs) == 0 {
		return res
	}
	w.log.Debug("📬 Mensajes encontrados para procesar", zap.Int("count", len(msgs)))

	outcomes := make([]outcome, len(msgs))
	if w.concurrency <= 1 {
		for i, msg := range msgs {
			if ctx.Err() != nil {
				break
			}
			outcomes[i] = w.dispatch(ctx, msg)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(w.concurrency)
		for i, msg := range msgs {
			if ctx.Err() != nil {
				break
			}
			i, msg := i, msg
			g.Go(func() error {
				outcomes[i] = w.dispatch(ctx, msg)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, o := range outcomes {
		if o.claimed {
			res.Claimed++
		}
		if o.published {
			res.Published++
		}
		if o.failed {
			res.Failed++
		}
		if o.stateErr {
			res.StateUpdateFailed++
		}
	}
	return res
}

type outcome struct {
	claimed   bool
	published bool
	failed    bool
	stateErr  bool
}

// dispatch reclama, publica y cierra un mensaje. Una vez reclamado, el mensaje se termina
// con un contexto que ignora la cancelación: no se queda en PROCESSING por un apagado.
func (w *Worker) dispatch(ctx context.Context, msg sharedDomain.OutboxMessage) outcome {
	var o outcome
	logger := w.log.With(
		zap.String("message_id", msg.ID.String()),
		zap.String("topic", msg.Topic()),
	)

	claimed, err := w.store.MarkProcessing(ctx, msg.ID, w.clock.Now())
	if err != nil {
		logger.Warn("⚠️ No se pudo reclamar el mensaje", zap.Error(err))
		o.stateErr = true
		return o
	}
	if !claimed {
		logger.Debug("Mensaje reclamado por otro relayer")
		return o
	}
	o.claimed = true

	workCtx := context.WithoutCancel(ctx)
	pubCtx, cancel := context.WithTimeout(workCtx, w.publishTimeout)
	err = w.publish(pubCtx, msg)
	cancel()

	if err != nil {
		o.failed = true
		logger.Warn("⚠️ No se pudo publicar el mensaje", zap.Error(err))
		if mErr := w.store.MarkFailed(workCtx, msg.ID, err.Error(), w.clock.Now()); mErr != nil {
			logger.Error("❌ No se pudo marcar el mensaje como FAILED", zap.Error(mErr))
			o.stateErr = true
		}
		return o
	}

	o.published = true
	if err := w.store.MarkProcessed(workCtx, msg.ID, w.clock.Now()); err != nil {
		// Publicado pero sin marcar: el reclaim lo volverá a publicar.
		logger.Error("❌ No se pudo marcar el mensaje como PROCESSED", zap.Error(err))
		o.stateErr = true
		return o
	}
	logger.Debug("✅ Mensaje publicado y marcado")
	return o
}

func (w *Worker) publish(ctx context.Context, msg sharedDomain.OutboxMessage) error {
	payload := []byte(msg.Payload)
	if w.keyed != nil {
		return w.keyed.PublishKeyed(ctx, msg.Topic(), msg.AggregateID.String(), payload)
	}
	return w.publisher.Publish(ctx, msg.Topic(), payload)
}
