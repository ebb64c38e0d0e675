package events

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
	sharedUtils "github.com/davicafu/hexadelivery/internal/shared/infra/utils"
)

const (
	defaultHandleAttempts   = 5
	defaultHandleRetryDelay = 500 * time.Millisecond
)

// MessageHandler es lo que implementa cualquier consumidor de eventos (p.ej. OrderConfirmedConsumer).
// Debe ser idempotente: el mismo mensaje puede llegar más de una vez.
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, payload []byte) error
}

// MessageReader es la parte de *kafka.Reader que usa el adaptador.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Config() kafka.ReaderConfig
	Close() error
}

// ConsumerAdapter es el "oído" que escucha en Kafka.
type ConsumerAdapter struct {
	reader       MessageReader
	handler      MessageHandler
	log          *zap.Logger
	attempts     int
	retryDelay   time.Duration
	fetchBackoff backoff.BackOff
	done         chan struct{}
}

type ConsumerOption func(*ConsumerAdapter)

// WithHandleRetry fija cuántas veces se llama al handler por ronda y la espera entre intentos.
func WithHandleRetry(attempts int, delay time.Duration) ConsumerOption {
	return func(c *ConsumerAdapter) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// WithFetchBackoff sustituye la espera exponencial tras un error de lectura.
func WithFetchBackoff(b backoff.BackOff) ConsumerOption {
	return func(c *ConsumerAdapter) { c.fetchBackoff = b }
}

func NewConsumerAdapter(reader MessageReader, handler MessageHandler, log *zap.Logger, opts ...ConsumerOption) *ConsumerAdapter {
	fetchBackoff := backoff.NewExponentialBackOff()
	fetchBackoff.MaxInterval = 10 * time.Second
	fetchBackoff.MaxElapsedTime = 0

	c := &ConsumerAdapter{
		reader:       reader,
		handler:      handler,
		log:          log,
		attempts:     defaultHandleAttempts,
		retryDelay:   defaultHandleRetryDelay,
		fetchBackoff: fetchBackoff,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewKafkaReader crea un reader de grupo: los offsets se confirman a mano tras procesar.
func NewKafkaReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Start inicia el bucle de consumo de mensajes en una goroutine.
// El offset sólo avanza cuando el handler termina bien o el payload es irrecuperable;
// mientras un mensaje falle, el bucle no pasa al siguiente (al menos una vez).
func (c *ConsumerAdapter) Start(ctx context.Context) {
	topic := c.reader.Config().Topic
	c.log.Info("🎧 Iniciando consumidor de Kafka...",
		zap.String("topic", topic),
		zap.Strings("brokers", c.reader.Config().Brokers),
	)

	go func() {
		defer close(c.done)
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				// Si el contexto se cancela, el error es normal y salimos limpiamente.
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					c.log.Info("Consumidor de Kafka detenido.", zap.String("topic", topic))
					return
				}
				wait := c.fetchBackoff.NextBackOff()
				c.log.Error("Error al leer mensaje de Kafka", zap.Duration("wait", wait), zap.Error(err))
				if !sleep(ctx, wait) {
					return
				}
				continue
			}
			c.fetchBackoff.Reset()

			if !c.handle(ctx, msg) {
				c.log.Info("Consumidor de Kafka detenido con un mensaje sin confirmar",
					zap.String("topic", topic), zap.Int64("offset", msg.Offset))
				return
			}

			if err := c.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
				c.log.Error("Error al confirmar offset", zap.Int64("offset", msg.Offset), zap.Error(err))
			}
		}
	}()
}

// handle devuelve true si el offset puede confirmarse y false si ctx se canceló antes.
func (c *ConsumerAdapter) handle(ctx context.Context, msg kafka.Message) bool {
	for round := 1; ; round++ {
		err := sharedUtils.Retry(ctx, c.attempts, c.retryDelay, func() error {
			err := c.handler.HandleMessage(ctx, string(msg.Key), msg.Value)
			if errors.Is(err, sharedEvents.ErrMalformedPayload) {
				return backoff.Permanent(err)
			}
			return err
		})
		switch {
		case err == nil:
			return true
		case errors.Is(err, sharedEvents.ErrMalformedPayload):
			c.log.Error("🗑️ Payload irrecuperable, se descarta",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return true
		case ctx.Err() != nil:
			return false
		}

		c.log.Warn("⚠️ Mensaje no procesado, el offset no avanza",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Int("round", round),
			zap.Error(err),
		)
		if !sleep(ctx, c.retryDelay) {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close espera a que el bucle termine (cancelar el ctx de Start primero) y cierra el reader.
func (c *ConsumerAdapter) Close() error {
	<-c.done
	return c.reader.Close()
}
