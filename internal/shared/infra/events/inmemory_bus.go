package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	sharedBus "github.com/davicafu/hexadelivery/internal/shared/infra/platform/bus"
)

// Message es lo que reciben los suscriptores del bus en memoria.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
}

// InMemoryEventBus sustituye a Kafka en local y en tests. Los topics son las routing keys.
// Publish bloquea hasta entregar o hasta que venza ctx: un suscriptor lento no pierde mensajes,
// hace fallar la publicación y el outbox la reintenta.
type InMemoryEventBus struct {
	subscribers map[string][]chan Message
	mu          sync.RWMutex
	closed      bool
}

// Verifica en tiempo de compilación que cumple las interfaces
var (
	_ sharedBus.Publisher      = (*InMemoryEventBus)(nil)
	_ sharedBus.KeyedPublisher = (*InMemoryEventBus)(nil)
)

func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{subscribers: make(map[string][]chan Message)}
}

func (b *InMemoryEventBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.PublishKeyed(ctx, topic, "", payload)
}

func (b *InMemoryEventBus) PublishKeyed(ctx context.Context, topic, key string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	msg := Message{Topic: topic, Key: key, Payload: append([]byte(nil), payload...)}
	for _, sub := range b.subscribers[topic] {
		select {
		case sub <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe suscribe un nuevo oyente a un topic.
func (b *InMemoryEventBus) Subscribe(topic string, bufferSize int) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, bufferSize)
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	return ch
}

// Close cierra todos los canales; Publish posterior devuelve ErrBusClosed.
func (b *InMemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
}

// BackgroundConsumerChan entrega a handler cada mensaje del canal hasta que ctx se cancele
// o el canal se cierre.
func BackgroundConsumerChan(ctx context.Context, ch <-chan Message, handler MessageHandler, log *zap.Logger) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info("Consumidor en memoria detenido")
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := handler.HandleMessage(ctx, msg.Key, msg.Payload); err != nil {
					log.Warn("⚠️ Mensaje no procesado", zap.String("topic", msg.Topic), zap.Error(err))
				}
			}
		}
	}()
}
