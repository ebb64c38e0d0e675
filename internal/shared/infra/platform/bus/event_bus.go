package bus

import "context"

// Publisher es el puerto hacia el broker. No reintenta: los reintentos son cosa del outbox.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// KeyedPublisher es la capacidad opcional de publicar con clave de partición.
// El relayer la recibe explícitamente al construirse; no se descubre en tiempo de publicación.
type KeyedPublisher interface {
	PublishKeyed(ctx context.Context, topic, key string, payload []byte) error
}
