package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/segmentio/kafka-go"

	sharedBus "github.com/davicafu/hexadelivery/internal/shared/infra/platform/bus"
)

// HeaderRoutingKey viaja en cada mensaje para que los consumidores no dependan del nombre del topic.
const HeaderRoutingKey = "routing-key"

// KafkaPublisher publica en el topic que indique TopicMapper; el writer no debe tener Topic fijo.
type KafkaPublisher struct {
	writer *kafka.Writer
	topics TopicMapper
	log    *zap.Logger
}

func NewKafkaPublisher(writer *kafka.Writer, topics TopicMapper, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, topics: topics, log: log}
}

// NewKafkaWriter crea un writer sin topic (se fija por mensaje) y con particionado por clave.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	return p.write(ctx, routingKey, nil, payload)
}

// PublishKeyed usa key como clave de partición: los eventos de un mismo agregado quedan ordenados.
func (p *KafkaPublisher) PublishKeyed(ctx context.Context, routingKey, key string, payload []byte) error {
	return p.write(ctx, routingKey, []byte(key), payload)
}

func (p *KafkaPublisher) write(ctx context.Context, routingKey string, key, payload []byte) error {
	msg := kafka.Message{
		Topic:   p.topics.Topic(routingKey),
		Key:     key,
		Value:   payload,
		Headers: []kafka.Header{{Key: HeaderRoutingKey, Value: []byte(routingKey)}},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("Error publishing to Kafka", zap.String("topic", msg.Topic), zap.Error(err))
		return err
	}

	p.log.Debug("Event published successfully", zap.String("topic", msg.Topic), zap.ByteString("key", key))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Verificación estática
var (
	_ sharedBus.Publisher      = (*KafkaPublisher)(nil)
	_ sharedBus.KeyedPublisher = (*KafkaPublisher)(nil)
)
