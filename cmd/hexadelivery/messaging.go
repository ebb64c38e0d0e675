package main

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/davicafu/hexadelivery/internal/config"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
	infraEvents "github.com/davicafu/hexadelivery/internal/shared/infra/events"
	sharedHttp "github.com/davicafu/hexadelivery/internal/shared/infra/http"
	sharedBus "github.com/davicafu/hexadelivery/internal/shared/infra/platform/bus"
	sharedUtils "github.com/davicafu/hexadelivery/internal/shared/infra/utils"
)

// subscription une una routing key con el handler que la consume.
type subscription struct {
	routingKey string
	group      string
	handler    infraEvents.MessageHandler
}

// messaging es el bus elegido (Kafka o en memoria) visto desde main.
type messaging struct {
	publisher sharedBus.Publisher
	keyed     sharedBus.KeyedPublisher
	check     sharedHttp.Check
	subscribe func(ctx context.Context, sub subscription)
	close     func() error
}

var (
	orderConfirmedKey        = sharedDomain.RoutingKey(sharedEvents.AggregateOrder, sharedEvents.OrderConfirmedType)
	deliveryCreatedKey       = sharedDomain.RoutingKey(sharedEvents.AggregateDelivery, sharedEvents.DeliveryCreatedType)
	deliveryStatusChangedKey = sharedDomain.RoutingKey(sharedEvents.AggregateDelivery, sharedEvents.DeliveryStatusChangedType)
)

func openMessaging(ctx context.Context, cfg *config.Config, log *zap.Logger) (*messaging, error) {
	if cfg.UseKafka {
		return openKafka(ctx, cfg, log)
	}
	return openInMemory(log), nil
}

func openKafka(ctx context.Context, cfg *config.Config, log *zap.Logger) (*messaging, error) {
	log.Info("🚀 Usando Kafka como bus de eventos", zap.Strings("brokers", cfg.KafkaBrokers))

	dial := func(ctx context.Context) error {
		conn, err := kafka.DialContext(ctx, "tcp", cfg.KafkaBrokers[0])
		if err != nil {
			return fmt.Errorf("kafka dial: %w", err)
		}
		return conn.Close()
	}
	if err := sharedUtils.ConnectWithRetry(ctx, log, "kafka", cfg.ConnectTimeout, dial); err != nil {
		return nil, err
	}

	topics := infraEvents.NewTopicMapper(cfg.TopicPrefix)
	publisher := infraEvents.NewKafkaPublisher(infraEvents.NewKafkaWriter(cfg.KafkaBrokers), topics, log)

	var adapters []*infraEvents.ConsumerAdapter
	m := &messaging{
		publisher: publisher,
		keyed:     publisher,
		check:     dial,
	}
	m.subscribe = func(ctx context.Context, sub subscription) {
		reader := infraEvents.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaGroupID+sub.group, topics.Topic(sub.routingKey))
		adapter := infraEvents.NewConsumerAdapter(reader, sub.handler, log)
		adapter.Start(ctx)
		adapters = append(adapters, adapter)
	}
	// Los consumidores se cierran antes que el writer: el ctx de Start ya debe estar cancelado.
	m.close = func() error {
		for _, a := range adapters {
			if err := a.Close(); err != nil {
				log.Warn("Error al cerrar consumidor de Kafka", zap.Error(err))
			}
		}
		return publisher.Close()
	}
	return m, nil
}

func openInMemory(log *zap.Logger) *messaging {
	log.Info("⚡️ Usando bus de eventos en memoria (canales de Go)")

	bus := infraEvents.NewInMemoryEventBus()
	return &messaging{
		publisher: bus,
		keyed:     bus,
		check:     func(context.Context) error { return nil },
		subscribe: func(ctx context.Context, sub subscription) {
			log.Info("🎧 Iniciando listener en memoria", zap.String("routing_key", sub.routingKey))
			infraEvents.BackgroundConsumerChan(ctx, bus.Subscribe(sub.routingKey, 64), sub.handler, log)
		},
		close: func() error {
			bus.Close()
			return nil
		},
	}
}
