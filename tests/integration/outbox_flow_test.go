package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	deliveryApp "github.com/davicafu/hexadelivery/internal/delivery/application"
	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	deliveryEvents "github.com/davicafu/hexadelivery/internal/delivery/infra/inbound/events"
	deliverySQLite "github.com/davicafu/hexadelivery/internal/delivery/infra/outbound/db/sqlite"
	orderApp "github.com/davicafu/hexadelivery/internal/order/application"
	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	orderSQLite "github.com/davicafu/hexadelivery/internal/order/infra/outbound/db/sqlite"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
	infraEvents "github.com/davicafu/hexadelivery/internal/shared/infra/events"
	sharedSQLite "github.com/davicafu/hexadelivery/internal/shared/infra/platform/db/sqlite"
	"github.com/davicafu/hexadelivery/internal/shared/infra/relayer"
	"github.com/davicafu/hexadelivery/pkg/clock"
)

var at = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// Flujo completo sobre una misma SQLite: pedido confirmado -> outbox -> bus en memoria
// -> consumidor de entregas -> entrega creada con su propio evento en el outbox.
func TestOrderToDeliveryFlow_SQLite(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sharedSQLite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, orderSQLite.InitOrderSchema(ctx, db))
	require.NoError(t, deliverySQLite.InitDeliverySchema(ctx, db))

	clk := clock.NewMockClock(at)
	log := zap.NewNop()
	outbox := sharedSQLite.NewOutboxRepoSQLite(db)
	deliveryRepo := deliverySQLite.NewDeliveryRepoSQLite(db)
	orders := orderApp.NewOrderService(orderSQLite.NewOrderRepoSQLite(db), nil, clk, log)
	deliveries := deliveryApp.NewDeliveryService(deliveryRepo, nil, clk, log)

	bus := infraEvents.NewInMemoryEventBus()
	defer bus.Close()
	orderConfirmedKey := sharedDomain.RoutingKey(sharedEvents.AggregateOrder, sharedEvents.OrderConfirmedType)
	infraEvents.BackgroundConsumerChan(ctx, bus.Subscribe(orderConfirmedKey, 8),
		deliveryEvents.NewOrderConfirmedConsumer(deliveries, log), log)
	deliveryCreated := bus.Subscribe(sharedDomain.RoutingKey(sharedEvents.AggregateDelivery, sharedEvents.DeliveryCreatedType), 8)

	worker := relayer.NewOutboxWorker(outbox, bus, log,
		relayer.WithKeyedPublisher(bus),
		relayer.WithClock(clk),
		relayer.WithBatchSize(10),
	)

	_, err = orders.CreateOrder(ctx, orderApp.CreateOrderCommand{
		OrderNumber: "ORD-1001",
		CustomerID:  "CUST-7",
		Address:     orderDomain.ShippingAddress{Street: "Calle Mayor 1", City: "Zaragoza", PostalCode: "50001", Country: "ES"},
		Items:       []orderDomain.Item{{ProductNumber: "P-1", Quantity: 2, UnitPrice: decimal.RequireFromString("4.35")}},
	})
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = orders.PerformTransition(ctx, "ORD-1001", orderDomain.TransitionConfirm)
	require.NoError(t, err)

	// Act: primer ciclo publica OrderCreated y OrderConfirmed
	first := worker.ProcessBatch(ctx)

	// Assert
	assert.Equal(t, 2, first.Published)
	assert.Zero(t, first.Failed)

	var d *deliveryDomain.Delivery
	require.Eventually(t, func() bool {
		d, err = deliveryRepo.GetByID(ctx, "DEL-ORD-1001")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ORD-1001", d.OrderNumber)
	assert.Equal(t, "Zaragoza", d.Address.City)
	require.NotNil(t, d.ScheduledDate)
	assert.True(t, at.Add(time.Minute+24*time.Hour).Equal(*d.ScheduledDate))

	counts, err := outbox.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[sharedDomain.OutboxProcessed])
	assert.Equal(t, int64(1), counts[sharedDomain.OutboxPending])

	// Act: segundo ciclo publica el DeliveryCreated que dejó el consumidor
	second := worker.ProcessBatch(ctx)

	assert.Equal(t, 1, second.Published)
	select {
	case msg := <-deliveryCreated:
		assert.Equal(t, sharedDomain.AggregateUUID(sharedEvents.AggregateDelivery, "DEL-ORD-1001").String(), msg.Key)
		h, err := sharedEvents.Header(msg.Payload)
		require.NoError(t, err)
		assert.Equal(t, "DEL-ORD-1001", h.AggregateBusinessID)
	case <-time.After(time.Second):
		t.Fatal("DeliveryCreated no publicado")
	}

	counts, err = outbox.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[sharedDomain.OutboxProcessed])
	assert.Zero(t, counts[sharedDomain.OutboxPending])
}

// Un OrderConfirmed entregado dos veces no duplica la entrega.
func TestOrderConfirmedRedelivery_SQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sharedSQLite.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, orderSQLite.InitOrderSchema(ctx, db))
	require.NoError(t, deliverySQLite.InitDeliverySchema(ctx, db))

	clk := clock.NewMockClock(at)
	outbox := sharedSQLite.NewOutboxRepoSQLite(db)
	orders := orderApp.NewOrderService(orderSQLite.NewOrderRepoSQLite(db), nil, clk, zap.NewNop())
	deliveries := deliveryApp.NewDeliveryService(deliverySQLite.NewDeliveryRepoSQLite(db), nil, clk, zap.NewNop())
	consumer := deliveryEvents.NewOrderConfirmedConsumer(deliveries, zap.NewNop())

	_, err = orders.CreateOrder(ctx, orderApp.CreateOrderCommand{
		OrderNumber: "ORD-2002",
		CustomerID:  "CUST-7",
		Address:     orderDomain.ShippingAddress{Street: "s", City: "c", PostalCode: "p", Country: "ES"},
		Items:       []orderDomain.Item{{ProductNumber: "P-1", Quantity: 1, UnitPrice: decimal.NewFromInt(3)}},
	})
	require.NoError(t, err)
	clk.Advance(time.Minute)
	_, err = orders.PerformTransition(ctx, "ORD-2002", orderDomain.TransitionConfirm)
	require.NoError(t, err)

	due, err := outbox.FetchDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	confirmed := due[1]
	require.Equal(t, sharedEvents.OrderConfirmedType, confirmed.EventType)

	for i := 0; i < 2; i++ {
		require.NoError(t, consumer.HandleMessage(ctx, confirmed.AggregateID.String(), []byte(confirmed.Payload)))
	}

	var deliveriesForOrder int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries WHERE order_number = ?`, "ORD-2002").Scan(&deliveriesForOrder))
	assert.Equal(t, 1, deliveriesForOrder)

	counts, err := outbox.CountByStatus(ctx)
	require.NoError(t, err)
	// OrderCreated, OrderConfirmed y un único DeliveryCreated
	assert.Equal(t, int64(3), counts[sharedDomain.OutboxPending])
}
