package contracts

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
	orderApp "github.com/davicafu/hexadelivery/internal/order/application"
	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
	"github.com/davicafu/hexadelivery/pkg/clock"
	"github.com/davicafu/hexadelivery/tests/mocks"
)

var at = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func newOrders(repo *mocks.InMemoryOrderRepo) *orderApp.OrderService {
	return orderApp.NewOrderService(repo, mocks.NewDummyCache(), clock.NewMockClock(at), zap.NewNop())
}

func newDeliveries(repo *mocks.InMemoryDeliveryRepo) *deliveryApp.DeliveryService {
	return deliveryApp.NewDeliveryService(repo, mocks.NewDummyCache(), clock.NewMockClock(at), zap.NewNop())
}

func createOrder(t *testing.T, svc *orderApp.OrderService, number string) {
	t.Helper()
	_, err := svc.CreateOrder(context.Background(), orderApp.CreateOrderCommand{
		OrderNumber: number,
		CustomerID:  "CUST-1",
		Address:     orderDomain.ShippingAddress{Street: "Rúa Nova 3", City: "Lugo", PostalCode: "27001", Country: "ES"},
		Items:       []orderDomain.Item{{ProductNumber: "P-1", Quantity: 1, UnitPrice: decimal.RequireFromString("9.99")}},
	})
	require.NoError(t, err)
}

// Sólo el JSON del outbox cruza la frontera entre pedidos y entregas.
func TestOrderConfirmed_IsConsumableByDeliveries(t *testing.T) {
	// Arrange
	ctx := context.Background()
	orderRepo := mocks.NewInMemoryOrderRepo()
	orders := newOrders(orderRepo)
	createOrder(t, orders, "ORD-42")
	_, err := orders.PerformTransition(ctx, "ORD-42", orderDomain.TransitionConfirm)
	require.NoError(t, err)

	require.Len(t, orderRepo.Outbox, 2)
	confirmed := orderRepo.Outbox[1]
	require.Equal(t, "Order.OrderConfirmed", confirmed.Topic())

	deliveryRepo := mocks.NewInMemoryDeliveryRepo()
	consumer := deliveryEvents.NewOrderConfirmedConsumer(newDeliveries(deliveryRepo), zap.NewNop())

	// Act
	err = consumer.HandleMessage(ctx, confirmed.AggregateID.String(), []byte(confirmed.Payload))

	// Assert
	require.NoError(t, err)
	d, ok := deliveryRepo.Snapshot("DEL-ORD-42")
	require.True(t, ok)
	assert.Equal(t, "ORD-42", d.OrderNumber)
	assert.Equal(t, deliveryDomain.Address{
		Street: "Rúa Nova 3", City: "Lugo", State: sharedEvents.UnknownField, PostalCode: "27001", Country: "ES",
	}, d.Address)
	assert.Equal(t, deliveryDomain.DeliveryCreated, d.Status)
}

func TestOrderCreated_IsIgnoredByDeliveries(t *testing.T) {
	orderRepo := mocks.NewInMemoryOrderRepo()
	createOrder(t, newOrders(orderRepo), "ORD-43")
	require.Len(t, orderRepo.Outbox, 1)

	deliveryRepo := mocks.NewInMemoryDeliveryRepo()
	consumer := deliveryEvents.NewOrderConfirmedConsumer(newDeliveries(deliveryRepo), zap.NewNop())

	err := consumer.HandleMessage(context.Background(), "", []byte(orderRepo.Outbox[0].Payload))

	require.NoError(t, err)
	assert.Empty(t, deliveryRepo.Deliveries)
}

type recordingAnalytics struct {
	rows []deliveryDomain.StatusChange
}

func (r *recordingAnalytics) LogBatch(ctx context.Context, changes []deliveryDomain.StatusChange) error {
	r.rows = append(r.rows, changes...)
	return nil
}

func (r *recordingAnalytics) CountByStatus(ctx context.Context, start, end time.Time) ([]deliveryDomain.StatusCount, error) {
	return nil, nil
}

// Los eventos de entrega que salen del outbox alimentan la proyección analítica.
func TestDeliveryEvents_FeedStatusProjection(t *testing.T) {
	// Arrange
	ctx := context.Background()
	repo := mocks.NewInMemoryDeliveryRepo()
	svc := newDeliveries(repo)
	_, err := svc.CreateDelivery(ctx, deliveryApp.CreateDeliveryCommand{
		ID:          "DEL-1",
		OrderNumber: "ORD-1",
		Address:     deliveryDomain.Address{Street: "s", City: "c", PostalCode: "p", Country: "ES"},
	})
	require.NoError(t, err)
	_, err = svc.PerformTransition(ctx, "DEL-1", deliveryDomain.TransitionCancel, deliveryDomain.TransitionParams{})
	require.NoError(t, err)

	analytics := &recordingAnalytics{}
	projector := deliveryEvents.NewStatusProjector(analytics, 10, zap.NewNop())

	// Act
	for _, msg := range repo.Outbox {
		require.NoError(t, projector.HandleMessage(ctx, msg.AggregateID.String(), []byte(msg.Payload)))
	}
	require.NoError(t, projector.Flush(ctx))

	// Assert
	require.Len(t, analytics.rows, 2)
	assert.Equal(t, deliveryDomain.DeliveryCreated, analytics.rows[0].Status)
	assert.Equal(t, deliveryDomain.DeliveryCancelled, analytics.rows[1].Status)
	assert.Equal(t, "DEL-1", analytics.rows[1].DeliveryID)
}
