package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	orderDomain "github.com/davicafu/hexadelivery/internal/order/domain"
	sharedDomain "github.com/davicafu/hexadelivery/internal/shared/domain"
	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
	"github.com/davicafu/hexadelivery/pkg/clock"
	"github.com/davicafu/hexadelivery/tests/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var at = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func orderCmd() CreateOrderCommand {
	return CreateOrderCommand{
		OrderNumber: "ORD-1",
		CustomerID:  "CUST-1",
		Address:     orderDomain.ShippingAddress{Street: "Gran Vía 1", City: "Madrid", PostalCode: "28013", Country: "ES"},
		Items: []orderDomain.Item{
			{ProductNumber: "P-1", Quantity: 2, UnitPrice: decimal.RequireFromString("9.99")},
		},
	}
}

func newOrderService() (*OrderService, *mocks.InMemoryOrderRepo) {
	repo := mocks.NewInMemoryOrderRepo()
	return NewOrderService(repo, mocks.NewDummyCache(), clock.NewMockClock(at), zap.NewNop()), repo
}

func TestCreateOrder(t *testing.T) {
	svc, repo := newOrderService()

	o, err := svc.CreateOrder(context.Background(), orderCmd())

	require.NoError(t, err)
	assert.Equal(t, orderDomain.OrderCreated, o.Status)
	require.Len(t, repo.Outbox, 1)
	assert.Equal(t, "Order.OrderCreated", repo.Outbox[0].Topic())
	assert.Equal(t, sharedDomain.AggregateUUID("Order", "ORD-1"), repo.Outbox[0].AggregateID)
}

func TestConfirmOrder_StagesOrderConfirmed(t *testing.T) {
	ctx := context.Background()
	svc, repo := newOrderService()
	_, err := svc.CreateOrder(ctx, orderCmd())
	require.NoError(t, err)

	o, err := svc.PerformTransition(ctx, "ORD-1", orderDomain.TransitionConfirm)

	require.NoError(t, err)
	assert.Equal(t, orderDomain.OrderConfirmed, o.Status)
	require.Len(t, repo.Outbox, 2)
	msg := repo.Outbox[1]
	assert.Equal(t, "Order.OrderConfirmed", msg.Topic())

	var payload sharedEvents.OrderConfirmed
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	assert.Equal(t, "ORD-1", payload.AggregateBusinessID)
	assert.Equal(t, "Madrid", payload.City)
	require.Len(t, payload.Items, 1)
	assert.True(t, decimal.RequireFromString("19.98").Equal(payload.Total))
}

func TestConfirmOrder_Twice(t *testing.T) {
	ctx := context.Background()
	svc, repo := newOrderService()
	_, err := svc.CreateOrder(ctx, orderCmd())
	require.NoError(t, err)
	_, err = svc.PerformTransition(ctx, "ORD-1", orderDomain.TransitionConfirm)
	require.NoError(t, err)

	_, err = svc.PerformTransition(ctx, "ORD-1", orderDomain.TransitionConfirm)

	assert.ErrorIs(t, err, orderDomain.ErrIllegalTransition)
	assert.Len(t, repo.Outbox, 2)
}

func TestGetOrder(t *testing.T) {
	ctx := context.Background()
	svc, _ := newOrderService()
	_, err := svc.CreateOrder(ctx, orderCmd())
	require.NoError(t, err)

	o, err := svc.GetOrder(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "CUST-1", o.CustomerID)

	_, err = svc.GetOrder(ctx, "ORD-404")
	assert.ErrorIs(t, err, orderDomain.ErrOrderNotFound)
}

func TestTranslateOrder_MissingNumber(t *testing.T) {
	_, err := Translate(orderDomain.Event{Kind: orderDomain.EventConfirmed, At: at}, nil)
	assert.ErrorIs(t, err, sharedDomain.ErrMissingAggregateID)
}

func TestDeleteOrder_StagesOrderDeleted(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, repo := newOrderService()
	_, err := svc.CreateOrder(ctx, orderCmd())
	require.NoError(t, err)

	// Act
	err = svc.DeleteOrder(ctx, "ORD-1")

	// Assert
	require.NoError(t, err)
	_, err = svc.GetOrder(ctx, "ORD-1")
	assert.ErrorIs(t, err, orderDomain.ErrOrderNotFound)
	require.Len(t, repo.Outbox, 2)
	msg := repo.Outbox[1]
	assert.Equal(t, "Order.OrderDeleted", msg.Topic())

	var payload sharedEvents.OrderDeleted
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &payload))
	assert.Equal(t, "ORD-1", payload.OrderNumber)
	assert.Equal(t, string(orderDomain.OrderCreated), payload.Status)

	assert.ErrorIs(t, svc.DeleteOrder(ctx, "ORD-1"), orderDomain.ErrOrderNotFound)
	assert.Len(t, repo.Outbox, 2)
}
