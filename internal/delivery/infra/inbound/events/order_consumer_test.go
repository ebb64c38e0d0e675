package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	deliveryApp "github.com/davicafu/hexadelivery/internal/delivery/application"
	deliveryDomain "github.com/davicafu/hexadelivery/internal/delivery/domain"
	sharedEvents "github.com/davicafu/hexadelivery/internal/shared/events"
	"github.com/davicafu/hexadelivery/pkg/clock"
	"github.com/davicafu/hexadelivery/tests/mocks"
)

var at = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func orderConfirmedPayload(t *testing.T, orderNumber string) []byte {
	t.Helper()
	payload, err := json.Marshal(sharedEvents.OrderConfirmed{
		IntegrationEvent: sharedEvents.IntegrationEvent{
			EventType:           sharedEvents.OrderConfirmedType,
			AggregateBusinessID: orderNumber,
			OccurredAt:          at,
		},
		OrderAddress: sharedEvents.OrderAddress{Street: "Gran Vía 1", City: "Madrid", PostalCode: "28013", Country: "ES"},
		OrderNumber:  orderNumber,
		CustomerID:   "CUST-1",
		ConfirmedAt:  at,
	})
	require.NoError(t, err)
	return payload
}

func TestOrderConfirmedConsumer_CreatesDeliveryOnce(t *testing.T) {
	// Arrange
	repo := mocks.NewInMemoryDeliveryRepo()
	svc := deliveryApp.NewDeliveryService(repo, mocks.NewDummyCache(), clock.NewMockClock(at), zap.NewNop())
	consumer := NewOrderConfirmedConsumer(svc, zap.NewNop())
	payload := orderConfirmedPayload(t, "ORD-7")

	// Act: el mismo evento llega dos veces
	errFirst := consumer.HandleMessage(context.Background(), "k", payload)
	errSecond := consumer.HandleMessage(context.Background(), "k", payload)

	// Assert
	require.NoError(t, errFirst)
	require.NoError(t, errSecond)

	d, ok := repo.Snapshot("DEL-ORD-7")
	require.True(t, ok)
	assert.Equal(t, "ORD-7", d.OrderNumber)
	assert.Equal(t, sharedEvents.UnknownField, d.Address.State)
	assert.Equal(t, "created from confirmed order", d.Notes)
	require.NotNil(t, d.ScheduledDate)
	assert.True(t, at.Add(24*time.Hour).Equal(*d.ScheduledDate))
	assert.Equal(t, 1, repo.OutboxLen(), "sólo el primer evento genera DeliveryCreated")
}

type mockCreator struct {
	mock.Mock
}

func (m *mockCreator) CreateDeliveryFromOrder(ctx context.Context, evt sharedEvents.OrderConfirmed) (*deliveryDomain.Delivery, error) {
	args := m.Called(ctx, evt)
	d, _ := args.Get(0).(*deliveryDomain.Delivery)
	return d, args.Error(1)
}

func TestOrderConfirmedConsumer_IgnoresOtherEvents(t *testing.T) {
	creator := new(mockCreator)
	consumer := NewOrderConfirmedConsumer(creator, zap.NewNop())
	payload := []byte(`{"eventType":"OrderCancelled","aggregateBusinessId":"ORD-1","occurredAt":"2026-03-10T09:00:00Z"}`)

	err := consumer.HandleMessage(context.Background(), "", payload)

	assert.NoError(t, err)
	creator.AssertNotCalled(t, "CreateDeliveryFromOrder", mock.Anything, mock.Anything)
}

func TestOrderConfirmedConsumer_Errors(t *testing.T) {
	tests := []struct {
		name      string
		payload   []byte
		repoErr   error
		malformed bool
	}{
		{"payload no es JSON", []byte(`not-json`), nil, true},
		{"fallo del servicio", nil, errors.New("db down"), false},
		{"entrega inválida", nil, deliveryDomain.ErrInvalidDelivery, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := new(mockCreator)
			payload := tt.payload
			if payload == nil {
				payload = orderConfirmedPayload(t, "ORD-1")
				creator.On("CreateDeliveryFromOrder", mock.Anything, mock.Anything).Return(nil, tt.repoErr)
			}
			consumer := NewOrderConfirmedConsumer(creator, zap.NewNop())

			err := consumer.HandleMessage(context.Background(), "", payload)

			require.Error(t, err)
			assert.Equal(t, tt.malformed, errors.Is(err, sharedEvents.ErrMalformedPayload))
			creator.AssertExpectations(t)
		})
	}
}
