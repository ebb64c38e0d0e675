package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateUUID_IsDeterministic(t *testing.T) {
	a := AggregateUUID("Delivery", "DEL-1")
	b := AggregateUUID("Delivery", "DEL-1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, uuid.Nil, a)
	assert.NotEqual(t, a, AggregateUUID("Delivery", "DEL-2"))
	// Mismo id de negocio en otro tipo de agregado => otro UUID
	assert.NotEqual(t, a, AggregateUUID("Order", "DEL-1"))
}

func TestNewOutboxMessage(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("crea un mensaje PENDING", func(t *testing.T) {
		msg, err := NewOutboxMessage("Delivery", "DEL-1", "DeliveryStatusChanged", []byte(`{"a":1}`), now)

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, msg.ID)
		assert.Equal(t, OutboxPending, msg.Status)
		assert.Equal(t, AggregateUUID("Delivery", "DEL-1"), msg.AggregateID)
		assert.Equal(t, "Delivery.DeliveryStatusChanged", msg.Topic())
		assert.Equal(t, now, msg.CreatedAt)
		assert.Nil(t, msg.ProcessedAt)
		assert.Nil(t, msg.ErrorMessage)
	})

	t.Run("falla sin id de negocio", func(t *testing.T) {
		_, err := NewOutboxMessage("Delivery", "  ", "DeliveryCreated", []byte(`{}`), now)
		assert.ErrorIs(t, err, ErrMissingAggregateID)
	})

	t.Run("falla sin payload", func(t *testing.T) {
		_, err := NewOutboxMessage("Delivery", "DEL-1", "DeliveryCreated", nil, now)
		assert.ErrorIs(t, err, ErrInvalidOutboxMessage)
	})
}

func TestOutboxStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to OutboxStatus
		want     bool
	}{
		{OutboxPending, OutboxProcessing, true},
		{OutboxPending, OutboxProcessed, false},
		{OutboxProcessing, OutboxProcessed, true},
		{OutboxProcessing, OutboxFailed, true},
		{OutboxProcessing, OutboxPending, true},
		{OutboxFailed, OutboxPending, true},
		{OutboxProcessed, OutboxPending, false},
		{OutboxProcessed, OutboxFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestResolveUnapplied(t *testing.T) {
	assert.NoError(t, ResolveUnapplied(OutboxProcessed, OutboxProcessed))
	assert.NoError(t, ResolveUnapplied(OutboxProcessed, OutboxFailed))
	assert.NoError(t, ResolveUnapplied(OutboxFailed, OutboxFailed))

	err := ResolveUnapplied(OutboxPending, OutboxProcessed)
	assert.True(t, errors.Is(err, ErrInvalidOutboxTransition))
}
