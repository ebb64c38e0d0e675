package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func validAddress() Address {
	return Address{Street: "Calle Mayor 1", City: "Madrid", State: "Madrid", PostalCode: "28013", Country: "ES"}
}

func newDelivery(t *testing.T, status DeliveryStatus) *Delivery {
	t.Helper()
	d, _, err := NewDelivery("DEL-1", "ORD-1", validAddress(), nil, "", now)
	require.NoError(t, err)
	d.Status = status
	return d
}

var allStatuses = []DeliveryStatus{
	DeliveryCreated, DeliveryScheduled, DeliveryConfirmed, DeliveryInTransit, DeliveryCompleted, DeliveryCancelled,
}

func TestNewDelivery(t *testing.T) {
	t.Run("emite Created", func(t *testing.T) {
		d, evt, err := NewDelivery("DEL-1", "ORD-1", validAddress(), nil, "dejar en portería", now)

		require.NoError(t, err)
		assert.Equal(t, DeliveryCreated, d.Status)
		assert.Equal(t, int64(1), d.Version)
		assert.Equal(t, EventCreated, evt.Kind)
		assert.Equal(t, "DEL-1", evt.AggregateID())
		assert.Equal(t, now, evt.OccurredAt())
	})

	t.Run("valida los campos obligatorios", func(t *testing.T) {
		_, _, err := NewDelivery("", "ORD-1", validAddress(), nil, "", now)
		assert.ErrorIs(t, err, ErrInvalidDelivery)

		_, _, err = NewDelivery("DEL-1", "", validAddress(), nil, "", now)
		assert.ErrorIs(t, err, ErrInvalidDelivery)

		_, _, err = NewDelivery("DEL-1", "ORD-1", Address{City: "Madrid"}, nil, "", now)
		assert.ErrorIs(t, err, ErrInvalidDelivery)
	})

	t.Run("rechaza fecha en el pasado", func(t *testing.T) {
		past := now.Add(-time.Minute)
		_, _, err := NewDelivery("DEL-1", "ORD-1", validAddress(), &past, "", now)
		assert.ErrorIs(t, err, ErrInvalidDelivery)
	})
}

func TestDelivery_Start(t *testing.T) {
	for _, status := range allStatuses {
		t.Run(string(status), func(t *testing.T) {
			d := newDelivery(t, status)

			evt, err := d.Start(now)

			if status == DeliveryConfirmed {
				require.NoError(t, err)
				assert.Equal(t, DeliveryInTransit, d.Status)
				assert.Equal(t, EventStatusChanged, evt.Kind)
				assert.Equal(t, DeliveryInTransit, evt.Status)
				return
			}
			assert.ErrorIs(t, err, ErrIllegalTransition)
			assert.Equal(t, status, d.Status, "el estado no debe cambiar")
			assert.Equal(t, Event{}, evt, "no debe haber evento")
		})
	}
}

func TestDelivery_Cancel(t *testing.T) {
	for _, status := range allStatuses {
		t.Run(string(status), func(t *testing.T) {
			d := newDelivery(t, status)

			evt, err := d.Cancel(now)

			if status == DeliveryCompleted {
				assert.ErrorIs(t, err, ErrIllegalTransition)
				assert.Equal(t, DeliveryCompleted, d.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, DeliveryCancelled, d.Status)
			assert.Equal(t, EventStatusChanged, evt.Kind)
			assert.Equal(t, DeliveryCancelled, evt.Status)
		})
	}
}

func TestDelivery_Complete_OnlyFromInTransit(t *testing.T) {
	for _, status := range allStatuses {
		d := newDelivery(t, status)
		_, err := d.Complete(now)
		if status == DeliveryInTransit {
			assert.NoError(t, err)
			assert.Equal(t, DeliveryCompleted, d.Status)
		} else {
			assert.ErrorIs(t, err, ErrIllegalTransition, "desde %s", status)
			assert.Equal(t, status, d.Status)
		}
	}
}

func TestDelivery_Schedule(t *testing.T) {
	tomorrow := now.Add(24 * time.Hour)

	t.Run("fecha en el pasado es error de validación", func(t *testing.T) {
		d := newDelivery(t, DeliveryCreated)

		_, err := d.Schedule(now.Add(-time.Second), now)

		assert.ErrorIs(t, err, ErrInvalidDelivery)
		assert.Equal(t, DeliveryCreated, d.Status)
		assert.Nil(t, d.ScheduledDate)
	})

	t.Run("prohibido si está cancelada", func(t *testing.T) {
		d := newDelivery(t, DeliveryCancelled)

		_, err := d.Schedule(tomorrow, now)

		assert.ErrorIs(t, err, ErrIllegalTransition)
		assert.Equal(t, DeliveryCancelled, d.Status)
	})

	t.Run("fija fecha y estado", func(t *testing.T) {
		d := newDelivery(t, DeliveryCreated)

		evt, err := d.Schedule(tomorrow, now)

		require.NoError(t, err)
		assert.Equal(t, DeliveryScheduled, d.Status)
		require.NotNil(t, d.ScheduledDate)
		assert.True(t, tomorrow.Equal(*d.ScheduledDate))
		assert.Equal(t, DeliveryScheduled, evt.Status)
	})
}

func TestDelivery_Confirm_IllegalWhenCancelled(t *testing.T) {
	d := newDelivery(t, DeliveryCancelled)

	_, err := d.Confirm(now)

	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, DeliveryCancelled, d.Status)
}

// Recorrido completo: CREATED -> SCHEDULED -> CONFIRMED -> IN_TRANSIT -> COMPLETED y cancel falla.
func TestDelivery_FullLifecycle(t *testing.T) {
	d, created, err := NewDelivery("DEL-1", "ORD-1", validAddress(), nil, "", now)
	require.NoError(t, err)
	assert.Equal(t, EventCreated, created.Kind)

	var events []Event
	step := func(evt Event, err error) {
		require.NoError(t, err)
		events = append(events, evt)
	}

	step(d.Schedule(now.Add(24*time.Hour), now))
	assert.Equal(t, DeliveryScheduled, d.Status)
	assert.Len(t, events, 1)

	step(d.Confirm(now))
	assert.Equal(t, DeliveryConfirmed, d.Status)

	step(d.Start(now))
	assert.Equal(t, DeliveryInTransit, d.Status)

	step(d.Complete(now))
	assert.Equal(t, DeliveryCompleted, d.Status)

	_, err = d.Cancel(now)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, DeliveryCompleted, d.Status)

	want := []DeliveryStatus{DeliveryScheduled, DeliveryConfirmed, DeliveryInTransit, DeliveryCompleted}
	for i, evt := range events {
		assert.Equal(t, EventStatusChanged, evt.Kind)
		assert.Equal(t, want[i], evt.Status)
	}
}

func TestDelivery_Apply(t *testing.T) {
	d := newDelivery(t, DeliveryCreated)

	_, err := d.Apply(TransitionSchedule, TransitionParams{}, now)
	assert.ErrorIs(t, err, ErrInvalidDelivery)

	_, err = d.Apply("teleport", TransitionParams{}, now)
	assert.ErrorIs(t, err, ErrUnknownTransition)

	evt, err := d.Apply(TransitionConfirm, TransitionParams{}, now)
	require.NoError(t, err)
	assert.Equal(t, DeliveryConfirmed, evt.Status)
}

func TestDelivery_UpdateNotes(t *testing.T) {
	d := newDelivery(t, DeliveryScheduled)
	later := now.Add(time.Hour)

	d.UpdateNotes("llamar antes", later)

	assert.Equal(t, "llamar antes", d.Notes)
	assert.Equal(t, later, d.UpdatedAt)
	assert.Equal(t, DeliveryScheduled, d.Status)
	assert.True(t, d.IsActive())
	assert.True(t, d.CanBeCancelled())
	assert.False(t, newDelivery(t, DeliveryCompleted).CanBeCancelled())
}

func TestDelivery_CanBeCancelledMatchesCancel(t *testing.T) {
	for _, status := range allStatuses {
		t.Run(string(status), func(t *testing.T) {
			// Arrange
			d := newDelivery(t, status)
			allowed := d.CanBeCancelled()

			// Act
			_, err := d.Cancel(now)

			// Assert
			assert.Equal(t, allowed, err == nil)
		})
	}

	cancelled := newDelivery(t, DeliveryCancelled)
	assert.True(t, cancelled.CanBeCancelled())
	assert.False(t, cancelled.IsActive())
}

func TestDelivery_DeletedKeepsStatus(t *testing.T) {
	d := newDelivery(t, DeliveryInTransit)

	evt := d.Deleted(now)

	assert.Equal(t, EventDeleted, evt.Kind)
	assert.Equal(t, DeliveryInTransit, evt.Status)
	assert.Equal(t, DeliveryInTransit, d.Status)
	assert.Equal(t, d.ID, evt.AggregateID())
}
