package domain

import (
	"fmt"
	"strings"
	"time"
)

// Delivery es el agregado raíz del contexto de entregas. ID es el identificador de negocio
// (p.ej. "DEL-1"), no una clave de almacenamiento.
type Delivery struct {
	ID            string         `json:"id"`
	OrderNumber   string         `json:"orderNumber"`
	Address       Address        `json:"address"`
	Status        DeliveryStatus `json:"status"`
	ScheduledDate *time.Time     `json:"scheduledDate,omitempty"`
	Notes         string         `json:"notes"`
	Version       int64          `json:"version"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// NewDelivery construye una entrega en estado CREATED y devuelve su evento Created.
// scheduled es opcional; si viene no puede estar en el pasado.
func NewDelivery(id, orderNumber string, address Address, scheduled *time.Time, notes string, now time.Time) (*Delivery, Event, error) {
	id = strings.TrimSpace(id)
	orderNumber = strings.TrimSpace(orderNumber)
	if id == "" {
		return nil, Event{}, fmt.Errorf("%w: delivery id is required", ErrInvalidDelivery)
	}
	if orderNumber == "" {
		return nil, Event{}, fmt.Errorf("%w: order number is required", ErrInvalidDelivery)
	}
	if err := address.Validate(); err != nil {
		return nil, Event{}, err
	}
	if scheduled != nil && scheduled.Before(now) {
		return nil, Event{}, fmt.Errorf("%w: scheduled date %s is in the past", ErrInvalidDelivery, scheduled.Format(time.RFC3339))
	}

	d := &Delivery{
		ID:          id,
		OrderNumber: orderNumber,
		Address:     address,
		Status:      DeliveryCreated,
		Notes:       notes,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if scheduled != nil {
		s := scheduled.UTC()
		d.ScheduledDate = &s
	}
	return d, Event{Kind: EventCreated, DeliveryID: d.ID, Status: d.Status, At: now}, nil
}

// --- Transiciones ---
// Ninguna hace I/O. Si fallan, el agregado queda intacto y no hay evento.

// Schedule fija la fecha de entrega. Prohibido si está cancelada.
func (d *Delivery) Schedule(date, now time.Time) (Event, error) {
	if d.Status == DeliveryCancelled {
		return Event{}, d.illegal("schedule")
	}
	if date.Before(now) {
		return Event{}, fmt.Errorf("%w: scheduled date %s is in the past", ErrInvalidDelivery, date.Format(time.RFC3339))
	}
	s := date.UTC()
	d.ScheduledDate = &s
	return d.moveTo(DeliveryScheduled, now), nil
}

func (d *Delivery) Confirm(now time.Time) (Event, error) {
	if d.Status == DeliveryCancelled {
		return Event{}, d.illegal("confirm")
	}
	return d.moveTo(DeliveryConfirmed, now), nil
}

// Start sólo es válido desde CONFIRMED.
func (d *Delivery) Start(now time.Time) (Event, error) {
	if d.Status != DeliveryConfirmed {
		return Event{}, d.illegal("start")
	}
	return d.moveTo(DeliveryInTransit, now), nil
}

// Complete sólo es válido desde IN_TRANSIT.
func (d *Delivery) Complete(now time.Time) (Event, error) {
	if d.Status != DeliveryInTransit {
		return Event{}, d.illegal("complete")
	}
	return d.moveTo(DeliveryCompleted, now), nil
}

// Cancel sólo falla desde COMPLETED. Cancelar una entrega ya cancelada vuelve a emitir el evento.
func (d *Delivery) Cancel(now time.Time) (Event, error) {
	if !d.CanBeCancelled() {
		return Event{}, d.illegal("cancel")
	}
	return d.moveTo(DeliveryCancelled, now), nil
}

// UpdateNotes cambia un campo descriptivo; no emite evento.
func (d *Delivery) UpdateNotes(notes string, now time.Time) {
	d.Notes = notes
	d.UpdatedAt = now
}

// CanBeCancelled coincide con la guarda de Cancel: incluye CANCELLED.
func (d *Delivery) CanBeCancelled() bool {
	return d.Status != DeliveryCompleted
}

// IsActive: todavía queda trabajo por hacer con la entrega.
func (d *Delivery) IsActive() bool {
	return !d.Status.IsTerminal()
}

// Apply despacha una transición por nombre; es lo que usa el caso de uso.
func (d *Delivery) Apply(kind Transition, params TransitionParams, now time.Time) (Event, error) {
	switch kind {
	case TransitionSchedule:
		if params.ScheduledDate == nil {
			return Event{}, fmt.Errorf("%w: scheduled date is required", ErrInvalidDelivery)
		}
		return d.Schedule(*params.ScheduledDate, now)
	case TransitionConfirm:
		return d.Confirm(now)
	case TransitionStart:
		return d.Start(now)
	case TransitionComplete:
		return d.Complete(now)
	case TransitionCancel:
		return d.Cancel(now)
	}
	return Event{}, fmt.Errorf("%w: %q", ErrUnknownTransition, kind)
}

// Deleted es el evento que acompaña al borrado; el estado no cambia.
func (d *Delivery) Deleted(now time.Time) Event {
	return Event{Kind: EventDeleted, DeliveryID: d.ID, Status: d.Status, At: now}
}

func (d *Delivery) moveTo(status DeliveryStatus, now time.Time) Event {
	d.Status = status
	d.UpdatedAt = now
	return Event{Kind: EventStatusChanged, DeliveryID: d.ID, Status: status, At: now}
}

func (d *Delivery) illegal(action string) error {
	return fmt.Errorf("%w: cannot %s delivery %s in status %s", ErrIllegalTransition, action, d.ID, d.Status)
}

// PartitionKey agrupa en la misma partición todos los eventos de una entrega.
func (d *Delivery) PartitionKey() string {
	return d.ID
}

// Transition identifica una transición pedida desde fuera del dominio.
type Transition string

const (
	TransitionSchedule Transition = "schedule"
	TransitionConfirm  Transition = "confirm"
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionCancel   Transition = "cancel"
)

type TransitionParams struct {
	ScheduledDate *time.Time
}
