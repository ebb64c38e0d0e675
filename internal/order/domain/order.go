package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderCreated   OrderStatus = "CREATED"
	OrderConfirmed OrderStatus = "CONFIRMED"
	OrderCancelled OrderStatus = "CANCELLED"
)

type ShippingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type Item struct {
	ProductNumber string          `json:"productNumber"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order es el agregado del contexto de pedidos; OrderNumber es su id de negocio.
type Order struct {
	OrderNumber string          `json:"orderNumber"`
	CustomerID  string          `json:"customerId"`
	Address     ShippingAddress `json:"address"`
	Items       []Item          `json:"items"`
	Status      OrderStatus     `json:"status"`
	ConfirmedAt *time.Time      `json:"confirmedAt,omitempty"`
	Version     int64           `json:"version"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func NewOrder(orderNumber, customerID string, address ShippingAddress, items []Item, now time.Time) (*Order, Event, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, Event{}, fmt.Errorf("%w: order number is required", ErrInvalidOrder)
	}
	if strings.TrimSpace(customerID) == "" {
		return nil, Event{}, fmt.Errorf("%w: customer id is required", ErrInvalidOrder)
	}
	if address.Street == "" || address.City == "" || address.PostalCode == "" || address.Country == "" {
		return nil, Event{}, fmt.Errorf("%w: incomplete shipping address", ErrInvalidOrder)
	}
	if len(items) == 0 {
		return nil, Event{}, fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	}
	for _, it := range items {
		if it.ProductNumber == "" || it.Quantity <= 0 || it.UnitPrice.IsNegative() {
			return nil, Event{}, fmt.Errorf("%w: invalid item %q", ErrInvalidOrder, it.ProductNumber)
		}
	}

	o := &Order{
		OrderNumber: orderNumber,
		CustomerID:  customerID,
		Address:     address,
		Items:       append([]Item(nil), items...),
		Status:      OrderCreated,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return o, o.event(EventCreated, now), nil
}

// Confirm: sólo desde CREATED. Confirmar dos veces es un error, no un no-op.
func (o *Order) Confirm(now time.Time) (Event, error) {
	if o.Status != OrderCreated {
		return Event{}, fmt.Errorf("%w: cannot confirm order %s in status %s", ErrIllegalTransition, o.OrderNumber, o.Status)
	}
	o.Status = OrderConfirmed
	o.ConfirmedAt = &now
	o.UpdatedAt = now
	return o.event(EventConfirmed, now), nil
}

func (o *Order) Cancel(now time.Time) (Event, error) {
	if o.Status == OrderCancelled {
		return Event{}, fmt.Errorf("%w: order %s is already cancelled", ErrIllegalTransition, o.OrderNumber)
	}
	o.Status = OrderCancelled
	o.UpdatedAt = now
	return o.event(EventCancelled, now), nil
}

// Deleted es el evento que acompaña al borrado; no cambia el estado del pedido.
func (o *Order) Deleted(now time.Time) Event {
	return o.event(EventDeleted, now)
}

func (o *Order) Apply(kind Transition, now time.Time) (Event, error) {
	switch kind {
	case TransitionConfirm:
		return o.Confirm(now)
	case TransitionCancel:
		return o.Cancel(now)
	}
	return Event{}, fmt.Errorf("%w: %q", ErrUnknownTransition, kind)
}

func (o *Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (o *Order) event(kind EventKind, now time.Time) Event {
	return Event{Kind: kind, OrderNumber: o.OrderNumber, Status: o.Status, At: now}
}

type Transition string

const (
	TransitionConfirm Transition = "confirm"
	TransitionCancel  Transition = "cancel"
)
