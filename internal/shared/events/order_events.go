package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AggregateOrder     = "Order"
	OrderCreatedType   = "OrderCreated"
	OrderConfirmedType = "OrderConfirmed"
	OrderCancelledType = "OrderCancelled"
	OrderDeletedType   = "OrderDeleted"
)

type OrderItem struct {
	ProductNumber string          `json:"productNumber"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
}

type OrderAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type OrderCreated struct {
	IntegrationEvent
	OrderNumber string          `json:"orderNumber"`
	CustomerID  string          `json:"customerId"`
	Status      string          `json:"status"`
	Total       decimal.Decimal `json:"total"`
}

// OrderConfirmed lleva todo lo que el servicio de entregas necesita para crear la entrega.
type OrderConfirmed struct {
	IntegrationEvent
	OrderAddress

	OrderNumber string          `json:"orderNumber"`
	CustomerID  string          `json:"customerId"`
	ConfirmedAt time.Time       `json:"confirmedAt"`
	Items       []OrderItem     `json:"items"`
	Total       decimal.Decimal `json:"total"`
}

type OrderCancelled struct {
	IntegrationEvent
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}

// OrderDeleted avisa de que el pedido ya no existe; Status es el último que tuvo.
type OrderDeleted struct {
	IntegrationEvent
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}
