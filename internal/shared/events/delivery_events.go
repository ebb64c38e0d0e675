package events

import "time"

const (
	AggregateDelivery         = "Delivery"
	DeliveryCreatedType       = "DeliveryCreated"
	DeliveryStatusChangedType = "DeliveryStatusChanged"
	DeliveryDeletedType       = "DeliveryDeleted"
)

// Estos son contratos de integración, NO entidades del dominio.
// La dirección va aplanada: los consumidores no conocen el value object.
type DeliveryAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type DeliveryCreated struct {
	IntegrationEvent
	DeliveryAddress

	OrderNumber   string     `json:"orderNumber"`
	Status        string     `json:"status"`
	ScheduledDate *time.Time `json:"scheduledDate"`
	Notes         string     `json:"notes"`
}

type DeliveryStatusChanged struct {
	IntegrationEvent
	DeliveryAddress

	OrderNumber   string     `json:"orderNumber"`
	Status        string     `json:"status"`
	ScheduledDate *time.Time `json:"scheduledDate"`
}

type DeliveryDeleted struct {
	IntegrationEvent
	OrderNumber string `json:"orderNumber"`
	Status      string `json:"status"`
}
