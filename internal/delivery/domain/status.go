package domain

type DeliveryStatus string

const (
	DeliveryCreated   DeliveryStatus = "CREATED"
	DeliveryScheduled DeliveryStatus = "SCHEDULED"
	DeliveryConfirmed DeliveryStatus = "CONFIRMED"
	DeliveryInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryCompleted DeliveryStatus = "COMPLETED"
	DeliveryCancelled DeliveryStatus = "CANCELLED"
)

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryCreated, DeliveryScheduled, DeliveryConfirmed, DeliveryInTransit, DeliveryCompleted, DeliveryCancelled:
		return true
	}
	return false
}

// IsTerminal: COMPLETED y CANCELLED no tienen más trabajo pendiente.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryCompleted || s == DeliveryCancelled
}
