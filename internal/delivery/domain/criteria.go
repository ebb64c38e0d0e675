package domain

import (
	shared "github.com/davicafu/hexadelivery/internal/shared/domain"
)

// StatusCriteria busca entregas por estado.
type StatusCriteria struct {
	Status DeliveryStatus
}

func (c StatusCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{{Field: "status", Op: shared.OpEq, Value: string(c.Status)}}
}

// OrderNumberCriteria busca las entregas de un pedido.
type OrderNumberCriteria struct {
	OrderNumber string
}

func (c OrderNumberCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{{Field: "order_number", Op: shared.OpEq, Value: c.OrderNumber}}
}

// CityCriteria: LIKE sobre la ciudad de destino.
type CityCriteria struct {
	City string
}

func (c CityCriteria) ToConditions() []shared.Criterion {
	return []shared.Criterion{{Field: "city", Op: shared.OpLike, Value: "%" + c.City + "%"}}
}
