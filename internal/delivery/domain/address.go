package domain

import (
	"fmt"
	"strings"
)

// Address es un value object: se reemplaza entero, nunca se modifica campo a campo.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// NewAddress valida la dirección. State es opcional: hay países sin provincias
// y los pedidos no la traen.
func NewAddress(street, city, state, postalCode, country string) (Address, error) {
	a := Address{
		Street:     strings.TrimSpace(street),
		City:       strings.TrimSpace(city),
		State:      strings.TrimSpace(state),
		PostalCode: strings.TrimSpace(postalCode),
		Country:    strings.TrimSpace(country),
	}
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	return a, nil
}

func (a Address) Validate() error {
	switch {
	case a.Street == "":
		return fmt.Errorf("%w: street is required", ErrInvalidDelivery)
	case a.City == "":
		return fmt.Errorf("%w: city is required", ErrInvalidDelivery)
	case a.PostalCode == "":
		return fmt.Errorf("%w: postal code is required", ErrInvalidDelivery)
	case a.Country == "":
		return fmt.Errorf("%w: country is required", ErrInvalidDelivery)
	}
	return nil
}

func (a Address) String() string {
	return fmt.Sprintf("%s, %s, %s, %s", a.Street, a.City, a.PostalCode, a.Country)
}
