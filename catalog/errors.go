package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("record not found")

// NotFoundError reports an identifier with no backing record.
type NotFoundError struct {
	Entity string
	ID     int64
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Is makes errors.Is(err, ErrNotFound) true for any NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewProductNotFound builds the error returned for a missing parent product.
func NewProductNotFound(id int64) error {
	return &NotFoundError{Entity: "product", ID: id}
}

// NewVariationNotFound builds the error returned for a missing variation.
func NewVariationNotFound(id int64) error {
	return &NotFoundError{Entity: "variation", ID: id}
}

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
