package catalog

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is an optional decimal value. The zero Amount is unset, which is
// distinct from a set value of zero: unset prices are excluded from price
// aggregation while "0" is a real (free) price.
type Amount struct {
	value decimal.Decimal
	valid bool
}

// Unset returns an Amount with no value.
func Unset() Amount {
	return Amount{}
}

// NewAmount wraps a decimal as a set Amount.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{value: d, valid: true}
}

// ParseAmount parses a decimal string. An empty (or blank) string yields an
// unset Amount.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unset(), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Unset(), fmt.Errorf("parse amount %q: %w", s, err)
	}
	return NewAmount(d), nil
}

// MustAmount is ParseAmount for literals; it panics on malformed input.
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsSet reports whether the Amount carries a value.
func (a Amount) IsSet() bool {
	return a.valid
}

// Decimal returns the wrapped value, zero when unset.
func (a Amount) Decimal() decimal.Decimal {
	return a.value
}

// Equal compares two amounts. Two unset amounts are equal; a set and an unset
// amount are never equal.
func (a Amount) Equal(o Amount) bool {
	if a.valid != o.valid {
		return false
	}
	if !a.valid {
		return true
	}
	return a.value.Equal(o.value)
}

// Positive reports whether the amount is set and strictly greater than zero.
func (a Amount) Positive() bool {
	return a.valid && a.value.IsPositive()
}

// Format renders the amount with a fixed number of decimal places. Unset
// amounts render as the empty string.
func (a Amount) Format(places int) string {
	if !a.valid {
		return ""
	}
	return a.value.StringFixed(int32(places))
}

// String implements fmt.Stringer.
func (a Amount) String() string {
	if !a.valid {
		return ""
	}
	return a.value.String()
}

// Value implements driver.Valuer; unset amounts are stored as NULL.
func (a Amount) Value() (driver.Value, error) {
	if !a.valid {
		return nil, nil
	}
	return a.value.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Unset()
		return nil
	case string:
		parsed, err := ParseAmount(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		parsed, err := ParseAmount(string(v))
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case int64:
		*a = NewAmount(decimal.NewFromInt(v))
		return nil
	case float64:
		*a = NewAmount(decimal.NewFromFloat(v))
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Amount", src)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
