// internal/quote/value.go
package quote

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind says what a Value holds.
type Kind int

const (
	Unavailable Kind = iota
	Number
	Text
)

// NotAvailable is how an unavailable value renders.
const NotAvailable = "N/A"

// Value is one normalized quote attribute: a number, a non-numeric string
// passed through untouched, or unavailable.
type Value struct {
	kind Kind
	num  decimal.Decimal
	text string
}

func NumberValue(d decimal.Decimal) Value { return Value{kind: Number, num: d} }

func TextValue(s string) Value { return Value{kind: Text, text: s} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) Available() bool { return v.kind != Unavailable }

func (v Value) IsNumber() bool { return v.kind == Number }

// Decimal returns the numeric value when there is one.
func (v Value) Decimal() (decimal.Decimal, bool) {
	return v.num, v.kind == Number
}

// Sign is -1, 0 or +1 for numbers and 0 for anything else.
func (v Value) Sign() int {
	if v.kind != Number {
		return 0
	}
	return v.num.Sign()
}

func (v Value) String() string {
	switch v.kind {
	case Number:
		return v.num.String()
	case Text:
		return v.text
	default:
		return NotAvailable
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Number:
		return []byte(v.num.String()), nil
	case Text:
		return json.Marshal(v.text)
	default:
		return []byte("null"), nil
	}
}

// coerce turns a raw JSON-decoded value into a Value. Nil and empty strings
// don't count as a match.
func coerce(raw any) (Value, bool) {
	switch x := raw.(type) {
	case nil:
		return Value{}, false
	case json.Number:
		if d, err := decimal.NewFromString(x.String()); err == nil {
			return NumberValue(d), true
		}
		return TextValue(x.String()), true
	case float64:
		return NumberValue(decimal.NewFromFloat(x)), true
	case float32:
		return NumberValue(decimal.NewFromFloat32(x)), true
	case int:
		return NumberValue(decimal.NewFromInt(int64(x))), true
	case int64:
		return NumberValue(decimal.NewFromInt(x)), true
	case decimal.Decimal:
		return NumberValue(x), true
	case string:
		trimmed := strings.TrimSpace(x)
		if trimmed == "" {
			return Value{}, false
		}
		if d, err := decimal.NewFromString(strings.TrimPrefix(trimmed, "+")); err == nil {
			return NumberValue(d), true
		}
		return TextValue(x), true
	case bool:
		return TextValue(fmt.Sprint(x)), true
	default:
		// objects and arrays are not attribute values
		return Value{}, false
	}
}
