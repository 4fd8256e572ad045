// internal/quote/record.go
package quote

// Direction is the presentation polarity of a quote's change.
type Direction string

const (
	Up      Direction = "up"
	Down    Direction = "down"
	Flat    Direction = "flat"
	Unknown Direction = "unknown"
)

// Record is the stable view of one quote, whatever shape it arrived in.
type Record struct {
	Symbol        string `json:"symbol"`
	Price         Value  `json:"price"`
	Change        Value  `json:"change"`
	ChangePercent Value  `json:"change_percent"`
	Volume        Value  `json:"volume"`
	High          Value  `json:"high"`
	Low           Value  `json:"low"`
}

func (r *Record) set(field Field, v Value) {
	switch field {
	case FieldPrice:
		r.Price = v
	case FieldChange:
		r.Change = v
	case FieldChangePercent:
		r.ChangePercent = v
	case FieldVolume:
		r.Volume = v
	case FieldHigh:
		r.High = v
	case FieldLow:
		r.Low = v
	}
}

// Get returns the value of field.
func (r Record) Get(field Field) Value {
	switch field {
	case FieldPrice:
		return r.Price
	case FieldChange:
		return r.Change
	case FieldChangePercent:
		return r.ChangePercent
	case FieldVolume:
		return r.Volume
	case FieldHigh:
		return r.High
	case FieldLow:
		return r.Low
	}
	return Value{}
}

// Direction derives polarity from the numeric change; non-numeric or missing
// changes are Unknown.
func (r Record) Direction() Direction {
	if !r.Change.IsNumber() {
		return Unknown
	}
	switch r.Change.Sign() {
	case 1:
		return Up
	case -1:
		return Down
	}
	return Flat
}
