// internal/quote/normalizer.go
package quote

import (
	"context"
	"fmt"
	"sort"

	"github.com/PaesslerAG/jsonpath"
)

// Field names a normalized quote attribute.
type Field string

const (
	FieldPrice         Field = "price"
	FieldChange        Field = "change"
	FieldChangePercent Field = "change_percent"
	FieldVolume        Field = "volume"
	FieldHigh          Field = "high"
	FieldLow           Field = "low"
)

// Fields lists every attribute in record order.
var Fields = []Field{FieldPrice, FieldChange, FieldChangePercent, FieldVolume, FieldHigh, FieldLow}

// DefaultCandidates is the lookup table for upstream field names, most
// specific first. Paths are evaluated against the payload after unwrapping
// an optional `quote` object.
var DefaultCandidates = map[Field][]string{
	FieldPrice:         {"$.lastPrice", "$.last", "$.regularMarketPrice"},
	FieldChange:        {"$.netChange", "$.change"},
	FieldChangePercent: {"$.netPercentChange", "$.changePercent"},
	FieldVolume:        {"$.totalVolume", "$.volume"},
	FieldHigh:          {"$.highPrice", "$.dayHigh"},
	FieldLow:           {"$.lowPrice", "$.dayLow"},
}

type accessor struct {
	path string
	eval func(context.Context, interface{}) (interface{}, error)
}

func (a accessor) lookup(payload any) (Value, bool) {
	raw, err := a.eval(context.Background(), payload)
	if err != nil {
		return Value{}, false
	}
	return coerce(raw)
}

// Normalizer maps raw quote payloads of unknown shape onto Records.
// It is stateless after construction and safe for concurrent use.
type Normalizer struct {
	accessors map[Field][]accessor
}

// NewNormalizer compiles the candidate table. A nil table means DefaultCandidates.
func NewNormalizer(candidates map[Field][]string) (*Normalizer, error) {
	if candidates == nil {
		candidates = DefaultCandidates
	}
	n := &Normalizer{accessors: make(map[Field][]accessor, len(Fields))}
	for _, field := range Fields {
		for _, path := range candidates[field] {
			eval, err := jsonpath.New(path)
			if err != nil {
				return nil, fmt.Errorf("compile %s candidate %q: %w", field, path, err)
			}
			n.accessors[field] = append(n.accessors[field], accessor{path: path, eval: eval})
		}
	}
	return n, nil
}

// MustNormalizer is NewNormalizer that panics on a bad table.
func MustNormalizer(candidates map[Field][]string) *Normalizer {
	n, err := NewNormalizer(candidates)
	if err != nil {
		panic(err)
	}
	return n
}

// Resolve evaluates the candidates for field in order and returns the first
// match, or an unavailable Value.
func (n *Normalizer) Resolve(field Field, payload any) Value {
	for _, acc := range n.accessors[field] {
		if v, ok := acc.lookup(payload); ok {
			return v
		}
	}
	return Value{}
}

// NormalizeOne builds the record for one symbol.
func (n *Normalizer) NormalizeOne(symbol string, payload any) Record {
	base := unwrapQuote(payload)
	rec := Record{Symbol: symbol}
	for _, field := range Fields {
		rec.set(field, n.Resolve(field, base))
	}
	return rec
}

// Normalize builds one record per symbol of raw. Records follow order first;
// symbols not mentioned in order come after it, sorted.
func (n *Normalizer) Normalize(raw map[string]any, order []string) []Record {
	records := make([]Record, 0, len(raw))
	done := make(map[string]struct{}, len(raw))
	for _, sym := range order {
		payload, ok := raw[sym]
		if !ok {
			continue
		}
		if _, dup := done[sym]; dup {
			continue
		}
		done[sym] = struct{}{}
		records = append(records, n.NormalizeOne(sym, payload))
	}

	rest := make([]string, 0, len(raw)-len(done))
	for sym := range raw {
		if _, ok := done[sym]; !ok {
			rest = append(rest, sym)
		}
	}
	sort.Strings(rest)
	for _, sym := range rest {
		records = append(records, n.NormalizeOne(sym, raw[sym]))
	}
	return records
}

// unwrapQuote returns payload["quote"] when it is an object, payload otherwise.
func unwrapQuote(payload any) any {
	if m, ok := payload.(map[string]any); ok {
		if inner, ok := m["quote"].(map[string]any); ok {
			return inner
		}
	}
	return payload
}
