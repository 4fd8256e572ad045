// internal/domain/symbols.go
package domain

import (
	"strings"
)

// NormalizeSymbols trims, upper-cases and de-duplicates tickers while keeping
// their first-seen order. Empty entries are dropped.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ParseSymbols splits a comma-separated ticker list, e.g. "AAPL, msft,,TSLA".
func ParseSymbols(list string) []string {
	return NormalizeSymbols(strings.Split(list, ","))
}

// RequireSymbols is NormalizeSymbols that fails with ErrInvalidInput on an empty result.
func RequireSymbols(symbols []string) ([]string, error) {
	out := NormalizeSymbols(symbols)
	if len(out) == 0 {
		return nil, ErrEmptySymbols
	}
	return out, nil
}
