// internal/api/envelope.go
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// unwrap decodes raw into out, descending into raw[key] first when raw is an
// object carrying that key. The market endpoints wrap payloads as
// {"status": "success", "<key>": ...}; bare payloads are accepted as well.
func unwrap(raw json.RawMessage, key string, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if inner, ok := envelope[key]; ok {
			trimmed = inner
		}
	}
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, key, err)
	}
	return nil
}
