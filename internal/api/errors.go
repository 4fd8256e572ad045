// internal/api/errors.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNetwork is wrapped by every failure where no HTTP response was received
	ErrNetwork = errors.New("network failure")

	// ErrServer is wrapped by every non-2xx response
	ErrServer = errors.New("server error")

	// ErrDecode is returned when a 2xx body can't be decoded into the expected shape
	ErrDecode = errors.New("invalid response payload")
)

// NetworkError is a request that never got a response
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Endpoint, ErrNetwork, e.Err)
}

func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

// ServerError is a non-2xx response. Detail is the human readable `detail`
// field of the error body when the server sent one.
type ServerError struct {
	Endpoint   string
	StatusCode int
	Detail     string
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
}

func (e *ServerError) Unwrap() error { return ErrServer }

// Message picks the user-facing text for err: the server supplied detail when
// present, fallback otherwise.
func Message(err error, fallback string) string {
	var se *ServerError
	if errors.As(err, &se) && se.Detail != "" {
		return se.Detail
	}
	return fallback
}

// PartialFailure is a refresh in which exactly one of the two concurrent
// fetches failed. The nil field is the one that succeeded.
type PartialFailure struct {
	PortfolioErr error
	TradesErr    error
}

func (e *PartialFailure) Error() string {
	if e.PortfolioErr != nil {
		return fmt.Sprintf("partial refresh: portfolio: %v", e.PortfolioErr)
	}
	return fmt.Sprintf("partial refresh: trades: %v", e.TradesErr)
}

func (e *PartialFailure) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.PortfolioErr, e.TradesErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// parseDetail extracts `detail` from an error body. FastAPI sends either a
// string or a list of {loc, msg, type} objects for validation failures.
func parseDetail(body []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(envelope.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}

	if string(envelope.Detail) == "null" {
		return ""
	}
	return string(envelope.Detail)
}
