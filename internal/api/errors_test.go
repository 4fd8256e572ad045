package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessagePrefersServerDetail(t *testing.T) {
	se := &ServerError{Endpoint: "portfolio", StatusCode: 503, Detail: "Broker offline"}

	assert.Equal(t, "Broker offline", Message(se, "fallback"))
	assert.Equal(t, "Broker offline", Message(errors.Join(errors.New("x"), se), "fallback"))
	assert.Equal(t, "fallback", Message(&ServerError{StatusCode: 500}, "fallback"))
	assert.Equal(t, "fallback", Message(&NetworkError{Err: errors.New("refused")}, "fallback"))
}

func TestPartialFailureUnwrap(t *testing.T) {
	trades := &NetworkError{Endpoint: "trades", Err: errors.New("timeout")}
	pf := &PartialFailure{TradesErr: trades}

	assert.ErrorIs(t, pf, ErrNetwork)
	assert.NotErrorIs(t, pf, ErrServer)
	assert.Contains(t, pf.Error(), "trades")

	var se *ServerError
	pf = &PartialFailure{PortfolioErr: &ServerError{StatusCode: 500, Detail: "db down"}}
	assert.ErrorAs(t, pf, &se)
	assert.Equal(t, "db down", Message(pf, "fallback"))
}
