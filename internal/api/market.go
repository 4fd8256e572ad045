// internal/api/market.go
package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rovshanmuradov/dashsync/internal/domain"
)

// ConnectionReport is the body of a test-connection call.
type ConnectionReport struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	AccountsFound  int    `json:"accounts_found"`
	ConnectionTime string `json:"connection_time"`
}

// StatusUnavailable is reported with HTTP 200 when the remote broker client
// isn't configured at all.
const StatusUnavailable = "unavailable"

// Ack is the remote acknowledgement of a streaming command.
type Ack struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Symbols   []string `json:"symbols,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// TestConnection probes the market-data backend.
func (c *Client) TestConnection(ctx context.Context) (*ConnectionReport, error) {
	var report ConnectionReport
	if err := c.get(ctx, "test_connection", c.cfg.MarketBaseURL+"/test-connection", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Quotes fetches raw quote payloads keyed by symbol. Payload shapes vary by
// instrument and are left to the quote normalizer.
func (c *Client) Quotes(ctx context.Context, symbols []string) (map[string]any, error) {
	symbols, err := domain.RequireSymbols(symbols)
	if err != nil {
		return nil, err
	}
	escaped := make([]string, len(symbols))
	for i, s := range symbols {
		escaped[i] = url.PathEscape(s)
	}

	var raw json.RawMessage
	if err := c.get(ctx, "quotes", c.cfg.MarketBaseURL+"/quotes/"+strings.Join(escaped, ","), &raw); err != nil {
		return nil, err
	}
	quotes := map[string]any{}
	if err := unwrap(raw, "quotes", &quotes); err != nil {
		return nil, err
	}
	return quotes, nil
}

// Accounts lists the linked brokerage accounts.
func (c *Client) Accounts(ctx context.Context) ([]domain.Account, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "accounts", c.cfg.MarketBaseURL+"/accounts", &raw); err != nil {
		return nil, err
	}
	accounts := []domain.Account{}
	if err := unwrap(raw, "accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// StartStream asks the remote service to start real-time capture for symbols.
func (c *Client) StartStream(ctx context.Context, symbols []string) (*Ack, error) {
	var ack Ack
	if err := c.post(ctx, "stream_start", c.cfg.MarketBaseURL+"/stream/start", symbols, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// StopStream asks the remote service to stop real-time capture.
func (c *Client) StopStream(ctx context.Context) (*Ack, error) {
	var ack Ack
	if err := c.post(ctx, "stream_stop", c.cfg.MarketBaseURL+"/stream/stop", nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// RecentData fetches the captured series for symbol over the last hours.
func (c *Client) RecentData(ctx context.Context, symbol string, hours int) ([]domain.PricePoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, domain.ErrEmptySymbols
	}
	if hours <= 0 {
		hours = DefaultRecentHours
	}
	q := url.Values{}
	q.Set("hours", strconv.Itoa(hours))

	var raw json.RawMessage
	u := c.cfg.MarketBaseURL + "/data/recent/" + url.PathEscape(symbol) + "?" + q.Encode()
	if err := c.get(ctx, "recent_data", u, &raw); err != nil {
		return nil, err
	}
	points := []domain.PricePoint{}
	if err := unwrap(raw, "data", &points); err != nil {
		return nil, err
	}
	return points, nil
}

// RecentSignals fetches the most recent trading signals.
func (c *Client) RecentSignals(ctx context.Context, limit int) ([]domain.Signal, error) {
	if limit <= 0 {
		limit = DefaultSignalLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var raw json.RawMessage
	if err := c.get(ctx, "signals", c.cfg.MarketBaseURL+"/signals/recent?"+q.Encode(), &raw); err != nil {
		return nil, err
	}
	signals := []domain.Signal{}
	if err := unwrap(raw, "signals", &signals); err != nil {
		return nil, err
	}
	return signals, nil
}
