// internal/api/trading.go
package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rovshanmuradov/dashsync/internal/domain"
)

// Portfolio fetches the current portfolio snapshot.
func (c *Client) Portfolio(ctx context.Context) (*domain.PortfolioSnapshot, error) {
	var snap domain.PortfolioSnapshot
	if err := c.get(ctx, "portfolio", c.cfg.APIBaseURL+c.cfg.PortfolioPath, &snap); err != nil {
		return nil, err
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("portfolio: %w", err)
	}
	return &snap, nil
}

// Trades fetches the most recent trades, newest first as the server orders them.
// A non-positive limit means DefaultTradeLimit. The result is not truncated locally.
func (c *Client) Trades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))

	var trades []domain.Trade
	if err := c.get(ctx, "trades", c.cfg.APIBaseURL+c.cfg.TradesPath+"?"+q.Encode(), &trades); err != nil {
		return nil, err
	}
	for i, t := range trades {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("trades[%d] (id %d): %w", i, t.ID, err)
		}
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	return trades, nil
}

// Positions fetches all open positions.
func (c *Client) Positions(ctx context.Context) ([]domain.Position, error) {
	var positions []domain.Position
	if err := c.get(ctx, "positions", c.cfg.APIBaseURL+c.cfg.PositionsPath, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// Position fetches the position for one symbol. A missing position comes back
// as a *ServerError with status 404.
func (c *Client) Position(ctx context.Context, symbol string) (*domain.Position, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, domain.ErrEmptySymbols
	}
	var pos domain.Position
	u := c.cfg.APIBaseURL + c.cfg.PositionsPath + "/" + url.PathEscape(symbol)
	if err := c.get(ctx, "position", u, &pos); err != nil {
		return nil, err
	}
	return &pos, nil
}
