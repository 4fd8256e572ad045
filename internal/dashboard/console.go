// internal/dashboard/console.go
package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/dashsync/internal/ui/state"
)

// Summarize turns a view into log fields. It stands in for a renderer.
func Summarize(v state.View) []zap.Field {
	fields := []zap.Field{
		zap.Uint64("revision", v.Revision),
		zap.String("connection", string(v.Connection.Status)),
		zap.String("streaming", string(v.Streaming.Status)),
		zap.Bool("loading", v.Loading || v.MarketLoading),
		zap.Int("trades", len(v.Trades)),
		zap.Int("quotes", len(v.Quotes)),
		zap.Int("recent_points", len(v.Recent.Points)),
	}
	if v.Portfolio != nil {
		fields = append(fields,
			zap.String("total_value", v.Portfolio.TotalValue.StringFixed(2)),
			zap.String("daily_pnl", v.Portfolio.Performance.DailyPnL.StringFixed(2)),
			zap.Int("positions", len(v.Portfolio.Positions)),
		)
	}
	for _, q := range v.Quotes {
		fields = append(fields, zap.String("quote."+q.Symbol, q.Price.String()+" "+string(q.Direction())))
	}
	if v.TradingError != "" {
		fields = append(fields, zap.String("trading_error", v.TradingError))
	}
	if v.MarketError != "" {
		fields = append(fields, zap.String("market_error", v.MarketError))
	}
	return fields
}

// Render logs every view arriving on views until ctx is done, flushing
// the throttler so a held-back view is eventually shown.
func Render(ctx context.Context, views <-chan state.View, th *ViewThrottler, logger *zap.Logger) {
	flush := time.NewTicker(250 * time.Millisecond)
	defer flush.Stop()

	log := logger.Named("view")
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-views:
			log.Info("Dashboard updated", Summarize(v)...)
		case <-flush.C:
			th.FlushPending()
		}
	}
}
