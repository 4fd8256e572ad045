// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"go.uber.org/zap"
)

const (
	maxErrorBody       = 64 << 10
	defaultTimeout     = 10 * time.Second
	defaultRetryDelay  = 200 * time.Millisecond
	DefaultTradeLimit  = 20
	DefaultRecentHours = 24
	DefaultSignalLimit = 50
)

// Config holds the upstream locations. Paths are configuration, not constants.
type Config struct {
	APIBaseURL    string
	MarketBaseURL string
	PortfolioPath string
	TradesPath    string
	PositionsPath string
	Timeout       time.Duration
	Retries       int
	RetryDelay    time.Duration
}

// RequestObserver receives the outcome of every upstream request.
type RequestObserver interface {
	ObserveRequest(endpoint string, duration time.Duration, err error)
}

// Client talks to the trading API and the market-data API.
type Client struct {
	cfg      Config
	http     *http.Client
	logger   *zap.Logger
	observer RequestObserver
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithObserver installs a request observer (metrics).
func WithObserver(o RequestObserver) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a client, filling unset paths and timings with defaults.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.PortfolioPath == "" {
		cfg.PortfolioPath = "/api/v1/portfolio"
	}
	if cfg.TradesPath == "" {
		cfg.TradesPath = "/api/v1/trades"
	}
	if cfg.PositionsPath == "" {
		cfg.PositionsPath = "/api/v1/positions"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.MarketBaseURL = strings.TrimRight(cfg.MarketBaseURL, "/")

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get issues a GET and decodes the JSON body into out. Only network failures
// are retried; a response of any status is final.
func (c *Client) get(ctx context.Context, endpoint, url string, out any) error {
	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = c.cfg.RetryDelay
	backoffPolicy.MaxInterval = c.cfg.RetryDelay * 10

	notify := func(err error, d time.Duration) {
		c.logger.Info("Retrying upstream request",
			zap.String("endpoint", endpoint),
			zap.Duration("backoff", d),
			zap.Error(err))
	}

	operation := func() (struct{}, error) {
		err := c.do(ctx, endpoint, http.MethodGet, url, nil, out)
		var ne *NetworkError
		if err != nil && (!errors.As(err, &ne) || ctx.Err() != nil) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(uint(c.cfg.Retries+1)),
		backoff.WithNotify(notify))
	return err
}

// post issues a single POST; commands are never retried.
func (c *Client) post(ctx context.Context, endpoint, url string, body, out any) error {
	return c.do(ctx, endpoint, http.MethodPost, url, body, out)
}

func (c *Client) do(ctx context.Context, endpoint, method, url string, body, out any) (err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "upstream."+endpoint)
	ext.HTTPMethod.Set(span, method)
	ext.HTTPUrl.Set(span, url)
	ext.SpanKindRPCClient.Set(span)

	start := time.Now()
	defer func() {
		if err != nil {
			ext.Error.Set(span, true)
			span.LogKV("error", err.Error())
		}
		span.Finish()
		if c.observer != nil {
			c.observer.ObserveRequest(endpoint, time.Since(start), err)
		}
	}()

	var reader io.Reader
	if body != nil {
		payload, mErr := json.Marshal(body)
		if mErr != nil {
			return fmt.Errorf("%s: encode request: %w", endpoint, mErr)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()
	ext.HTTPStatusCode.Set(span, uint16(resp.StatusCode))

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		se := &ServerError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Detail:     parseDetail(raw),
		}
		c.logger.Debug("Upstream returned error status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("detail", se.Detail))
		return se
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if ctx.Err() != nil {
			return &NetworkError{Endpoint: endpoint, Err: err}
		}
		return fmt.Errorf("%s: %w: %v", endpoint, ErrDecode, err)
	}
	return nil
}
