// Package pacifica is the REST and WebSocket client for the Pacifica
// perpetuals exchange API. Every REST call goes through one shared retry
// loop and a caller-supplied rate limiter; history endpoints follow
// server-issued cursors until the history is exhausted.
package pacifica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/perptools/perprecap/internal/domain"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://api.pacifica.fi/api/v1"

	// DefaultPageLimit is the page size requested from history endpoints.
	DefaultPageLimit = 100

	// DefaultMaxAttempts bounds the retry loop: total attempts, not
	// retries after the first.
	DefaultMaxAttempts = 3

	// DefaultRetryBase scales both backoff curves: 429 waits
	// 2^attempt * base, 5xx and network failures wait attempt * base.
	DefaultRetryBase = time.Second
)

// Limiter gates outbound requests. Wait blocks until one more request may
// be sent; it fails only on context cancellation.
type Limiter interface {
	Wait(ctx context.Context) error
}

// ClientConfig holds the tunable parameters of the REST client. Zero
// values fall back to the defaults above.
type ClientConfig struct {
	BaseURL     string
	PageLimit   int
	MaxAttempts int
	RetryBase   time.Duration
	Timeout     time.Duration
}

// Client is the Pacifica REST client.
type Client struct {
	baseURL     string
	pageLimit   int
	maxAttempts int
	retryBase   time.Duration
	httpClient  *http.Client
	limiter     Limiter
	logger      *slog.Logger

	// Injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Pacifica REST client that waits on the given limiter
// before every page request.
func NewClient(cfg ClientConfig, limiter Limiter, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		pageLimit:   cfg.PageLimit,
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		limiter:     limiter,
		logger:      logger.With(slog.String("component", "pacifica")),
		sleep:       sleepCtx,
	}
}

// HistoryFilter carries the optional filters accepted by the positions and
// orders history endpoints.
type HistoryFilter struct {
	Symbol    string
	StartTime *time.Time
	EndTime   *time.Time
}

func (f HistoryFilter) apply(params url.Values) {
	if f.Symbol != "" {
		params.Set("symbol", f.Symbol)
	}
	if f.StartTime != nil {
		params.Set("start_time", strconv.FormatInt(f.StartTime.UnixMilli(), 10))
	}
	if f.EndTime != nil {
		params.Set("end_time", strconv.FormatInt(f.EndTime.UnixMilli(), 10))
	}
}

// ListFillHistory fetches the account's complete position-history fill
// stream, in page arrival order.
func (c *Client) ListFillHistory(ctx context.Context, account string, filter HistoryFilter) ([]domain.Fill, error) {
	params := c.baseParams(account)
	filter.apply(params)

	items, err := c.fetchPages(ctx, "/positions/history", params)
	if err != nil {
		return nil, fmt.Errorf("pacifica: list fill history: %w", err)
	}

	fills := make([]domain.Fill, 0, len(items))
	for _, raw := range items {
		var msg FillMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("pacifica: decode fill: %w", err)
		}
		f, err := msg.ToDomain()
		if err != nil {
			return nil, err
		}
		fills = append(fills, f)
	}
	return fills, nil
}

// ListFundingHistory fetches the account's funding settlement history.
func (c *Client) ListFundingHistory(ctx context.Context, account string) ([]domain.FundingPayment, error) {
	items, err := c.fetchPages(ctx, "/funding/history", c.baseParams(account))
	if err != nil {
		return nil, fmt.Errorf("pacifica: list funding history: %w", err)
	}

	payments := make([]domain.FundingPayment, 0, len(items))
	for _, raw := range items {
		var msg FundingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("pacifica: decode funding payment: %w", err)
		}
		p, err := msg.ToDomain()
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

// GetPortfolio fetches the account's equity series for the given time
// range (e.g. "7d", "30d", "all").
func (c *Client) GetPortfolio(ctx context.Context, account, timeRange string) ([]domain.PortfolioPoint, error) {
	params := c.baseParams(account)
	if timeRange != "" {
		params.Set("time_range", timeRange)
	}

	items, err := c.fetchPages(ctx, "/portfolio", params)
	if err != nil {
		return nil, fmt.Errorf("pacifica: get portfolio: %w", err)
	}

	points := make([]domain.PortfolioPoint, 0, len(items))
	for _, raw := range items {
		var msg PortfolioMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("pacifica: decode portfolio point: %w", err)
		}
		p, err := msg.ToDomain()
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// ListOrderHistory fetches the account's historical orders.
func (c *Client) ListOrderHistory(ctx context.Context, account string, filter HistoryFilter) ([]domain.OrderRecord, error) {
	params := c.baseParams(account)
	filter.apply(params)

	items, err := c.fetchPages(ctx, "/orders/history", params)
	if err != nil {
		return nil, fmt.Errorf("pacifica: list order history: %w", err)
	}

	orders := make([]domain.OrderRecord, 0, len(items))
	for _, raw := range items {
		var msg OrderMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("pacifica: decode order: %w", err)
		}
		o, err := msg.ToDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// ListBalanceHistory fetches the account's balance event history.
func (c *Client) ListBalanceHistory(ctx context.Context, account string) ([]domain.BalanceEvent, error) {
	items, err := c.fetchPages(ctx, "/account/balance/history", c.baseParams(account))
	if err != nil {
		return nil, fmt.Errorf("pacifica: list balance history: %w", err)
	}

	events := make([]domain.BalanceEvent, 0, len(items))
	for _, raw := range items {
		var msg BalanceMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("pacifica: decode balance event: %w", err)
		}
		e, err := msg.ToDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (c *Client) baseParams(account string) url.Values {
	params := url.Values{}
	params.Set("account", account)
	params.Set("limit", strconv.Itoa(c.pageLimit))
	return params
}

// --------------------------------------------------------------------------
// Pagination and retry
// --------------------------------------------------------------------------

// fetchPages drives getPage through the cursor chain: first request
// without a cursor, then with each server-returned cursor, strictly
// sequentially, concatenating the data arrays in page order. The limiter
// is waited on before every page. An absent or empty next_cursor
// terminates the loop; has_more is advisory only.
func (c *Client) fetchPages(ctx context.Context, path string, base url.Values) ([]json.RawMessage, error) {
	var items []json.RawMessage
	cursor := ""
	pages := 0

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		params := url.Values{}
		for k, v := range base {
			params[k] = v
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		env, err := c.getPage(ctx, path, params)
		if err != nil {
			return nil, err
		}
		pages++

		if len(env.Data) > 0 {
			var page []json.RawMessage
			if err := json.Unmarshal(env.Data, &page); err != nil {
				return nil, fmt.Errorf("decode data array: %w", err)
			}
			items = append(items, page...)
		}

		if env.NextCursor == "" {
			c.logger.DebugContext(ctx, "history fetched",
				slog.String("path", path),
				slog.Int("pages", pages),
				slog.Int("items", len(items)),
			)
			return items, nil
		}
		cursor = env.NextCursor
	}
}

// getPage performs one GET with a bounded retry loop. Transient failures
// (429, 5xx, network) are retried with backoff until the attempt ceiling;
// everything else fails immediately. An HTTP 200 whose envelope reports
// success=false is a definitive application error and is never retried.
func (c *Client) getPage(ctx context.Context, path string, params url.Values) (Envelope, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		env, err := c.doGet(ctx, path, params)
		if err == nil {
			return env, nil
		}

		class, delay := classifyFailure(err, attempt, c.retryBase)
		if class == nil {
			return Envelope{}, err
		}
		lastErr = fmt.Errorf("%w: %v", class, err)

		if attempt == c.maxAttempts {
			break
		}

		c.logger.WarnContext(ctx, "transient fetch failure, backing off",
			slog.String("path", path),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return Envelope{}, err
		}
	}

	return Envelope{}, fmt.Errorf("get %s: %d attempts: %w", path, c.maxAttempts, lastErr)
}

// statusError is a transient non-2xx response awaiting classification.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.status, e.body)
}

// networkError wraps a transport-level failure.
type networkError struct {
	err error
}

func (e *networkError) Error() string { return e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

// classifyFailure maps a doGet error to its retry class sentinel and
// backoff delay. A nil class means the error is terminal.
func classifyFailure(err error, attempt int, base time.Duration) (error, time.Duration) {
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.status == http.StatusTooManyRequests:
			return domain.ErrRateLimitExhausted, time.Duration(1<<attempt) * base
		case se.status >= 500:
			return domain.ErrServerUnavailable, time.Duration(attempt) * base
		}
		return nil, 0
	}

	var ne *networkError
	if errors.As(err, &ne) {
		if errors.Is(ne.err, context.Canceled) || errors.Is(ne.err, context.DeadlineExceeded) {
			return nil, 0
		}
		return domain.ErrNetworkFailure, time.Duration(attempt) * base
	}

	return nil, 0
}

// doGet performs exactly one HTTP GET and decodes the envelope.
func (c *Client) doGet(ctx context.Context, path string, params url.Values) (Envelope, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return Envelope{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Envelope{}, &networkError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, &networkError{err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return Envelope{}, &statusError{status: resp.StatusCode, body: truncate(body, 256)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Non-retryable status: surface the server's words verbatim.
		return Envelope{}, &domain.APIError{
			Status:  resp.StatusCode,
			Message: truncate(body, 256),
		}
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Success {
		return Envelope{}, &domain.APIError{
			Status:  resp.StatusCode,
			Code:    env.Code,
			Message: env.Error,
		}
	}
	return env, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
