package pacifica

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/perptools/perprecap/internal/domain"
)

type stubLimiter struct {
	waits int
}

func (s *stubLimiter) Wait(ctx context.Context) error {
	s.waits++
	return nil
}

func newTestClient(t *testing.T, baseURL string) (*Client, *stubLimiter, *[]time.Duration) {
	t.Helper()
	lim := &stubLimiter{}
	c := NewClient(ClientConfig{
		BaseURL:     baseURL,
		PageLimit:   2,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
	}, lim, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sleeps := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return c, lim, sleeps
}

func envelopePage(data, cursor string) string {
	if cursor == "" {
		return fmt.Sprintf(`{"success":true,"data":%s,"has_more":false}`, data)
	}
	return fmt.Sprintf(`{"success":true,"data":%s,"next_cursor":%q,"has_more":true}`, data, cursor)
}

func TestRetryOn429ThenSuccess(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, envelopePage(`[{"history_id":1,"symbol":"BTC","amount":"1","price":"100","side":"open_long","created_at":1000}]`, ""))
	}))
	defer srv.Close()

	c, _, sleeps := newTestClient(t, srv.URL)

	fills, err := c.ListFillHistory(context.Background(), "0xabc", HistoryFilter{})
	if err != nil {
		t.Fatalf("ListFillHistory: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want exactly 3", attempts)
	}
	if len(fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(fills))
	}
	// Exponential backoff on 429: 2^1 and 2^2 times the base.
	want := []time.Duration{2 * time.Millisecond, 4 * time.Millisecond}
	if len(*sleeps) != len(want) {
		t.Fatalf("backoff waits = %d (%v), want %d", len(*sleeps), *sleeps, len(want))
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("backoff %d = %v, want %v", i, (*sleeps)[i], want[i])
		}
	}
}

func TestRateLimitRetriesExhausted(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	_, err := c.ListFillHistory(context.Background(), "0xabc", HistoryFilter{})
	if !errors.Is(err, domain.ErrRateLimitExhausted) {
		t.Fatalf("err = %v, want ErrRateLimitExhausted", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 and no fourth attempt", attempts)
	}
}

func TestServerErrorsRetriedLinearly(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, envelopePage(`[]`, ""))
	}))
	defer srv.Close()

	c, _, sleeps := newTestClient(t, srv.URL)

	if _, err := c.ListBalanceHistory(context.Background(), "0xabc"); err != nil {
		t.Fatalf("ListBalanceHistory: %v", err)
	}
	want := []time.Duration{1 * time.Millisecond, 2 * time.Millisecond}
	if len(*sleeps) != 2 || (*sleeps)[0] != want[0] || (*sleeps)[1] != want[1] {
		t.Fatalf("backoff waits = %v, want %v (linear)", *sleeps, want)
	}
}

func TestServerUnavailableExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	_, err := c.ListFundingHistory(context.Background(), "0xabc")
	if !errors.Is(err, domain.ErrServerUnavailable) {
		t.Fatalf("err = %v, want ErrServerUnavailable", err)
	}
}

func TestSuccessFalseFailsFastWithoutRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		fmt.Fprint(w, `{"success":false,"data":[],"error":"account not found","code":404}`)
	}))
	defer srv.Close()

	c, _, sleeps := newTestClient(t, srv.URL)

	_, err := c.ListFillHistory(context.Background(), "0xmissing", HistoryFilter{})
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *domain.APIError", err)
	}
	if apiErr.Code != 404 || apiErr.Message != "account not found" {
		t.Errorf("APIError = %+v, want server-provided code and message", apiErr)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (application rejection is never retried)", attempts)
	}
	if len(*sleeps) != 0 {
		t.Errorf("backoff waits = %v, want none", *sleeps)
	}
}

func TestClientErrorFailsImmediately(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, "missing account parameter")
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	_, err := c.ListOrderHistory(context.Background(), "", HistoryFilter{})
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *domain.APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", apiErr.Status)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestNetworkFailureClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	c, _, _ := newTestClient(t, srv.URL)

	_, err := c.ListFillHistory(context.Background(), "0xabc", HistoryFilter{})
	if !errors.Is(err, domain.ErrNetworkFailure) {
		t.Fatalf("err = %v, want ErrNetworkFailure", err)
	}
}

func TestPagerFollowsCursorsAndTerminates(t *testing.T) {
	pages := map[string]string{
		"":   envelopePage(`[{"history_id":1,"symbol":"BTC","amount":"1","price":"100","side":"open_long","created_at":1000}]`, "c1"),
		"c1": envelopePage(`[{"history_id":2,"symbol":"BTC","amount":"1","price":"101","side":"open_long","created_at":2000}]`, "c2"),
		"c2": envelopePage(`[{"history_id":3,"symbol":"BTC","amount":"2","price":"102","side":"close_long","created_at":3000}]`, ""),
	}

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if got := r.URL.Query().Get("account"); got != "0xabc" {
			t.Errorf("account param = %q, want 0xabc", got)
		}
		page, ok := pages[r.URL.Query().Get("cursor")]
		if !ok {
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	c, lim, _ := newTestClient(t, srv.URL)

	fills, err := c.ListFillHistory(context.Background(), "0xabc", HistoryFilter{})
	if err != nil {
		t.Fatalf("ListFillHistory: %v", err)
	}
	if requests != 3 {
		t.Errorf("requests = %d, want 3 (no request after empty cursor)", requests)
	}
	if lim.waits != 3 {
		t.Errorf("limiter waits = %d, want one per page", lim.waits)
	}
	if len(fills) != 3 {
		t.Fatalf("fills = %d, want concatenation of all pages", len(fills))
	}
	for i, want := range []int64{1, 2, 3} {
		if fills[i].HistoryID != want {
			t.Errorf("fills[%d].HistoryID = %d, want %d (page order preserved)", i, fills[i].HistoryID, want)
		}
	}
}

func TestHistoryFilterParams(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		got = map[string]string{
			"symbol":     q.Get("symbol"),
			"start_time": q.Get("start_time"),
			"end_time":   q.Get("end_time"),
			"limit":      q.Get("limit"),
		}
		fmt.Fprint(w, envelopePage(`[]`, ""))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	start := time.UnixMilli(1_000)
	end := time.UnixMilli(2_000)
	_, err := c.ListFillHistory(context.Background(), "0xabc", HistoryFilter{
		Symbol:    "ETH",
		StartTime: &start,
		EndTime:   &end,
	})
	if err != nil {
		t.Fatalf("ListFillHistory: %v", err)
	}
	if got["symbol"] != "ETH" || got["start_time"] != "1000" || got["end_time"] != "2000" {
		t.Errorf("filter params = %v", got)
	}
	if got["limit"] != "2" {
		t.Errorf("limit = %q, want configured page limit 2", got["limit"])
	}
}

func TestFillMessageDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelopePage(`[{
			"history_id": 42,
			"order_id": 7,
			"symbol": "BTC",
			"amount": "0.12345678",
			"price": "64250.123456",
			"entry_price": "64000.5",
			"fee": "0.00001234",
			"pnl": "-1.25",
			"event_type": "fulfill_taker",
			"side": "close_long",
			"created_at": 1700000000000,
			"cause": "market_order"
		}]`, ""))
	}))
	defer srv.Close()

	c, _, _ := newTestClient(t, srv.URL)

	fills, err := c.ListFillHistory(context.Background(), "0xabc", HistoryFilter{})
	if err != nil {
		t.Fatalf("ListFillHistory: %v", err)
	}
	f := fills[0]
	if f.OrderID != "7" {
		t.Errorf("OrderID = %q, want \"7\"", f.OrderID)
	}
	if f.Amount.String() != "0.12345678" {
		t.Errorf("Amount = %s, want lossless 0.12345678", f.Amount)
	}
	if f.EntryPrice == nil || f.EntryPrice.String() != "64000.5" {
		t.Errorf("EntryPrice = %v, want 64000.5", f.EntryPrice)
	}
	if f.PnL == nil || f.PnL.String() != "-1.25" {
		t.Errorf("PnL = %v, want -1.25", f.PnL)
	}
	if f.Cause != "market_order" {
		t.Errorf("Cause = %q, want market_order", f.Cause)
	}
	if !f.CreatedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("CreatedAt = %v", f.CreatedAt)
	}
}
