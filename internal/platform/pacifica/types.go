package pacifica

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/perptools/perprecap/internal/domain"
)

// Envelope is the common response wrapper on every endpoint. Data stays raw
// until the per-endpoint decoder picks its element type.
type Envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	NextCursor string          `json:"next_cursor"`
	HasMore    bool            `json:"has_more"`
	Error      string          `json:"error"`
	Code       int             `json:"code"`
}

// FillMessage is one element of the positions/history data array. Monetary
// fields arrive as decimal strings and are parsed losslessly.
type FillMessage struct {
	HistoryID  int64   `json:"history_id"`
	OrderID    *int64  `json:"order_id"`
	Symbol     string  `json:"symbol"`
	Amount     string  `json:"amount"`
	Price      string  `json:"price"`
	EntryPrice *string `json:"entry_price"`
	Fee        *string `json:"fee"`
	PnL        *string `json:"pnl"`
	EventType  string  `json:"event_type"`
	Side       string  `json:"side"`
	CreatedAt  int64   `json:"created_at"` // epoch milliseconds
	Cause      *string `json:"cause"`
}

// ToDomain converts the wire fill into the domain record.
func (m FillMessage) ToDomain() (domain.Fill, error) {
	amount, err := parseDecimal(m.Amount, "amount")
	if err != nil {
		return domain.Fill{}, err
	}
	price, err := parseDecimal(m.Price, "price")
	if err != nil {
		return domain.Fill{}, err
	}
	entryPrice, err := parseOptDecimal(m.EntryPrice, "entry_price")
	if err != nil {
		return domain.Fill{}, err
	}
	fee, err := parseOptDecimalOrZero(m.Fee, "fee")
	if err != nil {
		return domain.Fill{}, err
	}
	pnl, err := parseOptDecimal(m.PnL, "pnl")
	if err != nil {
		return domain.Fill{}, err
	}

	f := domain.Fill{
		HistoryID:  m.HistoryID,
		Symbol:     m.Symbol,
		Side:       m.Side,
		Amount:     amount,
		Price:      price,
		EntryPrice: entryPrice,
		Fee:        fee,
		PnL:        pnl,
		EventType:  m.EventType,
		CreatedAt:  time.UnixMilli(m.CreatedAt).UTC(),
	}
	if m.OrderID != nil {
		f.OrderID = strconv.FormatInt(*m.OrderID, 10)
	}
	if m.Cause != nil {
		f.Cause = *m.Cause
	}
	return f, nil
}

// FundingMessage is one element of the funding/history data array.
type FundingMessage struct {
	HistoryID int64  `json:"history_id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Payout    string `json:"payout"`
	Rate      string `json:"rate"`
	CreatedAt int64  `json:"created_at"`
}

func (m FundingMessage) ToDomain() (domain.FundingPayment, error) {
	payout, err := parseDecimal(m.Payout, "payout")
	if err != nil {
		return domain.FundingPayment{}, err
	}
	rate, err := parseDecimal(m.Rate, "rate")
	if err != nil {
		return domain.FundingPayment{}, err
	}
	return domain.FundingPayment{
		HistoryID: m.HistoryID,
		Symbol:    m.Symbol,
		Side:      m.Side,
		Payout:    payout,
		Rate:      rate,
		CreatedAt: time.UnixMilli(m.CreatedAt).UTC(),
	}, nil
}

// OrderMessage is one element of the orders/history data array.
type OrderMessage struct {
	OrderID       int64   `json:"order_id"`
	ClientOrderID *string `json:"client_order_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	OrderType     string  `json:"order_type"`
	OrderStatus   string  `json:"order_status"`
	InitialPrice  string  `json:"initial_price"`
	AveragePrice  *string `json:"average_filled_price"`
	Amount        string  `json:"amount"`
	FilledAmount  *string `json:"filled_amount"`
	Fee           *string `json:"fee"`
	CreatedAt     int64   `json:"created_at"`
	UpdatedAt     int64   `json:"updated_at"`
}

func (m OrderMessage) ToDomain() (domain.OrderRecord, error) {
	initial, err := parseDecimal(m.InitialPrice, "initial_price")
	if err != nil {
		return domain.OrderRecord{}, err
	}
	avg, err := parseOptDecimalOrZero(m.AveragePrice, "average_filled_price")
	if err != nil {
		return domain.OrderRecord{}, err
	}
	amount, err := parseDecimal(m.Amount, "amount")
	if err != nil {
		return domain.OrderRecord{}, err
	}
	filled, err := parseOptDecimalOrZero(m.FilledAmount, "filled_amount")
	if err != nil {
		return domain.OrderRecord{}, err
	}
	fee, err := parseOptDecimalOrZero(m.Fee, "fee")
	if err != nil {
		return domain.OrderRecord{}, err
	}

	r := domain.OrderRecord{
		OrderID:      m.OrderID,
		Symbol:       m.Symbol,
		Side:         m.Side,
		OrderType:    m.OrderType,
		Status:       m.OrderStatus,
		InitialPrice: initial,
		AveragePrice: avg,
		Amount:       amount,
		FilledAmount: filled,
		Fee:          fee,
		CreatedAt:    time.UnixMilli(m.CreatedAt).UTC(),
		UpdatedAt:    time.UnixMilli(m.UpdatedAt).UTC(),
	}
	if m.ClientOrderID != nil {
		r.ClientOrderID = *m.ClientOrderID
	}
	return r, nil
}

// BalanceMessage is one element of the account/balance/history data array.
type BalanceMessage struct {
	Balance   string `json:"balance"`
	EventType string `json:"event_type"`
	CreatedAt int64  `json:"created_at"`
}

func (m BalanceMessage) ToDomain() (domain.BalanceEvent, error) {
	balance, err := parseDecimal(m.Balance, "balance")
	if err != nil {
		return domain.BalanceEvent{}, err
	}
	return domain.BalanceEvent{
		Balance:   balance,
		EventType: m.EventType,
		CreatedAt: time.UnixMilli(m.CreatedAt).UTC(),
	}, nil
}

// PortfolioMessage is one element of the portfolio data array.
type PortfolioMessage struct {
	AccountEquity string `json:"account_equity"`
	Timestamp     int64  `json:"timestamp"`
}

func (m PortfolioMessage) ToDomain() (domain.PortfolioPoint, error) {
	equity, err := parseDecimal(m.AccountEquity, "account_equity")
	if err != nil {
		return domain.PortfolioPoint{}, err
	}
	return domain.PortfolioPoint{
		Equity:    equity,
		Timestamp: time.UnixMilli(m.Timestamp).UTC(),
	}, nil
}

// --------------------------------------------------------------------------
// Decimal string parsing
// --------------------------------------------------------------------------

func parseDecimal(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("pacifica: parse %s %q: %w", field, s, err)
	}
	return d, nil
}

func parseOptDecimal(s *string, field string) (*decimal.Decimal, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	d, err := parseDecimal(*s, field)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseOptDecimalOrZero(s *string, field string) (decimal.Decimal, error) {
	if s == nil {
		return decimal.Zero, nil
	}
	return parseDecimal(*s, field)
}
