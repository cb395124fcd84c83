package pacifica

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/perptools/perprecap/internal/domain"
)

// DefaultWSURL is the production WebSocket endpoint.
const DefaultWSURL = "wss://ws.pacifica.fi/ws"

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// FillHandler is called for every live fill received on a subscribed
// account stream.
type FillHandler func(domain.Fill)

// wsCommand is the subscribe/unsubscribe frame.
type wsCommand struct {
	Method string   `json:"method"`
	Params wsParams `json:"params"`
}

type wsParams struct {
	Source  string `json:"source"`
	Account string `json:"account"`
}

// wsMessage is the inbound frame envelope.
type wsMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// WSClient streams live account fills over the exchange WebSocket. It
// manages the connection lifecycle, keep-alive, and resubscription after
// reconnect.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscriptions to restore on reconnect.
	subscriptions []wsCommand

	fillHandlers []FillHandler
	handlerMu    sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a WebSocket client for the given endpoint. An empty
// wsURL uses DefaultWSURL.
func NewWSClient(wsURL string) *WSClient {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and
// ping loops.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("pacifica/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("pacifica/ws: connect: %w", err)
	}

	w.conn = conn

	// Set up pong handler for keep-alive.
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	// Restore any previous subscriptions after reconnect.
	for _, cmd := range w.subscriptions {
		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("pacifica/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// SubscribeFills subscribes to the live fill stream for an account.
func (w *WSClient) SubscribeFills(ctx context.Context, account string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("pacifica/ws: not connected")
	}

	cmd := wsCommand{
		Method: "subscribe",
		Params: wsParams{Source: "account_trades", Account: account},
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("pacifica/ws: subscribe fills for %s: %w", account, err)
	}

	// Track subscription for reconnection.
	w.subscriptions = append(w.subscriptions, cmd)
	return nil
}

// UnsubscribeFills drops the live fill stream for an account.
func (w *WSClient) UnsubscribeFills(ctx context.Context, account string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("pacifica/ws: not connected")
	}

	cmd := wsCommand{
		Method: "unsubscribe",
		Params: wsParams{Source: "account_trades", Account: account},
	}
	if err := w.sendCommand(cmd); err != nil {
		return fmt.Errorf("pacifica/ws: unsubscribe fills for %s: %w", account, err)
	}

	filtered := w.subscriptions[:0]
	for _, sub := range w.subscriptions {
		if sub.Params.Account != account {
			filtered = append(filtered, sub)
		}
	}
	w.subscriptions = filtered
	return nil
}

// OnFill registers a handler invoked for every live fill.
func (w *WSClient) OnFill(handler FillHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.fillHandlers = append(w.fillHandlers, handler)
}

// Close shuts down the connection and stops the read and ping loops.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads frames and dispatches fills to the
// registered handlers. On disconnect it reconnects with backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the connection alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage decodes an inbound frame and dispatches account fills.
// Frames on other channels and unparseable payloads are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Channel != "account_trades" {
		return
	}

	// The stream delivers either a single fill or a batch.
	var batch []FillMessage
	if err := json.Unmarshal(msg.Data, &batch); err != nil {
		var single FillMessage
		if err := json.Unmarshal(msg.Data, &single); err != nil {
			return
		}
		batch = []FillMessage{single}
	}

	w.handlerMu.RLock()
	handlers := w.fillHandlers
	w.handlerMu.RUnlock()

	for _, m := range batch {
		f, err := m.ToDomain()
		if err != nil {
			continue
		}
		for _, h := range handlers {
			h(f)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
