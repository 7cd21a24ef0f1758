// ws.go implements a reconnect-with-backoff websocket client as a
// single-purpose price feed: one connection, one message shape
// ({"price": "..."}), last-writer-wins slot instead of typed event
// channels.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marketkeeper/keeper/internal/clock"
	"github.com/marketkeeper/keeper/pkg/types"
)

const (
	wsReadTimeout      = 90 * time.Second
	wsPingInterval     = 50 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsMaxReconnectWait = 30 * time.Second
)

type wsMessage struct {
	Price string `json:"price"`
}

// WS maintains a persistent connection to url and stores the last price
// message pushed by the server.
type WS struct {
	url    string
	clk    clock.Clock
	slot   slot
	logger *slog.Logger
}

// NewWS builds a WS feed for url. Call Run (directly, or via StartAll)
// before the first Read to start the background connection.
func NewWS(url string, clk clock.Clock, logger *slog.Logger) *WS {
	return &WS{url: url, clk: clk, logger: logger.With("component", "feed_ws", "url", url)}
}

func (w *WS) Read() types.PriceReading {
	return w.slot.get()
}

// Run connects and maintains the connection with exponential backoff
// reconnection. Blocks until ctx is cancelled.
func (w *WS) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := w.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.logger.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > wsMaxReconnectWait {
			backoff = wsMaxReconnectWait
		}
	}
}

func (w *WS) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	w.logger.Info("websocket connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go w.pingLoop(pingCtx, conn)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		w.dispatch(data)
	}
}

func (w *WS) dispatch(data []byte) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		w.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}
	price, err := decimalFromString(msg.Price)
	if err != nil {
		w.logger.Warn("unparseable price in ws message", "raw", msg.Price, "error", err)
		return
	}
	w.slot.set(types.PriceReading{Price: price, Acquired: w.clk.Now(), Available: true})
}

func (w *WS) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
				w.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}
