// Copyright (c) 2025 BVK Chaitanya

package internal

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bvk/gridbot/ctxutil"
	"github.com/gorilla/websocket"
	"github.com/visvasity/topic"
)

// TickerTopic returns the topic that receives ticker updates for the symbol
// from the market data websocket. The websocket connection is opened on
// first use and is reopened automatically when it fails.
func (c *Client) TickerTopic(symbol string) (*topic.Topic[*TickerUpdate], error) {
	if err := context.Cause(c.lifeCtx); err != nil {
		return nil, err
	}

	tp, loaded := c.tickerMap.LoadOrStore(symbol, topic.New[*TickerUpdate]())
	if loaded {
		return tp, nil
	}

	c.wsOnce.Do(func() {
		c.wg.Add(1)
		go c.goGetMarketData(c.lifeCtx)
	})

	select {
	case <-c.lifeCtx.Done():
		return nil, context.Cause(c.lifeCtx)
	case c.subscribeCh <- symbol:
	}
	return tp, nil
}

func tickerChannel(symbol string) string {
	return fmt.Sprintf("market.%s.ticker", symbol)
}

func symbolFromChannel(ch string) (string, bool) {
	parts := strings.Split(ch, ".")
	if len(parts) != 3 || parts[0] != "market" || parts[2] != "ticker" {
		return "", false
	}
	return parts[1], true
}

func (c *Client) goGetMarketData(ctx context.Context) {
	defer c.wg.Done()

	for i := 0; ctx.Err() == nil; i = min(i+1, 5) {
		if err := c.getMarketData(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("could not get market data over websocket (will retry)", "err", err)
		}
		ctxutil.Sleep(ctx, time.Second<<i)
	}
}

func (c *Client) getMarketData(ctx context.Context) (status error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(os.ErrClosed)

	dialer := websocket.Dialer{
		HandshakeTimeout: c.opts.HTTPClientTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.opts.WebsocketURL, nil)
	if err != nil {
		slog.Error("could not dial to the market data websocket", "url", c.opts.WebsocketURL, "err", err)
		return err
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()

		conn.SetWriteDeadline(time.Now().Add(c.opts.HTTPClientTimeout))
		return conn.WriteJSON(v)
	}

	var wg sync.WaitGroup
	defer func() {
		if status != nil {
			cancel(status)
		} else {
			cancel(os.ErrClosed)
		}
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()

		for ctx.Err() == nil {
			msg, err := c.readMessage(ctx, conn)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("could not read market data message", "err", err)
				}
				cancel(err)
				return
			}
			if msg.Ping != nil {
				if err := write(map[string]int64{"pong": *msg.Ping}); err != nil {
					slog.Error("could not send pong message", "err", err)
					cancel(err)
					return
				}
				continue
			}
			if err := c.handleMessage(msg); err != nil {
				slog.Warn("could not handle market data message (ignored)", "channel", msg.Ch, "err", err)
			}
		}
	}()

	subscribe := func(symbol string) error {
		req := map[string]string{
			"sub": tickerChannel(symbol),
			"id":  symbol,
		}
		if err := write(req); err != nil {
			slog.Error("could not send subscribe request", "symbol", symbol, "err", err)
			return err
		}
		return nil
	}

	// Resubscribe to all known symbols on the new connection.
	for _, symbol := range c.tickerMap.Keys() {
		if err := subscribe(symbol); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case symbol := <-c.subscribeCh:
			if err := subscribe(symbol); err != nil {
				return err
			}
		}
	}
}

func (c *Client) readMessage(ctx context.Context, conn *websocket.Conn) (*websocketMessage, error) {
	conn.SetReadDeadline(time.Now().Add(c.opts.WebsocketPingTimeout))

	stopc := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
		close(stopc)
	})

	_, data, err := conn.ReadMessage()
	if !stop() {
		<-stopc
		return nil, context.Cause(ctx)
	}
	if err != nil {
		return nil, err
	}

	// Market data messages are always gzip compressed.
	if len(data) > 2 && data[0] == 0x1f && data[1] == 0x8b {
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			slog.Error("could not create gzip reader", "err", err)
			return nil, err
		}
		plain, err := io.ReadAll(reader)
		if err != nil {
			slog.Error("could not uncompress with gzip reader", "err", err)
			return nil, err
		}
		data = plain
	}

	msg := new(websocketMessage)
	if err := json.Unmarshal(data, msg); err != nil {
		slog.Error("could not unmarshal market data message", "message", string(data), "err", err)
		return nil, err
	}
	return msg, nil
}

func (c *Client) handleMessage(msg *websocketMessage) error {
	if msg.Status != "" {
		if msg.Status != "ok" {
			return fmt.Errorf("subscribe request %q failed: %s", msg.ID, msg.ErrMsg)
		}
		slog.Info("subscribed to market data channel", "channel", msg.Subbed)
		return nil
	}

	symbol, ok := symbolFromChannel(msg.Ch)
	if !ok {
		return fmt.Errorf("unexpected channel %q: %w", msg.Ch, os.ErrInvalid)
	}
	tp, ok := c.tickerMap.Load(symbol)
	if !ok {
		return fmt.Errorf("no subscriber for symbol %q: %w", symbol, os.ErrNotExist)
	}

	update := new(TickerUpdate)
	if err := json.Unmarshal(msg.Tick, update); err != nil {
		return err
	}
	update.Symbol = symbol
	update.Timestamp = msg.TS
	tp.Send(update)
	return nil
}
