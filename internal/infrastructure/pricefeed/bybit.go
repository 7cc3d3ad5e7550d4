package pricefeed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/linear"
)

// BybitSource serves reference prices from Bybit's public V5 market API: REST
// tickers for one-shot reads and the public trade stream for live updates.
// The simulator only consumes public market data, so no API key is involved.
type BybitSource struct {
	baseURL string
	wsURL   string
	client  *http.Client
	logger  *zap.Logger

	mu        sync.Mutex
	wsConn    *websocket.Conn
	callbacks []func(symbol string, price decimal.Decimal)
}

func NewBybitSource(baseURL, wsURL string, logger *zap.Logger) *BybitSource {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	if wsURL == "" {
		wsURL = BybitWSURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BybitSource{
		baseURL: baseURL,
		wsURL:   wsURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// CurrentPrice fetches the last traded price for symbol over REST.
func (b *BybitSource) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	path := "/v5/market/tickers?category=linear&symbol=" + symbol

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "build ticker request")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "fetch ticker")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "read ticker response")
	}
	if resp.StatusCode >= 400 {
		return decimal.Zero, errors.Errorf("ticker request failed: %s: %s", resp.Status, string(body))
	}

	var result struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []struct {
				LastPrice string `json:"lastPrice"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, errors.Wrap(err, "decode ticker response")
	}
	if result.RetCode != 0 {
		return decimal.Zero, errors.Errorf("bybit ticker error %d: %s", result.RetCode, result.RetMsg)
	}
	if len(result.Result.List) == 0 {
		return decimal.Zero, errors.Errorf("symbol %s not found", symbol)
	}

	price, err := decimal.NewFromString(result.Result.List[0].LastPrice)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse last price %q", result.Result.List[0].LastPrice)
	}
	return price, nil
}

// OnPriceUpdate registers a callback for every traded price observed on the
// stream. Callbacks run on the read loop goroutine.
func (b *BybitSource) OnPriceUpdate(callback func(symbol string, price decimal.Decimal)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

// Subscribe connects the websocket if needed and subscribes to the public
// trade stream of each symbol.
func (b *BybitSource) Subscribe(symbols []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wsConn == nil {
		c, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
		if err != nil {
			return errors.Wrap(err, "dial websocket")
		}
		b.wsConn = c
		go b.readLoop(c)
	}

	return b.subscribe(symbols)
}

// Close tears down the websocket connection if one is open.
func (b *BybitSource) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wsConn == nil {
		return nil
	}
	err := b.wsConn.Close()
	b.wsConn = nil
	return err
}

func (b *BybitSource) subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	args := make([]interface{}, len(symbols))
	for i, s := range symbols {
		args[i] = "publicTrade." + s
	}

	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
	if err := b.wsConn.WriteJSON(subMsg); err != nil {
		return errors.Wrap(err, "subscribe")
	}
	return nil
}

func (b *BybitSource) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		b.mu.Lock()
		if b.wsConn == conn {
			b.wsConn = nil
		}
		b.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			// The poller keeps prices flowing over REST until the next
			// Subscribe call redials.
			b.logger.Warn("websocket read failed", zap.Error(err))
			return
		}

		var event map[string]interface{}
		if err := json.Unmarshal(message, &event); err != nil {
			b.logger.Warn("websocket message malformed", zap.Error(err))
			continue
		}

		topic, ok := event["topic"].(string)
		if !ok || !strings.HasPrefix(topic, "publicTrade.") {
			continue
		}
		symbol := strings.TrimPrefix(topic, "publicTrade.")

		data, ok := event["data"].([]interface{})
		if !ok {
			continue
		}

		for _, item := range data {
			trade, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			priceStr, ok := trade["p"].(string)
			if !ok {
				continue
			}
			price, err := decimal.NewFromString(priceStr)
			if err != nil {
				continue
			}

			b.mu.Lock()
			callbacks := make([]func(string, decimal.Decimal), len(b.callbacks))
			copy(callbacks, b.callbacks)
			b.mu.Unlock()

			for _, cb := range callbacks {
				cb(symbol, price)
			}
		}
	}
}
