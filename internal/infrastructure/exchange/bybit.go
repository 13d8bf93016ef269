package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vitos/turtle_trader/internal/domain"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/linear"

	category      = "linear"
	maxKlinePage  = 1000
	wsPingEvery   = 20 * time.Second
	exchangeBybit = "bybit"
)

type BybitAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client
	logger    *zap.Logger

	mu          sync.Mutex
	wsConn      *websocket.Conn
	wsDone      chan struct{}
	callbacks   []func(tick domain.Tick)
	instruments map[string]*domain.Instrument
}

func NewBybitAdapter(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *BybitAdapter {
	if baseURL == "" {
		baseURL = BybitBaseURL
	}
	if wsURL == "" {
		wsURL = BybitWSURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BybitAdapter{
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		baseURL:     strings.TrimRight(baseURL, "/"),
		wsURL:       wsURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
		instruments: make(map[string]*domain.Instrument),
	}
}

// --- REST API ---

type bybitResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

func (b *BybitAdapter) sign(params string, timestamp int64, recvWindow int) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

// call sends a signed request and decodes the result object into out.
func (b *BybitAdapter) call(ctx context.Context, method, path string, query url.Values, payload map[string]interface{}, out interface{}) error {
	timestamp := time.Now().UnixMilli()
	recvWindow := 5000

	var body []byte
	var paramsStr string
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "marshal payload")
		}
		body = jsonBody
		paramsStr = string(jsonBody)
	} else if len(query) > 0 {
		paramsStr = query.Encode()
		path += "?" + paramsStr
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}

	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-SIGN", b.sign(paramsStr, timestamp, recvWindow))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= 400 {
		return errors.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope bybitResponse
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return errors.Wrap(err, "decode response")
	}
	if envelope.RetCode != 0 {
		return errors.Errorf("bybit error %d: %s", envelope.RetCode, envelope.RetMsg)
	}
	if out == nil || len(envelope.Result) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(envelope.Result, out), "decode result")
}

func (b *BybitAdapter) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var result struct {
		List []struct {
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	q := url.Values{"category": {category}, "symbol": {symbol}}
	if err := b.call(ctx, http.MethodGet, "/v5/market/tickers", q, nil, &result); err != nil {
		return 0, err
	}
	if len(result.List) == 0 {
		return 0, errors.Wrap(domain.ErrUnknownSymbol, symbol)
	}
	return strconv.ParseFloat(result.List[0].LastPrice, 64)
}

// GetCandles returns up to limit bars, oldest first. The newest bar may still be forming.
func (b *BybitAdapter) GetCandles(ctx context.Context, symbol string, interval domain.Interval, limit int) ([]domain.Candle, error) {
	var collected []domain.Candle // newest first, as returned by the API
	var end int64

	for len(collected) < limit {
		page := limit - len(collected)
		if page > maxKlinePage {
			page = maxKlinePage
		}
		q := url.Values{
			"category": {category},
			"symbol":   {symbol},
			"interval": {string(interval)},
			"limit":    {strconv.Itoa(page)},
		}
		if end > 0 {
			q.Set("end", strconv.FormatInt(end, 10))
		}

		var result struct {
			List [][]string `json:"list"`
		}
		if err := b.call(ctx, http.MethodGet, "/v5/market/kline", q, nil, &result); err != nil {
			return nil, errors.Wrapf(err, "klines %s", symbol)
		}

		added := 0
		for _, raw := range result.List {
			// [startTime, open, high, low, close, volume, turnover]
			if len(raw) < 6 {
				continue
			}
			c := domain.Candle{Interval: interval}
			c.Time, _ = strconv.ParseInt(raw[0], 10, 64)
			c.Open, _ = strconv.ParseFloat(raw[1], 64)
			c.High, _ = strconv.ParseFloat(raw[2], 64)
			c.Low, _ = strconv.ParseFloat(raw[3], 64)
			c.Close, _ = strconv.ParseFloat(raw[4], 64)
			c.Volume, _ = strconv.ParseFloat(raw[5], 64)
			if end > 0 && c.Time > end {
				continue
			}
			collected = append(collected, c)
			added++
		}
		if added == 0 || len(result.List) < page {
			break
		}
		end = collected[len(collected)-1].Time - 1
	}

	// Reverse candles to be chronological (Oldest -> Newest)
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

type instrumentInfo struct {
	Symbol       string `json:"symbol"`
	BaseCoin     string `json:"baseCoin"`
	QuoteCoin    string `json:"quoteCoin"`
	Status       string `json:"status"`
	ContractType string `json:"contractType"`
	PriceFilter  struct {
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
	LotSizeFilter struct {
		QtyStep     string `json:"qtyStep"`
		MinOrderQty string `json:"minOrderQty"`
	} `json:"lotSizeFilter"`
}

func (i instrumentInfo) toDomain() domain.Instrument {
	tick, _ := strconv.ParseFloat(i.PriceFilter.TickSize, 64)
	step, _ := strconv.ParseFloat(i.LotSizeFilter.QtyStep, 64)
	minQty, _ := strconv.ParseFloat(i.LotSizeFilter.MinOrderQty, 64)
	return domain.Instrument{
		Symbol:    i.Symbol,
		BaseCoin:  i.BaseCoin,
		QuoteCoin: i.QuoteCoin,
		Status:    i.Status,
		// linear contracts are quoted per one unit of the base coin
		ContractMultiplier: 1,
		TickSize:           tick,
		QtyStep:            step,
		MinQty:             minQty,
	}
}

// GetInstrument returns contract metadata for one symbol. Results are cached.
func (b *BybitAdapter) GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	b.mu.Lock()
	cached, ok := b.instruments[symbol]
	b.mu.Unlock()
	if ok {
		return cached, nil
	}

	var result struct {
		List []instrumentInfo `json:"list"`
	}
	q := url.Values{"category": {category}, "symbol": {symbol}}
	if err := b.call(ctx, http.MethodGet, "/v5/market/instruments-info", q, nil, &result); err != nil {
		return nil, errors.Wrapf(err, "instrument %s", symbol)
	}
	if len(result.List) == 0 {
		return nil, errors.Wrap(domain.ErrUnknownSymbol, symbol)
	}

	inst := result.List[0].toDomain()
	b.mu.Lock()
	b.instruments[symbol] = &inst
	b.mu.Unlock()
	return &inst, nil
}

func (b *BybitAdapter) GetInstruments(ctx context.Context) ([]domain.Instrument, error) {
	var result struct {
		List []instrumentInfo `json:"list"`
	}
	q := url.Values{"category": {category}}
	if err := b.call(ctx, http.MethodGet, "/v5/market/instruments-info", q, nil, &result); err != nil {
		return nil, err
	}
	instruments := make([]domain.Instrument, 0, len(result.List))
	for _, item := range result.List {
		instruments = append(instruments, item.toDomain())
	}
	return instruments, nil
}

// PlaceOrder sends an immediate-or-cancel limit order. Closing intents are reduce-only.
func (b *BybitAdapter) PlaceOrder(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	inst, err := b.GetInstrument(ctx, order.Symbol)
	if err != nil {
		return nil, err
	}

	price := RoundToStep(order.Price, inst.TickSize)
	qty := FloorToStep(order.Size, inst.QtyStep)
	if qty.LessThanOrEqual(decimal.Zero) || (inst.MinQty > 0 && qty.LessThan(decimal.NewFromFloat(inst.MinQty))) {
		return nil, errors.Errorf("order qty %v below minimum %v for %s", order.Size, inst.MinQty, order.Symbol)
	}

	side := "Sell"
	if order.Intent.IsBuy() {
		side = "Buy"
	}
	payload := map[string]interface{}{
		"category":    category,
		"symbol":      order.Symbol,
		"side":        side,
		"orderType":   "Limit",
		"qty":         qty.String(),
		"price":       price.String(),
		"timeInForce": "IOC",
		"orderLinkId": order.ClientID,
	}
	if order.Intent.Offset() == domain.OffsetClose {
		payload["reduceOnly"] = true
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := b.call(ctx, http.MethodPost, "/v5/order/create", nil, payload, &result); err != nil {
		return nil, errors.Wrapf(err, "place %s %s", order.Intent, order.Symbol)
	}

	placed := *order
	placed.ID = result.OrderID
	placed.Exchange = exchangeBybit
	placed.Price, _ = price.Float64()
	placed.Size, _ = qty.Float64()
	placed.Status = domain.OrderStatusNew
	b.logger.Info("Order placed",
		zap.String("order_id", placed.ID),
		zap.String("symbol", placed.Symbol),
		zap.String("side", side),
		zap.String("price", price.String()),
		zap.String("qty", qty.String()),
	)
	return &placed, nil
}

type orderInfo struct {
	OrderID      string `json:"orderId"`
	OrderLinkID  string `json:"orderLinkId"`
	Symbol       string `json:"symbol"`
	Price        string `json:"price"`
	Qty          string `json:"qty"`
	OrderStatus  string `json:"orderStatus"`
	CumExecQty   string `json:"cumExecQty"`
	AvgPrice     string `json:"avgPrice"`
	RejectReason string `json:"rejectReason"`
}

// GetOrder looks the order up among open orders first and falls back to history.
func (b *BybitAdapter) GetOrder(ctx context.Context, symbol, orderID string) (*domain.Order, error) {
	q := url.Values{"category": {category}, "symbol": {symbol}, "orderId": {orderID}}
	for _, path := range []string{"/v5/order/realtime", "/v5/order/history"} {
		var result struct {
			List []orderInfo `json:"list"`
		}
		if err := b.call(ctx, http.MethodGet, path, q, nil, &result); err != nil {
			return nil, errors.Wrapf(err, "order %s", orderID)
		}
		if len(result.List) == 0 {
			continue
		}
		info := result.List[0]
		o := &domain.Order{
			ID:        info.OrderID,
			ClientID:  info.OrderLinkID,
			Exchange:  exchangeBybit,
			Symbol:    info.Symbol,
			Status:    mapOrderStatus(info.OrderStatus),
			UpdatedAt: time.Now(),
		}
		o.Price, _ = strconv.ParseFloat(info.Price, 64)
		o.Size, _ = strconv.ParseFloat(info.Qty, 64)
		o.FilledSize, _ = strconv.ParseFloat(info.CumExecQty, 64)
		o.AvgFillPrice, _ = strconv.ParseFloat(info.AvgPrice, 64)
		if info.RejectReason != "" && info.RejectReason != "EC_NoError" {
			o.Reason = info.RejectReason
		}
		return o, nil
	}
	return nil, errors.Wrap(domain.ErrOrderNotFound, orderID)
}

func (b *BybitAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	payload := map[string]interface{}{
		"category": category,
		"symbol":   symbol,
		"orderId":  orderID,
	}
	return errors.Wrapf(b.call(ctx, http.MethodPost, "/v5/order/cancel", nil, payload, nil), "cancel %s", orderID)
}

func mapOrderStatus(s string) domain.OrderStatus {
	switch s {
	case "PartiallyFilled":
		return domain.OrderStatusPartiallyFilled
	case "Filled":
		return domain.OrderStatusFilled
	case "Cancelled", "PartiallyFilledCanceled", "Deactivated":
		return domain.OrderStatusCancelled
	case "Rejected":
		return domain.OrderStatusRejected
	}
	return domain.OrderStatusNew
}

// RoundToStep rounds v to the nearest multiple of step. A zero step leaves v unchanged.
func RoundToStep(v, step float64) decimal.Decimal {
	d := decimal.NewFromFloat(v)
	if step <= 0 {
		return d
	}
	s := decimal.NewFromFloat(step)
	return d.Div(s).Round(0).Mul(s)
}

// FloorToStep rounds v down to a multiple of step.
func FloorToStep(v, step float64) decimal.Decimal {
	d := decimal.NewFromFloat(v)
	if step <= 0 {
		return d
	}
	s := decimal.NewFromFloat(step)
	return d.Div(s).Floor().Mul(s)
}

// --- WebSocket ---

func (b *BybitAdapter) OnPriceUpdate(callback func(tick domain.Tick)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

func (b *BybitAdapter) ConnectWS(symbols []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wsConn != nil {
		// Already connected, just subscribe
		return b.subscribe(symbols)
	}

	c, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return errors.Wrap(err, "dial websocket")
	}
	b.wsConn = c
	b.wsDone = make(chan struct{})

	go b.readLoop(c, b.wsDone)
	go b.pingLoop(c, b.wsDone)

	return b.subscribe(symbols)
}

func (b *BybitAdapter) Subscribe(symbols []string) error {
	return b.ConnectWS(symbols)
}

// Done is closed when the current websocket connection drops.
func (b *BybitAdapter) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wsDone
}

func (b *BybitAdapter) Close() error {
	b.mu.Lock()
	conn := b.wsConn
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (b *BybitAdapter) subscribe(symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	args := make([]string, len(symbols))
	for i, s := range symbols {
		args[i] = "tickers." + s
	}
	subMsg := map[string]interface{}{
		"op":   "subscribe",
		"args": args,
	}
	return errors.Wrap(b.wsConn.WriteJSON(subMsg), "subscribe")
}

func (b *BybitAdapter) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.mu.Lock()
			err := conn.WriteJSON(map[string]string{"op": "ping"})
			b.mu.Unlock()
			if err != nil {
				b.logger.Warn("WS ping failed", zap.Error(err))
				return
			}
		}
	}
}

type tickerEvent struct {
	Topic string `json:"topic"`
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
}

func (b *BybitAdapter) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		conn.Close()
		b.mu.Lock()
		if b.wsConn == conn {
			b.wsConn = nil
		}
		b.mu.Unlock()
		close(done)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			b.logger.Warn("WS read error", zap.Error(err))
			return
		}
		if tick, ok := parseTicker(message); ok {
			b.dispatch(tick)
		}
	}
}

// parseTicker extracts a tick from a tickers.* message. Delta messages without a
// last price are skipped.
func parseTicker(message []byte) (domain.Tick, bool) {
	var event tickerEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return domain.Tick{}, false
	}
	if !strings.HasPrefix(event.Topic, "tickers.") || event.Data.LastPrice == "" {
		return domain.Tick{}, false
	}
	price, err := strconv.ParseFloat(event.Data.LastPrice, 64)
	if err != nil || price <= 0 {
		return domain.Tick{}, false
	}
	symbol := event.Data.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(event.Topic, "tickers.")
	}
	return domain.Tick{Symbol: symbol, Price: price, Time: event.Ts}, true
}

func (b *BybitAdapter) dispatch(tick domain.Tick) {
	b.mu.Lock()
	callbacks := make([]func(domain.Tick), len(b.callbacks))
	copy(callbacks, b.callbacks)
	b.mu.Unlock()

	for _, cb := range callbacks {
		cb(tick)
	}
}
