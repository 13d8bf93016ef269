package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vitos/turtle_trader/internal/domain"
)

type gatewayCall struct {
	ID     string
	Intent domain.OrderIntent
	Symbol string
	Price  float64
	Qty    float64
}

// fakeGateway records order requests and hands out sequential ids.
type fakeGateway struct {
	mu    sync.Mutex
	calls []gatewayCall
	err   error
}

func (g *fakeGateway) request(intent domain.OrderIntent, symbol string, price, qty float64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	id := fmt.Sprintf("ord-%d", len(g.calls)+1)
	g.calls = append(g.calls, gatewayCall{ID: id, Intent: intent, Symbol: symbol, Price: price, Qty: qty})
	return id, nil
}

func (g *fakeGateway) RequestOpenLong(ctx context.Context, symbol string, price, qty float64) (string, error) {
	return g.request(domain.IntentOpenLong, symbol, price, qty)
}

func (g *fakeGateway) RequestOpenShort(ctx context.Context, symbol string, price, qty float64) (string, error) {
	return g.request(domain.IntentOpenShort, symbol, price, qty)
}

func (g *fakeGateway) RequestCloseLong(ctx context.Context, symbol string, price, qty float64) (string, error) {
	return g.request(domain.IntentCloseLong, symbol, price, qty)
}

func (g *fakeGateway) RequestCloseShort(ctx context.Context, symbol string, price, qty float64) (string, error) {
	return g.request(domain.IntentCloseShort, symbol, price, qty)
}

func (g *fakeGateway) Calls() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gatewayCall, len(g.calls))
	copy(out, g.calls)
	return out
}

func (g *fakeGateway) Last() gatewayCall {
	calls := g.Calls()
	if len(calls) == 0 {
		return gatewayCall{}
	}
	return calls[len(calls)-1]
}

var errGatewayDown = errors.New("gateway down")

const hourMs = int64(3600 * 1000)

// rangeBars builds n hourly bars oscillating between low and high around mid,
// each closing at mid, so every true range equals high-low.
func rangeBars(n int, low, mid, high float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			Time:     int64(i+1) * hourMs,
			Open:     mid,
			High:     high,
			Low:      low,
			Close:    mid,
			Volume:   1,
			Interval: domain.Interval1h,
		}
	}
	return out
}

func almostEqual(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
