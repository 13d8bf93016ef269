package usecase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitos/turtle_trader/internal/domain"
	"github.com/vitos/turtle_trader/internal/usecase"
)

func ledgerFill(id string, intent domain.OrderIntent, price, size float64) domain.Fill {
	return domain.Fill{OrderID: id, Symbol: "BTCUSDT", Intent: intent, Price: price, Size: size, Time: time.Unix(0, 0)}
}

func TestTradeLedger_LongWithAddOn(t *testing.T) {
	l := usecase.NewTradeLedger("paper", "BTCUSDT", 2)

	_, closed := l.Apply(ledgerFill("o1", domain.IntentOpenLong, 100, 1))
	assert.False(t, closed)
	_, closed = l.Apply(ledgerFill("o1", domain.IntentOpenLong, 102, 1))
	assert.False(t, closed)
	_, closed = l.Apply(ledgerFill("o2", domain.IntentOpenLong, 110, 2))
	assert.False(t, closed)

	// (100 + 102 + 220) / 4
	assert.InDelta(t, 105.5, l.AvgEntry(), 1e-9)
	assert.InDelta(t, (115-105.5)*4*2, l.Unrealized(115), 1e-9)

	_, closed = l.Apply(ledgerFill("o3", domain.IntentCloseLong, 120, 1))
	assert.False(t, closed, "partial close keeps the round trip open")

	h, closed := l.Apply(ledgerFill("o3", domain.IntentCloseLong, 116, 3))
	require.True(t, closed)
	assert.Equal(t, domain.SideLong, h.Side)
	assert.Equal(t, 4.0, h.Size)
	assert.InDelta(t, 105.5, h.EntryPrice, 1e-9)
	assert.InDelta(t, 117.0, h.ExitPrice, 1e-9)
	assert.InDelta(t, (117-105.5)*4*2, h.RealizedPnL, 1e-9)
	assert.Equal(t, 1, h.AddOns)

	assert.Equal(t, 0.0, l.AvgEntry())
	assert.Equal(t, 0.0, l.Unrealized(200))
}

func TestTradeLedger_Short(t *testing.T) {
	l := usecase.NewTradeLedger("paper", "BTCUSDT", 1)

	l.Apply(ledgerFill("o1", domain.IntentOpenShort, 100, 2))
	assert.InDelta(t, 10.0, l.Unrealized(95), 1e-9)

	h, closed := l.Apply(ledgerFill("o2", domain.IntentCloseShort, 90, 2))
	require.True(t, closed)
	assert.Equal(t, domain.SideShort, h.Side)
	assert.InDelta(t, 20.0, h.RealizedPnL, 1e-9)
	assert.Equal(t, 0, h.AddOns)
}

func TestTradeLedger_Restore(t *testing.T) {
	l := usecase.NewTradeLedger("paper", "BTCUSDT", 0)

	l.Restore(domain.StrategyState{Symbol: "BTCUSDT", Position: -3, LastPrice: 50})
	assert.Equal(t, 50.0, l.AvgEntry())

	h, closed := l.Apply(ledgerFill("o9", domain.IntentCloseShort, 40, 3))
	require.True(t, closed)
	assert.InDelta(t, 30.0, h.RealizedPnL, 1e-9)

	l.Restore(domain.StrategyState{Symbol: "BTCUSDT"})
	assert.Equal(t, 0.0, l.AvgEntry())
}
