package domain_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/vitos/turtle_trader/internal/domain"
)

func TestTurtleParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *domain.TurtleParams)
		wantErr bool
	}{
		{"Defaults", func(p *domain.TurtleParams) {}, false},
		{"Zero Entry Lookback", func(p *domain.TurtleParams) { p.EntryLookback = 0 }, true},
		{"Negative Exit Lookback", func(p *domain.TurtleParams) { p.ExitLookback = -1 }, true},
		{"Zero ATR Lookback", func(p *domain.TurtleParams) { p.AtrLookback = 0 }, true},
		{"Zero Balance", func(p *domain.TurtleParams) { p.AccountBalance = 0 }, true},
		{"NaN Balance", func(p *domain.TurtleParams) { p.AccountBalance = math.NaN() }, true},
		{"Negative Risk Factor", func(p *domain.TurtleParams) { p.RiskFactor = -0.02 }, true},
		{"Negative Add-ons", func(p *domain.TurtleParams) { p.MaxAddOns = -1 }, true},
		{"Zero Add-ons Allowed", func(p *domain.TurtleParams) { p.MaxAddOns = 0 }, false},
		{"Negative Multiplier", func(p *domain.TurtleParams) { p.ContractMultiplier = -10 }, true},
		{"Zero Stop Loss ATR", func(p *domain.TurtleParams) { p.StopLossATR = 0 }, true},
		{"Offset Too Large", func(p *domain.TurtleParams) { p.PriceOffset = 1 }, true},
		{"Zero Offset Allowed", func(p *domain.TurtleParams) { p.PriceOffset = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.DefaultTurtleParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidConfig) {
					t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestTurtleParams_WindowSizing(t *testing.T) {
	p := domain.DefaultTurtleParams()
	if got := p.MinBars(); got != 20 {
		t.Errorf("MinBars() = %d, want 20", got)
	}
	if got := p.WindowSize(); got != 21 {
		t.Errorf("WindowSize() = %d, want 21", got)
	}

	p.ExcludeLatestBar = true
	if got := p.MinBars(); got != 21 {
		t.Errorf("MinBars() with ExcludeLatestBar = %d, want 21", got)
	}
}

func TestInterval_Duration(t *testing.T) {
	tests := []struct {
		in      domain.Interval
		want    time.Duration
		wantErr bool
	}{
		{domain.Interval1m, time.Minute, false},
		{domain.Interval1h, time.Hour, false},
		{domain.Interval4h, 4 * time.Hour, false},
		{domain.Interval1d, 24 * time.Hour, false},
		{"0", 0, true},
		{"1h", 0, true},
	}
	for _, tt := range tests {
		got, err := tt.in.Duration()
		if (err != nil) != tt.wantErr {
			t.Errorf("Duration(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Duration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestOrderIntent_Projection(t *testing.T) {
	tests := []struct {
		intent domain.OrderIntent
		offset domain.Offset
		side   domain.Side
		buy    bool
	}{
		{domain.IntentOpenLong, domain.OffsetOpen, domain.SideLong, true},
		{domain.IntentOpenShort, domain.OffsetOpen, domain.SideShort, false},
		{domain.IntentCloseLong, domain.OffsetClose, domain.SideLong, false},
		{domain.IntentCloseShort, domain.OffsetClose, domain.SideShort, true},
	}
	for _, tt := range tests {
		if tt.intent.Offset() != tt.offset || tt.intent.Side() != tt.side || tt.intent.IsBuy() != tt.buy {
			t.Errorf("%s: got (%s, %s, %v)", tt.intent, tt.intent.Offset(), tt.intent.Side(), tt.intent.IsBuy())
		}
	}
}
