package domain

import (
	"fmt"
	"math"
)

// TurtleParams is the static configuration of one strategy instance.
type TurtleParams struct {
	EntryLookback int `yaml:"entry_lookback" json:"entry_lookback"` // donchian channel for breakouts
	ExitLookback  int `yaml:"exit_lookback" json:"exit_lookback"`   // donchian channel for stop-profit
	AtrLookback   int `yaml:"atr_lookback" json:"atr_lookback"`

	// MaxRiskRatio is reserved for host-level risk capping; the strategy never reads it.
	MaxRiskRatio   float64 `yaml:"max_risk_ratio" json:"max_risk_ratio"`
	RiskFactor     float64 `yaml:"risk_factor" json:"risk_factor"`
	AccountBalance float64 `yaml:"account_balance" json:"account_balance"`
	MaxAddOns      int     `yaml:"max_add_ons" json:"max_add_ons"`

	// ContractMultiplier is normally supplied by the venue at start. A positive value
	// here is used when the venue does not provide one.
	ContractMultiplier float64 `yaml:"contract_multiplier" json:"contract_multiplier"`

	AddOnATR        float64 `yaml:"add_on_atr" json:"add_on_atr"`
	StopLossATR     float64 `yaml:"stop_loss_atr" json:"stop_loss_atr"`
	TrailingStopATR float64 `yaml:"trailing_stop_atr" json:"trailing_stop_atr"`
	PriceOffset     float64 `yaml:"price_offset" json:"price_offset"`

	// ExcludeLatestBar computes the channels over the N bars before the
	// most recently completed one.
	ExcludeLatestBar bool `yaml:"exclude_latest_bar" json:"exclude_latest_bar"`
}

func DefaultTurtleParams() TurtleParams {
	return TurtleParams{
		EntryLookback:   20,
		ExitLookback:    10,
		AtrLookback:     20,
		MaxRiskRatio:    0.5,
		RiskFactor:      0.02,
		AccountBalance:  350000,
		MaxAddOns:       2,
		AddOnATR:        0.5,
		StopLossATR:     2,
		TrailingStopATR: 3,
		PriceOffset:     0.01,
	}
}

// Validate fails fast on unusable parameters. Nothing is clamped.
func (p TurtleParams) Validate() error {
	switch {
	case p.EntryLookback <= 0:
		return fmt.Errorf("%w: entry_lookback must be > 0, got %d", ErrInvalidConfig, p.EntryLookback)
	case p.ExitLookback <= 0:
		return fmt.Errorf("%w: exit_lookback must be > 0, got %d", ErrInvalidConfig, p.ExitLookback)
	case p.AtrLookback <= 0:
		return fmt.Errorf("%w: atr_lookback must be > 0, got %d", ErrInvalidConfig, p.AtrLookback)
	case !positive(p.AccountBalance):
		return fmt.Errorf("%w: account_balance must be > 0, got %v", ErrInvalidConfig, p.AccountBalance)
	case !positive(p.RiskFactor):
		return fmt.Errorf("%w: risk_factor must be > 0, got %v", ErrInvalidConfig, p.RiskFactor)
	case p.MaxAddOns < 0:
		return fmt.Errorf("%w: max_add_ons must be >= 0, got %d", ErrInvalidConfig, p.MaxAddOns)
	case p.ContractMultiplier < 0 || math.IsNaN(p.ContractMultiplier):
		return fmt.Errorf("%w: contract_multiplier must be >= 0, got %v", ErrInvalidConfig, p.ContractMultiplier)
	case !positive(p.AddOnATR), !positive(p.StopLossATR), !positive(p.TrailingStopATR):
		return fmt.Errorf("%w: atr multipliers must be > 0", ErrInvalidConfig)
	case p.PriceOffset < 0 || p.PriceOffset >= 1 || math.IsNaN(p.PriceOffset):
		return fmt.Errorf("%w: price_offset must be in [0, 1), got %v", ErrInvalidConfig, p.PriceOffset)
	}
	return nil
}

// MinBars is the history required before indicators and decisions are enabled.
func (p TurtleParams) MinBars() int {
	extra := 0
	if p.ExcludeLatestBar {
		extra = 1
	}
	return max(p.EntryLookback+extra, p.ExitLookback+extra, p.AtrLookback)
}

// WindowSize is the rolling window capacity: one bar more than MinBars so the
// oldest ATR bar always has a previous close once the window is full.
func (p TurtleParams) WindowSize() int {
	return p.MinBars() + 1
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
