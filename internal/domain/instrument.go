package domain

// Instrument describes the venue-side contract details of a symbol.
type Instrument struct {
	Symbol             string  `json:"symbol"`
	BaseCoin           string  `json:"base_coin"`
	QuoteCoin          string  `json:"quote_coin"`
	Status             string  `json:"status"`
	ContractMultiplier float64 `json:"contract_multiplier"`
	TickSize           float64 `json:"tick_size"`
	QtyStep            float64 `json:"qty_step"`
	MinQty             float64 `json:"min_qty"`
}

// InstrumentConfig is a traded symbol as configured by the operator.
// ContractMultiplier overrides the venue value when positive.
type InstrumentConfig struct {
	Symbol             string   `yaml:"symbol" json:"symbol"`
	Interval           Interval `yaml:"interval" json:"interval"`
	ContractMultiplier float64  `yaml:"contract_multiplier" json:"contract_multiplier"`
}
