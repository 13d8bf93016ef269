package domain

import "time"

type Side string

const (
	SideFlat  Side = "FLAT"
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Offset tells whether a transaction opens (or adds to) a position or closes it.
type Offset string

const (
	OffsetOpen  Offset = "OPEN"
	OffsetClose Offset = "CLOSE"
)

// OrderIntent is one of the four order commands the strategy can issue.
type OrderIntent string

const (
	IntentOpenLong   OrderIntent = "OPEN_LONG"   // buy
	IntentOpenShort  OrderIntent = "OPEN_SHORT"  // short
	IntentCloseLong  OrderIntent = "CLOSE_LONG"  // sell
	IntentCloseShort OrderIntent = "CLOSE_SHORT" // cover
)

func (i OrderIntent) Offset() Offset {
	if i == IntentCloseLong || i == IntentCloseShort {
		return OffsetClose
	}
	return OffsetOpen
}

// Side returns the position side the intent acts on.
func (i OrderIntent) Side() Side {
	if i == IntentOpenShort || i == IntentCloseShort {
		return SideShort
	}
	return SideLong
}

// IsBuy reports whether the intent is executed as a buy on the venue.
func (i OrderIntent) IsBuy() bool {
	return i == IntentOpenLong || i == IntentCloseShort
}

func (i OrderIntent) Valid() bool {
	switch i {
	case IntentOpenLong, IntentOpenShort, IntentCloseLong, IntentCloseShort:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "New"
	OrderStatusPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderStatusFilled          OrderStatus = "Filled"
	OrderStatusCancelled       OrderStatus = "Cancelled"
	OrderStatusRejected        OrderStatus = "Rejected"
)

// Terminal reports whether no further executions can happen for the order.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled || s == OrderStatusRejected
}

// Order is an order request issued by the bot and its execution progress.
type Order struct {
	ID           string      `json:"id"`        // Exchange Order ID
	ClientID     string      `json:"client_id"` // our idempotency key (orderLinkId on Bybit)
	Exchange     string      `json:"exchange"`
	Symbol       string      `json:"symbol"`
	Intent       OrderIntent `json:"intent"`
	Price        float64     `json:"price"` // limit price
	Size         float64     `json:"size"`
	FilledSize   float64     `json:"filled_size"`
	AvgFillPrice float64     `json:"avg_fill_price"`
	Status       OrderStatus `json:"status"`
	Reason       string      `json:"reason"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() float64 {
	r := o.Size - o.FilledSize
	if r < 0 {
		return 0
	}
	return r
}

// Fill is a confirmed (possibly partial) execution of an order.
type Fill struct {
	OrderID string      `json:"order_id"`
	Symbol  string      `json:"symbol"`
	Intent  OrderIntent `json:"intent"`
	Price   float64     `json:"price"`
	Size    float64     `json:"size"`
	Time    time.Time   `json:"time"`
}

func (f Fill) Offset() Offset { return f.Intent.Offset() }

// PositionHistory represents a closed round trip.
type PositionHistory struct {
	ID          int64     `json:"id"`
	Exchange    string    `json:"exchange"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Size        float64   `json:"size"`        // total quantity opened
	EntryPrice  float64   `json:"entry_price"` // volume weighted
	ExitPrice   float64   `json:"exit_price"`  // volume weighted
	RealizedPnL float64   `json:"realized_pnl"`
	AddOns      int       `json:"add_ons"`
	OpenedAt    time.Time `json:"opened_at"`
	ClosedAt    time.Time `json:"closed_at"`
}

// StrategyState is the persisted form of a strategy's position and risk bookkeeping.
type StrategyState struct {
	Symbol    string    `json:"symbol"`
	Position  float64   `json:"position"`
	AddPos    int       `json:"add_pos"`
	LastPrice float64   `json:"last_price"`
	HighPrice float64   `json:"high_price"`
	LowPrice  float64   `json:"low_price"`
	LowSet    bool      `json:"low_set"`
	Trading   bool      `json:"trading"`
	UpdatedAt time.Time `json:"updated_at"`
}
