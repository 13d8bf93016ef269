package domain

import "errors"

var (
	// ErrInvalidConfig is returned at construction for unusable parameters.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrOutOfOrderFill is an integrity fault: a fill that matches no issued order
	// or arrives out of issuance order.
	ErrOutOfOrderFill = errors.New("out of order fill")

	// ErrOrderThrottled is returned while a refused request is held back.
	ErrOrderThrottled = errors.New("order request throttled")

	ErrUnknownSymbol = errors.New("unknown symbol")
	ErrOrderNotFound = errors.New("order not found")
)
