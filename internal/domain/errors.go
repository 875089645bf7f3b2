package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrLockHeld         = errors.New("lock already held")
	ErrInvalidDirection = errors.New("invalid trade direction")
	ErrEmptyOrderBook   = errors.New("order book side is empty")
	ErrCycleTerminal    = errors.New("cycle is in a terminal state")
	ErrInsufficientFund = errors.New("insufficient balance")
)
