package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientBankroll = errors.New("insufficient bankroll")
	ErrDuplicatePosition    = errors.New("position already open for market")
	ErrMaxPositions         = errors.New("max open positions reached")
	ErrPositionClosed       = errors.New("position already closed")
	ErrOrderNotFilled       = errors.New("order not filled")
	ErrLockHeld             = errors.New("lock already held")
	ErrFeedStale            = errors.New("feed stale")
	ErrInsufficientHistory  = errors.New("insufficient price history")
	ErrEntriesPaused        = errors.New("entries paused")
)
