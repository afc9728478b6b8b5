package domain

import "time"

// Timeframe is the duration class of an up/down market window.
type Timeframe string

const (
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Duration returns the nominal window length for this timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe4h:
		return 4 * time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Short reports whether this timeframe resolves quickly enough that
// liquidity near expiry is the dominant exit concern.
func (tf Timeframe) Short() bool {
	return tf == Timeframe5m || tf == Timeframe15m
}

// Long reports whether this timeframe is held through drawdowns rather
// than stopped out.
func (tf Timeframe) Long() bool {
	return tf == Timeframe4h || tf == Timeframe1d
}

// Valid reports whether tf is one of the supported window classes.
func (tf Timeframe) Valid() bool {
	return tf.Duration() > 0
}

// Side is the direction of an outcome token.
type Side string

const (
	SideUp   Side = "UP"
	SideDown Side = "DOWN"
)

// Opposite returns the other side of the market.
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// Direction returns +1 for UP and -1 for DOWN.
func (s Side) Direction() int {
	if s == SideUp {
		return 1
	}
	return -1
}

// SideForDirection maps a signal direction to the outcome side to buy.
func SideForDirection(dir int) Side {
	if dir < 0 {
		return SideDown
	}
	return SideUp
}

// Market is a single binary up/down prediction window. EndTime is fixed at
// creation and never mutated; discovery refreshes token prices only.
type Market struct {
	ID        string
	Asset     string
	Timeframe Timeframe
	EndTime   time.Time
	UpToken   string
	DownToken string
	UpPrice   float64
	DownPrice float64
	UpdatedAt time.Time
}

// Token returns the outcome token ID for the given side.
func (m Market) Token(side Side) string {
	if side == SideUp {
		return m.UpToken
	}
	return m.DownToken
}

// TokenPrice returns the last known price of the outcome token for the
// given side, or 0 when unknown.
func (m Market) TokenPrice(side Side) float64 {
	if side == SideUp {
		return m.UpPrice
	}
	return m.DownPrice
}

// TimeRemaining returns the time until resolution. Negative once expired.
func (m Market) TimeRemaining(now time.Time) time.Duration {
	return m.EndTime.Sub(now)
}

// Expired reports whether the window is past its end time.
func (m Market) Expired(now time.Time) bool {
	return !now.Before(m.EndTime)
}
