package domain

import "time"

// PriceObservation is a single immutable price/volume sample for an asset
// or an outcome token. Observations are ordered by timestamp; samples that
// arrive within the coalescing window of the previous one are merged by the
// history store (latest price wins, volume accumulates).
type PriceObservation struct {
	Key       string
	Price     float64
	Volume    float64
	Timestamp time.Time
}
