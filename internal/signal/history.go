// Package signal derives directional trading signals from streamed price
// history. The Store keeps bounded per-key sample windows; the Engine
// blends multi-lookback momentum with indicator and cross-asset
// confirmations.
package signal

import (
	"math"
	"sync"
	"time"
)

// Sample is one recorded price/volume observation.
type Sample struct {
	Price  float64
	Volume float64
	Time   time.Time
}

// StoreOptions tunes a history Store.
type StoreOptions struct {
	// Capacity bounds the number of samples kept per key; the oldest are
	// evicted once it is exceeded.
	Capacity int
	// CoalesceWindow merges samples arriving within this window of the
	// previous one: latest price wins, volume accumulates.
	CoalesceWindow time.Duration
	// Staleness bounds how far an At lookup may miss its target time.
	Staleness time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Store is a thread-safe per-key price/volume history with time-indexed
// lookups.
type Store struct {
	mu      sync.RWMutex
	buffers map[string][]Sample
	opts    StoreOptions
}

// NewStore creates a Store. Zero option fields get defaults suitable for
// an asset feed sampled around 1 Hz.
func NewStore(opts StoreOptions) *Store {
	if opts.Capacity <= 0 {
		opts.Capacity = 7200
	}
	if opts.CoalesceWindow <= 0 {
		opts.CoalesceWindow = 500 * time.Millisecond
	}
	if opts.Staleness <= 0 {
		opts.Staleness = 120 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		buffers: make(map[string][]Sample),
		opts:    opts,
	}
}

// NewTokenStore creates a Store sized for fast per-tick outcome-token
// prices, where only a short tail matters.
func NewTokenStore(now func() time.Time) *Store {
	return NewStore(StoreOptions{
		Capacity:       20,
		CoalesceWindow: 200 * time.Millisecond,
		Staleness:      30 * time.Second,
		Now:            now,
	})
}

// Record appends an observation. Ignores non-positive prices. Out-of-order
// samples older than the newest recorded one are dropped.
func (s *Store) Record(key string, price, volume float64, ts time.Time) {
	if price <= 0 || key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[key]
	if n := len(buf); n > 0 {
		last := &buf[n-1]
		if ts.Before(last.Time) {
			return
		}
		if ts.Sub(last.Time) < s.opts.CoalesceWindow {
			last.Price = price
			last.Volume += volume
			if ts.After(last.Time) {
				last.Time = ts
			}
			return
		}
	}
	buf = append(buf, Sample{Price: price, Volume: volume, Time: ts})
	if len(buf) > s.opts.Capacity {
		buf = buf[len(buf)-s.opts.Capacity:]
	}
	s.buffers[key] = buf
}

// Latest returns the most recent price for key.
func (s *Store) Latest(key string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := s.buffers[key]
	if len(buf) == 0 {
		return 0, false
	}
	return buf[len(buf)-1].Price, true
}

// LatestSample returns the most recent sample for key.
func (s *Store) LatestSample(key string) (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := s.buffers[key]
	if len(buf) == 0 {
		return Sample{}, false
	}
	return buf[len(buf)-1], true
}

// At returns the observation price nearest to now-secondsAgo. It reports
// false when the nearest sample misses the target by more than the
// staleness bound.
func (s *Store) At(key string, secondsAgo float64) (float64, bool) {
	target := s.opts.Now().Add(-time.Duration(secondsAgo * float64(time.Second)))

	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := s.buffers[key]
	if len(buf) == 0 {
		return 0, false
	}

	best := buf[0]
	bestDiff := absDuration(buf[0].Time.Sub(target))
	for _, sm := range buf[1:] {
		if d := absDuration(sm.Time.Sub(target)); d < bestDiff {
			best, bestDiff = sm, d
		}
	}
	if bestDiff > s.opts.Staleness {
		return 0, false
	}
	return best.Price, true
}

// Momentum returns the fractional price change over the given lookback:
// (latest-past)/past. Reports false when either endpoint is unavailable.
func (s *Store) Momentum(key string, secondsAgo float64) (float64, bool) {
	latest, ok := s.Latest(key)
	if !ok {
		return 0, false
	}
	past, ok := s.At(key, secondsAgo)
	if !ok || past == 0 {
		return 0, false
	}
	return (latest - past) / past, true
}

// DataAge returns the span in seconds between the oldest and newest
// sample for key. Used as the cold-start guard.
func (s *Store) DataAge(key string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := s.buffers[key]
	if len(buf) < 2 {
		return 0
	}
	return buf[len(buf)-1].Time.Sub(buf[0].Time).Seconds()
}

// Count returns the number of stored samples for key.
func (s *Store) Count(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buffers[key])
}

// Tail returns a copy of the most recent n samples for key, oldest first.
func (s *Store) Tail(key string, n int) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := s.buffers[key]
	if len(buf) == 0 {
		return nil
	}
	if n <= 0 || n > len(buf) {
		n = len(buf)
	}
	out := make([]Sample, n)
	copy(out, buf[len(buf)-n:])
	return out
}

// Closes returns the most recent n close prices for key, oldest first.
func (s *Store) Closes(key string, n int) []float64 {
	tail := s.Tail(key, n)
	out := make([]float64, len(tail))
	for i, sm := range tail {
		out[i] = sm.Price
	}
	return out
}

// Window returns a copy of the samples within the trailing window, oldest
// first.
func (s *Store) Window(key string, window time.Duration) []Sample {
	cutoff := s.opts.Now().Add(-window)
	s.mu.RLock()
	defer s.mu.RUnlock()
	buf := s.buffers[key]
	start := len(buf)
	for i := len(buf) - 1; i >= 0; i-- {
		if buf[i].Time.Before(cutoff) {
			break
		}
		start = i
	}
	out := make([]Sample, len(buf)-start)
	copy(out, buf[start:])
	return out
}

// Average returns the mean price over the trailing window, or 0 when no
// samples fall inside it.
func (s *Store) Average(key string, window time.Duration) float64 {
	pts := s.Window(key, window)
	if len(pts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pts {
		sum += p.Price
	}
	return sum / float64(len(pts))
}

// Volatility returns the standard deviation of prices over the trailing
// window, or 0 with fewer than two samples.
func (s *Store) Volatility(key string, window time.Duration) float64 {
	pts := s.Window(key, window)
	if len(pts) < 2 {
		return 0
	}
	var sum float64
	for _, p := range pts {
		sum += p.Price
	}
	mean := sum / float64(len(pts))
	var ss float64
	for _, p := range pts {
		d := p.Price - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(pts)))
}

// VolumeRatio compares recent volume throughput against a longer baseline
// window. Values above 1 indicate a surge. Returns 1 (neutral) when the
// baseline is empty.
func (s *Store) VolumeRatio(key string, recent, base time.Duration) float64 {
	if recent <= 0 || base <= recent {
		return 1
	}
	basePts := s.Window(key, base)
	if len(basePts) == 0 {
		return 1
	}
	cutoff := s.opts.Now().Add(-recent)
	var recentVol, baseVol float64
	for _, p := range basePts {
		baseVol += p.Volume
		if !p.Time.Before(cutoff) {
			recentVol += p.Volume
		}
	}
	if baseVol == 0 {
		return 1
	}
	// Normalize both sides to per-second rates.
	baseRate := baseVol / base.Seconds()
	recentRate := recentVol / recent.Seconds()
	if baseRate == 0 {
		return 1
	}
	return recentRate / baseRate
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
