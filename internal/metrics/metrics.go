// Package metrics keeps run counters for the dispatch pipeline.
package metrics

import "sync/atomic"

// Counters accumulates dispatch activity for one run. All methods are
// safe for concurrent use.
type Counters struct {
	dispatched atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	retried    atomic.Int64
	cacheHits  atomic.Int64
	tokensUsed atomic.Int64
}

func (c *Counters) Dispatched()     { c.dispatched.Add(1) }
func (c *Counters) Succeeded()      { c.succeeded.Add(1) }
func (c *Counters) Failed()         { c.failed.Add(1) }
func (c *Counters) Retried()        { c.retried.Add(1) }
func (c *Counters) CacheHit()       { c.cacheHits.Add(1) }
func (c *Counters) AddTokens(n int) { c.tokensUsed.Add(int64(n)) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Dispatched int64 `json:"dispatched"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	Retried    int64 `json:"retried"`
	CacheHits  int64 `json:"cache_hits"`
	TokensUsed int64 `json:"tokens_used"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Dispatched: c.dispatched.Load(),
		Succeeded:  c.succeeded.Load(),
		Failed:     c.failed.Load(),
		Retried:    c.retried.Load(),
		CacheHits:  c.cacheHits.Load(),
		TokensUsed: c.tokensUsed.Load(),
	}
}
