package dispatch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"plcaudit/internal/config"
	"plcaudit/internal/llm"
	"plcaudit/internal/logging"
	"plcaudit/internal/metrics"
	"plcaudit/internal/shard"
	"plcaudit/internal/store"
)

// Dispatcher fans shards out to the analysis service. Shards move in
// batches of BatchSize with a barrier between batches; within a batch
// at most MaxWorkers requests are in flight.
type Dispatcher struct {
	client   llm.Client
	cache    *store.Cache // nil disables caching
	counters *metrics.Counters

	maxWorkers    int
	batchSize     int
	retryTimes    int
	retryDelay    time.Duration
	workerTimeout time.Duration
	batchPause    time.Duration
}

// New builds a dispatcher from configuration. cache may be nil.
func New(client llm.Client, cfg *config.Config, cache *store.Cache, counters *metrics.Counters) *Dispatcher {
	if counters == nil {
		counters = &metrics.Counters{}
	}
	return &Dispatcher{
		client:        client,
		cache:         cache,
		counters:      counters,
		maxWorkers:    cfg.Dispatch.MaxWorkers,
		batchSize:     cfg.Dispatch.BatchSize,
		retryTimes:    cfg.Dispatch.RetryTimes,
		retryDelay:    cfg.GetRetryDelay(),
		workerTimeout: cfg.GetWorkerTimeout(),
		batchPause:    cfg.GetBatchPause(),
	}
}

// Counters exposes the run counters for reporting.
func (d *Dispatcher) Counters() *metrics.Counters {
	return d.counters
}

// Run analyzes every shard and returns exactly one result per shard,
// in shard order. Individual shard failures are recorded in their
// results; the only error Run itself returns is context cancellation.
func (d *Dispatcher) Run(ctx context.Context, shards []*shard.Shard, analysisType string) ([]*ShardResult, error) {
	timer := logging.StartTimer(logging.CategoryDispatch, "Run")
	defer timer.StopWithInfo()

	results := make([]*ShardResult, len(shards))

	batchSize := d.batchSize
	if batchSize <= 0 {
		batchSize = len(shards)
	}

	for start := 0; start < len(shards); start += batchSize {
		end := start + batchSize
		if end > len(shards) {
			end = len(shards)
		}
		logging.Dispatch("batch %d-%d of %d shards", start+1, end, len(shards))

		g, gctx := errgroup.WithContext(ctx)
		if d.maxWorkers > 0 {
			g.SetLimit(d.maxWorkers)
		}
		for slot := start; slot < end; slot++ {
			slot := slot
			s := shards[slot]
			g.Go(func() error {
				results[slot] = d.processShard(gctx, s, analysisType)
				return gctx.Err()
			})
		}
		// Batch barrier: the next batch starts only when every shard in
		// this one has a result.
		if err := g.Wait(); err != nil {
			d.fillCancelled(results, shards, err)
			return results, err
		}

		if end < len(shards) && d.batchPause > 0 {
			select {
			case <-ctx.Done():
				d.fillCancelled(results, shards, ctx.Err())
				return results, ctx.Err()
			case <-time.After(d.batchPause):
			}
		}
	}

	return results, nil
}

// fillCancelled records a failed result for any shard that never got
// one, so the one-result-per-shard contract holds even on cancellation.
func (d *Dispatcher) fillCancelled(results []*ShardResult, shards []*shard.Shard, cause error) {
	for i, r := range results {
		if r == nil {
			results[i] = &ShardResult{
				ShardID: shards[i].ID,
				Status:  StatusFailed,
				Error:   cause.Error(),
			}
		}
	}
}

// processShard runs the retry state machine for one shard: pending
// until dispatched, retried on transient failures up to retryTimes,
// failed immediately on anything else.
func (d *Dispatcher) processShard(ctx context.Context, s *shard.Shard, analysisType string) *ShardResult {
	start := time.Now()
	res := &ShardResult{ShardID: s.ID, Status: StatusFailed}
	defer func() { res.Duration = time.Since(start) }()

	cacheKey := s.CacheKey(analysisType)
	if d.cache != nil {
		if entry, ok, err := d.cache.Get(cacheKey); err == nil && ok {
			if findings, perr := ParseFindings(entry.Content); perr == nil {
				d.counters.CacheHit()
				res.Status = StatusSuccess
				res.Findings = findings
				res.FromCache = true
				logging.DispatchDebug("shard %s served from cache", s.ID)
				return res
			}
		}
	}

	systemPrompt := SystemPrompt(analysisType)
	userPrompt := BuildUserPrompt(s, analysisType)
	d.counters.Dispatched()

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt

		actx := ctx
		var cancel context.CancelFunc
		if d.workerTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, d.workerTimeout)
		}
		comp, err := d.client.Complete(actx, systemPrompt, userPrompt)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			findings, perr := ParseFindings(comp.Content)
			if perr != nil {
				// A schema-invalid response is a defect on the far
				// side, not a flake. Do not retry.
				res.Error = "invalid response: " + perr.Error()
				d.counters.Failed()
				logging.Dispatch("shard %s failed: %s", s.ID, res.Error)
				return res
			}
			res.Status = StatusSuccess
			res.Findings = findings
			res.Usage = comp.Usage
			d.counters.Succeeded()
			d.counters.AddTokens(comp.Usage.TotalTokens)
			if d.cache != nil {
				if cerr := d.cache.Put(&store.Entry{
					Key:              cacheKey,
					ShardID:          s.ID,
					AnalysisType:     analysisType,
					Content:          comp.Content,
					PromptTokens:     comp.Usage.PromptTokens,
					CompletionTokens: comp.Usage.CompletionTokens,
				}); cerr != nil {
					logging.DispatchDebug("cache write for shard %s failed: %v", s.ID, cerr)
				}
			}
			logging.DispatchDebug("shard %s succeeded after %d attempt(s), %d findings",
				s.ID, attempt, len(findings))
			return res
		}

		if !llm.IsTransient(err) || attempt > d.retryTimes {
			res.Error = err.Error()
			d.counters.Failed()
			logging.Dispatch("shard %s failed after %d attempt(s): %v", s.ID, attempt, err)
			return res
		}

		d.counters.Retried()
		logging.DispatchDebug("shard %s attempt %d hit transient error, retrying: %v", s.ID, attempt, err)
		select {
		case <-ctx.Done():
			res.Error = ctx.Err().Error()
			d.counters.Failed()
			return res
		case <-time.After(d.retryDelay):
		}
	}
}
