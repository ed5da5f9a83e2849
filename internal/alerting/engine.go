package alerting

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/herald/internal/dedupe"
	"github.com/linnemanlabs/herald/internal/gate"
	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/match"
	"github.com/linnemanlabs/herald/internal/normalize"
	"github.com/linnemanlabs/herald/internal/rules"
	"github.com/linnemanlabs/herald/internal/score"
)

// Batch is the in-memory result of running the pipeline over one snapshot,
// up to but excluding the gate.
type Batch struct {
	Now             time.Time
	Counts          IngestCounts
	Representatives []item.Scored
	Clusters        []dedupe.Cluster
}

// Engine runs normalize, match, score and dedupe over a batch of raw
// records. It holds no cross-run state.
type Engine struct {
	rules      *rules.Set
	normalizer *normalize.Normalizer
	matcher    *match.Matcher
	scorer     *score.Scorer
	clusterer  *dedupe.Clusterer
	gate       *gate.Gate
	logger     log.Logger
	now        func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine for a compiled rule set.
func NewEngine(set *rules.Set, logger log.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	e := &Engine{
		rules:      set,
		normalizer: normalize.New(set),
		matcher:    match.New(set),
		scorer:     score.New(set),
		clusterer:  dedupe.New(set),
		gate:       gate.New(set),
		logger:     logger,
		now:        time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Rules returns the rule set the engine was built with.
func (e *Engine) Rules() *rules.Set { return e.rules }

// Gate returns the alert gate sharing the engine's rules.
func (e *Engine) Gate() *gate.Gate { return e.gate }

// Run pushes raws through the pipeline. Malformed records never fail the
// run; they are counted and dropped.
func (e *Engine) Run(ctx context.Context, raws []item.Raw) *Batch {
	now := e.now().UTC()
	b := &Batch{Now: now}
	b.Counts.Raw = len(raws)

	lookback := time.Duration(e.rules.LookbackHours) * time.Hour
	scored := make([]item.Scored, 0, len(raws))

	for _, raw := range raws {
		it, ok := e.normalizer.Normalize(raw)
		if !ok {
			b.Counts.Dropped++
			continue
		}
		if lookback > 0 && it.HasPublishedAt() && now.Sub(it.PublishedAt) > lookback {
			b.Counts.Stale++
			continue
		}

		switch v := e.matcher.Match(&it); v.Reason {
		case match.ReasonNoise:
			b.Counts.Noise++
			continue
		case match.ReasonUnmatched:
			b.Counts.Unmatched++
			continue
		case match.ReasonNoAnchor:
			b.Counts.NoAnchor++
			continue
		}

		s, breakdown, signals := e.scorer.Score(&it, now)
		scored = append(scored, item.Scored{
			Item:      it,
			Score:     s,
			Breakdown: breakdown,
			Signals:   signals,
		})
	}
	b.Counts.Scored = len(scored)

	unique := dedupe.Hard(scored)
	b.Counts.DuplicateURL = len(scored) - len(unique)

	b.Clusters = e.clusterer.Cluster(unique)
	b.Representatives = e.clusterer.Representatives(b.Clusters)
	b.Counts.Representatives = len(b.Representatives)
	b.Counts.Clustered = len(unique) - len(b.Representatives)

	e.logger.Info(ctx, "batch scored",
		"raw", b.Counts.Raw,
		"dropped", b.Counts.Dropped,
		"stale", b.Counts.Stale,
		"noise", b.Counts.Noise,
		"unmatched", b.Counts.Unmatched,
		"no_anchor", b.Counts.NoAnchor,
		"scored", b.Counts.Scored,
		"duplicate_url", b.Counts.DuplicateURL,
		"clustered", b.Counts.Clustered,
		"representatives", b.Counts.Representatives,
	)
	return b
}

// BuildPool lays out the scored items of a batch with their gate outcome,
// ranked by score and numbered from 1.
func BuildPool(runID string, b *Batch, ev gate.Evaluation, minScore int) *Pool {
	status := make(map[string]gate.Status, len(ev.Decisions))
	for _, d := range ev.Decisions {
		status[d.Item.ID] = d.Status
	}

	reps := make(map[string]item.Scored, len(b.Representatives))
	for _, r := range b.Representatives {
		reps[r.ID] = r
	}

	var entries []PoolEntry
	for i := range b.Clusters {
		cl := &b.Clusters[i]
		repID := cl.Members[cl.Representative()].ID
		for _, m := range cl.Members {
			if m.ID == repID {
				entries = append(entries, PoolEntry{Item: reps[repID], Status: string(status[repID])})
				continue
			}
			entries = append(entries, PoolEntry{Item: m, Status: StatusClustered, RepresentativeID: repID})
		}
	}
	rankEntries(entries)

	return &Pool{RunID: runID, CreatedAt: b.Now, MinScore: minScore, Entries: entries}
}

func rankEntries(entries []PoolEntry) {
	items := make([]item.Scored, len(entries))
	byID := make(map[string]PoolEntry, len(entries))
	for i, e := range entries {
		items[i] = e.Item
		byID[e.Item.ID] = e
	}
	item.SortByRank(items)
	for i, it := range items {
		e := byID[it.ID]
		e.Index = i + 1
		entries[i] = e
	}
}
