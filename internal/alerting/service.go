package alerting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/seen"
)

var tracer = otel.Tracer("github.com/linnemanlabs/herald/internal/alerting")

// Service is the business boundary for runs and manual overrides.
type Service struct {
	engine    *Engine
	store     seen.Store
	pools     PoolStore
	publisher Publisher
	logger    log.Logger
	hooks     RunHooks
	dryRun    bool
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithHooks installs lifecycle hooks, typically Metrics.Hooks().
func WithHooks(h RunHooks) Option {
	return func(s *Service) { s.hooks = h }
}

// WithDryRun evaluates and previews drafts without publishing or committing.
func WithDryRun(dry bool) Option {
	return func(s *Service) { s.dryRun = dry }
}

// WithServiceClock overrides the time source used for commit timestamps.
func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new alerting service. pools may be nil, in which
// case the override surface has nothing to query.
func NewService(engine *Engine, store seen.Store, pools PoolStore, pub Publisher, logger log.Logger, opts ...Option) *Service {
	if engine == nil {
		panic(xerrors.New("engine is required"))
	}
	if store == nil {
		panic(xerrors.New("seen store is required"))
	}
	if pub == nil {
		panic(xerrors.New("publisher is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	s := &Service{
		engine:    engine,
		store:     store,
		pools:     pools,
		publisher: pub,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run processes one snapshot of raw records end to end: lease, load state,
// score and gate, publish drafts and commit each confirmed delivery.
//
// A state that is missing or corrupt fails the run before anything is
// published. A delivery failure leaves that draft uncommitted and is
// reported as an error wrapping ErrPublish alongside the report.
func (s *Service) Run(ctx context.Context, raws []item.Raw) (*RunReport, error) {
	start := s.now()
	runID := ulid.Make().String()

	ctx, span := tracer.Start(ctx, "alerting.Run", trace.WithAttributes(
		attribute.String("herald.run.id", runID),
		attribute.Int("herald.run.raw", len(raws)),
		attribute.Bool("herald.run.dry_run", s.dryRun),
	))
	defer span.End()

	L := s.logger.With("run_id", runID)
	ctx = log.WithContext(ctx, L)

	report := &RunReport{RunID: runID, StartedAt: start.UTC(), DryRun: s.dryRun, Published: []string{}}

	lease, err := s.store.Lock(ctx)
	if err != nil {
		return s.abort(ctx, span, report, lockOutcome(err), fmt.Errorf("acquire seen state lease: %w", err))
	}
	defer func() {
		if err := lease.Release(); err != nil {
			L.Error(ctx, err, "failed to release seen state lease")
		}
	}()

	st, err := s.store.Load(ctx)
	if err != nil {
		return s.abort(ctx, span, report, OutcomeStateError, fmt.Errorf("load seen state: %w", err))
	}

	batch := s.engine.Run(ctx, raws)
	ev := s.engine.Gate().Evaluate(batch.Representatives, st, batch.Now)

	report.Ingest = batch.Counts
	report.Gate = ev.Summary
	report.Decisions = ev.Decisions
	for _, d := range ev.Drafts {
		report.Drafts = append(report.Drafts, NewAlert(d, runID, false))
	}

	pool := BuildPool(runID, batch, ev, s.engine.Rules().Thresholds.MinScore)

	// nothing is persisted if the run is aborted before this point
	if err := ctx.Err(); err != nil {
		return s.abort(ctx, span, report, OutcomeCanceled, err)
	}

	if s.dryRun {
		s.savePool(ctx, pool)
		return s.finish(ctx, span, report, st, OutcomeDryRun, nil)
	}

	published := make(map[string]bool, len(ev.Drafts))
	var errs []error
	for i, draft := range ev.Drafts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		alert := report.Drafts[i]
		if err := s.publish(ctx, alert); err != nil {
			report.Failed = append(report.Failed, FailedAlert{ID: alert.ID, Title: alert.Title, Error: err.Error()})
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrPublish, alert.ID, err))
			continue
		}

		// commit strictly after confirmation, one item at a time
		s.engine.Gate().Commit(st, draft, s.now())
		if err := s.store.Save(ctx, st); err != nil {
			L.Error(ctx, err, "delivered alert could not be committed; it may be posted again",
				"item_id", alert.ID, "title", alert.Title)
			published[alert.ID] = true
			report.Published = append(report.Published, alert.ID)
			s.markPublished(pool, published)
			s.savePool(ctx, pool)
			return s.abort(ctx, span, report, OutcomeStateError, fmt.Errorf("save seen state: %w", err))
		}
		published[alert.ID] = true
		report.Published = append(report.Published, alert.ID)
	}

	s.markPublished(pool, published)
	s.savePool(ctx, pool)

	outcome := OutcomeOK
	var runErr error
	if len(errs) > 0 {
		outcome = OutcomePublishError
		runErr = errors.Join(errs...)
	}
	return s.finish(ctx, span, report, st, outcome, runErr)
}

func lockOutcome(err error) string {
	if errors.Is(err, seen.ErrLocked) {
		return OutcomeLocked
	}
	return OutcomeStateError
}

func (s *Service) publish(ctx context.Context, a *Alert) error {
	ctx, span := tracer.Start(ctx, "alerting.Publish", trace.WithAttributes(
		attribute.String("herald.item.id", a.ID),
		attribute.String("herald.publisher", s.publisher.Name()),
		attribute.Bool("herald.alert.manual", a.Manual),
	))
	defer span.End()

	err := s.publisher.Publish(ctx, a)
	outcome := "published"
	if err != nil {
		outcome = "failed"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.FromContext(ctx).Error(ctx, err, "alert delivery failed", "item_id", a.ID, "title", a.Title)
	}
	if s.hooks.OnAlert != nil {
		s.hooks.OnAlert(outcome, a.Manual)
	}
	return err
}

func (s *Service) markPublished(p *Pool, published map[string]bool) {
	for i := range p.Entries {
		if published[p.Entries[i].Item.ID] {
			p.Entries[i].Published = true
		}
	}
}

func (s *Service) savePool(ctx context.Context, p *Pool) {
	if s.pools == nil {
		return
	}
	if err := s.pools.SavePool(ctx, p); err != nil {
		log.FromContext(ctx).Warn(ctx, "failed to save item pool", "err", err)
	}
}

func (s *Service) abort(ctx context.Context, span trace.Span, r *RunReport, outcome string, err error) (*RunReport, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.Duration = s.now().Sub(r.StartedAt).Seconds()
	log.FromContext(ctx).Error(ctx, err, "run aborted", "outcome", outcome)
	if s.hooks.OnRun != nil {
		s.hooks.OnRun(outcome, nil)
	}
	return r, err
}

func (s *Service) finish(ctx context.Context, span trace.Span, r *RunReport, st *seen.State, outcome string, err error) (*RunReport, error) {
	r.Duration = s.now().Sub(r.StartedAt).Seconds()
	r.SeenSizes = map[string]int{"ids": len(st.IDs), "titles": len(st.Titles)}

	span.SetAttributes(
		attribute.String("herald.run.outcome", outcome),
		attribute.Int("herald.run.emitted", r.Gate.Emitted),
		attribute.Int("herald.run.published", len(r.Published)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	log.FromContext(ctx).Info(ctx, "run complete",
		"outcome", outcome,
		"duration", r.Duration,
		"candidates", r.Gate.Candidates,
		"rejected_score", r.Gate.RejectedScore,
		"rejected_seen_id", r.Gate.RejectedSeenID,
		"rejected_seen_similar", r.Gate.RejectedSeenSimilar,
		"emitted", r.Gate.Emitted,
		"published", len(r.Published),
		"failed", len(r.Failed),
	)

	if s.hooks.OnRun != nil {
		s.hooks.OnRun(outcome, r)
	}
	if s.hooks.OnSeen != nil && !r.DryRun {
		s.hooks.OnSeen(len(st.IDs), len(st.Titles))
	}
	return r, err
}

// State returns the current seen state.
func (s *Service) State(ctx context.Context) (*seen.State, error) {
	return s.store.Load(ctx)
}

// ResetState replaces the seen state with an empty one. It is the only way
// to recover from a missing or corrupt state and must be invoked by an
// operator explicitly.
func (s *Service) ResetState(ctx context.Context) error {
	lease, err := s.store.Lock(ctx)
	if err != nil {
		return fmt.Errorf("acquire seen state lease: %w", err)
	}
	defer func() { _ = lease.Release() }()

	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset seen state: %w", err)
	}
	s.logger.Warn(ctx, "seen state reset by operator")
	return nil
}
