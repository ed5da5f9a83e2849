package alerting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/herald/internal/gate"
	"github.com/linnemanlabs/herald/internal/seen"
)

// Filter statuses that are not pool statuses.
const (
	FilterSeen     = "seen"
	FilterUnseen   = "unseen"
	FilterDraft    = "draft"
	FilterFiltered = "filtered"
	FilterPasses   = "passes"
)

// ErrBadFilter is returned for a filter the pool cannot be queried with.
var ErrBadFilter = errors.New("invalid filter")

// ErrAmbiguousID is returned when an ID prefix selects more than one entry.
var ErrAmbiguousID = errors.New("ambiguous id prefix")

// Query returns the entries of the latest pool that match f. Index always
// refers to the position in the full ranked pool, so it can be passed to
// ForcePublish regardless of the filter used to find it.
func (s *Service) Query(ctx context.Context, f Filter) ([]PoolEntry, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	pool, err := s.latestPool(ctx)
	if err != nil {
		return nil, err
	}
	st, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seen state: %w", err)
	}

	out := make([]PoolEntry, 0, len(pool.Entries))
	for _, e := range pool.Entries {
		e.Seen = st.HasID(e.Item.ID)
		if matches(e, f, pool.MinScore) {
			out = append(out, e)
		}
	}

	switch f.Sort {
	case "date":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Item.PublishedAt.After(out[j].Item.PublishedAt) })
	case "title":
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Item.Title) < strings.ToLower(out[j].Item.Title)
		})
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func validateFilter(f Filter) error {
	switch f.Sort {
	case "", "score", "date", "title":
	default:
		return fmt.Errorf("%w: sort %q", ErrBadFilter, f.Sort)
	}
	if f.MinScore != nil && f.MaxScore != nil && *f.MinScore > *f.MaxScore {
		return fmt.Errorf("%w: min_score %d above max_score %d", ErrBadFilter, *f.MinScore, *f.MaxScore)
	}
	if f.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrBadFilter)
	}
	if f.Status == "" {
		return nil
	}
	switch strings.ToLower(f.Status) {
	case FilterSeen, FilterUnseen, FilterDraft, FilterFiltered, FilterPasses, strings.ToLower(StatusClustered):
		return nil
	}
	for _, st := range gate.Statuses {
		if strings.EqualFold(f.Status, string(st)) {
			return nil
		}
	}
	return fmt.Errorf("%w: status %q", ErrBadFilter, f.Status)
}

func matches(e PoolEntry, f Filter, minScore int) bool {
	it := &e.Item
	if f.MinScore != nil && it.Score < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && it.Score > *f.MaxScore {
		return false
	}
	if f.Topic != "" && !anyContains(it.MatchedTopics, f.Topic) {
		return false
	}
	if f.Keyword != "" {
		kw := strings.ToLower(f.Keyword)
		hit := strings.Contains(strings.ToLower(it.Title), kw)
		for _, k := range it.MatchedKeywords {
			if strings.EqualFold(k, kw) {
				hit = true
			}
		}
		if !hit {
			return false
		}
	}

	switch strings.ToLower(f.Status) {
	case "":
		return true
	case FilterSeen:
		return e.Seen
	case FilterUnseen:
		return !e.Seen
	case FilterDraft:
		return e.Status == string(gate.StatusEmitted)
	case FilterFiltered:
		return it.Score < minScore
	case FilterPasses:
		return it.Score >= minScore
	}
	return strings.EqualFold(e.Status, f.Status)
}

func anyContains(list []string, sub string) bool {
	sub = strings.ToLower(sub)
	for _, v := range list {
		if strings.Contains(strings.ToLower(v), sub) {
			return true
		}
	}
	return false
}

func (s *Service) latestPool(ctx context.Context) (*Pool, error) {
	if s.pools == nil {
		return nil, ErrNoPool
	}
	return s.pools.LatestPool(ctx)
}

// Resolve maps a selection onto entries of p. Each entry appears at most
// once, in the order first selected; unknown indices and IDs are returned
// as missing. An exact ID wins over prefixes; a prefix shared by several
// entries selects none of them and is returned as ambiguous.
func Resolve(p *Pool, sel Selection) (picked []PoolEntry, missing, ambiguous []string) {
	taken := make(map[string]bool)
	take := func(e PoolEntry) {
		if !taken[e.Item.ID] {
			taken[e.Item.ID] = true
			picked = append(picked, e)
		}
	}

	for _, idx := range sel.Indices {
		if idx < 1 || idx > len(p.Entries) {
			missing = append(missing, "#"+strconv.Itoa(idx))
			continue
		}
		for _, e := range p.Entries {
			if e.Index == idx {
				take(e)
				break
			}
		}
	}

	for _, want := range sel.IDs {
		want = strings.TrimSpace(want)
		if want == "" {
			continue
		}
		var (
			exact    *PoolEntry
			prefixed []PoolEntry
		)
		for i, e := range p.Entries {
			if e.Item.ID == want {
				exact = &p.Entries[i]
				break
			}
			if strings.HasPrefix(e.Item.ID, want) {
				prefixed = append(prefixed, e)
			}
		}
		switch {
		case exact != nil:
			take(*exact)
		case len(prefixed) == 1:
			take(prefixed[0])
		case len(prefixed) > 1:
			ambiguous = append(ambiguous, want)
		default:
			missing = append(missing, want)
		}
	}
	return picked, missing, ambiguous
}

// ForcePublish sends selected pool entries straight to the publisher,
// bypassing the score threshold and the seen checks. With MarkSeen, each
// confirmed delivery is committed so the automatic run never reposts it.
func (s *Service) ForcePublish(ctx context.Context, sel Selection, opts ForceOptions) (*ForceReport, error) {
	ctx, span := tracer.Start(ctx, "alerting.ForcePublish", trace.WithAttributes(
		attribute.Int("herald.selection.indices", len(sel.Indices)),
		attribute.Int("herald.selection.ids", len(sel.IDs)),
		attribute.Bool("herald.force.dry_run", opts.DryRun),
		attribute.Bool("herald.force.mark_seen", opts.MarkSeen),
	))
	defer span.End()

	fail := func(err error) (*ForceReport, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	pool, err := s.latestPool(ctx)
	if err != nil {
		return fail(err)
	}
	picked, missing, ambiguous := Resolve(pool, sel)
	if len(ambiguous) > 0 {
		return fail(fmt.Errorf("%w: %s", ErrAmbiguousID, strings.Join(ambiguous, ", ")))
	}
	report := &ForceReport{Selected: picked, Missing: missing, DryRun: opts.DryRun, Published: []string{}}

	L := s.logger.With("run_id", pool.RunID)
	ctx = log.WithContext(ctx, L)

	if opts.DryRun {
		for _, e := range picked {
			report.Previews = append(report.Previews, NewAlert(e.Item, pool.RunID, true))
		}
		return report, nil
	}
	if len(picked) == 0 {
		return report, nil
	}

	var (
		st    *seen.State
		lease seen.Lease
	)
	if opts.MarkSeen {
		lease, err = s.store.Lock(ctx)
		if err != nil {
			return fail(fmt.Errorf("acquire seen state lease: %w", err))
		}
		defer func() { _ = lease.Release() }()

		st, err = s.store.Load(ctx)
		if err != nil {
			return fail(fmt.Errorf("load seen state: %w", err))
		}
	}

	recordTitle := s.engine.Rules().ManualOverride.RecordTitle
	var errs []error
	for _, e := range picked {
		alert := NewAlert(e.Item, pool.RunID, true)
		if err := s.publish(ctx, alert); err != nil {
			report.Failed = append(report.Failed, FailedAlert{ID: alert.ID, Title: alert.Title, Error: err.Error()})
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrPublish, alert.ID, err))
			continue
		}
		report.Published = append(report.Published, alert.ID)

		if st == nil {
			continue
		}
		if recordTitle {
			s.engine.Gate().Commit(st, e.Item, s.now())
		} else {
			s.engine.Gate().CommitID(st, e.Item, s.now())
		}
		if err := s.store.Save(ctx, st); err != nil {
			L.Error(ctx, err, "delivered alert could not be marked seen", "item_id", alert.ID)
			return report, fmt.Errorf("save seen state: %w", err)
		}
		report.MarkedSeen++
	}

	L.Info(ctx, "manual publish complete",
		"selected", len(picked),
		"missing", len(missing),
		"published", len(report.Published),
		"failed", len(report.Failed),
		"marked_seen", report.MarkedSeen,
	)
	if st != nil && s.hooks.OnSeen != nil {
		s.hooks.OnSeen(len(st.IDs), len(st.Titles))
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	return report, nil
}
