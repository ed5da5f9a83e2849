// Package gate decides which representatives of a run become alerts.
//
// Every candidate ends in exactly one state: rejected for its score,
// rejected because its ID was already published, rejected because its title
// is a near-duplicate of something already published, or emitted. Evaluate
// never touches the seen state; Commit records an item only after the
// caller has confirmed its delivery.
package gate

import (
	"strings"
	"time"

	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/rules"
	"github.com/linnemanlabs/herald/internal/seen"
	"github.com/linnemanlabs/herald/internal/similarity"
)

// Status is the terminal state of a candidate.
type Status string

const (
	StatusRejectedScore       Status = "REJECTED_SCORE"
	StatusRejectedSeenID      Status = "REJECTED_SEEN_ID"
	StatusRejectedSeenSimilar Status = "REJECTED_SEEN_SIMILAR"
	StatusEmitted             Status = "EMITTED"
)

// Statuses lists every terminal state in reporting order.
var Statuses = []Status{StatusRejectedScore, StatusRejectedSeenID, StatusRejectedSeenSimilar, StatusEmitted}

// Decision is the outcome for one candidate.
type Decision struct {
	Item   item.Scored `json:"item"`
	Status Status      `json:"status"`

	// set for REJECTED_SEEN_SIMILAR
	SimilarTo  string  `json:"similar_to,omitempty"`
	Similarity float64 `json:"similarity,omitempty"`
}

// Summary counts candidates per terminal state.
type Summary struct {
	Candidates          int `json:"candidates"`
	RejectedScore       int `json:"rejected_score"`
	RejectedSeenID      int `json:"rejected_seen_id"`
	RejectedSeenSimilar int `json:"rejected_seen_similar"`
	Emitted             int `json:"emitted"`
}

func (s *Summary) add(st Status) {
	s.Candidates++
	switch st {
	case StatusRejectedScore:
		s.RejectedScore++
	case StatusRejectedSeenID:
		s.RejectedSeenID++
	case StatusRejectedSeenSimilar:
		s.RejectedSeenSimilar++
	case StatusEmitted:
		s.Emitted++
	}
}

// Count returns the number of candidates that ended in st.
func (s Summary) Count(st Status) int {
	switch st {
	case StatusRejectedScore:
		return s.RejectedScore
	case StatusRejectedSeenID:
		return s.RejectedSeenID
	case StatusRejectedSeenSimilar:
		return s.RejectedSeenSimilar
	case StatusEmitted:
		return s.Emitted
	}
	return 0
}

// Evaluation is the gate's verdict on a batch.
type Evaluation struct {
	Decisions []Decision    `json:"decisions"`
	Drafts    []item.Scored `json:"drafts"`
	Summary   Summary       `json:"summary"`
}

// Gate filters candidates against the score threshold and the seen state.
type Gate struct {
	titles   *similarity.Normalizer
	minScore int
	history  float64
	cluster  float64
	window   time.Duration
	limits   seen.Limits
}

// New creates a Gate from a compiled rule set.
func New(set *rules.Set) *Gate {
	return &Gate{
		titles:   set.Titles,
		minScore: set.Thresholds.MinScore,
		history:  set.Thresholds.HistorySimilarity,
		cluster:  set.Thresholds.ClusterSimilarity,
		window:   time.Duration(set.Seen.TitleWindowHours) * time.Hour,
		limits:   seen.Limits{MaxIDs: set.Seen.MaxIDs, MaxTitles: set.Seen.MaxTitles},
	}
}

type remembered struct {
	id  string
	set similarity.TokenSet
}

// Evaluate decides every candidate in order. Candidates are expected in
// rank order so that, among near-duplicates, the stronger one is emitted.
func (g *Gate) Evaluate(candidates []item.Scored, st *seen.State, now time.Time) Evaluation {
	history := g.historySets(st, now)
	var drafted []remembered

	ev := Evaluation{Decisions: make([]Decision, 0, len(candidates))}
	for _, it := range candidates {
		d := Decision{Item: it}
		set := g.titles.Set(it.Title)

		switch {
		case it.Score < g.minScore:
			d.Status = StatusRejectedScore
		case st.HasID(it.ID):
			d.Status = StatusRejectedSeenID
		default:
			if id, sim, ok := closest(set, history, func(s float64) bool { return s > g.history }); ok {
				d.Status, d.SimilarTo, d.Similarity = StatusRejectedSeenSimilar, id, sim
				break
			}
			// an earlier draft of this same run counts as already seen
			if id, sim, ok := closest(set, drafted, func(s float64) bool { return s >= g.cluster }); ok {
				d.Status, d.SimilarTo, d.Similarity = StatusRejectedSeenSimilar, id, sim
				break
			}
			d.Status = StatusEmitted
			drafted = append(drafted, remembered{id: it.ID, set: set})
			ev.Drafts = append(ev.Drafts, it)
		}

		ev.Summary.add(d.Status)
		ev.Decisions = append(ev.Decisions, d)
	}
	return ev
}

func (g *Gate) historySets(st *seen.State, now time.Time) []remembered {
	recent := st.RecentTitles(now, g.window)
	out := make([]remembered, 0, len(recent))
	for _, t := range recent {
		// re-normalize the stored title so alias table changes apply to history
		set := g.titles.Set(t.Title)
		if len(set) == 0 {
			set = similarity.NewTokenSet(strings.Fields(t.Fingerprint))
		}
		out = append(out, remembered{id: t.ID, set: set})
	}
	return out
}

func closest(set similarity.TokenSet, pool []remembered, match func(float64) bool) (string, float64, bool) {
	var (
		bestID  string
		bestSim float64
		found   bool
	)
	for _, r := range pool {
		sim := similarity.Jaccard(set, r.set)
		if match(sim) && (!found || sim > bestSim) {
			bestID, bestSim, found = r.id, sim, true
		}
	}
	return bestID, bestSim, found
}

// Commit records a delivered item's ID and title fingerprint.
func (g *Gate) Commit(st *seen.State, it item.Scored, at time.Time) {
	st.Record(seen.Title{
		Title:       it.Title,
		Fingerprint: g.titles.Fingerprint(it.Title),
		ID:          it.ID,
		SeenAt:      at.UTC(),
	}, g.limits)
	st.UpdatedAt = at.UTC()
}

// CommitID records only a delivered item's ID, leaving its title out of the
// history check.
func (g *Gate) CommitID(st *seen.State, it item.Scored, at time.Time) {
	st.Record(seen.Title{ID: it.ID}, g.limits)
	st.UpdatedAt = at.UTC()
}
