// Package match tags items with topics, keywords and anchor terms and applies
// the pre-scoring hard filters.
package match

import (
	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/rules"
)

// Reason explains why the matcher rejected an item.
type Reason string

const (
	// ReasonNone means the item was accepted.
	ReasonNone Reason = ""

	// ReasonNoise means a noise term matched.
	ReasonNoise Reason = "noise"

	// ReasonUnmatched means no topic and no keyword matched.
	ReasonUnmatched Reason = "unmatched"

	// ReasonNoAnchor means no topic and no anchor term matched and the
	// source type is not trusted.
	ReasonNoAnchor Reason = "no_anchor"
)

// Verdict is the matcher's decision for one item.
type Verdict struct {
	Accepted bool
	Reason   Reason
}

// Matcher applies compiled topic, keyword and anchor tables.
type Matcher struct {
	set *rules.Set
}

// New creates a Matcher.
func New(set *rules.Set) *Matcher {
	return &Matcher{set: set}
}

// Match fills MatchedTopics, MatchedKeywords and MatchedAnchors on it and
// decides whether it continues to scoring.
func (m *Matcher) Match(it *item.Item) Verdict {
	text := it.Text()

	it.MatchedTopics = it.MatchedTopics[:0]
	for _, tp := range m.set.TopicTerms {
		if tp.Terms.Any(text) {
			it.MatchedTopics = append(it.MatchedTopics, tp.Name)
		}
	}
	it.MatchedKeywords = m.set.KeywordSet.Matches(text)
	it.MatchedAnchors = m.set.AnchorSet.Matches(text)

	if m.set.NoiseSet.Any(text) {
		return Verdict{Reason: ReasonNoise}
	}
	if len(it.MatchedTopics) == 0 && len(it.MatchedKeywords) == 0 {
		return Verdict{Reason: ReasonUnmatched}
	}
	if len(it.MatchedTopics) == 0 && len(it.MatchedAnchors) == 0 && !m.set.Trusted[it.SourceType] {
		return Verdict{Reason: ReasonNoAnchor}
	}
	return Verdict{Accepted: true}
}
