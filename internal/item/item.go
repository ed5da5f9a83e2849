// Package item defines the records that flow through the herald pipeline:
// raw collaborator input, normalized items, and scored items.
package item

import (
	"sort"
	"time"
)

// SourceType classifies where an item came from.
type SourceType string

const (
	// SourceRSS is edited feed copy (RSS/Atom).
	SourceRSS SourceType = "rss"

	// SourceTelegram is a chat channel scrape.
	SourceTelegram SourceType = "telegram"

	// SourceAggregator is a news aggregator such as Google News.
	SourceAggregator SourceType = "aggregator"

	// SourceUnknown is used when the collaborator did not say.
	SourceUnknown SourceType = "unknown"
)

// ParseSourceType maps free-form input onto a known SourceType.
func ParseSourceType(s string) SourceType {
	switch SourceType(s) {
	case SourceRSS, SourceTelegram, SourceAggregator:
		return SourceType(s)
	}
	return SourceUnknown
}

// Confidence describes how the publication timestamp was obtained.
type Confidence string

const (
	// ConfidenceHigh means a structured timestamp was supplied.
	ConfidenceHigh Confidence = "high"

	// ConfidenceMedium means the timestamp was parsed from free text.
	ConfidenceMedium Confidence = "medium"

	// ConfidenceLow means no usable timestamp; freshness is unknown.
	ConfidenceLow Confidence = "low"
)

// Item is a normalized record. It is created by the normalizer and enriched
// by the matcher.
type Item struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Link            string     `json:"link"`
	CanonicalURL    string     `json:"canonical_url"`
	Snippet         string     `json:"snippet"`
	SourceName      string     `json:"source_name"`
	SourceType      SourceType `json:"source_type"`
	PublishedAt     time.Time  `json:"published_at,omitzero"`
	DateConfidence  Confidence `json:"published_at_confidence"`
	MatchedTopics   []string   `json:"matched_topics"`
	MatchedKeywords []string   `json:"matched_keywords"`
	MatchedAnchors  []string   `json:"matched_anchors,omitempty"`
}

// HasPublishedAt reports whether the publication time is known.
func (it *Item) HasPublishedAt() bool {
	return !it.PublishedAt.IsZero()
}

// Text is the blob patterns are matched against.
func (it *Item) Text() string {
	if it.Snippet == "" {
		return it.Title
	}
	return it.Title + "\n" + it.Snippet
}

// Breakdown maps score component names to their contribution. Values always
// sum to the item's score; the "override" entry carries any floor or ceiling
// adjustment.
type Breakdown map[string]int

// Breakdown keys.
const (
	KeyTier1       = "tier1"
	KeyTier2       = "tier2"
	KeyInstitution = "institution_bonus"
	KeyMagnitude   = "magnitude_bonus"
	KeyRegulatory  = "regulatory_bonus"
	KeyCommentary  = "commentary_penalty"
	KeyListicle    = "listicle_penalty"
	KeyGeneric     = "generic_penalty"
	KeySource      = "source_penalty"
	KeyFreshness   = "freshness"
	KeyOverride    = "override"
	KeyConsensus   = "consensus_bonus"
)

// Sum adds up all components.
func (b Breakdown) Sum() int {
	var n int
	for _, v := range b {
		n += v
	}
	return n
}

// Clone returns an independent copy.
func (b Breakdown) Clone() Breakdown {
	out := make(Breakdown, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Signals are the raw hit counts the scorer observed. They are kept for
// auditing and are not part of the score sum.
type Signals struct {
	Tier1       int    `json:"tier1"`
	Tier2       int    `json:"tier2"`
	Commentary  int    `json:"commentary"`
	Listicle    int    `json:"listicle"`
	Generic     int    `json:"generic"`
	Override    string `json:"override,omitempty"`
	HardReject  bool   `json:"hard_reject,omitempty"`
	CentralBank bool   `json:"central_bank,omitempty"`
}

// Scored is an Item with its score.
type Scored struct {
	Item
	Score          int       `json:"score"`
	Breakdown      Breakdown `json:"score_breakdown"`
	Signals        Signals   `json:"signals"`
	ClusterSize    int       `json:"cluster_size,omitempty"`
	ClusterSources []string  `json:"cluster_sources,omitempty"`
}

// Clone returns a copy that shares no mutable state with s.
func (s Scored) Clone() Scored {
	cp := s
	cp.Breakdown = s.Breakdown.Clone()
	cp.MatchedTopics = append([]string(nil), s.MatchedTopics...)
	cp.MatchedKeywords = append([]string(nil), s.MatchedKeywords...)
	cp.MatchedAnchors = append([]string(nil), s.MatchedAnchors...)
	cp.ClusterSources = append([]string(nil), s.ClusterSources...)
	return cp
}

// SortByRank orders items by score descending, newest first on ties, then by ID
// so the order is total.
func SortByRank(items []Scored) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ID < b.ID
	})
}
