package alerting

import (
	"time"

	"github.com/linnemanlabs/herald/internal/gate"
	"github.com/linnemanlabs/herald/internal/item"
)

// Alert is the record handed to publishers. Formatting is the publisher's
// concern.
type Alert struct {
	ID             string          `json:"id"`
	RunID          string          `json:"run_id,omitempty"`
	Title          string          `json:"title"`
	Link           string          `json:"link"`
	Snippet        string          `json:"snippet,omitempty"`
	Score          int             `json:"score"`
	MatchedTopics  []string        `json:"matched_topics"`
	Source         string          `json:"source"`
	SourceType     item.SourceType `json:"source_type"`
	PublishedAt    time.Time       `json:"published_at,omitzero"`
	ClusterSources []string        `json:"cluster_sources,omitempty"`

	// Manual marks force-published alerts so adapters can label them.
	Manual bool `json:"manual,omitempty"`
}

// NewAlert builds the publisher record for a scored item.
func NewAlert(it item.Scored, runID string, manual bool) *Alert {
	link := it.Link
	if link == "" {
		link = it.CanonicalURL
	}
	return &Alert{
		ID:             it.ID,
		RunID:          runID,
		Title:          it.Title,
		Link:           link,
		Snippet:        it.Snippet,
		Score:          it.Score,
		MatchedTopics:  append([]string(nil), it.MatchedTopics...),
		Source:         it.SourceName,
		SourceType:     it.SourceType,
		PublishedAt:    it.PublishedAt,
		ClusterSources: append([]string(nil), it.ClusterSources...),
		Manual:         manual,
	}
}

// Pool statuses besides the gate's own.
const (
	// StatusClustered marks a near-duplicate folded into another item.
	StatusClustered = "CLUSTERED"
)

// PoolEntry is one scored item of a run as seen by the override surface.
type PoolEntry struct {
	// Index is the 1-based position in the score-ranked pool.
	Index int         `json:"index"`
	Item  item.Scored `json:"item"`

	// Status is a gate status for representatives, or CLUSTERED.
	Status           string `json:"status"`
	RepresentativeID string `json:"representative_id,omitempty"`
	Published        bool   `json:"published,omitempty"`

	// Seen is filled at query time from the current seen state.
	Seen bool `json:"seen"`
}

// Pool is the post-scoring item pool of one run.
type Pool struct {
	RunID     string      `json:"run_id"`
	CreatedAt time.Time   `json:"created_at"`
	MinScore  int         `json:"min_score"`
	Entries   []PoolEntry `json:"entries"`
}

// IngestCounts tallies what happened to raw records before the gate.
type IngestCounts struct {
	Raw             int `json:"raw"`
	Dropped         int `json:"dropped"`
	Stale           int `json:"stale"`
	Noise           int `json:"noise"`
	Unmatched       int `json:"unmatched"`
	NoAnchor        int `json:"no_anchor"`
	Scored          int `json:"scored"`
	DuplicateURL    int `json:"duplicate_url"`
	Clustered       int `json:"clustered"`
	Representatives int `json:"representatives"`
}

// FailedAlert is a draft whose delivery failed and which stays eligible for
// the next run.
type FailedAlert struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Error string `json:"error"`
}

// RunReport summarizes one run.
type RunReport struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Duration  float64         `json:"duration_seconds"`
	DryRun    bool            `json:"dry_run,omitempty"`
	Ingest    IngestCounts    `json:"ingest"`
	Gate      gate.Summary    `json:"gate"`
	Decisions []gate.Decision `json:"decisions,omitempty"`
	Drafts    []*Alert        `json:"drafts"`
	Published []string        `json:"published"`
	Failed    []FailedAlert   `json:"failed,omitempty"`
	SeenSizes map[string]int  `json:"seen_sizes,omitempty"`
}

// Filter narrows a pool query. Zero values match everything.
type Filter struct {
	MinScore *int
	MaxScore *int

	// Topic matches a matched topic by case-insensitive substring.
	Topic string

	// Keyword matches a matched keyword exactly or the title by substring,
	// both case-insensitively.
	Keyword string

	// Status is one of seen, unseen, draft, filtered, passes, or a pool
	// status such as REJECTED_SEEN_SIMILAR.
	Status string

	// Sort is score (default), date or title.
	Sort  string
	Limit int
}

// Selection picks pool entries by 1-based index or by full or prefix ID.
type Selection struct {
	Indices []int
	IDs     []string
}

// ForceOptions controls a manual publish.
type ForceOptions struct {
	DryRun bool

	// MarkSeen records published items in the seen state so the automatic
	// run never reposts them.
	MarkSeen bool
}

// ForceReport is the outcome of a manual publish.
type ForceReport struct {
	Selected   []PoolEntry   `json:"selected"`
	Missing    []string      `json:"missing,omitempty"`
	DryRun     bool          `json:"dry_run,omitempty"`
	Previews   []*Alert      `json:"previews,omitempty"`
	Published  []string      `json:"published"`
	Failed     []FailedAlert `json:"failed,omitempty"`
	MarkedSeen int           `json:"marked_seen"`
}
