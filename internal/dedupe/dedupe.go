// Package dedupe collapses a scored batch into one representative per story:
// exact URL dedupe first, then greedy title-similarity clustering with a
// consensus bonus for stories carried by several sources.
package dedupe

import (
	"sort"
	"strings"

	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/rules"
	"github.com/linnemanlabs/herald/internal/similarity"
)

// Hard drops every item whose canonical URL already appeared earlier in the
// batch. Items without a URL are keyed by ID, which is derived from the
// normalized title. Arrival order is preserved.
func Hard(items []item.Scored) []item.Scored {
	seen := make(map[string]struct{}, len(items))
	out := make([]item.Scored, 0, len(items))
	for _, it := range items {
		key := it.CanonicalURL
		if key == "" {
			key = "id:" + it.ID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Cluster is a non-empty group of near-duplicate items in arrival order.
type Cluster struct {
	Members []item.Scored

	sets []similarity.TokenSet
}

// Representative returns the index of the member that stands for the
// cluster: highest score, then earliest known publication time, then
// arrival order.
func (c *Cluster) Representative() int {
	best := 0
	for i := 1; i < len(c.Members); i++ {
		if better(&c.Members[i], &c.Members[best]) {
			best = i
		}
	}
	return best
}

func better(a, b *item.Scored) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	switch {
	case a.HasPublishedAt() && !b.HasPublishedAt():
		return true
	case !a.HasPublishedAt():
		return false
	}
	return a.PublishedAt.Before(b.PublishedAt)
}

// Sources returns the distinct source names in the cluster, in first-seen
// order. Names are compared case-insensitively.
func (c *Cluster) Sources() []string {
	seen := make(map[string]struct{}, len(c.Members))
	var out []string
	for _, m := range c.Members {
		name := strings.TrimSpace(m.SourceName)
		k := strings.ToLower(name)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Clusterer groups titles with the shared alias-aware normalizer.
type Clusterer struct {
	titles    *similarity.Normalizer
	threshold float64
	consensus []int
}

// New creates a Clusterer from a compiled rule set.
func New(set *rules.Set) *Clusterer {
	return &Clusterer{
		titles:    set.Titles,
		threshold: set.Thresholds.ClusterSimilarity,
		consensus: set.Consensus,
	}
}

// Cluster assigns each item to the first cluster whose seed title is at
// least threshold-similar, or starts a new cluster. Clusters whose
// representatives still end up similar are then merged until none are.
func (c *Clusterer) Cluster(items []item.Scored) []Cluster {
	var clusters []Cluster
	for _, it := range items {
		set := c.titles.Set(it.Title)
		placed := false
		for i := range clusters {
			if similarity.Jaccard(clusters[i].sets[0], set) >= c.threshold {
				clusters[i].Members = append(clusters[i].Members, it)
				clusters[i].sets = append(clusters[i].sets, set)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, Cluster{
				Members: []item.Scored{it},
				sets:    []similarity.TokenSet{set},
			})
		}
	}
	return c.mergeRepresentatives(clusters)
}

// mergeRepresentatives folds clusters together while any two
// representatives are threshold-similar, so no two survivors of a batch are
// near-duplicates of each other.
func (c *Clusterer) mergeRepresentatives(clusters []Cluster) []Cluster {
	for {
		merged := false
	scan:
		for i := 0; i < len(clusters); i++ {
			ri := clusters[i].Representative()
			for j := i + 1; j < len(clusters); j++ {
				rj := clusters[j].Representative()
				if similarity.Jaccard(clusters[i].sets[ri], clusters[j].sets[rj]) >= c.threshold {
					clusters[i].Members = append(clusters[i].Members, clusters[j].Members...)
					clusters[i].sets = append(clusters[i].sets, clusters[j].sets...)
					clusters = append(clusters[:j], clusters[j+1:]...)
					merged = true
					break scan
				}
			}
		}
		if !merged {
			return clusters
		}
	}
}

// Bonus is the consensus bonus for a story carried by n distinct sources:
// the n-th configured step, capped at the last one.
func (c *Clusterer) Bonus(n int) int {
	if n <= 0 || len(c.consensus) == 0 {
		return 0
	}
	if n > len(c.consensus) {
		n = len(c.consensus)
	}
	return c.consensus[n-1]
}

// Representatives returns one item per cluster with the consensus bonus
// applied and cluster metadata filled in, ranked by score.
func (c *Clusterer) Representatives(clusters []Cluster) []item.Scored {
	out := make([]item.Scored, 0, len(clusters))
	for i := range clusters {
		cl := &clusters[i]
		rep := cl.Members[cl.Representative()].Clone()
		sources := cl.Sources()
		bonus := c.Bonus(len(sources))

		if rep.Breakdown == nil {
			rep.Breakdown = item.Breakdown{}
		}
		rep.Breakdown[item.KeyConsensus] = bonus
		rep.Score += bonus
		rep.ClusterSize = len(cl.Members)
		rep.ClusterSources = sources
		out = append(out, rep)
	}
	item.SortByRank(out)
	return out
}

// Collapse runs both phases and returns the ranked representatives together
// with the clusters they came from.
func (c *Clusterer) Collapse(items []item.Scored) ([]item.Scored, []Cluster) {
	clusters := c.Cluster(Hard(items))
	return c.Representatives(clusters), clusters
}

// MemberIDs lists the IDs of every member that is not the representative.
func (cl *Cluster) MemberIDs() []string {
	rep := cl.Representative()
	ids := make([]string, 0, len(cl.Members)-1)
	for i, m := range cl.Members {
		if i != rep {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids
}
