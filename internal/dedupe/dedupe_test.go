package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/rules"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func scored(id, title, source string, score int) item.Scored {
	return item.Scored{
		Item: item.Item{
			ID:           id,
			Title:        title,
			CanonicalURL: "https://example.com/" + id,
			SourceName:   source,
			SourceType:   item.SourceRSS,
		},
		Score:     score,
		Breakdown: item.Breakdown{item.KeyTier1: score},
	}
}

func newClusterer(t *testing.T, mutate func(r *rules.Rules)) *Clusterer {
	t.Helper()
	r := rules.Default()
	if mutate != nil {
		mutate(r)
	}
	set, err := rules.Compile(r)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return New(set)
}

func TestHard(t *testing.T) {
	t.Parallel()

	a := scored("a", "First", "Reuters", 10)
	b := scored("b", "Second", "Reuters", 20)
	dupA := scored("a2", "First again", "Bloomberg", 99)
	dupA.CanonicalURL = a.CanonicalURL

	noURL1 := scored("t1", "No link", "Telegram", 5)
	noURL1.CanonicalURL = ""
	noURL2 := noURL1
	noURL2.SourceName = "Other"

	got := Hard([]item.Scored{a, b, dupA, noURL1, noURL2})
	if len(got) != 3 {
		t.Fatalf("Hard returned %d items, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "t1"} {
		if got[i].ID != want {
			t.Errorf("got[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
	if got[2].SourceName != "Telegram" {
		t.Errorf("first occurrence should win, got source %q", got[2].SourceName)
	}
}

func TestCollapse_AliasAwareCluster(t *testing.T) {
	t.Parallel()

	c := newClusterer(t, nil)

	items := []item.Scored{
		scored("a", "JPMorgan launches Bitcoin ETF", "Reuters", 60),
		scored("b", "JP Morgan debuts BTC exchange-traded fund", "CoinDesk", 55),
		scored("c", "Circle unveils euro stablecoin", "The Block", 50),
	}

	reps, clusters := c.Collapse(items)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}
	if len(reps) != 2 {
		t.Fatalf("got %d representatives, want 2", len(reps))
	}

	jpm := reps[0]
	if jpm.ID != "a" {
		t.Fatalf("top representative = %s, want a", jpm.ID)
	}
	if jpm.ClusterSize != 2 {
		t.Errorf("cluster size = %d, want 2", jpm.ClusterSize)
	}
	if jpm.Score != 60+5 {
		t.Errorf("score = %d, want base 60 plus consensus 5", jpm.Score)
	}
	if jpm.Breakdown[item.KeyConsensus] != 5 {
		t.Errorf("consensus_bonus = %d, want 5", jpm.Breakdown[item.KeyConsensus])
	}
	if jpm.Breakdown.Sum() != jpm.Score {
		t.Errorf("breakdown sums to %d, score is %d", jpm.Breakdown.Sum(), jpm.Score)
	}
	if len(jpm.ClusterSources) != 2 || jpm.ClusterSources[0] != "Reuters" || jpm.ClusterSources[1] != "CoinDesk" {
		t.Errorf("cluster sources = %v", jpm.ClusterSources)
	}

	single := reps[1]
	if _, ok := single.Breakdown[item.KeyConsensus]; !ok {
		t.Error("consensus_bonus should be present even when zero")
	}
	if single.Score != 50 || single.ClusterSize != 1 {
		t.Errorf("singleton = score %d size %d, want 50 and 1", single.Score, single.ClusterSize)
	}

	if items[0].Score != 60 {
		t.Error("Collapse mutated its input")
	}
}

func TestRepresentative_TieBreaks(t *testing.T) {
	t.Parallel()

	undated := scored("u", "x", "s", 40)
	late := scored("l", "x", "s", 40)
	late.PublishedAt = t0.Add(time.Hour)
	early := scored("e", "x", "s", 40)
	early.PublishedAt = t0
	high := scored("h", "x", "s", 41)

	tests := []struct {
		name    string
		members []item.Scored
		want    string
	}{
		{"highest score", []item.Scored{undated, high, early}, "h"},
		{"earliest published", []item.Scored{late, early, undated}, "e"},
		{"unknown date last", []item.Scored{undated, late}, "l"},
		{"arrival order", []item.Scored{undated, scored("u2", "x", "s", 40)}, "u"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cl := Cluster{Members: tt.members}
			if got := cl.Members[cl.Representative()].ID; got != tt.want {
				t.Errorf("representative = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRepresentatives_MonotonicConsensus(t *testing.T) {
	t.Parallel()

	c := newClusterer(t, nil)

	prev := -1
	for k := 1; k <= 7; k++ {
		members := make([]item.Scored, k)
		for i := range members {
			members[i] = scored(fmt.Sprintf("m%d", i), "Visa settles stablecoin payments", fmt.Sprintf("Source %d", i), 40)
		}
		reps := c.Representatives([]Cluster{{Members: members}})
		got := reps[0].Score
		if got < prev {
			t.Errorf("size %d scored %d, below size %d's %d", k, got, k-1, prev)
		}
		if got > 40+15 {
			t.Errorf("size %d scored %d, above the cap", k, got)
		}
		prev = got
	}
	if prev != 55 {
		t.Errorf("large cluster score = %d, want capped 55", prev)
	}
}

func TestRepresentatives_RepeatedSourceCountsOnce(t *testing.T) {
	t.Parallel()

	c := newClusterer(t, nil)
	members := []item.Scored{
		scored("a", "Visa settles stablecoin payments", "Reuters", 40),
		scored("b", "Visa settles stablecoin payments", "reuters ", 30),
		scored("c", "Visa settles stablecoin payments", "REUTERS", 20),
	}
	reps := c.Representatives([]Cluster{{Members: members}})
	if reps[0].Breakdown[item.KeyConsensus] != 0 {
		t.Errorf("consensus = %d, want 0 for a single source", reps[0].Breakdown[item.KeyConsensus])
	}
	if reps[0].ClusterSize != 3 {
		t.Errorf("cluster size = %d, want 3", reps[0].ClusterSize)
	}
}

func TestCluster_MergesSimilarRepresentatives(t *testing.T) {
	t.Parallel()

	c := newClusterer(t, func(r *rules.Rules) {
		r.Thresholds.ClusterSimilarity = 0.5
	})

	items := []item.Scored{
		scored("1", "alpha beta gamma delta", "A", 10),
		scored("2", "alpha beta gamma epsilon", "B", 90),
		scored("3", "epsilon zeta alpha beta", "C", 20),
	}

	clusters := c.Cluster(items)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1 after merging representatives", len(clusters))
	}
	cl := clusters[0]
	if got := cl.Members[cl.Representative()].ID; got != "2" {
		t.Errorf("representative = %s, want 2", got)
	}
	if ids := cl.MemberIDs(); len(ids) != 2 || ids[0] != "1" || ids[1] != "3" {
		t.Errorf("MemberIDs = %v, want [1 3]", ids)
	}
}

func TestCollapse_NoSimilarRepresentatives(t *testing.T) {
	t.Parallel()

	c := newClusterer(t, nil)
	titles := []string{
		"SEC approves spot ether ETF",
		"Spot ether ETF approved by SEC - Reuters",
		"Circle launches euro stablecoin",
		"Circle debuts euro stablecoin | Bloomberg",
		"Fed outlines tokenized deposit guidance",
		"Bank of England opens stablecoin consultation",
		"BoE opens stablecoin consultation",
	}
	items := make([]item.Scored, len(titles))
	for i, title := range titles {
		items[i] = scored(fmt.Sprintf("i%d", i), title, fmt.Sprintf("S%d", i), 40+i)
	}

	reps, _ := c.Collapse(items)
	if len(reps) != 4 {
		t.Errorf("got %d representatives, want 4", len(reps))
	}
	for i := range reps {
		for j := i + 1; j < len(reps); j++ {
			if sim := c.titles.Similarity(reps[i].Title, reps[j].Title); sim >= c.threshold {
				t.Errorf("%q and %q both survived with similarity %.2f", reps[i].Title, reps[j].Title, sim)
			}
		}
	}
	for i := 1; i < len(reps); i++ {
		if reps[i].Score > reps[i-1].Score {
			t.Errorf("representatives not ranked: %d before %d", reps[i-1].Score, reps[i].Score)
		}
	}
}

func TestBonus(t *testing.T) {
	t.Parallel()

	c := newClusterer(t, nil)
	for n, want := range map[int]int{0: 0, 1: 0, 2: 5, 3: 10, 4: 15, 9: 15} {
		if got := c.Bonus(n); got != want {
			t.Errorf("Bonus(%d) = %d, want %d", n, got, want)
		}
	}
}
