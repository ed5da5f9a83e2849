package match

import (
	"reflect"
	"testing"

	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/rules"
)

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	r := rules.Default()
	r.Topics = []rules.Topic{
		{Name: "stablecoins", Any: []string{"stablecoin", "stablecoins", "usdc"}},
		{Name: "etf", Any: []string{"spot etf"}},
	}
	r.Keywords = []string{"stablecoin", "bitcoin", "etf", "blockchain"}
	r.Anchors = []string{"stablecoin", "blockchain", "crypto"}
	r.Noise = []string{"holiday", "savings"}
	r.TrustedSourceTypes = []string{"telegram"}
	s, err := rules.Compile(r)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return New(s)
}

func TestMatch(t *testing.T) {
	t.Parallel()

	m := newTestMatcher(t)

	tests := []struct {
		name       string
		it         item.Item
		want       Verdict
		wantTopics []string
		wantKW     []string
	}{
		{
			name:       "topic hit",
			it:         item.Item{Title: "Circle expands USDC to new chain", SourceType: item.SourceRSS},
			want:       Verdict{Accepted: true},
			wantTopics: []string{"stablecoins"},
		},
		{
			name:   "keyword with anchor",
			it:     item.Item{Title: "Bitcoin miners embrace blockchain analytics", SourceType: item.SourceRSS},
			want:   Verdict{Accepted: true},
			wantKW: []string{"bitcoin", "blockchain"},
		},
		{
			name:   "keyword without anchor",
			it:     item.Item{Title: "Bitcoin hits new high", SourceType: item.SourceRSS},
			want:   Verdict{Reason: ReasonNoAnchor},
			wantKW: []string{"bitcoin"},
		},
		{
			name:   "trusted source bypasses anchor",
			it:     item.Item{Title: "Bitcoin hits new high", SourceType: item.SourceTelegram},
			want:   Verdict{Accepted: true},
			wantKW: []string{"bitcoin"},
		},
		{
			name: "unmatched",
			it:   item.Item{Title: "Local team wins cup", SourceType: item.SourceRSS},
			want: Verdict{Reason: ReasonUnmatched},
		},
		{
			name:       "noise beats everything",
			it:         item.Item{Title: "Holiday stablecoin gift guide", SourceType: item.SourceTelegram},
			want:       Verdict{Reason: ReasonNoise},
			wantTopics: []string{"stablecoins"},
			wantKW:     []string{"stablecoin"},
		},
		{
			name:       "snippet counts",
			it:         item.Item{Title: "Fund filing", Snippet: "The spot ETF tracks bitcoin", SourceType: item.SourceRSS},
			want:       Verdict{Accepted: true},
			wantTopics: []string{"etf"},
			wantKW:     []string{"bitcoin", "etf"},
		},
		{
			name: "word boundary",
			it:   item.Item{Title: "Etfield bitcoinage", SourceType: item.SourceRSS},
			want: Verdict{Reason: ReasonUnmatched},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			it := tt.it
			got := m.Match(&it)
			if got != tt.want {
				t.Errorf("Match = %+v, want %+v", got, tt.want)
			}
			if len(it.MatchedTopics) != len(tt.wantTopics) || (len(tt.wantTopics) > 0 && !reflect.DeepEqual(it.MatchedTopics, tt.wantTopics)) {
				t.Errorf("MatchedTopics = %v, want %v", it.MatchedTopics, tt.wantTopics)
			}
			if !reflect.DeepEqual(it.MatchedKeywords, tt.wantKW) {
				t.Errorf("MatchedKeywords = %v, want %v", it.MatchedKeywords, tt.wantKW)
			}
		})
	}
}
