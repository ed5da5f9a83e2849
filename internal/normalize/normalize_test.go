package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/rules"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	return New(rules.MustDefaultSet())
}

func TestCanonicalURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase scheme and host", "HTTPS://WWW.Example.COM/News/Item", "https://example.com/News/Item"},
		{"strip utm and click ids", "https://example.com/a?utm_source=x&id=7&fbclid=abc&UTM_Medium=y&gclid=z", "https://example.com/a?id=7"},
		{"sort query", "https://example.com/a?b=2&a=1&a=0", "https://example.com/a?a=0&a=1&b=2"},
		{"drop default port", "https://example.com:443/a", "https://example.com/a"},
		{"keep custom port", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"drop fragment", "https://example.com/a#section", "https://example.com/a"},
		{"trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"root path kept", "https://example.com/", "https://example.com/"},
		{"mailchimp ids", "https://example.com/a?mc_cid=1&mc_eid=2", "https://example.com/a"},
		{"relative rejected", "/news/1", ""},
		{"garbage rejected", "not a url", ""},
		{"empty", "  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := CanonicalURL(tt.in); got != tt.want {
				t.Errorf("CanonicalURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  plain   text ", "plain text"},
		{"tags", "<p>Circle <b>launches</b> EURC</p>", "Circle launches EURC"},
		{"entities", "Fees &amp; rates", "Fees & rates"},
		{"script-free link", `<a href="https://x">read more</a>`, "read more"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := StripHTML(tt.in); got != tt.want {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_DropsRecordWithoutTitleOrLink(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(t)
	if _, ok := n.Normalize(item.Raw{"snippet": "orphan"}); ok {
		t.Fatal("record without title and link should be dropped")
	}
}

func TestNormalize_Defaults(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(t)
	it, ok := n.Normalize(item.Raw{"title": "Only a title"})
	if !ok {
		t.Fatal("record with a title should be kept")
	}
	if it.SourceName != "Unknown" {
		t.Errorf("SourceName = %q, want Unknown", it.SourceName)
	}
	if it.SourceType != item.SourceUnknown {
		t.Errorf("SourceType = %q, want unknown", it.SourceType)
	}
	if it.HasPublishedAt() || it.DateConfidence != item.ConfidenceLow {
		t.Errorf("published = %v (%s), want unknown/low", it.PublishedAt, it.DateConfidence)
	}
	if it.CanonicalURL != "" {
		t.Errorf("CanonicalURL = %q, want empty", it.CanonicalURL)
	}
	if len(it.ID) != 64 {
		t.Errorf("ID = %q, want sha256 hex", it.ID)
	}
}

func TestNormalize_AlternateKeys(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(t)
	it, ok := n.Normalize(item.Raw{
		"title":       "Visa   expands stablecoin settlement",
		"url":         "https://www.visa.com/news?utm_campaign=x",
		"description": "<p>Visa said <i>today</i>.</p>",
		"source":      "Visa Newsroom",
		"source_type": "RSS",
		"published":   "Mon, 02 Mar 2026 10:15:00 +0100",
	})
	if !ok {
		t.Fatal("Normalize dropped a valid record")
	}
	if it.Title != "Visa expands stablecoin settlement" {
		t.Errorf("Title = %q", it.Title)
	}
	if it.CanonicalURL != "https://visa.com/news" {
		t.Errorf("CanonicalURL = %q", it.CanonicalURL)
	}
	if it.Snippet != "Visa said today." {
		t.Errorf("Snippet = %q", it.Snippet)
	}
	if it.SourceName != "Visa Newsroom" {
		t.Errorf("SourceName = %q", it.SourceName)
	}
	if it.SourceType != item.SourceRSS {
		t.Errorf("SourceType = %q, want rss", it.SourceType)
	}
	want := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	if !it.PublishedAt.Equal(want) || it.PublishedAt.Location() != time.UTC {
		t.Errorf("PublishedAt = %v, want %v UTC", it.PublishedAt, want)
	}
	if it.DateConfidence != item.ConfidenceMedium {
		t.Errorf("DateConfidence = %q, want medium", it.DateConfidence)
	}
}

func TestNormalize_StructuredTimeWins(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(t)
	it, _ := n.Normalize(item.Raw{
		"title":            "x",
		"published_parsed": []any{2026.0, 1.0, 2.0, 3.0, 4.0, 5.0},
		"published":        "garbage",
	})
	if it.DateConfidence != item.ConfidenceHigh {
		t.Errorf("DateConfidence = %q, want high", it.DateConfidence)
	}
}

func TestNormalize_IntUnixTimestampIsStructured(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := newTestNormalizer(t)
	it, _ := n.Normalize(item.Raw{
		"title":        "x",
		"published_ts": int(want.Unix()),
	})
	if it.DateConfidence != item.ConfidenceHigh {
		t.Errorf("DateConfidence = %q, want high", it.DateConfidence)
	}
	if !it.PublishedAt.Equal(want) {
		t.Errorf("PublishedAt = %v, want %v", it.PublishedAt, want)
	}
}

func TestNormalize_UnparsableDateFailsSoft(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(t)
	it, ok := n.Normalize(item.Raw{"title": "x", "published": "sometime last week"})
	if !ok {
		t.Fatal("unparsable date must not drop the record")
	}
	if it.HasPublishedAt() || it.DateConfidence != item.ConfidenceLow {
		t.Errorf("published = %v (%s), want unknown/low", it.PublishedAt, it.DateConfidence)
	}
}

func TestNormalize_SnippetTruncated(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(t)
	it, _ := n.Normalize(item.Raw{"title": "x", "snippet": strings.Repeat("é", 500)})
	if got := len([]rune(it.Snippet)); got != 300 {
		t.Errorf("snippet runes = %d, want 300", got)
	}
}

func TestNormalize_StableIDs(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer(t)

	a, _ := n.Normalize(item.Raw{"title": "A", "link": "https://example.com/x?utm_source=feed"})
	b, _ := n.Normalize(item.Raw{"title": "Different title", "link": "https://WWW.example.com/x"})
	if a.ID != b.ID {
		t.Error("same canonical URL should give same ID")
	}

	c, _ := n.Normalize(item.Raw{"title": "Circle launches EURC - Reuters"})
	d, _ := n.Normalize(item.Raw{"title": "circle launches eurc"})
	if c.ID != d.ID {
		t.Error("URL-less items with the same normalized title should share an ID")
	}
	if c.ID == a.ID {
		t.Error("distinct items share an ID")
	}
}
