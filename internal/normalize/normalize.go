// Package normalize turns heterogeneous collaborator records into uniform
// items: canonical URLs, plain-text snippets, UTC timestamps and stable IDs.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"

	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/rules"
	"github.com/linnemanlabs/herald/internal/similarity"
)

// Field aliases accepted from collaborators, in preference order.
var (
	titleKeys      = []string{"title", "headline"}
	linkKeys       = []string{"link", "url", "href"}
	snippetKeys    = []string{"snippet", "description", "summary", "content"}
	sourceKeys     = []string{"source_name", "source", "feed_name"}
	sourceTypeKeys = []string{"source_type", "type"}
	structTimeKeys = []string{"published_parsed", "published_ts", "published_at"}
	textTimeKeys   = []string{"published_at", "published", "pubDate", "pub_date", "date", "updated"}
)

var trackingQueryKeys = map[string]struct{}{
	"gclid":   {},
	"fbclid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"igshid":  {},
	"ref_src": {},
}

// Normalizer canonicalizes raw records.
type Normalizer struct {
	snippetMax int
	titles     *similarity.Normalizer
}

// New creates a Normalizer from compiled rules.
func New(set *rules.Set) *Normalizer {
	return &Normalizer{
		snippetMax: set.SnippetMaxRunes,
		titles:     set.Titles,
	}
}

// Normalize converts one raw record. It returns false when the record has
// neither a title nor a link; every other defect is defaulted.
func (n *Normalizer) Normalize(raw item.Raw) (item.Item, bool) {
	title := collapseSpace(raw.String(titleKeys...))
	link := raw.String(linkKeys...)
	if title == "" && link == "" {
		return item.Item{}, false
	}

	canonical := CanonicalURL(link)
	it := item.Item{
		Title:        title,
		Link:         link,
		CanonicalURL: canonical,
		Snippet:      truncate(StripHTML(raw.String(snippetKeys...)), n.snippetMax),
		SourceName:   raw.String(sourceKeys...),
		SourceType:   item.ParseSourceType(strings.ToLower(raw.String(sourceTypeKeys...))),
	}
	if it.SourceName == "" {
		it.SourceName = "Unknown"
	}
	it.PublishedAt, it.DateConfidence = publishedAt(raw)
	it.ID = n.stableID(canonical, title)

	return it, true
}

func (n *Normalizer) stableID(canonical, title string) string {
	key := canonical
	if key == "" {
		key = "title:" + n.titles.Key(title)
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func publishedAt(raw item.Raw) (time.Time, item.Confidence) {
	if ts, ok := raw.Time(structTimeKeys...); ok {
		return ts, item.ConfidenceHigh
	}
	s := raw.String(textTimeKeys...)
	if s == "" {
		return time.Time{}, item.ConfidenceLow
	}
	ts, err := dateparse.ParseIn(s, time.UTC)
	if err != nil || ts.IsZero() {
		return time.Time{}, item.ConfidenceLow
	}
	return ts.UTC(), item.ConfidenceMedium
}

// CanonicalURL lower-cases scheme and host, drops "www.", default ports,
// fragments and tracking parameters, and sorts the remaining query. It
// returns "" for anything that is not an absolute URL.
func CanonicalURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if port := u.Port(); port != "" {
		defaultPort := (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443")
		if !defaultPort {
			host += ":" + port
		}
	}
	u.Host = host
	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	}

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingQueryKeys[lower]; ok {
			q.Del(key)
		}
	}
	for _, vs := range q {
		sort.Strings(vs)
	}
	// Encode sorts by key.
	u.RawQuery = q.Encode()

	return u.String()
}

// StripHTML returns the text content of an HTML fragment with whitespace
// collapsed.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:limit-1])) + "…"
}
