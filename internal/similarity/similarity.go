// Package similarity implements the alias-aware title normalizer and the
// token-set Jaccard similarity shared by intra-batch clustering and the
// cross-run seen-title check.
package similarity

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// DefaultOutletSuffix matches trailing outlet attributions such as
// " - Reuters" or " | Bloomberg".
const DefaultOutletSuffix = `\s+[-|•–—]\s+[^-|•–—]{2,60}$`

// Options configures a Normalizer.
type Options struct {
	// OutletSuffix is stripped from the end of lower-cased titles.
	OutletSuffix string

	// Stopwords are dropped after aliasing.
	Stopwords []string

	// Aliases maps a phrase to its canonical token. Phrases are normalized
	// the same way titles are, so "exchange-traded fund" and
	// "exchange traded fund" are equivalent keys.
	Aliases map[string]string

	// MinTokenLen drops shorter tokens after aliasing.
	MinTokenLen int
}

type alias struct {
	words []string
	canon []string
}

// Normalizer turns titles into comparable token sets.
type Normalizer struct {
	outlet  *regexp.Regexp
	stop    map[string]struct{}
	aliases []alias
	first   map[string][]int // first alias word -> alias indexes, longest first
	minLen  int
}

// New builds a Normalizer from opts.
func New(opts Options) (*Normalizer, error) {
	n := &Normalizer{
		stop:   make(map[string]struct{}, len(opts.Stopwords)),
		first:  make(map[string][]int),
		minLen: opts.MinTokenLen,
	}

	if opts.OutletSuffix != "" {
		re, err := regexp.Compile(opts.OutletSuffix)
		if err != nil {
			return nil, fmt.Errorf("outlet suffix: %w", err)
		}
		n.outlet = re
	}

	for _, w := range opts.Stopwords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			n.stop[w] = struct{}{}
		}
	}

	for phrase, canon := range opts.Aliases {
		from, to := words(phrase), words(canon)
		if len(from) == 0 || len(to) == 0 {
			return nil, fmt.Errorf("alias %q -> %q: empty after normalization", phrase, canon)
		}
		n.aliases = append(n.aliases, alias{words: from, canon: to})
	}
	// longest phrase wins, ties broken lexically so map order never matters
	sort.Slice(n.aliases, func(i, j int) bool {
		a, b := n.aliases[i], n.aliases[j]
		if len(a.words) != len(b.words) {
			return len(a.words) > len(b.words)
		}
		return strings.Join(a.words, " ") < strings.Join(b.words, " ")
	})
	for i, a := range n.aliases {
		n.first[a.words[0]] = append(n.first[a.words[0]], i)
	}

	return n, nil
}

// Key returns the lower-cased, outlet-stripped, punctuation-free form of a
// title. It is used as the hard-dedupe identity when an item has no URL.
func (n *Normalizer) Key(title string) string {
	return strings.Join(n.clean(title), " ")
}

// Tokens returns the ordered, de-duplicated tokens of a title after
// aliasing, stopword removal and the length filter.
func (n *Normalizer) Tokens(title string) []string {
	ws := n.applyAliases(n.clean(title))

	out := make([]string, 0, len(ws))
	seen := make(map[string]struct{}, len(ws))
	for _, w := range ws {
		if _, ok := n.stop[w]; ok {
			continue
		}
		if len([]rune(w)) < n.minLen {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Fingerprint is the human-readable normalized title stored in seen state.
func (n *Normalizer) Fingerprint(title string) string {
	return strings.Join(n.Tokens(title), " ")
}

// Set returns the token set of a title.
func (n *Normalizer) Set(title string) TokenSet {
	return NewTokenSet(n.Tokens(title))
}

// Similarity is the Jaccard similarity of two titles' token sets.
func (n *Normalizer) Similarity(a, b string) float64 {
	return Jaccard(n.Set(a), n.Set(b))
}

func (n *Normalizer) clean(title string) []string {
	t := strings.ToLower(strings.TrimSpace(title))
	if n.outlet != nil {
		t = n.outlet.ReplaceAllString(t, "")
	}
	return words(t)
}

func (n *Normalizer) applyAliases(ws []string) []string {
	if len(n.aliases) == 0 {
		return ws
	}
	out := make([]string, 0, len(ws))
	for i := 0; i < len(ws); {
		matched := false
		for _, idx := range n.first[ws[i]] {
			a := n.aliases[idx]
			if hasPrefix(ws[i:], a.words) {
				out = append(out, a.canon...)
				i += len(a.words)
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, ws[i])
			i++
		}
	}
	return out
}

func hasPrefix(ws, prefix []string) bool {
	if len(prefix) > len(ws) {
		return false
	}
	for i := range prefix {
		if ws[i] != prefix[i] {
			return false
		}
	}
	return true
}

// words lower-cases s and splits it on anything that is not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// TokenSet is an unordered set of tokens.
type TokenSet map[string]struct{}

// NewTokenSet builds a set from tokens.
func NewTokenSet(tokens []string) TokenSet {
	s := make(TokenSet, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when either set is empty.
func Jaccard(a, b TokenSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
