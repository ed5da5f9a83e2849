package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/similarity"
)

// Set is a compiled, validated rule table ready for use by the pipeline.
type Set struct {
	Rules

	TopicTerms []CompiledTopic
	KeywordSet *TermSet
	AnchorSet  *TermSet
	NoiseSet   *TermSet
	Trusted    map[item.SourceType]bool

	Tier1       *PatternSet
	Tier2       *PatternSet
	Listicle    *PatternSet
	Generic     *PatternSet
	Speculative *PatternSet

	Regulators   *TermSet
	Major        *TermSet
	Native       *TermSet
	Actions      *TermSet
	CentralBanks *TermSet
	BankAssets   *TermSet

	Magnitudes []CompiledMagnitude

	Titles *similarity.Normalizer
}

// CompiledTopic is a topic with its terms compiled.
type CompiledTopic struct {
	Name  string
	Terms *TermSet
}

// CompiledMagnitude is a compiled monetary-amount pattern.
type CompiledMagnitude struct {
	Re    *regexp.Regexp
	Bonus int
}

// Compile validates r and compiles every table.
func Compile(r *Rules) (*Set, error) {
	if r == nil {
		return nil, errors.New("rules: nil rules")
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	s := &Set{Rules: *r, Trusted: make(map[item.SourceType]bool)}
	var errs []error
	terms := func(name string, in []string) *TermSet {
		ts, err := NewTermSet(in)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return ts
	}
	patterns := func(name string, in []string) *PatternSet {
		ps, err := NewPatternSet(in)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return ps
	}

	for _, tp := range r.Topics {
		s.TopicTerms = append(s.TopicTerms, CompiledTopic{Name: tp.Name, Terms: terms("topics."+tp.Name, tp.Any)})
	}
	s.KeywordSet = terms("keywords", r.Keywords)
	s.AnchorSet = terms("anchors", r.Anchors)
	s.NoiseSet = terms("noise", r.Noise)
	for _, st := range r.TrustedSourceTypes {
		s.Trusted[item.SourceType(strings.ToLower(st))] = true
	}

	s.Tier1 = patterns("tiers.tier1", r.Tiers.Tier1.Patterns)
	s.Tier2 = patterns("tiers.tier2", r.Tiers.Tier2.Patterns)
	s.Listicle = patterns("tiers.listicle", r.Tiers.Listicle.Patterns)
	s.Generic = patterns("tiers.generic", r.Tiers.Generic.Patterns)
	s.Speculative = patterns("commentary", r.Commentary.Patterns)

	s.Regulators = terms("institutions.regulators", r.Institutions.Regulators.Terms)
	s.Major = terms("institutions.major", r.Institutions.Major.Terms)
	s.Native = terms("institutions.native", r.Institutions.Native.Terms)
	s.Actions = terms("regulatory.actions", r.Regulatory.Actions)
	s.CentralBanks = terms("overrides.central_bank.banks", r.Overrides.CentralBank.Banks)
	s.BankAssets = terms("overrides.central_bank.assets", r.Overrides.CentralBank.Assets)

	for i, m := range r.Magnitude {
		re, err := regexp.Compile("(?i)" + m.Pattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("magnitude[%d]: %w", i, err))
			continue
		}
		s.Magnitudes = append(s.Magnitudes, CompiledMagnitude{Re: re, Bonus: m.Bonus})
	}

	titles, err := similarity.New(similarity.Options{
		OutletSuffix: r.Similarity.OutletSuffix,
		Stopwords:    r.Similarity.Stopwords,
		Aliases:      r.Similarity.Aliases,
		MinTokenLen:  r.Similarity.MinTokenLen,
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("similarity: %w", err))
	}
	s.Titles = titles

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSet loads, validates and compiles the rules at path.
func LoadSet(path string) (*Set, error) {
	r, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Compile(r)
}

// MustDefaultSet compiles the embedded defaults.
func MustDefaultSet() *Set {
	s, err := Compile(Default())
	if err != nil {
		panic(fmt.Sprintf("rules: compile defaults: %v", err))
	}
	return s
}

// TermSet matches literal terms case-insensitively on word boundaries.
// Whitespace inside a term matches any run of whitespace.
type TermSet struct {
	terms []term
}

type term struct {
	name string
	re   *regexp.Regexp
}

// NewTermSet compiles terms. Blank and duplicate terms are skipped.
func NewTermSet(terms []string) (*TermSet, error) {
	ts := &TermSet{}
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		re, err := regexp.Compile(termPattern(t))
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", t, err)
		}
		ts.terms = append(ts.terms, term{name: t, re: re})
	}
	return ts, nil
}

func termPattern(t string) string {
	parts := strings.Fields(t)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	pat := strings.Join(parts, `\s+`)

	runes := []rune(t)
	if isWord(runes[0]) {
		pat = `\b` + pat
	}
	if isWord(runes[len(runes)-1]) {
		pat += `\b`
	}
	return "(?i)" + pat
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Len is the number of terms.
func (s *TermSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.terms)
}

// Matches returns the terms found in text, in table order.
func (s *TermSet) Matches(text string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, t := range s.terms {
		if t.re.MatchString(text) {
			out = append(out, t.name)
		}
	}
	return out
}

// Any reports whether at least one term occurs in text.
func (s *TermSet) Any(text string) bool {
	if s == nil {
		return false
	}
	for _, t := range s.terms {
		if t.re.MatchString(text) {
			return true
		}
	}
	return false
}

// PatternSet is a list of case-insensitive regular expressions.
type PatternSet struct {
	res []*regexp.Regexp
}

// NewPatternSet compiles patterns.
func NewPatternSet(patterns []string) (*PatternSet, error) {
	ps := &PatternSet{}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		ps.res = append(ps.res, re)
	}
	return ps, nil
}

// Count returns how many patterns match text.
func (s *PatternSet) Count(text string) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, re := range s.res {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}
