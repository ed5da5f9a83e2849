// Package score computes the deterministic relevance score of an item:
// additive, independently capped components followed by floor and ceiling
// overrides.
package score

import (
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/herald/internal/item"
	"github.com/linnemanlabs/herald/internal/rules"
)

// Override names recorded in item.Signals.Override.
const (
	OverrideReject      = "reject_ceiling"
	OverrideRegulatory  = "regulatory_floor"
	OverrideInstitution = "institution_floor"
	OverrideMagnitude   = "magnitude_floor"
	OverrideCentralBank = "central_bank_floor"
	OverrideLaunch      = "launch_floor"
	OverrideCommentary  = "commentary_ceiling"
)

// Scorer scores items against a compiled rule set.
type Scorer struct {
	set *rules.Set
}

// New creates a Scorer.
func New(set *rules.Set) *Scorer {
	return &Scorer{set: set}
}

// Score returns the item's score, its breakdown and the raw signal counts.
// now is only used for freshness; the result is a pure function of the
// item, the rules and now.
func (s *Scorer) Score(it *item.Item, now time.Time) (int, item.Breakdown, item.Signals) {
	r := &s.set.Rules
	text := it.Text()
	title := it.Title

	sig := item.Signals{
		Tier1:      s.set.Tier1.Count(text),
		Tier2:      s.set.Tier2.Count(text),
		Commentary: s.set.Speculative.Count(text),
		Listicle:   s.set.Listicle.Count(title),
		Generic:    s.set.Generic.Count(title),
	}

	hasRegulator := s.set.Regulators.Any(text)
	hasMajor := s.set.Major.Any(text)

	b := item.Breakdown{
		item.KeyTier1:       capped(sig.Tier1, r.Tiers.Tier1.Weight, r.Tiers.Tier1.Cap),
		item.KeyTier2:       capped(sig.Tier2, r.Tiers.Tier2.Weight, r.Tiers.Tier2.Cap),
		item.KeyInstitution: s.institutionBonus(text, hasRegulator, hasMajor),
		item.KeyMagnitude:   s.magnitudeBonus(text),
		item.KeyRegulatory:  s.regulatoryBonus(title, text),
		item.KeyCommentary:  s.commentaryPenalty(sig.Commentary, hasRegulator || hasMajor),
		item.KeyListicle:    capped(sig.Listicle, r.Tiers.Listicle.Weight, r.Tiers.Listicle.Cap),
		item.KeyGeneric:     capped(sig.Generic, r.Tiers.Generic.Weight, r.Tiers.Generic.Cap),
		item.KeySource:      r.SourcePenalties[string(it.SourceType)],
		item.KeyFreshness:   freshness(r.Freshness, it, now),
	}

	additive := b.Sum()
	final := s.applyOverrides(additive, b, &sig, text)
	b[item.KeyOverride] = final - additive

	return final, b, sig
}

func (s *Scorer) applyOverrides(score int, b item.Breakdown, sig *item.Signals, text string) int {
	o := &s.set.Overrides

	floor := func(name string, v int) {
		if score < v {
			score = v
			sig.Override = name
		}
	}
	ceiling := func(name string, v int) {
		if score > v {
			score = v
			sig.Override = name
		}
	}

	// a hard reject is absolute: no floor may lift it back
	if sig.Listicle > 0 || sig.Generic > 0 {
		sig.HardReject = true
		ceiling(OverrideReject, o.RejectCeiling)
		return score
	}

	inst := b[item.KeyInstitution]
	tierHits := sig.Tier1 + sig.Tier2

	if reg := s.set.Regulatory.CoOccurrenceBonus; reg > 0 && b[item.KeyRegulatory] >= reg {
		floor(OverrideRegulatory, o.RegulatoryFloor)
	}
	if inst >= o.InstitutionMinBonus && inst > 0 && tierHits > 0 {
		floor(OverrideInstitution, o.InstitutionFloor)
	}
	if b[item.KeyMagnitude] >= o.MagnitudeMinBonus && b[item.KeyMagnitude] > 0 && inst >= o.MagnitudeMinInstitution && inst > 0 {
		floor(OverrideMagnitude, o.MagnitudeFloor)
	}
	if s.set.CentralBanks.Any(text) && s.set.BankAssets.Any(text) {
		sig.CentralBank = true
		floor(OverrideCentralBank, o.CentralBank.Floor)
	}
	if sig.Tier1 > 0 && sig.Commentary <= o.LaunchMaxCommentary {
		floor(OverrideLaunch, o.LaunchFloor)
	}
	if o.CommentaryMinHits > 0 && sig.Commentary >= o.CommentaryMinHits && tierHits == 0 && inst == 0 {
		ceiling(OverrideCommentary, o.CommentaryCeiling)
	}

	return score
}

// institutionBonus awards the highest matching institution tier only.
func (s *Scorer) institutionBonus(text string, hasRegulator, hasMajor bool) int {
	inst := &s.set.Institutions
	switch {
	case hasRegulator:
		return inst.Regulators.Bonus
	case hasMajor:
		return inst.Major.Bonus
	case s.set.Native.Any(text):
		return inst.Native.Bonus
	}
	return 0
}

// magnitudeBonus is the bonus of the first matching amount pattern.
func (s *Scorer) magnitudeBonus(text string) int {
	for _, m := range s.set.Magnitudes {
		if m.Re.MatchString(text) {
			return m.Bonus
		}
	}
	return 0
}

// regulatoryBonus rewards a regulator named in the title together with an
// action of record anywhere in the item more than an action alone.
func (s *Scorer) regulatoryBonus(title, text string) int {
	if !s.set.Actions.Any(text) {
		return 0
	}
	if s.set.Regulators.Any(title) {
		return s.set.Regulatory.CoOccurrenceBonus
	}
	return s.set.Regulatory.ActionOnlyBonus
}

func (s *Scorer) commentaryPenalty(hits int, institutional bool) int {
	c := &s.set.Commentary
	if institutional {
		return capped(hits, c.InstitutionalWeight, c.InstitutionalCap)
	}
	return capped(hits, c.Weight, c.Cap)
}

// capped multiplies hits by weight and limits the result to cap, which is a
// maximum for bonuses and a minimum for penalties.
func capped(hits, weight, limit int) int {
	v := hits * weight
	if weight >= 0 {
		return min(v, limit)
	}
	return max(v, limit)
}

func freshness(tiers []rules.FreshnessTier, it *item.Item, now time.Time) int {
	if !it.HasPublishedAt() {
		return 0
	}
	age := now.Sub(it.PublishedAt).Hours()
	if age < 0 {
		age = 0
	}
	for _, t := range tiers {
		if age <= t.MaxAgeHours {
			return t.Bonus
		}
	}
	return 0
}

// Describe renders a breakdown as "key=value" pairs in a stable order.
func Describe(b item.Breakdown) string {
	keys := []string{
		item.KeyTier1, item.KeyTier2, item.KeyInstitution, item.KeyMagnitude,
		item.KeyRegulatory, item.KeyCommentary, item.KeyListicle, item.KeyGeneric,
		item.KeySource, item.KeyFreshness, item.KeyOverride, item.KeyConsensus,
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v, ok := b[k]; ok && v != 0 {
			parts = append(parts, k+"="+strconv.Itoa(v))
		}
	}
	return strings.Join(parts, " ")
}
