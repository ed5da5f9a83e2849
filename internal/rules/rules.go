// Package rules holds the externally supplied tables that drive matching,
// scoring, clustering and gating: thresholds, pattern tiers, entity and
// alias tables, and source-type penalties.
package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Rules is the decoded rule file.
type Rules struct {
	Thresholds         Thresholds      `yaml:"thresholds"`
	LookbackHours      int             `yaml:"lookback_hours"`
	SnippetMaxRunes    int             `yaml:"snippet_max_runes"`
	Topics             []Topic         `yaml:"topics"`
	Keywords           []string        `yaml:"keywords"`
	Anchors            []string        `yaml:"anchors"`
	TrustedSourceTypes []string        `yaml:"trusted_source_types"`
	Noise              []string        `yaml:"noise"`
	Tiers              Tiers           `yaml:"tiers"`
	Commentary         Commentary      `yaml:"commentary"`
	Institutions       Institutions    `yaml:"institutions"`
	Regulatory         Regulatory      `yaml:"regulatory"`
	Magnitude          []Magnitude     `yaml:"magnitude"`
	Overrides          Overrides       `yaml:"overrides"`
	SourcePenalties    map[string]int  `yaml:"source_penalties"`
	Freshness          []FreshnessTier `yaml:"freshness"`
	Consensus          []int           `yaml:"consensus"`
	Similarity         Similarity      `yaml:"similarity"`
	Seen               SeenLimits      `yaml:"seen"`
	ManualOverride     ManualOverride  `yaml:"manual_override"`
}

// Thresholds are the gate and clustering cut-offs.
type Thresholds struct {
	// MinScore is the lowest score that can be emitted.
	MinScore int `yaml:"min_score"`

	// ClusterSimilarity merges two titles in the same batch when their
	// similarity is at least this value.
	ClusterSimilarity float64 `yaml:"cluster_similarity"`

	// HistorySimilarity rejects a title whose similarity to a previously
	// emitted title exceeds this value.
	HistorySimilarity float64 `yaml:"history_similarity"`
}

// Topic is a named set of terms; any hit tags the item with the topic.
type Topic struct {
	Name string   `yaml:"name"`
	Any  []string `yaml:"any"`
}

// Tier is a regex pattern group contributing weight per hit, capped.
// Penalty tiers use a negative weight and a negative cap.
type Tier struct {
	Weight   int      `yaml:"weight"`
	Cap      int      `yaml:"cap"`
	Patterns []string `yaml:"patterns"`
}

// Tiers groups the pattern tiers.
type Tiers struct {
	Tier1    Tier `yaml:"tier1"`
	Tier2    Tier `yaml:"tier2"`
	Listicle Tier `yaml:"listicle"`
	Generic  Tier `yaml:"generic"`
}

// Commentary configures the speculative-language penalty.
type Commentary struct {
	Weight              int      `yaml:"weight"`
	Cap                 int      `yaml:"cap"`
	InstitutionalWeight int      `yaml:"institutional_weight"`
	InstitutionalCap    int      `yaml:"institutional_cap"`
	Patterns            []string `yaml:"patterns"`
}

// InstitutionTier is a flat bonus for any mention of its terms.
type InstitutionTier struct {
	Bonus int      `yaml:"bonus"`
	Terms []string `yaml:"terms"`
}

// Institutions lists recognized entities, highest priority first.
type Institutions struct {
	Regulators InstitutionTier `yaml:"regulators"`
	Major      InstitutionTier `yaml:"major"`
	Native     InstitutionTier `yaml:"native"`
}

// Regulatory configures the regulator + action co-occurrence bonus.
type Regulatory struct {
	CoOccurrenceBonus int      `yaml:"co_occurrence_bonus"`
	ActionOnlyBonus   int      `yaml:"action_only_bonus"`
	Actions           []string `yaml:"actions"`
}

// Magnitude is a monetary-amount pattern; the first matching entry wins.
type Magnitude struct {
	Pattern string `yaml:"pattern"`
	Bonus   int    `yaml:"bonus"`
}

// CentralBank configures the central bank + digital asset floor.
type CentralBank struct {
	Floor  int      `yaml:"floor"`
	Banks  []string `yaml:"banks"`
	Assets []string `yaml:"assets"`
}

// Overrides are the floors and ceilings applied after the additive sum.
type Overrides struct {
	RejectCeiling           int         `yaml:"reject_ceiling"`
	RegulatoryFloor         int         `yaml:"regulatory_floor"`
	InstitutionFloor        int         `yaml:"institution_floor"`
	InstitutionMinBonus     int         `yaml:"institution_min_bonus"`
	MagnitudeFloor          int         `yaml:"magnitude_floor"`
	MagnitudeMinBonus       int         `yaml:"magnitude_min_bonus"`
	MagnitudeMinInstitution int         `yaml:"magnitude_min_institution"`
	CentralBank             CentralBank `yaml:"central_bank"`
	CommentaryCeiling       int         `yaml:"commentary_ceiling"`
	CommentaryMinHits       int         `yaml:"commentary_min_hits"`
	LaunchFloor             int         `yaml:"launch_floor"`
	LaunchMaxCommentary     int         `yaml:"launch_max_commentary"`
}

// FreshnessTier awards Bonus to items no older than MaxAgeHours.
type FreshnessTier struct {
	MaxAgeHours float64 `yaml:"max_age_hours"`
	Bonus       int     `yaml:"bonus"`
}

// Similarity configures the shared title normalizer.
type Similarity struct {
	OutletSuffix string            `yaml:"outlet_suffix"`
	MinTokenLen  int               `yaml:"min_token_len"`
	Stopwords    []string          `yaml:"stopwords"`
	Aliases      map[string]string `yaml:"aliases"`
}

// SeenLimits bounds the persisted seen state.
type SeenLimits struct {
	MaxIDs    int `yaml:"max_ids"`
	MaxTitles int `yaml:"max_titles"`

	// TitleWindowHours limits the seen-title check to recent fingerprints.
	// 0 checks every retained fingerprint.
	TitleWindowHours int `yaml:"title_window_hours"`
}

// ManualOverride configures the force-publish path.
type ManualOverride struct {
	// RecordTitle also stores the title fingerprint of force-published items,
	// so later stories about the same event are rejected as seen-similar.
	RecordTitle bool `yaml:"record_title"`
}

// Default returns the embedded default rules.
func Default() *Rules {
	r, err := decode(&Rules{}, defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded defaults: %v", err))
	}
	return r
}

// Load reads a rules file and decodes it on top of the defaults. An empty
// path returns the defaults.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: rules path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	r, err := decode(Default(), data)
	if err != nil {
		return nil, fmt.Errorf("decode rules %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes rules from YAML on top of the defaults.
func Parse(data []byte) (*Rules, error) {
	return decode(Default(), data)
}

func decode(base *Rules, data []byte) (*Rules, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(base); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return base, nil
}

// MaxConsensus is the largest consensus bonus.
func (r *Rules) MaxConsensus() int {
	m := 0
	for _, v := range r.Consensus {
		if v > m {
			m = v
		}
	}
	return m
}

// Validate checks the tables for values the pipeline cannot work with.
func (r *Rules) Validate() error {
	var errs []error

	t := r.Thresholds
	if t.ClusterSimilarity <= 0 || t.ClusterSimilarity > 1 {
		errs = append(errs, fmt.Errorf("thresholds.cluster_similarity %v must be in (0,1]", t.ClusterSimilarity))
	}
	if t.HistorySimilarity <= 0 || t.HistorySimilarity >= 1 {
		errs = append(errs, fmt.Errorf("thresholds.history_similarity %v must be in (0,1)", t.HistorySimilarity))
	}

	// hard rejects must stay below the gate even with the largest consensus bonus
	if r.Overrides.RejectCeiling+r.MaxConsensus() >= t.MinScore {
		errs = append(errs, fmt.Errorf("overrides.reject_ceiling %d plus max consensus %d must be below thresholds.min_score %d",
			r.Overrides.RejectCeiling, r.MaxConsensus(), t.MinScore))
	}

	if r.LookbackHours < 0 {
		errs = append(errs, fmt.Errorf("lookback_hours %d must be >= 0", r.LookbackHours))
	}
	if r.SnippetMaxRunes <= 0 {
		errs = append(errs, fmt.Errorf("snippet_max_runes %d must be > 0", r.SnippetMaxRunes))
	}

	for i, tp := range r.Topics {
		if tp.Name == "" {
			errs = append(errs, fmt.Errorf("topics[%d]: name is required", i))
		}
		if len(tp.Any) == 0 {
			errs = append(errs, fmt.Errorf("topics[%d] %q: at least one term is required", i, tp.Name))
		}
	}
	if len(r.Anchors) == 0 {
		errs = append(errs, errors.New("anchors: at least one anchor term is required"))
	}

	errs = append(errs, checkTier("tiers.tier1", r.Tiers.Tier1, 1))
	errs = append(errs, checkTier("tiers.tier2", r.Tiers.Tier2, 1))
	errs = append(errs, checkTier("tiers.listicle", r.Tiers.Listicle, -1))
	errs = append(errs, checkTier("tiers.generic", r.Tiers.Generic, -1))
	errs = append(errs, checkTier("commentary", Tier{Weight: r.Commentary.Weight, Cap: r.Commentary.Cap}, -1))
	errs = append(errs, checkTier("commentary.institutional", Tier{Weight: r.Commentary.InstitutionalWeight, Cap: r.Commentary.InstitutionalCap}, -1))

	for i := 1; i < len(r.Consensus); i++ {
		if r.Consensus[i] < r.Consensus[i-1] {
			errs = append(errs, fmt.Errorf("consensus[%d] %d must not be below consensus[%d] %d", i, r.Consensus[i], i-1, r.Consensus[i-1]))
		}
	}
	if len(r.Consensus) > 0 && r.Consensus[0] < 0 {
		errs = append(errs, fmt.Errorf("consensus[0] %d must be >= 0", r.Consensus[0]))
	}

	for i := 1; i < len(r.Freshness); i++ {
		if r.Freshness[i].MaxAgeHours <= r.Freshness[i-1].MaxAgeHours {
			errs = append(errs, fmt.Errorf("freshness[%d]: max_age_hours must increase", i))
		}
	}

	if r.Seen.MaxIDs <= 0 {
		errs = append(errs, fmt.Errorf("seen.max_ids %d must be > 0", r.Seen.MaxIDs))
	}
	if r.Seen.MaxTitles <= 0 {
		errs = append(errs, fmt.Errorf("seen.max_titles %d must be > 0", r.Seen.MaxTitles))
	}
	if r.Seen.TitleWindowHours < 0 {
		errs = append(errs, fmt.Errorf("seen.title_window_hours %d must be >= 0", r.Seen.TitleWindowHours))
	}
	if r.Similarity.MinTokenLen < 0 {
		errs = append(errs, fmt.Errorf("similarity.min_token_len %d must be >= 0", r.Similarity.MinTokenLen))
	}

	return errors.Join(errs...)
}

// checkTier verifies weight and cap share the expected sign.
func checkTier(name string, t Tier, sign int) error {
	if t.Weight*sign < 0 || t.Cap*sign < 0 {
		return fmt.Errorf("%s: weight %d and cap %d must both be %s", name, t.Weight, t.Cap, signName(sign))
	}
	return nil
}

func signName(sign int) string {
	if sign < 0 {
		return "<= 0"
	}
	return ">= 0"
}
