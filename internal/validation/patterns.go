package validation

import (
	"fmt"
	"strings"
)

// categoryValidated (priority 0): the strongest signal. The category
// filtered search confirms the term in its claimed category while the
// unfiltered search shows the term also lives outside it, which rules out
// a generic word that matches everything.
type categoryValidated struct{}

func (categoryValidated) Name() string  { return PatternCategoryValidated }
func (categoryValidated) Priority() int { return 0 }

func (categoryValidated) Detect(ev *Evidence) (*Detection, bool) {
	s := ev.Search
	if s == nil {
		return nil, false
	}
	if s.FilteredCorrect < 3 || s.UnfilteredMismatched < 2 {
		return nil, false
	}
	conf := 90.0 + float64(s.FilteredCorrect-3)*2
	if conf > 98 {
		conf = 98
	}
	brand := canonicalOrTerm(ev)
	return &Detection{
		Confidence:       conf,
		Action:           ActionApprove,
		Brand:            &brand,
		ExpectedCategory: ev.Category,
		Reasoning: fmt.Sprintf(
			"category-filtered search returned %d correct matches and unfiltered search returned %d different-category results; the term is an established brand in %q",
			s.FilteredCorrect, s.UnfilteredMismatched, ev.Category),
	}, true
}

// categoryError (priority 1): the brand is real but the respondent put it
// in the wrong category. The brand-only search is rich, the brand plus
// category search is nearly empty, and the knowledge graph places the
// brand in a different category with a near-exact name match.
type categoryError struct{}

func (categoryError) Name() string  { return PatternCategoryError }
func (categoryError) Priority() int { return 1 }

func (categoryError) Detect(ev *Evidence) (*Detection, bool) {
	s := ev.Search
	kg := ev.KGraph
	sim := ev.Similarity
	if s == nil || kg == nil || sim == nil {
		return nil, false
	}
	if s.BrandOnlyCount < 10 || s.BrandCategoryCount >= 5 {
		return nil, false
	}
	if kg.CategoryMatches || strings.TrimSpace(kg.Category) == "" {
		return nil, false
	}
	if sim.Score <= 0.85 {
		return nil, false
	}
	brand := kg.Name
	return &Detection{
		Confidence:       25,
		Action:           ActionFlagCategory,
		Brand:            &brand,
		ExpectedCategory: kg.Category,
		Reasoning: fmt.Sprintf(
			"%q is a known brand (similarity %.2f to %q) but belongs to %q, not %q: %d brand-only results vs %d in-category",
			ev.Term, sim.Score, kg.Name, kg.Category, ev.Category, s.BrandOnlyCount, s.BrandCategoryCount),
	}, true
}

// ambiguousDescriptor (priority 2): the term is a qualifier shared by
// several brands rather than a brand itself. Vision sees many logos with
// no dominant one and the term is on the generic descriptor list.
type ambiguousDescriptor struct{}

func (ambiguousDescriptor) Name() string  { return PatternAmbiguousDescriptor }
func (ambiguousDescriptor) Priority() int { return 2 }

func (ambiguousDescriptor) Detect(ev *Evidence) (*Detection, bool) {
	v := ev.Vision
	if v == nil {
		return nil, false
	}
	if v.DistinctBrands < 3 || v.DominantShare > 0.40 {
		return nil, false
	}
	if !isGenericDescriptor(ev.Term) {
		return nil, false
	}
	candidates := make([]string, 0, len(v.Detections))
	for _, d := range v.Detections {
		candidates = append(candidates, d.Brand)
	}
	return &Detection{
		Confidence:       40,
		Action:           ActionAskUser,
		ExpectedCategory: ev.Category,
		Reasoning: fmt.Sprintf(
			"%q is a generic descriptor matching %d different brands (%s) with no single brand above 40%% share",
			ev.Term, v.DistinctBrands, strings.Join(candidates, ", ")),
	}, true
}

// clearMatch (priority 3): one brand dominates the image evidence and the
// term is close to the canonical name. Knowledge graph confirmation lifts
// confidence past the auto-approve bar; without it a human reviews.
type clearMatch struct{}

func (clearMatch) Name() string  { return PatternClearMatch }
func (clearMatch) Priority() int { return 3 }

func (clearMatch) Detect(ev *Evidence) (*Detection, bool) {
	v := ev.Vision
	sim := ev.Similarity
	if v == nil || sim == nil {
		return nil, false
	}
	if v.DominantShare <= 0.50 || sim.Score <= 0.60 {
		return nil, false
	}
	conf := 55 + 20*v.DominantShare + 15*sim.Score
	kgConfirms := ev.KGraph != nil && ev.KGraph.CategoryMatches
	if kgConfirms {
		conf += 10
	}
	if conf > 99 {
		conf = 99
	}
	action := ActionReview
	if conf >= 85 {
		action = ActionApprove
	}
	brand := v.DominantBrand
	if brand == "" {
		brand = canonicalOrTerm(ev)
	}
	note := "knowledge graph did not confirm the category"
	if kgConfirms {
		note = "knowledge graph confirms the category"
	}
	return &Detection{
		Confidence:       conf,
		Action:           action,
		Brand:            &brand,
		ExpectedCategory: ev.Category,
		Reasoning: fmt.Sprintf(
			"%q dominates logo detections with %.0f%% share and similarity %.2f to %q; %s",
			brand, v.DominantShare*100, sim.Score, sim.CanonicalName, note),
	}, true
}

// unclear (priority 4): the unconditional fallback.
type unclear struct{}

func (unclear) Name() string  { return PatternUnclear }
func (unclear) Priority() int { return 4 }

func (unclear) Detect(ev *Evidence) (*Detection, bool) {
	return &Detection{
		Confidence:       0,
		Action:           ActionManualReview,
		ExpectedCategory: ev.Category,
		Reasoning:        fmt.Sprintf("no evidence source produced a conclusive signal for %q", ev.Term),
	}, true
}

// genericDescriptors are qualifier words respondents write that name a
// product line rather than a brand.
var genericDescriptors = map[string]struct{}{
	"extra":    {},
	"original": {},
	"classic":  {},
	"gold":     {},
	"premium":  {},
	"fresh":    {},
	"pure":     {},
	"ultra":    {},
	"max":      {},
	"light":    {},
	"special":  {},
	"super":    {},
	"natural":  {},
	"active":   {},
}

func isGenericDescriptor(term string) bool {
	_, ok := genericDescriptors[strings.ToLower(strings.TrimSpace(term))]
	return ok
}

func canonicalOrTerm(ev *Evidence) string {
	if ev.Similarity != nil && strings.TrimSpace(ev.Similarity.CanonicalName) != "" {
		return ev.Similarity.CanonicalName
	}
	if ev.KGraph != nil && strings.TrimSpace(ev.KGraph.Name) != "" {
		return ev.KGraph.Name
	}
	return ev.Term
}
