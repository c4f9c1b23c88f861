// Package classifier implements the deterministic slide-type classification
// pipeline: position override, keyword-priority matching, fallback,
// semantic-group extraction, the diversity rule, and the L25/L29 layout
// repair pass. The classifier is pure given a *registry.Registry and never
// performs I/O.
package classifier

import (
	"regexp"
	"strings"

	"github.com/deckforge/orchestrator/internal/registry"
	"github.com/deckforge/orchestrator/internal/session"
)

// fallbackContentVariant is used when no keyword matches a slide.
const fallbackContentVariant = "single_column"

var groupMarker = regexp.MustCompile(`\*\*\[GROUP:\s*([^\]]+)\]\*\*`)

// Classify assigns LayoutID, SlideTypeClassification, and VariantID to every
// slide in slides, in place, applying position override, keyword priority,
// fallback, semantic grouping, the diversity rule, and the L25/L29 filter in
// that order. targetAudience is the strawman's audience tag and drives the
// executive-summary-grid position override for the second slide. slides is
// mutated and also returned for convenience.
func Classify(reg *registry.Registry, slides []session.Slide, targetAudience string) []session.Slide {
	n := len(slides)
	for i := range slides {
		slides[i].SemanticGroup = extractGroup(slides[i].Narrative)
	}

	for i := range slides {
		applyPositionOverride(reg, slides, i, n, targetAudience)
	}

	for i := range slides {
		if slides[i].VariantID != "" {
			continue // already assigned by position override
		}
		if v, ok := matchKeyword(reg, slides[i]); ok {
			assignVariant(&slides[i], v)
			continue
		}
		if v, ok := reg.Variant(fallbackContentVariant); ok {
			assignVariant(&slides[i], v)
		}
	}

	applyDiversityRule(reg, slides)
	applyLayoutFilter(reg, slides)

	return slides
}

// extractGroup pulls a "**[GROUP: name]**" marker out of narrative, if present.
func extractGroup(narrative string) string {
	m := groupMarker.FindStringSubmatch(narrative)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// applyPositionOverride assigns hero variants by slide position: slide 1 is
// the title hero, slide N is the closing hero. For audiences tagged
// executive/board/investor, slide 2 is the executive-summary grid. All three
// are skipped if the slide's structure preference explicitly names a
// contradicting keyword ("explicitly contradicted").
func applyPositionOverride(reg *registry.Registry, slides []session.Slide, i, n int, targetAudience string) {
	if n == 0 {
		return
	}
	if explicitlyContradicted(reg, slides[i]) {
		return
	}
	switch {
	case i == 0:
		if v, ok := reg.VariantByKeyword("title"); ok && v.Classification.LayoutID == string(session.LayoutHero) {
			assignVariant(&slides[i], v)
		}
	case i == 1 && n > 1 && isExecutiveAudience(targetAudience):
		if v, ok := reg.VariantByKeyword("executive_summary"); ok && v.Classification.LayoutID == string(session.LayoutContent) {
			assignVariant(&slides[i], v)
		}
	case i == n-1 && n > 1:
		if v, ok := reg.VariantByKeyword("closing"); ok && v.Classification.LayoutID == string(session.LayoutHero) {
			assignVariant(&slides[i], v)
		}
	}
}

// isExecutiveAudience reports whether targetAudience names an executive,
// board, or investor audience, per the PresentationStrawman invariant that
// such audiences get an executive-summary grid as their second slide.
func isExecutiveAudience(targetAudience string) bool {
	lower := strings.ToLower(targetAudience)
	for _, tag := range [...]string{"executive", "board", "investor"} {
		if strings.Contains(lower, tag) {
			return true
		}
	}
	return false
}

// explicitlyContradicted reports whether the slide's own structure
// preference names a keyword owned by a content variant, which overrides
// the positional hero default.
func explicitlyContradicted(reg *registry.Registry, s session.Slide) bool {
	for _, kw := range tokenize(s.StructurePreference) {
		if v, ok := reg.VariantByKeyword(kw); ok && v.Classification.LayoutID == string(session.LayoutContent) {
			return true
		}
	}
	return false
}

// matchKeyword scans structure preference, narrative, title, and key points
// against the registry's keyword sets in ascending priority order, whole
// word and case-insensitive. The first matched variant wins.
func matchKeyword(reg *registry.Registry, s session.Slide) (registry.Variant, bool) {
	haystacks := []string{s.StructurePreference, s.Narrative, s.Title}
	haystacks = append(haystacks, s.KeyPoints...)

	words := make(map[string]struct{})
	for _, h := range haystacks {
		for _, w := range tokenize(h) {
			words[w] = struct{}{}
		}
	}

	for _, v := range reg.VariantsByPriority() {
		for _, kw := range v.Classification.Keywords {
			if _, ok := words[strings.ToLower(kw)]; ok {
				return v, true
			}
		}
	}
	return registry.Variant{}, false
}

var wordPattern = regexp.MustCompile(`[a-zA-Z0-9_]+`)

func tokenize(s string) []string {
	matches := wordPattern.FindAllString(strings.ToLower(s), -1)
	return matches
}

func assignVariant(s *session.Slide, v registry.Variant) {
	s.VariantID = v.VariantID
	s.SlideTypeClassification = classificationName(v)
	s.LayoutID = session.LayoutID(v.Classification.LayoutID)
}

func classificationName(v registry.Variant) string {
	if v.Classification.Name != "" {
		return v.Classification.Name
	}
	return v.VariantID
}

// applyDiversityRule enforces: among consecutive content slides not sharing
// a semantic group, at most 2 share a variant id and at most 3 share a
// classification. Violations are repaired by substituting the next-best
// variant of equal or nearest classification priority.
func applyDiversityRule(reg *registry.Registry, slides []session.Slide) {
	for i := range slides {
		if slides[i].LayoutID != session.LayoutContent {
			continue
		}
		fixVariantRun(reg, slides, i)
		fixClassificationRun(reg, slides, i)
	}
}

func fixVariantRun(reg *registry.Registry, slides []session.Slide, i int) {
	run := 1
	for j := i - 1; j >= 0 && sameGroup(slides, i, j) && slides[j].LayoutID == session.LayoutContent && slides[j].VariantID == slides[i].VariantID; j-- {
		run++
	}
	if run <= 2 {
		return
	}
	if alt, ok := nearestAlternative(reg, slides[i], func(v registry.Variant) bool {
		return v.VariantID != slides[i].VariantID
	}); ok {
		assignVariant(&slides[i], alt)
	}
}

func fixClassificationRun(reg *registry.Registry, slides []session.Slide, i int) {
	run := 1
	for j := i - 1; j >= 0 && sameGroup(slides, i, j) && slides[j].LayoutID == session.LayoutContent && slides[j].SlideTypeClassification == slides[i].SlideTypeClassification; j-- {
		run++
	}
	if run <= 3 {
		return
	}
	if alt, ok := nearestAlternative(reg, slides[i], func(v registry.Variant) bool {
		return classificationName(v) != slides[i].SlideTypeClassification
	}); ok {
		assignVariant(&slides[i], alt)
	}
}

func sameGroup(slides []session.Slide, i, j int) bool {
	if slides[i].SemanticGroup == "" || slides[j].SemanticGroup == "" {
		return true // no group on one side means the diversity rule still applies
	}
	return slides[i].SemanticGroup != slides[j].SemanticGroup
}

// nearestAlternative returns a content variant satisfying predicate whose
// priority is nearest to the slide's current variant, breaking the run while
// staying semantically close.
func nearestAlternative(reg *registry.Registry, s session.Slide, predicate func(registry.Variant) bool) (registry.Variant, bool) {
	current, ok := reg.Variant(s.VariantID)
	if !ok {
		return registry.Variant{}, false
	}
	var best registry.Variant
	bestDelta := -1
	for _, v := range reg.VariantsByPriority() {
		if v.Classification.LayoutID != string(session.LayoutContent) {
			continue
		}
		if !predicate(v) {
			continue
		}
		delta := v.Classification.Priority - current.Classification.Priority
		if delta < 0 {
			delta = -delta
		}
		if bestDelta == -1 || delta < bestDelta {
			best, bestDelta = v, delta
		}
	}
	return best, bestDelta != -1
}

// applyLayoutFilter repairs any slide whose assigned variant violates the
// L25/L29 constraint by substituting a default variant for the required
// layout. A slide's LayoutID (set by position override or keyword match)
// is the source of truth for which layout it must end up on.
func applyLayoutFilter(reg *registry.Registry, slides []session.Slide) {
	for i := range slides {
		v, ok := reg.Variant(slides[i].VariantID)
		if !ok {
			continue
		}
		if v.Classification.LayoutID == string(slides[i].LayoutID) {
			continue
		}
		// Mismatch: substitute the highest-priority variant for the layout
		// the slide actually requires.
		if alt, ok := defaultVariantForLayout(reg, slides[i].LayoutID); ok {
			assignVariant(&slides[i], alt)
		}
	}
}

func defaultVariantForLayout(reg *registry.Registry, layout session.LayoutID) (registry.Variant, bool) {
	var best registry.Variant
	found := false
	for _, v := range reg.VariantsByPriority() {
		if v.Classification.LayoutID != string(layout) {
			continue
		}
		if !found || v.Classification.Priority < best.Classification.Priority {
			best, found = v, true
		}
	}
	return best, found
}
