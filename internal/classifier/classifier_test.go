package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deckforge/orchestrator/internal/registry"
	"github.com/deckforge/orchestrator/internal/session"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	doc := `{
  "services": {
    "text": {
      "base_url": "http://text.internal",
      "endpoint_pattern": "single",
      "variants": [
        {"variant_id": "title_hero", "endpoint_path": "/generate",
         "classification": {"priority": 1, "keywords": ["title","cover","opening","welcome","intro"], "layout_id": "L29", "name": "title_hero"}},
        {"variant_id": "closing_hero", "endpoint_path": "/generate",
         "classification": {"priority": 2, "keywords": ["closing","thanks","wrapup","farewell","conclusion"], "layout_id": "L29", "name": "closing_hero"}},
        {"variant_id": "pyramid", "endpoint_path": "/generate",
         "classification": {"priority": 10, "keywords": ["pyramid","hierarchy","layers","tiered","levels"], "layout_id": "L25", "name": "pyramid"}},
        {"variant_id": "matrix_2x2", "endpoint_path": "/generate",
         "classification": {"priority": 11, "keywords": ["matrix","comparison","quadrant","prosandcons","tradeoff"], "layout_id": "L25", "name": "matrix_2x2"}},
        {"variant_id": "single_column", "endpoint_path": "/generate",
         "classification": {"priority": 90, "keywords": ["single","simple","plain","basic","default"], "layout_id": "L25", "name": "single_column"}},
        {"variant_id": "executive_summary", "endpoint_path": "/generate",
         "classification": {"priority": 5, "keywords": ["executive_summary","keytakeaways","highlights","atglance","scorecard"], "layout_id": "L25", "name": "executive_summary"}}
      ]
    }
  }
}`
	reg, err := registry.Load([]byte(doc))
	require.NoError(t, err)
	return reg
}

func TestClassifyAssignsTitleHeroToFirstSlide(t *testing.T) {
	reg := testRegistry(t)
	slides := []session.Slide{
		{SlideID: "slide_001", SlideNumber: 1, Title: "Welcome"},
		{SlideID: "slide_002", SlideNumber: 2, StructurePreference: "simple layout"},
	}
	out := Classify(reg, slides, "")
	require.Equal(t, session.LayoutHero, out[0].LayoutID)
	require.Equal(t, "title_hero", out[0].VariantID)
}

func TestClassifyFallsBackToSingleColumn(t *testing.T) {
	reg := testRegistry(t)
	slides := []session.Slide{
		{SlideID: "slide_001", SlideNumber: 1, Title: "Welcome"},
		{SlideID: "slide_002", SlideNumber: 2, StructurePreference: "no matching keyword here whatsoever"},
		{SlideID: "slide_003", SlideNumber: 3, Title: "Thanks"},
	}
	out := Classify(reg, slides, "")
	require.Equal(t, "single_column", out[1].VariantID)
	require.Equal(t, session.LayoutContent, out[1].LayoutID)
}

func TestClassifyKeywordMatchIsWholeWordCaseInsensitive(t *testing.T) {
	reg := testRegistry(t)
	slides := []session.Slide{
		{SlideID: "slide_001", SlideNumber: 1, StructurePreference: "Compare with a Matrix view"},
	}
	out := Classify(reg, slides, "")
	require.Equal(t, "matrix_2x2", out[0].VariantID)
}

func TestClassifyEnforcesL25L29Invariant(t *testing.T) {
	reg := testRegistry(t)
	slides := []session.Slide{
		{SlideID: "slide_001", SlideNumber: 1, StructurePreference: "pyramid hierarchy"},
	}
	out := Classify(reg, slides, "")
	for _, s := range out {
		v, ok := reg.Variant(s.VariantID)
		require.True(t, ok)
		require.Equal(t, v.Classification.LayoutID, string(s.LayoutID))
	}
}

func TestClassifyDiversityRuleLimitsConsecutiveVariants(t *testing.T) {
	reg := testRegistry(t)
	slides := make([]session.Slide, 5)
	for i := range slides {
		slides[i] = session.Slide{
			SlideID:             "slide_00X",
			SlideNumber:         i + 2,
			StructurePreference: "pyramid hierarchy layers",
		}
	}
	out := Classify(reg, slides, "")
	run := 1
	for i := 1; i < len(out); i++ {
		if out[i].VariantID == out[i-1].VariantID {
			run++
		} else {
			run = 1
		}
		require.LessOrEqual(t, run, 2)
	}
}

func TestClassifyAssignsExecutiveSummaryGridToSecondSlideForExecutiveAudience(t *testing.T) {
	reg := testRegistry(t)
	slides := []session.Slide{
		{SlideID: "slide_001", SlideNumber: 1, Title: "Welcome"},
		{SlideID: "slide_002", SlideNumber: 2, Title: "Overview"},
		{SlideID: "slide_003", SlideNumber: 3, StructurePreference: "pyramid hierarchy"},
	}
	out := Classify(reg, slides, "Board of Directors")
	require.Equal(t, "title_hero", out[0].VariantID)
	require.Equal(t, "executive_summary", out[1].VariantID)
	require.Equal(t, session.LayoutContent, out[1].LayoutID)
}

func TestClassifyLeavesSecondSlideAloneForNonExecutiveAudience(t *testing.T) {
	reg := testRegistry(t)
	slides := []session.Slide{
		{SlideID: "slide_001", SlideNumber: 1, Title: "Welcome"},
		{SlideID: "slide_002", SlideNumber: 2, StructurePreference: "pyramid hierarchy"},
	}
	out := Classify(reg, slides, "middle school students")
	require.Equal(t, "pyramid", out[1].VariantID)
}

func TestClassifyExplicitContradictionSkipsExecutiveSummaryOverride(t *testing.T) {
	reg := testRegistry(t)
	slides := []session.Slide{
		{SlideID: "slide_001", SlideNumber: 1, Title: "Welcome"},
		{SlideID: "slide_002", SlideNumber: 2, StructurePreference: "matrix comparison"},
	}
	out := Classify(reg, slides, "investor readout")
	require.Equal(t, "matrix_2x2", out[1].VariantID)
}
