package scheduler

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/deckforge/orchestrator/internal/generator"
	"github.com/deckforge/orchestrator/internal/session"
)

// TestRunPreservesSlideOrderAndCount checks, across arbitrary slide counts
// and titles, that Run never reorders or drops a slide: output length always
// matches input length and each output slide's number matches the input
// slide at the same index.
func TestRunPreservesSlideOrderAndCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	reg := testRegistry(t)

	properties.Property("output order and count match input", prop.ForAll(
		func(n int, titles []string) bool {
			slides := make([]session.Slide, n)
			for i := range slides {
				title := "slide"
				if i < len(titles) && titles[i] != "" {
					title = titles[i]
				}
				slides[i] = session.Slide{
					SlideID: "slide_" + string(rune('a'+i%26)), SlideNumber: i + 1,
					Title: title, VariantID: "single_column", SlideTypeClassification: "single_column",
				}
			}

			client := &fakeGenClient{}
			sched := New(reg, map[string]generator.Client{"text": client}, nil, nil, nil, DefaultConfig())
			result := sched.Run(context.Background(), session.Strawman{Slides: slides})

			if len(result.GeneratedSlides) != n {
				return false
			}
			for i, s := range result.GeneratedSlides {
				if s.SlideNumber != slides[i].SlideNumber {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestRunIsDeterministicForAllSuccess verifies that running the same
// all-succeeding strawman twice produces byte-identical generated content,
// since the scheduler never mutates slide order or titles on the success
// path.
func TestRunIsDeterministicForAllSuccess(t *testing.T) {
	reg := testRegistry(t)
	strawman := session.Strawman{Slides: slidesWithVariant(6, "single_column")}

	client1 := &fakeGenClient{}
	result1 := New(reg, map[string]generator.Client{"text": client1}, nil, nil, nil, DefaultConfig()).
		Run(context.Background(), strawman)

	client2 := &fakeGenClient{}
	result2 := New(reg, map[string]generator.Client{"text": client2}, nil, nil, nil, DefaultConfig()).
		Run(context.Background(), strawman)

	require.Equal(t, result1.GeneratedSlides, result2.GeneratedSlides)
}
