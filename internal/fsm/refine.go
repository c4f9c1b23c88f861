package fsm

import (
	"encoding/json"
	"fmt"

	"github.com/deckforge/orchestrator/internal/classifier"
	"github.com/deckforge/orchestrator/internal/registry"
	"github.com/deckforge/orchestrator/internal/session"
)

// opKind names one of the four refinement operation kinds the refinement
// LLM call is asked to emit.
type opKind string

const (
	opUpdate          opKind = "UPDATE"
	opCreate          opKind = "CREATE"
	opDelete          opKind = "DELETE"
	opVariantOverride opKind = "VARIANT_OVERRIDE"
)

// refinementOp mirrors one element of the JSON array refinementSystemPrompt
// asks the model to produce.
type refinementOp struct {
	Op          opKind    `json:"op"`
	SlideNumber int       `json:"slide_number"`
	After       int       `json:"after"`
	VariantID   string    `json:"variant_id"`
	Slide       wireSlide `json:"slide"`
}

func decodeRefinementOps(raw string) ([]refinementOp, error) {
	var ops []refinementOp
	if err := json.Unmarshal([]byte(extractJSON(raw)), &ops); err != nil {
		return nil, fmt.Errorf("fsm: decode refinement ops: %w", err)
	}
	return ops, nil
}

// applyRefinementOps applies ops to slides in order and returns the
// resulting slice, renumbered to stay 1-based and gap-free.
// VARIANT_OVERRIDE ops are skipped: neither this function nor its caller
// applies them. A variant override takes effect only through the
// variant_override intent path (applyVariantOverride).
func applyRefinementOps(slides []session.Slide, ops []refinementOp) ([]session.Slide, error) {
	for _, op := range ops {
		switch op.Op {
		case opUpdate:
			idx := findSlideIndex(slides, op.SlideNumber)
			if idx < 0 {
				return nil, fmt.Errorf("fsm: UPDATE references unknown slide_number %d", op.SlideNumber)
			}
			updated := sessionSlideFromWire(slides[idx].SlideNumber, op.Slide)
			updated.VariantID = slides[idx].VariantID
			updated.LayoutID = slides[idx].LayoutID
			updated.SlideTypeClassification = slides[idx].SlideTypeClassification
			updated.GeneratedContent = nil
			slides[idx] = updated
		case opCreate:
			newSlide := sessionSlideFromWire(0, op.Slide)
			pos := op.After
			if pos < 0 || pos > len(slides) {
				pos = len(slides)
			}
			slides = insertSlide(slides, pos, newSlide)
		case opDelete:
			idx := findSlideIndex(slides, op.SlideNumber)
			if idx < 0 {
				return nil, fmt.Errorf("fsm: DELETE references unknown slide_number %d", op.SlideNumber)
			}
			slides = append(slides[:idx], slides[idx+1:]...)
		case opVariantOverride:
			// skipped; see the doc comment above.
		default:
			return nil, fmt.Errorf("fsm: unknown refinement op %q", op.Op)
		}
	}
	renumber(slides)
	return slides, nil
}

func findSlideIndex(slides []session.Slide, slideNumber int) int {
	for i, s := range slides {
		if s.SlideNumber == slideNumber {
			return i
		}
	}
	return -1
}

func insertSlide(slides []session.Slide, pos int, s session.Slide) []session.Slide {
	out := make([]session.Slide, 0, len(slides)+1)
	out = append(out, slides[:pos]...)
	out = append(out, s)
	out = append(out, slides[pos:]...)
	return out
}

// applyVariantOverride sets slideNumber's variant directly from the
// registry (bypassing keyword classification) and reports, without
// reverting the override, whether a full classifier re-run would have
// repaired it for diversity — the invariant that an override surfaces a
// warning but is never itself undone.
func applyVariantOverride(reg *registry.Registry, slides []session.Slide, slideNumber int, variantID, targetAudience string) (string, error) {
	idx := findSlideIndex(slides, slideNumber)
	if idx < 0 {
		return "", fmt.Errorf("fsm: variant override references unknown slide_number %d", slideNumber)
	}
	variant, ok := reg.Variant(variantID)
	if !ok {
		return "", fmt.Errorf("fsm: variant override references unknown variant_id %q", variantID)
	}

	slides[idx].VariantID = variant.VariantID
	slides[idx].LayoutID = session.LayoutID(variant.Classification.LayoutID)
	slides[idx].SlideTypeClassification = variant.Classification.Name

	check := make([]session.Slide, len(slides))
	for i, s := range slides {
		check[i] = s.Clone()
	}
	classifier.Classify(reg, check, targetAudience)

	if check[idx].VariantID != slides[idx].VariantID {
		return fmt.Sprintf(
			"slide %d's override to %q may violate the diversity rule relative to its neighbors (classifier would have chosen %q); override kept.",
			slideNumber, variant.VariantID, check[idx].VariantID,
		), nil
	}
	return "", nil
}
