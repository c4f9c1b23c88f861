package fsm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/deckforge/orchestrator/internal/session"
)

// wireStrawman and wireSlide mirror the JSON shape strawmanSystemPrompt asks
// the LLM to produce.
type (
	wireStrawman struct {
		MainTitle         string      `json:"main_title"`
		OverallTheme      string      `json:"overall_theme"`
		DesignSuggestions string      `json:"design_suggestions"`
		TargetAudience    string      `json:"target_audience"`
		DurationMinutes   int         `json:"duration_minutes"`
		Slides            []wireSlide `json:"slides"`
	}

	wireSlide struct {
		Title               string   `json:"title"`
		Narrative           string   `json:"narrative"`
		KeyPoints           []string `json:"key_points"`
		StructurePreference string   `json:"structure_preference"`
		AnalyticsNeeded     string   `json:"analytics_needed"`
		VisualsNeeded       string   `json:"visuals_needed"`
		DiagramsNeeded      string   `json:"diagrams_needed"`
		TablesNeeded        string   `json:"tables_needed"`
	}
)

var jsonObjectOrArray = regexp.MustCompile(`(?s)[\{\[].*[\}\]]`)

// extractJSON trims any leading/trailing prose a model adds around the
// requested JSON payload.
func extractJSON(text string) string {
	m := jsonObjectOrArray.FindString(text)
	if m == "" {
		return text
	}
	return m
}

// decodeStrawman parses raw into a session.Strawman, assigning 1-based
// gap-free slide numbers and IDs regardless of what the model returned.
func decodeStrawman(raw string) (session.Strawman, error) {
	var w wireStrawman
	if err := json.Unmarshal([]byte(extractJSON(raw)), &w); err != nil {
		return session.Strawman{}, fmt.Errorf("fsm: decode strawman: %w", err)
	}

	sm := session.Strawman{
		MainTitle:         w.MainTitle,
		OverallTheme:       w.OverallTheme,
		DesignSuggestions: w.DesignSuggestions,
		TargetAudience:    w.TargetAudience,
		DurationMinutes:   w.DurationMinutes,
		Slides:            make([]session.Slide, len(w.Slides)),
	}
	for i, ws := range w.Slides {
		sm.Slides[i] = sessionSlideFromWire(i+1, ws)
	}
	return sm, nil
}

func sessionSlideFromWire(number int, ws wireSlide) session.Slide {
	slide := session.Slide{
		SlideID:             slideID(number),
		SlideNumber:         number,
		Title:               ws.Title,
		Narrative:           ws.Narrative,
		KeyPoints:           ws.KeyPoints,
		StructurePreference: ws.StructurePreference,
	}
	slide.SemanticGroup = extractSemanticGroup(ws.Narrative)
	slide.AnalyticsNeeded = parseBrief(ws.AnalyticsNeeded)
	slide.VisualsNeeded = parseBrief(ws.VisualsNeeded)
	slide.DiagramsNeeded = parseBrief(ws.DiagramsNeeded)
	slide.TablesNeeded = parseBrief(ws.TablesNeeded)
	return slide
}

func slideID(number int) string { return fmt.Sprintf("slide_%03d", number) }

var groupMarker = regexp.MustCompile(`\*\*\[GROUP:\s*([^\]]+)\]\*\*`)

func extractSemanticGroup(narrative string) string {
	if m := groupMarker.FindStringSubmatch(narrative); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

var briefSections = regexp.MustCompile(`(?is)\*\*Goal\*\*:\s*(.*?)\s*\*\*Content\*\*:\s*(.*?)\s*\*\*Style\*\*:\s*(.*)$`)

// parseBrief parses the "**Goal**: ... **Content**: ... **Style**: ..."
// convention into a StructuredBrief, or nil if text is empty. Text that does
// not follow the convention is kept whole as the brief's Content.
func parseBrief(text string) *session.StructuredBrief {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	m := briefSections.FindStringSubmatch(text)
	if m == nil {
		return &session.StructuredBrief{Content: text}
	}
	return &session.StructuredBrief{Goal: m[1], Content: m[2], Style: m[3]}
}

// renumber reassigns 1-based, gap-free slide numbers and IDs in place,
// preserving slide order.
func renumber(slides []session.Slide) {
	for i := range slides {
		slides[i].SlideNumber = i + 1
		slides[i].SlideID = slideID(i + 1)
	}
}
