package fsm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deckforge/orchestrator/internal/deckbuilder"
	"github.com/deckforge/orchestrator/internal/envelope"
	"github.com/deckforge/orchestrator/internal/generator"
	"github.com/deckforge/orchestrator/internal/llm"
	"github.com/deckforge/orchestrator/internal/registry"
	"github.com/deckforge/orchestrator/internal/scheduler"
	"github.com/deckforge/orchestrator/internal/session"
	"github.com/deckforge/orchestrator/internal/session/inmem"
)

const strawmanJSON = `{
  "main_title": "Quarterly Review",
  "overall_theme": "growth",
  "target_audience": "execs",
  "duration_minutes": 15,
  "slides": [
    {"title": "Welcome", "narrative": "intro", "key_points": ["hello"], "structure_preference": "welcome opening"},
    {"title": "Overview", "narrative": "context", "key_points": ["summary"], "structure_preference": "overview summary"}
  ]
}`

type scriptedProvider struct {
	t *testing.T
}

func (p *scriptedProvider) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	switch {
	case strings.Contains(req.System, "Greet the user"):
		return llm.Response{Text: "Hi there! What would you like to build?"}, nil
	case strings.Contains(req.System, "clarifying questions"):
		return llm.Response{Text: "1. Who is the audience?\n2. How long?\n3. What tone?"}, nil
	case strings.Contains(req.System, "confirmation plan"):
		return llm.Response{Text: "We'll build a 5-slide deck for executives. Shall I proceed?"}, nil
	case strings.Contains(req.System, "Classify the user's message"):
		return p.classify(req)
	case strings.Contains(req.System, "strawman as a JSON object"):
		return llm.Response{Text: strawmanJSON}, nil
	default:
		return llm.Response{Text: ""}, nil
	}
}

func (p *scriptedProvider) classify(req llm.Request) (llm.Response, error) {
	text := strings.ToLower(req.Messages[len(req.Messages)-1].Content)
	switch {
	case strings.Contains(text, "accept"):
		if strings.Contains(req.System, "accept_plan") {
			return llm.Response{Text: "accept_plan"}, nil
		}
		return llm.Response{Text: "accept_strawman"}, nil
	case strings.Contains(text, "refine"):
		return llm.Response{Text: "request_refinement"}, nil
	default:
		return llm.Response{Text: "accept_plan"}, nil
	}
}

type fakeGenClient struct{}

func (fakeGenClient) Generate(_ context.Context, _ string, req generator.Request) (generator.Result, error) {
	return generator.Result{Fields: map[string]any{"slide_title": req.Title}}, nil
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	raw := []byte(`{
		"services": {
			"text": {
				"base_url": "http://text.local", "timeout_seconds": 10, "endpoint_pattern": "typed",
				"variants": [
					{"variant_id": "title_hero", "endpoint_path": "/v1/text/title_hero",
					 "classification": {"name": "title_hero", "priority": 1, "layout_id": "L29",
					 "keywords": ["welcome","opening","title","cover","intro"]}},
					{"variant_id": "single_column", "endpoint_path": "/v1/text/single_column",
					 "classification": {"name": "single_column", "priority": 50, "layout_id": "L25",
					 "keywords": ["overview","summary","background","context","general"]}}
				]
			}
		}
	}`)
	reg, err := registry.Load(raw)
	require.NoError(t, err)
	return reg
}

func newTestMachine(t *testing.T) *Machine {
	t.Helper()
	reg := testRegistry(t)
	store := inmem.New()
	sched := scheduler.New(reg, map[string]generator.Client{"text": fakeGenClient{}}, nil, nil, nil, scheduler.DefaultConfig())
	return New(store, &scriptedProvider{t: t}, reg, sched, deckbuilder.Noop{}, nil, nil, DefaultConfig())
}

func eventTypes(events []envelope.Event) []envelope.Type {
	out := make([]envelope.Type, len(events))
	for i, e := range events {
		out[i] = e.Type()
	}
	return out
}

func TestFullDialogCycleReachesTerminalWithPresentationURL(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	greet, err := m.HandleConnect(ctx, "sess-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, []envelope.Type{envelope.TypeChatMessage}, eventTypes(greet))

	questions, err := m.HandleMessage(ctx, "sess-1", "user-1", "I need a quarterly review deck")
	require.NoError(t, err)
	require.Equal(t, []envelope.Type{envelope.TypeChatMessage}, eventTypes(questions))

	plan, err := m.HandleMessage(ctx, "sess-1", "user-1", "execs, 15 minutes, formal")
	require.NoError(t, err)
	require.Equal(t, []envelope.Type{envelope.TypeChatMessage, envelope.TypeActionRequest}, eventTypes(plan))

	strawman, err := m.HandleMessage(ctx, "sess-1", "user-1", "accept_plan")
	require.NoError(t, err)
	require.Contains(t, eventTypes(strawman), envelope.TypeSlideUpdate)
	require.Contains(t, eventTypes(strawman), envelope.TypeActionRequest)

	final, err := m.HandleMessage(ctx, "sess-1", "user-1", "accept_strawman")
	require.NoError(t, err)
	require.Contains(t, eventTypes(final), envelope.TypeStatusUpdate)
	require.Contains(t, eventTypes(final), envelope.TypePresentationURL)

	sess, err := m.store.GetOrCreate(ctx, "sess-1", "user-1")
	require.NoError(t, err)
	require.Equal(t, session.StateTerminal, sess.CurrentState)
	require.NotNil(t, sess.Strawman)
	require.Len(t, sess.Strawman.Slides, 2)
	require.Equal(t, 1, sess.Strawman.Slides[0].SlideNumber)
	require.Equal(t, "slide_001", sess.Strawman.Slides[0].SlideID)
}

func TestStrawmanClassificationAssignsTitleHeroToFirstSlide(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	_, err := m.HandleConnect(ctx, "sess-2", "user-1")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, "sess-2", "user-1", "topic")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, "sess-2", "user-1", "answers")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, "sess-2", "user-1", "accept_plan")
	require.NoError(t, err)

	sess, err := m.store.GetOrCreate(ctx, "sess-2", "user-1")
	require.NoError(t, err)
	require.Equal(t, session.LayoutHero, sess.Strawman.Slides[0].LayoutID)
	require.Equal(t, "title_hero", sess.Strawman.Slides[0].VariantID)
}

func TestTerminalRestartReturnsSessionToGreetingAndClearsStrawman(t *testing.T) {
	m := newTestMachine(t)
	ctx := context.Background()

	_, err := m.HandleConnect(ctx, "sess-3", "user-1")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, "sess-3", "user-1", "topic")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, "sess-3", "user-1", "answers")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, "sess-3", "user-1", "accept_plan")
	require.NoError(t, err)
	_, err = m.HandleMessage(ctx, "sess-3", "user-1", "accept_strawman")
	require.NoError(t, err)

	sess, err := m.store.GetOrCreate(ctx, "sess-3", "user-1")
	require.NoError(t, err)
	require.Equal(t, session.StateTerminal, sess.CurrentState)

	restart, err := m.HandleMessage(ctx, "sess-3", "user-1", "restart")
	require.NoError(t, err)
	require.Equal(t, []envelope.Type{envelope.TypeChatMessage}, eventTypes(restart))

	sess, err = m.store.GetOrCreate(ctx, "sess-3", "user-1")
	require.NoError(t, err)
	require.Equal(t, session.StateProvideGreeting, sess.CurrentState)
	require.Nil(t, sess.Strawman)
	require.Empty(t, sess.FinalPresentationURL)
}
