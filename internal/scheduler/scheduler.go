// Package scheduler implements the Stage-6 parallel content-generation
// scheduler: it routes each classified slide to its registry-selected
// generator service, dispatches calls with bounded concurrency, applies
// per-call retry/timeout/rate-limit policy, and assembles a deterministic
// result plus an aggregated error summary.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/deckforge/orchestrator/internal/generator"
	"github.com/deckforge/orchestrator/internal/ratelimit"
	"github.com/deckforge/orchestrator/internal/registry"
	"github.com/deckforge/orchestrator/internal/retry"
	"github.com/deckforge/orchestrator/internal/session"
	"github.com/deckforge/orchestrator/internal/telemetry"
)

// FailureCategory classifies why a slide's content generation failed.
type FailureCategory string

const (
	CategoryTimeout    FailureCategory = "timeout"
	CategoryHTTP4xx    FailureCategory = "http_4xx"
	CategoryHTTP5xx    FailureCategory = "http_5xx"
	CategoryConnection FailureCategory = "connection"
	CategoryValidation FailureCategory = "validation"
	CategoryUnknown    FailureCategory = "unknown"
)

// Severity ranks how urgently an error-summary issue needs attention.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

type (
	// Failure is one slide's content-generation failure record.
	Failure struct {
		SlideNumber int
		SlideID     string
		SlideType   string
		Service     string
		Endpoint    string
		RawError    string
		Category    FailureCategory
		HTTPStatus  int
		Suggested   string
	}

	// Summary aggregates Failures by category, service, and endpoint, and
	// surfaces a prioritized recommended-action list.
	Summary struct {
		ByCategory        map[FailureCategory]int
		ByService         map[string]int
		ByEndpoint        map[string]int
		RecommendedAction []string
		Severity          Severity
	}

	// Result is the Stage-6 scheduler's output: every input slide in input
	// order (a failed slide carries no GeneratedContent), plus failures and
	// their summary.
	Result struct {
		GeneratedSlides []session.Slide
		FailedSlides    []Failure
		ErrorSummary    Summary
	}

	// Config tunes the scheduler's concurrency and retry/rate-limit policy.
	Config struct {
		// MaxConcurrency bounds simultaneous in-flight generator calls.
		// Defaults to min(8, slide count) when zero.
		MaxConcurrency int
		MaxRetries     int
		BaseDelay      time.Duration
	}

	// Scheduler dispatches classified slides to generator clients.
	Scheduler struct {
		registry  *registry.Registry
		clients   map[string]generator.Client
		limiter   ratelimit.Limiter
		logger    telemetry.Logger
		metrics   telemetry.Metrics
		cfg       Config
	}
)

// DefaultConfig returns the registry-described defaults for Stage-6 calls.
func DefaultConfig() Config {
	return Config{MaxRetries: 5, BaseDelay: 2 * time.Second}
}

// New constructs a Scheduler. clients maps service name ("text",
// "illustrator", "analytics") to its Client.
func New(reg *registry.Registry, clients map[string]generator.Client, limiter ratelimit.Limiter, logger telemetry.Logger, metrics telemetry.Metrics, cfg Config) *Scheduler {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Scheduler{registry: reg, clients: clients, limiter: limiter, logger: logger, metrics: metrics, cfg: cfg}
}

// Run dispatches every slide in strawman.Slides to its selected service in
// parallel up to Config.MaxConcurrency, collates responses back into input
// order, and returns the aggregated Result. Run never aborts early on a
// single slide failure.
func (s *Scheduler) Run(ctx context.Context, strawman session.Strawman) Result {
	n := len(strawman.Slides)
	concurrency := s.cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	if concurrency > n {
		concurrency = n
	}
	if concurrency < 1 {
		concurrency = 1
	}

	generated := make([]session.Slide, n)
	failures := make([]*Failure, n)

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, slide := range strawman.Slides {
		i, slide := i, slide
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			out, failure := s.runSlide(ctx, slide)
			generated[i] = out
			failures[i] = failure
		}()
	}
	wg.Wait()

	var failList []Failure
	for _, f := range failures {
		if f != nil {
			failList = append(failList, *f)
		}
	}

	return Result{
		GeneratedSlides: generated,
		FailedSlides:    failList,
		ErrorSummary:    summarize(failList),
	}
}

// runSlide resolves the slide's variant/service/endpoint, applies the
// fallback-remap for disabled variants, and runs the generator call under
// the retry/rate-limit policy.
func (s *Scheduler) runSlide(ctx context.Context, slide session.Slide) (session.Slide, *Failure) {
	variant, ok := s.registry.Variant(slide.VariantID)
	if !ok {
		return slide, &Failure{
			SlideNumber: slide.SlideNumber, SlideID: slide.SlideID, SlideType: slide.SlideTypeClassification,
			RawError: fmt.Sprintf("unknown variant_id %q", slide.VariantID), Category: CategoryValidation,
			Suggested: "check the taxonomy registry for this variant",
		}
	}

	if variant.Disabled {
		fallback, ok := s.registry.Variant(variant.FallbackVariantID)
		if !ok {
			return slide, &Failure{
				SlideNumber: slide.SlideNumber, SlideID: slide.SlideID, SlideType: slide.SlideTypeClassification,
				Service: variant.Service, RawError: "variant disabled with no configured fallback", Category: CategoryValidation,
				Suggested: "configure fallback_variant_id for " + variant.VariantID,
			}
		}
		s.logger.Warn(ctx, "remapping disabled variant to fallback", "variant_id", variant.VariantID, "fallback", fallback.VariantID)
		slide.VariantID = fallback.VariantID
		variant = fallback
	}

	client, ok := s.clients[variant.Service]
	if !ok {
		return slide, &Failure{
			SlideNumber: slide.SlideNumber, SlideID: slide.SlideID, SlideType: slide.SlideTypeClassification,
			Service: variant.Service, RawError: "no client configured for service", Category: CategoryValidation,
			Suggested: "register a generator client for " + variant.Service,
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, variant.Service); err != nil {
			return slide, &Failure{
				SlideNumber: slide.SlideNumber, SlideID: slide.SlideID, SlideType: slide.SlideTypeClassification,
				Service: variant.Service, Endpoint: variant.EndpointPath, RawError: err.Error(), Category: CategoryUnknown,
			}
		}
	}

	req := generator.Request{
		SlideID:     slide.SlideID,
		SlideNumber: slide.SlideNumber,
		VariantID:   variant.VariantID,
		SlideType:   slide.SlideTypeClassification,
		Title:       slide.Title,
		Narrative:   slide.Narrative,
		KeyPoints:   slide.KeyPoints,
		Brief:       briefFields(slide),
		Extra:       variant.Params,
	}

	var result generator.Result
	var httpStatus int
	maxRetries := s.cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	baseDelay := s.cfg.BaseDelay
	if baseDelay == 0 {
		baseDelay = 2 * time.Second
	}

	name := fmt.Sprintf("%s:%s:%s", variant.Service, variant.EndpointPath, slide.SlideID)
	err := retry.Do(ctx, maxRetries, baseDelay, name, func(ctx context.Context) error {
		var callErr error
		result, callErr = client.Generate(ctx, variant.EndpointPath, req)
		if callErr != nil {
			var httpErr *retry.HTTPStatusError
			if errors.As(callErr, &httpErr) {
				httpStatus = httpErr.StatusCode
			}
		}
		return callErr
	})

	if err != nil {
		s.metrics.IncCounter("scheduler.slide_failures", 1, "service", variant.Service)
		return slide, &Failure{
			SlideNumber: slide.SlideNumber, SlideID: slide.SlideID, SlideType: slide.SlideTypeClassification,
			Service: variant.Service, Endpoint: variant.EndpointPath, RawError: err.Error(),
			Category: classifyFailure(err, httpStatus), HTTPStatus: httpStatus,
			Suggested: suggestedAction(classifyFailure(err, httpStatus)),
		}
	}

	slide.GeneratedContent = stringifyFields(result.Fields)
	s.metrics.IncCounter("scheduler.slide_successes", 1, "service", variant.Service)
	return slide, nil
}

func briefFields(s session.Slide) map[string]any {
	out := make(map[string]any)
	add := func(name string, b *session.StructuredBrief) {
		if b == nil {
			return
		}
		out[name] = map[string]string{"goal": b.Goal, "content": b.Content, "style": b.Style}
	}
	add("analytics_needed", s.AnalyticsNeeded)
	add("visuals_needed", s.VisualsNeeded)
	add("diagrams_needed", s.DiagramsNeeded)
	add("tables_needed", s.TablesNeeded)
	if len(out) == 0 {
		return nil
	}
	return out
}

func stringifyFields(fields map[string]any) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

func classifyFailure(err error, httpStatus int) FailureCategory {
	switch {
	case httpStatus >= 500:
		return CategoryHTTP5xx
	case httpStatus >= 400:
		return CategoryHTTP4xx
	case httpStatus != 0:
		return CategoryUnknown
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return CategoryTimeout
	default:
		return CategoryConnection
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func suggestedAction(cat FailureCategory) string {
	switch cat {
	case CategoryTimeout:
		return "increase per-service timeout or retry later"
	case CategoryHTTP5xx:
		return "check service health; retry was exhausted"
	case CategoryHTTP4xx:
		return "inspect request payload for validation errors"
	case CategoryConnection:
		return "check service connectivity/DNS"
	case CategoryValidation:
		return "inspect taxonomy registry configuration"
	default:
		return "inspect logs for this slide"
	}
}

func summarize(failures []Failure) Summary {
	sum := Summary{
		ByCategory: make(map[FailureCategory]int),
		ByService:  make(map[string]int),
		ByEndpoint: make(map[string]int),
	}
	for _, f := range failures {
		sum.ByCategory[f.Category]++
		sum.ByService[f.Service]++
		sum.ByEndpoint[f.Endpoint]++
	}

	var actions []string
	if sum.ByCategory[CategoryValidation] > 0 {
		actions = append(actions, "resolve missing client/registry configuration issues")
		sum.Severity = SeverityHigh
	}
	if sum.ByCategory[CategoryHTTP5xx] >= 3 {
		sum.Severity = SeverityHigh
		actions = append(actions, "investigate repeated 5xx responses from downstream services")
	}
	if sum.Severity == "" && (sum.ByCategory[CategoryTimeout] > 0 || sum.ByCategory[CategoryHTTP4xx] > 0) {
		sum.Severity = SeverityMedium
		actions = append(actions, "review timeout/4xx failures for affected slides")
	}
	sort.Strings(actions)
	sum.RecommendedAction = actions
	return sum
}
