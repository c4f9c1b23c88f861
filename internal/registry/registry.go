// Package registry loads and validates the taxonomy registry: the per-service
// variant catalog that the slide-type classifier and the Stage-6 scheduler
// consult. The registry is read once at startup and is immutable thereafter;
// callers must treat a *Registry as read-only.
package registry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// EndpointPattern names how a service exposes its variants over HTTP.
type EndpointPattern string

const (
	// PatternSingle is one endpoint per service; the variant is selected in
	// the request body.
	PatternSingle EndpointPattern = "single"
	// PatternPerVariant is one endpoint per variant.
	PatternPerVariant EndpointPattern = "per_variant"
	// PatternTyped is one endpoint family keyed by a type path parameter.
	PatternTyped EndpointPattern = "typed"
)

type (
	// Registry is the immutable, process-wide taxonomy of services and
	// variants. Construct with Load; never mutate after construction.
	Registry struct {
		Services map[string]Service
		// variants indexes every Variant by VariantID across all services.
		variants map[string]Variant
		// byKeyword indexes the (lowercased) keyword to the VariantID that
		// owns it.
		byKeyword map[string]string
	}

	// Service is one of text/illustrator/analytics.
	Service struct {
		Name            string
		BaseURL         string
		Timeout         time.Duration
		EndpointPattern EndpointPattern
		Variants        []Variant
	}

	// Variant is one concrete visual/content template within a service.
	Variant struct {
		VariantID      string
		Service        string
		EndpointPath   string
		Classification Classification
		// LLMGuidance carries optional free-form prompt guidance metadata.
		LLMGuidance map[string]any
		// Params carries service-specific parameters (e.g., illustration
		// element-count bounds, analytics data-shape constraints).
		Params map[string]any
		// Disabled variants are silently remapped to FallbackVariantID by the
		// scheduler.
		Disabled bool
		// FallbackVariantID names the variant to substitute when Disabled.
		FallbackVariantID string
	}

	// Classification is a variant's slide-type-classifier metadata.
	Classification struct {
		Priority int
		Keywords []string
		LayoutID string
		// Name is the slide-type classification label (e.g. "pyramid",
		// "title_hero"); distinct from VariantID, which may specialize it.
		Name string
	}
)

var variantIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// taxonomySchema is the published JSON Schema that a registry document must
// satisfy structurally, ahead of the semantic checks in validate().
const taxonomySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["services"],
  "properties": {
    "services": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["base_url", "endpoint_pattern", "variants"],
        "properties": {
          "base_url": {"type": "string", "minLength": 1},
          "timeout_seconds": {"type": "number", "exclusiveMinimum": 0},
          "endpoint_pattern": {"enum": ["single", "per_variant", "typed"]},
          "variants": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["variant_id", "endpoint_path", "classification"],
              "properties": {
                "variant_id": {"type": "string", "pattern": "^[a-z][a-z0-9_]*$"},
                "endpoint_path": {"type": "string", "minLength": 1},
                "classification": {
                  "type": "object",
                  "required": ["priority", "keywords", "layout_id"],
                  "properties": {
                    "priority": {"type": "integer", "minimum": 1, "maximum": 100},
                    "keywords": {
                      "type": "array",
                      "minItems": 5,
                      "items": {"type": "string", "minLength": 1}
                    },
                    "layout_id": {"enum": ["L25", "L29"]},
                    "name": {"type": "string"}
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`

// document mirrors the wire JSON shape of the registry file.
type document struct {
	Services map[string]struct {
		BaseURL         string          `json:"base_url"`
		TimeoutSeconds  float64         `json:"timeout_seconds"`
		EndpointPattern EndpointPattern `json:"endpoint_pattern"`
		Variants        []struct {
			VariantID      string `json:"variant_id"`
			EndpointPath   string `json:"endpoint_path"`
			Classification struct {
				Priority int      `json:"priority"`
				Keywords []string `json:"keywords"`
				LayoutID string   `json:"layout_id"`
				Name     string   `json:"name"`
			} `json:"classification"`
			LLMGuidance       map[string]any `json:"llm_guidance"`
			Params            map[string]any `json:"params"`
			Disabled          bool           `json:"disabled"`
			FallbackVariantID string         `json:"fallback_variant_id"`
		} `json:"variants"`
	} `json:"services"`
}

// Load parses and validates raw registry JSON, rejecting a document with
// duplicate variant IDs, duplicate keywords across variants, priorities
// outside [1,100], fewer than 5 keywords per classification, an unknown
// endpoint pattern, or a variant with no endpoint path. An endpoint path is
// not checked against its service's pattern.
func Load(raw []byte) (*Registry, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("registry: invalid json: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("taxonomy.json", mustDecodeSchema()); err != nil {
		return nil, fmt.Errorf("registry: add schema resource: %w", err)
	}
	schema, err := compiler.Compile("taxonomy.json")
	if err != nil {
		return nil, fmt.Errorf("registry: compile schema: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, fmt.Errorf("registry: schema validation failed: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("registry: invalid json: %w", err)
	}

	reg := &Registry{
		Services:  make(map[string]Service, len(doc.Services)),
		variants:  make(map[string]Variant),
		byKeyword: make(map[string]string),
	}

	for name, svc := range doc.Services {
		service := Service{
			Name:            name,
			BaseURL:         svc.BaseURL,
			Timeout:         time.Duration(svc.TimeoutSeconds * float64(time.Second)),
			EndpointPattern: svc.EndpointPattern,
		}
		if service.Timeout <= 0 {
			service.Timeout = 30 * time.Second
		}

		for _, v := range svc.Variants {
			if !variantIDPattern.MatchString(v.VariantID) {
				return nil, fmt.Errorf("registry: variant_id %q does not match %s", v.VariantID, variantIDPattern.String())
			}
			if _, dup := reg.variants[v.VariantID]; dup {
				return nil, fmt.Errorf("registry: duplicate variant_id %q", v.VariantID)
			}
			if v.Classification.Priority < 1 || v.Classification.Priority > 100 {
				return nil, fmt.Errorf("registry: variant %q priority %d out of range [1,100]", v.VariantID, v.Classification.Priority)
			}
			if len(v.Classification.Keywords) < 5 {
				return nil, fmt.Errorf("registry: variant %q has fewer than 5 keywords", v.VariantID)
			}
			if err := checkEndpointPattern(service.EndpointPattern, v.EndpointPath, v.VariantID); err != nil {
				return nil, err
			}

			variant := Variant{
				VariantID:    v.VariantID,
				Service:      name,
				EndpointPath: v.EndpointPath,
				Classification: Classification{
					Priority: v.Classification.Priority,
					Keywords: v.Classification.Keywords,
					LayoutID: v.Classification.LayoutID,
					Name:     v.Classification.Name,
				},
				LLMGuidance:       v.LLMGuidance,
				Params:            v.Params,
				Disabled:          v.Disabled,
				FallbackVariantID: v.FallbackVariantID,
			}

			for _, kw := range v.Classification.Keywords {
				key := normalizeKeyword(kw)
				if owner, dup := reg.byKeyword[key]; dup {
					return nil, fmt.Errorf("registry: keyword %q duplicated between variants %q and %q", kw, owner, v.VariantID)
				}
				reg.byKeyword[key] = v.VariantID
			}

			reg.variants[v.VariantID] = variant
			service.Variants = append(service.Variants, variant)
		}
		reg.Services[name] = service
	}

	return reg, nil
}

// checkEndpointPattern rejects a variant whose service declares an unknown
// endpoint pattern or whose endpoint path is empty. The shape of the path is
// not compared with the pattern.
func checkEndpointPattern(pattern EndpointPattern, path, variantID string) error {
	switch pattern {
	case PatternSingle, PatternPerVariant, PatternTyped:
		if path == "" {
			return fmt.Errorf("registry: variant %q missing endpoint_path", variantID)
		}
		return nil
	default:
		return fmt.Errorf("registry: variant %q has unknown endpoint pattern %q", variantID, pattern)
	}
}

func normalizeKeyword(kw string) string {
	out := make([]rune, 0, len(kw))
	for _, r := range kw {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// Variant looks up a variant by ID.
func (r *Registry) Variant(variantID string) (Variant, bool) {
	v, ok := r.variants[variantID]
	return v, ok
}

// VariantByKeyword returns the variant owning the given keyword, if any.
func (r *Registry) VariantByKeyword(keyword string) (Variant, bool) {
	id, ok := r.byKeyword[normalizeKeyword(keyword)]
	if !ok {
		return Variant{}, false
	}
	return r.Variant(id)
}

// VariantsByPriority returns every variant across all services, sorted by
// ascending classification priority, for the classifier's keyword scan.
func (r *Registry) VariantsByPriority() []Variant {
	out := make([]Variant, 0, len(r.variants))
	for _, v := range r.variants {
		out = append(out, v)
	}
	sortVariantsByPriority(out)
	return out
}

func sortVariantsByPriority(vs []Variant) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && vs[j].Classification.Priority < vs[j-1].Classification.Priority; j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}
}

func mustDecodeSchema() any {
	var v any
	if err := json.Unmarshal([]byte(taxonomySchema), &v); err != nil {
		panic("registry: embedded taxonomy schema is invalid: " + err.Error())
	}
	return v
}
