package match

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/opsarka/samradar/internal/jsonx"
	"github.com/opsarka/samradar/internal/kb"
)

// extraction is the stage-one model output.
type extraction struct {
	Description    Description
	RequiredSkills []string
}

// parseExtraction reads the stage-one response. A failed parse degrades to
// the provided fallback description rather than failing the match.
func parseExtraction(raw, fallbackSummary string) extraction {
	obj, ok := jsonx.FirstObject(raw)
	if !ok {
		return extraction{Description: Description{
			BusinessSummary:     fallbackSummary,
			NonTechnicalSummary: fallbackSummary,
		}}
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(obj), &data); err != nil {
		return extraction{Description: Description{
			BusinessSummary:     fallbackSummary,
			NonTechnicalSummary: fallbackSummary,
		}}
	}

	out := extraction{RequiredSkills: coerceStringSlice(data["required_skills"])}
	if desc, ok := data["description"].(map[string]any); ok {
		out.Description.BusinessSummary = coerceString(desc["business_summary"])
		out.Description.NonTechnicalSummary = coerceString(desc["non_technical_summary"])
	}
	if out.Description.BusinessSummary == "" {
		out.Description.BusinessSummary = fallbackSummary
	}
	if out.Description.NonTechnicalSummary == "" {
		out.Description.NonTechnicalSummary = out.Description.BusinessSummary
	}
	return out
}

// assessment is the stage-three model output after validation.
type assessment struct {
	Score         float64
	Rationale     string
	CompanySkills []string
	Citations     []Citation
	// Fallback marks a response that could not be parsed at all.
	Fallback bool
}

// parseMatch validates the matching response. On total parse failure it
// returns the scored fallback (score 0, rationale naming the failure) so the
// caller always has a mergeable record. The score is clamped to [0,1]
// whatever the model returned.
func parseMatch(raw string) assessment {
	obj, ok := jsonx.FirstObject(raw)
	if !ok {
		return fallbackAssessment("no JSON object found in model response")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(obj), &data); err != nil {
		return fallbackAssessment(fmt.Sprintf("model response JSON invalid: %v", err))
	}

	return assessment{
		Score:         clampScore(coerceFloat(data["score"])),
		Rationale:     coerceString(data["rationale"]),
		CompanySkills: coerceStringSlice(data["company_skills"]),
		Citations:     coerceCitations(data["citations"]),
	}
}

func fallbackAssessment(reason string) assessment {
	return assessment{
		Score:         0,
		Rationale:     "match response could not be parsed: " + reason,
		CompanySkills: []string{},
		Citations:     []Citation{},
		Fallback:      true,
	}
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// coerceCitations keeps every citation entry, defaulting missing sub-fields
// to empty strings and capping excerpts.
func coerceCitations(v any) []Citation {
	raw, ok := v.([]any)
	if !ok {
		return []Citation{}
	}

	citations := make([]Citation, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		citations = append(citations, Citation{
			DocumentTitle: coerceString(m["document_title"]),
			SectionOrPage: coerceString(m["section_or_page"]),
			Excerpt:       kb.Truncate(coerceString(m["excerpt"])),
		})
	}
	return citations
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func coerceStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
