package match

import (
	"strings"
	"testing"

	"github.com/opsarka/samradar/internal/kb"
)

func TestParseMatchClampsScore(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want float64
	}{
		{name: "above range", raw: `Here is the result: {"score": 1.4, "rationale": "ok"}`, want: 1.0},
		{name: "below range", raw: `{"score": -2, "rationale": "ok"}`, want: 0},
		{name: "in range", raw: `{"score": 0.62, "rationale": "ok"}`, want: 0.62},
		{name: "string score", raw: `{"score": "0.5", "rationale": "ok"}`, want: 0.5},
		{name: "non numeric score", raw: `{"score": "high", "rationale": "ok"}`, want: 0},
		{name: "missing score", raw: `{"rationale": "ok"}`, want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			verdict := parseMatch(tc.raw)
			if verdict.Fallback {
				t.Fatalf("unexpected fallback for %q", tc.raw)
			}
			if verdict.Score != tc.want {
				t.Fatalf("score = %v, want %v", verdict.Score, tc.want)
			}
		})
	}
}

func TestParseMatchFallbackOnGarbage(t *testing.T) {
	verdict := parseMatch("I am sorry, I cannot evaluate this opportunity.")

	if !verdict.Fallback {
		t.Fatal("expected fallback")
	}
	if verdict.Score != 0 {
		t.Fatalf("fallback score = %v, want 0", verdict.Score)
	}
	if !strings.Contains(verdict.Rationale, "could not be parsed") {
		t.Fatalf("fallback rationale should name the failure, got %q", verdict.Rationale)
	}
	if verdict.CompanySkills == nil || len(verdict.CompanySkills) != 0 {
		t.Fatalf("expected empty skills, got %v", verdict.CompanySkills)
	}
	if verdict.Citations == nil || len(verdict.Citations) != 0 {
		t.Fatalf("expected empty citations, got %v", verdict.Citations)
	}
}

func TestParseMatchCitationDefaults(t *testing.T) {
	raw := `{"score": 0.8, "rationale": "fits", "citations": [
		{"document_title": "Radar Capabilities"},
		{"excerpt": "` + strings.Repeat("a", 600) + `"}
	]}`

	verdict := parseMatch(raw)

	if len(verdict.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(verdict.Citations))
	}

	first := verdict.Citations[0]
	if first.DocumentTitle != "Radar Capabilities" || first.SectionOrPage != "" || first.Excerpt != "" {
		t.Fatalf("missing sub-fields must default to empty strings: %+v", first)
	}

	second := verdict.Citations[1]
	if len([]rune(second.Excerpt)) != kb.MaxSnippetRunes {
		t.Fatalf("excerpt not truncated: %d runes", len([]rune(second.Excerpt)))
	}
}

func TestParseExtraction(t *testing.T) {
	raw := "```json\n" + `{"description": {"business_summary": "buys radar parts", "non_technical_summary": "radar upkeep"}, "required_skills": ["radar repair", "logistics"]}` + "\n```"

	ext := parseExtraction(raw, "fallback")

	if ext.Description.BusinessSummary != "buys radar parts" {
		t.Fatalf("unexpected summary: %q", ext.Description.BusinessSummary)
	}
	if len(ext.RequiredSkills) != 2 {
		t.Fatalf("expected 2 skills, got %v", ext.RequiredSkills)
	}
}

func TestParseExtractionDegradesToFallback(t *testing.T) {
	ext := parseExtraction("not a json response", "original description")

	if ext.Description.BusinessSummary != "original description" {
		t.Fatalf("expected fallback summary, got %q", ext.Description.BusinessSummary)
	}
	if len(ext.RequiredSkills) != 0 {
		t.Fatalf("expected no skills, got %v", ext.RequiredSkills)
	}
}
