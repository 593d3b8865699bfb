package match

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/errs"
	"github.com/opsarka/samradar/internal/kb"
	"github.com/opsarka/samradar/internal/sam"
)

// stubGenerator replays queued responses in order, recording prompts.
type stubGenerator struct {
	responses []string
	errs      []error
	prompts   []string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	i := len(s.prompts) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", nil
}

type stubRetriever struct {
	snippets  []kb.Snippet
	err       error
	lastQuery string
	lastLimit int
}

func (s *stubRetriever) Retrieve(_ context.Context, query string, limit int) ([]kb.Snippet, error) {
	s.lastQuery = query
	s.lastLimit = limit
	return s.snippets, s.err
}

// hangingGenerator never answers until its context expires.
type hangingGenerator struct{}

func (hangingGenerator) GenerateContent(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// hangingRetriever never answers until its context expires.
type hangingRetriever struct{}

func (hangingRetriever) Retrieve(ctx context.Context, _ string, _ int) ([]kb.Snippet, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testOpportunity() *sam.Opportunity {
	return &sam.Opportunity{
		CanonicalID:        "FA1234",
		NoticeID:           "N1",
		SolicitationNumber: "FA1234",
		Title:              "Radar Maintenance Services",
		FullParentPathName: "DEPT OF DEFENSE.DEPT OF THE AIR FORCE",
		PostedDate:         "2026-08-01",
		Type:               "Solicitation",
		ResponseDeadLine:   "2026-09-01",
		Description:        "Maintain ground radar systems.",
	}
}

func TestEvaluateHappyPath(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		`{"description": {"business_summary": "radar upkeep", "non_technical_summary": "keep radars running"}, "required_skills": ["radar repair"]}`,
		`Sure! {"score": 0.9, "rationale": "direct radar experience", "company_skills": ["radar repair"], "citations": [{"document_title": "Radar PP", "section_or_page": "p3", "excerpt": "we maintain radars"}]}`,
	}}
	score := 0.88
	ret := &stubRetriever{snippets: []kb.Snippet{
		{Index: 0, Title: "Radar PP", Snippet: "we maintain radars", Source: "radar.md", Location: "p3", Score: &score},
	}}

	engine := NewEngine(gen, ret, zap.NewNop(), Config{RetrievalLimit: 3})
	result, err := engine.Evaluate(context.Background(), testOpportunity(), "attachment text", "20260801/FA1234/FA1234_opportunity.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Score != 0.9 {
		t.Fatalf("score = %v, want 0.9", result.Score)
	}
	if result.UILink != "https://sam.gov/opp/N1/view" {
		t.Fatalf("unexpected uiLink: %s", result.UILink)
	}
	if result.EnhancedDescription.BusinessSummary != "radar upkeep" {
		t.Fatalf("unexpected description: %+v", result.EnhancedDescription)
	}
	if len(result.KBResults) != 1 {
		t.Fatalf("expected kb results embedded, got %d", len(result.KBResults))
	}
	if result.InputKey != "20260801/FA1234/FA1234_opportunity.json" {
		t.Fatalf("unexpected input key: %s", result.InputKey)
	}
	if result.ProcessingMetadata.FormatVersion != FormatVersion {
		t.Fatalf("unexpected format version: %s", result.ProcessingMetadata.FormatVersion)
	}
	if result.Timestamp == "" {
		t.Fatal("expected timestamp")
	}

	if len(gen.prompts) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(gen.prompts))
	}
	if !strings.Contains(gen.prompts[0], "attachment text") {
		t.Fatal("extraction prompt should carry attachment text")
	}
	if !strings.Contains(gen.prompts[1], "we maintain radars") {
		t.Fatal("matching prompt should embed retrieved snippets")
	}
	if ret.lastLimit != 3 {
		t.Fatalf("retrieval limit = %d, want 3", ret.lastLimit)
	}
	if !strings.Contains(ret.lastQuery, "radar repair") {
		t.Fatalf("retrieval query should use extracted skills, got %q", ret.lastQuery)
	}
}

func TestEvaluateClampsOutOfRangeScore(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		`{"description": {"business_summary": "x", "non_technical_summary": "x"}, "required_skills": []}`,
		`Here is the result: {"score": 1.4, "rationale": "ok"}`,
	}}
	engine := NewEngine(gen, &stubRetriever{}, zap.NewNop(), Config{})

	result, err := engine.Evaluate(context.Background(), testOpportunity(), "", "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 1.0 {
		t.Fatalf("score = %v, want 1.0", result.Score)
	}
}

func TestEvaluateFallbackOnUnparsableMatch(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		`{"description": {"business_summary": "x", "non_technical_summary": "x"}, "required_skills": ["y"]}`,
		`I cannot produce JSON today.`,
	}}
	engine := NewEngine(gen, &stubRetriever{}, zap.NewNop(), Config{})

	result, err := engine.Evaluate(context.Background(), testOpportunity(), "", "key")
	if err != nil {
		t.Fatalf("parse failure must not surface as error, got %v", err)
	}
	if result.Score != 0 {
		t.Fatalf("fallback score = %v, want 0", result.Score)
	}
	if !strings.Contains(result.Rationale, "could not be parsed") {
		t.Fatalf("unexpected rationale: %q", result.Rationale)
	}
}

func TestEvaluateDegradedExtractionStillMatches(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		`no structured output here`,
		`{"score": 0.3, "rationale": "weak fit"}`,
	}}
	ret := &stubRetriever{}
	engine := NewEngine(gen, ret, zap.NewNop(), Config{})

	result, err := engine.Evaluate(context.Background(), testOpportunity(), "", "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EnhancedDescription.BusinessSummary != "Maintain ground radar systems." {
		t.Fatalf("expected raw description fallback, got %q", result.EnhancedDescription.BusinessSummary)
	}
	if !strings.Contains(ret.lastQuery, "Maintain ground radar systems.") {
		t.Fatalf("retrieval should fall back to raw description, got %q", ret.lastQuery)
	}
	if result.Score != 0.3 {
		t.Fatalf("score = %v, want 0.3", result.Score)
	}
}

func TestEvaluateTruncatesAttachmentBudget(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		`{"description": {"business_summary": "x", "non_technical_summary": "x"}}`,
		`{"score": 0.1, "rationale": "ok"}`,
	}}
	engine := NewEngine(gen, &stubRetriever{}, zap.NewNop(), Config{AttachmentBudget: 10})

	_, err := engine.Evaluate(context.Background(), testOpportunity(), strings.Repeat("a", 100), "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(gen.prompts[0], strings.Repeat("a", 11)) {
		t.Fatal("attachment text not truncated to budget")
	}
}

func TestEvaluateBoundsModelCalls(t *testing.T) {
	engine := NewEngine(hangingGenerator{}, &stubRetriever{}, zap.NewNop(), Config{ModelTimeout: 10 * time.Millisecond})

	_, err := engine.Evaluate(context.Background(), testOpportunity(), "", "key")
	if err == nil {
		t.Fatal("expected an error from a hanging model call")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error, got %v", err)
	}
	if !errs.Retryable(err) {
		t.Fatal("a model timeout must stay retryable")
	}
}

func TestEvaluateBoundsRetrievalCalls(t *testing.T) {
	gen := &stubGenerator{responses: []string{
		`{"description": {"business_summary": "x", "non_technical_summary": "x"}, "required_skills": ["radar"]}`,
	}}
	engine := NewEngine(gen, hangingRetriever{}, zap.NewNop(), Config{KBTimeout: 10 * time.Millisecond})

	_, err := engine.Evaluate(context.Background(), testOpportunity(), "", "key")
	if err == nil {
		t.Fatal("expected an error from a hanging knowledge-base query")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected a deadline error, got %v", err)
	}
}
