package gemini

import (
	"context"
	"net/http"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/opsarka/samradar/internal/errs"
)

type fakeModels struct {
	generateResp *genai.GenerateContentResponse
	generateErr  error
	embedResp    *genai.EmbedContentResponse
	embedErr     error
	lastContents []*genai.Content
	lastModel    string
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.lastModel = model
	f.lastContents = contents
	return f.generateResp, f.generateErr
}

func (f *fakeModels) EmbedContent(_ context.Context, model string, contents []*genai.Content, _ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.lastModel = model
	f.lastContents = contents
	return f.embedResp, f.embedErr
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content}},
	}
}

func TestNewGeneratorRequiresAPIKey(t *testing.T) {
	_, err := NewGenerator(context.Background(), "  ", "", "", zap.NewNop())
	if err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestGenerateContentConcatenatesParts(t *testing.T) {
	fake := &fakeModels{generateResp: textResponse("first", "", "second")}
	g := &Generator{models: fake, model: "gemini-test", logger: zap.NewNop()}

	out, err := g.GenerateContent(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "first\nsecond" {
		t.Fatalf("unexpected output: %q", out)
	}
	if fake.lastModel != "gemini-test" {
		t.Fatalf("unexpected model: %s", fake.lastModel)
	}
}

func TestGenerateContentEmptyPrompt(t *testing.T) {
	g := &Generator{models: &fakeModels{}, model: "gemini-test", logger: zap.NewNop()}
	if _, err := g.GenerateContent(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestGenerateContentClassifiesRateLimit(t *testing.T) {
	fake := &fakeModels{generateErr: genai.APIError{Code: http.StatusTooManyRequests, Status: "RESOURCE_EXHAUSTED"}}
	g := &Generator{models: fake, model: "gemini-test", logger: zap.NewNop()}

	_, err := g.GenerateContent(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.KindOf(err) != errs.KindTransient {
		t.Fatalf("expected transient error, got kind %v", errs.KindOf(err))
	}
}

func TestGenerateContentClassifiesClientError(t *testing.T) {
	fake := &fakeModels{generateErr: genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}}
	g := &Generator{models: fake, model: "gemini-test", logger: zap.NewNop()}

	_, err := g.GenerateContent(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if errs.KindOf(err) != errs.KindSystem {
		t.Fatalf("expected system error, got kind %v", errs.KindOf(err))
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	fake := &fakeModels{embedResp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.1, 0.2}}},
	}}
	g := &Generator{models: fake, embedModel: "embed-test", logger: zap.NewNop()}

	vec, err := g.Embed(context.Background(), "capability text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("unexpected vector: %v", vec)
	}
	if fake.lastModel != "embed-test" {
		t.Fatalf("unexpected model: %s", fake.lastModel)
	}
}

func TestEmbedEmptyResponse(t *testing.T) {
	fake := &fakeModels{embedResp: &genai.EmbedContentResponse{}}
	g := &Generator{models: fake, embedModel: "embed-test", logger: zap.NewNop()}

	if _, err := g.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error for empty embedding response")
	}
}
