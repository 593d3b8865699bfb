// Package match scores opportunities against the company knowledge base
// using a two-stage generative pipeline.
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/opsarka/samradar/internal/ai"
	"github.com/opsarka/samradar/internal/kb"
	"github.com/opsarka/samradar/internal/logger"
	"github.com/opsarka/samradar/internal/sam"
)

//go:embed extraction_prompt.md
var extractionPrompt string

//go:embed matching_prompt.md
var matchingPrompt string

const (
	defaultAttachmentBudget = 20000
	defaultRetrievalLimit   = 5
	defaultMaxLogLength     = 200
	defaultModelTimeout     = 2 * time.Minute
	defaultKBTimeout        = 15 * time.Second
	defaultStorageTimeout   = 30 * time.Second
)

// Config tunes the engine.
type Config struct {
	// AttachmentBudget caps attachment text carried into the extraction
	// prompt, in runes.
	AttachmentBudget int `mapstructure:"attachment-budget"`
	// RetrievalLimit is the number of knowledge-base snippets requested.
	RetrievalLimit int `mapstructure:"retrieval-limit"`
	// MaxLogLength bounds prompt/response previews in debug logs.
	MaxLogLength int `mapstructure:"max-log-length"`
	// ModelTimeout bounds each model invocation.
	ModelTimeout time.Duration `mapstructure:"model-timeout"`
	// KBTimeout bounds each knowledge-base query.
	KBTimeout time.Duration `mapstructure:"kb-timeout"`
	// StorageTimeout bounds each storage call made while processing a
	// message.
	StorageTimeout time.Duration `mapstructure:"storage-timeout"`
}

func (c *Config) applyDefaults() {
	if c.AttachmentBudget <= 0 {
		c.AttachmentBudget = defaultAttachmentBudget
	}
	if c.RetrievalLimit <= 0 {
		c.RetrievalLimit = defaultRetrievalLimit
	}
	if c.MaxLogLength <= 0 {
		c.MaxLogLength = defaultMaxLogLength
	}
	if c.ModelTimeout <= 0 {
		c.ModelTimeout = defaultModelTimeout
	}
	if c.KBTimeout <= 0 {
		c.KBTimeout = defaultKBTimeout
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = defaultStorageTimeout
	}
}

// Engine runs extraction, retrieval and matching for one opportunity.
type Engine struct {
	generator ai.Generator
	retriever kb.Retriever
	logger    *zap.Logger
	cfg       Config
	now       func() time.Time
}

func NewEngine(generator ai.Generator, retriever kb.Retriever, logger *zap.Logger, cfg Config) *Engine {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		generator: generator,
		retriever: retriever,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Evaluate produces the MatchResult for one opportunity. Model output that
// cannot be parsed degrades to a scored fallback; only transport-level
// failures (model, knowledge base) are returned as errors, and those carry
// retryability classification for the caller.
func (e *Engine) Evaluate(ctx context.Context, opp *sam.Opportunity, attachmentText, inputKey string) (*Result, error) {
	if opp == nil {
		return nil, fmt.Errorf("opportunity is required")
	}

	ext, err := e.extract(ctx, opp, attachmentText)
	if err != nil {
		return nil, err
	}

	snippets, err := e.retrieve(ctx, opp, ext)
	if err != nil {
		return nil, err
	}

	verdict, err := e.score(ctx, opp, ext, snippets)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SolicitationNumber:  opp.SolicitationNumber,
		NoticeID:            opp.NoticeID,
		Title:               opp.Title,
		FullParentPathName:  opp.FullParentPathName,
		PostedDate:          opp.PostedDate,
		Type:                opp.Type,
		ResponseDeadLine:    opp.ResponseDeadLine,
		PointOfContact:      opp.PointOfContact,
		PlaceOfPerformance:  opp.PlaceOfPerformance,
		UILink:              opp.UILink(),
		EnhancedDescription: ext.Description,
		Score:               verdict.Score,
		Rationale:           verdict.Rationale,
		CompanySkills:       verdict.CompanySkills,
		Citations:           verdict.Citations,
		KBResults:           snippets,
		InputKey:            inputKey,
		Timestamp:           e.now().UTC().Format(time.RFC3339),
		ProcessingMetadata:  Metadata{FormatVersion: FormatVersion},
	}

	e.logger.Info("opportunity evaluated",
		zap.String("opportunity_id", opp.CanonicalID),
		zap.Float64("score", result.Score),
		zap.Int("kb_snippets", len(snippets)),
		zap.Bool("fallback", verdict.Fallback),
	)

	return result, nil
}

func (e *Engine) extract(ctx context.Context, opp *sam.Opportunity, attachmentText string) (extraction, error) {
	oppJSON, err := json.MarshalIndent(opp, "", "  ")
	if err != nil {
		return extraction{}, fmt.Errorf("marshal opportunity: %w", err)
	}

	attachmentText = truncateRunes(attachmentText, e.cfg.AttachmentBudget)
	if attachmentText == "" {
		attachmentText = "(no attachments)"
	}

	prompt := strings.ReplaceAll(extractionPrompt, "{{OPPORTUNITY_JSON}}", string(oppJSON))
	prompt = strings.ReplaceAll(prompt, "{{ATTACHMENT_TEXT}}", attachmentText)

	e.logger.Debug("extraction request",
		zap.String("opportunity_id", opp.CanonicalID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, e.cfg.MaxLogLength)),
	)

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	raw, err := e.generator.GenerateContent(genCtx, prompt)
	cancel()
	if err != nil {
		return extraction{}, fmt.Errorf("extraction stage: %w", err)
	}

	ext := parseExtraction(raw, fallbackSummary(opp))
	if len(ext.RequiredSkills) == 0 {
		e.logger.Debug("extraction returned no skills, matching on raw description",
			zap.String("opportunity_id", opp.CanonicalID),
		)
	}
	return ext, nil
}

func (e *Engine) retrieve(ctx context.Context, opp *sam.Opportunity, ext extraction) ([]kb.Snippet, error) {
	query := strings.TrimSpace(strings.Join(ext.RequiredSkills, ", ") + " " + ext.Description.BusinessSummary)
	if query == "" {
		query = opp.Title
	}

	kbCtx, cancel := context.WithTimeout(ctx, e.cfg.KBTimeout)
	snippets, err := e.retriever.Retrieve(kbCtx, query, e.cfg.RetrievalLimit)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("retrieval stage: %w", err)
	}
	if snippets == nil {
		snippets = []kb.Snippet{}
	}
	return snippets, nil
}

func (e *Engine) score(ctx context.Context, opp *sam.Opportunity, ext extraction, snippets []kb.Snippet) (assessment, error) {
	requirements := map[string]any{
		"title":           opp.Title,
		"description":     ext.Description,
		"required_skills": ext.RequiredSkills,
	}
	reqJSON, err := json.MarshalIndent(requirements, "", "  ")
	if err != nil {
		return assessment{}, fmt.Errorf("marshal requirements: %w", err)
	}
	snippetJSON, err := json.MarshalIndent(snippets, "", "  ")
	if err != nil {
		return assessment{}, fmt.Errorf("marshal snippets: %w", err)
	}

	prompt := strings.ReplaceAll(matchingPrompt, "{{REQUIREMENTS_JSON}}", string(reqJSON))
	prompt = strings.ReplaceAll(prompt, "{{SNIPPETS_JSON}}", string(snippetJSON))

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.ModelTimeout)
	raw, err := e.generator.GenerateContent(genCtx, prompt)
	cancel()
	if err != nil {
		return assessment{}, fmt.Errorf("matching stage: %w", err)
	}

	e.logger.Debug("matching response",
		zap.String("opportunity_id", opp.CanonicalID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, e.cfg.MaxLogLength)),
	)

	verdict := parseMatch(raw)
	if verdict.Fallback {
		e.logger.Warn("match response unparsable, using fallback score",
			zap.String("opportunity_id", opp.CanonicalID),
			zap.String("response_preview", logger.TruncateForLog(raw, e.cfg.MaxLogLength)),
		)
	}
	return verdict, nil
}

func fallbackSummary(opp *sam.Opportunity) string {
	if opp.Description != "" {
		return opp.Description
	}
	return opp.Title
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
