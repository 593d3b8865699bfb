package match

import (
	"github.com/opsarka/samradar/internal/kb"
	"github.com/opsarka/samradar/internal/sam"
)

// FormatVersion identifies the MatchResult wire schema.
const FormatVersion = "1.0"

// Description is the model-normalized opportunity description.
type Description struct {
	BusinessSummary     string `json:"business_summary"`
	NonTechnicalSummary string `json:"non_technical_summary"`
}

// Citation points at the knowledge-base passage supporting the score.
type Citation struct {
	DocumentTitle string `json:"document_title"`
	SectionOrPage string `json:"section_or_page"`
	Excerpt       string `json:"excerpt"`
}

// Metadata carries processing provenance.
type Metadata struct {
	FormatVersion string `json:"format_version"`
}

// Result is the per-opportunity match record. One Result references exactly
// one opportunity; reprocessing overwrites the prior record under the same
// key.
type Result struct {
	SolicitationNumber  string       `json:"solicitationNumber"`
	NoticeID            string       `json:"noticeId"`
	Title               string       `json:"title"`
	FullParentPathName  string       `json:"fullParentPathName"`
	PostedDate          string       `json:"postedDate"`
	Type                string       `json:"type"`
	ResponseDeadLine    string       `json:"responseDeadLine"`
	PointOfContact      sam.Contact  `json:"pointOfContact"`
	PlaceOfPerformance  sam.Place    `json:"placeOfPerformance"`
	UILink              string       `json:"uiLink"`
	EnhancedDescription Description  `json:"enhanced_description"`
	Score               float64      `json:"score"`
	Rationale           string       `json:"rationale"`
	CompanySkills       []string     `json:"company_skills"`
	Citations           []Citation   `json:"citations"`
	KBResults           []kb.Snippet `json:"kb_retrieval_results"`
	InputKey            string       `json:"input_key"`
	Timestamp           string       `json:"timestamp"`
	ProcessingMetadata  Metadata     `json:"processing_metadata"`
}
