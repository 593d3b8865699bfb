// Package kb provides retrieval over the company capability knowledge base.
package kb

import "context"

// MaxSnippetRunes bounds snippet and excerpt text carried through the
// pipeline.
const MaxSnippetRunes = 500

// Snippet is one retrieved knowledge-base item, normalized for embedding
// into match results.
type Snippet struct {
	Index    int               `json:"index"`
	Title    string            `json:"title"`
	Snippet  string            `json:"snippet"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata"`
	Location string            `json:"location"`
	Score    *float64          `json:"score,omitempty"`
}

// Retriever answers free-text queries with ranked snippets. The match
// engine consumes this contract without caring about the backing index.
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Snippet, error)
}

// Truncate caps s at MaxSnippetRunes runes.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxSnippetRunes {
		return s
	}
	return string(runes[:MaxSnippetRunes])
}
