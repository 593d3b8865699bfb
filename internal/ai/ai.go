// Package ai defines the generative-model contracts consumed by the match
// pipeline. Implementations live in subpackages.
package ai

import "context"

// Generator produces a text completion for a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Embedder produces a vector embedding for a text. Used by the knowledge
// base to embed capability documents and retrieval queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
