// Package capability defines the narrow contracts through which the memory
// engine consumes external model backends. The engine never talks to an LLM
// or embedding API directly; it only sees these two interfaces.
package capability

import "context"

// Generator produces text from a system instruction and a user prompt.
// Used by the summarizer to compact conversation segments.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Embedder converts text to vector embeddings.
// Used by the archive for similarity indexing and search.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one call. The returned slice
	// has one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
