// Package embedder defines the text embedding capability consumed by the
// semantic index.
//
// The embedding backend is the engine's only network dependency, so it is
// abstracted behind a small interface: backends are swappable and callers
// are expected to tolerate failure (the semantic index degrades to
// keyword-only recall when the provider is unavailable).
package embedder

import "context"

// Provider converts text into fixed-length embedding vectors.
type Provider interface {
	// Embed converts a single text into an embedding vector.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple texts into embedding vectors, in input
	// order. Preferred over repeated Embed calls where the backend can
	// batch requests.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the length of vectors produced by this provider.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}
