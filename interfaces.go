package akidb

import "context"

// EmbeddingProvider generates vector embeddings from text. AkiDB's storage
// and index layers never call this themselves — embedding generation is an
// external collaborator's responsibility — but the interface is exposed here
// so a caller can wire one provider across both the embedding step and the
// Insert call without reaching into internal packages. internal/embedding's
// OllamaProvider, OpenAIProvider, and NoopProvider all satisfy it.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelInfo reports the model name, its output dimensionality, and the
	// maximum input length (in tokens) it accepts.
	ModelInfo() (name string, dimension int, maxTokens int)

	// HealthCheck reports whether the provider is currently reachable.
	HealthCheck(ctx context.Context) error

	Dimensions() int
}
