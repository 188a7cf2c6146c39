// Package embedding provides concrete implementations of the external
// embedding-provider contract that the collection service's Insert path
// (and the public akidb.EmbeddingProvider interface) expects: generate
// vectors from text without the core ever depending on a specific vendor.
//
// Embedding generation itself is an explicit non-goal of the storage and
// index core (it is an external collaborator, per spec §6) — nothing
// in internal/collection or internal/storagebackend imports this package.
// It exists for operators who want a ready-made provider to sit in front
// of Insert, matching the narrow contract: embed(texts) → vectors,
// model_info() → (name, dimension, max_tokens), health_check().
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aifocal/akidb"
	"github.com/aifocal/akidb/internal/akidberr"
)

// Compile-time assertions that every concrete provider here satisfies the
// public akidb.EmbeddingProvider contract, so a caller can wire any of them
// in by interface alone.
var (
	_ akidb.EmbeddingProvider = (*OpenAIProvider)(nil)
	_ akidb.EmbeddingProvider = (*OllamaProvider)(nil)
	_ akidb.EmbeddingProvider = (*NoopProvider)(nil)
)

// ErrNoProvider is returned by NoopProvider to signal that no real embedding
// provider is configured. Callers should treat this as "no embedding available"
// rather than a transient failure.
var ErrNoProvider = errors.New("embedding: no provider configured (noop)")

// maxResponseBody is the maximum size of an OpenAI embedding response we'll read (10 MB).
const maxResponseBody = 10 * 1024 * 1024

// Provider generates vector embeddings from text, matching the narrow
// contract spec §6 requires of an embedding collaborator: embed, describe
// the model, and report health. A "busy" condition (e.g. rate limiting)
// surfaces as an *akidberr.Error of Kind ServiceBusy so callers know to
// retry with backoff rather than treat it as a permanent failure.
type Provider interface {
	// Embed generates a single embedding vector from text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelInfo reports the model name, its output dimensionality, and the
	// maximum input length (in tokens) it accepts.
	ModelInfo() (name string, dimension int, maxTokens int)

	// HealthCheck reports whether the provider is currently reachable.
	HealthCheck(ctx context.Context) error

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// OpenAIProvider generates embeddings using the OpenAI API.
type OpenAIProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	dimensions int
	maxTokens  int
}

// NewOpenAIProvider creates a new OpenAI embedding provider.
// Dimensions should match the model's output size (e.g., 1536 for text-embedding-3-small,
// or a smaller value if using the dimensions parameter in the API request).
// Returns an error if apiKey is empty.
func NewOpenAIProvider(apiKey, model string, dimensions int) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: OpenAI API key is required")
	}
	if dimensions <= 0 {
		dimensions = 1536 // Default for text-embedding-3-small
	}
	return &OpenAIProvider{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dimensions: dimensions,
		maxTokens:  8191, // text-embedding-3-* context window
	}, nil
}

// Dimensions returns the embedding vector size.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

// ModelInfo reports the configured model name, its dimensionality, and its
// maximum input token count.
func (p *OpenAIProvider) ModelInfo() (name string, dimension int, maxTokens int) {
	return p.model, p.dimensions, p.maxTokens
}

// HealthCheck issues a minimal embedding request and reports whether the
// OpenAI API is currently reachable with the configured key.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.EmbedBatch(ctx, []string{"ok"})
	return err
}

type openAIRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed generates a single embedding.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single API call.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(openAIRequest{Input: texts, Model: p.model, Dimensions: p.dimensions})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("embedding: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, akidberr.New(akidberr.ServiceBusy, "embedding: openai rate-limited the request")
	}
	if resp.StatusCode != http.StatusOK {
		// Try to parse a structured error from the body; fall back to raw body.
		var errResp openAIResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil {
			return nil, fmt.Errorf("embedding: openai error (HTTP %d): %s: %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("embedding: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result openAIResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("embedding: unmarshal response: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("embedding: openai error: %s: %s", result.Error.Type, result.Error.Message)
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: expected %d embeddings but got %d", len(texts), len(result.Data))
	}

	// Ensure results are in input order.
	vecs := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding: invalid index %d in response", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}

	return vecs, nil
}

// NoopProvider is a placeholder provider: every embedding call returns
// ErrNoProvider instead of a vector.
type NoopProvider struct {
	dims int
}

// NewNoopProvider creates a provider whose embedding calls return ErrNoProvider.
func NewNoopProvider(dims int) *NoopProvider {
	return &NoopProvider{dims: dims}
}

// Dimensions returns the embedding vector size.
func (p *NoopProvider) Dimensions() int {
	return p.dims
}

// ModelInfo reports a sentinel name so health dashboards can distinguish a
// deliberately-disabled provider from a misconfigured real one.
func (p *NoopProvider) ModelInfo() (name string, dimension int, maxTokens int) {
	return "noop", p.dims, 0
}

// HealthCheck always reports ErrNoProvider: there is nothing to be healthy.
func (p *NoopProvider) HealthCheck(_ context.Context) error {
	return ErrNoProvider
}

// Embed returns ErrNoProvider. Callers skip embedding storage on error,
// avoiding vector-shaped zero padding when no provider is configured.
func (p *NoopProvider) Embed(_ context.Context, _ string) ([]float32, error) {
	return nil, ErrNoProvider
}

// EmbedBatch returns ErrNoProvider.
func (p *NoopProvider) EmbedBatch(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrNoProvider
}
