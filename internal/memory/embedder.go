package memory

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

// Embedder produces a fixed-dimension embedding for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimensions() int
}

// DeterministicEmbedder derives stable vectors from token hashes so the
// collection behaves identically offline. Texts sharing tokens land near each
// other, which is enough structure for tests and degraded operation.
type DeterministicEmbedder struct {
	dimensions int
}

// NewDeterministicEmbedder creates an offline embedder.
func NewDeterministicEmbedder(dimensions int) *DeterministicEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &DeterministicEmbedder{dimensions: dimensions}
}

// Dimensions reports the embedding width.
func (e *DeterministicEmbedder) Dimensions() int { return e.dimensions }

// Embed hashes each token into the vector and L2-normalizes the result.
func (e *DeterministicEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vector := make([]float64, e.dimensions)
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		vector[0] = 1
		return vector, nil
	}

	for _, token := range tokens {
		digest := sha256.Sum256([]byte(token))
		for i := 0; i < 4; i++ {
			idx := binary.BigEndian.Uint32(digest[i*8:]) % uint32(e.dimensions)
			sign := 1.0
			if digest[i*8+4]%2 == 1 {
				sign = -1.0
			}
			vector[idx] += sign
		}
	}

	var norm float64
	for _, v := range vector {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vector[0] = 1
		return vector, nil
	}
	for i := range vector {
		vector[i] /= norm
	}
	return vector, nil
}

// GenAIEmbedder backs Embedder with the Gemini embedding API.
type GenAIEmbedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewGenAIEmbedder creates a Gemini-backed embedder.
func NewGenAIEmbedder(ctx context.Context, apiKey, model string) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	return &GenAIEmbedder{client: client, model: model, dimensions: 768}, nil
}

// Dimensions reports the embedding width.
func (e *GenAIEmbedder) Dimensions() int { return e.dimensions }

// Embed generates an embedding for the text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	result, err := e.client.Models.EmbedContent(ctx, e.model, contents,
		&genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"})
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	values := result.Embeddings[0].Values
	vector := make([]float64, len(values))
	for i, v := range values {
		vector[i] = float64(v)
	}
	return vector, nil
}

// CosineDistance is 1 - cosine similarity; 0 means identical direction.
func CosineDistance(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - similarity
}
