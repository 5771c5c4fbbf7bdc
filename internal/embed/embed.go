// Package embed generates query embeddings for similarity search.
package embed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Common errors for embedding operations
var (
	ErrEmptyTexts      = errors.New("no texts provided for embedding")
	ErrMissingAPIKey   = errors.New("OPENAI_API_KEY environment variable not set")
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Config holds embedding provider settings
type Config struct {
	Model      string // e.g. "text-embedding-3-small"
	Dimensions int    // 0 keeps the model's native dimension
	APIKey     string // falls back to OPENAI_API_KEY
	BaseURL    string // OpenAI-compatible endpoint, empty for api.openai.com
}

// OpenAIEmbedder embeds text with an OpenAI-compatible embeddings API
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIEmbedder creates a new OpenAI embedder instance
func NewOpenAIEmbedder(cfg Config, opts ...option.RequestOption) (*OpenAIEmbedder, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIEmbedder{
		client:    openai.NewClient(reqOpts...),
		model:     cfg.Model,
		dimension: cfg.Dimensions,
	}, nil
}

// Model returns the embedding model identifier
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Embed generates one embedding per text, in input order
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyTexts
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(texts) {
			return nil, fmt.Errorf("%w: unexpected index %d", ErrEmbeddingFailed, idx)
		}
		// Convert []float64 to []float32
		embedding := make([]float32, len(data.Embedding))
		for j, val := range data.Embedding {
			embedding[j] = float32(val)
		}
		vectors[idx] = embedding
	}

	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: no embedding for input %d", ErrEmbeddingFailed, i)
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
