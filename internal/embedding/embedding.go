// Package embedding turns evidence text into vectors for clustering and
// semantic comparison.
package embedding

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/scopeline/scopeline/internal/types"
)

// Provider computes vector embeddings for batches of text. Implementations
// must return exactly one vector per input text, in input order.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = string(openai.SmallEmbedding3)

// DefaultBatchSize is how many texts are embedded per API request.
const DefaultBatchSize = 100

// DefaultRequestsPerSecond is the client-side rate limit on embedding
// requests.
const DefaultRequestsPerSecond = 5

// Config holds embedding provider configuration
type Config struct {
	APIKey            string  // OpenAI API key (if empty, reads from OPENAI_API_KEY env var)
	Model             string  // Embedding model (default: DefaultModel)
	BatchSize         int     // Texts per request (default: 100)
	RequestsPerSecond float64 // Client-side rate limit (default: 5)
}

// OpenAIProvider computes embeddings through the OpenAI embeddings API.
type OpenAIProvider struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	batchSize int
	limiter   *rate.Limiter
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates an embedding provider from the given config.
func NewOpenAIProvider(cfg *Config) (*OpenAIProvider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}

	return &OpenAIProvider{
		client:    openai.NewClient(apiKey),
		model:     openai.EmbeddingModel(model),
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// Embed computes one vector per input text, batching requests and pacing
// them through the rate limiter.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: p.model,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding request failed: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, types.NewRetryableConsistencyError("embed",
				"provider returned %d vectors for %d texts", len(resp.Data), len(batch))
		}
		for _, item := range resp.Data {
			vectors = append(vectors, item.Embedding)
		}
	}
	return vectors, nil
}

// Embedder backfills missing embeddings on evidence.
type Embedder struct {
	provider Provider
	store    Store
}

// Store is the storage surface the embedder needs.
type Store interface {
	GetUnembeddedEvidence(ctx context.Context) ([]*types.Evidence, error)
	SetEvidenceEmbedding(ctx context.Context, evidenceID string, embedding []float32) error
}

// NewEmbedder creates an embedder.
func NewEmbedder(provider Provider, store Store) (*Embedder, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	return &Embedder{provider: provider, store: store}, nil
}

// Result summarizes one embedding backfill pass.
type Result struct {
	Attempted      int
	Embedded       int
	Failed         int
	ProcessingTime time.Duration
}

// EmbedPending embeds every evidence item that does not yet have a vector.
// A provider failure fails the whole pass; a persistence failure on one
// item is logged and skipped.
func (e *Embedder) EmbedPending(ctx context.Context) (*Result, error) {
	start := time.Now()

	pending, err := e.store.GetUnembeddedEvidence(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unembedded evidence: %w", err)
	}
	result := &Result{Attempted: len(pending)}
	if len(pending) == 0 {
		result.ProcessingTime = time.Since(start)
		return result, nil
	}

	texts := make([]string, len(pending))
	for i, ev := range pending {
		texts[i] = ev.Content
	}

	vectors, err := e.provider.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed evidence: %w", err)
	}
	if len(vectors) != len(pending) {
		return nil, types.NewRetryableConsistencyError("embed",
			"got %d vectors for %d evidence items", len(vectors), len(pending))
	}

	for i, ev := range pending {
		if err := e.store.SetEvidenceEmbedding(ctx, ev.ID, vectors[i]); err != nil {
			log.Printf("[EMBED] Failed to persist embedding for %s: %v (skipping)", ev.ID, err)
			result.Failed++
			continue
		}
		result.Embedded++
	}

	result.ProcessingTime = time.Since(start)
	log.Printf("[EMBED] Embedded %d/%d evidence items (%.2fs)",
		result.Embedded, result.Attempted, result.ProcessingTime.Seconds())
	return result, nil
}
