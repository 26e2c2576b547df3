// Package ai wraps the reasoning provider used for hypothesis generation,
// duplicate confirmation, and relationship classification.
//
// All calls go through one retry path with exponential backoff, a circuit
// breaker, and a concurrency cap, so callers never talk to the SDK directly.
package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"
)

// DefaultModel is the reasoning model used when none is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

// GetDefaultModel returns the reasoning model, checking SCOPELINE_MODEL first.
func GetDefaultModel() string {
	if model := os.Getenv("SCOPELINE_MODEL"); model != "" {
		return model
	}
	return DefaultModel
}

// Config holds reasoner configuration
type Config struct {
	APIKey string      // Anthropic API key (if empty, reads from ANTHROPIC_API_KEY env var)
	Model  string      // Model to use (default: DefaultModel)
	Retry  RetryConfig // Retry configuration (uses defaults if not specified)
}

// Reasoner issues structured-output prompts to the reasoning model.
//
// Its responsibilities are split across files:
// - reasoner.go: core struct, constructor, and the shared call path
// - retry.go: circuit breaker and retry logic
// - json_parser.go: resilient parsing of model JSON output
// - hypothesis.go: feature hypothesis generation from evidence clusters
// - duplicate.go: pairwise duplicate confirmation
// - relationships.go: evidence relationship classification
type Reasoner struct {
	client         *anthropic.Client
	model          string
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
}

// NewReasoner creates a reasoner from the given configuration.
func NewReasoner(cfg *Config) (*Reasoner, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = GetDefaultModel()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	var circuitBreaker *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}

	var concurrencySem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	return &Reasoner{
		client:         &client,
		model:          model,
		retry:          retry,
		circuitBreaker: circuitBreaker,
		concurrencySem: concurrencySem,
	}, nil
}

// HealthCheck fails fast when the circuit breaker is open, so a pipeline run
// can abort before doing any work.
func (r *Reasoner) HealthCheck(ctx context.Context) error {
	if r.circuitBreaker != nil {
		state, failures, _ := r.circuitBreaker.GetMetrics()
		if state == CircuitOpen {
			return fmt.Errorf("reasoning provider unavailable: %w (failures=%d, retry in %v)",
				ErrCircuitOpen, failures, r.retry.OpenTimeout)
		}
	}
	return nil
}

// complete sends a single user prompt and returns the concatenated text
// blocks of the response.
func (r *Reasoner) complete(ctx context.Context, operation, prompt string, maxTokens int64) (string, error) {
	var response *anthropic.Message
	err := r.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := r.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(r.model),
			MaxTokens: maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", classifyProviderError(operation, err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
