package dedup

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds configuration for the deduplication engine
type Config struct {
	// NameThreshold is the minimum word-overlap ratio for two feature names
	// to be shortlisted for semantic comparison.
	// Default: 0.5
	NameThreshold float64

	// ConfidenceThreshold is the minimum similarity score (0.0-1.0) from the
	// semantic comparison to actually merge a pair.
	// Higher values = more conservative (fewer false merges)
	// Default: 0.85
	ConfidenceThreshold float64

	// MaxPairsPerRun limits how many shortlisted pairs are sent to the
	// reasoning model in one pass, bounding API cost.
	// Default: 50
	MaxPairsPerRun int

	// FailOpen determines behavior when a semantic comparison fails.
	// If true: keep both features (prefer duplicates over lost features).
	// If false: abort the pass with an error.
	// Default: true
	FailOpen bool
}

// DefaultConfig returns the default deduplication configuration
//
// These defaults are chosen to:
// - Prevent false merges (high confidence threshold)
// - Keep costs reasonable (bounded pairs per run)
// - Fail safely (keep both features rather than merge on weak signal)
func DefaultConfig() Config {
	return Config{
		NameThreshold:       0.5,
		ConfidenceThreshold: 0.85,
		MaxPairsPerRun:      50,
		FailOpen:            true,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.NameThreshold < 0.0 || c.NameThreshold > 1.0 {
		return fmt.Errorf("name_threshold must be between 0.0 and 1.0 (got %.2f)", c.NameThreshold)
	}
	if c.ConfidenceThreshold < 0.0 || c.ConfidenceThreshold > 1.0 {
		return fmt.Errorf("confidence_threshold must be between 0.0 and 1.0 (got %.2f)", c.ConfidenceThreshold)
	}
	if c.MaxPairsPerRun <= 0 {
		return fmt.Errorf("max_pairs_per_run must be positive (got %d)", c.MaxPairsPerRun)
	}
	if c.MaxPairsPerRun > 500 {
		return fmt.Errorf("max_pairs_per_run too large (got %d, max 500)", c.MaxPairsPerRun)
	}
	return nil
}

// ConfigFromEnv creates a Config from environment variables, falling back
// to defaults
//
// Environment variables:
//   - SCOPELINE_DEDUP_NAME_THRESHOLD: Minimum name overlap to shortlist a pair (default: 0.5)
//   - SCOPELINE_DEDUP_CONFIDENCE_THRESHOLD: Minimum similarity to merge (default: 0.85)
//   - SCOPELINE_DEDUP_MAX_PAIRS: Maximum pairs compared per run (default: 50)
//   - SCOPELINE_DEDUP_FAIL_OPEN: Keep both features on comparison failure (default: true)
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := parseEnvFloat("SCOPELINE_DEDUP_NAME_THRESHOLD", &cfg.NameThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvFloat("SCOPELINE_DEDUP_CONFIDENCE_THRESHOLD", &cfg.ConfidenceThreshold); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("SCOPELINE_DEDUP_MAX_PAIRS", &cfg.MaxPairsPerRun); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("SCOPELINE_DEDUP_FAIL_OPEN", &cfg.FailOpen); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
