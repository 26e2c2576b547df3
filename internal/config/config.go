// Package config loads engine configuration from defaults, an optional YAML
// file, and environment variables, in that order of precedence (later wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scopeline/scopeline/internal/ai"
	"github.com/scopeline/scopeline/internal/clustering"
	"github.com/scopeline/scopeline/internal/dedup"
	"github.com/scopeline/scopeline/internal/embedding"
	"github.com/scopeline/scopeline/internal/hierarchy"
	"github.com/scopeline/scopeline/internal/scoring"
)

// DefaultFileName is the config file looked up in the working directory and
// the user's home directory when no explicit path is given.
const DefaultFileName = ".scopeline.yaml"

// Config is the full engine configuration. API keys are read from the
// environment only (ANTHROPIC_API_KEY, OPENAI_API_KEY) and never from the
// file.
type Config struct {
	// DatabasePath is the SQLite database file.
	DatabasePath string `yaml:"database_path"`

	// LockDir holds run-lock files.
	LockDir string `yaml:"lock_dir"`

	// Model is the reasoning model for hypothesis generation, duplicate
	// confirmation, and relationship classification.
	Model string `yaml:"model"`

	// EmbeddingModel is the embedding model name.
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingRequestsPerSecond throttles embedding API calls.
	EmbeddingRequestsPerSecond float64 `yaml:"embedding_requests_per_second"`

	// CandidateThreshold and ConfirmThreshold are the scoring status cutoffs.
	CandidateThreshold float64 `yaml:"candidate_threshold"`
	ConfirmThreshold   float64 `yaml:"confirm_threshold"`

	// ClusterEpsilon and ClusterMinPoints tune evidence clustering.
	ClusterEpsilon   float64 `yaml:"cluster_epsilon"`
	ClusterMinPoints int     `yaml:"cluster_min_points"`

	// ContainmentThreshold is the minimum evidence coverage for a hierarchy
	// parent-child relationship.
	ContainmentThreshold float64 `yaml:"containment_threshold"`

	// Dedup settings.
	DedupNameThreshold       float64 `yaml:"dedup_name_threshold"`
	DedupConfidenceThreshold float64 `yaml:"dedup_confidence_threshold"`
	DedupMaxPairs            int     `yaml:"dedup_max_pairs"`
	DedupFailOpen            bool    `yaml:"dedup_fail_open"`
}

// Default returns the default configuration.
func Default() Config {
	dd := dedup.DefaultConfig()
	return Config{
		DatabasePath:               "scopeline.db",
		LockDir:                    ".scopeline-locks",
		Model:                      ai.GetDefaultModel(),
		EmbeddingModel:             embedding.DefaultModel,
		EmbeddingRequestsPerSecond: embedding.DefaultRequestsPerSecond,
		CandidateThreshold:         scoring.DefaultCandidateThreshold,
		ConfirmThreshold:           scoring.DefaultConfirmThreshold,
		ClusterEpsilon:             clustering.DefaultEpsilon,
		ClusterMinPoints:           clustering.DefaultMinPoints,
		ContainmentThreshold:       hierarchy.DefaultContainmentThreshold,
		DedupNameThreshold:         dd.NameThreshold,
		DedupConfidenceThreshold:   dd.ConfidenceThreshold,
		DedupMaxPairs:              dd.MaxPairsPerRun,
		DedupFailOpen:              dd.FailOpen,
	}
}

// Load builds the effective configuration. When path is empty, the default
// file name is tried in the working directory and then the home directory;
// a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = findDefaultFile()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if explicit || !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func findDefaultFile() string {
	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// applyEnv overrides configuration from SCOPELINE_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("SCOPELINE_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("SCOPELINE_LOCK_DIR"); v != "" {
		c.LockDir = v
	}
	if v := os.Getenv("SCOPELINE_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("SCOPELINE_EMBEDDING_MODEL"); v != "" {
		c.EmbeddingModel = v
	}
	parseEnvFloat("SCOPELINE_EMBEDDING_RPS", &c.EmbeddingRequestsPerSecond)
	parseEnvFloat("SCOPELINE_CANDIDATE_THRESHOLD", &c.CandidateThreshold)
	parseEnvFloat("SCOPELINE_CONFIRM_THRESHOLD", &c.ConfirmThreshold)
	parseEnvFloat("SCOPELINE_CLUSTER_EPSILON", &c.ClusterEpsilon)
	parseEnvInt("SCOPELINE_CLUSTER_MIN_POINTS", &c.ClusterMinPoints)
	parseEnvFloat("SCOPELINE_CONTAINMENT_THRESHOLD", &c.ContainmentThreshold)
	parseEnvFloat("SCOPELINE_DEDUP_NAME_THRESHOLD", &c.DedupNameThreshold)
	parseEnvFloat("SCOPELINE_DEDUP_CONFIDENCE_THRESHOLD", &c.DedupConfidenceThreshold)
	parseEnvInt("SCOPELINE_DEDUP_MAX_PAIRS", &c.DedupMaxPairs)
	parseEnvBool("SCOPELINE_DEDUP_FAIL_OPEN", &c.DedupFailOpen)
}

// Validate checks the configuration by delegating to each stage's own
// validation.
func (c Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path cannot be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if err := c.Scoring().Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	if err := c.Clustering().Validate(); err != nil {
		return fmt.Errorf("clustering: %w", err)
	}
	if err := c.Hierarchy().Validate(); err != nil {
		return fmt.Errorf("hierarchy: %w", err)
	}
	if err := c.Dedup().Validate(); err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if c.EmbeddingRequestsPerSecond <= 0 {
		return fmt.Errorf("embedding_requests_per_second must be positive (got %.2f)",
			c.EmbeddingRequestsPerSecond)
	}
	return nil
}

// Scoring returns the scorer configuration slice of this config.
func (c Config) Scoring() scoring.Config {
	cfg := scoring.DefaultConfig()
	cfg.CandidateThreshold = c.CandidateThreshold
	cfg.ConfirmThreshold = c.ConfirmThreshold
	return cfg
}

// Clustering returns the clustering configuration slice of this config.
func (c Config) Clustering() clustering.Config {
	return clustering.Config{
		Epsilon:   c.ClusterEpsilon,
		MinPoints: c.ClusterMinPoints,
	}
}

// Hierarchy returns the hierarchy configuration slice of this config.
func (c Config) Hierarchy() hierarchy.Config {
	return hierarchy.Config{ContainmentThreshold: c.ContainmentThreshold}
}

// Dedup returns the dedup configuration slice of this config.
func (c Config) Dedup() dedup.Config {
	return dedup.Config{
		NameThreshold:       c.DedupNameThreshold,
		ConfidenceThreshold: c.DedupConfidenceThreshold,
		MaxPairsPerRun:      c.DedupMaxPairs,
		FailOpen:            c.DedupFailOpen,
	}
}

func parseEnvFloat(key string, target *float64) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return // Use default
	}
	*target = parsed
}

func parseEnvInt(key string, target *int) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return // Use default
	}
	*target = parsed
}

func parseEnvBool(key string, target *bool) {
	value := os.Getenv(key)
	if value == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		*target = true
	case "false", "0", "no", "off":
		*target = false
	}
}
