package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "scopeline.db", cfg.DatabasePath)
	assert.InDelta(t, 0.5, cfg.CandidateThreshold, 1e-9)
	assert.InDelta(t, 0.75, cfg.ConfirmThreshold, 1e-9)
	assert.InDelta(t, 0.3, cfg.ClusterEpsilon, 1e-9)
	assert.Equal(t, 2, cfg.ClusterMinPoints)
	assert.True(t, cfg.DedupFailOpen)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scopeline.yaml")
	content := `
database_path: /tmp/custom.db
confirm_threshold: 0.7
cluster_epsilon: 0.25
dedup_max_pairs: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.DatabasePath)
	assert.InDelta(t, 0.7, cfg.ConfirmThreshold, 1e-9)
	assert.InDelta(t, 0.25, cfg.ClusterEpsilon, 1e-9)
	assert.Equal(t, 10, cfg.DedupMaxPairs)

	// Unset fields keep their defaults.
	assert.InDelta(t, 0.5, cfg.CandidateThreshold, 1e-9)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_path: [unclosed"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scopeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database_path: from-file.db\n"), 0644))

	t.Setenv("SCOPELINE_DB", "from-env.db")
	t.Setenv("SCOPELINE_CONFIRM_THRESHOLD", "0.8")
	t.Setenv("SCOPELINE_DEDUP_FAIL_OPEN", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.DatabasePath)
	assert.InDelta(t, 0.8, cfg.ConfirmThreshold, 1e-9)
	assert.False(t, cfg.DedupFailOpen)
}

func TestEnvGarbageIgnored(t *testing.T) {
	t.Setenv("SCOPELINE_CLUSTER_EPSILON", "not-a-number")
	cfg := Default()
	cfg.applyEnv()
	assert.InDelta(t, 0.3, cfg.ClusterEpsilon, 1e-9)
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cfg := Default()
	cfg.ConfirmThreshold = 0.4 // below candidate threshold
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ClusterEpsilon = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.EmbeddingRequestsPerSecond = 0
	assert.Error(t, cfg.Validate())
}

func TestStageConfigSlices(t *testing.T) {
	cfg := Default()
	cfg.DedupNameThreshold = 0.6
	cfg.ContainmentThreshold = 0.7

	assert.InDelta(t, 0.6, cfg.Dedup().NameThreshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Hierarchy().ContainmentThreshold, 1e-9)
	assert.InDelta(t, cfg.CandidateThreshold, cfg.Scoring().CandidateThreshold, 1e-9)
}
