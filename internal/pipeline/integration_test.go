package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeline/scopeline/internal/ai"
	"github.com/scopeline/scopeline/internal/classify"
	"github.com/scopeline/scopeline/internal/clustering"
	"github.com/scopeline/scopeline/internal/dedup"
	"github.com/scopeline/scopeline/internal/embedding"
	"github.com/scopeline/scopeline/internal/hierarchy"
	"github.com/scopeline/scopeline/internal/inference"
	"github.com/scopeline/scopeline/internal/scoring"
	"github.com/scopeline/scopeline/internal/storage"
	"github.com/scopeline/scopeline/internal/storage/sqlite"
	"github.com/scopeline/scopeline/internal/types"
)

// vectorProvider embeds each text with a fixed vector keyed by content.
type vectorProvider struct {
	vectors map[string][]float32
}

func (p *vectorProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := p.vectors[text]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = v
	}
	return out, nil
}

// scriptedModel fakes the reasoning provider for hypothesis generation,
// duplicate confirmation, and relationship classification.
type scriptedModel struct {
	nameFor      func(evidence []*types.Evidence) string
	duplicates   bool
	compareCalls int
}

func (m *scriptedModel) GenerateHypothesis(_ context.Context, evidence []*types.Evidence) (*ai.FeatureHypothesis, error) {
	return &ai.FeatureHypothesis{
		Name:        m.nameFor(evidence),
		Description: "inferred from evidence cluster",
		Reasoning:   "cluster cohesion",
	}, nil
}

func (m *scriptedModel) CompareFeatures(_ context.Context, a, b *types.Feature, _, _ []*types.Evidence) (*ai.DuplicateVerdict, error) {
	m.compareCalls++
	return &ai.DuplicateVerdict{
		IsDuplicate:     m.duplicates,
		SimilarityScore: 0.95,
	}, nil
}

func (m *scriptedModel) ClassifyRelationships(_ context.Context, _ *types.Feature, evidence []*types.Evidence) ([]*ai.RelationshipVerdict, error) {
	verdicts := make([]*ai.RelationshipVerdict, len(evidence))
	for i, ev := range evidence {
		verdicts[i] = &ai.RelationshipVerdict{
			EvidenceID:   ev.ID,
			Relationship: string(types.RelImplements),
			Strength:     0.8,
			Reasoning:    "direct realization",
		}
	}
	return verdicts, nil
}

func buildIntegrationPipeline(t *testing.T, store *sqlite.Store, provider embedding.Provider, model *scriptedModel) *Pipeline {
	t.Helper()

	embedder, err := embedding.NewEmbedder(provider, store)
	require.NoError(t, err)
	clusterer, err := clustering.NewEngine(clustering.DefaultConfig())
	require.NoError(t, err)
	generator, err := inference.NewGenerator(model, store)
	require.NoError(t, err)
	scorer, err := scoring.NewScorer(store, scoring.DefaultConfig())
	require.NoError(t, err)
	deduper, err := dedup.NewEngine(store, model, &RescoreAdapter{Scorer: scorer}, dedup.DefaultConfig())
	require.NoError(t, err)
	classifier, err := classify.NewEngine(store, model)
	require.NoError(t, err)
	builder, err := hierarchy.NewBuilder(store, hierarchy.DefaultConfig())
	require.NoError(t, err)

	p, err := New(store, storage.NewMutexLock(), Stages{
		Embedder:   embedder,
		Clusterer:  clusterer,
		Generator:  generator,
		Scorer:     scorer,
		Deduper:    deduper,
		Classifier: classifier,
		Hierarchy:  builder,
	})
	require.NoError(t, err)
	return p
}

func seedCatalog(t *testing.T, store *sqlite.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.UpsertDocument(ctx, &types.Document{ID: "doc-1", Name: "API Spec", Version: 1}))

	items := []struct {
		id      string
		evType  types.EvidenceType
		content string
	}{
		{"ev-1", types.EvidenceEndpoint, "POST /login"},
		{"ev-2", types.EvidenceFlow, "user signs in with email and password"},
		{"ev-3", types.EvidenceUIElement, "login button"},
		{"ev-4", types.EvidenceEndpoint, "GET /reports"},
		{"ev-5", types.EvidenceRequirement, "reports must cover the last 90 days"},
	}
	for _, item := range items {
		require.NoError(t, store.CreateEvidence(ctx, &types.Evidence{
			ID:               item.id,
			SourceDocumentID: "doc-1",
			Type:             item.evType,
			Content:          item.content,
		}))
	}
}

// loginVectors places the three login items in one tight cluster and the two
// reporting items in another.
func loginVectors() map[string][]float32 {
	return map[string][]float32{
		"POST /login":                           {1, 0, 0},
		"user signs in with email and password": {0.98, 0.02, 0},
		"login button":                          {0.97, 0.03, 0},
		"GET /reports":                          {0, 1, 0},
		"reports must cover the last 90 days":   {0.02, 0.98, 0},
	}
}

func TestFullRunAgainstSQLite(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	seedCatalog(t, store)

	model := &scriptedModel{
		nameFor: func(evidence []*types.Evidence) string {
			for _, ev := range evidence {
				if strings.Contains(ev.Content, "login") || strings.Contains(ev.Content, "signs in") {
					return "User Login"
				}
			}
			return "Reporting"
		},
	}
	p := buildIntegrationPipeline(t, store, &vectorProvider{vectors: loginVectors()}, model)

	summary, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Embedding.Embedded)
	assert.Len(t, summary.Clustering.Clusters, 2)
	assert.Equal(t, 2, summary.Inference.FeaturesCreated)

	features, err := store.ListFeatures(ctx, types.FeatureFilter{})
	require.NoError(t, err)
	require.Len(t, features, 2)

	byName := map[string]*types.Feature{}
	for _, f := range features {
		byName[f.Name] = f
	}
	login := byName["User Login"]
	reporting := byName["Reporting"]
	require.NotNil(t, login)
	require.NotNil(t, reporting)

	// endpoint 0.4, flow 0.35, ui_element 0.3: 1 - 0.6*0.65*0.7 = 0.727
	require.NotNil(t, login.ConfidenceScore)
	assert.InDelta(t, 0.73, *login.ConfidenceScore, 1e-9)
	assert.Equal(t, types.StatusCandidate, login.Status)

	// endpoint 0.4, requirement 0.25: 1 - 0.6*0.75 = 0.55
	require.NotNil(t, reporting.ConfidenceScore)
	assert.InDelta(t, 0.55, *reporting.ConfidenceScore, 1e-9)

	// Dissimilar names never reach the duplicate comparer.
	assert.Zero(t, model.compareCalls)

	// Every link got a relationship in the batched classification pass.
	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Links)
	assert.Zero(t, stats.UnclassifiedLinks)

	// Disjoint evidence sets: both features stay roots.
	assert.Nil(t, login.ParentID)
	assert.Nil(t, reporting.ParentID)

	// A second run finds nothing new to do.
	again, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Inference.FeaturesCreated)
	features, err = store.ListFeatures(ctx, types.FeatureFilter{})
	require.NoError(t, err)
	assert.Len(t, features, 2)
}

func TestFullRunMergesDuplicates(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.UpsertDocument(ctx, &types.Document{ID: "doc-1", Name: "Spec", Version: 1}))
	vectors := map[string][]float32{
		"POST /login":                 {1, 0, 0},
		"login button":                {0.98, 0.02, 0},
		"user login sequence diagram": {0, 1, 0},
		"session cookie payload":      {0.02, 0.98, 0},
	}
	items := []struct {
		id      string
		evType  types.EvidenceType
		content string
	}{
		{"ev-1", types.EvidenceEndpoint, "POST /login"},
		{"ev-2", types.EvidenceUIElement, "login button"},
		{"ev-3", types.EvidenceFlow, "user login sequence diagram"},
		{"ev-4", types.EvidencePayload, "session cookie payload"},
	}
	for _, item := range items {
		require.NoError(t, store.CreateEvidence(ctx, &types.Evidence{
			ID:               item.id,
			SourceDocumentID: "doc-1",
			Type:             item.evType,
			Content:          item.content,
		}))
	}

	// Two clusters produce two features with overlapping names; the model
	// confirms they describe the same capability.
	first := true
	model := &scriptedModel{
		duplicates: true,
		nameFor: func([]*types.Evidence) string {
			if first {
				first = false
				return "User Login"
			}
			return "User Login Session"
		},
	}
	p := buildIntegrationPipeline(t, store, &vectorProvider{vectors: vectors}, model)

	summary, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Inference.FeaturesCreated)
	require.Len(t, summary.Dedup.Merges, 1)
	assert.Equal(t, 1, model.compareCalls)

	features, err := store.ListFeatures(ctx, types.FeatureFilter{})
	require.NoError(t, err)
	require.Len(t, features, 1)

	// The survivor inherits all four links and a score over the union.
	ids, err := store.GetLinkedEvidenceIDs(ctx, features[0].ID)
	require.NoError(t, err)
	assert.Len(t, ids, 4)
	require.NotNil(t, features[0].ConfidenceScore)
	// endpoint 0.4, flow 0.35, ui_element 0.3, payload 0.3:
	// 1 - 0.6*0.65*0.7*0.7 = 0.8089 -> 0.81, confirmed on rescore.
	assert.InDelta(t, 0.81, *features[0].ConfidenceScore, 1e-9)
	assert.Equal(t, types.StatusConfirmed, features[0].Status)
}
