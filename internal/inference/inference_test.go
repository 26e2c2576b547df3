package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeline/scopeline/internal/ai"
	"github.com/scopeline/scopeline/internal/clustering"
	"github.com/scopeline/scopeline/internal/types"
)

type fakeHypothesizer struct {
	byFirstEvidence map[string]*ai.FeatureHypothesis
	err             error
}

func (f *fakeHypothesizer) GenerateHypothesis(_ context.Context, evidence []*types.Evidence) (*ai.FeatureHypothesis, error) {
	if f.err != nil {
		return nil, f.err
	}
	if h, ok := f.byFirstEvidence[evidence[0].ID]; ok {
		return h, nil
	}
	return &ai.FeatureHypothesis{Name: "Generic Feature", Reasoning: "grouped evidence"}, nil
}

type fakeStore struct {
	features   []*types.Feature
	links      []*types.FeatureEvidence
	failCreate bool
}

func (f *fakeStore) CreateFeature(_ context.Context, feature *types.Feature) error {
	if f.failCreate {
		return errors.New("constraint violation")
	}
	f.features = append(f.features, feature)
	return nil
}

func (f *fakeStore) LinkEvidence(_ context.Context, link *types.FeatureEvidence) error {
	f.links = append(f.links, link)
	return nil
}

func cluster(id int, evidenceIDs ...string) *clustering.Cluster {
	c := &clustering.Cluster{ID: id}
	for _, evID := range evidenceIDs {
		c.Evidence = append(c.Evidence, &types.Evidence{
			ID:               evID,
			SourceDocumentID: "doc-1",
			Type:             types.EvidenceRequirement,
			Content:          "content " + evID,
		})
	}
	return c
}

func TestGenerateFromClusters(t *testing.T) {
	store := &fakeStore{}
	hyp := &fakeHypothesizer{byFirstEvidence: map[string]*ai.FeatureHypothesis{
		"ev-1": {Name: "User Login", Description: "Users sign in with credentials", Reasoning: "auth evidence"},
	}}
	gen, err := NewGenerator(hyp, store)
	require.NoError(t, err)

	result, err := gen.GenerateFromClusters(context.Background(), []*clustering.Cluster{
		cluster(1, "ev-1", "ev-2"),
		cluster(2, "ev-3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.FeaturesCreated)
	assert.Equal(t, 3, result.LinksCreated)
	assert.Empty(t, result.Skipped)

	require.Len(t, store.features, 2)
	first := store.features[0]
	assert.Equal(t, "User Login", first.Name)
	assert.Equal(t, types.StatusCandidate, first.Status)
	assert.Equal(t, types.TypeTask, first.FeatureType)
	assert.NotEmpty(t, first.ID)
	require.NotNil(t, first.Description)
	assert.Equal(t, "Users sign in with credentials", *first.Description)

	// Links point at the created feature and carry the reasoning.
	linked := 0
	for _, link := range store.links {
		if link.FeatureID == first.ID {
			linked++
			assert.Equal(t, "auth evidence", link.Reasoning)
		}
	}
	assert.Equal(t, 2, linked)
}

func TestGenerateSkipsFailedHypotheses(t *testing.T) {
	store := &fakeStore{}
	hyp := &fakeHypothesizer{err: ai.NewMalformedError("hypothesis", "no JSON found")}
	gen, err := NewGenerator(hyp, store)
	require.NoError(t, err)

	result, err := gen.GenerateFromClusters(context.Background(), []*clustering.Cluster{
		cluster(1, "ev-1"),
		cluster(2, "ev-2"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.FeaturesCreated)
	require.Len(t, result.Skipped, 2)
	assert.Equal(t, 1, result.Skipped[0].ClusterID)
	assert.Empty(t, store.features)
}

func TestGenerateSkipsPersistFailures(t *testing.T) {
	store := &fakeStore{failCreate: true}
	gen, err := NewGenerator(&fakeHypothesizer{}, store)
	require.NoError(t, err)

	result, err := gen.GenerateFromClusters(context.Background(), []*clustering.Cluster{
		cluster(1, "ev-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.FeaturesCreated)
	assert.Len(t, result.Skipped, 1)
	assert.Empty(t, store.links, "no links when feature creation failed")
}

func TestGenerateEmptyInput(t *testing.T) {
	gen, err := NewGenerator(&fakeHypothesizer{}, &fakeStore{})
	require.NoError(t, err)

	result, err := gen.GenerateFromClusters(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ClustersProcessed)
	assert.Equal(t, 0, result.FeaturesCreated)
}
