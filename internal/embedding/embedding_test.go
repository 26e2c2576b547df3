package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeline/scopeline/internal/types"
)

type fakeProvider struct {
	err   error
	calls int
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i])), 1}
	}
	return vectors, nil
}

type fakeStore struct {
	pending    []*types.Evidence
	embeddings map[string][]float32
	failFor    map[string]bool
}

func (f *fakeStore) GetUnembeddedEvidence(_ context.Context) ([]*types.Evidence, error) {
	return f.pending, nil
}

func (f *fakeStore) SetEvidenceEmbedding(_ context.Context, evidenceID string, embedding []float32) error {
	if f.failFor[evidenceID] {
		return errors.New("disk full")
	}
	if f.embeddings == nil {
		f.embeddings = make(map[string][]float32)
	}
	f.embeddings[evidenceID] = embedding
	return nil
}

func pendingEvidence(ids ...string) []*types.Evidence {
	out := make([]*types.Evidence, len(ids))
	for i, id := range ids {
		out[i] = &types.Evidence{
			ID:               id,
			SourceDocumentID: "doc-1",
			Type:             types.EvidenceRequirement,
			Content:          "content for " + id,
		}
	}
	return out
}

func TestEmbedPending(t *testing.T) {
	store := &fakeStore{pending: pendingEvidence("ev-1", "ev-2", "ev-3")}
	embedder, err := NewEmbedder(&fakeProvider{}, store)
	require.NoError(t, err)

	result, err := embedder.EmbedPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Attempted)
	assert.Equal(t, 3, result.Embedded)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, store.embeddings, 3)
}

func TestEmbedPendingNothingToDo(t *testing.T) {
	provider := &fakeProvider{}
	embedder, err := NewEmbedder(provider, &fakeStore{})
	require.NoError(t, err)

	result, err := embedder.EmbedPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Attempted)
	assert.Equal(t, 0, provider.calls, "provider should not be called with no pending evidence")
}

func TestEmbedPendingProviderFailure(t *testing.T) {
	store := &fakeStore{pending: pendingEvidence("ev-1")}
	embedder, err := NewEmbedder(&fakeProvider{err: errors.New("429 rate limit")}, store)
	require.NoError(t, err)

	_, err = embedder.EmbedPending(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.embeddings, "no partial writes on provider failure")
}

func TestEmbedPendingSkipsPersistFailures(t *testing.T) {
	store := &fakeStore{
		pending: pendingEvidence("ev-1", "ev-2"),
		failFor: map[string]bool{"ev-1": true},
	}
	embedder, err := NewEmbedder(&fakeProvider{}, store)
	require.NoError(t, err)

	result, err := embedder.EmbedPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Embedded)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, store.embeddings, "ev-2")
}
