package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scopeline/scopeline/internal/classify"
	"github.com/scopeline/scopeline/internal/clustering"
	"github.com/scopeline/scopeline/internal/dedup"
	"github.com/scopeline/scopeline/internal/embedding"
	"github.com/scopeline/scopeline/internal/hierarchy"
	"github.com/scopeline/scopeline/internal/inference"
	"github.com/scopeline/scopeline/internal/scoring"
	"github.com/scopeline/scopeline/internal/storage"
	"github.com/scopeline/scopeline/internal/types"
)

// stageRecorder implements every stage interface and records call order.
type stageRecorder struct {
	calls   []string
	failAt  string
	cluster *clustering.Result
}

func (r *stageRecorder) step(name string) error {
	r.calls = append(r.calls, name)
	if r.failAt == name {
		return fmt.Errorf("%s blew up", name)
	}
	return nil
}

func (r *stageRecorder) EmbedPending(context.Context) (*embedding.Result, error) {
	return &embedding.Result{}, r.step("embed")
}

func (r *stageRecorder) ClusterEvidence([]*types.Evidence) *clustering.Result {
	r.calls = append(r.calls, "cluster")
	if r.cluster != nil {
		return r.cluster
	}
	return &clustering.Result{}
}

func (r *stageRecorder) GenerateFromClusters(_ context.Context, clusters []*clustering.Cluster) (*inference.Result, error) {
	return &inference.Result{ClustersProcessed: len(clusters)}, r.step("infer")
}

func (r *stageRecorder) ScoreAllUnreviewed(context.Context) (*scoring.BatchResult, error) {
	return &scoring.BatchResult{}, r.step("score")
}

func (r *stageRecorder) ScoreFeatures(_ context.Context, ids []string) (*scoring.BatchResult, error) {
	return &scoring.BatchResult{TotalFeatures: len(ids), UpdatedCount: len(ids)}, r.step("score-affected")
}

func (r *stageRecorder) Run(context.Context) (*dedup.Result, error) {
	return &dedup.Result{}, r.step("dedup")
}

func (r *stageRecorder) ClassifyAll(context.Context) (*classify.Result, error) {
	return &classify.Result{}, r.step("classify")
}

func (r *stageRecorder) Rebuild(context.Context) (*hierarchy.Result, error) {
	return &hierarchy.Result{}, r.step("hierarchy")
}

type fakeStore struct {
	documents map[string]*types.Document
	evidence  map[string]*types.Evidence
	linked    map[string]string // evidence id -> feature id
	obsoleted []string
	removed   int
	nextID    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents: make(map[string]*types.Document),
		evidence:  make(map[string]*types.Evidence),
		linked:    make(map[string]string),
	}
}

func (s *fakeStore) GetDocument(_ context.Context, id string) (*types.Document, error) {
	doc, ok := s.documents[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return doc, nil
}

func (s *fakeStore) ListEvidenceByDocument(_ context.Context, documentID string) ([]*types.Evidence, error) {
	var out []*types.Evidence
	for _, ev := range s.evidence {
		if ev.SourceDocumentID == documentID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateEvidence(_ context.Context, ev *types.Evidence) error {
	if ev.ID == "" {
		s.nextID++
		ev.ID = fmt.Sprintf("gen-%d", s.nextID)
	}
	s.evidence[ev.ID] = ev
	return nil
}

func (s *fakeStore) MarkEvidenceObsolete(_ context.Context, ids []string) error {
	for _, id := range ids {
		s.evidence[id].Obsolete = true
		s.obsoleted = append(s.obsoleted, id)
	}
	return nil
}

func (s *fakeStore) GetFeatureIDsForEvidence(_ context.Context, evidenceIDs []string) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, evID := range evidenceIDs {
		if featureID, ok := s.linked[evID]; ok && !seen[featureID] {
			seen[featureID] = true
			ids = append(ids, featureID)
		}
	}
	return ids, nil
}

func (s *fakeStore) GetUnlinkedEvidence(_ context.Context) ([]*types.Evidence, error) {
	var out []*types.Evidence
	for _, ev := range s.evidence {
		if !ev.Obsolete {
			if _, ok := s.linked[ev.ID]; !ok {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) DeleteLinksForObsoleteEvidence(_ context.Context) (int, error) {
	for _, id := range s.obsoleted {
		if _, ok := s.linked[id]; ok {
			delete(s.linked, id)
			s.removed++
		}
	}
	return s.removed, nil
}

func (s *fakeStore) IncrementDocumentVersion(_ context.Context, id string, extractedAt time.Time) error {
	doc, ok := s.documents[id]
	if !ok {
		return types.ErrNotFound
	}
	doc.Version++
	doc.LastExtractedAt = extractedAt
	return nil
}

func newTestPipeline(t *testing.T, store Store, rec *stageRecorder) *Pipeline {
	t.Helper()
	p, err := New(store, storage.NewMutexLock(), Stages{
		Embedder:   rec,
		Clusterer:  rec,
		Generator:  rec,
		Scorer:     rec,
		Deduper:    rec,
		Classifier: rec,
		Hierarchy:  rec,
	})
	require.NoError(t, err)
	return p
}

func TestRunStageOrder(t *testing.T) {
	rec := &stageRecorder{}
	p := newTestPipeline(t, newFakeStore(), rec)

	summary, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t,
		[]string{"embed", "cluster", "infer", "score", "dedup", "classify", "hierarchy"},
		rec.calls)
	assert.NotNil(t, summary.Hierarchy)
}

func TestRunHoldsAndReleasesLock(t *testing.T) {
	lock := storage.NewMutexLock()
	rec := &stageRecorder{}
	p, err := New(newFakeStore(), lock, Stages{
		Embedder: rec, Clusterer: rec, Generator: rec, Scorer: rec,
		Deduper: rec, Classifier: rec, Hierarchy: rec,
	})
	require.NoError(t, err)

	// Simulate a concurrent run holding the lock.
	require.NoError(t, lock.TryAcquire(LockKey))
	_, err = p.Run(context.Background())
	assert.ErrorIs(t, err, ErrPipelineBusy)
	assert.Empty(t, rec.calls)

	require.NoError(t, lock.Release(LockKey))
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	// Lock is free again after a completed run.
	require.NoError(t, lock.TryAcquire(LockKey))
}

func TestRunStageFailureAbortsAndReleasesLock(t *testing.T) {
	lock := storage.NewMutexLock()
	rec := &stageRecorder{failAt: "dedup"}
	p, err := New(newFakeStore(), lock, Stages{
		Embedder: rec, Clusterer: rec, Generator: rec, Scorer: rec,
		Deduper: rec, Classifier: rec, Hierarchy: rec,
	})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup stage failed")
	assert.Equal(t, []string{"embed", "cluster", "infer", "score", "dedup"}, rec.calls)

	// A failed run must not leave the lock held.
	require.NoError(t, lock.TryAcquire(LockKey))
}

func TestNewRejectsMissingStage(t *testing.T) {
	rec := &stageRecorder{}
	_, err := New(newFakeStore(), storage.NewMutexLock(), Stages{
		Embedder: rec, Clusterer: rec, Generator: rec, Scorer: rec,
		Deduper: rec, Classifier: rec, // no hierarchy builder
	})
	assert.Error(t, err)
}

func TestReprocessObsoletesStaleEvidence(t *testing.T) {
	store := newFakeStore()
	store.documents["doc-1"] = &types.Document{ID: "doc-1", Name: "Spec", Version: 1}
	store.evidence["ev-a"] = &types.Evidence{
		ID: "ev-a", SourceDocumentID: "doc-1",
		Type: types.EvidenceEndpoint, Content: "GET /users",
	}
	store.evidence["ev-b"] = &types.Evidence{
		ID: "ev-b", SourceDocumentID: "doc-1",
		Type: types.EvidenceFlow, Content: "login flow",
	}
	store.linked["ev-a"] = "feat-1"
	store.linked["ev-b"] = "feat-1"

	rec := &stageRecorder{}
	p := newTestPipeline(t, store, rec)

	// Fresh extraction keeps the flow, drops the endpoint, adds a new item.
	fresh := []*types.Evidence{
		{Type: types.EvidenceFlow, Content: "login flow"},
		{Type: types.EvidenceUIElement, Content: "password reset button"},
	}
	summary, err := p.Reprocess(context.Background(), "doc-1", fresh)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewEvidence)
	assert.Equal(t, 1, summary.UnchangedEvidence)
	assert.Equal(t, 1, summary.ObsoletedEvidence)
	assert.Equal(t, 1, summary.LinksRemoved)
	require.NotNil(t, summary.Pipeline)

	// The feature that lost the endpoint link got rescored immediately.
	assert.Equal(t, []string{"feat-1"}, summary.AffectedFeatureIDs)
	require.NotNil(t, summary.Rescored)
	assert.Equal(t, 1, summary.Rescored.TotalFeatures)

	assert.True(t, store.evidence["ev-a"].Obsolete)
	assert.False(t, store.evidence["ev-b"].Obsolete)
	assert.NotContains(t, store.linked, "ev-a")
	assert.Contains(t, store.linked, "ev-b")
	assert.Equal(t, 2, store.documents["doc-1"].Version)

	// Affected features rescore first, then the full stage sequence runs.
	assert.Equal(t,
		[]string{"score-affected", "embed", "cluster", "infer", "score", "dedup", "classify", "hierarchy"},
		rec.calls)
}

func TestReprocessIsIdempotentForUnchangedDocument(t *testing.T) {
	store := newFakeStore()
	store.documents["doc-1"] = &types.Document{ID: "doc-1", Name: "Spec", Version: 1}
	store.evidence["ev-a"] = &types.Evidence{
		ID: "ev-a", SourceDocumentID: "doc-1",
		Type: types.EvidenceEndpoint, Content: "GET /users",
	}

	p := newTestPipeline(t, store, &stageRecorder{})
	fresh := []*types.Evidence{{Type: types.EvidenceEndpoint, Content: "GET /users"}}

	summary, err := p.Reprocess(context.Background(), "doc-1", fresh)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.NewEvidence)
	assert.Equal(t, 0, summary.ObsoletedEvidence)
	assert.Equal(t, 1, summary.UnchangedEvidence)
	assert.Empty(t, summary.AffectedFeatureIDs)
	assert.Nil(t, summary.Rescored)
	assert.False(t, store.evidence["ev-a"].Obsolete)
	assert.Len(t, store.evidence, 1)
}

func TestReprocessUnknownDocument(t *testing.T) {
	p := newTestPipeline(t, newFakeStore(), &stageRecorder{})
	_, err := p.Reprocess(context.Background(), "nope", nil)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestReprocessTakesTheRunLock(t *testing.T) {
	lock := storage.NewMutexLock()
	rec := &stageRecorder{}
	store := newFakeStore()
	store.documents["doc-1"] = &types.Document{ID: "doc-1", Name: "Spec", Version: 1}
	p, err := New(store, lock, Stages{
		Embedder: rec, Clusterer: rec, Generator: rec, Scorer: rec,
		Deduper: rec, Classifier: rec, Hierarchy: rec,
	})
	require.NoError(t, err)

	require.NoError(t, lock.TryAcquire(LockKey))
	_, err = p.Reprocess(context.Background(), "doc-1", nil)
	assert.ErrorIs(t, err, ErrPipelineBusy)
}
