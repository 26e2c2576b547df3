// Package storage defines the persistence interface for the inference
// engine.
package storage

import (
	"context"
	"time"

	"github.com/scopeline/scopeline/internal/types"
)

// Stats summarizes catalog contents for reporting.
type Stats struct {
	Documents          int
	Evidence           int
	ObsoleteEvidence   int
	UnembeddedEvidence int
	Features           int
	ByStatus           map[types.Status]int
	ByType             map[types.FeatureType]int
	Links              int
	UnclassifiedLinks  int
}

// Storage is the full persistence surface. Engine packages declare narrow
// interfaces over the slice of this they actually use; any Storage
// implementation satisfies all of them.
type Storage interface {
	// Documents
	UpsertDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	ListDocuments(ctx context.Context) ([]*types.Document, error)
	IncrementDocumentVersion(ctx context.Context, id string, extractedAt time.Time) error

	// Evidence
	CreateEvidence(ctx context.Context, evidence *types.Evidence) error
	GetEvidence(ctx context.Context, id string) (*types.Evidence, error)
	GetEvidenceByIDs(ctx context.Context, ids []string) ([]*types.Evidence, error)
	ListEvidenceByDocument(ctx context.Context, documentID string) ([]*types.Evidence, error)
	ListActiveEvidence(ctx context.Context) ([]*types.Evidence, error)
	GetUnembeddedEvidence(ctx context.Context) ([]*types.Evidence, error)
	SetEvidenceEmbedding(ctx context.Context, evidenceID string, embedding []float32) error
	GetUnlinkedEvidence(ctx context.Context) ([]*types.Evidence, error)
	MarkEvidenceObsolete(ctx context.Context, ids []string) error

	// Features
	CreateFeature(ctx context.Context, feature *types.Feature) error
	GetFeature(ctx context.Context, id string) (*types.Feature, error)
	ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error)
	DeleteFeature(ctx context.Context, featureID string) error
	SetFeatureScore(ctx context.Context, featureID string, score float64, status *types.Status) error
	SetFeatureHierarchy(ctx context.Context, featureID string, parentID *string, featureType types.FeatureType) error
	SetFeatureReviewed(ctx context.Context, featureID string, status types.Status, reviewedAt time.Time) error

	// Feature-evidence links
	LinkEvidence(ctx context.Context, link *types.FeatureEvidence) error
	GetLinkedEvidence(ctx context.Context, featureID string) ([]*types.Evidence, error)
	GetLinkedEvidenceIDs(ctx context.Context, featureID string) ([]string, error)
	GetUnclassifiedLinks(ctx context.Context, featureID string) ([]*types.FeatureEvidence, error)
	UpdateLinkClassification(ctx context.Context, featureID, evidenceID string, rel types.RelationshipType, strength float64, reasoning string) error
	GetFeatureIDsForEvidence(ctx context.Context, evidenceIDs []string) ([]string, error)
	RepointLinks(ctx context.Context, fromFeatureID, toFeatureID string) error
	DeleteLinksForObsoleteEvidence(ctx context.Context) (int, error)

	// Reporting
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
