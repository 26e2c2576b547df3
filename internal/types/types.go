package types

import (
	"fmt"
	"strings"
	"time"
)

// Evidence represents an atomic fact extracted from a source document.
// Evidence content is immutable once extracted; the inference engine only
// reads evidence and may flip the Obsolete flag during reprocessing.
// Evidence is never physically deleted by the engine.
type Evidence struct {
	ID               string       `json:"id"`
	SourceDocumentID string       `json:"source_document_id"`
	Type             EvidenceType `json:"type"`
	Content          string       `json:"content"`
	Embedding        []float32    `json:"embedding,omitempty"` // nil until embedded
	Obsolete         bool         `json:"obsolete"`
	ExtractedAt      time.Time    `json:"extracted_at"`
}

// Validate checks if the evidence has valid field values
func (e *Evidence) Validate() error {
	if e.SourceDocumentID == "" {
		return fmt.Errorf("source_document_id is required")
	}
	if strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("content is required")
	}
	if !e.Type.IsValid() {
		return fmt.Errorf("invalid evidence type: %s", e.Type)
	}
	return nil
}

// HasEmbedding reports whether an embedding vector has been stored.
func (e *Evidence) HasEmbedding() bool {
	return len(e.Embedding) > 0
}

// EvidenceType categorizes the kind of extracted fact
type EvidenceType string

const (
	EvidenceUIElement          EvidenceType = "ui_element"
	EvidenceFlow               EvidenceType = "flow"
	EvidenceEndpoint           EvidenceType = "endpoint"
	EvidencePayload            EvidenceType = "payload"
	EvidenceRequirement        EvidenceType = "requirement"
	EvidenceEdgeCase           EvidenceType = "edge_case"
	EvidenceAcceptanceCriteria EvidenceType = "acceptance_criteria"
	EvidenceBug                EvidenceType = "bug"
	EvidenceConstraint         EvidenceType = "constraint"
)

// IsValid checks if the evidence type value is valid
func (t EvidenceType) IsValid() bool {
	switch t {
	case EvidenceUIElement, EvidenceFlow, EvidenceEndpoint, EvidencePayload,
		EvidenceRequirement, EvidenceEdgeCase, EvidenceAcceptanceCriteria,
		EvidenceBug, EvidenceConstraint:
		return true
	}
	return false
}

// Feature represents an inferred user-facing capability.
//
// Features are created by the hypothesis generator, scored by the confidence
// scorer, arranged by the hierarchy builder, and absorbed into each other by
// the deduplication engine. A feature is never deleted except as the loser of
// a merge.
type Feature struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Description     *string     `json:"description,omitempty"`
	ConfidenceScore *float64    `json:"confidence_score,omitempty"` // nil until first scored
	Status          Status      `json:"status"`
	FeatureType     FeatureType `json:"feature_type"`
	ParentID        *string     `json:"parent_id,omitempty"`
	InferredAt      time.Time   `json:"inferred_at"`
	ReviewedAt      *time.Time  `json:"reviewed_at,omitempty"` // set means a human locked the status
}

// Validate checks if the feature has valid field values
func (f *Feature) Validate() error {
	if len(f.Name) == 0 {
		return fmt.Errorf("name is required")
	}
	if len(f.Name) > 500 {
		return fmt.Errorf("name must be 500 characters or less (got %d)", len(f.Name))
	}
	if !f.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", f.Status)
	}
	if !f.FeatureType.IsValid() {
		return fmt.Errorf("invalid feature type: %s", f.FeatureType)
	}
	if f.ConfidenceScore != nil && (*f.ConfidenceScore < 0.0 || *f.ConfidenceScore > 1.0) {
		return fmt.Errorf("confidence_score must be between 0.0 and 1.0 (got %.2f)", *f.ConfidenceScore)
	}
	if f.ParentID != nil && *f.ParentID == f.ID {
		return fmt.Errorf("feature cannot be its own parent")
	}
	return nil
}

// Reviewed reports whether a human has locked the feature's status against
// automatic overwrite. The scorer still records scores for reviewed features.
func (f *Feature) Reviewed() bool {
	return f.ReviewedAt != nil
}

// Status represents the review state of a feature
type Status string

const (
	StatusCandidate Status = "candidate"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusCandidate, StatusConfirmed, StatusRejected:
		return true
	}
	return false
}

// FeatureType scopes a feature within the epic/story/task hierarchy
type FeatureType string

const (
	TypeEpic  FeatureType = "epic"
	TypeStory FeatureType = "story"
	TypeTask  FeatureType = "task"
)

// IsValid checks if the feature type value is valid
func (t FeatureType) IsValid() bool {
	switch t {
	case TypeEpic, TypeStory, TypeTask:
		return true
	}
	return false
}

// ParentType returns the only feature type allowed as this type's parent,
// or "" for epics, which are always roots.
func (t FeatureType) ParentType() FeatureType {
	switch t {
	case TypeTask:
		return TypeStory
	case TypeStory:
		return TypeEpic
	default:
		return ""
	}
}

// FeatureEvidence links a feature to one evidence item backing it.
// The (FeatureID, EvidenceID) pair is unique. RelationshipType and Strength
// stay nil until the relationship classifier runs; they are advisory metadata
// and never gate confidence computation.
type FeatureEvidence struct {
	FeatureID        string            `json:"feature_id"`
	EvidenceID       string            `json:"evidence_id"`
	RelationshipType *RelationshipType `json:"relationship_type,omitempty"`
	Strength         *float64          `json:"strength,omitempty"`
	Reasoning        string            `json:"reasoning,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Validate checks if the link has valid field values
func (l *FeatureEvidence) Validate() error {
	if l.FeatureID == "" {
		return fmt.Errorf("feature_id is required")
	}
	if l.EvidenceID == "" {
		return fmt.Errorf("evidence_id is required")
	}
	if l.RelationshipType != nil && !l.RelationshipType.IsValid() {
		return fmt.Errorf("invalid relationship type: %s", *l.RelationshipType)
	}
	if l.Strength != nil && (*l.Strength < 0.0 || *l.Strength > 1.0) {
		return fmt.Errorf("strength must be between 0.0 and 1.0 (got %.2f)", *l.Strength)
	}
	return nil
}

// Classified reports whether the relationship classifier has typed this link.
func (l *FeatureEvidence) Classified() bool {
	return l.RelationshipType != nil
}

// RelationshipType describes how evidence relates to a feature
type RelationshipType string

const (
	RelImplements RelationshipType = "implements"
	RelSupports   RelationshipType = "supports"
	RelConstrains RelationshipType = "constrains"
	RelExtends    RelationshipType = "extends"
)

// IsValid checks if the relationship type value is valid
func (r RelationshipType) IsValid() bool {
	switch r {
	case RelImplements, RelSupports, RelConstrains, RelExtends:
		return true
	}
	return false
}

// Document tracks a source document's reprocessing state. Upload and
// extraction belong to external collaborators; the engine only reads the
// record and bumps Version after incremental reprocessing.
type Document struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Version         int       `json:"version"`
	LastExtractedAt time.Time `json:"last_extracted_at"`
}

// FeatureFilter is used to filter feature queries
type FeatureFilter struct {
	Status      *Status
	FeatureType *FeatureType
	Unreviewed  bool // only features without a reviewed_at timestamp
	Limit       int
}
