package types

import (
	"testing"
	"time"
)

func TestEvidenceValidate(t *testing.T) {
	tests := []struct {
		name        string
		evidence    Evidence
		expectError bool
	}{
		{
			name: "valid evidence",
			evidence: Evidence{
				SourceDocumentID: "doc-1",
				Type:             EvidenceEndpoint,
				Content:          "POST /api/login authenticates a user",
			},
			expectError: false,
		},
		{
			name: "missing document",
			evidence: Evidence{
				Type:    EvidenceEndpoint,
				Content: "POST /api/login",
			},
			expectError: true,
		},
		{
			name: "blank content",
			evidence: Evidence{
				SourceDocumentID: "doc-1",
				Type:             EvidenceEndpoint,
				Content:          "   ",
			},
			expectError: true,
		},
		{
			name: "unknown type",
			evidence: Evidence{
				SourceDocumentID: "doc-1",
				Type:             EvidenceType("screenshot"),
				Content:          "something",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.evidence.Validate()
			if tt.expectError && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEvidenceTypeIsValid(t *testing.T) {
	valid := []EvidenceType{
		EvidenceUIElement, EvidenceFlow, EvidenceEndpoint, EvidencePayload,
		EvidenceRequirement, EvidenceEdgeCase, EvidenceAcceptanceCriteria,
		EvidenceBug, EvidenceConstraint,
	}
	for _, et := range valid {
		if !et.IsValid() {
			t.Errorf("expected %s to be valid", et)
		}
	}
	if EvidenceType("wireframe").IsValid() {
		t.Error("expected 'wireframe' to be invalid")
	}
}

func TestFeatureValidate(t *testing.T) {
	bad := 1.2
	self := "feat-1"

	tests := []struct {
		name        string
		feature     Feature
		expectError bool
	}{
		{
			name: "valid candidate",
			feature: Feature{
				ID:          "feat-1",
				Name:        "User Login",
				Status:      StatusCandidate,
				FeatureType: TypeTask,
			},
			expectError: false,
		},
		{
			name: "missing name",
			feature: Feature{
				ID:          "feat-1",
				Status:      StatusCandidate,
				FeatureType: TypeTask,
			},
			expectError: true,
		},
		{
			name: "score out of range",
			feature: Feature{
				ID:              "feat-1",
				Name:            "User Login",
				Status:          StatusCandidate,
				FeatureType:     TypeTask,
				ConfidenceScore: &bad,
			},
			expectError: true,
		},
		{
			name: "self parent",
			feature: Feature{
				ID:          "feat-1",
				Name:        "User Login",
				Status:      StatusCandidate,
				FeatureType: TypeTask,
				ParentID:    &self,
			},
			expectError: true,
		},
		{
			name: "invalid status",
			feature: Feature{
				ID:          "feat-1",
				Name:        "User Login",
				Status:      Status("draft"),
				FeatureType: TypeTask,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.feature.Validate()
			if tt.expectError && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestFeatureReviewed(t *testing.T) {
	f := Feature{ID: "feat-1", Name: "X", Status: StatusCandidate, FeatureType: TypeTask}
	if f.Reviewed() {
		t.Error("feature without reviewed_at should not be reviewed")
	}
	now := time.Now()
	f.ReviewedAt = &now
	if !f.Reviewed() {
		t.Error("feature with reviewed_at should be reviewed")
	}
}

func TestFeatureTypeParentType(t *testing.T) {
	if got := TypeTask.ParentType(); got != TypeStory {
		t.Errorf("task parent type = %s, want story", got)
	}
	if got := TypeStory.ParentType(); got != TypeEpic {
		t.Errorf("story parent type = %s, want epic", got)
	}
	if got := TypeEpic.ParentType(); got != "" {
		t.Errorf("epic parent type = %s, want empty", got)
	}
}

func TestFeatureEvidenceValidate(t *testing.T) {
	rel := RelImplements
	strength := 0.8

	link := FeatureEvidence{
		FeatureID:        "feat-1",
		EvidenceID:       "ev-1",
		RelationshipType: &rel,
		Strength:         &strength,
	}
	if err := link.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !link.Classified() {
		t.Error("link with relationship type should be classified")
	}

	badStrength := -0.1
	link.Strength = &badStrength
	if err := link.Validate(); err == nil {
		t.Error("expected error for negative strength")
	}

	unclassified := FeatureEvidence{FeatureID: "feat-1", EvidenceID: "ev-1"}
	if err := unclassified.Validate(); err != nil {
		t.Errorf("unexpected error for unclassified link: %v", err)
	}
	if unclassified.Classified() {
		t.Error("link without relationship type should not be classified")
	}
}
