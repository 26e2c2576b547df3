// Package sqlite implements the storage interface on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/scopeline/scopeline/internal/storage"
	"github.com/scopeline/scopeline/internal/types"
)

// Store implements storage.Storage using SQLite.
type Store struct {
	db *sql.DB
}

var _ storage.Storage = (*Store)(nil)

// New opens (or creates) a catalog database at path. Pass ":memory:" for an
// ephemeral database in tests.
func New(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// WAL mode so readers do not block the pipeline's writes.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Documents ---

// UpsertDocument inserts a document or updates its name and extraction
// metadata.
func (s *Store) UpsertDocument(ctx context.Context, doc *types.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, version, last_extracted_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			last_extracted_at = excluded.last_extracted_at`,
		doc.ID, doc.Name, doc.Version, nullableTime(doc.LastExtractedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument returns the document or types.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, version, last_extracted_at FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, types.ErrNotFound)
	}
	return doc, err
}

// ListDocuments returns all documents ordered by id.
func (s *Store) ListDocuments(ctx context.Context) ([]*types.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, version, last_extracted_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// IncrementDocumentVersion bumps the version and records the new extraction
// time.
func (s *Store) IncrementDocumentVersion(ctx context.Context, id string, extractedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET version = version + 1, last_extracted_at = ? WHERE id = ?`,
		extractedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to bump version for document %s: %w", id, err)
	}
	return requireRow(res, "document", id)
}

// --- Evidence ---

// CreateEvidence inserts a validated evidence row.
func (s *Store) CreateEvidence(ctx context.Context, evidence *types.Evidence) error {
	if err := evidence.Validate(); err != nil {
		return fmt.Errorf("invalid evidence: %w", err)
	}
	if evidence.ID == "" {
		evidence.ID = uuid.New().String()
	}
	embedding, err := marshalEmbedding(evidence.Embedding)
	if err != nil {
		return err
	}
	extractedAt := evidence.ExtractedAt
	if extractedAt.IsZero() {
		extractedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO evidence (id, source_document_id, type, content, embedding, obsolete, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evidence.ID, evidence.SourceDocumentID, string(evidence.Type), evidence.Content,
		embedding, evidence.Obsolete, extractedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create evidence %s: %w", evidence.ID, err)
	}
	return nil
}

const evidenceColumns = `id, source_document_id, type, content, embedding, obsolete, extracted_at`

// GetEvidence returns the evidence item or types.ErrNotFound.
func (s *Store) GetEvidence(ctx context.Context, id string) (*types.Evidence, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE id = ?`, id)
	ev, err := scanEvidence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evidence %s: %w", id, types.ErrNotFound)
	}
	return ev, err
}

// GetEvidenceByIDs returns evidence rows for the given ids, ordered by id.
// Missing ids are silently absent from the result.
func (s *Store) GetEvidenceByIDs(ctx context.Context, ids []string) ([]*types.Evidence, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryEvidence(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
}

// ListEvidenceByDocument returns all evidence for a document, ordered by id.
func (s *Store) ListEvidenceByDocument(ctx context.Context, documentID string) ([]*types.Evidence, error) {
	return s.queryEvidence(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE source_document_id = ? ORDER BY id`, documentID)
}

// ListActiveEvidence returns all non-obsolete evidence, ordered by id.
func (s *Store) ListActiveEvidence(ctx context.Context) ([]*types.Evidence, error) {
	return s.queryEvidence(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE obsolete = 0 ORDER BY id`)
}

// GetUnembeddedEvidence returns non-obsolete evidence without embeddings.
func (s *Store) GetUnembeddedEvidence(ctx context.Context) ([]*types.Evidence, error) {
	return s.queryEvidence(ctx,
		`SELECT `+evidenceColumns+` FROM evidence WHERE obsolete = 0 AND embedding IS NULL ORDER BY id`)
}

// SetEvidenceEmbedding stores the vector for one evidence item.
func (s *Store) SetEvidenceEmbedding(ctx context.Context, evidenceID string, embedding []float32) error {
	blob, err := marshalEmbedding(embedding)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE evidence SET embedding = ? WHERE id = ?`, blob, evidenceID)
	if err != nil {
		return fmt.Errorf("failed to set embedding for %s: %w", evidenceID, err)
	}
	return requireRow(res, "evidence", evidenceID)
}

// GetUnlinkedEvidence returns non-obsolete evidence not linked to any
// feature.
func (s *Store) GetUnlinkedEvidence(ctx context.Context) ([]*types.Evidence, error) {
	return s.queryEvidence(ctx, `
		SELECT `+evidenceColumns+` FROM evidence e
		WHERE e.obsolete = 0
		  AND NOT EXISTS (SELECT 1 FROM feature_evidence fe WHERE fe.evidence_id = e.id)
		ORDER BY e.id`)
}

// MarkEvidenceObsolete flags the given evidence ids as obsolete.
func (s *Store) MarkEvidenceObsolete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE evidence SET obsolete = 1 WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark evidence obsolete: %w", err)
	}
	return nil
}

// --- Features ---

// CreateFeature inserts a validated feature row.
func (s *Store) CreateFeature(ctx context.Context, feature *types.Feature) error {
	if err := feature.Validate(); err != nil {
		return fmt.Errorf("invalid feature: %w", err)
	}
	if feature.ID == "" {
		feature.ID = uuid.New().String()
	}
	inferredAt := feature.InferredAt
	if inferredAt.IsZero() {
		inferredAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO features (id, name, description, confidence_score, status, feature_type, parent_id, inferred_at, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feature.ID, feature.Name, feature.Description, feature.ConfidenceScore,
		string(feature.Status), string(feature.FeatureType), feature.ParentID,
		inferredAt.UTC(), nullableTimePtr(feature.ReviewedAt))
	if err != nil {
		return fmt.Errorf("failed to create feature %s: %w", feature.ID, err)
	}
	return nil
}

const featureColumns = `id, name, description, confidence_score, status, feature_type, parent_id, inferred_at, reviewed_at`

// GetFeature returns the feature or types.ErrNotFound.
func (s *Store) GetFeature(ctx context.Context, id string) (*types.Feature, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+featureColumns+` FROM features WHERE id = ?`, id)
	f, err := scanFeature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feature %s: %w", id, types.ErrNotFound)
	}
	return f, err
}

// ListFeatures returns features matching the filter, ordered by id.
func (s *Store) ListFeatures(ctx context.Context, filter types.FeatureFilter) ([]*types.Feature, error) {
	query := `SELECT ` + featureColumns + ` FROM features WHERE 1=1`
	var args []interface{}

	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}
	if filter.FeatureType != nil {
		query += ` AND feature_type = ?`
		args = append(args, string(*filter.FeatureType))
	}
	if filter.Unreviewed {
		query += ` AND reviewed_at IS NULL`
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	var features []*types.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// DeleteFeature removes a feature. Links cascade; children are re-rooted by
// the ON DELETE SET NULL constraint.
func (s *Store) DeleteFeature(ctx context.Context, featureID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM features WHERE id = ?`, featureID)
	if err != nil {
		return fmt.Errorf("failed to delete feature %s: %w", featureID, err)
	}
	return requireRow(res, "feature", featureID)
}

// SetFeatureScore records a recomputed score, and the derived status when
// the caller passes one.
func (s *Store) SetFeatureScore(ctx context.Context, featureID string, score float64, status *types.Status) error {
	var (
		res sql.Result
		err error
	)
	if status != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE features SET confidence_score = ?, status = ? WHERE id = ?`,
			score, string(*status), featureID)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE features SET confidence_score = ? WHERE id = ?`, score, featureID)
	}
	if err != nil {
		return fmt.Errorf("failed to set score for feature %s: %w", featureID, err)
	}
	return requireRow(res, "feature", featureID)
}

// SetFeatureHierarchy records a feature's parent and epic/story/task type.
func (s *Store) SetFeatureHierarchy(ctx context.Context, featureID string, parentID *string, featureType types.FeatureType) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE features SET parent_id = ?, feature_type = ? WHERE id = ?`,
		parentID, string(featureType), featureID)
	if err != nil {
		return fmt.Errorf("failed to set hierarchy for feature %s: %w", featureID, err)
	}
	return requireRow(res, "feature", featureID)
}

// SetFeatureReviewed records a human review decision. Reviewed features keep
// their status through later scoring passes.
func (s *Store) SetFeatureReviewed(ctx context.Context, featureID string, status types.Status, reviewedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE features SET status = ?, reviewed_at = ? WHERE id = ?`,
		string(status), reviewedAt.UTC(), featureID)
	if err != nil {
		return fmt.Errorf("failed to mark feature %s reviewed: %w", featureID, err)
	}
	return requireRow(res, "feature", featureID)
}

// --- Feature-evidence links ---

// LinkEvidence inserts a link. Linking the same pair twice is a no-op.
func (s *Store) LinkEvidence(ctx context.Context, link *types.FeatureEvidence) error {
	if err := link.Validate(); err != nil {
		return fmt.Errorf("invalid link: %w", err)
	}
	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var relType *string
	if link.RelationshipType != nil {
		v := string(*link.RelationshipType)
		relType = &v
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feature_evidence (feature_id, evidence_id, relationship_type, strength, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(feature_id, evidence_id) DO NOTHING`,
		link.FeatureID, link.EvidenceID, relType, link.Strength, link.Reasoning, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to link evidence %s to feature %s: %w",
			link.EvidenceID, link.FeatureID, err)
	}
	return nil
}

// GetLinkedEvidence returns the evidence linked to a feature, ordered by id.
func (s *Store) GetLinkedEvidence(ctx context.Context, featureID string) ([]*types.Evidence, error) {
	return s.queryEvidence(ctx, `
		SELECT e.id, e.source_document_id, e.type, e.content, e.embedding, e.obsolete, e.extracted_at
		FROM evidence e
		JOIN feature_evidence fe ON fe.evidence_id = e.id
		WHERE fe.feature_id = ?
		ORDER BY e.id`, featureID)
}

// GetLinkedEvidenceIDs returns just the evidence ids linked to a feature.
func (s *Store) GetLinkedEvidenceIDs(ctx context.Context, featureID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT evidence_id FROM feature_evidence WHERE feature_id = ? ORDER BY evidence_id`, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to list link ids for %s: %w", featureID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetUnclassifiedLinks returns a feature's links that have no relationship
// type yet, skipping links to obsolete evidence.
func (s *Store) GetUnclassifiedLinks(ctx context.Context, featureID string) ([]*types.FeatureEvidence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fe.feature_id, fe.evidence_id, fe.relationship_type, fe.strength, fe.reasoning, fe.created_at
		FROM feature_evidence fe
		JOIN evidence e ON e.id = fe.evidence_id
		WHERE fe.feature_id = ? AND fe.relationship_type IS NULL AND e.obsolete = 0
		ORDER BY fe.evidence_id`, featureID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unclassified links for %s: %w", featureID, err)
	}
	defer rows.Close()

	var links []*types.FeatureEvidence
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// UpdateLinkClassification records the relationship verdict for one link.
func (s *Store) UpdateLinkClassification(ctx context.Context, featureID, evidenceID string, rel types.RelationshipType, strength float64, reasoning string) error {
	if !rel.IsValid() {
		return fmt.Errorf("invalid relationship type: %s", rel)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE feature_evidence SET relationship_type = ?, strength = ?, reasoning = ?
		WHERE feature_id = ? AND evidence_id = ?`,
		string(rel), strength, reasoning, featureID, evidenceID)
	if err != nil {
		return fmt.Errorf("failed to classify link %s/%s: %w", featureID, evidenceID, err)
	}
	return requireRow(res, "link", featureID+"/"+evidenceID)
}

// GetFeatureIDsForEvidence returns the distinct features linked to any of
// the given evidence ids, ordered by feature id.
func (s *Store) GetFeatureIDsForEvidence(ctx context.Context, evidenceIDs []string) ([]string, error) {
	if len(evidenceIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(evidenceIDs)-1) + "?"
	args := make([]interface{}, len(evidenceIDs))
	for i, id := range evidenceIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT feature_id FROM feature_evidence WHERE evidence_id IN (`+placeholders+`) ORDER BY feature_id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list features for evidence: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RepointLinks moves all links from one feature to another, dropping links
// the target already has.
func (s *Store) RepointLinks(ctx context.Context, fromFeatureID, toFeatureID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM feature_evidence
		WHERE feature_id = ?
		  AND evidence_id IN (SELECT evidence_id FROM feature_evidence WHERE feature_id = ?)`,
		fromFeatureID, toFeatureID)
	if err != nil {
		return fmt.Errorf("failed to drop overlapping links: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE feature_evidence SET feature_id = ? WHERE feature_id = ?`,
		toFeatureID, fromFeatureID)
	if err != nil {
		return fmt.Errorf("failed to repoint links from %s to %s: %w", fromFeatureID, toFeatureID, err)
	}
	return tx.Commit()
}

// DeleteLinksForObsoleteEvidence removes links pointing at obsolete
// evidence. Returns the number of links removed.
func (s *Store) DeleteLinksForObsoleteEvidence(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM feature_evidence
		WHERE evidence_id IN (SELECT id FROM evidence WHERE obsolete = 1)`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete obsolete links: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// --- Reporting ---

// Stats returns catalog counts.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{
		ByStatus: make(map[types.Status]int),
		ByType:   make(map[types.FeatureType]int),
	}

	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM documents`, &stats.Documents},
		{`SELECT COUNT(*) FROM evidence`, &stats.Evidence},
		{`SELECT COUNT(*) FROM evidence WHERE obsolete = 1`, &stats.ObsoleteEvidence},
		{`SELECT COUNT(*) FROM evidence WHERE obsolete = 0 AND embedding IS NULL`, &stats.UnembeddedEvidence},
		{`SELECT COUNT(*) FROM features`, &stats.Features},
		{`SELECT COUNT(*) FROM feature_evidence`, &stats.Links},
		{`SELECT COUNT(*) FROM feature_evidence WHERE relationship_type IS NULL`, &stats.UnclassifiedLinks},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to collect stats: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM features GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to collect status stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[types.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	typeRows, err := s.db.QueryContext(ctx, `SELECT feature_type, COUNT(*) FROM features GROUP BY feature_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to collect type stats: %w", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var ftype string
		var n int
		if err := typeRows.Scan(&ftype, &n); err != nil {
			return nil, err
		}
		stats.ByType[types.FeatureType(ftype)] = n
	}
	return stats, typeRows.Err()
}

// --- Scan helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var doc types.Document
	var extractedAt sql.NullTime
	if err := row.Scan(&doc.ID, &doc.Name, &doc.Version, &extractedAt); err != nil {
		return nil, err
	}
	if extractedAt.Valid {
		doc.LastExtractedAt = extractedAt.Time
	}
	return &doc, nil
}

func scanEvidence(row rowScanner) (*types.Evidence, error) {
	var ev types.Evidence
	var evType string
	var embedding []byte
	if err := row.Scan(&ev.ID, &ev.SourceDocumentID, &evType, &ev.Content,
		&embedding, &ev.Obsolete, &ev.ExtractedAt); err != nil {
		return nil, err
	}
	ev.Type = types.EvidenceType(evType)
	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &ev.Embedding); err != nil {
			return nil, fmt.Errorf("corrupt embedding for evidence %s: %w", ev.ID, err)
		}
	}
	return &ev, nil
}

func scanFeature(row rowScanner) (*types.Feature, error) {
	var f types.Feature
	var status, ftype string
	var reviewedAt sql.NullTime
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &f.ConfidenceScore,
		&status, &ftype, &f.ParentID, &f.InferredAt, &reviewedAt); err != nil {
		return nil, err
	}
	f.Status = types.Status(status)
	f.FeatureType = types.FeatureType(ftype)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		f.ReviewedAt = &t
	}
	return &f, nil
}

func scanLink(row rowScanner) (*types.FeatureEvidence, error) {
	var link types.FeatureEvidence
	var relType sql.NullString
	if err := row.Scan(&link.FeatureID, &link.EvidenceID, &relType,
		&link.Strength, &link.Reasoning, &link.CreatedAt); err != nil {
		return nil, err
	}
	if relType.Valid {
		rt := types.RelationshipType(relType.String)
		link.RelationshipType = &rt
	}
	return &link, nil
}

func (s *Store) queryEvidence(ctx context.Context, query string, args ...interface{}) ([]*types.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var out []*types.Evidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func marshalEmbedding(embedding []float32) ([]byte, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return data, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullableTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, types.ErrNotFound)
	}
	return nil
}
