package sqlite

const schema = `
-- Source documents
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    last_extracted_at DATETIME
);

-- Extracted evidence
CREATE TABLE IF NOT EXISTS evidence (
    id TEXT PRIMARY KEY,
    source_document_id TEXT NOT NULL,
    type TEXT NOT NULL,
    content TEXT NOT NULL,
    embedding BLOB,
    obsolete INTEGER NOT NULL DEFAULT 0,
    extracted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (source_document_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_evidence_document ON evidence(source_document_id);
CREATE INDEX IF NOT EXISTS idx_evidence_obsolete ON evidence(obsolete);

-- Inferred features
CREATE TABLE IF NOT EXISTS features (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL CHECK(length(name) <= 500),
    description TEXT,
    confidence_score REAL CHECK(confidence_score >= 0.0 AND confidence_score <= 1.0),
    status TEXT NOT NULL DEFAULT 'candidate',
    feature_type TEXT NOT NULL DEFAULT 'task',
    parent_id TEXT,
    inferred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    reviewed_at DATETIME,
    FOREIGN KEY (parent_id) REFERENCES features(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_features_status ON features(status);
CREATE INDEX IF NOT EXISTS idx_features_parent ON features(parent_id);

-- Feature-evidence links
CREATE TABLE IF NOT EXISTS feature_evidence (
    feature_id TEXT NOT NULL,
    evidence_id TEXT NOT NULL,
    relationship_type TEXT,
    strength REAL CHECK(strength >= 0.0 AND strength <= 1.0),
    reasoning TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (feature_id, evidence_id),
    FOREIGN KEY (feature_id) REFERENCES features(id) ON DELETE CASCADE,
    FOREIGN KEY (evidence_id) REFERENCES evidence(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_feature_evidence_evidence ON feature_evidence(evidence_id);
`
