package storage

// Schema versions for migration tracking
const (
	SchemaVersion1 = 1
	CurrentSchema  = SchemaVersion1
)

// entryColumns is the column order used by every full-row read and write.
const entryColumns = `id, kind, body, rich_text, html, payload, thumbnail,
	created_at, pinned, source_app, source_process, hash, size`

// SummaryTextLimit is the number of characters of an entry's text carried
// by a Summary. summaryColumns hardcodes the same value.
const SummaryTextLimit = 4096

// summaryColumns omits the large payload fields and caps the text.
const summaryColumns = `id, kind, substr(body, 1, 4096), thumbnail, created_at, pinned,
	source_app, source_process, hash, size,
	payload IS NOT NULL AND length(payload) > 0,
	coalesce(rich_text, '') != '' OR coalesce(html, '') != '',
	length(body) > 4096`

// SQL schema for version 1
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    body TEXT NOT NULL DEFAULT '',
    rich_text TEXT,
    html TEXT,
    payload BLOB,
    thumbnail BLOB,
    created_at INTEGER NOT NULL,
    pinned INTEGER NOT NULL DEFAULT 0,
    source_app TEXT NOT NULL DEFAULT '',
    source_process TEXT NOT NULL DEFAULT '',
    hash TEXT NOT NULL,
    size INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_entries_order ON entries(pinned DESC, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_entries_hash ON entries(hash);
CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
CREATE INDEX IF NOT EXISTS idx_entries_source ON entries(source_app);
CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_live_hash ON entries(hash) WHERE pinned = 0;

CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
    body,
    rich_text,
    source_app,
    kind,
    content='entries',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS entries_fts_insert AFTER INSERT ON entries BEGIN
    INSERT INTO entries_fts(rowid, body, rich_text, source_app, kind)
    VALUES (new.id, new.body, new.rich_text, new.source_app, new.kind);
END;

CREATE TRIGGER IF NOT EXISTS entries_fts_delete AFTER DELETE ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, body, rich_text, source_app, kind)
    VALUES ('delete', old.id, old.body, old.rich_text, old.source_app, old.kind);
END;

CREATE TRIGGER IF NOT EXISTS entries_fts_update AFTER UPDATE OF body, rich_text, source_app, kind ON entries BEGIN
    INSERT INTO entries_fts(entries_fts, rowid, body, rich_text, source_app, kind)
    VALUES ('delete', old.id, old.body, old.rich_text, old.source_app, old.kind);
    INSERT INTO entries_fts(rowid, body, rich_text, source_app, kind)
    VALUES (new.id, new.body, new.rich_text, new.source_app, new.kind);
END;

CREATE TABLE IF NOT EXISTS state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// GetSchema returns the SQL schema for the given version
func GetSchema(version int) string {
	switch version {
	case SchemaVersion1:
		return schemaV1
	default:
		return ""
	}
}
