package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	dircerrors "github.com/boletinlabs/dirc/internal/errors"
)

// SQLiteStore is the relational chunk store. The chunks_fts external
// content table plus its AFTER INSERT/DELETE/UPDATE triggers keep the
// full-text index in lock-step with the chunks table inside the same
// transaction, which is what makes per-chunk consistency a database
// guarantee rather than application code.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. An empty path opens an in-memory database for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, dircerrors.RelationalStore(
				fmt.Sprintf("failed to create data directory for %s", path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, dircerrors.RelationalStore("failed to open database", err)
	}

	// SQLite allows one writer at a time; a single pooled connection
	// avoids SQLITE_BUSY churn between the write transaction and the
	// auto-commit readers. WAL still lets other processes read.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores most DSN parameters; pragmas must be
	// issued as statements.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, dircerrors.RelationalStore("failed to set pragma", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, dircerrors.RelationalStore("failed to initialize schema", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS documents (
		document_id     TEXT PRIMARY KEY,
		source_id       TEXT NOT NULL DEFAULT '',
		file_name       TEXT NOT NULL DEFAULT '',
		page_count      INTEGER NOT NULL DEFAULT 0,
		year            TEXT NOT NULL DEFAULT '',
		month           TEXT NOT NULL DEFAULT '',
		jurisdiction_id TEXT NOT NULL DEFAULT '',
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id     TEXT NOT NULL REFERENCES documents(document_id) ON DELETE CASCADE,
		chunk_index     INTEGER NOT NULL,
		text            TEXT NOT NULL,
		num_chars       INTEGER NOT NULL,
		start_char      INTEGER NOT NULL,
		end_char        INTEGER NOT NULL,
		chunk_hash      TEXT NOT NULL,
		section_type    TEXT NOT NULL DEFAULT 'general',
		language        TEXT NOT NULL DEFAULT 'es',
		has_tables      INTEGER NOT NULL DEFAULT 0,
		has_amounts     INTEGER NOT NULL DEFAULT 0,
		entities        TEXT,
		topic           TEXT NOT NULL DEFAULT '',
		year            TEXT NOT NULL DEFAULT '',
		month           TEXT NOT NULL DEFAULT '',
		jurisdiction_id TEXT NOT NULL DEFAULT '',
		source_id       TEXT NOT NULL DEFAULT '',
		embedding_model      TEXT NOT NULL DEFAULT '',
		embedding_dimensions INTEGER NOT NULL DEFAULT 0,
		indexed_at      DATETIME,
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(document_id, chunk_index)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, chunk_index);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		content='chunks',
		content_rowid='id',
		tokenize='unicode61'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
	END;
	CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
	END;
	CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE OF text ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES ('delete', old.id, old.text);
		INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
	END;

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path, empty for in-memory stores.
func (s *SQLiteStore) Path() string { return s.path }

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// ChunkTx is a write transaction owned by the indexing orchestrator for
// the duration of one chunk. The FTS triggers fire inside it, so a
// rollback removes the chunk from both the relational and the full-text
// index at once.
type ChunkTx struct {
	tx *sql.Tx
}

// BeginChunkTx starts the per-chunk write transaction.
func (s *SQLiteStore) BeginChunkTx(ctx context.Context) (*ChunkTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dircerrors.RelationalStore("failed to begin transaction", err)
	}
	return &ChunkTx{tx: tx}, nil
}

// EnsureDocument inserts the documents row if it does not exist yet.
// Existing rows are left untouched: documents are immutable.
func (t *ChunkTx) EnsureDocument(ctx context.Context, doc DocumentRow) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO documents (document_id, source_id, file_name, page_count, year, month, jurisdiction_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO NOTHING`,
		doc.DocumentID, doc.SourceID, doc.FileName, doc.PageCount,
		doc.Year, doc.Month, doc.JurisdictionID)
	if err != nil {
		return dircerrors.RelationalStore(
			fmt.Sprintf("failed to ensure document %s", doc.DocumentID), err)
	}
	return nil
}

// InsertChunk writes the chunk row and assigns row.ChunkID from the
// database. The chunks_ai trigger mirrors the text into the FTS index
// within this same transaction.
func (t *ChunkTx) InsertChunk(ctx context.Context, row *ChunkRow) error {
	entities, err := marshalEntities(row.Entities)
	if err != nil {
		return dircerrors.RelationalStore("failed to encode entities", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO chunks (
			document_id, chunk_index, text, num_chars, start_char, end_char, chunk_hash,
			section_type, language, has_tables, has_amounts, entities, topic,
			year, month, jurisdiction_id, source_id,
			embedding_model, embedding_dimensions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.DocumentID, row.ChunkIndex, row.Text, row.NumChars, row.StartChar, row.EndChar, row.ChunkHash,
		row.SectionType, row.Language, boolToInt(row.HasTables), boolToInt(row.HasAmounts), entities, row.Topic,
		row.Year, row.Month, row.JurisdictionID, row.SourceID,
		row.EmbeddingModel, row.EmbeddingDimensions)
	if err != nil {
		return dircerrors.RelationalStore(
			fmt.Sprintf("failed to insert chunk %s/%d", row.DocumentID, row.ChunkIndex), err)
	}
	row.ChunkID, err = res.LastInsertId()
	if err != nil {
		return dircerrors.RelationalStore("failed to read generated chunk id", err)
	}
	return nil
}

// MarkIndexed records that the chunk landed in all three indexes.
func (t *ChunkTx) MarkIndexed(ctx context.Context, chunkID int64, model string, dims int, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE chunks SET embedding_model = ?, embedding_dimensions = ?, indexed_at = ?
		WHERE id = ?`,
		model, dims, at.UTC(), chunkID)
	if err != nil {
		return dircerrors.RelationalStore(
			fmt.Sprintf("failed to mark chunk %d indexed", chunkID), err)
	}
	return nil
}

// Commit commits the transaction.
func (t *ChunkTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return dircerrors.RelationalStore("failed to commit chunk transaction", err)
	}
	return nil
}

// Rollback aborts the transaction. Safe to call after Commit.
func (t *ChunkTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && err != sql.ErrTxDone {
		return dircerrors.RelationalStore("failed to roll back chunk transaction", err)
	}
	return nil
}

// DeleteDocument removes the document and, via ON DELETE CASCADE plus
// the chunks_ad trigger, all of its chunks and FTS entries.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE document_id = ?`, documentID)
	if err != nil {
		return dircerrors.RelationalStore(
			fmt.Sprintf("failed to delete document %s", documentID), err)
	}
	return nil
}

// DeleteChunks removes the given chunk rows.
func (s *SQLiteStore) DeleteChunks(ctx context.Context, chunkIDs []int64) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return dircerrors.RelationalStore("failed to delete chunks", err)
	}
	return nil
}

// GetDocument returns the documents row, or nil when absent.
func (s *SQLiteStore) GetDocument(ctx context.Context, documentID string) (*DocumentRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, source_id, file_name, page_count, year, month, jurisdiction_id, created_at
		FROM documents WHERE document_id = ?`, documentID)
	var d DocumentRow
	err := row.Scan(&d.DocumentID, &d.SourceID, &d.FileName, &d.PageCount,
		&d.Year, &d.Month, &d.JurisdictionID, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dircerrors.RelationalStore(
			fmt.Sprintf("failed to load document %s", documentID), err)
	}
	return &d, nil
}

// ListDocumentIDs returns every document id, ordered.
func (s *SQLiteStore) ListDocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id FROM documents ORDER BY document_id`)
	if err != nil {
		return nil, dircerrors.RelationalStore("failed to list documents", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, dircerrors.RelationalStore("failed to scan document id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const chunkColumns = `
	id, document_id, chunk_index, text, num_chars, start_char, end_char, chunk_hash,
	section_type, language, has_tables, has_amounts, entities, topic,
	year, month, jurisdiction_id, source_id,
	embedding_model, embedding_dimensions, indexed_at, created_at`

// GetChunksByDocument returns all chunk rows of the document ordered by
// chunk_index.
func (s *SQLiteStore) GetChunksByDocument(ctx context.Context, documentID string) ([]*ChunkRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, dircerrors.RelationalStore(
			fmt.Sprintf("failed to load chunks of %s", documentID), err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// GetChunksByIDs returns the chunk rows for the given ids, in id order.
func (s *SQLiteStore) GetChunksByIDs(ctx context.Context, chunkIDs []int64) ([]*ChunkRow, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(chunkIDs))
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+strings.Join(placeholders, ",")+`) ORDER BY id`,
		args...)
	if err != nil {
		return nil, dircerrors.RelationalStore("failed to load chunks by id", err)
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func scanChunkRows(rows *sql.Rows) ([]*ChunkRow, error) {
	var out []*ChunkRow
	for rows.Next() {
		var (
			c          ChunkRow
			entities   sql.NullString
			indexedAt  sql.NullTime
			hasTables  int
			hasAmounts int
		)
		if err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.NumChars, &c.StartChar, &c.EndChar, &c.ChunkHash,
			&c.SectionType, &c.Language, &hasTables, &hasAmounts, &entities, &c.Topic,
			&c.Year, &c.Month, &c.JurisdictionID, &c.SourceID,
			&c.EmbeddingModel, &c.EmbeddingDimensions, &indexedAt, &c.CreatedAt,
		); err != nil {
			return nil, dircerrors.RelationalStore("failed to scan chunk row", err)
		}
		c.HasTables = hasTables != 0
		c.HasAmounts = hasAmounts != 0
		if entities.Valid && entities.String != "" {
			if err := json.Unmarshal([]byte(entities.String), &c.Entities); err != nil {
				return nil, dircerrors.RelationalStore("failed to decode entities", err)
			}
		}
		if indexedAt.Valid {
			t := indexedAt.Time
			c.IndexedAt = &t
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CountChunks returns the number of chunk rows for the document.
func (s *SQLiteStore) CountChunks(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID).Scan(&n)
	if err != nil {
		return 0, dircerrors.RelationalStore("failed to count chunks", err)
	}
	return n, nil
}

// CountFTS returns the number of FTS entries for the document, resolved
// through the external-content rowid join.
func (s *SQLiteStore) CountFTS(ctx context.Context, documentID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		WHERE c.document_id = ?`, documentID).Scan(&n)
	if err != nil {
		return 0, dircerrors.KeywordStore("failed to count FTS entries", err)
	}
	return n, nil
}

// ChunkIndexes returns the chunk_index values of the document in order.
func (s *SQLiteStore) ChunkIndexes(ctx context.Context, documentID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_index FROM chunks WHERE document_id = ? ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, dircerrors.RelationalStore("failed to list chunk indexes", err)
	}
	defer rows.Close()

	var idxs []int
	for rows.Next() {
		var i int
		if err := rows.Scan(&i); err != nil {
			return nil, dircerrors.RelationalStore("failed to scan chunk index", err)
		}
		idxs = append(idxs, i)
	}
	return idxs, rows.Err()
}

// TouchChunks rewrites every chunk text in place, re-firing the
// chunks_au trigger so the FTS entries for the document are rebuilt.
// Used by repair.
func (s *SQLiteStore) TouchChunks(ctx context.Context, documentID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET text = text WHERE document_id = ?`, documentID)
	if err != nil {
		return dircerrors.RelationalStore(
			fmt.Sprintf("failed to touch chunks of %s", documentID), err)
	}
	return nil
}

// SearchBM25 runs a BM25-ranked full-text query. Filters compile to
// column predicates ANDed with the MATCH; unknown filter keys are
// ignored. FTS5 syntax errors from user queries yield zero hits.
func (s *SQLiteStore) SearchBM25(ctx context.Context, query string, topK int, filters FilterMap) ([]*KeywordHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return []*KeywordHit{}, nil
	}

	where, args := compileFilters(filters)
	sqlQuery := `
		SELECT c.id, c.document_id, c.chunk_index, c.text,
		       bm25(chunks_fts) AS rank,
		       c.section_type, c.language, c.topic,
		       COALESCE(d.file_name, '')
		FROM chunks_fts f
		JOIN chunks c ON c.id = f.rowid
		LEFT JOIN documents d ON d.document_id = c.document_id
		WHERE chunks_fts MATCH ?` + where + `
		ORDER BY rank
		LIMIT ?`

	queryArgs := append([]any{match}, args...)
	queryArgs = append(queryArgs, topK)

	rows, err := s.db.QueryContext(ctx, sqlQuery, queryArgs...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return []*KeywordHit{}, nil
		}
		return nil, dircerrors.KeywordStore("BM25 query failed", err)
	}
	defer rows.Close()

	var hits []*KeywordHit
	for rows.Next() {
		var (
			h    KeywordHit
			rank float64
		)
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.ChunkIndex, &h.Text,
			&rank, &h.SectionType, &h.Language, &h.Topic, &h.FileName); err != nil {
			return nil, dircerrors.KeywordStore("failed to scan BM25 hit", err)
		}
		// FTS5 rank is negative, lower is better. Negate so higher is
		// better, matching the retrieval layer's convention.
		h.BM25Score = -rank
		hits = append(hits, &h)
	}
	if hits == nil {
		hits = []*KeywordHit{}
	}
	return hits, rows.Err()
}

// Stats reads corpus-wide counters for the stats surface.
func (s *SQLiteStore) Stats(ctx context.Context) (*CorpusStats, error) {
	stats := &CorpusStats{SectionCounts: make(map[string]int)}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents`).Scan(&stats.Documents); err != nil {
		return nil, dircerrors.RelationalStore("failed to count documents", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(indexed_at) FROM chunks`).Scan(&stats.Chunks, &stats.IndexedChunks); err != nil {
		return nil, dircerrors.RelationalStore("failed to count chunks", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT section_type, COUNT(*) FROM chunks GROUP BY section_type`)
	if err != nil {
		return nil, dircerrors.RelationalStore("failed to read section histogram", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			section string
			n       int
		)
		if err := rows.Scan(&section, &n); err != nil {
			return nil, dircerrors.RelationalStore("failed to scan section histogram", err)
		}
		stats.SectionCounts[section] = n
	}
	if err := rows.Err(); err != nil {
		return nil, dircerrors.RelationalStore("failed to read section histogram", err)
	}

	_ = s.db.QueryRowContext(ctx, `
		SELECT embedding_model FROM chunks
		WHERE embedding_model != '' ORDER BY id DESC LIMIT 1`).Scan(&stats.EmbeddingModel)

	if s.path != "" {
		if info, err := os.Stat(s.path); err == nil {
			stats.DBSizeBytes = info.Size()
		}
	}
	return stats, nil
}

// ftsQuery quotes each query token so FTS5 operators in user input
// (AND, OR, NEAR, quotes, asterisks) match literally instead of being
// parsed.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " ")
}

// filterColumns whitelists the chunk columns a keyword filter may touch.
// has_tables and has_amounts accept "true"/"false".
var filterColumns = map[string]bool{
	"document_id":     true,
	"source_id":       true,
	"section_type":    true,
	"language":        true,
	"topic":           true,
	"year":            true,
	"month":           true,
	"jurisdiction_id": true,
	"has_tables":      true,
	"has_amounts":     true,
}

// EntitySeparator joins multiple entity values in a FilterMap entry.
// Each value compiles to its own LIKE predicate, ANDed together.
const EntitySeparator = "\x1f"

// compileFilters builds the AND predicates for a keyword search.
// Unknown keys are dropped. The entities key compiles to a substring
// match against the JSON entities column, one predicate per value.
func compileFilters(filters FilterMap) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}
	var (
		sb   strings.Builder
		args []any
	)
	// Deterministic ordering keeps queries cache-friendly.
	for _, key := range []string{
		"document_id", "source_id", "section_type", "language", "topic",
		"year", "month", "jurisdiction_id", "has_tables", "has_amounts", "entities",
	} {
		value, ok := filters[key]
		if !ok {
			continue
		}
		switch {
		case key == "entities":
			for _, entity := range strings.Split(value, EntitySeparator) {
				if entity == "" {
					continue
				}
				sb.WriteString(" AND c.entities LIKE ?")
				args = append(args, "%"+entity+"%")
			}
		case key == "has_tables" || key == "has_amounts":
			sb.WriteString(" AND c." + key + " = ?")
			args = append(args, boolToInt(value == "true"))
		case filterColumns[key]:
			sb.WriteString(" AND c." + key + " = ?")
			args = append(args, value)
		}
	}
	return sb.String(), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalEntities(entities map[string][]string) (any, error) {
	if len(entities) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(entities)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
