// Package sqlstore is a DocumentStore backed by a pure Go SQLite database.
// It is the alternative to the bbolt store for deployments that want to
// inspect the corpus with ordinary SQL tooling.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"devsolver/internal/adapter/sqlstore/migrations"
	"devsolver/internal/adapter/store"
	"devsolver/internal/domain"
	"devsolver/internal/port"
)

const jsonNull = "null"

var _ port.DocumentStore = (*Store)(nil)

// Store persists technologies, documents, chunks and embeddings in SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore opens (creating if needed) the database at path and applies
// pending migrations.
func NewStore(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection serialises writers and keeps the foreign_keys
	// pragma in effect for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, path: path, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	current, err := s.schemaVersion()
	if err != nil {
		return err
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", "name", name)
	}
	return nil
}

func (s *Store) schemaVersion() (int, error) {
	var version int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("getting current version: %w", err)
	}
	return version, nil
}

func (s *Store) LoadChunks(ctx context.Context, technology, documentID string) ([]domain.Chunk, error) {
	query := `SELECT id, document_id, content, ordinal, metadata FROM chunks WHERE technology = ?`
	args := []any{technology}
	if documentID != "" {
		query += ` AND document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY document_id, ordinal`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var metadataJSON string
		if err := rows.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Content, &chunk.Ordinal, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if metadataJSON != "" && metadataJSON != jsonNull {
			if err := json.Unmarshal([]byte(metadataJSON), &chunk.Metadata); err != nil {
				s.logger.Warn("ignoring corrupt chunk metadata",
					"technology", technology, "chunk", chunk.ID, "error", err)
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *Store) LoadEmbeddings(ctx context.Context, technology, documentID string) (map[string]domain.EmbeddingVector, error) {
	query := `SELECT chunk_id, vector FROM embeddings WHERE technology = ?`
	args := []any{technology}
	if documentID != "" {
		query += ` AND document_id = ?`
		args = append(args, documentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.EmbeddingVector)
	for rows.Next() {
		var chunkID string
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedding: %w", err)
		}
		if len(blob)%4 != 0 {
			s.logger.Warn("skipping corrupt embedding record", "technology", technology, "chunk", chunkID)
			continue
		}
		out[chunkID] = bytesToFloat32Slice(blob)
	}
	return out, rows.Err()
}

func (s *Store) LoadSourceMeta(ctx context.Context, technology string) (map[string]domain.SourceMeta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, title, url, path, ingested_at, chunk_count
		FROM documents WHERE technology = ?
	`, technology)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	metas := make(map[string]domain.SourceMeta)
	for rows.Next() {
		var meta domain.SourceMeta
		var label, ingestedAt string
		if err := rows.Scan(&meta.DocumentID, &label, &meta.Title, &meta.URL, &meta.Path, &ingestedAt, &meta.ChunkCount); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		meta.Label = domain.SourceLabel(label)
		if ingestedAt != "" {
			t, err := time.Parse(time.RFC3339Nano, ingestedAt)
			if err != nil {
				s.logger.Warn("ignoring corrupt ingest time",
					"technology", technology, "document", meta.DocumentID, "error", err)
			}
			meta.IngestedAt = t
		}
		metas[meta.DocumentID] = meta
	}
	return metas, rows.Err()
}

// SaveDocument replaces a document's metadata, chunks and embeddings in one
// transaction.
func (s *Store) SaveDocument(ctx context.Context, technology string, meta domain.SourceMeta, chunks []domain.Chunk) error {
	if technology == "" {
		return fmt.Errorf("technology is required")
	}
	if meta.DocumentID == "" {
		return fmt.Errorf("document id is required")
	}
	meta.ChunkCount = len(chunks)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		// Deleting the row cascades to the old chunks and embeddings.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM documents WHERE technology = ? AND id = ?`, technology, meta.DocumentID); err != nil {
			return fmt.Errorf("replacing document: %w", err)
		}

		var ingestedAt string
		if !meta.IngestedAt.IsZero() {
			ingestedAt = meta.IngestedAt.UTC().Format(time.RFC3339Nano)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (technology, id, label, title, url, path, ingested_at, chunk_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, technology, meta.DocumentID, string(meta.Label), meta.Title, meta.URL, meta.Path,
			ingestedAt, meta.ChunkCount); err != nil {
			return fmt.Errorf("saving document: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunks (technology, document_id, ordinal, id, content, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing chunk insert: %w", err)
		}
		defer stmt.Close()

		for _, chunk := range chunks {
			metadataJSON, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("marshalling chunk metadata: %w", err)
			}
			if _, err := stmt.ExecContext(ctx, technology, meta.DocumentID, chunk.Ordinal,
				chunk.ID, chunk.Content, string(metadataJSON)); err != nil {
				return fmt.Errorf("saving chunk %s: %w", chunk.ID, err)
			}
		}
		return nil
	})
}

// SaveEmbeddings stores embeddings for chunks of an existing document.
func (s *Store) SaveEmbeddings(ctx context.Context, technology, documentID string, embeddings map[string]domain.EmbeddingVector) error {
	if len(embeddings) == 0 {
		return ctx.Err()
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := documentExists(ctx, tx, technology, documentID); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO embeddings (technology, document_id, chunk_id, vector)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (technology, document_id, chunk_id) DO UPDATE SET vector = excluded.vector
		`)
		if err != nil {
			return fmt.Errorf("preparing embedding insert: %w", err)
		}
		defer stmt.Close()

		for chunkID, vec := range embeddings {
			if _, err := stmt.ExecContext(ctx, technology, documentID, chunkID, float32SliceToBytes(vec)); err != nil {
				return fmt.Errorf("saving embedding %s: %w", chunkID, err)
			}
		}
		return nil
	})
}

func (s *Store) DeleteDocument(ctx context.Context, technology, documentID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE technology = ? AND id = ?`, technology, documentID)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("document %s/%s: %w", technology, documentID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListTechnologies(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT technology FROM documents ORDER BY technology`)
	if err != nil {
		return nil, fmt.Errorf("querying technologies: %w", err)
	}
	defer rows.Close()

	var techs []string
	for rows.Next() {
		var tech string
		if err := rows.Scan(&tech); err != nil {
			return nil, err
		}
		techs = append(techs, tech)
	}
	return techs, rows.Err()
}

func (s *Store) Stats(ctx context.Context, technology string) (domain.StoreStats, error) {
	stats := domain.StoreStats{Technology: technology}
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE technology = ?),
			(SELECT COUNT(*) FROM chunks WHERE technology = ?),
			(SELECT COUNT(*) FROM embeddings WHERE technology = ?)
	`, technology, technology, technology)
	if err := row.Scan(&stats.Documents, &stats.Chunks, &stats.Embeddings); err != nil {
		return stats, fmt.Errorf("counting technology %s: %w", technology, err)
	}
	if stats.Documents == 0 {
		return stats, fmt.Errorf("technology %s: %w", technology, store.ErrNotFound)
	}
	return stats, nil
}

// DropTechnology removes a technology and everything stored under it.
func (s *Store) DropTechnology(ctx context.Context, technology string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE technology = ?`, technology)
	if err != nil {
		return fmt.Errorf("dropping technology: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("technology %s: %w", technology, store.ErrNotFound)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func documentExists(ctx context.Context, tx *sql.Tx, technology, documentID string) error {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM documents WHERE technology = ? AND id = ?`, technology, documentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("document %s/%s: %w", technology, documentID, store.ErrNotFound)
	}
	return err
}

// float32SliceToBytes converts a []float32 to a little-endian blob.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32Slice(data []byte) domain.EmbeddingVector {
	if len(data) == 0 {
		return nil
	}
	floats := make(domain.EmbeddingVector, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
