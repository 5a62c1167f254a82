package vectordb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3" // cgo driver "sqlite3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // pure-Go driver "sqlite"

	"github.com/0xcro3dile/knowledge-vault/internal/domain/entities"
	"github.com/0xcro3dile/knowledge-vault/internal/domain/errs"
)

// SQLite driver names.
const (
	DriverCGO    = "sqlite3"
	DriverPureGo = "sqlite"
)

const metaDimension = "dimension"

// SQLiteIndex implements ports.VectorIndex on a single SQLite file.
// Similarity search is brute-force cosine over all rows, in insertion order.
type SQLiteIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	dim    int
	logger *zap.Logger
}

// NewSQLiteIndex opens (or creates) dataPath/vectors.db with the given driver.
func NewSQLiteIndex(dataPath, driver string, logger *zap.Logger) (*SQLiteIndex, error) {
	if dataPath == "" {
		dataPath = "./data"
	}
	if driver == "" {
		driver = DriverCGO
	}

	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open(driver, filepath.Join(dataPath, "vectors.db"))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: writes are serialized and SQLite never sees concurrent writers.
	db.SetMaxOpenConns(1)

	idx, err := NewSQLiteIndexFromDB(context.Background(), db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

// NewSQLiteIndexFromDB wraps an open database, creating the schema if needed.
func NewSQLiteIndexFromDB(ctx context.Context, db *sql.DB, logger *zap.Logger) (*SQLiteIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SQLiteIndex{db: db, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	if err := s.loadDimension(ctx); err != nil {
		return nil, fmt.Errorf("loading dimension: %w", err)
	}
	return s, nil
}

func (s *SQLiteIndex) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		chunk_id TEXT NOT NULL,
		document_id TEXT NOT NULL,
		source_doc TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_entries_document_id ON entries(document_id);
	CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteIndex) loadDimension(ctx context.Context) error {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = ?", metaDimension).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	s.dim, err = strconv.Atoi(v)
	return err
}

// Upsert writes all entries in one transaction. A rewritten entry keeps its
// original insertion position.
func (s *SQLiteIndex) Upsert(ctx context.Context, entries []entities.IndexEntry) error {
	const op = "vectordb.SQLite.Upsert"
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim, err := batchDimension(op, entries, s.dim)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.CodeIndexIO, op, fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	if s.dim == 0 {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO index_meta (key, value) VALUES (?, ?)",
			metaDimension, strconv.Itoa(dim)); err != nil {
			return errs.Wrap(errs.CodeIndexIO, op, fmt.Errorf("recording dimension: %w", err))
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, chunk_id, document_id, source_doc, chunk_index, start_offset, end_offset, content, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chunk_id = excluded.chunk_id,
			document_id = excluded.document_id,
			source_doc = excluded.source_doc,
			chunk_index = excluded.chunk_index,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding
	`)
	if err != nil {
		return errs.Wrap(errs.CodeIndexIO, op, fmt.Errorf("preparing statement: %w", err))
	}
	defer stmt.Close()

	for _, e := range entries {
		meta, err := json.Marshal(e.Chunk.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		c := e.Chunk
		if _, err := stmt.ExecContext(ctx,
			e.ID, c.ID, c.DocumentID, c.SourceName, c.Index, c.Start, c.End, c.Content,
			string(meta), encodeVector(e.Vector),
		); err != nil {
			return errs.Wrap(errs.CodeIndexIO, op, fmt.Errorf("inserting entry %s: %w", e.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.CodeIndexIO, op, fmt.Errorf("committing: %w", err))
	}
	s.dim = dim
	return nil
}

// Query scores every row against vector.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, topK int) (entities.RetrievalResult, error) {
	const op = "vectordb.SQLite.Query"

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := validateQuery(op, vector, topK, s.dim); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, source_doc, chunk_index, start_offset, end_offset, content, metadata, embedding
		FROM entries ORDER BY seq
	`)
	if err != nil {
		return nil, errs.Wrap(errs.CodeIndexIO, op, fmt.Errorf("querying entries: %w", err))
	}
	defer rows.Close()

	var candidates []scored
	for rows.Next() {
		var (
			c        entities.Chunk
			meta     string
			embBytes []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.SourceName, &c.Index, &c.Start, &c.End, &c.Content, &meta, &embBytes); err != nil {
			return nil, errs.Wrap(errs.CodeIndexIO, op, fmt.Errorf("scanning row: %w", err))
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			s.logger.Warn("corrupt entry metadata", zap.String("chunk_id", c.ID), zap.Error(err))
		}
		vec, err := decodeVector(embBytes)
		if err != nil {
			return nil, errs.Wrap(errs.CodeIndexIO, op, fmt.Errorf("entry %s: %w", c.ID, err))
		}
		candidates = append(candidates, scored{chunk: c, score: cosineSimilarity(vector, vec)})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeIndexIO, op, err)
	}

	return rank(candidates, topK), nil
}

// Delete removes all entries for a document.
func (s *SQLiteIndex) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM entries WHERE document_id = ?", documentID)
	return errs.Wrap(errs.CodeIndexIO, "vectordb.SQLite.Delete", err)
}

// DeleteAll removes every entry and the recorded dimension.
func (s *SQLiteIndex) DeleteAll(ctx context.Context) error {
	const op = "vectordb.SQLite.DeleteAll"

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.CodeIndexIO, op, err)
	}
	defer tx.Rollback()

	for _, q := range []string{"DELETE FROM entries", "DELETE FROM index_meta"} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return errs.Wrap(errs.CodeIndexIO, op, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.CodeIndexIO, op, err)
	}

	s.dim = 0
	s.logger.Info("index cleared")
	return nil
}

// Count returns the number of stored entries.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entries").Scan(&count)
	if err != nil {
		return 0, errs.Wrap(errs.CodeIndexIO, "vectordb.SQLite.Count", err)
	}
	return count, nil
}

// Dimension returns the established vector dimension, 0 when unset.
func (s *SQLiteIndex) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// encodeVector packs float32s little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
