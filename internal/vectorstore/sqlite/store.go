// Package sqlite persists vector index entries in a single SQLite file.
//
// The file is treated as trusted input: it is read back as written and no
// attempt is made to validate data produced by another program.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // SQLite driver

	"ragchat/internal/domain"
)

// FileName is the database file inside an index directory.
const FileName = "index.db"

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	id          INTEGER PRIMARY KEY,
	document_id TEXT NOT NULL,
	chunk_id    TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	overlap     INTEGER NOT NULL,
	text        TEXT NOT NULL,
	source      TEXT NOT NULL,
	page        INTEGER NOT NULL DEFAULT 0,
	encoding    TEXT NOT NULL DEFAULT '',
	vector      BLOB NOT NULL
);`

// Entry is one persisted vector with its chunk. ID is the stable position
// of the entry in the index.
type Entry struct {
	ID     int64
	Chunk  domain.Chunk
	Vector []float32
}

// Snapshot is the full content of an index file.
type Snapshot struct {
	ModelName string
	Dimension int
	Entries   []Entry
}

// Store wraps one index database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates dir/index.db, creating dir when absent.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Exists reports whether dir holds an index file.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Write replaces the stored snapshot in one transaction.
func (s *Store) Write(ctx context.Context, snap Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("clearing entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meta`); err != nil {
		return fmt.Errorf("clearing meta: %w", err)
	}
	meta := map[string]string{
		"model_name": snap.ModelName,
		"dimension":  strconv.Itoa(snap.Dimension),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("writing meta %s: %w", k, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, document_id, chunk_id, chunk_index, overlap, text, source, page, encoding, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range snap.Entries {
		c := e.Chunk
		_, err := stmt.ExecContext(ctx, e.ID, c.DocumentID, c.ChunkID, c.Index, c.Overlap, c.Text,
			c.Source.Path, c.Source.Page, c.Source.Encoding, serializeVector(e.Vector))
		if err != nil {
			return fmt.Errorf("writing entry %d: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

// Read returns the stored snapshot with entries ordered by id.
func (s *Store) Read(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return snap, fmt.Errorf("reading meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return snap, err
		}
		switch k {
		case "model_name":
			snap.ModelName = v
		case "dimension":
			snap.Dimension, _ = strconv.Atoi(v)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_id, chunk_index, overlap, text, source, page, encoding, vector
		FROM entries ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("reading entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e    Entry
			blob []byte
		)
		c := &e.Chunk
		if err := rows.Scan(&e.ID, &c.DocumentID, &c.ChunkID, &c.Index, &c.Overlap, &c.Text,
			&c.Source.Path, &c.Source.Page, &c.Source.Encoding, &blob); err != nil {
			return snap, err
		}
		e.Vector, err = deserializeVector(blob)
		if err != nil {
			return snap, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		snap.Entries = append(snap.Entries, e)
	}
	return snap, rows.Err()
}

// serializeVector encodes floats as little-endian float32 values.
func serializeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, errors.New("vector blob length is not a multiple of 4")
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}
