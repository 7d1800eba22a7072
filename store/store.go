// Package store provides durable, content-deduplicated persistence for
// coverage builds on top of an embedded SQLite database.
package store

import (
	"bytes"
	"compress/zlib"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// CurrentVersion is the schema version this binary knows how to read and
// write. Opening a database whose on-disk version exceeds this is fatal.
const CurrentVersion = 2

// FileName is the default database file name, co-located with the VCS
// metadata directory per spec.md §6.
const FileName = "uncov.sqlite"

// Store owns a single SQLite connection and all persisted builds/files.
// It is not safe for use from more than one goroutine at a time.
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// Open opens (creating if necessary) the database at path, migrating its
// schema to CurrentVersion if it is older.
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer, single connection by design

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var fileVersion int
	if err := s.db.QueryRow("pragma user_version").Scan(&fileVersion); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if fileVersion > CurrentVersion {
		return fmt.Errorf("database schema version %d is newer than supported "+
			"by this build (up to %d)", fileVersion, CurrentVersion)
	}
	if fileVersion == CurrentVersion {
		return nil
	}

	s.log.WithFields(logrus.Fields{"from": fileVersion, "to": CurrentVersion}).
		Info("migrating coverage database schema")

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	rolledBack := false
	rollback := func() {
		if !rolledBack {
			tx.Rollback()
			rolledBack = true
		}
	}
	defer rollback()

	switch fileVersion {
	case 0:
		if _, err := tx.Exec(`
			CREATE TABLE builds (
				build_id   INTEGER PRIMARY KEY,
				ref        TEXT NOT NULL,
				ref_name   TEXT NOT NULL,
				covered    INTEGER NOT NULL,
				missed     INTEGER NOT NULL,
				timestamp  INTEGER NOT NULL
					DEFAULT (CAST(strftime('%s', 'now') AS INT))
			)`); err != nil {
			return fmt.Errorf("create builds table: %w", err)
		}
		if _, err := tx.Exec(`
			CREATE TABLE files (
				file_id       INTEGER PRIMARY KEY,
				path          TEXT NOT NULL,
				content_hash  TEXT NOT NULL,
				cov_hash      TEXT NOT NULL,
				coverage_blob BLOB NOT NULL
			)`); err != nil {
			return fmt.Errorf("create files table: %w", err)
		}
		if _, err := tx.Exec(`
			CREATE TABLE filemap (
				build_id INTEGER NOT NULL REFERENCES builds(build_id),
				file_id  INTEGER NOT NULL REFERENCES files(file_id)
			)`); err != nil {
			return fmt.Errorf("create filemap table: %w", err)
		}
		fallthrough
	case 1:
		if _, err := tx.Exec(`
			CREATE INDEX files_idx ON files(path, content_hash, cov_hash)
		`); err != nil {
			return fmt.Errorf("create files index: %w", err)
		}
		fallthrough
	case CurrentVersion:
		// no-op
	}

	if _, err := tx.Exec("pragma user_version = " + strconv.Itoa(CurrentVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	rolledBack = true

	// VACUUM cannot run inside a transaction.
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("compact database after migration: %w", err)
	}
	return nil
}

// DB exposes the underlying *sql.DB for packages (history) layered on top
// of Store that need to run their own parametrized statements.
func (s *Store) DB() *sql.DB { return s.db }

// Logger exposes the store's logger for reuse by layered packages.
func (s *Store) Logger() logrus.FieldLogger { return s.log }

// Transaction is a scoped write transaction: a Rollback deferred by the
// caller discards it unless Commit was already called; calling Commit
// twice is a programmer error and panics, mirroring the originating C++
// implementation's logic_error on double-commit.
type Transaction struct {
	tx        *sql.Tx
	committed bool
}

// Begin starts a new transaction. Callers must arrange for either Commit
// or Rollback (via defer) to run.
func (s *Store) Begin() (*Transaction, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Transaction{tx: tx}, nil
}

// Commit commits the transaction. Panics if called a second time.
func (t *Transaction) Commit() error {
	if t.committed {
		panic("store: transaction committed twice")
	}
	t.committed = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Rollback is a no-op if Commit already succeeded; otherwise it discards
// the transaction. Safe to call unconditionally in a defer.
func (t *Transaction) Rollback() {
	if t.committed {
		return
	}
	t.tx.Rollback()
}

// Tx exposes the underlying *sql.Tx for statements issued against this
// transaction.
func (t *Transaction) Tx() *sql.Tx { return t.tx }

// EncodeCoverage serializes a coverage vector into the on-disk blob
// format: a 4-byte big-endian length of the uncompressed text
// representation, followed by the zlib-compressed bytes of that text.
// The text representation is the space-separated decimal value of each
// entry, each followed by a single trailing space.
func EncodeCoverage(vec []int) ([]byte, error) {
	var text strings.Builder
	for _, v := range vec {
		text.WriteString(strconv.Itoa(v))
		text.WriteByte(' ')
	}
	raw := text.String()

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write([]byte(raw)); err != nil {
		return nil, fmt.Errorf("compress coverage: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress coverage: %w", err)
	}

	blob := make([]byte, 4, 4+compressed.Len())
	n := uint32(len(raw))
	blob[0] = byte(n >> 24)
	blob[1] = byte(n >> 16)
	blob[2] = byte(n >> 8)
	blob[3] = byte(n)
	blob = append(blob, compressed.Bytes()...)
	return blob, nil
}

// DecodeCoverage is the inverse of EncodeCoverage.
func DecodeCoverage(blob []byte) ([]int, error) {
	if len(blob) < 4 {
		return nil, fmt.Errorf("coverage blob too short (%d bytes)", len(blob))
	}
	wantLen := uint32(blob[0])<<24 | uint32(blob[1])<<16 | uint32(blob[2])<<8 | uint32(blob[3])

	r, err := zlib.NewReader(bytes.NewReader(blob[4:]))
	if err != nil {
		return nil, fmt.Errorf("decompress coverage: %w", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress coverage: %w", err)
	}
	if uint32(len(raw)) != wantLen {
		return nil, fmt.Errorf("coverage length mismatch: header says %d, got %d", wantLen, len(raw))
	}

	fields := strings.Fields(string(raw))
	vec := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid coverage entry %q: %w", f, err)
		}
		vec = append(vec, n)
	}
	return vec, nil
}

// HashCoverage returns the MD5 hex digest of the same space-separated
// decimal text representation used by EncodeCoverage. Used only for
// dedup keying, never as a security primitive.
func HashCoverage(vec []int) string {
	var text strings.Builder
	for _, v := range vec {
		text.WriteString(strconv.Itoa(v))
		text.WriteByte(' ')
	}
	return md5Hex(text.String())
}
