// Package store persists raw proof blobs in an append-only SQL table keyed by
// the digest of the blob. SQLite and PostgreSQL are supported.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/crev-dev/cargo-crev-sub001/pkg/digest"
	"github.com/crev-dev/cargo-crev-sub001/pkg/index"
)

var ErrNotFound = errors.New("proof blob not found")

// Dialect selects placeholder style and column types.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS proof_blobs (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	digest TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL,
	data BLOB NOT NULL,
	added_at INTEGER NOT NULL
);`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS proof_blobs (
	seq BIGSERIAL PRIMARY KEY,
	digest TEXT NOT NULL UNIQUE,
	source TEXT NOT NULL,
	data BYTEA NOT NULL,
	added_at BIGINT NOT NULL
);`

// Record is one stored blob.
type Record struct {
	Digest  digest.Digest
	Source  string
	Data    []byte
	AddedAt time.Time
}

// Store is an append-only proof blob store. Blobs are never updated or
// deleted; storing the same bytes twice is a no-op.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// New wraps an open database. Call Init before first use.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// Open connects to dsn and creates the schema. A postgres:// or
// postgresql:// URL selects PostgreSQL; anything else is a SQLite path.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dialect, driver := SQLite, "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect, driver = Postgres, "postgres"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", dialect, err)
	}
	if dialect == SQLite {
		// one connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}
	s := New(db, dialect)
	if err := s.Init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the schema if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == Postgres {
		schema = postgresSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create proof_blobs: %w", err)
	}
	return nil
}

// DB exposes the underlying database for collaborators sharing it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites $N placeholders for SQLite.
func (s *Store) rebind(query string) string {
	if s.dialect == Postgres {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Put stores data under its digest. added is false when the blob was already
// present.
func (s *Store) Put(ctx context.Context, source string, data []byte) (d digest.Digest, added bool, err error) {
	d = digest.File(data)
	query := s.rebind(`INSERT INTO proof_blobs (digest, source, data, added_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (digest) DO NOTHING`)
	res, err := s.db.ExecContext(ctx, query, d.Hex(), source, data, s.now().UnixNano())
	if err != nil {
		return d, false, fmt.Errorf("failed to insert proof blob: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return d, false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return d, n > 0, nil
}

// Get returns the blob stored under d.
func (s *Store) Get(ctx context.Context, d digest.Digest) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT digest, source, data, added_at FROM proof_blobs WHERE digest = $1`), d.Hex())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, d)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get proof blob: %w", err)
	}
	return rec, nil
}

// List returns every blob in insertion order.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT digest, source, data, added_at FROM proof_blobs ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list proof blobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proof blob: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Blobs returns every stored blob ready for index.Build.
func (s *Store) Blobs(ctx context.Context) ([]index.Blob, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	blobs := make([]index.Blob, len(records))
	for i, r := range records {
		blobs[i] = index.Blob{Source: r.Source, Data: r.Data}
	}
	return blobs, nil
}

// Count returns the number of stored blobs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM proof_blobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count proof blobs: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		hexDigest string
		rec       Record
		addedAt   int64
	)
	if err := row.Scan(&hexDigest, &rec.Source, &rec.Data, &addedAt); err != nil {
		return nil, err
	}
	d, err := digest.ParseHex(hexDigest)
	if err != nil {
		return nil, err
	}
	if digest.File(rec.Data) != d {
		return nil, fmt.Errorf("stored blob %s does not match its digest", hexDigest)
	}
	rec.Digest = d
	rec.AddedAt = time.Unix(0, addedAt).UTC()
	return &rec, nil
}
