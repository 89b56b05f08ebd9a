package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteStore keeps blobs inside a SQLite database. Its public URLs point at the
// server's own upload route, which reads them back through Open.
type SQLiteStore struct {
	db           *sqlx.DB
	bucket       string
	publicPrefix string
}

// NewSQLiteStore opens the SQLite database at the given file path and ensures the
// blob table exists.
func NewSQLiteStore(filePath, bucket, publicPrefix string) (*SQLiteStore, error) {
	db, err := sqlx.Connect("sqlite", filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite blob store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode on sqlite blob store: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		bucket       TEXT    NOT NULL,
		name         TEXT    NOT NULL,
		content_type TEXT    NOT NULL,
		size         INTEGER NOT NULL,
		data         BLOB    NOT NULL,
		created_at   INTEGER NOT NULL,
		PRIMARY KEY (bucket, name)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create blob schema: %w", err)
	}

	return &SQLiteStore{
		db:           db,
		bucket:       bucket,
		publicPrefix: strings.TrimSuffix(publicPrefix, "/"),
	}, nil
}

// Upload stores a blob. A plain INSERT makes the primary key reject overwrites.
func (s *SQLiteStore) Upload(ctx context.Context, name string, body io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	if size > 0 {
		buf.Grow(int(size))
	}
	if _, err := io.Copy(&buf, body); err != nil {
		return fmt.Errorf("failed to read blob %s: %w", name, err)
	}

	query := `INSERT INTO blobs (bucket, name, content_type, size, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, s.bucket, name, contentType, buf.Len(), buf.Bytes(), time.Now().Unix())
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return fmt.Errorf("blob %s: %w", name, ErrObjectExists)
		}
		return fmt.Errorf("failed to store blob %s: %w", name, err)
	}
	return nil
}

// PublicURL returns the path under which the server exposes the blob.
func (s *SQLiteStore) PublicURL(name string) string {
	return s.publicPrefix + "/" + url.PathEscape(name)
}

// Open reads a blob back for serving.
func (s *SQLiteStore) Open(ctx context.Context, name string) (*Object, error) {
	var item struct {
		ContentType string `db:"content_type"`
		Size        int64  `db:"size"`
		Data        []byte `db:"data"`
	}
	query := `SELECT content_type, size, data FROM blobs WHERE bucket = ? AND name = ?`
	if err := s.db.GetContext(ctx, &item, query, s.bucket, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blob %s: %w", name, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", name, err)
	}
	return &Object{
		ReadCloser:  io.NopCloser(bytes.NewReader(item.Data)),
		ContentType: item.ContentType,
		Size:        item.Size,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
