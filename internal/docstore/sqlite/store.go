// Package sqlite is the local docstore backend: one JSON document per row in
// a modernc.org/sqlite database. Subscriptions are served in-process.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/logger"
	"github.com/julianstephens/daystreak/internal/migration"
	"github.com/julianstephens/daystreak/migrations"
)

type Store struct {
	path string
	db   *sql.DB
	hub  *docstore.Hub
}

// Open creates the database directory if needed, opens the file and brings
// the schema up to date.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Store{path: path, db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	s.hub = docstore.NewHub(s)
	return s, nil
}

func (s *Store) runMigrations() error {
	subFS, err := fs.Sub(migrations.FS, "sqlite")
	if err != nil {
		return fmt.Errorf("failed to access sqlite migrations: %w", err)
	}
	runner := migration.NewRunner(s.db, subFS, migration.SQLite)
	_, err = runner.Apply(func(msg string) {
		logger.Info(msg, "db", s.path)
	})
	return err
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// DB exposes the handle for maintenance tasks such as backups
func (s *Store) DB() *sql.DB {
	return s.db
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = ?`, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, apperrors.NotFound(path)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return docstore.Document{Path: path, Data: []byte(data)}, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if q.Field == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT path, data FROM documents WHERE collection = ? ORDER BY path`, q.Collection)
	} else {
		if err := docstore.ValidateField(q.Field); err != nil {
			return nil, err
		}
		rows, err = s.db.QueryContext(ctx,
			`SELECT path, data FROM documents
			 WHERE collection = ? AND CAST(json_extract(data, ?) AS TEXT) = ?
			 ORDER BY path`,
			q.Collection, "$."+q.Field, q.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var path, data string
		if err := rows.Scan(&path, &data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, docstore.Document{Path: path, Data: []byte(data)})
	}
	return docs, rows.Err()
}

func (s *Store) exec(ctx context.Context, op, path, query string, args ...interface{}) (sql.Result, error) {
	if err := docstore.ValidatePath(path); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.StoreWrite(op, path, err)
	}
	return res, nil
}

func (s *Store) Set(ctx context.Context, path string, data []byte) error {
	_, err := s.exec(ctx, "set", path,
		`INSERT INTO documents (path, collection, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		path, docstore.Collection(path), string(data), now())
	if err != nil {
		return err
	}
	s.hub.Notify(path)
	return nil
}

func (s *Store) Create(ctx context.Context, path string, data []byte) error {
	res, err := s.exec(ctx, "create", path,
		`INSERT INTO documents (path, collection, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO NOTHING`,
		path, docstore.Collection(path), string(data), now())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrAlreadyExists, path)
	}
	s.hub.Notify(path)
	return nil
}

func (s *Store) Merge(ctx context.Context, path string, fields map[string]interface{}) error {
	patch, err := docstore.Encode(fields)
	if err != nil {
		return apperrors.StoreWrite("merge", path, err)
	}
	// json_patch keeps untouched top-level fields
	_, err = s.exec(ctx, "merge", path,
		`INSERT INTO documents (path, collection, data, updated_at) VALUES (?, ?, json(?), ?)
		 ON CONFLICT(path) DO UPDATE SET data = json_patch(documents.data, excluded.data), updated_at = excluded.updated_at`,
		path, docstore.Collection(path), string(patch), now())
	if err != nil {
		return err
	}
	s.hub.Notify(path)
	return nil
}

func (s *Store) Increment(ctx context.Context, path, field string, delta int64) error {
	if err := docstore.ValidateField(field); err != nil {
		return err
	}
	jsonPath := "$." + field
	_, err := s.exec(ctx, "increment", path,
		`INSERT INTO documents (path, collection, data, updated_at) VALUES (?, ?, json_object(?, ?), ?)
		 ON CONFLICT(path) DO UPDATE SET
		   data = json_set(documents.data, ?, COALESCE(json_extract(documents.data, ?), 0) + ?),
		   updated_at = excluded.updated_at`,
		path, docstore.Collection(path), field, delta, now(), jsonPath, jsonPath, delta)
	if err != nil {
		return err
	}
	s.hub.Notify(path)
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if _, err := s.exec(ctx, "delete", path, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return err
	}
	s.hub.Notify(path)
	return nil
}

func (s *Store) Watch(ctx context.Context, path string) (docstore.Subscription, error) {
	return s.hub.Watch(ctx, path)
}

func (s *Store) WatchQuery(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	return s.hub.WatchQuery(ctx, q)
}

func (s *Store) Close() error {
	if s.hub != nil {
		s.hub.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ docstore.Store = (*Store)(nil)
