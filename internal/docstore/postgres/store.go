// Package postgres is the shared docstore backend. Documents live in a JSONB
// table; every write raises a NOTIFY so subscribers in other processes see it.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/logger"
	"github.com/julianstephens/daystreak/internal/migration"
	"github.com/julianstephens/daystreak/migrations"
)

// NotifyChannel carries the path of every changed document
const NotifyChannel = "daystreak_documents"

var (
	ErrInvalidConnectionString = errors.New("invalid PostgreSQL connection string")
	ErrEmbeddedCredentials     = errors.New("connection string must not contain a password")
)

type Store struct {
	db       *sql.DB
	listener *pq.Listener
	hub      *docstore.Hub
	done     chan struct{}
}

// Open connects, migrates the schema and starts listening for change
// notifications.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	subFS, err := fs.Sub(migrations.FS, "postgres")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to access postgres migrations: %w", err)
	}
	runner := migration.NewRunner(db, subFS, migration.Postgres)
	if _, err := runner.Apply(func(msg string) { logger.Info(msg, "db", "postgresql") }); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{db: db, done: make(chan struct{})}
	s.hub = docstore.NewHub(s)

	s.listener = pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("postgres listener event", "event", ev, "error", err)
		}
	})
	if err := s.listener.Listen(NotifyChannel); err != nil {
		s.listener.Close()
		db.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}
	go s.listen()
	return s, nil
}

func (s *Store) listen() {
	for {
		select {
		case <-s.done:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect: notifications may have been missed
			if n == nil {
				s.hub.NotifyAll()
				continue
			}
			s.hub.Notify(n.Extra)
		case <-time.After(90 * time.Second):
			go func() { _ = s.listener.Ping() }()
		}
	}
}

// ValidateConnString checks that connStr is a PostgreSQL URI or DSN with no
// embedded password. Credentials belong in the keyring or PGPASSFILE.
func ValidateConnString(connStr string) error {
	if strings.TrimSpace(connStr) == "" {
		return fmt.Errorf("%w: connection string cannot be empty", ErrInvalidConnectionString)
	}
	if _, err := pq.NewConnector(connStr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
	}
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
		}
		if _, set := u.User.Password(); set {
			return ErrEmbeddedCredentials
		}
		if u.Host == "" && u.User == nil && (u.Path == "" || u.Path == "/") {
			return fmt.Errorf("%w: connection URL is incomplete", ErrInvalidConnectionString)
		}
		return nil
	}
	for _, pair := range strings.Fields(connStr) {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 && strings.EqualFold(strings.TrimSpace(kv[0]), "password") {
			return ErrEmbeddedCredentials
		}
	}
	return nil
}

// IsConnString reports whether dsn selects this backend
func IsConnString(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") ||
		strings.Contains(dsn, "dbname=")
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM documents WHERE path = $1`, path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, apperrors.NotFound(path)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return docstore.Document{Path: path, Data: data}, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if q.Field == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT path, data FROM documents WHERE collection = $1 ORDER BY path`, q.Collection)
	} else {
		if err := docstore.ValidateField(q.Field); err != nil {
			return nil, err
		}
		rows, err = s.db.QueryContext(ctx,
			`SELECT path, data FROM documents WHERE collection = $1 AND data->>$2 = $3 ORDER BY path`,
			q.Collection, q.Field, q.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var d docstore.Document
		if err := rows.Scan(&d.Path, &d.Data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// write runs a statement and its NOTIFY in one transaction
func (s *Store) write(ctx context.Context, op, path, query string, args ...interface{}) (int64, error) {
	if err := docstore.ValidatePath(path); err != nil {
		return 0, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.StoreWrite(op, path, err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		_ = tx.Rollback()
		return 0, apperrors.StoreWrite(op, path, err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, path); err != nil {
			_ = tx.Rollback()
			return 0, apperrors.StoreWrite(op, path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.StoreWrite(op, path, err)
	}
	s.hub.Notify(path)
	return n, nil
}

func (s *Store) Set(ctx context.Context, path string, data []byte) error {
	_, err := s.write(ctx, "set", path,
		`INSERT INTO documents (path, collection, data, updated_at) VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		path, docstore.Collection(path), string(data))
	return err
}

func (s *Store) Create(ctx context.Context, path string, data []byte) error {
	n, err := s.write(ctx, "create", path,
		`INSERT INTO documents (path, collection, data, updated_at) VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (path) DO NOTHING`,
		path, docstore.Collection(path), string(data))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrAlreadyExists, path)
	}
	return nil
}

func (s *Store) Merge(ctx context.Context, path string, fields map[string]interface{}) error {
	patch, err := docstore.Encode(fields)
	if err != nil {
		return apperrors.StoreWrite("merge", path, err)
	}
	_, err = s.write(ctx, "merge", path,
		`INSERT INTO documents (path, collection, data, updated_at) VALUES ($1, $2, $3::jsonb, now())
		 ON CONFLICT (path) DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = now()`,
		path, docstore.Collection(path), string(patch))
	return err
}

func (s *Store) Increment(ctx context.Context, path, field string, delta int64) error {
	if err := docstore.ValidateField(field); err != nil {
		return err
	}
	_, err := s.write(ctx, "increment", path,
		`INSERT INTO documents (path, collection, data, updated_at)
		 VALUES ($1, $2, jsonb_build_object($3::text, $4::bigint), now())
		 ON CONFLICT (path) DO UPDATE SET
		   data = jsonb_set(documents.data, ARRAY[$3::text],
		     to_jsonb(COALESCE((documents.data->>$3::text)::numeric, 0) + $4::bigint)),
		   updated_at = now()`,
		path, docstore.Collection(path), field, delta)
	return err
}

func (s *Store) Delete(ctx context.Context, path string) error {
	_, err := s.write(ctx, "delete", path, `DELETE FROM documents WHERE path = $1`, path)
	return err
}

func (s *Store) Watch(ctx context.Context, path string) (docstore.Subscription, error) {
	return s.hub.Watch(ctx, path)
}

func (s *Store) WatchQuery(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	return s.hub.WatchQuery(ctx, q)
}

func (s *Store) Close() error {
	close(s.done)
	s.hub.Close()
	if err := s.listener.Close(); err != nil {
		logger.Warn("failed to close postgres listener", "error", err)
	}
	return s.db.Close()
}

var _ docstore.Store = (*Store)(nil)
