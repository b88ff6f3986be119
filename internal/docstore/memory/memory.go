// Package memory is an in-process docstore backend. It backs tests and the
// "memory" DSN, and supports fault injection so callers can exercise their
// write-failure paths.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
)

// FaultFunc is consulted before every operation; a non-nil return fails it.
// op is one of get, query, set, create, merge, delete, increment, watch.
type FaultFunc func(op, path string) error

type Store struct {
	mu     sync.RWMutex
	docs   map[string][]byte
	fault  FaultFunc
	closed bool
	hub    *docstore.Hub
}

func New() *Store {
	s := &Store{docs: make(map[string][]byte)}
	s.hub = docstore.NewHub(s)
	return s
}

// SetFault installs (or with nil, clears) a fault hook
func (s *Store) SetFault(fn FaultFunc) {
	s.mu.Lock()
	s.fault = fn
	s.mu.Unlock()
}

func (s *Store) check(op, path string) error {
	s.mu.RLock()
	fn, closed := s.fault, s.closed
	s.mu.RUnlock()
	if closed {
		return docstore.ErrClosed
	}
	if fn != nil {
		return fn(op, path)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	if err := s.check("get", path); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[path]
	if !ok {
		return docstore.Document{}, apperrors.NotFound(path)
	}
	return docstore.Document{Path: path, Data: append([]byte(nil), data...)}, nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := s.check("query", q.Collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := q.Collection + "/"
	var out []docstore.Document
	for path, data := range s.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		doc := docstore.Document{Path: path, Data: append([]byte(nil), data...)}
		if docstore.Matches(doc, q) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) Set(ctx context.Context, path string, data []byte) error {
	return s.write("set", path, func(_ []byte, _ bool) ([]byte, error) {
		return data, nil
	})
}

func (s *Store) Create(ctx context.Context, path string, data []byte) error {
	return s.write("create", path, func(_ []byte, exists bool) ([]byte, error) {
		if exists {
			return nil, apperrors.ErrAlreadyExists
		}
		return data, nil
	})
}

func (s *Store) Merge(ctx context.Context, path string, fields map[string]interface{}) error {
	return s.write("merge", path, func(cur []byte, _ bool) ([]byte, error) {
		return docstore.MergeFields(cur, fields)
	})
}

func (s *Store) Increment(ctx context.Context, path, field string, delta int64) error {
	if err := docstore.ValidateField(field); err != nil {
		return err
	}
	return s.write("increment", path, func(cur []byte, _ bool) ([]byte, error) {
		return docstore.IncrementField(cur, field, delta)
	})
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := s.check("delete", path); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.docs, path)
	s.mu.Unlock()
	s.hub.Notify(path)
	return nil
}

func (s *Store) write(op, path string, apply func(cur []byte, exists bool) ([]byte, error)) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}
	if err := s.check(op, path); err != nil {
		return err
	}
	s.mu.Lock()
	cur, exists := s.docs[path]
	next, err := apply(cur, exists)
	if err != nil {
		s.mu.Unlock()
		if apperrors.Is(err, apperrors.ErrAlreadyExists) {
			return err
		}
		return apperrors.StoreWrite(op, path, err)
	}
	s.docs[path] = append([]byte(nil), next...)
	s.mu.Unlock()
	s.hub.Notify(path)
	return nil
}

func (s *Store) Watch(ctx context.Context, path string) (docstore.Subscription, error) {
	if err := s.check("watch", path); err != nil {
		return nil, err
	}
	return s.hub.Watch(ctx, path)
}

func (s *Store) WatchQuery(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	if err := s.check("watch", q.Collection); err != nil {
		return nil, err
	}
	return s.hub.WatchQuery(ctx, q)
}

// Len reports the number of stored documents
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}

var _ docstore.Store = (*Store)(nil)
