// Package docstore defines the document database contract the schedule and
// habit stores are written against, plus the pieces shared by its backends.
//
// Documents are addressed by slash-separated paths with an even number of
// segments ("users/u1/daySchedules/2026-01-05"); the path minus its last
// segment is the document's collection. Payloads are JSON objects.
package docstore

import (
	"context"
	"encoding/json"

	apperrors "github.com/julianstephens/daystreak/internal/errors"
)

// Document is one stored JSON object and its path
type Document struct {
	Path string
	Data []byte
}

// ID returns the last path segment
func (d Document) ID() string {
	return ID(d.Path)
}

// Decode unmarshals the payload into v, wrapping failures as decode errors
func (d Document) Decode(v interface{}) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return apperrors.Decode(d.Path, err)
	}
	return nil
}

// Query selects the documents of one collection whose top-level Field equals Value
type Query struct {
	Collection string
	Field      string
	Value      string
}

// Snapshot is one emission of a subscription. A document watch carries zero
// documents when the document does not exist; a query watch carries the full
// matching set.
type Snapshot struct {
	Docs []Document
	Err  error
}

// Exists reports whether a document watch found its document
func (s Snapshot) Exists() bool {
	return len(s.Docs) > 0
}

// Subscription is a live, cancellable stream of snapshots. The first snapshot
// reflects the state at subscribe time. Updates is closed after Close.
type Subscription interface {
	Updates() <-chan Snapshot
	Close() error
}

// Store is the document database contract.
//
// Set overwrites the whole document. Create fails with ErrAlreadyExists if
// the document is present. Merge overwrites only the given top-level fields,
// creating the document if needed. Increment atomically adds delta to a
// numeric field, treating a missing document or field as zero.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Set(ctx context.Context, path string, data []byte) error
	Create(ctx context.Context, path string, data []byte) error
	Merge(ctx context.Context, path string, fields map[string]interface{}) error
	Delete(ctx context.Context, path string) error
	Increment(ctx context.Context, path, field string, delta int64) error
	Watch(ctx context.Context, path string) (Subscription, error)
	WatchQuery(ctx context.Context, q Query) (Subscription, error)
	Close() error
}

// Encode marshals v into a document payload
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
