// Package firestore is the hosted docstore backend on Cloud Firestore.
// Subscriptions use Firestore's native snapshot listeners.
package firestore

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/julianstephens/daystreak/internal/docstore"
	apperrors "github.com/julianstephens/daystreak/internal/errors"
	"github.com/julianstephens/daystreak/internal/logger"
)

type Store struct {
	client *firestore.Client
}

// Open connects to the project's default database. Credentials come from
// opts or the ambient Application Default Credentials.
func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

func (s *Store) doc(path string) (*firestore.DocumentRef, error) {
	if err := docstore.ValidatePath(path); err != nil {
		return nil, err
	}
	ref := s.client.Doc(path)
	if ref == nil {
		return nil, fmt.Errorf("invalid document path %q", path)
	}
	return ref, nil
}

func (s *Store) query(q docstore.Query) (firestore.Query, error) {
	coll := s.client.Collection(q.Collection)
	if coll == nil {
		return firestore.Query{}, fmt.Errorf("invalid collection path %q", q.Collection)
	}
	if q.Field == "" {
		return coll.Query, nil
	}
	if err := docstore.ValidateField(q.Field); err != nil {
		return firestore.Query{}, err
	}
	return coll.Where(q.Field, "==", q.Value), nil
}

func toDocument(path string, snap *firestore.DocumentSnapshot) (docstore.Document, error) {
	data, err := json.Marshal(snap.Data())
	if err != nil {
		return docstore.Document{}, apperrors.Decode(path, err)
	}
	return docstore.Document{Path: path, Data: data}, nil
}

func fromJSON(path string, data []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, apperrors.StoreWrite("encode", path, err)
	}
	return m, nil
}

func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	ref, err := s.doc(path)
	if err != nil {
		return docstore.Document{}, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return docstore.Document{}, apperrors.NotFound(path)
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("failed to get %s: %w", path, err)
	}
	return toDocument(path, snap)
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	fq, err := s.query(q)
	if err != nil {
		return nil, err
	}
	snaps, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	return s.collect(q.Collection, snaps)
}

func (s *Store) collect(collection string, snaps []*firestore.DocumentSnapshot) ([]docstore.Document, error) {
	docs := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		d, err := toDocument(docstore.Join(collection, snap.Ref.ID), snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (s *Store) Set(ctx context.Context, path string, data []byte) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	m, err := fromJSON(path, data)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, m); err != nil {
		return apperrors.StoreWrite("set", path, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, path string, data []byte) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	m, err := fromJSON(path, data)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, m)
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: %s", apperrors.ErrAlreadyExists, path)
	}
	if err != nil {
		return apperrors.StoreWrite("create", path, err)
	}
	return nil
}

func (s *Store) Merge(ctx context.Context, path string, fields map[string]interface{}) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, fields, firestore.MergeAll); err != nil {
		return apperrors.StoreWrite("merge", path, err)
	}
	return nil
}

func (s *Store) Increment(ctx context.Context, path, field string, delta int64) error {
	if err := docstore.ValidateField(field); err != nil {
		return err
	}
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	update := map[string]interface{}{field: firestore.Increment(delta)}
	if _, err := ref.Set(ctx, update, firestore.MergeAll); err != nil {
		return apperrors.StoreWrite("increment", path, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	ref, err := s.doc(path)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return apperrors.StoreWrite("delete", path, err)
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, path string) (docstore.Subscription, error) {
	ref, err := s.doc(path)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	feed := docstore.NewFeed(cancel)
	it := ref.Snapshots(ctx)
	go func() {
		defer it.Stop()
		defer feed.Close()
		for {
			snap, err := it.Next()
			if err != nil {
				if !stopped(ctx, err) {
					logger.Warn("firestore document listener failed", "path", path, "error", err)
					feed.Send(docstore.Snapshot{Err: err})
				}
				return
			}
			if !snap.Exists() {
				feed.Send(docstore.Snapshot{})
				continue
			}
			d, err := toDocument(path, snap)
			if err != nil {
				feed.Send(docstore.Snapshot{Err: err})
				continue
			}
			feed.Send(docstore.Snapshot{Docs: []docstore.Document{d}})
		}
	}()
	return feed, nil
}

func (s *Store) WatchQuery(ctx context.Context, q docstore.Query) (docstore.Subscription, error) {
	fq, err := s.query(q)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	feed := docstore.NewFeed(cancel)
	it := fq.Snapshots(ctx)
	go func() {
		defer it.Stop()
		defer feed.Close()
		for {
			qs, err := it.Next()
			if err != nil {
				if !stopped(ctx, err) {
					logger.Warn("firestore query listener failed", "collection", q.Collection, "error", err)
					feed.Send(docstore.Snapshot{Err: err})
				}
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				feed.Send(docstore.Snapshot{Err: err})
				continue
			}
			docs, err := s.collect(q.Collection, snaps)
			feed.Send(docstore.Snapshot{Docs: docs, Err: err})
		}
	}()
	return feed, nil
}

func stopped(ctx context.Context, err error) bool {
	return ctx.Err() != nil || err == iterator.Done || status.Code(err) == codes.Canceled
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ docstore.Store = (*Store)(nil)
