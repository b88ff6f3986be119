package docstore

import (
	"context"
	"sync"

	"github.com/julianstephens/daystreak/internal/logger"
)

// Fetcher is the read side a Hub uses to rebuild snapshots
type Fetcher interface {
	Get(ctx context.Context, path string) (Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Hub fans change notifications out to in-process subscriptions. Backends
// without native change streams call Notify after every write; each affected
// subscription re-reads its target and receives the fresh snapshot.
type Hub struct {
	fetch Fetcher

	mu     sync.Mutex
	subs   map[*hubSub]struct{}
	closed bool

	// serializes refreshes so the last delivered snapshot is never older
	// than the last write
	notifyMu sync.Mutex
}

type hubSub struct {
	feed  *Feed
	path  string
	query *Query
}

func NewHub(fetch Fetcher) *Hub {
	return &Hub{fetch: fetch, subs: make(map[*hubSub]struct{})}
}

// Watch subscribes to a single document
func (h *Hub) Watch(ctx context.Context, path string) (Subscription, error) {
	if err := ValidatePath(path); err != nil {
		return nil, err
	}
	return h.add(ctx, &hubSub{path: path})
}

// WatchQuery subscribes to a query's result set
func (h *Hub) WatchQuery(ctx context.Context, q Query) (Subscription, error) {
	if q.Field != "" {
		if err := ValidateField(q.Field); err != nil {
			return nil, err
		}
	}
	return h.add(ctx, &hubSub{query: &q})
}

func (h *Hub) add(ctx context.Context, sub *hubSub) (Subscription, error) {
	sub.feed = NewFeed(func() { h.remove(sub) })

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	h.notifyMu.Lock()
	h.refresh(ctx, sub)
	h.notifyMu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.feed.Close()
		case <-sub.feed.Done():
		}
	}()
	return sub.feed, nil
}

func (h *Hub) remove(sub *hubSub) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// Notify refreshes every subscription affected by a write to path
func (h *Hub) Notify(path string) {
	collection := Collection(path)
	h.notifyMatching(func(s *hubSub) bool {
		if s.query != nil {
			return s.query.Collection == collection
		}
		return s.path == path
	})
}

// NotifyAll refreshes every subscription, used after a change feed reconnects
func (h *Hub) NotifyAll() {
	h.notifyMatching(func(*hubSub) bool { return true })
}

func (h *Hub) notifyMatching(match func(*hubSub) bool) {
	h.mu.Lock()
	targets := make([]*hubSub, 0, len(h.subs))
	for s := range h.subs {
		if match(s) {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()
	for _, s := range targets {
		h.refresh(context.Background(), s)
	}
}

func (h *Hub) refresh(ctx context.Context, sub *hubSub) {
	var snap Snapshot
	if sub.query != nil {
		docs, err := h.fetch.Query(ctx, *sub.query)
		snap = Snapshot{Docs: docs, Err: err}
	} else {
		doc, err := h.fetch.Get(ctx, sub.path)
		switch {
		case err == nil:
			snap = Snapshot{Docs: []Document{doc}}
		case isNotFound(err):
			snap = Snapshot{}
		default:
			snap = Snapshot{Err: err}
		}
	}
	if snap.Err != nil {
		logger.Warn("subscription refresh failed", "path", sub.path, "error", snap.Err)
	}
	sub.feed.Send(snap)
}

// Close ends every open subscription
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*hubSub, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()
	for _, s := range subs {
		_ = s.feed.Close()
	}
}
