package docstore

import "sync"

// Feed is a Subscription whose channel holds only the newest undelivered
// snapshot. Sends never block; a slow reader skips intermediate states.
type Feed struct {
	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
	done   chan struct{}
	onStop func()
}

// NewFeed returns an open feed. onStop, if set, runs once on Close.
func NewFeed(onStop func()) *Feed {
	return &Feed{
		ch:     make(chan Snapshot, 1),
		done:   make(chan struct{}),
		onStop: onStop,
	}
}

// Send replaces any pending snapshot with snap. It is a no-op after Close.
func (f *Feed) Send(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for {
		select {
		case f.ch <- snap:
			return
		default:
			select {
			case <-f.ch:
			default:
			}
		}
	}
}

func (f *Feed) Updates() <-chan Snapshot {
	return f.ch
}

// Done is closed when the feed is closed
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.ch)
	close(f.done)
	stop := f.onStop
	f.mu.Unlock()
	if stop != nil {
		stop()
	}
	return nil
}
