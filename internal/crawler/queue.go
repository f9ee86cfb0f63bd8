package crawler

import (
	"context"
	"sync"
)

// queue is the in-memory request queue of one crawl. It de-duplicates by
// unique key and admits at most limit requests in total.
type queue struct {
	mu       sync.Mutex
	pending  []Request
	seen     map[string]struct{}
	admitted int
	limit    int
	inflight int
	dropped  int

	wake chan struct{}
}

func newQueue(limit int) *queue {
	return &queue{
		seen:  make(map[string]struct{}),
		limit: limit,
		wake:  make(chan struct{}, 1),
	}
}

// add enqueues r. It reports false for a duplicate or when the crawl already
// admitted its request limit.
func (q *queue) add(r Request) bool {
	key := r.uniqueKey()

	q.mu.Lock()
	if _, dup := q.seen[key]; dup {
		q.mu.Unlock()
		return false
	}
	if q.limit > 0 && q.admitted >= q.limit {
		q.dropped++
		q.mu.Unlock()
		return false
	}
	q.seen[key] = struct{}{}
	q.admitted++
	q.pending = append(q.pending, r)
	q.mu.Unlock()

	q.signal()
	return true
}

// next blocks until a request is available. It returns false once nothing is
// pending and nothing is in flight, or when ctx is done.
func (q *queue) next(ctx context.Context) (Request, bool) {
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			r := q.pending[0]
			q.pending = q.pending[1:]
			q.inflight++
			q.mu.Unlock()
			return r, true
		}
		if q.inflight == 0 {
			q.mu.Unlock()
			return Request{}, false
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Request{}, false
		case <-q.wake:
		}
	}
}

// done marks an in-flight request finished.
func (q *queue) done() {
	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()
	q.signal()
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue) counts() (admitted, dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.admitted, q.dropped
}
