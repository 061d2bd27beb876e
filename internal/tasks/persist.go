package tasks

import (
	"context"
	"log"
	"sync"
	"time"
)

// PersistHook observes every store call made on behalf of the Manager.
// op is "save" or "load".
type PersistHook func(op string, err error, elapsed time.Duration)

// saveQueue is the single writer between the Manager and its Store. Pending
// snapshots are coalesced so only the newest version is written; saves never
// overlap, so a later mutation always wins.
type saveQueue struct {
	store   Store
	timeout time.Duration
	logger  *log.Logger
	hook    PersistHook

	mu      sync.Mutex
	pending *Snapshot
	busy    bool
	closed  bool
	waiters []chan struct{}
	written uint64

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newSaveQueue(store Store, timeout time.Duration, logger *log.Logger, hook PersistHook) *saveQueue {
	q := &saveQueue{
		store:   store,
		timeout: timeout,
		logger:  logger,
		hook:    hook,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *saveQueue) enqueue(snapshot Snapshot) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if q.pending == nil || snapshot.Version > q.pending.Version {
		s := snapshot
		q.pending = &s
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *saveQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.wake:
			q.drain()
		case <-q.stop:
			q.drain()
			return
		}
	}
}

func (q *saveQueue) drain() {
	for {
		q.mu.Lock()
		next := q.pending
		q.pending = nil
		if next == nil {
			q.busy = false
			for _, ch := range q.waiters {
				close(ch)
			}
			q.waiters = nil
			q.mu.Unlock()
			return
		}
		q.busy = true
		q.mu.Unlock()

		q.write(*next)
	}
}

func (q *saveQueue) write(snapshot Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	started := time.Now()
	var err error
	if vs, ok := q.store.(versionedStore); ok {
		err = vs.SaveVersion(ctx, snapshot.Version, snapshot.Tasks)
	} else {
		err = q.store.Save(ctx, snapshot.Tasks)
	}
	if q.hook != nil {
		q.hook("save", err, time.Since(started))
	}
	if err != nil {
		q.logger.Printf("tasks: save version %d to %s store failed: %v", snapshot.Version, q.store.Name(), err)
		return
	}

	q.mu.Lock()
	if snapshot.Version > q.written {
		q.written = snapshot.Version
	}
	q.mu.Unlock()
}

// flush blocks until every snapshot enqueued so far has been handed to the store.
func (q *saveQueue) flush(ctx context.Context) error {
	q.mu.Lock()
	if q.pending == nil && !q.busy {
		q.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close writes whatever is pending and stops the writer goroutine.
func (q *saveQueue) close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *saveQueue) lastWritten() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.written
}
