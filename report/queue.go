package report

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultQueueSize is used by NewQueue for a non-positive size.
const DefaultQueueSize = 1024

// HandlerFunc stores or forwards one entry.
type HandlerFunc func(ctx context.Context, e *Entry) error

// Queue is a Sink that buffers entries in memory and hands them to a
// handler on its own goroutine. When the buffer is full, entries are
// dropped rather than blocking the caller.
type Queue struct {
	entries chan *Entry
	handle  HandlerFunc
	logger  *zap.Logger

	submitted atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Sink = (*Queue)(nil)

// NewQueue returns a queue buffering up to size entries for handle. Call Run
// to start delivering.
func NewQueue(size int, handle HandlerFunc, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		entries: make(chan *Entry, size),
		handle:  handle,
		logger:  logger.Named("report"),
		done:    make(chan struct{}),
	}
}

// Submit queues e without blocking.
func (q *Queue) Submit(e *Entry) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.entries <- e:
		q.submitted.Add(1)
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Run delivers entries until Close is called and the buffer is drained, or
// until ctx is cancelled. It returns when delivery stops.
func (q *Queue) Run(ctx context.Context) {
	defer close(q.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.entries:
			if !ok {
				return
			}
			if err := q.handle(ctx, e); err != nil {
				q.failed.Add(1)
				q.logger.Warn("report entry not delivered",
					zap.String("id", e.ID),
					zap.Stringer("kind", e.Kind),
					zap.String("domain", e.RecordDomain),
					zap.Error(err))
			}
		}
	}
}

// Close stops accepting entries and waits for Run to deliver the buffered
// ones, or for ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.entries)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueStats are the queue's counters.
type QueueStats struct {
	Submitted uint64
	Dropped   uint64
	Failed    uint64
	Pending   int
}

// Stats returns the current counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Submitted: q.submitted.Load(),
		Dropped:   q.dropped.Load(),
		Failed:    q.failed.Load(),
		Pending:   len(q.entries),
	}
}
