// Package scheduler runs vote expiry timers.
//
// TimeoutQueue is a delay queue keyed by absolute deadline. It keeps at most
// one pending timer per (session, vote kind) slot: scheduling an earlier
// deadline supersedes the pending one, scheduling a later one is dropped
// because the handler re-reads the live deadline when the earlier timer
// fires and requeues itself.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/yaap/hardware-google-pixel/internal/domain"
	"github.com/yaap/hardware-google-pixel/internal/infra/logging"
)

// Event identifies a vote slot whose deadline has been reached.
type Event struct {
	SessionID int64
	Kind      domain.VoteKind
	// ScheduledAt is when the timer was requested.
	ScheduledAt time.Time
	Deadline    time.Time
}

// Handler is called for every due event, outside the queue lock.
type Handler func(Event)

type slot struct {
	session int64
	kind    domain.VoteKind
}

type entry struct {
	ev Event
}

// Compare orders entries by deadline, earliest first.
func (e entry) Compare(other queue.Item) int {
	o := other.(entry)
	switch {
	case e.ev.Deadline.Before(o.ev.Deadline):
		return -1
	case e.ev.Deadline.After(o.ev.Deadline):
		return 1
	default:
		return 0
	}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Pending    int    `json:"pending"`
	Queued     int    `json:"queued"`
	Scheduled  uint64 `json:"scheduled"`
	Superseded uint64 `json:"superseded"`
	Fired      uint64 `json:"fired"`
}

// TimeoutQueue delivers events to a handler once their deadline passes.
type TimeoutQueue struct {
	clock   clock.Clock
	log     logr.Logger
	handler Handler

	mu      sync.Mutex
	pq      *queue.PriorityQueue
	pending map[slot]time.Time
	wake    chan struct{}

	scheduled  atomic.Uint64
	superseded atomic.Uint64
	fired      atomic.Uint64
}

// NewTimeoutQueue creates a queue that calls handler for due events. Use
// SetHandler when the handler needs the queue itself.
func NewTimeoutQueue(clk clock.Clock, log logr.Logger, handler Handler) *TimeoutQueue {
	return &TimeoutQueue{
		clock:   clk,
		log:     log.WithName("timeout-queue"),
		handler: handler,
		pq:      queue.NewPriorityQueue(64, true),
		pending: make(map[slot]time.Time),
		wake:    make(chan struct{}, 1),
	}
}

// SetHandler replaces the event handler. Call before Run.
func (q *TimeoutQueue) SetHandler(h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
}

// Schedule arms a timer for ev.Deadline. It returns false when the slot
// already has a pending timer at or before that deadline.
func (q *TimeoutQueue) Schedule(ev Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := slot{ev.SessionID, ev.Kind}
	if cur, ok := q.pending[s]; ok {
		if !ev.Deadline.Before(cur) {
			return false
		}
		q.superseded.Add(1)
	}
	q.pending[s] = ev.Deadline
	if err := q.pq.Put(entry{ev: ev}); err != nil {
		// Only fails once disposed.
		delete(q.pending, s)
		return false
	}
	q.scheduled.Add(1)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Pending reports the deadline a slot is armed for.
func (q *TimeoutQueue) Pending(sessionID int64, kind domain.VoteKind) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.pending[slot{sessionID, kind}]
	return d, ok
}

// Len returns the number of armed slots.
func (q *TimeoutQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns queue counters.
func (q *TimeoutQueue) Stats() Stats {
	q.mu.Lock()
	pending, queued := len(q.pending), q.pq.Len()
	q.mu.Unlock()
	return Stats{
		Pending:    pending,
		Queued:     queued,
		Scheduled:  q.scheduled.Load(),
		Superseded: q.superseded.Load(),
		Fired:      q.fired.Load(),
	}
}

// FireDue delivers every event whose deadline is at or before now and
// returns how many were delivered. Superseded entries are dropped silently.
func (q *TimeoutQueue) FireDue() int {
	now := q.clock.Now()
	var due []Event

	q.mu.Lock()
	handler := q.handler
	for q.pq.Len() > 0 {
		head, ok := q.pq.Peek().(entry)
		if !ok || head.ev.Deadline.After(now) {
			break
		}
		if _, err := q.pq.Get(1); err != nil {
			break
		}
		s := slot{head.ev.SessionID, head.ev.Kind}
		if d, ok := q.pending[s]; !ok || !d.Equal(head.ev.Deadline) {
			continue
		}
		delete(q.pending, s)
		due = append(due, head.ev)
	}
	q.mu.Unlock()

	for _, ev := range due {
		q.fired.Add(1)
		if handler != nil {
			handler(ev)
		}
	}
	return len(due)
}

// next returns the wait until the earliest queued deadline.
func (q *TimeoutQueue) next() (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	head, ok := q.pq.Peek().(entry)
	if !ok {
		return 0, false
	}
	return head.ev.Deadline.Sub(q.clock.Now()), true
}

// Overdue returns how long the earliest queued deadline has been due. Zero
// when nothing is due. A growing value means the worker is stuck.
func (q *TimeoutQueue) Overdue() time.Duration {
	wait, ok := q.next()
	if !ok || wait >= 0 {
		return 0
	}
	return -wait
}

// Run drains the queue until ctx is cancelled. Call in a goroutine.
func (q *TimeoutQueue) Run(ctx context.Context) {
	q.log.V(logging.VERBOSE).Info("timeout worker started")
	defer q.log.V(logging.VERBOSE).Info("timeout worker stopped")

	for {
		wait, ok := q.next()
		if ok && wait <= 0 {
			q.FireDue()
			continue
		}

		var timerC <-chan time.Time
		var timer clock.Timer
		if ok {
			timer = q.clock.NewTimer(wait)
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-q.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// Close releases the underlying queue. Pending events are dropped.
func (q *TimeoutQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pq.Dispose()
	q.pending = make(map[slot]time.Time)
}
