package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/yaap/hardware-google-pixel/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) got() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newQueue(t *testing.T) (*TimeoutQueue, *testingclock.FakeClock, *recorder) {
	t.Helper()
	clk := testingclock.NewFakeClock(time.Unix(100, 0))
	rec := &recorder{}
	q := NewTimeoutQueue(clk, logr.Discard(), rec.handle)
	t.Cleanup(q.Close)
	return q, clk, rec
}

func ev(clk *testingclock.FakeClock, session int64, kind domain.VoteKind, in time.Duration) Event {
	now := clk.Now()
	return Event{SessionID: session, Kind: kind, ScheduledAt: now, Deadline: now.Add(in)}
}

// ─── Scheduling ─────────────────────────────────────────────────────────────

func TestTimeoutQueue_FiresAtDeadline(t *testing.T) {
	q, clk, rec := newQueue(t)
	require.True(t, q.Schedule(ev(clk, 1, domain.VoteCPULoadUp, 50*time.Millisecond)))

	clk.Step(49 * time.Millisecond)
	assert.Equal(t, 0, q.FireDue())

	clk.Step(time.Millisecond)
	assert.Equal(t, 1, q.FireDue())
	got := rec.got()
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].SessionID)
	assert.Equal(t, domain.VoteCPULoadUp, got[0].Kind)
	assert.Equal(t, 0, q.Len())
}

func TestTimeoutQueue_OnePendingPerSlot(t *testing.T) {
	q, clk, rec := newQueue(t)

	require.True(t, q.Schedule(ev(clk, 1, domain.VoteCPUDefault, 100*time.Millisecond)))
	for i := 0; i < 100; i++ {
		// Later deadlines are dropped.
		assert.False(t, q.Schedule(ev(clk, 1, domain.VoteCPUDefault, time.Duration(101+i)*time.Millisecond)))
		assert.Equal(t, 1, q.Len())
	}

	// An earlier deadline supersedes the armed one.
	require.True(t, q.Schedule(ev(clk, 1, domain.VoteCPUDefault, 20*time.Millisecond)))
	assert.Equal(t, 1, q.Len())
	d, ok := q.Pending(1, domain.VoteCPUDefault)
	require.True(t, ok)
	assert.Equal(t, clk.Now().Add(20*time.Millisecond), d)

	// Another slot of the same session is independent.
	require.True(t, q.Schedule(ev(clk, 1, domain.VoteCPULoadUp, 20*time.Millisecond)))
	assert.Equal(t, 2, q.Len())

	clk.Step(time.Second)
	assert.Equal(t, 2, q.FireDue(), "superseded entry must not fire")
	assert.Len(t, rec.got(), 2)
	assert.Equal(t, uint64(1), q.Stats().Superseded)
}

func TestTimeoutQueue_HandlerCanRequeue(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(100, 0))
	q := NewTimeoutQueue(clk, logr.Discard(), nil)
	defer q.Close()

	liveDeadline := clk.Now().Add(30 * time.Millisecond)
	var fired int
	q.SetHandler(func(e Event) {
		fired++
		if clk.Now().Before(liveDeadline) {
			e.Deadline = liveDeadline
			q.Schedule(e)
		}
	})

	q.Schedule(Event{SessionID: 3, Kind: domain.VoteGPUCapacity, Deadline: clk.Now().Add(10 * time.Millisecond)})
	clk.Step(10 * time.Millisecond)
	q.FireDue()
	assert.Equal(t, 1, fired)
	assert.Equal(t, 1, q.Len(), "handler should have requeued")

	clk.Step(20 * time.Millisecond)
	q.FireDue()
	assert.Equal(t, 2, fired)
	assert.Equal(t, 0, q.Len())
}

func TestTimeoutQueue_OrdersByDeadline(t *testing.T) {
	q, clk, rec := newQueue(t)
	q.Schedule(ev(clk, 3, domain.VoteCPUDefault, 30*time.Millisecond))
	q.Schedule(ev(clk, 1, domain.VoteCPUDefault, 10*time.Millisecond))
	q.Schedule(ev(clk, 2, domain.VoteCPUDefault, 20*time.Millisecond))

	clk.Step(time.Second)
	q.FireDue()
	got := rec.got()
	require.Len(t, got, 3)
	for i, want := range []int64{1, 2, 3} {
		assert.Equal(t, want, got[i].SessionID)
	}
}

// ─── Worker ─────────────────────────────────────────────────────────────────

func TestTimeoutQueue_RunDeliversOnTimer(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(100, 0))
	fired := make(chan Event, 1)
	q := NewTimeoutQueue(clk, logr.Discard(), func(e Event) { fired <- e })
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	q.Schedule(ev(clk, 9, domain.VoteCPULoadReset, 50*time.Millisecond))
	require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond)
	clk.Step(60 * time.Millisecond)

	select {
	case e := <-fired:
		assert.Equal(t, int64(9), e.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not deliver the event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestTimeoutQueue_CloseDropsPending(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(100, 0))
	q := NewTimeoutQueue(clk, logr.Discard(), func(Event) { t.Error("event after close") })
	q.Schedule(ev(clk, 1, domain.VoteCPUDefault, time.Millisecond))
	q.Close()

	clk.Step(time.Second)
	assert.Equal(t, 0, q.FireDue())
	assert.False(t, q.Schedule(ev(clk, 1, domain.VoteCPUDefault, time.Millisecond)))
}

func TestTimeoutQueue_Overdue(t *testing.T) {
	q, clk, _ := newQueue(t)
	assert.Equal(t, time.Duration(0), q.Overdue())

	q.Schedule(ev(clk, 1, domain.VoteCPUDefault, 10*time.Millisecond))
	assert.Equal(t, time.Duration(0), q.Overdue())

	clk.Step(25 * time.Millisecond)
	assert.Equal(t, 15*time.Millisecond, q.Overdue())

	q.FireDue()
	assert.Equal(t, time.Duration(0), q.Overdue())
}
