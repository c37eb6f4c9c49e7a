// Discrete-event virtual clock for the simulation driver (C12). The rest
// of this module's event timing is all real-wall-clock (tickers,
// time.Timer); simulated time needs a deterministic, instantly-advancing
// substitute so algorithm evaluation runs don't wait on real durations.
// This is the standard discrete-event-simulation idiom, applied fresh
// here rather than adapted from elsewhere in this codebase.

package schedcore

import (
	"container/heap"
	"sync"
	"time"
)

type simEvent struct {
	at  time.Time
	seq int64 // tiebreak for events scheduled at the same instant, FIFO
	fn  func()
}

type simEventQueue []*simEvent

func (q simEventQueue) Len() int { return len(q) }
func (q simEventQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}
func (q simEventQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *simEventQueue) Push(x any)         { *q = append(*q, x.(*simEvent)) }
func (q *simEventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	*q = old[:n-1]
	return ev
}

// SimClock is a discrete-event scheduler: callers register functions to run
// at a virtual timestamp, then drain the queue in timestamp order. The
// simulation driver's goroutine is the one that calls RunUntilEmpty, but a
// callback can itself run on the Executor's own goroutine (Resource.Start
// calling back into SimClient.SendStart to arm the next event) while the
// driver concurrently inspects Pending(), so the queue and "now" are
// guarded by a mutex rather than assumed single-threaded.
type SimClock struct {
	mu    sync.Mutex
	now   time.Time
	queue simEventQueue
	seq   int64
}

// NewSimClock starts the virtual clock at epoch; epoch is an arbitrary but
// fixed reference so Schedule's human-readable durations still make sense.
func NewSimClock(epoch time.Time) *SimClock {
	return &SimClock{now: epoch}
}

func (c *SimClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After schedules fn to run once the virtual clock reaches Now()+d.
func (c *SimClock) After(d time.Duration, fn func()) {
	c.mu.Lock()
	at := c.now.Add(d)
	c.mu.Unlock()
	c.AtTime(at, fn)
}

// AtTime schedules fn to run once the virtual clock reaches at. Past
// timestamps sort before every later event, earliest first (FIFO among
// equal timestamps), and the clock is set back to that timestamp when the
// event runs.
func (c *SimClock) AtTime(at time.Time, fn func()) {
	c.mu.Lock()
	heap.Push(&c.queue, &simEvent{at: at, seq: c.seq, fn: fn})
	c.seq++
	c.mu.Unlock()
}

// RunUntilEmpty pops events one at a time in timestamp order, advancing
// the virtual clock to each event's timestamp before invoking it outside
// the lock (so a callback scheduling a follow-up event doesn't deadlock),
// and keeps going -- including events a callback itself schedules -- until
// the queue is empty.
func (c *SimClock) RunUntilEmpty() {
	for {
		c.mu.Lock()
		if c.queue.Len() == 0 {
			c.mu.Unlock()
			return
		}
		ev := heap.Pop(&c.queue).(*simEvent)
		c.now = ev.at
		c.mu.Unlock()
		ev.fn()
	}
}

// Pending reports whether any event remains scheduled.
func (c *SimClock) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len() > 0
}
