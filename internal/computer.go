// Computer (C6): a single worker running the pluggable placement
// algorithm on demand.

package schedcore

import (
	"sync"
	"time"
)

var computerLog = NewCompLogger("computer")

const (
	ComputerMsgExit uint32 = 1 << iota
	ComputerMsgUpdate
)

// InterruptMode is the pre-algorithm consistency policy.
type InterruptMode int

const (
	ModeNoInterrupt InterruptMode = iota
	ModeGetProgress
	ModeSuspendExecutor
)

func ParseInterruptMode(s string) InterruptMode {
	switch s {
	case "get_progress":
		return ModeGetProgress
	case "suspend_executor":
		return ModeSuspendExecutor
	default:
		return ModeNoInterrupt
	}
}

// ExecutorHandle is the subset of Executor behavior Computer needs; a
// narrow interface breaks the cyclic Computer<->Executor reference into
// composition.
type ExecutorHandle interface {
	InstallSchedule(s *Schedule)
	RequestSuspendAll() // drains all resources to idle, blocks until done
	ResumeAfterSuspend()
}

// Computer is the long-running worker: message
// bitmask {EXIT, UPDATE}, one Algorithm plug-in, one interrupt flag.
type Computer struct {
	db       *TaskDatabase
	feedback *Feedback
	executor ExecutorHandle
	resources []*Resource

	mode                InterruptMode
	requiredApplications int

	mu        sync.Mutex
	cond      *sync.Cond
	pending   uint32
	algorithm Algorithm
	interrupt InterruptFlag

	progressWasUpdated bool

	wg   sync.WaitGroup
	done chan struct{}
}

func NewComputer(db *TaskDatabase, feedback *Feedback, resources []*Resource, algorithm Algorithm, mode InterruptMode, requiredApplications int) *Computer {
	c := &Computer{
		db:                   db,
		feedback:             feedback,
		resources:            resources,
		algorithm:            algorithm,
		mode:                 mode,
		requiredApplications: requiredApplications,
		done:                 make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *Computer) SetExecutor(e ExecutorHandle) {
	c.mu.Lock()
	c.executor = e
	c.mu.Unlock()
}

// Start launches the worker goroutine: one Computer thread.
func (c *Computer) Start() {
	c.wg.Add(1)
	go c.loop()
}

// Stop signals EXIT and waits for the worker to return.
func (c *Computer) Stop() {
	c.mu.Lock()
	c.pending |= ComputerMsgExit
	c.cond.Broadcast()
	c.mu.Unlock()
	c.wg.Wait()
}

// ComputeSchedule is the external trigger: sets UPDATE, sets the interrupt
// flag (to cancel any in-flight compute), and wakes the worker. It does not
// record the application count: runUpdate compares the count registered at
// the time it runs against requiredApplications.
func (c *Computer) ComputeSchedule(progressWasUpdated bool) {
	c.mu.Lock()
	c.pending |= ComputerMsgUpdate
	c.progressWasUpdated = c.progressWasUpdated || progressWasUpdated
	c.interrupt.Set()
	c.cond.Broadcast()
	c.mu.Unlock()
}

func (c *Computer) loop() {
	defer c.wg.Done()
	for {
		c.mu.Lock()
		for c.pending == 0 {
			c.cond.Wait()
		}
		msg := c.pending
		c.pending = 0
		c.mu.Unlock()

		if msg&ComputerMsgExit != 0 {
			return
		}
		if msg&ComputerMsgUpdate != 0 {
			c.runUpdate()
		}
	}
}

func (c *Computer) runUpdate() {
	if c.requiredApplications > 0 && c.db.AppCount() < c.requiredApplications {
		computerLog.Debugf("dropping compute: %d/%d applications registered", c.db.AppCount(), c.requiredApplications)
		return
	}

	eventLog.ComputerUpdate()
	start := time.Now()

	for {
		switch c.mode {
		case ModeGetProgress:
			c.feedback.GetProgress()
		case ModeSuspendExecutor:
			if c.executor != nil {
				c.executor.RequestSuspendAll()
			}
		}

		c.mu.Lock()
		c.interrupt.Reset()
		progressWasUpdated := c.progressWasUpdated
		c.progressWasUpdated = false
		c.mu.Unlock()

		snapshot := c.db.CopyUnfinished()
		running := make(map[string]RunningTask, len(c.resources))
		for _, r := range c.resources {
			running[r.Name] = r.ActiveRunningSnapshot()
		}

		eventLog.ComputerAlgoStart(c.algorithm.Name())
		sched := c.algorithm.Compute(snapshot, running, &c.interrupt, progressWasUpdated)
		eventLog.ComputerAlgoStop(c.algorithm.Name(), time.Since(start).Seconds())

		if sched == nil {
			if c.interrupt.IsSet() {
				continue // re-snapshot and retry
			}
			// Algorithm failure not due to interrupt: retry on next trigger.
			break
		}

		if c.mode == ModeSuspendExecutor && c.executor != nil {
			c.executor.ResumeAfterSuspend()
		}
		if c.executor != nil {
			c.executor.InstallSchedule(sched)
		}
		break
	}
}
