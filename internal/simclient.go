// In-process fake client (C12): satisfies ClientHandle the same way a real
// Adapter does, but instead of writing wire messages it advances a
// SimClock and calls the affected Resource's On* callbacks directly -- the
// same callbacks a real Adapter invokes after decoding a TASK_STARTED/
// TASK_SUSPENDED/TASK_FINISHED/PROGRESS record. This lets the simulation
// driver exercise the identical Computer/Executor/Resource/Feedback core
// the real transport does, without sockets or wall-clock waits.

package schedcore

import (
	"sync"
	"time"
)

var simLog = NewCompLogger("simclient")

// SimTaskProfile controls how fast a simulated task makes progress on a
// given resource: CheckpointsPerSec virtual checkpoints complete per
// virtual second of RUNNING time. Zero or negative falls back to 1.0.
type SimTaskProfile struct {
	CheckpointsPerSec float64
}

// SimClient drives every task it owns against a SimClock instead of a real
// socket. One SimClient is typically shared by every simulated task list
// registered against a given scenario run.
type SimClient struct {
	clock     *SimClock
	resources map[string]*Resource
	db        *TaskDatabase
	profile   func(taskID int, resource string) SimTaskProfile

	mu      sync.Mutex
	running map[int]*simRun
}

type simRun struct {
	resource string
	startSim time.Time // virtual time RUNNING began (or resumed)
	fromProg int        // progress at startSim
	target   int
	onEnd    OnEnd
	rate     float64
	cancel   bool // set true once superseded by a later SendStart/Suspend/Abort
}

// NewSimClient constructs a fake client bound to a clock and the live
// Resource set. profile may be nil, in which case every task advances at
// 1 checkpoint/sec simulated.
func NewSimClient(clock *SimClock, resources map[string]*Resource, db *TaskDatabase, profile func(taskID int, resource string) SimTaskProfile) *SimClient {
	return &SimClient{
		clock:     clock,
		resources: resources,
		db:        db,
		profile:   profile,
		running:   make(map[int]*simRun),
	}
}

func (c *SimClient) rateFor(taskID int, resource string) float64 {
	if c.profile == nil {
		return 1.0
	}
	p := c.profile(taskID, resource)
	if p.CheckpointsPerSec <= 0 {
		return 1.0
	}
	return p.CheckpointsPerSec
}

// SendStart simulates the client accepting TASK_START: schedule a STARTED
// ack shortly after, then schedule the SUSPENDED/FINISHED event once
// simulated running time closes the gap to endProgress.
func (c *SimClient) SendStart(taskID int, resourceName string, endProgress int, onEnd OnEnd) error {
	r, ok := c.resources[resourceName]
	if !ok {
		simLog.Warnf("task %d: start on unknown resource %q", taskID, resourceName)
		return nil
	}
	rate := c.rateFor(taskID, resourceName)

	c.clock.After(0, func() {
		r.OnTaskStarted(taskID)

		task := c.db.TaskByID(taskID)
		if task == nil {
			return
		}
		fromProg := task.GetProgress()
		run := &simRun{
			resource: resourceName,
			startSim: c.clock.Now(),
			fromProg: fromProg,
			target:   endProgress,
			onEnd:    onEnd,
			rate:     rate,
		}
		c.mu.Lock()
		c.running[taskID] = run
		c.mu.Unlock()

		checkpointsToGo := endProgress - fromProg
		if checkpointsToGo <= 0 {
			c.deliverYield(taskID, run)
			return
		}
		d := time.Duration(float64(checkpointsToGo)/rate*float64(time.Second))
		c.clock.After(d, func() {
			c.mu.Lock()
			cancelled := run.cancel
			c.mu.Unlock()
			if cancelled {
				return
			}
			c.deliverYield(taskID, run)
		})
	})
	return nil
}

// deliverYield fires once the simulated task reaches its target checkpoint:
// FINISHED if that's the last checkpoint, otherwise SUSPENDED(target).
func (c *SimClient) deliverYield(taskID int, run *simRun) {
	r, ok := c.resources[run.resource]
	if !ok {
		return
	}
	task := c.db.TaskByID(taskID)
	if task == nil {
		return
	}
	c.mu.Lock()
	delete(c.running, taskID)
	c.mu.Unlock()
	if run.target >= task.Checkpoints {
		r.OnTaskFinished(taskID)
	} else {
		r.OnTaskSuspended(taskID, run.target)
	}
}

// SendSuspend simulates an immediate TASK_SUSPENDED at whatever progress
// the task has accrued up to the current virtual instant.
func (c *SimClient) SendSuspend(taskID int) error {
	c.mu.Lock()
	run, ok := c.running[taskID]
	if ok {
		run.cancel = true
		delete(c.running, taskID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	r, ok := c.resources[run.resource]
	if !ok {
		return nil
	}
	elapsed := c.clock.Now().Sub(run.startSim).Seconds()
	progress := run.fromProg + int(elapsed*run.rate)
	if progress > run.target {
		progress = run.target
	}
	c.clock.After(0, func() {
		r.OnTaskSuspended(taskID, progress)
	})
	return nil
}

// SendAbort simulates an immediate TASK_ABORTED acknowledgement.
func (c *SimClient) SendAbort(taskID int) error {
	c.mu.Lock()
	run, ok := c.running[taskID]
	resource := ""
	if ok {
		run.cancel = true
		resource = run.resource
		delete(c.running, taskID)
	}
	c.mu.Unlock()
	if !ok {
		if t := c.db.TaskByID(taskID); t != nil {
			resource = t.GetAssignedResource()
		}
	}
	r, ok := c.resources[resource]
	if !ok {
		return nil
	}
	c.clock.After(0, func() {
		r.OnTaskAborted(taskID)
	})
	return nil
}

// SendProgressRequest simulates an unsolicited PROGRESS reply at the
// task's current simulated completion.
func (c *SimClient) SendProgressRequest(taskID int) error {
	c.mu.Lock()
	run, ok := c.running[taskID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	r, ok := c.resources[run.resource]
	if !ok {
		return nil
	}
	elapsed := c.clock.Now().Sub(run.startSim).Seconds()
	progress := run.fromProg + int(elapsed*run.rate)
	if progress > run.target {
		progress = run.target
	}
	c.clock.After(0, func() {
		r.OnTaskProgress(taskID, progress)
	})
	return nil
}
