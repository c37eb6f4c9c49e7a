// Executor (C7): reconciles schedule against observed resource state.

package schedcore

import "sync"

var executorLog = NewCompLogger("executor")

const (
	ExecutorMsgExit uint32 = 1 << iota
	ExecutorMsgSchedule
	ExecutorMsgResource
)

// ComputerHandle is the subset of Computer behavior Executor needs.
type ComputerHandle interface {
	ComputeSchedule(progressWasUpdated bool)
}

// Executor is the long-running worker: message
// bitmask {EXIT, SCHEDULE, RESOURCE}, current schedule, active flag, and a
// monotonically increasing loop counter external callers can wait on.
type Executor struct {
	db        *TaskDatabase
	computer  ComputerHandle
	resources map[string]*Resource
	order     []string // stable iteration order for reconcile

	idleReschedule bool

	mu              sync.Mutex
	cond            *sync.Cond
	pending         uint32
	schedule        *Schedule
	oldSchedules    []*Schedule // retained: Executor may hold pointers into them
	active          bool
	loopCount       uint64
	suspendRequested bool
	suspendDone      chan struct{}

	wg sync.WaitGroup
}

func NewExecutor(db *TaskDatabase, resources []*Resource, idleReschedule bool) *Executor {
	e := &Executor{
		db:             db,
		resources:      make(map[string]*Resource, len(resources)),
		idleReschedule: idleReschedule,
	}
	for _, r := range resources {
		e.resources[r.Name] = r
		e.order = append(e.order, r.Name)
		r.SetNotifyExecutor(e.NotifyResourceChanged)
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *Executor) SetComputer(c ComputerHandle) {
	e.mu.Lock()
	e.computer = c
	e.mu.Unlock()
}

func (e *Executor) Start() {
	e.wg.Add(1)
	go e.loop()
}

func (e *Executor) Stop() {
	e.mu.Lock()
	e.pending |= ExecutorMsgExit
	e.cond.Broadcast()
	e.mu.Unlock()
	e.wg.Wait()
}

// InstallSchedule implements ExecutorHandle for Computer: installs the new
// schedule (retaining the old one for pointer safety) and flags a manage
// pass.
func (e *Executor) InstallSchedule(s *Schedule) {
	e.mu.Lock()
	if e.schedule != nil {
		e.oldSchedules = append(e.oldSchedules, e.schedule)
	}
	e.schedule = s
	e.active = true
	e.pending |= ExecutorMsgSchedule
	e.cond.Broadcast()
	e.mu.Unlock()
	eventLog.ExecutorNewSchedule()
}

// NotifyResourceChanged is the callback Resources invoke whenever their
// active entry changes (start/suspend/finish/abort acks).
func (e *Executor) NotifyResourceChanged() {
	e.mu.Lock()
	e.pending |= ExecutorMsgResource
	e.cond.Broadcast()
	e.mu.Unlock()
}

// RequestSuspendAll implements ExecutorHandle's strongest-consistency mode:
// suspend every resource's active task and block until all have gone idle.
func (e *Executor) RequestSuspendAll() {
	e.mu.Lock()
	for _, name := range e.order {
		eventLog.ExecutorSuspend(name)
	}
	e.suspendRequested = true
	e.suspendDone = make(chan struct{})
	done := e.suspendDone
	e.mu.Unlock()

	for _, name := range e.order {
		e.resources[name].Suspend()
	}

	<-done
}

func (e *Executor) ResumeAfterSuspend() {
	e.mu.Lock()
	e.suspendRequested = false
	for _, name := range e.order {
		eventLog.ExecutorResume(name)
	}
	e.mu.Unlock()
}

// LoopCount returns the monotonically increasing reconcile-pass counter, so
// external callers (e.g. tests, the simulation driver) can wait for "one
// reconciliation pass completed since I checked".
func (e *Executor) LoopCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loopCount
}

func (e *Executor) loop() {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		for e.pending == 0 {
			e.cond.Wait()
		}
		msg := e.pending
		e.pending = 0
		e.mu.Unlock()

		if msg&ExecutorMsgExit != 0 {
			return
		}

		manage := msg&ExecutorMsgSchedule != 0 || msg&ExecutorMsgResource != 0
		if manage {
			notIdleCount := e.reconcile()

			e.mu.Lock()
			e.loopCount++
			wasActive := e.active
			allSuspended := e.suspendRequested && notIdleCount == 0
			if notIdleCount == 0 {
				e.active = false
			}
			suspendDone := e.suspendDone
			e.mu.Unlock()

			if allSuspended && suspendDone != nil {
				eventLog.ExecutorSuspended("*")
				close(suspendDone)
				e.mu.Lock()
				e.suspendDone = nil
				e.mu.Unlock()
			}

			if !wasActive && notIdleCount == 0 {
				// already inactive, nothing to request
			} else if notIdleCount == 0 && wasActive && e.idleReschedule && !e.db.AllDone() {
				if e.computer != nil {
					e.computer.ComputeSchedule(false)
				}
			}
		}
	}
}

// reconcile runs one pass over every resource, diffing its current active
// entry against the schedule's head entry for that resource and acting on
// the difference (start, suspend, update, or leave idle). Returns the
// count of resources that are "not idle-done" (have an active or
// about-to-be-active task).
func (e *Executor) reconcile() int {
	e.mu.Lock()
	sched := e.schedule
	e.mu.Unlock()

	notIdleDone := 0
	for _, name := range e.order {
		r := e.resources[name]
		curTaskID, hasCur := r.ActiveTaskID()

		var next *ScheduleEntry
		if sched != nil {
			next = sched.NextEntry(name, 0)
		}
		r.SetPendingNext(sched.NextEntry(name, 1))

		switch {
		case hasCur && next != nil && curTaskID == next.TaskID:
			// Same task id as next: update if the entry object differs, i.e.
			// the stop checkpoint (or other metadata) changed; otherwise
			// no-op but still give end-hook retries a chance.
			r.Update(next)
			r.Idle()
			notIdleDone++

		case !hasCur && next == nil:
			r.Idle()

		case !hasCur && next != nil:
			task := e.db.TaskByID(next.TaskID)
			if task == nil {
				break
			}
			state := task.GetState()
			if state.Terminal() || state.Active() {
				// terminal, or already running elsewhere: skip
				break
			}
			if state == TaskPre || state == TaskSuspended {
				if e.db.DependenciesReady(task) && task.GetProgress() >= next.StartCheckpoint {
					r.Start(next)
					notIdleDone++
				} else {
					notIdleDone++ // not yet ready: counted active, prevents premature idle-reschedule
				}
			}
			// STARTING/STOPPING states for a task not currently owned by this
			// resource cannot occur (single-active-task invariant): no-op.

		case hasCur && next != nil && curTaskID != next.TaskID:
			curState := e.resourceTaskState(r, curTaskID)
			switch curState {
			case TaskStarting, TaskRunning:
				r.Suspend()
				notIdleDone++
			case TaskStopping:
				// wait
				notIdleDone++
			}

		case hasCur && next == nil:
			curState := e.resourceTaskState(r, curTaskID)
			if curState == TaskStarting || curState == TaskRunning {
				r.Suspend()
			}
			notIdleDone++
		}
	}
	return notIdleDone
}

func (e *Executor) resourceTaskState(r *Resource, taskID int) TaskState {
	task := e.db.TaskByID(taskID)
	if task == nil {
		return TaskAborted
	}
	return task.GetState()
}
