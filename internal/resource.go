// Resource Coordinator (C2): owns the single-active-task state machine for
// one resource.

package schedcore

import (
	"context"
	"os/exec"
	"sync"
	"time"

	units "github.com/docker/go-units"
)

var resourceLog = NewCompLogger("resource")

// RunUntilMode selects what makes a running task yield: an external
// TASK_SUSPEND/PROGRESS exchange, or an autonomous timer armed from the
// schedule's duration estimate.
type RunUntilMode int

const (
	RunUntilProgressSuspend RunUntilMode = iota
	RunUntilEstimationTimer
)

func ParseRunUntilMode(s string) RunUntilMode {
	if s == "estimation_timer" {
		return RunUntilEstimationTimer
	}
	return RunUntilProgressSuspend
}

// activeEntry is the task entry a Resource Coordinator is currently
// driving; "active" spans STARTING/RUNNING/STOPPING (glossary: "active
// task").
type activeEntry struct {
	entry *ScheduleEntry
	task  *Task
}

// Resource is the per-resource state machine coordinating a single active
// task. One mutex per resource; the active entry, timer and flags are all
// guarded by it. The lock is released before the task's own lifecycle
// methods (Start, Suspend, Started, Suspended, Finished, ...) are called,
// so task state changes happen outside it, under the task's own mutex.
type Resource struct {
	Name string

	db             *TaskDatabase
	runUntil       RunUntilMode
	endHookCmd     []string
	retryEndHookOnIdle bool

	// notifyExecutor wakes the Executor's RESOURCE bit; set once by
	// NewExecutor after both halves are constructed (breaking the cyclic
	// Computer<->Executor reference by holding a handle set after
	// construction, see computer.go/executor.go).
	notifyExecutor func()

	// notifyFeedback wakes a pending Feedback.GetProgress round once this
	// resource has satisfied (or confirmed it has nothing to satisfy) an
	// outstanding progress request.
	notifyFeedback func(resource string)

	mu sync.Mutex

	active             *activeEntry
	suspendOnceRunning bool
	progressOutstanding bool
	timer              *time.Timer
	timerArmedAt       time.Time
	timerFor           time.Duration
	lastEndHookStatus  int
	endHookPendingRetry bool
	pendingNext        *ScheduleEntry
}

// NewResource constructs an idle Resource Coordinator. endHookCmd may be
// nil/empty if no end-hook is configured.
func NewResource(name string, db *TaskDatabase, runUntil RunUntilMode, endHookCmd []string, retryEndHookOnIdle bool) *Resource {
	return &Resource{
		Name:               name,
		db:                 db,
		runUntil:           runUntil,
		endHookCmd:         endHookCmd,
		retryEndHookOnIdle: retryEndHookOnIdle,
	}
}

func (r *Resource) SetNotifyExecutor(f func()) {
	r.mu.Lock()
	r.notifyExecutor = f
	r.mu.Unlock()
}

func (r *Resource) SetNotifyFeedback(f func(resource string)) {
	r.mu.Lock()
	r.notifyFeedback = f
	r.mu.Unlock()
}

// ActiveTaskID returns the task id currently occupying the resource, and
// whether one exists.
func (r *Resource) ActiveTaskID() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return 0, false
	}
	return r.active.task.Id, true
}

// ActiveRunningSnapshot returns the RunningTask view an Algorithm sees for
// this resource.
func (r *Resource) ActiveRunningSnapshot() RunningTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return RunningTask{}
	}
	return RunningTask{Valid: true, Task: r.active.task.Snapshot()}
}

// Start begins driving entry's task: precondition active==none. Sends
// START; on rejection aborts the task (and, through the Task Database, its
// dependents) and notifies the Executor.
func (r *Resource) Start(entry *ScheduleEntry) {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		resourceLog.Errorf("%s: start() with active task %d already present", r.Name, r.active.task.Id)
		return
	}
	task := r.db.TaskByID(entry.TaskID)
	if task == nil {
		r.mu.Unlock()
		return
	}
	r.active = &activeEntry{entry: entry, task: task}
	notify := r.notifyExecutor
	r.mu.Unlock()

	if err := task.Start(r.Name, entry.StopCheckpoint, OnEndSuspend); err != nil {
		r.db.Abort(task)
		r.mu.Lock()
		r.active = nil
		r.mu.Unlock()
		if notify != nil {
			notify()
		}
	}
}

// Update reacts to a new schedule assigning a different stop checkpoint (or
// pointer) to the already-active task. Precondition: active.task_id ==
// entry.TaskID.
func (r *Resource) Update(entry *ScheduleEntry) {
	r.mu.Lock()
	if r.active == nil || r.active.task.Id != entry.TaskID {
		r.mu.Unlock()
		resourceLog.Errorf("%s: update() for task %d without matching active entry", r.Name, entry.TaskID)
		return
	}
	oldEntry := r.active.entry
	task := r.active.task
	r.active.entry = entry
	hasTimer := r.timer != nil
	remaining := r.timerRemaining()
	r.mu.Unlock()

	if oldEntry.StopCheckpoint == entry.StopCheckpoint {
		return
	}
	if err := task.Start(r.Name, entry.StopCheckpoint, OnEndSuspend); err != nil {
		resourceLog.Warnf("%s: update resend failed for task %d: %v", r.Name, task.Id, err)
		return
	}
	if r.runUntil == RunUntilEstimationTimer && hasTimer {
		delta := entry.EstimatedDuration - oldEntry.EstimatedDuration
		r.mu.Lock()
		r.armProgressTimer(remaining + delta)
		r.mu.Unlock()
	}
}

// Suspend requests the active task yield. If RUNNING, sends SUSPEND now; if
// STARTING, defers the send until the STARTED ack.
func (r *Resource) Suspend() {
	r.mu.Lock()
	if r.active == nil {
		r.mu.Unlock()
		return
	}
	task := r.active.task
	state := task.GetState()
	if state == TaskStarting {
		r.suspendOnceRunning = true
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	if state == TaskRunning {
		if err := task.Suspend(); err != nil {
			resourceLog.Warnf("%s: suspend failed for task %d: %v", r.Name, task.Id, err)
		}
	}
}

// RequestProgress asks for a progress sample if one is needed. Returns true
// if no sample was necessary (idle, or about to yield progress anyway
// through STOPPING) and the caller should not wait.
func (r *Resource) RequestProgress() (noSampleNeeded bool) {
	r.mu.Lock()
	if r.active == nil {
		r.mu.Unlock()
		return true
	}
	task := r.active.task
	state := task.GetState()
	if state != TaskRunning {
		r.mu.Unlock()
		return true
	}
	r.progressOutstanding = true
	r.mu.Unlock()

	if err := task.RequestProgress(); err != nil {
		r.mu.Lock()
		r.progressOutstanding = false
		r.mu.Unlock()
		return true
	}
	return false
}

// armProgressTimer starts (or restarts) the autonomous-suspend timer used
// in RunUntilEstimationTimer mode. Must be called with r.mu held. Records
// the arm time and duration so a later Update() can compute how much of
// the previous arming was actually left.
func (r *Resource) armProgressTimer(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(d, func() {
		r.mu.Lock()
		active := r.active
		r.mu.Unlock()
		if active == nil {
			return
		}
		if active.task.GetState() == TaskRunning {
			_ = active.task.Suspend()
		}
	})
	r.timerArmedAt = time.Now()
	r.timerFor = d
}

// timerRemaining reports how much of the current arming is still left, had
// it not just been rearmed. Must be called with r.mu held.
func (r *Resource) timerRemaining() time.Duration {
	if r.timer == nil {
		return 0
	}
	remaining := r.timerFor - time.Since(r.timerArmedAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// OnTaskStarted reacts to the client's TASK_STARTED.
func (r *Resource) OnTaskStarted(taskID int) {
	r.mu.Lock()
	if r.active == nil || r.active.task.Id != taskID {
		r.mu.Unlock()
		resourceLog.Errorf("%s: TASK_STARTED for %d, no matching active entry", r.Name, taskID)
		return
	}
	task := r.active.task
	entry := r.active.entry
	suspendNow := r.suspendOnceRunning
	r.suspendOnceRunning = false
	runUntil := r.runUntil
	r.mu.Unlock()

	task.Started()

	if runUntil == RunUntilEstimationTimer && entry.EstimatedDuration > 0 {
		r.mu.Lock()
		r.armProgressTimer(entry.EstimatedDuration)
		r.mu.Unlock()
	}

	if suspendNow {
		_ = task.Suspend()
	}
}

// OnTaskSuspended reacts to the client's TASK_SUSPENDED(progress).
func (r *Resource) OnTaskSuspended(taskID int, progress int) {
	r.mu.Lock()
	if r.active == nil || r.active.task.Id != taskID {
		r.mu.Unlock()
		resourceLog.Errorf("%s: TASK_SUSPENDED for %d, no matching active entry", r.Name, taskID)
		return
	}
	task := r.active.task
	entry := r.active.entry
	wasOutstanding := r.progressOutstanding
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	entryDone, ok := task.Suspended(progress)
	if !ok {
		return
	}
	_ = entryDone // executor.go consults Schedule/task state directly on reconcile

	nextEntry, nextTask := r.peekNext(entry)
	r.runEndHook(task, nextEntry, nextTask)

	r.mu.Lock()
	r.active = nil
	r.progressOutstanding = false
	notify := r.notifyExecutor
	notifyFeedback := r.notifyFeedback
	r.mu.Unlock()

	if wasOutstanding {
		eventLog.FeedbackGotProgress(r.Name)
		if notifyFeedback != nil {
			notifyFeedback(r.Name)
		}
	}
	if notify != nil {
		notify()
	}
}

// OnTaskFinished reacts to the client's TASK_FINISHED.
func (r *Resource) OnTaskFinished(taskID int) {
	r.mu.Lock()
	if r.active == nil || r.active.task.Id != taskID {
		r.mu.Unlock()
		resourceLog.Errorf("%s: TASK_FINISHED for %d, no matching active entry", r.Name, taskID)
		return
	}
	task := r.active.task
	entry := r.active.entry
	wasOutstanding := r.progressOutstanding
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.mu.Unlock()

	if !task.Finished() {
		return
	}

	nextEntry, nextTask := r.peekNext(entry)
	r.runEndHook(task, nextEntry, nextTask)

	r.mu.Lock()
	r.active = nil
	r.progressOutstanding = false
	notify := r.notifyExecutor
	notifyFeedback := r.notifyFeedback
	r.mu.Unlock()

	eventLog.EndTask(taskID, r.Name)
	if wasOutstanding {
		eventLog.FeedbackGotProgress(r.Name)
		if notifyFeedback != nil {
			notifyFeedback(r.Name)
		}
	}
	if notify != nil {
		notify()
	}
}

// OnTaskProgress reacts to an unsolicited PROGRESS sample.
func (r *Resource) OnTaskProgress(taskID int, progress int) {
	r.mu.Lock()
	if r.active == nil || r.active.task.Id != taskID {
		r.mu.Unlock()
		return
	}
	task := r.active.task
	wasOutstanding := r.progressOutstanding
	r.progressOutstanding = false
	notifyFeedback := r.notifyFeedback
	r.mu.Unlock()

	task.GotProgress(progress)
	if wasOutstanding {
		eventLog.FeedbackGotProgress(r.Name)
		if notifyFeedback != nil {
			notifyFeedback(r.Name)
		}
	}
}

// OnTaskAborted/OnClientDisconnected clear the active entry when it holds
// taskID (and are no-ops otherwise) and notify the Executor; used both for explicit TASK_ABORT acks and for
// adapter teardown.
func (r *Resource) OnTaskAborted(taskID int) {
	r.mu.Lock()
	if r.active == nil || r.active.task.Id != taskID {
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.active = nil
	wasOutstanding := r.progressOutstanding
	r.progressOutstanding = false
	notify := r.notifyExecutor
	notifyFeedback := r.notifyFeedback
	r.mu.Unlock()
	if wasOutstanding && notifyFeedback != nil {
		notifyFeedback(r.Name)
	}
	if notify != nil {
		notify()
	}
}

func (r *Resource) OnClientDisconnected(taskID int) {
	r.mu.Lock()
	if r.active == nil || r.active.task.Id != taskID {
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.active = nil
	wasOutstanding := r.progressOutstanding
	r.progressOutstanding = false
	notify := r.notifyExecutor
	notifyFeedback := r.notifyFeedback
	r.mu.Unlock()
	if wasOutstanding && notifyFeedback != nil {
		notifyFeedback(r.Name)
	}
	if notify != nil {
		notify()
	}
}

// Idle is called by the Executor's reconcile() when the resource has no
// active entry or keeps its current task; if a previous end-hook invocation
// failed, it retries the hook so accelerators needing post-task reconfiguration eventually get it,
// gated by the retry_endhook_on_idle per-resource flag.
func (r *Resource) Idle() {
	r.mu.Lock()
	shouldRetry := r.retryEndHookOnIdle && r.endHookPendingRetry
	r.mu.Unlock()
	if !shouldRetry {
		return
	}
	r.runEndHook(nil, nil, nil)
}

// peekNext looks at the schedule entry following the one that just
// finished/suspended, for the end-hook's "next task" metadata. It has no
// schedule reference of its own (schedules are immutable, owned by the
// Executor); the Executor supplies it via SetPendingNext before the
// finishing event is expected to fire. Absent that, next is unknown.
func (r *Resource) peekNext(entry *ScheduleEntry) (*ScheduleEntry, *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingNext == nil {
		return nil, nil
	}
	next := r.pendingNext
	task := r.db.TaskByID(next.TaskID)
	return next, task
}

// SetPendingNext records the entry after the one currently active, as
// computed by the Executor's reconcile(), for end-hook metadata.
func (r *Resource) SetPendingNext(next *ScheduleEntry) {
	r.mu.Lock()
	r.pendingNext = next
	r.mu.Unlock()
}

// runEndHook invokes the configured external command with resource name,
// finishing task name/size, and (if known) next task name/size plus the
// estimated idle gap. A non-zero exit is recorded and retried on the next
// idle tick when retryEndHookOnIdle is set.
func (r *Resource) runEndHook(doneTask *Task, nextEntry *ScheduleEntry, nextTask *Task) {
	if len(r.endHookCmd) == 0 {
		return
	}
	args := append([]string{}, r.endHookCmd[1:]...)
	args = append(args, r.Name)
	if doneTask != nil {
		args = append(args, doneTask.Name, formatSize(doneTask.Size))
	}
	if nextTask != nil {
		gap := time.Duration(0)
		if nextEntry != nil {
			gap = nextEntry.EstimatedIdleAfter
		}
		args = append(args, nextTask.Name, formatSize(nextTask.Size), gap.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, r.endHookCmd[0], args...)
	err := cmd.Run()

	r.mu.Lock()
	if err != nil {
		r.lastEndHookStatus = exitStatus(err)
		r.endHookPendingRetry = true
		resourceLog.Warnf("%s: end-hook failed: %v", r.Name, err)
	} else {
		r.lastEndHookStatus = 0
		r.endHookPendingRetry = false
	}
	r.mu.Unlock()
}

func exitStatus(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func formatSize(n int64) string {
	return units.HumanSize(float64(n))
}
