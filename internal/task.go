// Task data model and state machine.

package schedcore

import (
	"fmt"
	"sync"
	"time"
)

// TaskState is the lifecycle state of a Task.
type TaskState int

const (
	TaskPre TaskState = iota
	TaskStarting
	TaskRunning
	TaskStopping
	TaskSuspended
	TaskPost
	TaskAborted
)

var taskStateNames = map[TaskState]string{
	TaskPre:       "PRE",
	TaskStarting:  "STARTING",
	TaskRunning:   "RUNNING",
	TaskStopping:  "STOPPING",
	TaskSuspended: "SUSPENDED",
	TaskPost:      "POST",
	TaskAborted:   "ABORTED",
}

func (s TaskState) String() string {
	if name, ok := taskStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// Terminal reports whether the state cannot be left.
func (s TaskState) Terminal() bool {
	return s == TaskPost || s == TaskAborted
}

// Active reports whether the state counts as "occupying" a resource, i.e.
// STARTING, RUNNING or STOPPING (the glossary's "active task").
func (s TaskState) Active() bool {
	return s == TaskStarting || s == TaskRunning || s == TaskStopping
}

// OnEnd is the policy sent along with TASK_START telling the client what to
// do when it reaches the target checkpoint.
type OnEnd int

const (
	OnEndSuspend OnEnd = iota
	OnEndContinue
)

func (e OnEnd) String() string {
	if e == OnEndContinue {
		return "continue"
	}
	return "suspend"
}

func ParseOnEnd(s string) (OnEnd, error) {
	switch s {
	case "", "suspend":
		return OnEndSuspend, nil
	case "continue":
		return OnEndContinue, nil
	default:
		return OnEndSuspend, fmt.Errorf("invalid onend %q", s)
	}
}

// ClientHandle is the owning adapter's view from a Task's perspective: the
// subset of outgoing wire commands a task needs to send. Concrete adapters
// (internal/adapter.go) implement this; it lets task.go stay free of any
// socket/JSON knowledge.
type ClientHandle interface {
	SendStart(taskID int, resourceName string, endProgress int, onEnd OnEnd) error
	SendSuspend(taskID int) error
	SendAbort(taskID int) error
	SendProgressRequest(taskID int) error
}

var taskLog = NewCompLogger("task")

// Task is the immutable-attributes-plus-mutable-state unit of work.
// Tasks are allocated once by the Task Database and never freed; everyone
// else references them by Id.
type Task struct {
	// Immutable after registration:
	Id            int
	Name          string
	Size          int64
	Checkpoints   int // N, total checkpoint count, >= 1
	ValidOn       map[string]bool
	Predecessors  []int // global ids
	Successors    []int // global ids, filled in by the database at registration

	mu sync.Mutex

	State    TaskState
	Progress int // p, 0..Checkpoints

	AssignedResource string // resource name, "" if none

	AddedTs    time.Time
	StartedTs  time.Time
	FinishedTs time.Time
	AbortedTs  time.Time

	client ClientHandle

	// targetProgress/onEnd of the most recent TASK_START/UPDATE sent, used by
	// suspended() to decide whether the entry has been fully consumed.
	targetProgress int
	onEnd          OnEnd

	// Set while a progress sample was requested and not yet satisfied; used by
	// the owning Resource Coordinator via GotProgress callback.
	progressOutstanding bool
}

// NewTask constructs a PRE-state task. Id is assigned later by the database.
func NewTask(name string, size int64, checkpoints int, validOn []string, predecessors []int) *Task {
	validSet := make(map[string]bool, len(validOn))
	for _, r := range validOn {
		validSet[r] = true
	}
	preds := make([]int, len(predecessors))
	copy(preds, predecessors)
	return &Task{
		Name:         name,
		Size:         size,
		Checkpoints:  checkpoints,
		ValidOn:      validSet,
		Predecessors: preds,
		State:        TaskPre,
		AddedTs:      time.Now(),
	}
}

func (t *Task) SetClient(c ClientHandle) {
	t.mu.Lock()
	t.client = c
	t.mu.Unlock()
}

func (t *Task) GetClient() ClientHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

func (t *Task) GetState() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.State
}

func (t *Task) GetProgress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Progress
}

func (t *Task) GetAssignedResource() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.AssignedResource
}

func (t *Task) ValidResources() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.ValidOn))
	for r := range t.ValidOn {
		out = append(out, r)
	}
	return out
}

// Start sends TASK_START for this task. Returns an error if the client
// rejects or is absent; the caller (Resource Coordinator) is responsible for
// marking the schedule entry ABORTED in that case.
func (t *Task) Start(resourceName string, targetProgress int, onEnd OnEnd) error {
	t.mu.Lock()
	client := t.client
	if client == nil {
		t.mu.Unlock()
		return fmt.Errorf("task %d: no client", t.Id)
	}
	t.State = TaskStarting
	t.AssignedResource = resourceName
	t.targetProgress = targetProgress
	t.onEnd = onEnd
	if t.StartedTs.IsZero() {
		t.StartedTs = time.Now()
	}
	t.mu.Unlock()

	eventLog.TaskStart(t.Id, resourceName, targetProgress, onEnd)
	if err := client.SendStart(t.Id, resourceName, targetProgress, onEnd); err != nil {
		taskLog.Warnf("task %d: start send failed: %v", t.Id, err)
		return err
	}
	return nil
}

// Suspend sends TASK_SUSPEND. Valid from RUNNING (immediate) or STARTING
// (deferred by the caller via suspend-once-running, see resource.go).
func (t *Task) Suspend() error {
	t.mu.Lock()
	t.State = TaskStopping
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return fmt.Errorf("task %d: no client", t.Id)
	}
	eventLog.TaskSuspend(t.Id)
	return client.SendSuspend(t.Id)
}

// RequestProgress sends a TASK_PROGRESS sample request.
func (t *Task) RequestProgress() error {
	t.mu.Lock()
	t.progressOutstanding = true
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return fmt.Errorf("task %d: no client", t.Id)
	}
	eventLog.TaskGetProgress(t.Id)
	return client.SendProgressRequest(t.Id)
}

// Started reacts to a TASK_STARTED client event: STARTING -> RUNNING.
// Off-contract events (task not in STARTING) are logged and ignored, per a
// deliberate-conservatism error policy: ignore the unexpected event rather
// than force a state transition that was never requested.
func (t *Task) Started() (suspendNow bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State != TaskStarting {
		taskLog.Errorf("task %d: STARTED while in state %s, ignoring", t.Id, t.State)
		return false
	}
	t.State = TaskRunning
	eventLog.TaskStarted(t.Id)
	return false // caller checks suspend-once-running itself (resource.go)
}

// Suspended reacts to a TASK_SUSPENDED(progress) client event.
// Returns whether the schedule entry should be considered DONE, i.e.
// progress reached or exceeded the target checkpoint.
func (t *Task) Suspended(progress int) (entryDone bool, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State != TaskRunning && t.State != TaskStopping {
		taskLog.Errorf("task %d: SUSPENDED while in state %s, ignoring", t.Id, t.State)
		return false, false
	}
	if progress > t.Progress {
		t.Progress = progress
	}
	t.State = TaskSuspended
	t.progressOutstanding = false
	eventLog.TaskSuspended(t.Id, t.Progress)
	return progress >= t.targetProgress && t.targetProgress > 0, true
}

// Finished reacts to a TASK_FINISHED client event: -> POST (terminal).
func (t *Task) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State.Terminal() {
		taskLog.Errorf("task %d: FINISHED while already terminal (%s), ignoring", t.Id, t.State)
		return false
	}
	t.State = TaskPost
	t.Progress = t.Checkpoints
	t.FinishedTs = time.Now()
	eventLog.TaskFinished(t.Id)
	return true
}

// GotProgress reacts to a PROGRESS client event, recording the new sample.
func (t *Task) GotProgress(progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if progress > t.Progress {
		t.Progress = progress
	}
	t.progressOutstanding = false
	eventLog.TaskGotProgress(t.Id, progress)
}

// ProgressOutstanding reports whether a sample was requested; it does not
// clear the flag.
func (t *Task) ProgressOutstanding() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progressOutstanding
}

// Abort transitions any non-terminal task to ABORTED. Idempotent.
func (t *Task) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State.Terminal() {
		return
	}
	t.State = TaskAborted
	t.AbortedTs = time.Now()
	eventLog.TaskAborted(t.Id)
}

// ClientDisconnected is Abort() plus clearing the owning client, used when
// the adapter that owned this task is gone.
func (t *Task) ClientDisconnected() {
	t.mu.Lock()
	wasTerminal := t.State.Terminal()
	if !wasTerminal {
		t.State = TaskAborted
		t.AbortedTs = time.Now()
	}
	t.client = nil
	t.mu.Unlock()
	if !wasTerminal {
		eventLog.TaskAborted(t.Id)
	}
}

// Snapshot returns a value copy of the fields an Algorithm is allowed to
// see: a deep copy, no live pointers. The caller (Task Database)
// additionally runs this through go-clone so nested slices are
// independent too.
type TaskSnapshot struct {
	Id           int
	Name         string
	Size         int64
	Checkpoints  int
	ValidOn      []string
	Predecessors []int
	Successors   []int
	State        TaskState
	Progress     int
}

func (t *Task) Snapshot() TaskSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	validOn := make([]string, 0, len(t.ValidOn))
	for r := range t.ValidOn {
		validOn = append(validOn, r)
	}
	preds := make([]int, len(t.Predecessors))
	copy(preds, t.Predecessors)
	succs := make([]int, len(t.Successors))
	copy(succs, t.Successors)
	return TaskSnapshot{
		Id:           t.Id,
		Name:         t.Name,
		Size:         t.Size,
		Checkpoints:  t.Checkpoints,
		ValidOn:      validOn,
		Predecessors: preds,
		Successors:   succs,
		State:        t.State,
		Progress:     t.Progress,
	}
}
