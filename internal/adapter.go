// Client/Scheduler Protocol Adapters (C8): translate wire messages into
// operations on the Task Database and the owning task, and translate
// outgoing commands into wire messages enqueued on a Writer.
//
// A deep virtual hierarchy (client -> unix client -> sched client ->
// {Main,Wrap}) collapses into composition here: one Adapter holds a Writer
// and a policy implementing AdapterPolicy. Main and Wrap are the two
// concrete policies.

package schedcore

import (
	"fmt"
	"sync"
)

var adapterLog = NewCompLogger("adapter")

// AdapterPolicy is the behavior that differs between the
// scheduler-as-server role (Main, talking to an application) and the
// scheduler-as-client role (Wrap, talking to another scheduler).
type AdapterPolicy interface {
	OnTaskList(a *Adapter, entries []TaskListEntry)
	OnQuit(a *Adapter)
	OnFail(a *Adapter, err error)
}

// Adapter is one connected peer. It owns the tasks it registered (until
// they terminate or it disconnects) and implements ClientHandle so Task
// can address it directly without socket/JSON knowledge.
type Adapter struct {
	db       *TaskDatabase
	writer   *Writer
	policy   AdapterPolicy
	resolver ResourceResolver

	mu    sync.Mutex
	tasks map[int]*Task // tasks this adapter registered and still owns
}

// ResourceResolver looks up a Resource Coordinator by name, so an adapter
// can validate incoming TASKLIST resource names without depending on the
// full Executor/runner wiring.
type ResourceResolver interface {
	Resource(name string) (*Resource, bool)
}

func NewAdapter(db *TaskDatabase, writer *Writer, policy AdapterPolicy, resolver ResourceResolver) *Adapter {
	return &Adapter{
		db:       db,
		writer:   writer,
		policy:   policy,
		resolver: resolver,
		tasks:    make(map[int]*Task),
	}
}

// Dispatch parses one decoded incoming message and invokes the matching
// callback.
func (a *Adapter) Dispatch(m *Message) {
	switch m.Msg {
	case MsgTaskList:
		a.policy.OnTaskList(a, m.TaskList)
	case MsgTaskStarted:
		a.onTaskStarted(m.ID)
	case MsgTaskSuspended:
		a.onTaskSuspended(m.ID, m.Progress)
	case MsgTaskFinished:
		a.onTaskFinished(m.ID)
	case MsgProgress:
		a.onProgress(m.ID, m.Progress)
	case MsgQuit:
		a.policy.OnQuit(a)
	default:
		adapterLog.Warnf("unknown message type %q, dropping", m.Msg)
	}
}

// RegisterTaskList validates and registers a task group on behalf of a
// policy's OnTaskList. Unknown resources are dropped silently from a
// task's valid set; a task left with zero valid resources aborts the
// whole list.
func (a *Adapter) RegisterTaskList(entries []TaskListEntry) ([]int, error) {
	tasks := make([]*Task, len(entries))
	for i, e := range entries {
		validOn := make([]string, 0, len(e.Resources))
		for _, rname := range e.Resources {
			if _, ok := a.resolver.Resource(rname); ok {
				validOn = append(validOn, rname)
			}
		}
		if len(validOn) == 0 {
			return nil, fmt.Errorf("task %d (%s): no valid resources after filtering unknown names", i, e.Name)
		}
		tasks[i] = NewTask(e.Name, e.Size, e.Checkpoints, validOn, e.Dependencies)
	}

	if err := a.db.RegisterTaskList(tasks); err != nil {
		return nil, err
	}

	ids := make([]int, len(tasks))
	a.mu.Lock()
	for i, t := range tasks {
		t.SetClient(a)
		a.tasks[t.Id] = t
		ids[i] = t.Id
	}
	a.mu.Unlock()

	return ids, nil
}

func (a *Adapter) lookupOwned(taskID int) *Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tasks[taskID]
}

func (a *Adapter) onTaskStarted(taskID int) {
	t := a.lookupOwned(taskID)
	if t == nil {
		adapterLog.Errorf("TASK_STARTED for unowned task %d", taskID)
		return
	}
	if r, ok := a.resolver.Resource(t.GetAssignedResource()); ok {
		r.OnTaskStarted(taskID)
	}
}

func (a *Adapter) onTaskSuspended(taskID int, progress int) {
	t := a.lookupOwned(taskID)
	if t == nil {
		adapterLog.Errorf("TASK_SUSPENDED for unowned task %d", taskID)
		return
	}
	if r, ok := a.resolver.Resource(t.GetAssignedResource()); ok {
		r.OnTaskSuspended(taskID, progress)
	}
}

func (a *Adapter) onTaskFinished(taskID int) {
	t := a.lookupOwned(taskID)
	if t == nil {
		adapterLog.Errorf("TASK_FINISHED for unowned task %d", taskID)
		return
	}
	if r, ok := a.resolver.Resource(t.GetAssignedResource()); ok {
		r.OnTaskFinished(taskID)
	}
}

func (a *Adapter) onProgress(taskID int, progress int) {
	t := a.lookupOwned(taskID)
	if t == nil {
		return
	}
	if r, ok := a.resolver.Resource(t.GetAssignedResource()); ok {
		r.OnTaskProgress(taskID, progress)
	}
}

// Close is adapter teardown: best-effort QUIT, close the
// socket, and abort/disconnect every task still owned and non-terminal.
func (a *Adapter) Close() {
	a.writer.Enqueue(&Message{Msg: MsgQuit})
	a.writer.Close()

	a.mu.Lock()
	owned := make([]*Task, 0, len(a.tasks))
	for _, t := range a.tasks {
		owned = append(owned, t)
	}
	a.mu.Unlock()

	for _, t := range owned {
		resourceName := t.GetAssignedResource()
		if r, ok := a.resolver.Resource(resourceName); ok && t.GetState().Active() {
			r.OnClientDisconnected(t.Id)
		}
		t.ClientDisconnected()
	}
}

// ClientHandle implementation: outgoing commands, enqueued on the writer.

func (a *Adapter) SendStart(taskID int, resourceName string, endProgress int, onEnd OnEnd) error {
	ep := endProgress
	a.writer.Enqueue(&Message{
		Msg:         MsgTaskStart,
		ID:          taskID,
		Resource:    resourceName,
		EndProgress: &ep,
		OnEnd:       onEnd.String(),
	})
	return nil
}

func (a *Adapter) SendSuspend(taskID int) error {
	a.writer.Enqueue(&Message{Msg: MsgTaskSuspend, ID: taskID})
	return nil
}

func (a *Adapter) SendAbort(taskID int) error {
	eventLog.TaskAbort(taskID)
	a.writer.Enqueue(&Message{Msg: MsgTaskAbort, ID: taskID})
	return nil
}

func (a *Adapter) SendProgressRequest(taskID int) error {
	a.writer.Enqueue(&Message{Msg: MsgTaskProgress, ID: taskID})
	return nil
}

// SendTaskIDs is Main policy's reply to a successful TASKLIST.
func (a *Adapter) SendTaskIDs(ids []int) {
	a.writer.Enqueue(&Message{Msg: MsgTaskIDs, TaskIDs: ids})
}

// MainPolicy is the scheduler-as-server role: an application connects,
// submits task lists, and receives commands for them.
type MainPolicy struct{}

func (MainPolicy) OnTaskList(a *Adapter, entries []TaskListEntry) {
	ids, err := a.RegisterTaskList(entries)
	if err != nil {
		adapterLog.Warnf("TASKLIST rejected: %v", err)
		return
	}
	a.SendTaskIDs(ids)
}

func (MainPolicy) OnQuit(a *Adapter) {
	a.Close()
}

func (MainPolicy) OnFail(a *Adapter, err error) {
	adapterLog.Warnf("adapter failed: %v", err)
	a.Close()
}

// WrapPolicy is the scheduler-as-client role used when this scheduler acts
// as an application towards an upstream scheduler: it owns no inbound
// TASKLIST handling of its own (it originates task lists instead, via
// RegisterTaskList called directly by the wrapping code), it only needs to
// tear down cleanly on QUIT/failure.
type WrapPolicy struct{}

func (WrapPolicy) OnTaskList(a *Adapter, entries []TaskListEntry) {
	adapterLog.Warnf("unexpected TASKLIST received in Wrap role, ignoring")
}

func (WrapPolicy) OnQuit(a *Adapter) {
	a.Close()
}

func (WrapPolicy) OnFail(a *Adapter, err error) {
	adapterLog.Warnf("upstream adapter failed: %v", err)
	a.Close()
}
