// Task Database: registry of every task ever submitted (C1).

package schedcore

import (
	"fmt"
	"sync"

	"github.com/huandu/go-clone"
)

var dbLog = NewCompLogger("database")

// TaskDatabase mints global ids, resolves id->task, and tracks the number
// of applications (task-list groups) registered so far. Tasks are never
// removed; abort() only flips their state.
type TaskDatabase struct {
	mu       sync.Mutex
	tasks    []*Task
	byID     map[int]*Task
	appCount int
}

func NewTaskDatabase() *TaskDatabase {
	return &TaskDatabase{
		byID: make(map[int]*Task),
	}
}

// RegisterTaskList assigns monotonically increasing global ids to a group
// of tasks submitted together (one "application"), rewrites each
// predecessor index from list-local to global, and materializes the
// successor lists by scanning the group. Fails only if a predecessor index
// is negative or not strictly less than the task's own index in the list.
func (db *TaskDatabase) RegisterTaskList(tasks []*Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	base := len(db.tasks)
	for i, t := range tasks {
		for _, p := range t.Predecessors {
			if p < 0 || p >= i {
				return fmt.Errorf("task %d: predecessor index %d is not strictly less than %d", i, p, i)
			}
		}
	}

	for i, t := range tasks {
		t.Id = base + i
		global := make([]int, len(t.Predecessors))
		for j, p := range t.Predecessors {
			global[j] = base + p
		}
		t.Predecessors = global
	}

	for _, t := range tasks {
		for _, predID := range t.Predecessors {
			pred := tasks[predID-base]
			pred.Successors = append(pred.Successors, t.Id)
		}
	}

	for _, t := range tasks {
		db.tasks = append(db.tasks, t)
		db.byID[t.Id] = t
		eventLog.NewTask(t.Id, t.Name)
	}
	db.appCount++

	dbLog.Infof("registered %d tasks (app #%d)", len(tasks), db.appCount)
	return nil
}

func (db *TaskDatabase) TaskByID(id int) *Task {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.byID[id]
}

// AppCount is the number of task lists (applications) registered so far,
// used by Computer's required_applications gate.
func (db *TaskDatabase) AppCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.appCount
}

// Abort transitively aborts task and every transitive successor
// (dependents), in breadth-first order over the forward graph. Idempotent:
// tasks already terminal are skipped without recursing again.
func (db *TaskDatabase) Abort(task *Task) {
	if task == nil {
		return
	}
	seen := map[int]bool{}
	queue := []*Task{task}
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		if seen[t.Id] {
			continue
		}
		seen[t.Id] = true
		if t.GetState().Terminal() {
			continue
		}
		t.Abort()
		for _, succID := range t.Successors {
			if succ := db.TaskByID(succID); succ != nil {
				queue = append(queue, succ)
			}
		}
	}
}

// CopyUnfinished returns a deep-copied snapshot of every non-terminal task,
// suitable for handing to an Algorithm: a deep copy with no live
// pointers. go-clone guarantees the nested slices are independent of the
// live task, not merely the top-level struct.
func (db *TaskDatabase) CopyUnfinished() []TaskSnapshot {
	db.mu.Lock()
	tasks := make([]*Task, len(db.tasks))
	copy(tasks, db.tasks)
	db.mu.Unlock()

	out := make([]TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		if t.GetState().Terminal() {
			continue
		}
		out = append(out, clone.Clone(t.Snapshot()).(TaskSnapshot))
	}
	return out
}

// AllDone reports whether every registered task has reached POST. It
// reports false when no task has been registered.
func (db *TaskDatabase) AllDone() bool {
	db.mu.Lock()
	tasks := make([]*Task, len(db.tasks))
	copy(tasks, db.tasks)
	db.mu.Unlock()

	for _, t := range tasks {
		if t.GetState() != TaskPost {
			return false
		}
	}
	return len(tasks) > 0
}

// DependenciesReady reports whether every predecessor of task has reached
// POST, the sole state that satisfies a successor's dependency predicate.
func (db *TaskDatabase) DependenciesReady(task *Task) bool {
	for _, predID := range task.Predecessors {
		pred := db.TaskByID(predID)
		if pred == nil || pred.GetState() != TaskPost {
			return false
		}
	}
	return true
}

// Len is the total number of registered tasks, terminal or not.
func (db *TaskDatabase) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.tasks)
}
