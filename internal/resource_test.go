package schedcore

import (
	"testing"
	"time"
)

func newTestResource(t *testing.T, db *TaskDatabase) (*Resource, *fakeClient) {
	t.Helper()
	r := NewResource("cpu0", db, RunUntilProgressSuspend, nil, false)
	client := &fakeClient{}
	return r, client
}

func registerOneTask(t *testing.T, db *TaskDatabase, client *fakeClient) *Task {
	t.Helper()
	task := NewTask("app", 100, 4, []string{"cpu0"}, nil)
	if err := db.RegisterTaskList([]*Task{task}); err != nil {
		t.Fatalf("RegisterTaskList: %v", err)
	}
	task.SetClient(client)
	return task
}

// TestResourceNotifiesFeedbackOnSuspend guards against the regression where
// a resource logged a progress sample but never actually woke a pending
// Feedback.GetProgress() round, which deadlocks get_progress interrupt mode
// forever.
func TestResourceNotifiesFeedbackOnSuspend(t *testing.T) {
	db := NewTaskDatabase()
	r, client := newTestResource(t, db)
	task := registerOneTask(t, db, client)

	notified := make(chan string, 1)
	r.SetNotifyFeedback(func(resource string) { notified <- resource })

	entry := &ScheduleEntry{TaskID: task.Id, StartCheckpoint: 0, StopCheckpoint: 4}
	r.Start(entry)
	r.OnTaskStarted(task.Id)

	if ok := r.RequestProgress(); ok {
		t.Fatalf("RequestProgress reported no sample needed for a RUNNING task")
	}

	r.OnTaskSuspended(task.Id, 2)

	select {
	case got := <-notified:
		if got != "cpu0" {
			t.Fatalf("notifyFeedback called with %q, want cpu0", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("notifyFeedback was never called after OnTaskSuspended resolved an outstanding sample")
	}
}

func TestResourceNotifiesFeedbackOnAbortAndDisconnect(t *testing.T) {
	for _, name := range []string{"abort", "disconnect"} {
		t.Run(name, func(t *testing.T) {
			db := NewTaskDatabase()
			r, client := newTestResource(t, db)
			task := registerOneTask(t, db, client)

			notified := make(chan string, 1)
			r.SetNotifyFeedback(func(resource string) { notified <- resource })

			entry := &ScheduleEntry{TaskID: task.Id, StopCheckpoint: 4}
			r.Start(entry)
			r.OnTaskStarted(task.Id)
			if ok := r.RequestProgress(); ok {
				t.Fatalf("RequestProgress reported no sample needed")
			}

			if name == "abort" {
				r.OnTaskAborted(task.Id)
			} else {
				r.OnClientDisconnected(task.Id)
			}

			select {
			case <-notified:
			case <-time.After(time.Second):
				t.Fatalf("notifyFeedback was never called after %s resolved an outstanding sample", name)
			}

			if _, ok := r.ActiveTaskID(); ok {
				t.Fatalf("resource still reports an active task after %s", name)
			}
		})
	}
}

func TestResourceDoesNotNotifyFeedbackWithoutOutstandingSample(t *testing.T) {
	db := NewTaskDatabase()
	r, client := newTestResource(t, db)
	task := registerOneTask(t, db, client)

	called := false
	r.SetNotifyFeedback(func(resource string) { called = true })

	entry := &ScheduleEntry{TaskID: task.Id, StopCheckpoint: 4}
	r.Start(entry)
	r.OnTaskStarted(task.Id)
	// No RequestProgress happened: progressOutstanding is false.
	r.OnTaskSuspended(task.Id, 1)

	if called {
		t.Fatalf("notifyFeedback called without an outstanding progress request")
	}
}

func TestResourceStartRejectedAbortsTask(t *testing.T) {
	db := NewTaskDatabase()
	r, client := newTestResource(t, db)
	task := registerOneTask(t, db, client)
	client.rejectErr = errFakeReject

	notified := false
	r.SetNotifyExecutor(func() { notified = true })

	entry := &ScheduleEntry{TaskID: task.Id, StopCheckpoint: 4}
	r.Start(entry)

	if got := task.GetState(); got != TaskAborted {
		t.Fatalf("task state = %s, want ABORTED after a rejected start", got)
	}
	if _, ok := r.ActiveTaskID(); ok {
		t.Fatalf("resource reports an active task after a rejected start")
	}
	if !notified {
		t.Fatalf("Executor was not notified after a rejected start")
	}
}

var errFakeReject = fakeRejectError{}

type fakeRejectError struct{}

func (fakeRejectError) Error() string { return "client refused" }

// TestResourceTimerRemainingTracksElapsedTime guards against a regression
// where timerRemaining() was a hardcoded-zero stub: it must report roughly
// what's left of the current arming, not 0 and not the full duration.
func TestResourceTimerRemainingTracksElapsedTime(t *testing.T) {
	r := &Resource{}
	r.mu.Lock()
	r.armProgressTimer(200 * time.Millisecond)
	r.mu.Unlock()

	time.Sleep(80 * time.Millisecond)

	r.mu.Lock()
	remaining := r.timerRemaining()
	r.timer.Stop()
	r.mu.Unlock()

	if remaining <= 0 {
		t.Fatalf("timerRemaining() = %s after 80ms of a 200ms arm, want > 0", remaining)
	}
	if remaining >= 150*time.Millisecond {
		t.Fatalf("timerRemaining() = %s after 80ms of a 200ms arm, want roughly 120ms, not the full duration", remaining)
	}
}

// TestResourceUpdateRearmsTimerUsingRemainingNotZero guards against a
// regression where Update() rearmed the autonomous-suspend timer from a
// hardcoded zero remaining duration (remaining + delta == delta), which
// suspended the task far earlier than intended whenever an Update extended
// the estimate.
func TestResourceUpdateRearmsTimerUsingRemainingNotZero(t *testing.T) {
	db := NewTaskDatabase()
	r := NewResource("cpu0", db, RunUntilEstimationTimer, nil, false)
	client := &fakeClient{}
	task := registerOneTask(t, db, client)

	entry := &ScheduleEntry{TaskID: task.Id, StopCheckpoint: 3, EstimatedDuration: 300 * time.Millisecond}
	r.Start(entry)
	r.OnTaskStarted(task.Id)

	time.Sleep(100 * time.Millisecond)

	// remaining ~= 300ms - 100ms = 200ms; delta = 500ms - 300ms = 200ms.
	// Correct rearm: ~400ms. A remaining=0 bug would rearm for only the
	// 200ms delta.
	extended := &ScheduleEntry{TaskID: task.Id, StopCheckpoint: 4, EstimatedDuration: 500 * time.Millisecond}
	r.Update(extended)

	r.mu.Lock()
	newArm := r.timerFor
	r.mu.Unlock()

	if newArm < 300*time.Millisecond {
		t.Fatalf("rearmed timer duration = %s, want roughly 400ms (remaining + delta); a remaining=0 bug would give only the 200ms delta", newArm)
	}
}
