package schedcore

import (
	"testing"
	"time"
)

func TestSimClientDeliversFinishedAtTarget(t *testing.T) {
	db := NewTaskDatabase()
	r := NewResource("cpu0", db, RunUntilProgressSuspend, nil, false)
	resources := map[string]*Resource{"cpu0": r}
	task := NewTask("app", 10, 4, []string{"cpu0"}, nil)
	if err := db.RegisterTaskList([]*Task{task}); err != nil {
		t.Fatalf("RegisterTaskList: %v", err)
	}

	epoch := time.Unix(0, 0).UTC()
	clock := NewSimClock(epoch)
	client := NewSimClient(clock, resources, db, func(taskID int, resource string) SimTaskProfile {
		return SimTaskProfile{CheckpointsPerSec: 2}
	})
	task.SetClient(client)

	r.Start(&ScheduleEntry{TaskID: task.Id, StopCheckpoint: 4})
	clock.RunUntilEmpty()

	if got := task.GetState(); got != TaskPost {
		t.Fatalf("task state = %s, want POST", got)
	}
	if got := task.GetProgress(); got != 4 {
		t.Fatalf("progress = %d, want 4", got)
	}
	// 4 checkpoints at 2/sec = 2s simulated.
	if got := clock.Now(); !got.Equal(epoch.Add(2 * time.Second)) {
		t.Fatalf("Now() = %s, want epoch+2s", got)
	}
}

func TestSimClientDeliversSuspendedBelowTarget(t *testing.T) {
	db := NewTaskDatabase()
	r := NewResource("cpu0", db, RunUntilProgressSuspend, nil, false)
	resources := map[string]*Resource{"cpu0": r}
	task := NewTask("app", 10, 8, []string{"cpu0"}, nil)
	if err := db.RegisterTaskList([]*Task{task}); err != nil {
		t.Fatalf("RegisterTaskList: %v", err)
	}

	clock := NewSimClock(time.Unix(0, 0).UTC())
	client := NewSimClient(clock, resources, db, func(taskID int, resource string) SimTaskProfile {
		return SimTaskProfile{CheckpointsPerSec: 1}
	})
	task.SetClient(client)

	r.Start(&ScheduleEntry{TaskID: task.Id, StartCheckpoint: 0, StopCheckpoint: 3})
	clock.RunUntilEmpty()

	if got := task.GetState(); got != TaskSuspended {
		t.Fatalf("task state = %s, want SUSPENDED", got)
	}
	if got := task.GetProgress(); got != 3 {
		t.Fatalf("progress = %d, want 3", got)
	}
}

func TestSimClientSendSuspendCancelsPendingYield(t *testing.T) {
	db := NewTaskDatabase()
	r := NewResource("cpu0", db, RunUntilProgressSuspend, nil, false)
	resources := map[string]*Resource{"cpu0": r}
	task := NewTask("app", 10, 10, []string{"cpu0"}, nil)
	if err := db.RegisterTaskList([]*Task{task}); err != nil {
		t.Fatalf("RegisterTaskList: %v", err)
	}

	clock := NewSimClock(time.Unix(0, 0).UTC())
	client := NewSimClient(clock, resources, db, func(taskID int, resource string) SimTaskProfile {
		return SimTaskProfile{CheckpointsPerSec: 1}
	})
	task.SetClient(client)

	r.Start(&ScheduleEntry{TaskID: task.Id, StopCheckpoint: 10})
	// STARTED fires at +0 and schedules the +10s yield (10 checkpoints at
	// 1/sec); this suspend request lands at +3s, before that yield.
	clock.After(3*time.Second, func() {
		client.SendSuspend(task.Id)
	})
	clock.RunUntilEmpty()

	if got := task.GetState(); got != TaskSuspended {
		t.Fatalf("task state = %s, want SUSPENDED", got)
	}
	if got := task.GetProgress(); got < 2 || got > 4 {
		t.Fatalf("progress = %d, want roughly 3 (elapsed seconds at 1 cp/sec)", got)
	}
}

func TestSimClientSendStartOnUnknownResourceIsNoop(t *testing.T) {
	db := NewTaskDatabase()
	resources := map[string]*Resource{}
	clock := NewSimClock(time.Unix(0, 0).UTC())
	client := NewSimClient(clock, resources, db, nil)

	if err := client.SendStart(1, "nonexistent", 4, OnEndSuspend); err != nil {
		t.Fatalf("SendStart on unknown resource returned an error: %v", err)
	}
	clock.RunUntilEmpty()
}
