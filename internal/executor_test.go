package schedcore

import (
	"testing"
	"time"
)

func TestExecutorStartsReadyTaskOnSchedule(t *testing.T) {
	db := NewTaskDatabase()
	r := NewResource("cpu0", db, RunUntilProgressSuspend, nil, false)
	client := &fakeClient{}
	task := NewTask("app", 10, 4, []string{"cpu0"}, nil)
	if err := db.RegisterTaskList([]*Task{task}); err != nil {
		t.Fatalf("RegisterTaskList: %v", err)
	}
	task.SetClient(client)

	exec := NewExecutor(db, []*Resource{r}, false)
	exec.Start()
	defer exec.Stop()

	sched := NewSchedule("fifo", map[string][]*ScheduleEntry{
		"cpu0": {{TaskID: task.Id, StartCheckpoint: 0, StopCheckpoint: 4}},
	}, nil)
	exec.InstallSchedule(sched)

	waitForCondition(t, time.Second, func() bool { return task.GetState() == TaskStarting })

	if len(client.started) != 1 || client.started[0] != task.Id {
		t.Fatalf("client.started = %v, want [%d]", client.started, task.Id)
	}
}

func TestExecutorSuspendsTaskNoLongerScheduled(t *testing.T) {
	db := NewTaskDatabase()
	r := NewResource("cpu0", db, RunUntilProgressSuspend, nil, false)
	client := &fakeClient{}
	task := NewTask("app", 10, 4, []string{"cpu0"}, nil)
	if err := db.RegisterTaskList([]*Task{task}); err != nil {
		t.Fatalf("RegisterTaskList: %v", err)
	}
	task.SetClient(client)

	exec := NewExecutor(db, []*Resource{r}, false)
	exec.Start()
	defer exec.Stop()

	sched1 := NewSchedule("fifo", map[string][]*ScheduleEntry{
		"cpu0": {{TaskID: task.Id, StopCheckpoint: 4}},
	}, nil)
	exec.InstallSchedule(sched1)
	waitForCondition(t, time.Second, func() bool { return task.GetState() == TaskStarting })
	r.OnTaskStarted(task.Id)
	waitForCondition(t, time.Second, func() bool { return task.GetState() == TaskRunning })

	// Installing a schedule with nothing for cpu0 should suspend the
	// currently-running task.
	sched2 := NewSchedule("fifo", map[string][]*ScheduleEntry{}, nil)
	exec.InstallSchedule(sched2)

	waitForCondition(t, time.Second, func() bool { return len(client.suspended) == 1 })
	if client.suspended[0] != task.Id {
		t.Fatalf("client.suspended = %v, want [%d]", client.suspended, task.Id)
	}
}

func TestExecutorSkipsTaskWithUnmetDependency(t *testing.T) {
	db := NewTaskDatabase()
	r := NewResource("cpu0", db, RunUntilProgressSuspend, nil, false)
	client := &fakeClient{}
	tasks := []*Task{
		NewTask("root", 10, 4, []string{"cpu0"}, nil),
		NewTask("dependent", 10, 4, []string{"cpu0"}, []int{0}),
	}
	if err := db.RegisterTaskList(tasks); err != nil {
		t.Fatalf("RegisterTaskList: %v", err)
	}
	for _, task := range tasks {
		task.SetClient(client)
	}

	exec := NewExecutor(db, []*Resource{r}, false)
	exec.Start()
	defer exec.Stop()

	sched := NewSchedule("fifo", map[string][]*ScheduleEntry{
		"cpu0": {{TaskID: tasks[1].Id, StopCheckpoint: 4}},
	}, nil)
	exec.InstallSchedule(sched)

	time.Sleep(50 * time.Millisecond)
	if got := tasks[1].GetState(); got != TaskPre {
		t.Fatalf("dependent task state = %s, want PRE (dependency not satisfied)", got)
	}
	if len(client.started) != 0 {
		t.Fatalf("client.started = %v, want none (dependency not satisfied)", client.started)
	}
}

func TestExecutorNotifyResourceChangedTriggersReconcile(t *testing.T) {
	db := NewTaskDatabase()
	r := NewResource("cpu0", db, RunUntilProgressSuspend, nil, false)
	exec := NewExecutor(db, []*Resource{r}, false)
	exec.Start()
	defer exec.Stop()

	before := exec.LoopCount()
	exec.NotifyResourceChanged()
	waitForCondition(t, time.Second, func() bool { return exec.LoopCount() > before })
}
