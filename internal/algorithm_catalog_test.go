package schedcore

import "testing"

func TestFIFOAlgorithmAssignsIdleResourceFirst(t *testing.T) {
	algo := FIFOAlgorithm{}
	tasks := []TaskSnapshot{
		{Id: 0, Checkpoints: 4, ValidOn: []string{"cpu0"}, State: TaskPre},
		{Id: 1, Checkpoints: 4, ValidOn: []string{"cpu0"}, State: TaskPre},
	}
	flag := &InterruptFlag{}
	sched := algo.Compute(tasks, map[string]RunningTask{}, flag, false)
	if sched == nil {
		t.Fatalf("Compute returned nil")
	}
	entry := sched.NextEntry("cpu0", 0)
	if entry == nil || entry.TaskID != 0 {
		t.Fatalf("expected task 0 assigned first to cpu0, got %+v", entry)
	}
}

func TestFIFOAlgorithmSkipsBusyResource(t *testing.T) {
	algo := FIFOAlgorithm{}
	tasks := []TaskSnapshot{
		{Id: 1, Checkpoints: 4, ValidOn: []string{"cpu0"}, State: TaskPre},
	}
	running := map[string]RunningTask{
		"cpu0": {Valid: true, Task: TaskSnapshot{Id: 0, Checkpoints: 4}},
	}
	flag := &InterruptFlag{}
	sched := algo.Compute(tasks, running, flag, false)
	if entry := sched.NextEntry("cpu0", 0); entry != nil {
		t.Fatalf("expected no entry for busy cpu0, got %+v", entry)
	}
}

func TestFIFOAlgorithmRespectsInterrupt(t *testing.T) {
	algo := FIFOAlgorithm{}
	tasks := []TaskSnapshot{
		{Id: 0, Checkpoints: 4, ValidOn: []string{"cpu0"}, State: TaskPre},
	}
	flag := &InterruptFlag{}
	flag.Set()
	if sched := algo.Compute(tasks, map[string]RunningTask{}, flag, false); sched != nil {
		t.Fatalf("Compute should return nil promptly once interrupt is set")
	}
}

func TestFIFOAlgorithmIgnoresNonReadyTasks(t *testing.T) {
	algo := FIFOAlgorithm{}
	tasks := []TaskSnapshot{
		{Id: 0, Checkpoints: 4, ValidOn: []string{"cpu0"}, State: TaskRunning},
		{Id: 1, Checkpoints: 4, ValidOn: []string{"cpu0"}, State: TaskPost},
	}
	flag := &InterruptFlag{}
	sched := algo.Compute(tasks, map[string]RunningTask{}, flag, false)
	if entry := sched.NextEntry("cpu0", 0); entry != nil {
		t.Fatalf("expected no entry for already-active/terminal tasks, got %+v", entry)
	}
}

func TestMCTAlgorithmSkipsOccupiedAndUsesIdleResource(t *testing.T) {
	algo := MCTAlgorithm{}
	tasks := []TaskSnapshot{
		{Id: 2, Checkpoints: 4, ValidOn: []string{"cpu0", "cpu1"}, State: TaskPre},
	}
	running := map[string]RunningTask{
		"cpu0": {Valid: true, Task: TaskSnapshot{Checkpoints: 10, Progress: 1}}, // 9 queued
		"cpu1": {Valid: true, Task: TaskSnapshot{Checkpoints: 10, Progress: 9}}, // 1 queued
	}
	// Both resources report "occupied" (Valid running task), so MCT should
	// skip them for immediate placement; use an idle cpu2 to confirm load
	// comparison among idle options instead.
	tasks = append(tasks, TaskSnapshot{Id: 3, Checkpoints: 4, ValidOn: []string{"cpu2", "cpu3"}, State: TaskPre})
	flag := &InterruptFlag{}
	sched := algo.Compute(tasks, running, flag, false)

	if entry := sched.NextEntry("cpu0", 0); entry != nil {
		t.Fatalf("task 2 should not be placed on occupied cpu0, got %+v", entry)
	}
	entry3 := sched.NextEntry("cpu2", 0)
	if entry3 == nil || entry3.TaskID != 3 {
		t.Fatalf("expected task 3 placed on idle cpu2, got %+v", entry3)
	}
}

func TestMCTAlgorithmNoValidIdleResourceSkipsTask(t *testing.T) {
	algo := MCTAlgorithm{}
	tasks := []TaskSnapshot{
		{Id: 0, Checkpoints: 4, ValidOn: []string{"cpu0"}, State: TaskPre},
	}
	running := map[string]RunningTask{
		"cpu0": {Valid: true, Task: TaskSnapshot{Checkpoints: 4}},
	}
	flag := &InterruptFlag{}
	sched := algo.Compute(tasks, running, flag, false)
	if entry := sched.NextEntry("cpu0", 0); entry != nil {
		t.Fatalf("expected no placement when the only valid resource is occupied, got %+v", entry)
	}
}

func TestAlgorithmRegistryLookup(t *testing.T) {
	if _, err := NewAlgorithm("nonexistent"); err == nil {
		t.Fatalf("expected an error for an unregistered algorithm name")
	}
	algo, err := NewAlgorithm("fifo")
	if err != nil {
		t.Fatalf("NewAlgorithm(fifo): %v", err)
	}
	if algo.Name() != "fifo" {
		t.Fatalf("Name() = %q, want fifo", algo.Name())
	}
}

func TestInterruptFlagSetResetIsSet(t *testing.T) {
	var flag InterruptFlag
	if flag.IsSet() {
		t.Fatalf("zero-value InterruptFlag reports set")
	}
	flag.Set()
	if !flag.IsSet() {
		t.Fatalf("IsSet() false after Set()")
	}
	flag.Reset()
	if flag.IsSet() {
		t.Fatalf("IsSet() true after Reset()")
	}
}
