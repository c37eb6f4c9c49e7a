// Simulation driver orchestration (C12): build the identical Computer/
// Executor/Resource/Feedback core the real transport drives, register a
// scenario's tasks against a SimClient instead of a socket, and pump the
// SimClock until every task reaches POST (or a deadline is hit, signalling
// a scenario that can never complete -- e.g. circular dependencies or a
// task with no live resource).

package schedcore

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"
)

var simRunLog = NewCompLogger("simrun")

// SimTaskSpec is one task in a scenario file, list-local indices for
// Dependencies exactly like a TASKLIST wire record.
type SimTaskSpec struct {
	Name              string  `json:"name"`
	Size              int64   `json:"size"`
	Checkpoints       int     `json:"checkpoints"`
	Resources         []string `json:"resources"`
	Dependencies      []int   `json:"dependencies"`
	CheckpointsPerSec float64 `json:"checkpoints_per_sec"`
}

// SimScenario is the top-level shape of a scenario file: the resource set
// to schedule over and one or more task lists (applications), submitted to
// the Task Database in order.
type SimScenario struct {
	Algorithm     string           `json:"algorithm"`
	Resources     []ResourceConfig `json:"resources"`
	TaskLists     [][]SimTaskSpec  `json:"task_lists"`
	MaxSimSeconds float64          `json:"max_sim_seconds"`
}

// LoadScenario reads a scenario file (JSON), the schedsim analogue of
// LoadConfig.
func LoadScenario(path string) (*SimScenario, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	scenario := &SimScenario{}
	if err := json.Unmarshal(buf, scenario); err != nil {
		return nil, fmt.Errorf("file %q: %v", path, err)
	}
	if scenario.Algorithm == "" {
		scenario.Algorithm = SCHEDULER_CONFIG_ALGORITHM_DEFAULT
	}
	return scenario, nil
}

// SimResult is what a completed (or abandoned) run reports back.
type SimResult struct {
	Completed    bool
	SimDuration  time.Duration
	TaskCount    int
	FinishedCount int
}

// RunSimulation wires one scenario's Resources/Computer/Executor/Feedback,
// registers every task list against an in-process SimClient, and pumps the
// virtual clock to completion.
func RunSimulation(scenario *SimScenario) (*SimResult, error) {
	db := NewTaskDatabase()

	resources := make(map[string]*Resource, len(scenario.Resources))
	resourceList := make([]*Resource, 0, len(scenario.Resources))
	for _, rc := range scenario.Resources {
		r := NewResource(rc.Name, db, RunUntilProgressSuspend, nil, rc.RetryEndHookOnIdle)
		resources[rc.Name] = r
		resourceList = append(resourceList, r)
	}

	algorithm, err := NewAlgorithm(scenario.Algorithm)
	if err != nil {
		return nil, err
	}

	feedback := NewFeedback(resourceList)
	for _, r := range resourceList {
		r.SetNotifyFeedback(feedback.GotProgress)
	}
	computer := NewComputer(db, feedback, resourceList, algorithm, ModeGetProgress, 0)
	executor := NewExecutor(db, resourceList, true)
	computer.SetExecutor(executor)
	executor.SetComputer(computer)

	epoch := time.Unix(0, 0).UTC()
	clock := NewSimClock(epoch)
	profiles := make(map[string]float64) // task name -> rate (same on every resource), filled per task below
	client := NewSimClient(clock, resources, db, func(taskID int, resource string) SimTaskProfile {
		t := db.TaskByID(taskID)
		if t == nil {
			return SimTaskProfile{}
		}
		if rate, ok := profiles[t.Name]; ok {
			return SimTaskProfile{CheckpointsPerSec: rate}
		}
		return SimTaskProfile{}
	})

	taskCount := 0
	for _, list := range scenario.TaskLists {
		tasks := make([]*Task, len(list))
		for i, spec := range list {
			tasks[i] = NewTask(spec.Name, spec.Size, spec.Checkpoints, spec.Resources, spec.Dependencies)
			if spec.CheckpointsPerSec > 0 {
				profiles[spec.Name] = spec.CheckpointsPerSec
			}
		}
		if err := db.RegisterTaskList(tasks); err != nil {
			return nil, fmt.Errorf("task list: %v", err)
		}
		for _, t := range tasks {
			t.SetClient(client)
		}
		taskCount += len(tasks)
	}

	eventLog.Resources(resourceNames(resourceList))
	eventLog.Algorithm(algorithm.Name())
	eventLog.SchedulerStart(algorithm.Name(), resourceNames(resourceList))
	defer eventLog.SchedulerStop()

	computer.Start()
	executor.Start()
	defer executor.Stop()
	defer computer.Stop()

	computer.ComputeSchedule(true)

	maxSim := scenario.MaxSimSeconds
	if maxSim <= 0 {
		maxSim = 24 * 3600
	}
	deadline := epoch.Add(time.Duration(maxSim * float64(time.Second)))

	realDeadline := time.Now().Add(10 * time.Second)
	for !db.AllDone() && time.Now().Before(realDeadline) {
		clock.RunUntilEmpty()
		if clock.Now().After(deadline) {
			simRunLog.Warnf("scenario exceeded max_sim_seconds=%.0f without completing", maxSim)
			break
		}
		if !clock.Pending() {
			// Give the Executor goroutine a chance to react to the batch of
			// On* calls just delivered and arm the next SendStart, which
			// posts new clock events asynchronously.
			runtime.Gosched()
			time.Sleep(time.Millisecond)
		}
	}

	finished := 0
	for i := 0; i < taskCount; i++ {
		if t := db.TaskByID(i); t != nil && t.GetState() == TaskPost {
			finished++
		}
	}

	return &SimResult{
		Completed:     db.AllDone(),
		SimDuration:   clock.Now().Sub(epoch),
		TaskCount:     taskCount,
		FinishedCount: finished,
	}, nil
}

func resourceNames(resources []*Resource) []string {
	out := make([]string, len(resources))
	for i, r := range resources {
		out[i] = r.Name
	}
	return out
}
