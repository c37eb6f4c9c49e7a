// Reference algorithm catalog (C11): two purposefully simple placement
// algorithms, enough to exercise the Algorithm contract end to end without
// pretending to be MinMin/HEFT/Genetic/etc, which are explicitly
// leaves out of scope.

package schedcore

// FIFOAlgorithm places ready tasks on the first resource in their valid
// set that is currently idle, in task-id order. It never reorders or
// preempts; an already-running task keeps its resource.
type FIFOAlgorithm struct{}

func (FIFOAlgorithm) Name() string { return "fifo" }

func (a FIFOAlgorithm) Compute(
	tasks []TaskSnapshot,
	running map[string]RunningTask,
	interrupt *InterruptFlag,
	progressWasUpdated bool,
) *Schedule {
	busy := make(map[string]bool, len(running))
	for resource, rt := range running {
		if rt.Valid {
			busy[resource] = true
		}
	}

	entries := make(map[string][]*ScheduleEntry)
	for _, t := range tasks {
		if interrupt.IsSet() {
			return nil
		}
		if t.State != TaskPre && t.State != TaskSuspended {
			continue
		}
		for _, resource := range t.ValidOn {
			if busy[resource] {
				continue
			}
			entries[resource] = append(entries[resource], &ScheduleEntry{
				TaskID:          t.Id,
				StartCheckpoint: t.Progress,
				StopCheckpoint:  t.Checkpoints,
			})
			busy[resource] = true
			break
		}
	}
	return NewSchedule(a.Name(), entries, NullEstimator{})
}

// MCTAlgorithm (Minimum Completion Time) assigns each ready task to the
// valid resource with the fewest already-queued checkpoints of work,
// approximating completion time by checkpoint count in the absence of a
// real cost model.
type MCTAlgorithm struct{}

func (MCTAlgorithm) Name() string { return "mct" }

func (a MCTAlgorithm) Compute(
	tasks []TaskSnapshot,
	running map[string]RunningTask,
	interrupt *InterruptFlag,
	progressWasUpdated bool,
) *Schedule {
	load := make(map[string]int)
	for resource, rt := range running {
		if rt.Valid {
			load[resource] += rt.Task.Checkpoints - rt.Task.Progress
		}
	}

	entries := make(map[string][]*ScheduleEntry)
	occupied := make(map[string]bool, len(running))
	for resource, rt := range running {
		if rt.Valid {
			occupied[resource] = true
		}
	}

	for _, t := range tasks {
		if interrupt.IsSet() {
			return nil
		}
		if t.State != TaskPre && t.State != TaskSuspended {
			continue
		}
		best, bestLoad := "", -1
		for _, resource := range t.ValidOn {
			if occupied[resource] {
				continue
			}
			if bestLoad < 0 || load[resource] < bestLoad {
				best, bestLoad = resource, load[resource]
			}
		}
		if best == "" {
			continue
		}
		entries[best] = append(entries[best], &ScheduleEntry{
			TaskID:          t.Id,
			StartCheckpoint: t.Progress,
			StopCheckpoint:  t.Checkpoints,
		})
		occupied[best] = true
		load[best] += t.Checkpoints - t.Progress
	}
	return NewSchedule(a.Name(), entries, NullEstimator{})
}
