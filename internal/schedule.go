// Schedule: the output of an Algorithm run (C5).

package schedcore

import (
	"encoding/json"
	"time"

	"github.com/docker/go-units"
)

// ScheduleEntry is one task's slot in a resource's queue.
type ScheduleEntry struct {
	TaskID         int
	StartCheckpoint int
	StopCheckpoint  int

	// Filled in by ComputeTimes from the schedule's Estimator:
	EstimatedDuration  time.Duration
	// EstimatedIdleAfter is the gap between the previous entry in this
	// resource's queue finishing and this one starting (0 for an entry with
	// no predecessor in the queue) -- the same interval runEndHook reports
	// to the end-hook as "estimated gap until" this entry's task.
	EstimatedIdleAfter time.Duration
}

// Estimator derives work/idle time estimates for a schedule entry. Pluggable
// so different algorithms can ship their own cost model; a zero-value
// NullEstimator is used when none is configured.
type Estimator interface {
	// EstimateDuration returns the expected wall-clock time to advance task
	// from startCheckpoint to stopCheckpoint.
	EstimateDuration(task TaskSnapshot, startCheckpoint, stopCheckpoint int) time.Duration
	// EstimateIdleGap returns the expected idle time a resource sits
	// between finishing prev and starting next in the same queue (e.g.
	// accelerator reconfiguration time when switching applications).
	EstimateIdleGap(prev, next TaskSnapshot) time.Duration
}

type NullEstimator struct{}

func (NullEstimator) EstimateDuration(TaskSnapshot, int, int) time.Duration     { return 0 }
func (NullEstimator) EstimateIdleGap(prev, next TaskSnapshot) time.Duration { return 0 }

var scheduleIDCounter int64

// Schedule is immutable after creation: an Executor may safely hold a
// pointer into an old one while a new one is installed.
type Schedule struct {
	Id        int64
	Algorithm string
	ComputedAt time.Time

	// Per-resource ordered queues, in execution order.
	entries map[string][]*ScheduleEntry

	estimator Estimator
}

func NewSchedule(algorithm string, entries map[string][]*ScheduleEntry, estimator Estimator) *Schedule {
	scheduleIDCounter++
	if estimator == nil {
		estimator = NullEstimator{}
	}
	return &Schedule{
		Id:         scheduleIDCounter,
		Algorithm:  algorithm,
		ComputedAt: time.Now(),
		entries:    entries,
		estimator:  estimator,
	}
}

// NextEntry returns the entry at position offset in resource's queue, or
// nil if the queue is shorter.
func (s *Schedule) NextEntry(resource string, offset int) *ScheduleEntry {
	if s == nil {
		return nil
	}
	q := s.entries[resource]
	if offset < 0 || offset >= len(q) {
		return nil
	}
	return q[offset]
}

// Queue returns the full ordered entry list for resource (read-only; the
// schedule is immutable, callers must not mutate the returned slice).
func (s *Schedule) Queue(resource string) []*ScheduleEntry {
	if s == nil {
		return nil
	}
	return s.entries[resource]
}

// ComputeTimes fills in EstimatedDuration/EstimatedIdleAfter for every entry
// using the schedule's Estimator and the task snapshots it was computed
// from. tasksByID must contain every task id referenced by the schedule.
func (s *Schedule) ComputeTimes(tasksByID map[int]TaskSnapshot) {
	for _, queue := range s.entries {
		var prevTask TaskSnapshot
		havePrev := false
		for _, entry := range queue {
			task, ok := tasksByID[entry.TaskID]
			if !ok {
				havePrev = false
				continue
			}
			entry.EstimatedDuration = s.estimator.EstimateDuration(task, entry.StartCheckpoint, entry.StopCheckpoint)
			if havePrev {
				entry.EstimatedIdleAfter = s.estimator.EstimateIdleGap(prevTask, task)
			} else {
				entry.EstimatedIdleAfter = 0
			}
			prevTask = task
			havePrev = true
		}
	}
}

type scheduleEntryJSON struct {
	TaskID             int   `json:"task_id"`
	StartCheckpoint    int   `json:"start_checkpoint"`
	StopCheckpoint     int   `json:"stop_checkpoint"`
	EstimatedDurationMs int64 `json:"estimated_duration_ms"`
	EstimatedIdleMs     int64 `json:"estimated_idle_ms"`
}

type scheduleJSON struct {
	Id         int64                          `json:"id"`
	Algorithm  string                         `json:"algorithm"`
	ComputedAt string                         `json:"computed_at"`
	Resources  map[string][]scheduleEntryJSON `json:"resources"`
}

// PrintJSON renders a stable JSON shape used by the event log. Durations
// are rendered in milliseconds only (estimated_duration_ms,
// estimated_idle_ms).
func (s *Schedule) PrintJSON() ([]byte, error) {
	out := scheduleJSON{
		Id:        s.Id,
		Algorithm: s.Algorithm,
		ComputedAt: s.ComputedAt.Format(time.RFC3339),
		Resources: make(map[string][]scheduleEntryJSON, len(s.entries)),
	}
	for resource, queue := range s.entries {
		entries := make([]scheduleEntryJSON, len(queue))
		for i, e := range queue {
			entries[i] = scheduleEntryJSON{
				TaskID:              e.TaskID,
				StartCheckpoint:     e.StartCheckpoint,
				StopCheckpoint:      e.StopCheckpoint,
				EstimatedDurationMs: e.EstimatedDuration.Milliseconds(),
				EstimatedIdleMs:     e.EstimatedIdleAfter.Milliseconds(),
			}
		}
		out.Resources[resource] = entries
	}
	return json.Marshal(out)
}

// HumanDuration formats a duration the way schedule summaries are logged,
// e.g. "2 seconds" or "About a minute", via docker/go-units.
func HumanDuration(d time.Duration) string {
	return units.HumanDuration(d)
}
