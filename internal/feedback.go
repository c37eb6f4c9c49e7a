// Feedback Rendezvous (C3): broadcasts a progress-sample request to every
// resource and blocks until each has either reported or confirmed idle.

package schedcore

import "sync"

var feedbackLog = NewCompLogger("feedback")

// Feedback coordinates a single get_progress() round across all resources.
// Uses the same sync.Cond-over-shared-counter shape as a credit-based
// rate limiter, adapted here from "wait for available credit" to "wait
// for all resources done".
type Feedback struct {
	mu        sync.Mutex
	cond      *sync.Cond
	resources []*Resource
	done      map[string]bool
	round     int
	shutdown  bool
}

func NewFeedback(resources []*Resource) *Feedback {
	f := &Feedback{
		resources: resources,
		done:      make(map[string]bool, len(resources)),
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// GetProgress issues request_progress to every resource and blocks until
// all are done. Cancellable only by Shutdown.
func (f *Feedback) GetProgress() {
	f.mu.Lock()
	if f.shutdown {
		f.mu.Unlock()
		return
	}
	f.round++
	names := make([]string, 0, len(f.resources))
	for _, r := range f.resources {
		f.done[r.Name] = false
		names = append(names, r.Name)
	}
	f.mu.Unlock()

	eventLog.FeedbackGetProgress(names)

	for _, r := range f.resources {
		noSampleNeeded := r.RequestProgress()
		if noSampleNeeded {
			f.GotProgress(r.Name)
		}
	}

	f.mu.Lock()
	for !f.allDoneLocked() && !f.shutdown {
		f.cond.Wait()
	}
	f.mu.Unlock()
}

// GotProgress is the wake-up callback invoked by a Resource once it has
// either sampled progress or confirmed it has nothing running.
func (f *Feedback) GotProgress(resource string) {
	f.mu.Lock()
	f.done[resource] = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

func (f *Feedback) allDoneLocked() bool {
	for _, done := range f.done {
		if !done {
			return false
		}
	}
	return true
}

// Shutdown unblocks any in-progress GetProgress call; used on process
// teardown.
func (f *Feedback) Shutdown() {
	f.mu.Lock()
	f.shutdown = true
	f.cond.Broadcast()
	f.mu.Unlock()
}
