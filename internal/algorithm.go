// Algorithm contract (C4) and the registry plugins are looked up from.

package schedcore

import (
	"fmt"
	"sync/atomic"
)

// RunningTask is what an Algorithm sees for the task currently active on a
// resource, or the zero value (Valid == false) if the resource is idle.
type RunningTask struct {
	Valid bool
	Task  TaskSnapshot
}

// Algorithm is the pure-function contract every placement algorithm must
// satisfy. Implementations must not mutate tasks or
// resources and must poll interrupt at their own discretion, returning nil
// promptly once it is set.
type Algorithm interface {
	Name() string
	Compute(
		tasks []TaskSnapshot,
		running map[string]RunningTask,
		interrupt *InterruptFlag,
		progressWasUpdated bool,
	) *Schedule
}

// InterruptFlag is the cooperative cancellation signal threaded through a
// Compute call. Safe for concurrent Set/IsSet from the Computer goroutine
// while an algorithm polls it on another.
type InterruptFlag struct {
	flag atomic.Bool
}

func (f *InterruptFlag) Set() {
	f.flag.Store(true)
}

func (f *InterruptFlag) Reset() {
	f.flag.Store(false)
}

func (f *InterruptFlag) IsSet() bool {
	return f.flag.Load()
}

var algorithmRegistry = map[string]func() Algorithm{}

// RegisterAlgorithm adds a constructor to the catalog so it can be selected
// by name from configuration (the `scheduler:` key).
func RegisterAlgorithm(name string, ctor func() Algorithm) {
	algorithmRegistry[name] = ctor
}

// NewAlgorithm instantiates a registered algorithm by name.
func NewAlgorithm(name string) (Algorithm, error) {
	ctor, ok := algorithmRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q", name)
	}
	return ctor(), nil
}

func init() {
	RegisterAlgorithm("fifo", func() Algorithm { return &FIFOAlgorithm{} })
	RegisterAlgorithm("mct", func() Algorithm { return &MCTAlgorithm{} })
}
