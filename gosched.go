// The public face of the scheduler for the users of this package.

package gosched

import (
	"github.com/sirupsen/logrus"

	schedcore "github.com/aw32/gosched/internal"
)

type (
	SchedulerConfig = schedcore.SchedulerConfig
	ResourceConfig  = schedcore.ResourceConfig
	LoggerConfig    = schedcore.LoggerConfig
	MeasureConfig   = schedcore.MeasureConfig
	Scheduler       = schedcore.Scheduler
	Algorithm       = schedcore.Algorithm
	RunningTask     = schedcore.RunningTask
	Schedule        = schedcore.Schedule
	InterruptFlag   = schedcore.InterruptFlag
	SimScenario     = schedcore.SimScenario
	SimResult       = schedcore.SimResult
	SimTaskSpec     = schedcore.SimTaskSpec
)

// Update build info: version (semver) and git info. Call this before Run,
// typically from an init() in main.
func UpdateBuildInfo(version, gitInfo string) {
	schedcore.Version = version
	schedcore.GitInfo = gitInfo
}

// The root logger. Needed only for tests where the logger is captured (see
// testutils/log_collector.go); its actual type is obscured.
func GetRootLogger() any { return schedcore.RootLogger }

// Create new component logger w/ comp=compName field.
func NewCompLogger(comp string) *logrus.Entry {
	return schedcore.NewCompLogger(comp)
}

// When logging files, the log file name is derived from the file path,
// typically relative to the module root dir. The logger maintains a list
// of prefixes to strip and this adds the caller's module path to it,
// inferred from the caller's file path going up N dirs. Typically called
// from main.init(), with upNDirs=0 when main.go is at the module root.
func AddCallerSrcPathPrefixToLogger(upNDirs int) {
	schedcore.AddCallerSrcPathPrefixToLogger(upNDirs, 1)
}

// RegisterAlgorithm adds a placement algorithm to the catalog under the
// given name, for selection via scheduler_config.scheduler. Call from an
// init() before Run.
func RegisterAlgorithm(name string, newAlgorithm func() schedcore.Algorithm) {
	schedcore.RegisterAlgorithm(name, newAlgorithm)
}

// NewSchedulerFromConfig builds a Scheduler's components (Task Database,
// Resources, Feedback, Computer, Executor, Collector) without starting any
// goroutines or listeners. Exposed for the simulation driver, which starts
// the Computer/Executor but drives tasks through an in-process client
// instead of a socket.
func NewSchedulerFromConfig(cfg *SchedulerConfig, resources []ResourceConfig) (*Scheduler, error) {
	return schedcore.NewSchedulerFromConfig(cfg, resources)
}

func DefaultSchedulerConfig() *SchedulerConfig {
	return schedcore.DefaultSchedulerConfig()
}

func LoadConfig(cfgFile string, buf []byte) (*SchedulerConfig, []ResourceConfig, error) {
	return schedcore.LoadConfig(cfgFile, buf)
}

func ResolveSocketPath(cfg *SchedulerConfig) string {
	return schedcore.ResolveSocketPath(cfg)
}

// LoadScenario reads a schedsim scenario file (resources + task lists).
func LoadScenario(path string) (*SimScenario, error) {
	return schedcore.LoadScenario(path)
}

// RunSimulation wires a scenario's Computer/Executor/Resource/Feedback core
// against an in-process fake client and a virtual clock, and pumps it to
// completion (or abandonment past its deadline).
func RunSimulation(scenario *SimScenario) (*SimResult, error) {
	return schedcore.RunSimulation(scenario)
}

// Run is the process entry point: parse flags, load config, wire the
// scheduler, block for a shutdown signal, and tear down gracefully. Its
// return value should be used as the process exit status.
func Run() int { return schedcore.Run() }
