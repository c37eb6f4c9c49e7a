// The runner wires together the Task Database, Resource Coordinators,
// Feedback Rendezvous, Computer, Executor, and transport server into one
// running scheduler process, and owns command line parsing, config
// loading, signal handling and graceful shutdown -- the same "start every
// worker pool, block for a signal, tear down in order" shape used to
// launch any long-running collector process.

package schedcore

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bgp59/logrusx"
)

const (
	CONFIG_FLAG_NAME = "config"
)

var (
	// Build info, set via init() by the binary embedding this package.
	Version string
	GitInfo string
)

var (
	versionArg = flag.Bool(
		"version",
		false,
		FormatFlagUsage(`Print the version and exit`),
	)

	configFileArg = flag.String(
		CONFIG_FLAG_NAME,
		"",
		FormatFlagUsage(`Config file to load (default: $SCHED_CONFIG or "config.yml")`),
	)

	socketPathArg = flag.String(
		"socket",
		"",
		FormatFlagUsage(`Override the "scheduler_config.unixsocketpath" config setting`),
	)
)

func init() {
	logrusx.EnableLoggerArgs()
}

var runnerLog = NewCompLogger("runner")

// Scheduler bundles the running core so callers (e.g. the simulation
// driver) can drive or inspect it directly instead of only via Run().
type Scheduler struct {
	Config    *SchedulerConfig
	DB        *TaskDatabase
	Resources map[string]*Resource
	Feedback  *Feedback
	Computer  *Computer
	Executor  *Executor
	Collector Collector

	server     *Server
	collectCtx context.Context
	cancelCollect context.CancelFunc
}

// resourceResolver is the Server/Adapter-facing lookup over the live
// Resource set.
type resourceResolver struct {
	resources map[string]*Resource
}

func (r resourceResolver) Resource(name string) (*Resource, bool) {
	res, ok := r.resources[name]
	return res, ok
}

// NewSchedulerFromConfig constructs every core component from a loaded
// configuration, without starting any goroutines or listeners.
func NewSchedulerFromConfig(cfg *SchedulerConfig, resourceCfgs []ResourceConfig) (*Scheduler, error) {
	if len(resourceCfgs) == 0 {
		resourceCfgs = DiscoverLocalCPUResources()
	}

	db := NewTaskDatabase()
	runUntil := ParseRunUntilMode(cfg.TaskRunUntil)

	var endHookCmd []string
	if cfg.ResourceTaskEndHook != "" {
		endHookCmd = SplitWords(cfg.ResourceTaskEndHook)
	}

	resources := make(map[string]*Resource, len(resourceCfgs))
	resourceList := make([]*Resource, 0, len(resourceCfgs))
	resourceNames := make([]string, 0, len(resourceCfgs))
	for _, rc := range resourceCfgs {
		r := NewResource(rc.Name, db, runUntil, endHookCmd, rc.RetryEndHookOnIdle)
		resources[rc.Name] = r
		resourceList = append(resourceList, r)
		resourceNames = append(resourceNames, rc.Name)
	}

	algorithm, err := NewAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	feedback := NewFeedback(resourceList)
	for _, r := range resourceList {
		r.SetNotifyFeedback(feedback.GotProgress)
	}
	mode := ParseInterruptMode(cfg.ComputerInterrupt)
	computer := NewComputer(db, feedback, resourceList, algorithm, mode, cfg.ComputerRequiredApplications)
	executor := NewExecutor(db, resourceList, cfg.ExecutorIdleReschedule)
	computer.SetExecutor(executor)
	executor.SetComputer(computer)

	var collector Collector = NullCollector{}
	if cfg.MeasureConfig != nil && cfg.MeasureConfig.Enabled {
		collector = NewHostStatCollector(resourceNames, cfg.MeasureConfig.SamplingPeriod)
	}

	eventLog.Resources(resourceNames)
	eventLog.Algorithm(algorithm.Name())

	return &Scheduler{
		Config:    cfg,
		DB:        db,
		Resources: resources,
		Feedback:  feedback,
		Computer:  computer,
		Executor:  executor,
		Collector: collector,
	}, nil
}

// Start launches the Computer/Executor workers, the measurement collector
// and (unless socketPath is empty, as in the simulation driver) the
// transport listener.
func (s *Scheduler) Start(socketPath string) error {
	s.Computer.Start()
	s.Executor.Start()

	s.collectCtx, s.cancelCollect = context.WithCancel(context.Background())
	s.Collector.Start(s.collectCtx)

	if socketPath == "" {
		return nil
	}

	resolver := resourceResolver{resources: s.Resources}
	server, err := NewServer(socketPath, s.DB, func(writer *Writer) (AdapterPolicy, ResourceResolver) {
		return MainPolicy{}, resolver
	})
	if err != nil {
		return err
	}
	s.server = server
	go server.Serve()
	return nil
}

// Shutdown stops every component started by Start. Idempotent-ish: safe to
// call once after Start.
func (s *Scheduler) Shutdown() {
	if s.server != nil {
		s.server.Close()
	}
	if s.cancelCollect != nil {
		s.cancelCollect()
	}
	s.Feedback.Shutdown()
	s.Executor.Stop()
	s.Computer.Stop()
}

// Run is the process entry point: parse flags, load config, wire the
// scheduler, block for a shutdown signal, and tear down gracefully.
// Returns the process exit code.
func Run() int {
	if !flag.Parsed() {
		flag.Parse()
	}

	if *versionArg {
		fmt.Fprintf(os.Stderr, "Version: %s, GitInfo: %s\n", Version, GitInfo)
		return 0
	}

	configFile := *configFileArg
	if configFile == "" {
		configFile = ConfigFilePath()
	}
	cfg, resourceCfgs, err := LoadConfig(configFile, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config file: %v\n", err)
		return 1
	}

	if *socketPathArg != "" {
		cfg.UnixSocketPath = *socketPathArg
	}
	logrusx.ApplySetLoggerArgs(cfg.LoggerConfig)

	if err := SetLogger(cfg.LoggerConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error setting the logger: %v\n", err)
		return 1
	}

	sched, err := NewSchedulerFromConfig(cfg, resourceCfgs)
	if err != nil {
		runnerLog.Fatal(err)
	}

	socketPath := ResolveSocketPath(cfg)
	resourceNames := make([]string, 0, len(sched.Resources))
	for name := range sched.Resources {
		resourceNames = append(resourceNames, name)
	}
	eventLog.SchedulerStart(cfg.Algorithm, resourceNames)

	var shutdownTimer *time.Timer
	if cfg.ShutdownMaxWait > 0 {
		shutdownTimer = time.NewTimer(1 * time.Hour)
		shutdownTimer.Stop()
		defer shutdownTimer.Stop()
	}

	if err := sched.Start(socketPath); err != nil {
		runnerLog.Fatal(err)
	}
	defer sched.Shutdown()
	defer eventLog.SchedulerStop()

	runnerLog.Infof("listening on %s, algorithm=%s", socketPath, cfg.Algorithm)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	if cfg.ShutdownMaxWait == 0 {
		runnerLog.Fatalf("%s signal received, force exit", sig)
	} else {
		runnerLog.Warnf("%s signal received, shutting down", sig)
	}

	if shutdownTimer != nil {
		go func() {
			shutdownTimer.Reset(cfg.ShutdownMaxWait)
			<-shutdownTimer.C
			runnerLog.Fatalf("shutdown timed out after %s, force exit", cfg.ShutdownMaxWait)
		}()
	}

	return 0
}
