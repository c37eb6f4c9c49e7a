package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/aw32/gosched"
)

var mainLog = gosched.NewCompLogger("main")

var scenarioFileArg = flag.String(
	"scenario",
	"",
	`Scenario file to simulate (default: $SCHED_SIMFILE)`,
)

func init() {
	gosched.AddCallerSrcPathPrefixToLogger(2)
}

func main() {
	flag.Parse()

	scenarioFile := *scenarioFileArg
	if scenarioFile == "" {
		scenarioFile = os.Getenv("SCHED_SIMFILE")
	}
	if scenarioFile == "" {
		fmt.Fprintln(os.Stderr, "no scenario file given: pass -scenario or set SCHED_SIMFILE")
		os.Exit(1)
	}

	scenario, err := gosched.LoadScenario(scenarioFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading scenario: %v\n", err)
		os.Exit(1)
	}

	mainLog.Infof("simulating %q with algorithm=%s", scenarioFile, scenario.Algorithm)
	result, err := gosched.RunSimulation(scenario)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulation error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf(
		"completed=%v simulated_duration=%s tasks=%d/%d finished\n",
		result.Completed, result.SimDuration, result.FinishedCount, result.TaskCount,
	)
	if !result.Completed {
		os.Exit(1)
	}
}
