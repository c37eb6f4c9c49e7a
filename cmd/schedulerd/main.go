package main

import (
	"os"

	"github.com/aw32/gosched"
)

var mainLog = gosched.NewCompLogger("main")

func init() {
	// This file is at the module root's cmd/schedulerd, two dirs down.
	gosched.AddCallerSrcPathPrefixToLogger(2)
	gosched.UpdateBuildInfo(Version, GitInfo)
}

func main() {
	mainLog.Info("start")
	os.Exit(gosched.Run())
}
