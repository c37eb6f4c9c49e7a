// Count available CPUs based on affinity

//go:build !linux

package schedcore

import (
	"runtime"
)

func GetAvailableCPUCount() int {
	return runtime.NumCPU()
}
