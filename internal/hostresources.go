// Host resource auto-discovery (domain stack, new): when no "resources"
// list is given in configuration, register one CPU-backed Resource per
// available core, the way a single-host deployment of this scheduler would
// bootstrap itself, reusing available_cpus_*.go / clktck_unix.go (originally
// sized for an OS-metrics worker pool, generalized here to per-core
// resource discovery).

package schedcore

import "fmt"

// DiscoverLocalCPUResources returns one ResourceConfig per CPU this process
// has affinity to, named "cpu0".."cpuN-1".
func DiscoverLocalCPUResources() []ResourceConfig {
	n := GetAvailableCPUCount()
	out := make([]ResourceConfig, n)
	for i := 0; i < n; i++ {
		out[i] = ResourceConfig{Name: fmt.Sprintf("cpu%d", i)}
	}
	return out
}

// ClockTicksPerSecond exposes the sysconf(SC_CLK_TCK) value used to convert
// /proc-style jiffy counters into seconds, for the measurement collector
// (measure.go) and any estimator needing to interpret GetMyCpuTime-style
// samples.
func ClockTicksPerSecond() float64 {
	return float64(Clktck)
}
