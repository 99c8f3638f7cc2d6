// Package platform detects the "CPU count" spec.md §4.E's worker-pool
// tunables are derived from, the way src/cgroup.go detects container
// memory limits for connection-capacity sizing.
package platform

import (
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	_ "go.uber.org/automaxprocs" // sets GOMAXPROCS from the cgroup quota on import
)

// CPUCount returns the number of CPUs this process should size its worker
// pool against. It prefers GOMAXPROCS (which this package's automaxprocs
// import has already set to the container's cgroup quota, rounded down),
// cross-checked against gopsutil's logical core count (used only when it is
// smaller). If gopsutil can't read the host, GOMAXPROCS is used as is;
// runtime.NumCPU() is the fallback only when GOMAXPROCS is not positive.
func CPUCount() int {
	gomaxprocs := runtime.GOMAXPROCS(0)

	if logical, err := cpu.Counts(true); err == nil && logical > 0 && logical < gomaxprocs {
		// automaxprocs rounds down; gopsutil's raw host count can reveal a
		// tighter cgroup quota it didn't quantize the same way. Use the
		// smaller of the two so worker sizing never exceeds real capacity.
		return logical
	}

	if gomaxprocs > 0 {
		return gomaxprocs
	}

	if n := runtime.NumCPU(); n > 0 {
		return n
	}

	return 1
}

// WorkerBudget computes MaxWorkers and MaxIdleWorkers per spec §4.E:
// MaxWorkers = 3 * CPU count, MaxIdleWorkers = CPU count.
func WorkerBudget() (maxWorkers, maxIdleWorkers int) {
	cpus := CPUCount()
	return 3 * cpus, cpus
}
