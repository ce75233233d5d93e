package govern

import "runtime"

// WorkerCount derives the effective worker cap from the configured worker
// count and the cpu-percent multiplier, with a floor of 1. When both knobs
// are set the minimum wins.
func WorkerCount(workers, cpuPercent int) int {
	n := workers
	if cpuPercent > 0 {
		byCPU := runtime.NumCPU() * cpuPercent / 100
		if n <= 0 || byCPU < n {
			n = byCPU
		}
	}
	if n < 1 {
		n = 1
	}
	return n
}
