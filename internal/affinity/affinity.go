// Package affinity pins worker goroutines to specific CPUs, backing
// the driver's pin-affinity flag. Go cannot pin a goroutine directly —
// only the OS thread it happens to be running on — so callers must
// also lock the calling goroutine to its OS thread with
// runtime.LockOSThread before calling Pin.
//
// CPU affinity is a Linux syscall; platformPin and platformAvailable
// are implemented per-GOOS in affinity_linux.go and
// affinity_other.go so the package still builds (as a no-op) on
// platforms without SchedSetaffinity.
package affinity

import (
	"fmt"
	"runtime"

	"github.com/fjeanquartier/swiftsim/internal/swifterr"
)

// Pin restricts the calling OS thread to a single CPU. Callers must
// have already called runtime.LockOSThread; Pin does not do so
// itself since the lock must outlive the call.
func Pin(cpu int) error {
	if err := platformPin(cpu); err != nil {
		return swifterr.Wrap(swifterr.Configuration, fmt.Sprintf("pinning to cpu %d", cpu), err)
	}
	return nil
}

// PinRoundRobin locks the calling goroutine to its OS thread and pins
// worker workerID to one CPU, the scheme the driver's -pin flag
// requests when launching the worker pool: one worker, one thread,
// one core, for the lifetime of the run. CPUs are visited in NUMA
// -interleaved order (see numaInterleavedCPUs) rather than plain
// ascending order, so consecutive worker ids alternate nodes and
// spread memory bandwidth instead of saturating one node before
// moving to the next.
func PinRoundRobin(workerID int) error {
	runtime.LockOSThread()
	cpus := numaInterleavedCPUs(runtime.NumCPU())
	return Pin(cpus[workerID%len(cpus)])
}

// Available reports whether the current platform supports pinning at
// all; the driver falls back to unpinned scheduling with a logged
// warning when false.
func Available() bool {
	return platformAvailable()
}
