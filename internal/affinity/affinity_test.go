package affinity

import (
	"runtime"
	"testing"

	"github.com/fjeanquartier/swiftsim/internal/swifterr"
)

func TestPinOutOfRangeCPUReturnsConfigurationError(t *testing.T) {
	if !Available() {
		t.Skip("cpu affinity not supported on this platform")
	}
	err := Pin(runtime.NumCPU() + 1000)
	if err == nil {
		t.Fatal("expected an error pinning to a CPU that does not exist")
	}
	if !swifterr.Is(err, swifterr.Configuration) {
		t.Fatalf("expected a swifterr.Configuration error, got %v", err)
	}
}

func TestPinRoundRobinWrapsModuloCPUCount(t *testing.T) {
	if !Available() {
		t.Skip("cpu affinity not supported on this platform")
	}
	// A worker id equal to the CPU list's length must wrap to entry 0
	// rather than index past the end.
	wrapID := len(numaInterleavedCPUs(runtime.NumCPU()))
	if err := PinRoundRobin(wrapID); err != nil {
		t.Fatalf("PinRoundRobin(%d): %v", wrapID, err)
	}
}

func TestParseCPUListExpandsRangesAndSingletons(t *testing.T) {
	got := parseCPUList("0-2,5,7-8")
	want := []int{0, 1, 2, 5, 7, 8}
	if len(got) != len(want) {
		t.Fatalf("parseCPUList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parseCPUList = %v, want %v", got, want)
		}
	}
}

func TestParseCPUListHandlesBlankInput(t *testing.T) {
	if got := parseCPUList(""); got != nil {
		t.Fatalf("parseCPUList(\"\") = %v, want nil", got)
	}
	if got := parseCPUList("  \n"); got != nil {
		t.Fatalf("parseCPUList(whitespace) = %v, want nil", got)
	}
}

func TestNumaInterleavedCPUsHasNoNegativeOrDuplicateIDs(t *testing.T) {
	// numaInterleavedCPUs always calls the real platformNUMANodes for
	// this GOOS, which has no seam for injecting a synthetic two-node
	// layout, so the column-major node alternation is not checked here.
	// This checks the platform's actual topology yields a non-empty
	// list with no negative and no duplicate CPU ids.
	n := runtime.NumCPU()
	cpus := numaInterleavedCPUs(n)
	if len(cpus) == 0 {
		t.Fatal("numaInterleavedCPUs returned no CPUs")
	}
	seen := make(map[int]bool, len(cpus))
	for _, c := range cpus {
		if c < 0 {
			t.Fatalf("numaInterleavedCPUs produced a negative CPU id: %d", c)
		}
		if seen[c] {
			t.Fatalf("numaInterleavedCPUs produced duplicate CPU id: %d", c)
		}
		seen[c] = true
	}
}
