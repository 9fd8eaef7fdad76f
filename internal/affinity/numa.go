package affinity

import (
	"sort"
	"strconv"
	"strings"
)

// parseCPUList parses a Linux cpulist range expression such as
// "0-3,8,10-11" (the format /sys/devices/system/node/nodeN/cpulist
// uses) into a sorted slice of CPU ids.
func parseCPUList(s string) []int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			a, errA := strconv.Atoi(lo)
			b, errB := strconv.Atoi(hi)
			if errA != nil || errB != nil {
				continue
			}
			for c := a; c <= b; c++ {
				out = append(out, c)
			}
			continue
		}
		if c, err := strconv.Atoi(part); err == nil {
			out = append(out, c)
		}
	}
	sort.Ints(out)
	return out
}

// numaInterleavedCPUs returns every CPU ordered so that consecutive
// entries alternate NUMA nodes: node0's first CPU, node1's first CPU,
// ..., then node0's second CPU, and so on. Worker i is pinned to
// entry i of this list, so consecutive workers spread across sockets
// instead of filling one node before moving to the next. On a
// platform with no NUMA topology available (platformNUMANodes
// returns nil), it falls back to a flat 0..NumCPU-1 list.
func numaInterleavedCPUs(numCPU int) []int {
	nodes := platformNUMANodes()
	if len(nodes) == 0 {
		if numCPU <= 0 {
			numCPU = 1
		}
		cpus := make([]int, numCPU)
		for i := range cpus {
			cpus[i] = i
		}
		return cpus
	}

	maxLen := 0
	for _, node := range nodes {
		if len(node) > maxLen {
			maxLen = len(node)
		}
	}
	out := make([]int, 0, numCPU)
	for col := 0; col < maxLen; col++ {
		for _, node := range nodes {
			if col < len(node) {
				out = append(out, node[col])
			}
		}
	}
	return out
}
