//go:build linux

package affinity

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

func platformPin(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

func platformAvailable() bool {
	var set unix.CPUSet
	return unix.SchedGetaffinity(0, &set) == nil
}

// platformNUMANodes reads /sys/devices/system/node/nodeN/cpulist for
// every node the kernel exposes, in node-id order. It returns nil on
// any system without that sysfs tree (containers/VMs without NUMA
// exposed, or a node running a kernel built without NUMA), which
// numaInterleavedCPUs treats as "one flat node".
func platformNUMANodes() [][]int {
	const base = "/sys/devices/system/node"
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil
	}

	var ids []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "node") {
			continue
		}
		if id, err := strconv.Atoi(e.Name()[len("node"):]); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Ints(ids)

	nodes := make([][]int, 0, len(ids))
	for _, id := range ids {
		data, err := os.ReadFile(base + "/node" + strconv.Itoa(id) + "/cpulist")
		if err != nil {
			continue
		}
		nodes = append(nodes, parseCPUList(string(data)))
	}
	return nodes
}
