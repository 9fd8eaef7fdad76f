//go:build !linux

package affinity

import "errors"

func platformPin(cpu int) error {
	return errors.New("cpu affinity is only supported on linux")
}

func platformAvailable() bool {
	return false
}

func platformNUMANodes() [][]int {
	return nil
}
