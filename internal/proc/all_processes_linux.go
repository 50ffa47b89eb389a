//go:build linux

package proc

import (
	"os"
	"strconv"
)

// listPIDs returns the numeric entries of the proc root in directory order.
func (p *Procfs) listPIDs() ([]int, error) {
	var pids []int

	files, err := os.ReadDir(p.Root)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if !f.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(f.Name())
		if err != nil {
			continue
		}
		pids = append(pids, pid)
	}

	return pids, nil
}
