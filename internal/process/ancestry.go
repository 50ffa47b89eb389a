package process

import (
	"context"
	"fmt"

	"github.com/pranshuparmar/witl/internal/proc"
	"github.com/pranshuparmar/witl/pkg/model"
)

// BuildAncestry returns the chain of processes from the oldest ancestor it
// can read down to pid, which is always the last element.
func BuildAncestry(ctx context.Context, insp proc.Inspector, pid int) ([]model.Process, error) {
	var chain []model.Process
	seen := make(map[int]bool)

	current := pid

	for current > 0 {
		if seen[current] {
			break // loop protection
		}
		seen[current] = true

		p, err := insp.ReadProcess(ctx, current)
		if err != nil {
			break
		}

		chain = append([]model.Process{p}, chain...)

		if p.PPID == 0 || p.PID == 1 {
			break
		}
		current = p.PPID
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("no process ancestry found for pid %d", pid)
	}

	return chain, nil
}
