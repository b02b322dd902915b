package source

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/0xA1M/sentinel-audit/internal/sampler"
)

// ProcessTable lists processes through gopsutil.
type ProcessTable struct{}

func NewProcessTable() *ProcessTable {
	return &ProcessTable{}
}

// Processes returns a pid to name snapshot. Processes that exit while the
// table is being read are left out.
func (pt *ProcessTable) Processes(ctx context.Context) (sampler.ProcessSnapshot, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	snapshot := make(sampler.ProcessSnapshot, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // Exited mid-enumeration or not accessible
		}
		snapshot[p.Pid] = name
	}

	return snapshot, nil
}
