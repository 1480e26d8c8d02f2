// Package hoststats reads lightweight CPU/RAM metrics for /api/stats and
// /api/diag.
package hoststats

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is the CPU/RAM percentage pair returned alongside the
// protocol payload.
type Snapshot struct {
	CPU float64 `json:"cpu"`
	RAM float64 `json:"ram"`
}

// Read samples current CPU and RAM usage, falling back to 0.0 on any
// collector error rather than failing the request.
func Read() Snapshot {
	var s Snapshot
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPU = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.RAM = vm.UsedPercent
	}
	return s
}
