package textures

import (
	"golang.org/x/exp/slices"
)

type DebugRow struct {
	Handle   Handle
	Name     string
	Bytes    uint64
	LastUsed uint64
	State    State
	Pinned   bool
	Failed   bool
}

type DebugStats struct {
	ResidentBytes  uint64
	CPUSourceBytes uint64
	Resident       int
	Loading        int
	Evicted        int
	Unloaded       int
}

// DebugSnapshot lists every entry, largest first.
func (c *Cache) DebugSnapshot() ([]DebugRow, DebugStats) {
	stats := DebugStats{ResidentBytes: c.residentBytes, CPUSourceBytes: c.cpuSourceBytes}
	rows := make([]DebugRow, 0, len(c.entries))
	for h, e := range c.entries {
		switch e.state {
		case StateResident:
			stats.Resident++
		case StateLoading:
			stats.Loading++
		case StateEvicted:
			stats.Evicted++
		default:
			stats.Unloaded++
		}

		name := e.name()
		if e.state == StateResident && e.image != nil {
			name += " [" + e.image.Format().String() + "]"
		}
		rows = append(rows, DebugRow{
			Handle:   Handle(h),
			Name:     name,
			Bytes:    e.sizeBytes,
			LastUsed: e.lastUsed,
			State:    e.state,
			Pinned:   e.pinned,
			Failed:   e.failed,
		})
	}
	slices.SortStableFunc(rows, func(a, b DebugRow) int {
		switch {
		case a.Bytes > b.Bytes:
			return -1
		case a.Bytes < b.Bytes:
			return 1
		}
		return 0
	})
	return rows, stats
}
