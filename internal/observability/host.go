package observability

import (
	"os"
	"runtime"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// MemorySnapshot is host and process memory in megabytes. Zero values mean unknown.
type MemorySnapshot struct {
	TotalMB     uint64
	AvailableMB uint64
	ProcessMB   uint64
}

// SnapshotMemory reads host and process memory usage
func SnapshotMemory() MemorySnapshot {
	var snap MemorySnapshot
	if vmStat, err := mem.VirtualMemory(); err == nil {
		snap.TotalMB = vmStat.Total / 1024 / 1024
		snap.AvailableMB = vmStat.Available / 1024 / 1024
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			snap.ProcessMB = info.RSS / 1024 / 1024
		}
	}
	return snap
}

// LogHostInfo logs CPU, memory and numeric backend thread settings at startup
func LogHostInfo(ompThreads, mklThreads string) {
	event := log.Info().
		Int("gomaxprocs", runtime.GOMAXPROCS(0)).
		Str("omp_num_threads", ompThreads).
		Str("mkl_num_threads", mklThreads)

	if n, err := cpu.Counts(true); err == nil {
		event = event.Int("cpu_logical", n)
	}
	if n, err := cpu.Counts(false); err == nil {
		event = event.Int("cpu_physical", n)
	}

	snap := SnapshotMemory()
	event.
		Uint64("memory_total_mb", snap.TotalMB).
		Uint64("memory_available_mb", snap.AvailableMB).
		Uint64("process_rss_mb", snap.ProcessMB).
		Msg("Host resources")
}
