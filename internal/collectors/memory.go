package collectors

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/cortexd/cortexd/internal/types"
)

// MemoryStats is a parsed reading from /proc/meminfo, in megabytes.
type MemoryStats struct {
	TotalMB     float64
	AvailableMB float64
	UsedMB      float64
}

// UsagePercent returns 0 when TotalMB is zero, never NaN or Inf.
func (m MemoryStats) UsagePercent() float64 {
	if m.TotalMB <= 0 {
		return 0
	}
	return (m.UsedMB / m.TotalMB) * 100
}

// MemoryCollector reads memory usage from /proc/meminfo.
type MemoryCollector struct {
	procMeminfoPath string
}

// NewMemoryCollector returns a collector reading the real /proc/meminfo.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{procMeminfoPath: "/proc/meminfo"}
}

// Collect reads MemTotal and MemAvailable from /proc/meminfo and derives
// used = total - available. A missing or zero-sized file yields an
// all-zero MemoryStats rather than an error, matching the monitor's
// tolerant-collector contract.
func (c *MemoryCollector) Collect() (MemoryStats, error) {
	f, err := os.Open(c.procMeminfoPath)
	if err != nil {
		return MemoryStats{}, nil
	}
	defer f.Close()

	fields := map[string]float64{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		name, kb, ok := parseMeminfoLine(line)
		if !ok {
			continue
		}
		fields[name] = kb
	}

	total := fields["MemTotal"]
	available := fields["MemAvailable"]
	used := total - available
	if used < 0 {
		used = 0
	}

	return MemoryStats{
		TotalMB:     total / 1024,
		AvailableMB: available / 1024,
		UsedMB:      used / 1024,
	}, nil
}

// parseMeminfoLine parses one "Name:     123 kB" line from /proc/meminfo.
func parseMeminfoLine(line string) (name string, valueKB float64, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", 0, false
	}
	name = line[:idx]
	rest := strings.TrimSpace(line[idx+1:])
	rest = strings.TrimSuffix(rest, " kB")
	rest = strings.TrimSpace(rest)
	v, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return "", 0, false
	}
	return name, v, true
}

// ApplyToSnapshot writes memory fields into snapshot.
func (m MemoryStats) ApplyToSnapshot(snapshot *types.HealthSnapshot) {
	snapshot.MemoryTotalMB = m.TotalMB
	snapshot.MemoryUsedMB = m.UsedMB
	snapshot.MemoryUsagePercent = m.UsagePercent()
}
