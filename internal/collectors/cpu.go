package collectors

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// CPUCollector reads CPU busy percent from /proc/stat's aggregate "cpu"
// line.
type CPUCollector struct {
	procStatPath string
}

// NewCPUCollector returns a collector reading the real /proc/stat.
func NewCPUCollector() *CPUCollector {
	return &CPUCollector{procStatPath: "/proc/stat"}
}

// Collect reads the first line of /proc/stat and computes
// busy/total = (user+nice+system) / (user+nice+system+idle+iowait). An
// unreadable file or a zero total yields 0 rather than an error.
func (c *CPUCollector) Collect() float64 {
	f, err := os.Open(c.procStatPath)
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0
	}
	line := scanner.Text()
	if !strings.HasPrefix(line, "cpu ") {
		return 0
	}

	fields := strings.Fields(line)[1:]
	var values [5]float64
	for i := range values {
		if i >= len(fields) {
			return 0
		}
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return 0
		}
		values[i] = v
	}
	user, nice, system, idle, iowait := values[0], values[1], values[2], values[3], values[4]

	busy := user + nice + system
	total := busy + idle + iowait
	if total <= 0 {
		return 0
	}

	pct := (busy / total) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
