package collectors

import (
	"golang.org/x/sys/unix"

	"github.com/cortexd/cortexd/internal/types"
)

// DiskStats is a parsed statvfs reading for one mount point, in gigabytes.
type DiskStats struct {
	TotalGB float64
	UsedGB  float64
}

// UsagePercent returns 0 when TotalGB is zero.
func (d DiskStats) UsagePercent() float64 {
	if d.TotalGB <= 0 {
		return 0
	}
	return (d.UsedGB / d.TotalGB) * 100
}

// DiskCollector reads filesystem usage for a single mount point via
// statvfs.
type DiskCollector struct {
	path string
}

// NewDiskCollector returns a collector for the given mount point (the
// monitor uses "/").
func NewDiskCollector(path string) *DiskCollector {
	return &DiskCollector{path: path}
}

// Collect runs statvfs on the configured path. A syscall failure yields an
// all-zero DiskStats and a non-nil error for logging; callers must not
// abort the cycle on error.
func (c *DiskCollector) Collect() (DiskStats, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(c.path, &stat); err != nil {
		return DiskStats{}, err
	}

	blockSize := uint64(stat.Bsize)
	totalBytes := stat.Blocks * blockSize
	freeBytes := stat.Bfree * blockSize
	usedBytes := totalBytes - freeBytes

	const gb = 1024 * 1024 * 1024
	return DiskStats{
		TotalGB: float64(totalBytes) / gb,
		UsedGB:  float64(usedBytes) / gb,
	}, nil
}

// ApplyToSnapshot writes disk fields into snapshot.
func (d DiskStats) ApplyToSnapshot(snapshot *types.HealthSnapshot) {
	snapshot.DiskTotalGB = d.TotalGB
	snapshot.DiskUsedGB = d.UsedGB
	snapshot.DiskUsagePercent = d.UsagePercent()
}
