package monitor

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/cortexd/cortexd/internal/types"
)

// checkThresholds evaluates the current snapshot against configured
// thresholds and raises alerts through the manager. Dedup in AlertManager
// makes repeated raises within the window idempotent (spec.md §4.3).
func (m *Monitor) checkThresholds(snapshot types.HealthSnapshot) []types.Alert {
	var raised []types.Alert

	if a, ok := m.checkDisk(snapshot); ok {
		raised = append(raised, a)
	}
	if a, ok := m.checkMemory(snapshot); ok {
		raised = append(raised, a)
	}
	if a, ok := m.checkSecurityUpdates(snapshot); ok {
		raised = append(raised, a)
	}

	return raised
}

func (m *Monitor) checkDisk(snapshot types.HealthSnapshot) (types.Alert, bool) {
	ratio := snapshot.DiskUsagePercent / 100
	th := m.cfg.Thresholds

	metadata := types.Metadata{}.
		Set("usage_percent", fmt.Sprintf("%.1f", snapshot.DiskUsagePercent)).
		Set("used_gb", fmt.Sprintf("%.2f", snapshot.DiskUsedGB)).
		Set("total_gb", fmt.Sprintf("%.2f", snapshot.DiskTotalGB))

	message := fmt.Sprintf("Disk usage is at %.1f%% (%s of %s)", snapshot.DiskUsagePercent,
		humanize.Bytes(gbToBytes(snapshot.DiskUsedGB)), humanize.Bytes(gbToBytes(snapshot.DiskTotalGB)))

	switch {
	case ratio >= th.DiskCrit:
		return m.alerts.Create(m.ctx(), types.SeverityCritical, types.AlertDiskUsage,
			"Disk usage critical", message, metadata)
	case ratio >= th.DiskWarn:
		return m.alerts.Create(m.ctx(), types.SeverityWarning, types.AlertDiskUsage,
			"Disk usage high", message, metadata)
	}
	return types.Alert{}, false
}

func gbToBytes(gb float64) uint64 {
	if gb <= 0 {
		return 0
	}
	return uint64(gb * 1024 * 1024 * 1024)
}

func mbToBytes(mb float64) uint64 {
	if mb <= 0 {
		return 0
	}
	return uint64(mb * 1024 * 1024)
}

func (m *Monitor) checkMemory(snapshot types.HealthSnapshot) (types.Alert, bool) {
	ratio := snapshot.MemoryUsagePercent / 100
	th := m.cfg.Thresholds

	metadata := types.Metadata{}.
		Set("usage_percent", fmt.Sprintf("%.1f", snapshot.MemoryUsagePercent)).
		Set("used_mb", fmt.Sprintf("%.2f", snapshot.MemoryUsedMB)).
		Set("total_mb", fmt.Sprintf("%.2f", snapshot.MemoryTotalMB))

	message := fmt.Sprintf("Memory usage is at %.1f%% (%s of %s)", snapshot.MemoryUsagePercent,
		humanize.Bytes(mbToBytes(snapshot.MemoryUsedMB)), humanize.Bytes(mbToBytes(snapshot.MemoryTotalMB)))

	switch {
	case ratio >= th.MemCrit:
		return m.alerts.Create(m.ctx(), types.SeverityCritical, types.AlertMemoryUsage,
			"Memory usage critical", message, metadata)
	case ratio >= th.MemWarn:
		return m.alerts.Create(m.ctx(), types.SeverityWarning, types.AlertMemoryUsage,
			"Memory usage high", message, metadata)
	}
	return types.Alert{}, false
}

func (m *Monitor) checkSecurityUpdates(snapshot types.HealthSnapshot) (types.Alert, bool) {
	if snapshot.SecurityUpdates <= 0 {
		return types.Alert{}, false
	}
	metadata := types.Metadata{}.Set("count", fmt.Sprintf("%d", snapshot.SecurityUpdates))
	return m.alerts.Create(m.ctx(), types.SeverityWarning, types.AlertSecurityUpdate,
		"Security updates pending", fmt.Sprintf("%d security update(s) pending", snapshot.SecurityUpdates), metadata)
}
