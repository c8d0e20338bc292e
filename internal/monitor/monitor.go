// Package monitor implements SystemMonitor: the periodic collection loop
// that drives memory/disk/CPU/apt/CVE collectors, maintains a shared
// HealthSnapshot, evaluates alert thresholds, and optionally spawns
// background LLM-enrichment tasks (spec.md §4.4).
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cortexd/cortexd/internal/alertmanager"
	"github.com/cortexd/cortexd/internal/collectors"
	"github.com/cortexd/cortexd/internal/config"
	"github.com/cortexd/cortexd/internal/llm"
	"github.com/cortexd/cortexd/internal/types"
)

// PriorityMonitor is SystemMonitor's position in the daemon's start order
// (spec.md §4.1: IPCServer 100, SystemMonitor 50, LLMEngine 10).
const PriorityMonitor = 50

const pollInterval = time.Second

// Monitor is SystemMonitor. Safe for concurrent use once started.
type Monitor struct {
	cfg    config.MonitorConfig
	alerts *alertmanager.Manager
	logger *slog.Logger

	memory *collectors.MemoryCollector
	disk   *collectors.DiskCollector
	cpu    *collectors.CPUCollector
	apt    *collectors.AptCollector
	cve    *collectors.CVECollector

	engine llm.Engine

	running        atomic.Bool
	checkRequested atomic.Bool
	aptCounter     atomic.Int64

	llmLoaded    atomic.Bool
	llmQueueSize atomic.Int64
	llmNameMu    sync.Mutex
	llmName      string

	snapshotMu sync.RWMutex
	snapshot   types.HealthSnapshot

	cachedUpdates       []types.PackageUpdate
	cachedSecurityCount int

	lastCheck time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Monitor. engine may be nil (AI enrichment disabled).
func New(cfg config.MonitorConfig, alerts *alertmanager.Manager, memory *collectors.MemoryCollector, disk *collectors.DiskCollector, cpu *collectors.CPUCollector, apt *collectors.AptCollector, cve *collectors.CVECollector, engine llm.Engine, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		alerts: alerts,
		logger: logger,
		memory: memory,
		disk:   disk,
		cpu:    cpu,
		apt:    apt,
		cve:    cve,
		engine: engine,
	}
}

// Name identifies this component in logs and the daemon registry.
func (m *Monitor) Name() string { return "system_monitor" }

// Priority implements the Service contract.
func (m *Monitor) Priority() int { return PriorityMonitor }

// IsHealthy reports whether the worker loop is running.
func (m *Monitor) IsHealthy() bool { return m.IsRunning() }

// IsRunning reports whether Start has been called and Stop has not yet
// completed.
func (m *Monitor) IsRunning() bool { return m.running.Load() }

// Start spawns the worker goroutine and returns once it has run one
// check. Returns false (never, for this component) only via the Service
// contract's general failure path; Monitor has no startup failure mode.
func (m *Monitor) Start() bool {
	if m.running.Load() {
		return true
	}
	m.running.Store(true)
	m.stopCh = make(chan struct{})

	m.runChecks()

	m.wg.Add(1)
	go m.loop()
	return true
}

// Stop halts the worker goroutine and waits for it to exit. Idempotent.
func (m *Monitor) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) loop() {
	defer m.wg.Done()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			elapsed := time.Since(m.lastCheck)
			if elapsed >= m.cfg.CheckInterval || m.checkRequested.Load() {
				m.checkRequested.Store(false)
				m.runChecks()
			}
		}
	}
}

// TriggerCheck requests an out-of-band check on the worker's next wake,
// without blocking the caller.
func (m *Monitor) TriggerCheck() {
	m.checkRequested.Store(true)
}

// ForceCheck runs a check synchronously on the caller's goroutine and
// returns the resulting snapshot. Safe to call concurrently with the
// worker loop; both paths go through the same mutex and atomic counter.
func (m *Monitor) ForceCheck() types.HealthSnapshot {
	m.runChecks()
	return m.GetSnapshot()
}

// GetSnapshot returns a copy of the current snapshot.
func (m *Monitor) GetSnapshot() types.HealthSnapshot {
	m.snapshotMu.RLock()
	defer m.snapshotMu.RUnlock()
	return m.snapshot
}

// runChecks performs one observation cycle: collectors, snapshot rewrite,
// threshold evaluation. Each collector's error is logged and skipped;
// none aborts the cycle (spec.md §4.4 step list).
func (m *Monitor) runChecks() {
	cpuPct := m.cpu.Collect()

	var memStats collectors.MemoryStats
	if m.memory != nil {
		stats, err := m.memory.Collect()
		if err != nil {
			m.logger.Error("memory collect failed", "error", err)
		}
		memStats = stats
	}

	var diskStats collectors.DiskStats
	if m.disk != nil {
		stats, err := m.disk.Collect()
		if err != nil {
			m.logger.Error("disk collect failed", "error", err)
		} else {
			diskStats = stats
		}
	}

	pendingUpdates, securityUpdates := m.collectApt()

	now := time.Now().UTC()
	m.lastCheck = now

	snapshot := types.HealthSnapshot{
		Timestamp:          now,
		CPUUsagePercent:    cpuPct,
		PendingUpdates:     pendingUpdates,
		SecurityUpdates:    securityUpdates,
		LLMLoaded:          m.llmLoaded.Load(),
		InferenceQueueSize: int(m.llmQueueSize.Load()),
	}
	memStats.ApplyToSnapshot(&snapshot)
	diskStats.ApplyToSnapshot(&snapshot)

	m.llmNameMu.Lock()
	snapshot.LLMModelName = m.llmName
	m.llmNameMu.Unlock()

	if m.alerts != nil {
		snapshot.ActiveAlerts = m.alerts.CountActive(context.Background())
		snapshot.CriticalAlerts = m.alerts.CountBySeverity(context.Background(), types.SeverityCritical)
	}

	m.snapshotMu.Lock()
	m.snapshot = snapshot
	m.snapshotMu.Unlock()

	raised := m.checkThresholds(snapshot)
	m.checkCVE()
	m.enrichWithAI(raised)
}

// collectApt invokes the apt collector every AptInterval cycles
// (subsampled because it shells out); other cycles reuse the cached
// counts. The counter increments atomically so ForceCheck racing the
// worker loop never corrupts it.
func (m *Monitor) collectApt() (pending, security int) {
	if m.apt == nil || !m.cfg.AptEnabled {
		return 0, 0
	}
	n := m.aptCounter.Add(1)
	interval := int64(m.cfg.AptInterval)
	if interval <= 0 {
		interval = 1
	}
	if (n-1)%interval == 0 {
		updates := m.apt.Collect(context.Background())
		m.cachedUpdates = updates
		m.cachedSecurityCount = collectors.CountSecurity(updates)
	}
	return len(m.cachedUpdates), m.cachedSecurityCount
}

func (m *Monitor) checkCVE() {
	if m.cve == nil || !m.cfg.CVEEnabled {
		return
	}
	results := m.cve.Scan(context.Background())
	for _, r := range results {
		if m.alerts == nil {
			continue
		}
		metadata := types.Metadata{}.
			Set("package", r.PackageName).
			Set("installed_version", r.InstalledVersion)
		if r.FixedVersion != "" {
			metadata = metadata.Set("fixed_version", r.FixedVersion)
		}
		m.alerts.Create(context.Background(), types.SeverityWarning, types.AlertCVEFound,
			fmt.Sprintf("Vulnerability found: %s", r.CVEID),
			fmt.Sprintf("%s affects %s (installed %s)", r.CVEID, r.PackageName, r.InstalledVersion),
			metadata)
	}
}

// SetLLMState updates the cached engine status the snapshot reports.
// Called by the IPC handlers after llm.load/llm.unload.
func (m *Monitor) SetLLMState(loaded bool, modelName string) {
	m.llmLoaded.Store(loaded)
	m.llmNameMu.Lock()
	m.llmName = modelName
	m.llmNameMu.Unlock()
}

// SetInterval changes the check interval used by the worker loop.
func (m *Monitor) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	m.cfg.CheckInterval = d
}

func (m *Monitor) ctx() context.Context { return context.Background() }
