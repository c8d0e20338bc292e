// Command cortexd is the system-health daemon: it polls memory, disk, CPU,
// pending package updates, and known CVEs, raises deduplicated alerts over
// a local Unix socket, and optionally enriches alerts with an attached LLM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cortexd/cortexd/internal/alertmanager"
	"github.com/cortexd/cortexd/internal/alertstore"
	"github.com/cortexd/cortexd/internal/collectors"
	"github.com/cortexd/cortexd/internal/config"
	"github.com/cortexd/cortexd/internal/daemon"
	"github.com/cortexd/cortexd/internal/ipc"
	"github.com/cortexd/cortexd/internal/llm"
	"github.com/cortexd/cortexd/internal/logging"
	"github.com/cortexd/cortexd/internal/monitor"
	"github.com/cortexd/cortexd/internal/notifier"
	"github.com/cortexd/cortexd/internal/startup"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "path to config.yml (defaults to /etc/cortexd/config.yml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cortexd: load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging.Level)
	slog.SetDefault(logger)

	if err := startup.EnsurePaths(cfg.Paths.DBPath, cfg.Socket.Path); err != nil {
		logger.Error("startup: cannot prepare directories", "error", err)
		os.Exit(1)
	}
	caps := startup.ProbeCapabilities(cfg.Tools.AptGet, cfg.Tools.UbuntuSecurityStatus, cfg.Tools.Debsecan, logger)

	store, err := alertstore.Open(cfg.Paths.DBPath, logger)
	if err != nil {
		logger.Error("cannot open alert store", "path", cfg.Paths.DBPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	alerts := alertmanager.New(store, logger)

	webhookNotifier := notifier.New(cfg.Webhooks, logger)
	webhookNotifier.Start()
	defer webhookNotifier.Stop()
	alerts.OnAlert(webhookNotifier.OnAlert)

	memCollector := collectors.NewMemoryCollector()
	diskCollector := collectors.NewDiskCollector("/")
	cpuCollector := collectors.NewCPUCollector()

	var aptCollector *collectors.AptCollector
	if cfg.Monitor.AptEnabled && caps.AptGet {
		aptCollector = collectors.NewAptCollector(cfg.Tools.AptGet, logger)
	}
	var cveCollector *collectors.CVECollector
	if cfg.Monitor.CVEEnabled && (caps.UbuntuSecurityStatus || caps.Debsecan) {
		cveCollector = collectors.NewCVECollector(cfg.Tools.UbuntuSecurityStatus, cfg.Tools.Debsecan, logger)
	}

	var engine llm.Engine
	if cfg.LLM.Enabled {
		stub := llm.NewStubEngine()
		if cfg.LLM.ModelPath != "" {
			if err := stub.Load(context.Background(), cfg.LLM.ModelPath); err != nil {
				logger.Warn("failed to preload llm model", "path", cfg.LLM.ModelPath, "error", err)
			}
		}
		engine = stub
	}

	mon := monitor.New(cfg.Monitor, alerts, memCollector, diskCollector, cpuCollector, aptCollector, cveCollector, engine, logger)

	ipcServer := ipc.NewServer(cfg.Socket.Path, cfg.Socket.MaxPerSecond, cfg.Socket.MaxMessageBytes, time.Duration(cfg.Socket.TimeoutMS)*time.Millisecond, logger)

	startedAt := time.Now()
	reload := func() bool { return reloadConfig(*configPath, logger) }
	d := daemon.New(logger, reload, ipcServer, mon)

	ipc.RegisterHandlers(ipcServer, mon, alerts, engine, cfg, version, "cortexd", startedAt, reload, d.RequestShutdown)

	logger.Info("starting cortexd", "version", version, "socket", cfg.Socket.Path)
	if !d.Start() {
		logger.Error("daemon failed to start, exiting")
		os.Exit(1)
	}

	d.Run()
	logger.Info("cortexd stopped")
}

// reloadConfig re-reads and validates the config file through config.Load
// and reports whether that succeeded. The loaded values are discarded:
// running components keep the configuration they were started with.
func reloadConfig(path string, logger *slog.Logger) bool {
	_, err := config.Load(path)
	if err != nil {
		logger.Error("config reload failed", "error", err)
		return false
	}
	logger.Info("config reloaded")
	return true
}
