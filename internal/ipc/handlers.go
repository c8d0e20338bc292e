package ipc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cortexd/cortexd/internal/alertmanager"
	"github.com/cortexd/cortexd/internal/config"
	"github.com/cortexd/cortexd/internal/llm"
	"github.com/cortexd/cortexd/internal/types"
)

// MonitorView is the subset of *monitor.Monitor the IPC handlers need.
// Declared here (rather than importing package monitor) to keep ipc
// dependency-free of monitor's collectors; monitor.Monitor satisfies it.
type MonitorView interface {
	GetSnapshot() types.HealthSnapshot
	ForceCheck() types.HealthSnapshot
	SetLLMState(loaded bool, modelName string)
}

// RegisterHandlers wires the full method surface from spec.md §6 onto
// server. version/name, startedAt and reload are daemon-level concerns
// passed in by the caller.
func RegisterHandlers(server *Server, mon MonitorView, alerts *alertmanager.Manager, engine llm.Engine, cfg *config.Config, version, name string, startedAt time.Time, reload func() bool, requestShutdown func()) {
	server.RegisterHandler("ping", handlePing)
	server.RegisterHandler("version", handleVersion(version, name))
	server.RegisterHandler("status", handleStatus(mon, engine, version, startedAt, server))
	server.RegisterHandler("health", handleHealth(mon))
	server.RegisterHandler("alerts", handleAlertsList(alerts))
	server.RegisterHandler("alerts.get", handleAlertsList(alerts))
	server.RegisterHandler("alerts.ack", handleAlertsAck(alerts))
	server.RegisterHandler("alerts.dismiss", handleAlertsDismiss(alerts))
	server.RegisterHandler("config.get", handleConfigGet(cfg))
	server.RegisterHandler("config.reload", handleConfigReload(reload))
	server.RegisterHandler("llm.status", handleLLMStatus(engine))
	server.RegisterHandler("llm.load", handleLLMLoad(mon, engine))
	server.RegisterHandler("llm.unload", handleLLMUnload(mon, engine))
	server.RegisterHandler("llm.infer", handleLLMInfer(engine))
	server.RegisterHandler("shutdown", handleShutdown(requestShutdown))
}

func handlePing(_ json.RawMessage) (any, *types.ErrorDetail) {
	return map[string]any{"pong": true}, nil
}

func handleVersion(version, name string) Handler {
	return func(_ json.RawMessage) (any, *types.ErrorDetail) {
		return map[string]any{"version": version, "name": name}, nil
	}
}

func handleStatus(mon MonitorView, engine llm.Engine, version string, startedAt time.Time, server *Server) Handler {
	return func(_ json.RawMessage) (any, *types.ErrorDetail) {
		return map[string]any{
			"version":        version,
			"uptime_seconds": int(time.Since(startedAt).Seconds()),
			"running":        server.IsRunning(),
			"health":         mon.GetSnapshot(),
			"llm":            engineStatus(engine),
		}, nil
	}
}

func handleHealth(mon MonitorView) Handler {
	return func(_ json.RawMessage) (any, *types.ErrorDetail) {
		snapshot := mon.GetSnapshot()
		if snapshot.Timestamp.IsZero() {
			snapshot = mon.ForceCheck()
		}
		return snapshot, nil
	}
}

type alertsListParams struct {
	Severity string `json:"severity"`
	Type     string `json:"type"`
	Limit    int    `json:"limit"`
}

func handleAlertsList(alerts *alertmanager.Manager) Handler {
	return func(raw json.RawMessage) (any, *types.ErrorDetail) {
		var p alertsListParams
		p.Limit = 100
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, invalidParams("malformed alerts params")
			}
		}
		if p.Limit <= 0 {
			p.Limit = 100
		}

		ctx := context.Background()
		var list []types.Alert
		switch {
		case p.Severity != "":
			list = alerts.GetBySeverity(ctx, types.Severity(p.Severity))
		case p.Type != "":
			list = alerts.GetByType(ctx, types.AlertType(p.Type))
		default:
			list = alerts.GetAll(ctx, p.Limit)
		}

		return map[string]any{
			"alerts":       list,
			"count":        len(list),
			"total_active": alerts.CountActive(ctx),
		}, nil
	}
}

type alertsAckParams struct {
	ID  string `json:"id"`
	All bool   `json:"all"`
}

func handleAlertsAck(alerts *alertmanager.Manager) Handler {
	return func(raw json.RawMessage) (any, *types.ErrorDetail) {
		var p alertsAckParams
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, invalidParams("malformed alerts.ack params")
			}
		}

		ctx := context.Background()
		switch {
		case p.All:
			return map[string]any{"acknowledged_count": alerts.AcknowledgeAll(ctx)}, nil
		case p.ID != "":
			if !alerts.Acknowledge(ctx, p.ID) {
				return nil, &types.ErrorDetail{Code: types.CodeAlertNotFound, Message: "alert not found"}
			}
			return map[string]any{"acknowledged": p.ID}, nil
		default:
			return nil, invalidParams("alerts.ack requires id or all")
		}
	}
}

type alertsDismissParams struct {
	ID string `json:"id"`
}

func handleAlertsDismiss(alerts *alertmanager.Manager) Handler {
	return func(raw json.RawMessage) (any, *types.ErrorDetail) {
		var p alertsDismissParams
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, invalidParams("malformed alerts.dismiss params")
			}
		}
		if p.ID == "" {
			return nil, invalidParams("alerts.dismiss requires id")
		}
		if !alerts.Dismiss(context.Background(), p.ID) {
			return nil, &types.ErrorDetail{Code: types.CodeAlertNotFound, Message: "alert not found"}
		}
		return map[string]any{"dismissed": p.ID}, nil
	}
}

func handleConfigGet(cfg *config.Config) Handler {
	return func(_ json.RawMessage) (any, *types.ErrorDetail) {
		if cfg == nil {
			return map[string]any{}, nil
		}
		return cfg, nil
	}
}

func handleConfigReload(reload func() bool) Handler {
	return func(_ json.RawMessage) (any, *types.ErrorDetail) {
		if reload == nil || !reload() {
			return nil, &types.ErrorDetail{Code: types.CodeConfigError, Message: "config reload failed"}
		}
		return map[string]any{"reloaded": true}, nil
	}
}

func handleLLMStatus(engine llm.Engine) Handler {
	return func(_ json.RawMessage) (any, *types.ErrorDetail) {
		return engineStatus(engine), nil
	}
}

type llmLoadParams struct {
	ModelPath string `json:"model_path"`
}

func handleLLMLoad(mon MonitorView, engine llm.Engine) Handler {
	return func(raw json.RawMessage) (any, *types.ErrorDetail) {
		if engine == nil {
			return nil, &types.ErrorDetail{Code: types.CodeLLMNotLoaded, Message: "no LLM engine attached"}
		}
		var p llmLoadParams
		if err := json.Unmarshal(raw, &p); err != nil || p.ModelPath == "" {
			return nil, invalidParams("llm.load requires model_path")
		}
		if err := engine.Load(context.Background(), p.ModelPath); err != nil {
			return nil, &types.ErrorDetail{Code: types.CodeInternalError, Message: err.Error()}
		}
		mon.SetLLMState(true, p.ModelPath)
		return map[string]any{"loaded": true, "model_path": p.ModelPath}, nil
	}
}

func handleLLMUnload(mon MonitorView, engine llm.Engine) Handler {
	return func(_ json.RawMessage) (any, *types.ErrorDetail) {
		if engine == nil {
			return nil, &types.ErrorDetail{Code: types.CodeLLMNotLoaded, Message: "no LLM engine attached"}
		}
		if err := engine.Unload(context.Background()); err != nil {
			return nil, &types.ErrorDetail{Code: types.CodeInternalError, Message: err.Error()}
		}
		mon.SetLLMState(false, "")
		return map[string]any{"unloaded": true}, nil
	}
}

type llmInferParams struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	Stop        string  `json:"stop"`
}

func handleLLMInfer(engine llm.Engine) Handler {
	return func(raw json.RawMessage) (any, *types.ErrorDetail) {
		if engine == nil || !engine.IsLoaded() {
			return nil, &types.ErrorDetail{Code: types.CodeLLMNotLoaded, Message: "no model loaded"}
		}
		var p llmInferParams
		if err := json.Unmarshal(raw, &p); err != nil || p.Prompt == "" {
			return nil, invalidParams("llm.infer requires prompt")
		}
		if p.MaxTokens <= 0 {
			p.MaxTokens = 150
		}
		if p.Temperature <= 0 {
			p.Temperature = 0.3
		}

		result, err := engine.InferSync(context.Background(), p.Prompt, p.MaxTokens, p.Temperature)
		if err != nil {
			return nil, &types.ErrorDetail{Code: types.CodeLLMNotLoaded, Message: err.Error()}
		}
		return map[string]any{"text": result}, nil
	}
}

func handleShutdown(requestShutdown func()) Handler {
	return func(_ json.RawMessage) (any, *types.ErrorDetail) {
		if requestShutdown != nil {
			go requestShutdown()
		}
		return map[string]any{"shutdown": "initiated"}, nil
	}
}

func engineStatus(engine llm.Engine) map[string]any {
	if engine == nil {
		return map[string]any{"loaded": false}
	}
	status := engine.Status()
	return map[string]any{
		"loaded":     status.Loaded,
		"model_name": status.ModelName,
		"queue_size": status.QueueSize,
	}
}
