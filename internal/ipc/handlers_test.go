package ipc

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/cortexd/cortexd/internal/alertmanager"
	"github.com/cortexd/cortexd/internal/alertstore"
	"github.com/cortexd/cortexd/internal/llm"
	"github.com/cortexd/cortexd/internal/types"
)

type fakeMonitor struct {
	snapshot  types.HealthSnapshot
	llmLoaded bool
	llmModel  string
}

func (f *fakeMonitor) GetSnapshot() types.HealthSnapshot { return f.snapshot }
func (f *fakeMonitor) ForceCheck() types.HealthSnapshot  { f.snapshot.Timestamp = time.Now(); return f.snapshot }
func (f *fakeMonitor) SetLLMState(loaded bool, modelName string) {
	f.llmLoaded = loaded
	f.llmModel = modelName
}

func newWiredServer(t *testing.T) (*Server, *alertmanager.Manager) {
	t.Helper()
	store, err := alertstore.Open(filepath.Join(t.TempDir(), "alerts.db"), slog.Default())
	if err != nil {
		t.Fatalf("alertstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	mgr := alertmanager.New(store, slog.Default())

	path := filepath.Join(t.TempDir(), "cortexd.sock")
	s := NewServer(path, 100, defaultMaxMessageBytes, time.Second, slog.Default())
	engine := llm.NewStubEngine()
	mon := &fakeMonitor{}
	RegisterHandlers(s, mon, mgr, engine, nil, "0.1.0-test", "cortexd", time.Now(), func() bool { return true }, func() {})
	if !s.Start() {
		t.Fatal("Start returned false")
	}
	t.Cleanup(s.Stop)
	return s, mgr
}

func TestAcknowledgeThenQuery(t *testing.T) {
	s, mgr := newWiredServer(t)

	a1, _ := mgr.Create(context.Background(), types.SeverityWarning, types.AlertDiskUsage, "a", "a", nil)
	mgr.Create(context.Background(), types.SeverityWarning, types.AlertMemoryUsage, "b", "b", nil)

	ackParams, _ := json.Marshal(alertsAckParams{ID: a1.ID})
	ackResp := roundTrip(t, s.path, types.RequestEnvelope{Method: "alerts.ack", Params: ackParams})
	if !ackResp.Success {
		t.Fatalf("alerts.ack failed: %+v", ackResp)
	}

	listResp := roundTrip(t, s.path, types.RequestEnvelope{Method: "alerts.get"})
	if !listResp.Success {
		t.Fatalf("alerts.get failed: %+v", listResp)
	}
	data := listResp.Data.(map[string]any)
	if int(data["total_active"].(float64)) != 1 {
		t.Errorf("total_active = %v, want 1", data["total_active"])
	}
}

func TestAlertsAckMissingBoth(t *testing.T) {
	s, _ := newWiredServer(t)
	resp := roundTrip(t, s.path, types.RequestEnvelope{Method: "alerts.ack", Params: json.RawMessage(`{}`)})
	if resp.Success || resp.Error == nil || resp.Error.Code != types.CodeInvalidParams {
		t.Errorf("resp = %+v, want INVALID_PARAMS", resp)
	}
}

func TestAlertsAckUnknownID(t *testing.T) {
	s, _ := newWiredServer(t)
	params, _ := json.Marshal(alertsAckParams{ID: "does-not-exist"})
	resp := roundTrip(t, s.path, types.RequestEnvelope{Method: "alerts.ack", Params: params})
	if resp.Success || resp.Error == nil || resp.Error.Code != types.CodeAlertNotFound {
		t.Errorf("resp = %+v, want ALERT_NOT_FOUND", resp)
	}
}

func TestLLMInferWithoutLoad(t *testing.T) {
	s, _ := newWiredServer(t)
	params, _ := json.Marshal(llmInferParams{Prompt: "hi"})
	resp := roundTrip(t, s.path, types.RequestEnvelope{Method: "llm.infer", Params: params})
	if resp.Success || resp.Error == nil || resp.Error.Code != types.CodeLLMNotLoaded {
		t.Errorf("resp = %+v, want LLM_NOT_LOADED", resp)
	}
}

func TestLLMLoadThenInfer(t *testing.T) {
	s, _ := newWiredServer(t)

	loadParams, _ := json.Marshal(llmLoadParams{ModelPath: "/models/tiny.gguf"})
	loadResp := roundTrip(t, s.path, types.RequestEnvelope{Method: "llm.load", Params: loadParams})
	if !loadResp.Success {
		t.Fatalf("llm.load failed: %+v", loadResp)
	}

	inferParams, _ := json.Marshal(llmInferParams{Prompt: "hi"})
	inferResp := roundTrip(t, s.path, types.RequestEnvelope{Method: "llm.infer", Params: inferParams})
	if !inferResp.Success {
		t.Fatalf("llm.infer failed: %+v", inferResp)
	}
}
