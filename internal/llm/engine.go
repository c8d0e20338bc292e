// Package llm defines the interface cortexd uses to talk to an on-box
// inference engine, plus a minimal local stub. The real engine is an
// external collaborator outside this module's scope (spec.md "Non-goals");
// this package only needs to make the daemon linkable and testable against
// that boundary.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotLoaded is returned by InferSync when no model is loaded.
var ErrNotLoaded = errors.New("llm: no model loaded")

// Status is a point-in-time snapshot of engine state, as reported by the
// llm.status and status RPC methods. The monitor does not read it; its
// HealthSnapshot LLM fields come from Monitor.SetLLMState.
type Status struct {
	Loaded       bool
	ModelName    string
	QueueSize    int
	LastLoadedAt time.Time
}

// Engine is the contract SystemMonitor and the IPC handlers use to reach
// whatever inference backend is attached. Swappable for tests.
type Engine interface {
	IsLoaded() bool
	Load(ctx context.Context, modelPath string) error
	Unload(ctx context.Context) error
	InferSync(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
	Status() Status
}

// StubEngine is a local, dependency-free Engine: Load/Unload flip an
// in-memory flag, InferSync echoes back a canned response once a model is
// "loaded". It exists so the daemon and its tests can run without a real
// inference backend attached.
type StubEngine struct {
	mu        sync.Mutex
	loaded    bool
	modelName string
	queueSize int
	loadedAt  time.Time
}

// NewStubEngine returns an Engine with no model loaded.
func NewStubEngine() *StubEngine {
	return &StubEngine{}
}

// IsLoaded reports whether a model is currently loaded.
func (e *StubEngine) IsLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// Load marks modelPath as loaded. Idempotent.
func (e *StubEngine) Load(ctx context.Context, modelPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = true
	e.modelName = modelPath
	e.loadedAt = time.Now().UTC()
	return nil
}

// Unload clears the loaded model. Idempotent.
func (e *StubEngine) Unload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = false
	e.modelName = ""
	return nil
}

// InferSync returns ErrNotLoaded if no model is loaded, otherwise a
// deterministic placeholder response. Real inference is out of scope here.
func (e *StubEngine) InferSync(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	e.mu.Lock()
	loaded := e.loaded
	model := e.modelName
	e.mu.Unlock()

	if !loaded {
		return "", ErrNotLoaded
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return fmt.Sprintf("[%s] no analysis available (stub engine)", model), nil
}

// Status returns the engine's current state.
func (e *StubEngine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Loaded:       e.loaded,
		ModelName:    e.modelName,
		QueueSize:    e.queueSize,
		LastLoadedAt: e.loadedAt,
	}
}
