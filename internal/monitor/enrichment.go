package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/cortexd/cortexd/internal/alertmanager"
	"github.com/cortexd/cortexd/internal/llm"
	"github.com/cortexd/cortexd/internal/types"
)

// enrichmentTimeout bounds one background inference call; the monitor
// loop never waits on it (the task is detached).
const enrichmentTimeout = 30 * time.Second

// enrichWithAI spawns one detached goroutine per raised alert when an LLM
// engine is attached and loaded. Each goroutine captures only the engine
// and alert manager handles — never the Monitor itself — so Monitor
// teardown is never blocked by a slow or hung inference call (spec.md
// §4.4 "AI enrichment").
func (m *Monitor) enrichWithAI(raised []types.Alert) {
	if m.engine == nil || !m.engine.IsLoaded() || len(raised) == 0 {
		return
	}
	engine := m.engine
	alerts := m.alerts

	for _, a := range raised {
		go runEnrichment(engine, alerts, a)
	}
}

func runEnrichment(engine llm.Engine, alerts *alertmanager.Manager, parent types.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), enrichmentTimeout)
	defer cancel()

	prompt := enrichmentPrompt(parent)
	analysis, err := engine.InferSync(ctx, prompt, 150, 0.3)
	if err != nil {
		return
	}
	if alerts == nil {
		return
	}

	metadata := types.Metadata{}.Set("parent_alert_id", parent.ID)
	alerts.Create(ctx, types.SeverityInfo, types.AlertAIAnalysis,
		fmt.Sprintf("AI analysis: %s", parent.Title), analysis, metadata)
}

// enrichmentPrompt builds a type-specific prompt from the alert's context.
func enrichmentPrompt(a types.Alert) string {
	return fmt.Sprintf(
		"A %s alert was raised: %q (%s). Briefly explain the likely cause and one recommended action.",
		a.Type, a.Title, a.Message,
	)
}
