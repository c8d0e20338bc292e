// Package notifier posts raised alerts to configured webhook endpoints.
// It registers itself as an AlertManager callback and never blocks the
// goroutine that raises an alert: each delivery is queued and processed by
// a background worker, mirroring the teacher's queue-then-deliver design
// but without the SQLite-backed retry table (spec.md has no durable
// delivery requirement for this concern; a bounded in-memory queue with
// best-effort delivery is enough).
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cortexd/cortexd/internal/config"
	"github.com/cortexd/cortexd/internal/types"
)

const queueCapacity = 256

var severityRank = map[types.Severity]int{
	types.SeverityInfo:     1,
	types.SeverityWarning:  2,
	types.SeverityCritical: 3,
}

// Notifier delivers alerts to webhooks over HTTP, filtering by a
// per-webhook minimum severity.
type Notifier struct {
	webhooks []config.WebhookConfig
	client   *http.Client
	logger   *slog.Logger

	queue   chan types.Alert
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
}

// New builds a Notifier for the given webhook set. OnAlert is the callback
// to register with *alertmanager.Manager; alerts it queues are delivered
// only while the worker started by Start is running.
func New(webhooks []config.WebhookConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		webhooks: webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
		queue:    make(chan types.Alert, queueCapacity),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns the delivery worker. Idempotent.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return
	}
	n.started = true
	n.wg.Add(1)
	go n.worker()
}

// Stop waits for the worker to exit. Idempotent.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.started {
		n.mu.Unlock()
		return
	}
	n.started = false
	n.mu.Unlock()

	close(n.stopCh)
	n.wg.Wait()
}

// OnAlert is registered with alertmanager.Manager.OnAlert. It must never
// block: a full queue drops the alert rather than stall the caller.
func (n *Notifier) OnAlert(alert types.Alert) {
	if len(n.webhooks) == 0 {
		return
	}
	select {
	case n.queue <- alert:
	default:
		n.logger.Warn("notifier queue full, dropping alert", "alert_id", alert.ID)
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stopCh:
			return
		case alert := <-n.queue:
			n.deliver(alert)
		}
	}
}

func (n *Notifier) deliver(alert types.Alert) {
	for _, hook := range n.webhooks {
		if hook.URL == "" {
			continue
		}
		if !allowed(alert.Severity, hook.MinSeverity) {
			continue
		}
		if err := n.post(hook, alert); err != nil {
			n.logger.Warn("webhook delivery failed", "webhook", hook.Name, "alert_id", alert.ID, "error", err)
		} else {
			n.logger.Debug("webhook delivered", "webhook", hook.Name, "alert_id", alert.ID)
		}
	}
}

func (n *Notifier) post(hook config.WebhookConfig, alert types.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func allowed(severity types.Severity, minSeverity string) bool {
	if minSeverity == "" {
		return true
	}
	min, ok := severityRank[types.Severity(strings.ToUpper(minSeverity))]
	if !ok {
		return true
	}
	return severityRank[severity] >= min
}
