// Package alertmanager implements alert deduplication, id generation, and
// callback notification on top of alertstore (spec.md §4.3).
package alertmanager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexd/cortexd/internal/alertstore"
	"github.com/cortexd/cortexd/internal/types"
)

// dedupWindow is how long a repeat of the same (type, title, message,
// metadata) tuple is suppressed, matching the original daemon's default.
const dedupWindow = 5 * time.Minute

// Callback is invoked, in registration order, for every newly created
// alert. Callbacks run synchronously on the caller's goroutine; a slow or
// panicking callback must not be allowed to take down the monitor loop that
// raised the alert (see Manager.notifyCallbacks).
type Callback func(types.Alert)

// Manager deduplicates incoming alerts against a short recent-alert window,
// assigns stable ids, persists through a Store, and fans new alerts out to
// registered callbacks.
type Manager struct {
	store  *alertstore.Store
	logger *slog.Logger

	mu           sync.Mutex
	recentHashes map[string]time.Time
	callbacksMu  sync.RWMutex
	callbacks    []Callback
}

// New wraps store with dedup/id/callback behavior.
func New(store *alertstore.Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:        store,
		logger:       logger,
		recentHashes: make(map[string]time.Time),
	}
}

// Create raises a new alert unless an equivalent one was created within the
// dedup window, in which case it returns an empty Alert (no id) and false.
// Otherwise it records the hash, prunes the recent-hash table, persists the
// alert and notifies callbacks; a failed insert also returns an empty Alert
// and false.
func (m *Manager) Create(ctx context.Context, severity types.Severity, alertType types.AlertType, title, message string, metadata types.Metadata) (types.Alert, bool) {
	hash := alertHash(alertType, title, message, metadata)

	m.mu.Lock()
	if last, dup := m.recentHashes[hash]; dup && time.Since(last) < dedupWindow {
		m.mu.Unlock()
		return types.Alert{}, false
	}
	m.recentHashes[hash] = time.Now()
	m.pruneHashesLocked()
	m.mu.Unlock()

	a := types.Alert{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Type:      alertType,
		Title:     title,
		Message:   message,
		Metadata:  metadata,
	}

	if err := m.store.Insert(ctx, a); err != nil {
		m.logger.Error("persist alert", "alert_id", a.ID, "error", err)
		return types.Alert{}, false
	}

	m.notifyCallbacks(a)
	return a, true
}

func (m *Manager) pruneHashesLocked() {
	cutoff := time.Now().Add(-dedupWindow)
	for h, t := range m.recentHashes {
		if t.Before(cutoff) {
			delete(m.recentHashes, h)
		}
	}
}

// alertHash hashes the tuple that defines alert identity for dedup
// purposes: type, title, message, and metadata sorted by key so that
// insertion order never affects the hash.
func alertHash(alertType types.AlertType, title, message string, metadata types.Metadata) string {
	entries := make([]types.MetadataEntry, len(metadata))
	copy(entries, metadata)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	var b strings.Builder
	b.WriteString(string(alertType))
	b.WriteByte('\x00')
	b.WriteString(title)
	b.WriteByte('\x00')
	b.WriteString(message)
	for _, e := range entries {
		b.WriteByte('\x00')
		b.WriteString(e.Key)
		b.WriteByte('=')
		b.WriteString(e.Value)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// OnAlert registers a callback invoked for every newly created alert.
func (m *Manager) OnAlert(cb Callback) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *Manager) notifyCallbacks(a types.Alert) {
	m.callbacksMu.RLock()
	cbs := make([]Callback, len(m.callbacks))
	copy(cbs, m.callbacks)
	m.callbacksMu.RUnlock()

	for _, cb := range cbs {
		m.runCallback(cb, a)
	}
}

// runCallback isolates one callback's panic so a broken notifier can't take
// down the goroutine that raised the alert; this is the Go analogue of the
// original daemon's catch-all around its callback loop.
func (m *Manager) runCallback(cb Callback, a types.Alert) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("alert callback panicked", "alert_id", a.ID, "panic", fmt.Sprint(r))
		}
	}()
	cb(a)
}

// GetAll returns up to limit alerts, newest first.
func (m *Manager) GetAll(ctx context.Context, limit int) []types.Alert {
	return m.store.GetAll(ctx, limit)
}

// GetActive returns all unacknowledged alerts.
func (m *Manager) GetActive(ctx context.Context) []types.Alert {
	return m.store.GetActive(ctx)
}

// GetBySeverity returns unacknowledged alerts of the given severity.
func (m *Manager) GetBySeverity(ctx context.Context, sev types.Severity) []types.Alert {
	return m.store.GetBySeverity(ctx, sev)
}

// GetByType returns unacknowledged alerts of the given type.
func (m *Manager) GetByType(ctx context.Context, t types.AlertType) []types.Alert {
	return m.store.GetByType(ctx, t)
}

// GetByID returns one alert, or nil if it doesn't exist.
func (m *Manager) GetByID(ctx context.Context, id string) *types.Alert {
	return m.store.Get(ctx, id)
}

// Acknowledge marks an alert acknowledged. It reports false if the alert
// doesn't exist.
func (m *Manager) Acknowledge(ctx context.Context, id string) bool {
	a := m.store.Get(ctx, id)
	if a == nil {
		return false
	}
	if a.Acknowledged {
		return true
	}
	a.Acknowledged = true
	a.AcknowledgedAt = time.Now().UTC()
	if err := m.store.Update(ctx, *a); err != nil {
		m.logger.Error("acknowledge alert", "alert_id", id, "error", err)
		return false
	}
	return true
}

// Resolve marks an alert resolved with an optional free-text resolution. It
// reports false if the alert doesn't exist.
func (m *Manager) Resolve(ctx context.Context, id, resolution string) bool {
	a := m.store.Get(ctx, id)
	if a == nil {
		return false
	}
	a.Resolved = true
	a.ResolvedAt = time.Now().UTC()
	a.Resolution = resolution
	if err := m.store.Update(ctx, *a); err != nil {
		m.logger.Error("resolve alert", "alert_id", id, "error", err)
		return false
	}
	return true
}

// Dismiss removes an alert outright. It reports false if the alert didn't
// exist.
func (m *Manager) Dismiss(ctx context.Context, id string) bool {
	return m.store.Remove(ctx, id)
}

// AcknowledgeAll marks every currently active alert acknowledged and
// returns the count affected.
func (m *Manager) AcknowledgeAll(ctx context.Context) int {
	active := m.store.GetActive(ctx)
	n := 0
	now := time.Now().UTC()
	for _, a := range active {
		a.Acknowledged = true
		a.AcknowledgedAt = now
		if err := m.store.Update(ctx, a); err != nil {
			m.logger.Error("acknowledge all: update alert", "alert_id", a.ID, "error", err)
			continue
		}
		n++
	}
	return n
}

// CountActive returns the number of unacknowledged alerts.
func (m *Manager) CountActive(ctx context.Context) int {
	return m.store.CountActive(ctx)
}

// CountBySeverity returns the number of unacknowledged alerts of a given
// severity.
func (m *Manager) CountBySeverity(ctx context.Context, sev types.Severity) int {
	return m.store.CountBySeverity(ctx, sev)
}

// CleanupOld removes resolved alerts older than maxAge (default 168h, i.e.
// one week, matching the original daemon) and returns the count removed.
func (m *Manager) CleanupOld(ctx context.Context, maxAge time.Duration) int {
	return m.store.CleanupBefore(ctx, time.Now().Add(-maxAge))
}

// ExportJSON dumps every stored alert as a JSON array, newest first. The Go
// analogue of the original daemon's AlertManager::export_json(). A negative
// limit tells the store's LIMIT clause not to cap the result.
func (m *Manager) ExportJSON(ctx context.Context) ([]byte, error) {
	all := m.store.GetAll(ctx, -1)
	return json.Marshal(all)
}
