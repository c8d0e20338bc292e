package alertmanager

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cortexd/cortexd/internal/alertstore"
	"github.com/cortexd/cortexd/internal/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := alertstore.Open(filepath.Join(t.TempDir(), "alerts.db"), slog.Default())
	if err != nil {
		t.Fatalf("alertstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, slog.Default())
}

func TestCreateAssignsIDAndPersists(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, created := m.Create(ctx, types.SeverityWarning, types.AlertDiskUsage, "disk high", "91% used", nil)
	if !created {
		t.Fatal("Create reported not created")
	}
	if a.ID == "" {
		t.Error("Create did not assign an id")
	}
	if got := m.GetByID(ctx, a.ID); got == nil {
		t.Error("created alert not retrievable")
	}
}

func TestCreateDedupesWithinWindow(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, created := m.Create(ctx, types.SeverityWarning, types.AlertDiskUsage, "disk high", "91% used", types.Metadata{{Key: "mount", Value: "/"}})
	if !created {
		t.Fatal("first Create reported not created")
	}

	_, created = m.Create(ctx, types.SeverityWarning, types.AlertDiskUsage, "disk high", "91% used", types.Metadata{{Key: "mount", Value: "/"}})
	if created {
		t.Error("duplicate Create within window should be suppressed")
	}

	if n := m.CountActive(ctx); n != 1 {
		t.Errorf("CountActive = %d, want 1", n)
	}
	_ = first
}

func TestCreateDedupeIgnoresMetadataOrder(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, created := m.Create(ctx, types.SeverityCritical, types.AlertCVEFound, "cve found", "CVE-2024-1", types.Metadata{
		{Key: "package", Value: "openssl"}, {Key: "cve", Value: "CVE-2024-1"},
	})
	if !created {
		t.Fatal("first Create reported not created")
	}

	_, created = m.Create(ctx, types.SeverityCritical, types.AlertCVEFound, "cve found", "CVE-2024-1", types.Metadata{
		{Key: "cve", Value: "CVE-2024-1"}, {Key: "package", Value: "openssl"},
	})
	if created {
		t.Error("reordered-metadata duplicate should still be suppressed")
	}
}

func TestCreateDistinctAlertsNotDeduped(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, c1 := m.Create(ctx, types.SeverityWarning, types.AlertDiskUsage, "disk high", "/ at 91%", nil)
	_, c2 := m.Create(ctx, types.SeverityWarning, types.AlertDiskUsage, "disk high", "/var at 91%", nil)
	if !c1 || !c2 {
		t.Fatalf("expected both distinct alerts created, got %v %v", c1, c2)
	}
	if n := m.CountActive(ctx); n != 2 {
		t.Errorf("CountActive = %d, want 2", n)
	}
}

func TestOnAlertNotifiesCallback(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got types.Alert
	called := false
	m.OnAlert(func(a types.Alert) {
		mu.Lock()
		defer mu.Unlock()
		got = a
		called = true
	})

	created, ok := m.Create(ctx, types.SeverityInfo, types.AlertSystem, "started", "daemon started", nil)
	if !ok {
		t.Fatal("Create reported not created")
	}

	mu.Lock()
	defer mu.Unlock()
	if !called {
		t.Fatal("callback was not invoked")
	}
	if got.ID != created.ID {
		t.Errorf("callback alert id = %q, want %q", got.ID, created.ID)
	}
}

func TestOnAlertPanicDoesNotPropagate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.OnAlert(func(types.Alert) { panic("boom") })

	_, ok := m.Create(ctx, types.SeverityInfo, types.AlertSystem, "started", "daemon started", nil)
	if !ok {
		t.Fatal("Create reported not created despite panicking callback")
	}
}

func TestAcknowledgeAndResolve(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, types.SeverityWarning, types.AlertMemoryUsage, "mem high", "92% used", nil)

	if !m.Acknowledge(ctx, a.ID) {
		t.Fatal("Acknowledge returned false")
	}
	got := m.GetByID(ctx, a.ID)
	if got == nil || !got.Acknowledged {
		t.Errorf("got %+v, want Acknowledged=true", got)
	}

	if !m.Resolve(ctx, a.ID, "freed cache") {
		t.Fatal("Resolve returned false")
	}
	got = m.GetByID(ctx, a.ID)
	if got == nil || !got.Resolved || got.Resolution != "freed cache" {
		t.Errorf("got %+v, want Resolved=true Resolution=freed cache", got)
	}
}

func TestAcknowledgeMissing(t *testing.T) {
	m := newTestManager(t)
	if m.Acknowledge(context.Background(), "does-not-exist") {
		t.Error("Acknowledge on missing alert returned true")
	}
}

func TestAcknowledgeTwiceDoesNotChangeTimestamp(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, types.SeverityWarning, types.AlertMemoryUsage, "mem high", "92% used", nil)

	if !m.Acknowledge(ctx, a.ID) {
		t.Fatal("first Acknowledge returned false")
	}
	first := m.GetByID(ctx, a.ID).AcknowledgedAt

	time.Sleep(5 * time.Millisecond)
	if !m.Acknowledge(ctx, a.ID) {
		t.Fatal("second Acknowledge returned false")
	}
	second := m.GetByID(ctx, a.ID).AcknowledgedAt

	if !first.Equal(second) {
		t.Errorf("acknowledged_at changed on second call: %v -> %v", first, second)
	}
}

func TestDismiss(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, types.SeverityInfo, types.AlertSystem, "info", "just fyi", nil)
	if !m.Dismiss(ctx, a.ID) {
		t.Fatal("Dismiss returned false")
	}
	if m.GetByID(ctx, a.ID) != nil {
		t.Error("alert still retrievable after Dismiss")
	}
}

func TestAcknowledgeAll(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	m.Create(ctx, types.SeverityWarning, types.AlertDiskUsage, "a", "a", nil)
	m.Create(ctx, types.SeverityWarning, types.AlertMemoryUsage, "b", "b", nil)

	n := m.AcknowledgeAll(ctx)
	if n != 2 {
		t.Errorf("AcknowledgeAll returned %d, want 2", n)
	}
	if m.CountActive(ctx) != 0 {
		t.Errorf("CountActive after AcknowledgeAll = %d, want 0", m.CountActive(ctx))
	}
}

func TestCleanupOldLeavesRecentResolvedAlerts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, types.SeverityInfo, types.AlertSystem, "old", "old alert", nil)
	m.Resolve(ctx, a.ID, "done")

	removed := m.CleanupOld(ctx, 168*time.Hour)
	if removed != 0 {
		t.Errorf("CleanupOld removed %d of a just-resolved alert, want 0", removed)
	}
	if m.GetByID(ctx, a.ID) == nil {
		t.Error("recently resolved alert was removed")
	}
}

func TestExportJSON(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, types.SeverityCritical, types.AlertDiskUsage, "disk full", "99% used", nil)
	m.Create(ctx, types.SeverityInfo, types.AlertSystem, "info", "just fyi", nil)

	data, err := m.ExportJSON(ctx)
	if err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	var dumped []types.Alert
	if err := json.Unmarshal(data, &dumped); err != nil {
		t.Fatalf("exported JSON does not decode: %v", err)
	}
	if len(dumped) != 2 {
		t.Fatalf("exported %d alerts, want 2", len(dumped))
	}

	if strings.Contains(string(data), `"acknowledged_at":"0001-01-01`) {
		t.Error("exported JSON includes a zero-value acknowledged_at")
	}

	var found bool
	for _, d := range dumped {
		if d.ID == a.ID {
			found = true
		}
	}
	if !found {
		t.Error("exported dump missing a created alert")
	}
}
