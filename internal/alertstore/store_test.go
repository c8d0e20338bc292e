package alertstore

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/cortexd/cortexd/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "alerts.db")
	s, err := Open(dbPath, slog.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleAlert(id string) types.Alert {
	return types.Alert{
		ID:        id,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Severity:  types.SeverityWarning,
		Type:      types.AlertDiskUsage,
		Title:     "disk usage high",
		Message:   "/ at 91%",
		Metadata:  types.Metadata{{Key: "mount", Value: "/"}, {Key: "percent", Value: "91"}},
	}
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := sampleAlert("alert-1")
	if err := s.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got := s.Get(ctx, "alert-1")
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if got.Title != a.Title || got.Message != a.Message {
		t.Errorf("got %+v, want title/message from %+v", got, a)
	}
	if !got.Timestamp.Equal(a.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, a.Timestamp)
	}
	if v, ok := got.Metadata.Get("mount"); !ok || v != "/" {
		t.Errorf("metadata mount = %q, %v", v, ok)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	if got := s.Get(context.Background(), "nope"); got != nil {
		t.Errorf("Get missing = %+v, want nil", got)
	}
}

func TestGetActiveExcludesAcknowledged(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a1 := sampleAlert("active-1")
	a2 := sampleAlert("ack-1")
	a2.Acknowledged = true
	a2.AcknowledgedAt = time.Now().UTC().Truncate(time.Second)

	if err := s.Insert(ctx, a1); err != nil {
		t.Fatalf("Insert a1: %v", err)
	}
	if err := s.Insert(ctx, a2); err != nil {
		t.Fatalf("Insert a2: %v", err)
	}

	active := s.GetActive(ctx)
	if len(active) != 1 || active[0].ID != "active-1" {
		t.Errorf("GetActive = %+v, want only active-1", active)
	}
}

func TestUpdateAcknowledged(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := sampleAlert("alert-2")
	if err := s.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	a.Acknowledged = true
	a.AcknowledgedAt = time.Now().UTC().Truncate(time.Second)
	if err := s.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got := s.Get(ctx, "alert-2")
	if got == nil || !got.Acknowledged {
		t.Errorf("got %+v, want Acknowledged=true", got)
	}
	if s.CountActive(ctx) != 0 {
		t.Errorf("CountActive = %d, want 0", s.CountActive(ctx))
	}
}

func TestRemove(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, sampleAlert("alert-3")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !s.Remove(ctx, "alert-3") {
		t.Error("Remove = false, want true")
	}
	if s.Remove(ctx, "alert-3") {
		t.Error("Remove on already-removed alert = true, want false")
	}
	if got := s.Get(ctx, "alert-3"); got != nil {
		t.Errorf("Get after Remove = %+v, want nil", got)
	}
}

func TestCountBySeverity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	crit := sampleAlert("crit-1")
	crit.Severity = types.SeverityCritical
	warn := sampleAlert("warn-1")
	warn.Severity = types.SeverityWarning

	if err := s.Insert(ctx, crit); err != nil {
		t.Fatalf("Insert crit: %v", err)
	}
	if err := s.Insert(ctx, warn); err != nil {
		t.Fatalf("Insert warn: %v", err)
	}

	if n := s.CountBySeverity(ctx, types.SeverityCritical); n != 1 {
		t.Errorf("CountBySeverity(CRITICAL) = %d, want 1", n)
	}
	if n := s.CountBySeverity(ctx, types.SeverityWarning); n != 1 {
		t.Errorf("CountBySeverity(WARNING) = %d, want 1", n)
	}
}

func TestCleanupBeforeOnlyRemovesResolved(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := sampleAlert("old-unresolved")
	old.Timestamp = time.Now().Add(-200 * time.Hour)
	oldResolved := sampleAlert("old-resolved")
	oldResolved.Timestamp = time.Now().Add(-200 * time.Hour)
	oldResolved.Resolved = true
	oldResolved.ResolvedAt = time.Now().Add(-199 * time.Hour)

	for _, a := range []types.Alert{old, oldResolved} {
		if err := s.Insert(ctx, a); err != nil {
			t.Fatalf("Insert %s: %v", a.ID, err)
		}
	}

	n := s.CleanupBefore(ctx, time.Now().Add(-168*time.Hour))
	if n != 1 {
		t.Fatalf("CleanupBefore removed %d, want 1", n)
	}
	if s.Get(ctx, "old-resolved") != nil {
		t.Error("old-resolved still present after cleanup")
	}
	if s.Get(ctx, "old-unresolved") == nil {
		t.Error("old-unresolved was removed by cleanup, want kept")
	}
}

func TestMetadataRoundTripEmpty(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := sampleAlert("no-meta")
	a.Metadata = nil
	if err := s.Insert(ctx, a); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got := s.Get(ctx, "no-meta")
	if got == nil {
		t.Fatal("Get returned nil")
	}
	if len(got.Metadata) != 0 {
		t.Errorf("Metadata = %+v, want empty", got.Metadata)
	}
}
