package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestAlertMarshalJSONOmitsUnsetTimestamps(t *testing.T) {
	a := Alert{
		ID:        "a1",
		Timestamp: time.Now().UTC(),
		Severity:  SeverityWarning,
		Type:      AlertDiskUsage,
		Title:     "disk high",
		Message:   "91% used",
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "acknowledged_at") {
		t.Errorf("unacknowledged alert JSON contains acknowledged_at: %s", data)
	}
	if strings.Contains(string(data), "resolved_at") || strings.Contains(string(data), "resolution") {
		t.Errorf("unresolved alert JSON contains resolved_at/resolution: %s", data)
	}
	if strings.Contains(string(data), "metadata") {
		t.Errorf("alert with no metadata JSON contains metadata: %s", data)
	}
}

func TestAlertMarshalJSONIncludesSetTimestamps(t *testing.T) {
	now := time.Now().UTC()
	a := Alert{
		ID:             "a1",
		Acknowledged:   true,
		AcknowledgedAt: now,
		Resolved:       true,
		ResolvedAt:     now,
		Resolution:     "freed cache",
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"acknowledged_at", "resolved_at", "resolution"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("marshaled alert missing %q: %s", key, data)
		}
	}
}

func TestAlertJSONRoundTrip(t *testing.T) {
	a := Alert{
		ID:           "a1",
		Timestamp:    time.Now().UTC().Truncate(time.Second),
		Severity:     SeverityCritical,
		Type:         AlertMemoryUsage,
		Title:        "mem high",
		Message:      "95% used",
		Metadata:     Metadata{}.Set("usage_percent", "95.0"),
		Acknowledged: true,
	}
	a.AcknowledgedAt = a.Timestamp

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Alert
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.ID != a.ID || got.Title != a.Title || !got.Acknowledged {
		t.Errorf("round-tripped alert = %+v, want %+v", got, a)
	}
	if v, _ := got.Metadata.Get("usage_percent"); v != "95.0" {
		t.Errorf("metadata usage_percent = %q, want 95.0", v)
	}
	if !got.AcknowledgedAt.Equal(a.AcknowledgedAt) {
		t.Errorf("acknowledged_at = %v, want %v", got.AcknowledgedAt, a.AcknowledgedAt)
	}
}
