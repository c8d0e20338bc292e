// Package types holds the wire and domain value types shared across cortexd's
// components: health snapshots, alerts, package/CVE findings, and the JSON-RPC
// envelopes exchanged over the Unix socket.
package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// Severity is the closed set of alert severities.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// AlertType is the closed set of alert domains.
type AlertType string

const (
	AlertDiskUsage      AlertType = "DISK_USAGE"
	AlertMemoryUsage    AlertType = "MEMORY_USAGE"
	AlertCPUUsage       AlertType = "CPU_USAGE"
	AlertSecurityUpdate AlertType = "SECURITY_UPDATE"
	AlertCVEFound       AlertType = "CVE_FOUND"
	AlertAIAnalysis     AlertType = "AI_ANALYSIS"
	AlertSystem         AlertType = "SYSTEM"
)

// CVESeverity is the closed set of CVE severities.
type CVESeverity string

const (
	CVELow      CVESeverity = "LOW"
	CVEMedium   CVESeverity = "MEDIUM"
	CVEHigh     CVESeverity = "HIGH"
	CVECritical CVESeverity = "CRITICAL"
	CVEUnknown  CVESeverity = "UNKNOWN"
)

// MetadataEntry is one key/value pair of an alert's metadata. Alert.Metadata
// is a slice of these rather than a map so that insertion order survives a
// JSON round-trip; uniqueness of keys is the writer's responsibility.
type MetadataEntry struct {
	Key   string
	Value string
}

// Metadata is an ordered, unique-keyed string->string mapping.
type Metadata []MetadataEntry

// Get returns the value for key and whether it was present.
func (m Metadata) Get(key string) (string, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Set adds or replaces the value for key, preserving the position of an
// existing key and appending new keys at the end.
func (m Metadata) Set(key, value string) Metadata {
	for i, e := range m {
		if e.Key == key {
			m[i].Value = value
			return m
		}
	}
	return append(m, MetadataEntry{Key: key, Value: value})
}

// MarshalJSON renders Metadata as a JSON object, preserving key order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON parses a JSON object into Metadata. Key order in the source
// document is preserved via json.Decoder's token stream. A malformed payload
// yields empty metadata rather than an error, matching AlertStore's tolerant
// read-side contract for metadata.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		*m = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		*m = nil
		return nil
	}

	var out Metadata
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			*m = nil
			return nil
		}
		key, ok := keyTok.(string)
		if !ok {
			*m = nil
			return nil
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			*m = nil
			return nil
		}
		out = append(out, MetadataEntry{Key: key, Value: value})
	}
	*m = out
	return nil
}

// Alert is a persisted, user-facing health event.
type Alert struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Severity       Severity  `json:"severity"`
	Type           AlertType `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Metadata       Metadata  `json:"metadata,omitempty"`
	Acknowledged   bool      `json:"acknowledged"`
	Resolved       bool      `json:"resolved"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     time.Time `json:"resolved_at,omitempty"`
	Resolution     string    `json:"resolution,omitempty"`
}

// alertWire is Alert's wire shape. AcknowledgedAt/ResolvedAt/Resolution are
// pointers so they vanish from the encoded object rather than round-tripping
// as the zero time "0001-01-01T00:00:00Z" — omitempty on a time.Time never
// fires, since encoding/json only treats it as non-empty for struct kinds.
type alertWire struct {
	ID             string     `json:"id"`
	Timestamp      time.Time  `json:"timestamp"`
	Severity       Severity   `json:"severity"`
	Type           AlertType  `json:"type"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	Metadata       Metadata   `json:"metadata,omitempty"`
	Acknowledged   bool       `json:"acknowledged"`
	Resolved       bool       `json:"resolved"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	Resolution     *string    `json:"resolution,omitempty"`
}

// MarshalJSON emits acknowledged_at/resolved_at/resolution only when the
// corresponding flag is set, matching the original daemon's Alert::to_json.
func (a Alert) MarshalJSON() ([]byte, error) {
	w := alertWire{
		ID:           a.ID,
		Timestamp:    a.Timestamp,
		Severity:     a.Severity,
		Type:         a.Type,
		Title:        a.Title,
		Message:      a.Message,
		Metadata:     a.Metadata,
		Acknowledged: a.Acknowledged,
		Resolved:     a.Resolved,
	}
	if a.Acknowledged {
		w.AcknowledgedAt = &a.AcknowledgedAt
	}
	if a.Resolved {
		w.ResolvedAt = &a.ResolvedAt
		w.Resolution = &a.Resolution
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts either the pointer-based wire shape above or a plain
// object with bare timestamp fields, so Alert round-trips through its own
// MarshalJSON and tolerates hand-written test fixtures.
func (a *Alert) UnmarshalJSON(data []byte) error {
	var w alertWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = Alert{
		ID:           w.ID,
		Timestamp:    w.Timestamp,
		Severity:     w.Severity,
		Type:         w.Type,
		Title:        w.Title,
		Message:      w.Message,
		Metadata:     w.Metadata,
		Acknowledged: w.Acknowledged,
		Resolved:     w.Resolved,
	}
	if w.AcknowledgedAt != nil {
		a.AcknowledgedAt = *w.AcknowledgedAt
	}
	if w.ResolvedAt != nil {
		a.ResolvedAt = *w.ResolvedAt
	}
	if w.Resolution != nil {
		a.Resolution = *w.Resolution
	}
	return nil
}

// HealthSnapshot is one cycle's aggregate reading of host health. The zero
// value's Timestamp reports "never computed".
type HealthSnapshot struct {
	Timestamp          time.Time `json:"timestamp"`
	CPUUsagePercent    float64   `json:"cpu_usage_percent"`
	MemoryUsagePercent float64   `json:"memory_usage_percent"`
	DiskUsagePercent   float64   `json:"disk_usage_percent"`
	MemoryUsedMB       float64   `json:"memory_used_mb"`
	MemoryTotalMB      float64   `json:"memory_total_mb"`
	DiskUsedGB         float64   `json:"disk_used_gb"`
	DiskTotalGB        float64   `json:"disk_total_gb"`
	PendingUpdates     int       `json:"pending_updates"`
	SecurityUpdates    int       `json:"security_updates"`
	ActiveAlerts       int       `json:"active_alerts"`
	CriticalAlerts     int       `json:"critical_alerts"`
	LLMLoaded          bool      `json:"llm_loaded"`
	LLMModelName       string    `json:"llm_model_name"`
	InferenceQueueSize int       `json:"inference_queue_size"`
}

// PackageUpdate is one pending package update reported by the package
// manager. Ephemeral; the monitor caches the latest apt result between the
// cycles on which it runs the apt collector.
type PackageUpdate struct {
	Name             string `json:"name"`
	CurrentVersion   string `json:"current_version"`
	AvailableVersion string `json:"available_version"`
	Source           string `json:"source"`
	IsSecurity       bool   `json:"is_security"`
}

// CVEResult is one vulnerability finding. Ephemeral; the CVE collector keeps
// no cache, and the monitor runs a fresh scan on every cycle.
type CVEResult struct {
	CVEID            string      `json:"cve_id"`
	PackageName      string      `json:"package_name"`
	InstalledVersion string      `json:"installed_version"`
	FixedVersion     string      `json:"fixed_version,omitempty"`
	Severity         CVESeverity `json:"severity"`
	Description      string      `json:"description,omitempty"`
	URL              string      `json:"url,omitempty"`
}

// RequestEnvelope is the JSON shape of one IPC request. Params is left raw so
// each handler can decode into its own expected shape.
type RequestEnvelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     string          `json:"id,omitempty"`
}

// ErrorDetail carries a human-readable message and a stable error code.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// ResponseEnvelope is the JSON shape of one IPC response.
type ResponseEnvelope struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
	ID      string       `json:"id,omitempty"`
}

// Error codes, stable across releases (spec.md §6).
const (
	CodeOK             = 0
	CodeParseError     = 1
	CodeInvalidParams  = 2
	CodeMethodNotFound = 3
	CodeInternalError  = 4
	CodeRateLimited    = 5
	CodeConfigError    = 6
	CodeAlertNotFound  = 7
	CodeLLMNotLoaded   = 8
)
