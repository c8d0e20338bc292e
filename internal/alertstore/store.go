// Package alertstore is the SQLite-backed persistence layer for alerts: a
// single table plus indices, row<->Alert mapping, tolerant of storage
// failures at its public boundary (spec.md §4.2, §7).
package alertstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cortexd/cortexd/internal/types"

	_ "modernc.org/sqlite"
)

// Store owns the SQLite handle exclusively; no other component touches the
// database file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates the database file's parent directory if needed, opens the
// database, and initializes the schema. It fails if the path is unwritable.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			severity INTEGER NOT NULL,
			type INTEGER NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata TEXT,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			resolved INTEGER NOT NULL DEFAULT 0,
			acknowledged_at INTEGER,
			resolved_at INTEGER,
			resolution TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_timestamp ON alerts(timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_severity ON alerts(severity);`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_acknowledged ON alerts(acknowledged);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the SQLite handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

var severityRank = map[types.Severity]int{
	types.SeverityInfo:     0,
	types.SeverityWarning:  1,
	types.SeverityCritical: 2,
}

var rankSeverity = map[int]types.Severity{
	0: types.SeverityInfo,
	1: types.SeverityWarning,
	2: types.SeverityCritical,
}

var typeRank = map[types.AlertType]int{
	types.AlertDiskUsage:      0,
	types.AlertMemoryUsage:    1,
	types.AlertCPUUsage:       2,
	types.AlertSecurityUpdate: 3,
	types.AlertCVEFound:       4,
	types.AlertAIAnalysis:     5,
	types.AlertSystem:         6,
}

var rankType = map[int]types.AlertType{
	0: types.AlertDiskUsage,
	1: types.AlertMemoryUsage,
	2: types.AlertCPUUsage,
	3: types.AlertSecurityUpdate,
	4: types.AlertCVEFound,
	5: types.AlertAIAnalysis,
	6: types.AlertSystem,
}

func severityToInt(s types.Severity) int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank[types.SeverityInfo]
}

func typeToInt(t types.AlertType) int {
	if r, ok := typeRank[t]; ok {
		return r
	}
	return typeRank[types.AlertSystem]
}

func nullableUnix(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func timeFromNullable(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.Unix(v.Int64, 0).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Insert atomically stores a new alert. A duplicate id fails.
func (s *Store) Insert(ctx context.Context, a types.Alert) error {
	metadata, err := encodeMetadata(a.Metadata)
	if err != nil {
		s.logger.Error("encode alert metadata", "alert_id", a.ID, "error", err)
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, timestamp, severity, type, title, message, metadata,
			acknowledged, resolved, acknowledged_at, resolved_at, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Timestamp.Unix(), severityToInt(a.Severity), typeToInt(a.Type), a.Title, a.Message, metadata,
		boolToInt(a.Acknowledged), boolToInt(a.Resolved), nullableUnix(a.AcknowledgedAt), nullableUnix(a.ResolvedAt), a.Resolution)
	if err != nil {
		s.logger.Error("insert alert", "alert_id", a.ID, "error", err)
		return err
	}
	return nil
}

// Update rewrites only the mutable fields of an existing alert: the
// acknowledged/resolved flags, their timestamps, and resolution. Immutable
// fields (id, timestamp, severity, type, title, message, metadata) are left
// untouched.
func (s *Store) Update(ctx context.Context, a types.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET
			acknowledged = ?, resolved = ?, acknowledged_at = ?, resolved_at = ?, resolution = ?
		WHERE id = ?
	`, boolToInt(a.Acknowledged), boolToInt(a.Resolved), nullableUnix(a.AcknowledgedAt), nullableUnix(a.ResolvedAt), a.Resolution, a.ID)
	if err != nil {
		s.logger.Error("update alert", "alert_id", a.ID, "error", err)
		return err
	}
	return nil
}

// Remove deletes the alert with the given id and reports whether a row was
// removed.
func (s *Store) Remove(ctx context.Context, id string) bool {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		s.logger.Error("remove alert", "alert_id", id, "error", err)
		return false
	}
	n, err := res.RowsAffected()
	if err != nil {
		s.logger.Error("remove alert rows affected", "alert_id", id, "error", err)
		return false
	}
	return n > 0
}

const selectColumns = `id, timestamp, severity, type, title, message, metadata,
	acknowledged, resolved, acknowledged_at, resolved_at, resolution`

func scanAlert(row interface{ Scan(...any) error }) (types.Alert, error) {
	var (
		a              types.Alert
		ts             int64
		severity, typ  int
		metadata       sql.NullString
		acknowledged   int
		resolved       int
		acknowledgedAt sql.NullInt64
		resolvedAt     sql.NullInt64
		resolution     sql.NullString
	)
	if err := row.Scan(&a.ID, &ts, &severity, &typ, &a.Title, &a.Message, &metadata,
		&acknowledged, &resolved, &acknowledgedAt, &resolvedAt, &resolution); err != nil {
		return types.Alert{}, err
	}
	a.Timestamp = time.Unix(ts, 0).UTC()
	a.Severity = rankSeverity[severity]
	a.Type = rankType[typ]
	a.Metadata = decodeMetadata(metadata.String)
	a.Acknowledged = acknowledged != 0
	a.Resolved = resolved != 0
	a.AcknowledgedAt = timeFromNullable(acknowledgedAt)
	a.ResolvedAt = timeFromNullable(resolvedAt)
	a.Resolution = resolution.String
	return a, nil
}

// Get retrieves one alert by id, or nil if it doesn't exist.
func (s *Store) Get(ctx context.Context, id string) *types.Alert {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("get alert", "alert_id", id, "error", err)
		}
		return nil
	}
	return &a
}

func (s *Store) queryAlerts(ctx context.Context, query string, args ...any) []types.Alert {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("query alerts", "error", err)
		return nil
	}
	defer rows.Close()

	var out []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			s.logger.Error("scan alert row", "error", err)
			continue
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("iterate alerts", "error", err)
	}
	return out
}

// GetAll returns up to limit alerts ordered by timestamp descending.
func (s *Store) GetAll(ctx context.Context, limit int) []types.Alert {
	return s.queryAlerts(ctx, `SELECT `+selectColumns+` FROM alerts ORDER BY timestamp DESC LIMIT ?`, limit)
}

// GetActive returns unacknowledged alerts ordered by timestamp descending.
func (s *Store) GetActive(ctx context.Context) []types.Alert {
	return s.queryAlerts(ctx, `SELECT `+selectColumns+` FROM alerts WHERE acknowledged = 0 ORDER BY timestamp DESC`)
}

// GetBySeverity returns unacknowledged alerts of the given severity, newest
// first.
func (s *Store) GetBySeverity(ctx context.Context, sev types.Severity) []types.Alert {
	return s.queryAlerts(ctx, `SELECT `+selectColumns+` FROM alerts WHERE severity = ? AND acknowledged = 0 ORDER BY timestamp DESC`, severityToInt(sev))
}

// GetByType returns unacknowledged alerts of the given type, newest first.
func (s *Store) GetByType(ctx context.Context, t types.AlertType) []types.Alert {
	return s.queryAlerts(ctx, `SELECT `+selectColumns+` FROM alerts WHERE type = ? AND acknowledged = 0 ORDER BY timestamp DESC`, typeToInt(t))
}

// CountActive returns the number of unacknowledged alerts.
func (s *Store) CountActive(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE acknowledged = 0`).Scan(&n); err != nil {
		s.logger.Error("count active alerts", "error", err)
		return 0
	}
	return n
}

// CountBySeverity returns the number of unacknowledged alerts of the given
// severity.
func (s *Store) CountBySeverity(ctx context.Context, sev types.Severity) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE severity = ? AND acknowledged = 0`, severityToInt(sev)).Scan(&n); err != nil {
		s.logger.Error("count alerts by severity", "severity", sev, "error", err)
		return 0
	}
	return n
}

// CleanupBefore deletes resolved alerts older than cutoff and returns the
// count removed.
func (s *Store) CleanupBefore(ctx context.Context, cutoff time.Time) int {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE timestamp < ? AND resolved = 1`, cutoff.Unix())
	if err != nil {
		s.logger.Error("cleanup alerts", "error", err)
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		s.logger.Error("cleanup alerts rows affected", "error", err)
		return 0
	}
	return int(n)
}
