// Package metrics records per-call validation outcomes, aggregates them over
// time windows, and exposes them to the alerting layer. Persistence is
// SQLite; collection failures never break the validation path.
package metrics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds. RFC3339Nano trims
// trailing zeros, which breaks lexicographic ordering of the stored text;
// the padded form keeps SQL comparisons in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Store persists metric records in SQLite. WAL mode is enabled for
// concurrent reads.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex

	// maxRecords caps the table; inserts evict the oldest rows past it.
	maxRecords int
}

// OpenStore opens (and migrates) the metrics database at path, creating
// parent directories as needed. maxRecords <= 0 means no size cap.
func OpenStore(path string, maxRecords int) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{conn: conn, path: path, maxRecords: maxRecords}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies pending schema migrations.
func (s *Store) migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Records},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Records = `
CREATE TABLE IF NOT EXISTS validation_metrics (
	id TEXT PRIMARY KEY,
	template_id TEXT NOT NULL DEFAULT '',
	persona_type TEXT NOT NULL DEFAULT '',
	timestamp DATETIME NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	is_valid INTEGER NOT NULL DEFAULT 0,
	score INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	fallback_used INTEGER NOT NULL DEFAULT 0,
	rules_executed TEXT,
	rules_failed TEXT
);

CREATE INDEX IF NOT EXISTS idx_metrics_template_id ON validation_metrics(template_id);
CREATE INDEX IF NOT EXISTS idx_metrics_timestamp ON validation_metrics(timestamp);
`

// Insert persists one record and evicts the oldest rows past the size cap.
func (s *Store) Insert(rec models.MetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	executed, err := json.Marshal(rec.RulesExecuted)
	if err != nil {
		return fmt.Errorf("marshal rules_executed: %w", err)
	}
	failed, err := json.Marshal(rec.RulesFailed)
	if err != nil {
		return fmt.Errorf("marshal rules_failed: %w", err)
	}

	_, err = s.conn.Exec(`
		INSERT INTO validation_metrics
			(id, template_id, persona_type, timestamp, duration_ms, is_valid,
			 score, retry_count, fallback_used, rules_executed, rules_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TemplateID, string(rec.PersonaType),
		formatTime(rec.Timestamp),
		rec.Duration.Milliseconds(), boolInt(rec.IsValid), rec.Score,
		rec.RetryCount, boolInt(rec.FallbackUsed), string(executed), string(failed))
	if err != nil {
		return fmt.Errorf("insert metric record: %w", err)
	}

	if s.maxRecords > 0 {
		_, err = s.conn.Exec(`
			DELETE FROM validation_metrics WHERE id IN (
				SELECT id FROM validation_metrics
				ORDER BY timestamp DESC LIMIT -1 OFFSET ?
			)`, s.maxRecords)
		if err != nil {
			return fmt.Errorf("enforce record cap: %w", err)
		}
	}
	return nil
}

// Filter narrows metric queries. Zero values mean "any".
type Filter struct {
	TemplateID  string
	PersonaType models.PersonaType
	Since       time.Time
	Until       time.Time
}

// Query returns records matching the filter, newest first.
func (s *Store) Query(f Filter) ([]models.MetricRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, template_id, persona_type, timestamp, duration_ms, is_valid, score, retry_count, fallback_used, rules_executed, rules_failed FROM validation_metrics"
	var clauses []string
	var args []any
	if f.TemplateID != "" {
		clauses = append(clauses, "template_id = ?")
		args = append(args, f.TemplateID)
	}
	if f.PersonaType != "" {
		clauses = append(clauses, "persona_type = ?")
		args = append(args, string(f.PersonaType))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "timestamp < ?")
		args = append(args, formatTime(f.Until))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query metric records: %w", err)
	}
	defer rows.Close()

	var out []models.MetricRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the total number of stored records.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.conn.QueryRow("SELECT COUNT(*) FROM validation_metrics").Scan(&n)
	return n, err
}

// DeleteOlderThan purges records before the cutoff and reports how many
// were removed.
func (s *Store) DeleteOlderThan(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.conn.Exec("DELETE FROM validation_metrics WHERE timestamp < ?",
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old records: %w", err)
	}
	return res.RowsAffected()
}

// scanRecord reads one row into a MetricRecord.
func scanRecord(rows *sql.Rows) (models.MetricRecord, error) {
	var rec models.MetricRecord
	var personaType, timestamp, executed, failed string
	var durationMillis int64
	var isValid, fallbackUsed int

	err := rows.Scan(&rec.ID, &rec.TemplateID, &personaType, &timestamp,
		&durationMillis, &isValid, &rec.Score, &rec.RetryCount, &fallbackUsed,
		&executed, &failed)
	if err != nil {
		return rec, fmt.Errorf("scan metric record: %w", err)
	}

	rec.PersonaType = models.PersonaType(personaType)
	rec.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return rec, fmt.Errorf("parse record timestamp: %w", err)
	}
	rec.Duration = time.Duration(durationMillis) * time.Millisecond
	rec.IsValid = isValid != 0
	rec.FallbackUsed = fallbackUsed != 0

	if executed != "" {
		if err := json.Unmarshal([]byte(executed), &rec.RulesExecuted); err != nil {
			return rec, fmt.Errorf("parse rules_executed: %w", err)
		}
	}
	if failed != "" {
		if err := json.Unmarshal([]byte(failed), &rec.RulesFailed); err != nil {
			return rec, fmt.Errorf("parse rules_failed: %w", err)
		}
	}
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
