// Package scorestore keeps audit run summaries and grading scorecards in a
// SQLite database so runs can be compared over time.
package scorestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"accountant/internal/evaluate"
	"accountant/internal/grade"

	_ "modernc.org/sqlite"
)

// AuditRun is the persisted summary of one audit invocation.
type AuditRun struct {
	RunID          string
	ConcernID      string
	TotalProcessed int
	ValidCases     int
	Violations     int
	Dropped        int
	CoverageRatio  float64
	CreatedAt      time.Time
}

// Store is a SQLite-backed scorecard store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and migrates it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("scorestore: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("scorestore: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("scorestore: ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("scorestore: check schema_version table: %w", err)
	}
	if tableCount == 0 {
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("scorestore: create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("scorestore: set schema version: %w", err)
		}
		return nil
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("scorestore: read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("scorestore: unknown schema version %d", v)
	}
	return nil
}

// SaveAuditRun records an audit summary. Saving the same run id twice
// replaces the earlier row.
func (s *Store) SaveAuditRun(ctx context.Context, r AuditRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_runs(run_id, concern_id, total_processed, valid_cases, violations, dropped, coverage_ratio, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			concern_id=excluded.concern_id,
			total_processed=excluded.total_processed,
			valid_cases=excluded.valid_cases,
			violations=excluded.violations,
			dropped=excluded.dropped,
			coverage_ratio=excluded.coverage_ratio,
			created_at=excluded.created_at`,
		r.RunID, nullable(r.ConcernID), r.TotalProcessed, r.ValidCases, r.Violations, r.Dropped, r.CoverageRatio, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("scorestore: save audit run %s: %w", r.RunID, err)
	}
	return nil
}

// ListAuditRuns returns audit runs, newest first.
func (s *Store) ListAuditRuns(ctx context.Context) ([]AuditRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, concern_id, total_processed, valid_cases, violations, dropped, coverage_ratio, created_at
		FROM audit_runs ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("scorestore: list audit runs: %w", err)
	}
	defer rows.Close()

	var out []AuditRun
	for rows.Next() {
		var r AuditRun
		var concern sql.NullString
		var created string
		if err := rows.Scan(&r.RunID, &concern, &r.TotalProcessed, &r.ValidCases, &r.Violations, &r.Dropped, &r.CoverageRatio, &created); err != nil {
			return nil, fmt.Errorf("scorestore: scan audit run: %w", err)
		}
		r.ConcernID = nullStr(concern)
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveScorecards stores scorecards in one transaction.
func (s *Store) SaveScorecards(ctx context.Context, cards []evaluate.Scorecard) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("scorestore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, sc := range cards {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO scorecards(run_id, test_id, task_id, metric_id, archetype, overall_label, created_at)
			VALUES(?, ?, ?, ?, ?, ?, ?)`,
			sc.RunID, nullable(sc.TestID), sc.TaskID, nullable(sc.MetricID), nullable(sc.Archetype), string(sc.OverallLabel), formatTime(sc.CreatedAt))
		if err != nil {
			return fmt.Errorf("scorestore: insert scorecard %s: %w", sc.TestID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("scorestore: scorecard id: %w", err)
		}
		for _, crit := range sc.Criteria() {
			r := sc.Scores[crit]
			blob, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("scorestore: marshal %s/%s: %w", sc.TestID, crit, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO scores(scorecard_id, criterion, score, flagged, reasoning, result_json)
				VALUES(?, ?, ?, ?, ?, ?)`,
				id, crit, r.Score, boolInt(r.Flagged), r.Reasoning, string(blob)); err != nil {
				return fmt.Errorf("scorestore: insert score %s/%s: %w", sc.TestID, crit, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("scorestore: commit: %w", err)
	}
	return nil
}

// ListByRun returns the scorecards of one run in insertion order.
func (s *Store) ListByRun(ctx context.Context, runID string) ([]evaluate.Scorecard, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, test_id, task_id, metric_id, archetype, overall_label, created_at
		FROM scorecards WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("scorestore: list run %s: %w", runID, err)
	}
	var ids []int64
	var out []evaluate.Scorecard
	for rows.Next() {
		var id int64
		var sc evaluate.Scorecard
		var testID, metricID, archetype sql.NullString
		var label, created string
		if err := rows.Scan(&id, &sc.RunID, &testID, &sc.TaskID, &metricID, &archetype, &label, &created); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scorestore: scan scorecard: %w", err)
		}
		sc.TestID = nullStr(testID)
		sc.MetricID = nullStr(metricID)
		sc.Archetype = nullStr(archetype)
		sc.OverallLabel = evaluate.Label(label)
		sc.CreatedAt = parseTime(created)
		sc.Scores = make(map[string]grade.Result)
		ids = append(ids, id)
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("scorestore: list run %s: %w", runID, err)
	}
	rows.Close()

	for i, id := range ids {
		if err := s.loadScores(ctx, id, out[i].Scores); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadScores(ctx context.Context, scorecardID int64, into map[string]grade.Result) error {
	rows, err := s.db.QueryContext(ctx, "SELECT criterion, result_json FROM scores WHERE scorecard_id = ?", scorecardID)
	if err != nil {
		return fmt.Errorf("scorestore: load scores: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var crit, blob string
		if err := rows.Scan(&crit, &blob); err != nil {
			return fmt.Errorf("scorestore: scan score: %w", err)
		}
		var r grade.Result
		if err := json.Unmarshal([]byte(blob), &r); err != nil {
			return fmt.Errorf("scorestore: decode score %s: %w", crit, err)
		}
		into[crit] = r
	}
	return rows.Err()
}

// LabelCounts tallies overall labels for a run.
func (s *Store) LabelCounts(ctx context.Context, runID string) (map[evaluate.Label]int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT overall_label, COUNT(*) FROM scorecards WHERE run_id = ? GROUP BY overall_label", runID)
	if err != nil {
		return nil, fmt.Errorf("scorestore: label counts: %w", err)
	}
	defer rows.Close()
	out := make(map[evaluate.Label]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scorestore: scan label count: %w", err)
		}
		out[evaluate.Label(label)] = n
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
