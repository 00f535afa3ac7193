package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

const selectFindingCols = `f.id, f.loop_run_id, r.loop_name, f.severity, f.target_type, f.target_id,
	f.message, f.recommended_action, f.signature, f.created_at`

const findingsFrom = ` FROM loop_findings f JOIN loop_runs r ON r.id = f.loop_run_id`

// HasFindingSince reports whether a finding with signature was created after since.
func (s *SQLiteStore) HasFindingSince(ctx context.Context, signature string, since time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM loop_findings WHERE signature = ? AND created_at > ? LIMIT 1",
		signature, formatTime(since)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "query recent finding", goerr.V("signature", signature))
	}
	return true, nil
}

// DedupBucket returns the unique-index key for a finding created at t under a
// dedup window. Findings sharing a bucket are always less than window apart.
func DedupBucket(t time.Time, window time.Duration) string {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return formatTime(t.UTC().Truncate(window)) + "/" + window.String()
}

// InsertFinding appends a finding. It returns false without error when a
// finding with the same signature already exists in the same dedup bucket.
// An empty DedupBucket defaults to the 24h bucket of CreatedAt.
func (s *SQLiteStore) InsertFinding(ctx context.Context, f *LoopFinding) (bool, error) {
	if f.ID == "" {
		f.ID = NewID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	if f.DedupBucket == "" {
		f.DedupBucket = DedupBucket(f.CreatedAt, 24*time.Hour)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO loop_findings (
			id, loop_run_id, severity, target_type, target_id, message,
			recommended_action, signature, dedup_bucket, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		f.ID,
		f.LoopRunID,
		string(f.Severity),
		f.TargetType,
		f.TargetID,
		f.Message,
		nullString(f.RecommendedAction),
		f.Signature,
		f.DedupBucket,
		formatTime(f.CreatedAt),
	)
	if err != nil {
		return false, goerr.Wrap(err, "insert loop finding", goerr.V("signature", f.Signature))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "insert loop finding")
	}
	return rows > 0, nil
}

func scanFinding(row scanner) (*LoopFinding, error) {
	var f LoopFinding
	var severity, createdAt string
	var recommended sql.NullString

	if err := row.Scan(
		&f.ID,
		&f.LoopRunID,
		&f.LoopName,
		&severity,
		&f.TargetType,
		&f.TargetID,
		&f.Message,
		&recommended,
		&f.Signature,
		&createdAt,
	); err != nil {
		return nil, err
	}

	f.Severity = Severity(severity)
	if recommended.Valid {
		f.RecommendedAction = recommended.String
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	f.CreatedAt = t
	return &f, nil
}

func (s *SQLiteStore) queryFindings(ctx context.Context, query string, args ...any) ([]*LoopFinding, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "list loop findings")
	}
	defer rows.Close()

	findings := make([]*LoopFinding, 0)
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, err
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// ListFindingsByRun returns the findings of one run, newest first.
func (s *SQLiteStore) ListFindingsByRun(ctx context.Context, runID string) ([]*LoopFinding, error) {
	return s.queryFindings(ctx,
		"SELECT "+selectFindingCols+findingsFrom+" WHERE f.loop_run_id = ? ORDER BY f.created_at DESC, f.id DESC",
		runID)
}

// ListFindings returns findings matching q ordered by created_at descending,
// along with the total number of matches ignoring Limit/Offset.
func (s *SQLiteStore) ListFindings(ctx context.Context, q FindingQuery) ([]*LoopFinding, int, error) {
	w := &where{}
	if q.LoopName != "" {
		w.add("r.loop_name = ?", q.LoopName)
	}
	if q.Severity != "" {
		w.add("f.severity = ?", string(q.Severity))
	}
	if q.TargetType != "" {
		w.add("f.target_type = ?", q.TargetType)
	}
	if q.From != nil {
		w.add("f.created_at >= ?", formatTime(*q.From))
	}
	if q.To != nil {
		w.add("f.created_at <= ?", formatTime(*q.To))
	}

	total, err := s.count(ctx, "SELECT COUNT(*)"+findingsFrom+w.String(), w.args...)
	if err != nil {
		return nil, 0, goerr.Wrap(err, "count loop findings")
	}

	query, args := paginate(
		"SELECT "+selectFindingCols+findingsFrom+w.String()+" ORDER BY f.created_at DESC, f.id DESC",
		w.args, q.Limit, q.Offset)
	findings, err := s.queryFindings(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return findings, total, nil
}

// CountFindingsSince counts findings created at or after since.
func (s *SQLiteStore) CountFindingsSince(ctx context.Context, since time.Time) (int, error) {
	n, err := s.count(ctx, "SELECT COUNT(*) FROM loop_findings WHERE created_at >= ?", formatTime(since))
	if err != nil {
		return 0, goerr.Wrap(err, "count loop findings")
	}
	return n, nil
}
