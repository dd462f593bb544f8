package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// LedgerRepository persists the attendance ledger in Postgres. The
// table carries a unique constraint on (student_id, date); that
// constraint is the backstop for concurrent syncs racing on the same
// conflict key.
type LedgerRepository struct {
	db *sql.DB
}

// NewLedgerRepository creates a repo.
func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// FindEntry returns the ledger entry at (studentID, date) or nil.
func (r *LedgerRepository) FindEntry(ctx context.Context, studentID string, date time.Time) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, faculty_id, section_id, date, status, capture_method, synced_at
		FROM attendance_ledger
		WHERE student_id = $1 AND date = $2
	`, studentID, DayOf(date))
	var e Entry
	if err := row.Scan(&e.ID, &e.StudentID, &e.FacultyID, &e.SectionID, &e.Date, &e.Status, &e.CaptureMethod, &e.SyncedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Commit applies one validated record in its own transaction: insert a
// fresh entry for the conflict key, or overwrite the existing one in
// place. The returned bool reports whether an existing entry was
// updated. Each record gets its own transaction so one failure cannot
// roll back its batch siblings.
func (r *LedgerRepository) Commit(ctx context.Context, rec Record, syncedAt time.Time) (Entry, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM attendance_ledger
		WHERE student_id = $1 AND date = $2
		FOR UPDATE
	`, rec.StudentID, rec.Date).Scan(&existingID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, err
	}

	var entry Entry
	updated := existingID != ""
	if updated {
		// Last write wins: overwrite in place, keep the id and date.
		row := tx.QueryRowContext(ctx, `
			UPDATE attendance_ledger
			SET status = $2, capture_method = $3, faculty_id = $4, section_id = $5, synced_at = $6
			WHERE id = $1
			RETURNING id, student_id, faculty_id, section_id, date, status, capture_method, synced_at
		`, existingID, rec.Status, rec.CaptureMethod, rec.FacultyID, rec.SectionID, syncedAt)
		if err := row.Scan(&entry.ID, &entry.StudentID, &entry.FacultyID, &entry.SectionID, &entry.Date, &entry.Status, &entry.CaptureMethod, &entry.SyncedAt); err != nil {
			return Entry{}, false, err
		}
	} else {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO attendance_ledger (id, student_id, faculty_id, section_id, date, status, capture_method, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, student_id, faculty_id, section_id, date, status, capture_method, synced_at
		`, uuid.NewString(), rec.StudentID, rec.FacultyID, rec.SectionID, rec.Date, rec.Status, rec.CaptureMethod, syncedAt)
		if err := row.Scan(&entry.ID, &entry.StudentID, &entry.FacultyID, &entry.SectionID, &entry.Date, &entry.Status, &entry.CaptureMethod, &entry.SyncedAt); err != nil {
			return Entry{}, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Entry{}, false, fmt.Errorf("commit: %w", err)
	}
	return entry, updated, nil
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (a concurrent sync won the insert race for the same
// student/date). The client resubmits and lands on the update path.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// History returns ledger entries for a student, newest first, joined
// with display names, optionally bounded to [from, to].
func (r *LedgerRepository) History(ctx context.Context, studentID string, from, to *time.Time, limit, offset int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT l.id, l.student_id, l.faculty_id, l.section_id, l.date, l.status, l.capture_method, l.synced_at,
		       st.name, f.name, sec.name
		FROM attendance_ledger l
		JOIN students st ON st.id = l.student_id
		JOIN faculty f ON f.id = l.faculty_id
		JOIN sections sec ON sec.id = l.section_id
		WHERE l.student_id = $1`
	args := []any{studentID}
	if from != nil {
		args = append(args, DayOf(*from))
		query += fmt.Sprintf(" AND l.date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, DayOf(*to))
		query += fmt.Sprintf(" AND l.date <= $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY l.date DESC, l.synced_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.StudentID, &h.FacultyID, &h.SectionID, &h.Date, &h.Status, &h.CaptureMethod, &h.SyncedAt,
			&h.StudentName, &h.FacultyName, &h.SectionName); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
