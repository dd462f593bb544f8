package roster

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists reference data (students, faculty, sections) in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// StudentByID returns a student or nil when none exists.
func (r *Repository) StudentByID(ctx context.Context, id string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, section_id, active, face_enrolled, photo_url, enrolled_at, created_at
		FROM students WHERE id = $1
	`, id)
	var s Student
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.SectionID, &s.Active, &s.FaceEnrolled, &s.PhotoURL, &s.EnrolledAt, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// FacultyByID returns a faculty member or nil when none exists.
func (r *Repository) FacultyByID(ctx context.Context, id string) (*Faculty, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, active, created_at
		FROM faculty WHERE id = $1
	`, id)
	return scanFaculty(row)
}

// FacultyByEmail returns a faculty member by login email or nil.
func (r *Repository) FacultyByEmail(ctx context.Context, email string) (*Faculty, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, active, created_at
		FROM faculty WHERE email = $1
	`, email)
	return scanFaculty(row)
}

func scanFaculty(row *sql.Row) (*Faculty, error) {
	var f Faculty
	if err := row.Scan(&f.ID, &f.Name, &f.Email, &f.PasswordHash, &f.Active, &f.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

// SectionByID returns a section or nil when none exists.
func (r *Repository) SectionByID(ctx context.Context, id string) (*Section, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, faculty_id, created_at
		FROM sections WHERE id = $1
	`, id)
	var s Section
	if err := row.Scan(&s.ID, &s.Name, &s.FacultyID, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// CreateStudent inserts a student with a generated id.
func (r *Repository) CreateStudent(ctx context.Context, name, email, sectionID string) (Student, error) {
	s := Student{ID: uuid.NewString(), Name: name, Email: email, SectionID: sectionID, Active: true}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, name, email, section_id, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING created_at
	`, s.ID, s.Name, s.Email, s.SectionID)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Student{}, err
	}
	return s, nil
}

// UpdateStudent overwrites mutable student fields.
func (r *Repository) UpdateStudent(ctx context.Context, id, name, email, sectionID string, active bool) (*Student, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET name = $2, email = $3, section_id = $4, active = $5, updated_at = NOW()
		WHERE id = $1
	`, id, name, email, sectionID, active)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return r.StudentByID(ctx, id)
}

// ListStudents returns students, optionally filtered by section.
func (r *Repository) ListStudents(ctx context.Context, sectionID string) ([]Student, error) {
	query := `
		SELECT id, name, email, section_id, active, face_enrolled, photo_url, enrolled_at, created_at
		FROM students`
	args := []any{}
	if sectionID != "" {
		query += ` WHERE section_id = $1`
		args = append(args, sectionID)
	}
	query += ` ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.SectionID, &s.Active, &s.FaceEnrolled, &s.PhotoURL, &s.EnrolledAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetStudentFace records the outcome of a face-enrollment attempt.
func (r *Repository) SetStudentFace(ctx context.Context, id string, enrolled bool, photoURL string) error {
	var enrolledAt any
	if enrolled {
		enrolledAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET face_enrolled = $2, enrolled_at = $3, photo_url = COALESCE(NULLIF($4, ''), photo_url), updated_at = NOW()
		WHERE id = $1
	`, id, enrolled, enrolledAt, photoURL)
	return err
}

// CreateSection inserts a section with a generated id.
func (r *Repository) CreateSection(ctx context.Context, name, facultyID string) (Section, error) {
	s := Section{ID: uuid.NewString(), Name: name, FacultyID: facultyID}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sections (id, name, faculty_id)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, s.ID, s.Name, s.FacultyID)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return Section{}, err
	}
	return s, nil
}

// ListSections returns all sections ordered by name.
func (r *Repository) ListSections(ctx context.Context) ([]Section, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, faculty_id, created_at
		FROM sections
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Section
	for rows.Next() {
		var s Section
		if err := rows.Scan(&s.ID, &s.Name, &s.FacultyID, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ListFaculty returns all faculty ordered by name.
func (r *Repository) ListFaculty(ctx context.Context) ([]Faculty, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, active, created_at
		FROM faculty
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Faculty
	for rows.Next() {
		var f Faculty
		if err := rows.Scan(&f.ID, &f.Name, &f.Email, &f.PasswordHash, &f.Active, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
