package attendance

import (
	"context"
	"fmt"
	"time"

	"attendsync/internal/roster"
)

// Roster is the reference-data lookup surface the validator needs. It is
// satisfied by roster.Repository and roster.Cache; lookups return nil
// (not an error) when the entity does not exist.
type Roster interface {
	StudentByID(ctx context.Context, id string) (*roster.Student, error)
	FacultyByID(ctx context.Context, id string) (*roster.Faculty, error)
	SectionByID(ctx context.Context, id string) (*roster.Section, error)
}

// Validator classifies submitted records independently of one another.
// It is the single authoritative referential check: the commit path
// trusts validated records and never re-checks references.
type Validator struct {
	roster    Roster
	ledger    Ledger
	retention time.Duration
	now       func() time.Time
}

// NewValidator creates a validator. retention is how far back a record
// timestamp may reach before it is annotated as stale; records older
// than the horizon still sync.
func NewValidator(ro Roster, ledger Ledger, retention time.Duration) *Validator {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Validator{roster: ro, ledger: ledger, retention: retention, now: time.Now}
}

// Validate checks one raw record. On success it returns the validated
// record plus any warnings (stale timestamp, pending conflict
// overwrite). On failure it returns every applicable error message for
// the record, not just the first, so the client gets actionable
// feedback in one round trip.
//
// Shape failures disqualify the record from the reference and temporal
// checks; once shape passes, both of those run and their errors
// accumulate together.
func (v *Validator) Validate(ctx context.Context, raw RawRecord) (*Record, []string, []string) {
	rec, shapeErrs := parseShape(raw)
	if len(shapeErrs) > 0 {
		return nil, shapeErrs, nil
	}

	var errs, warns []string

	errs = append(errs, v.checkReferences(ctx, rec)...)

	tempErrs, tempWarns := v.checkTemporal(rec)
	errs = append(errs, tempErrs...)
	warns = append(warns, tempWarns...)

	if len(errs) > 0 {
		return nil, errs, nil
	}

	// Duplicate on the same day is not an error: the committer will
	// overwrite the existing entry, the client just gets told.
	existing, err := v.ledger.FindEntry(ctx, rec.StudentID, rec.Date)
	if err != nil {
		return nil, []string{fmt.Sprintf("ledger lookup failed: %v", err)}, nil
	}
	if existing != nil {
		warns = append(warns, fmt.Sprintf("existing entry for student %s on %s will be overwritten", rec.StudentID, rec.Date.Format("2006-01-02")))
	}

	return rec, nil, warns
}

// parseShape turns a raw record into a typed one, collecting every
// shape violation.
func parseShape(raw RawRecord) (*Record, []string) {
	var errs []string
	if raw.StudentID == "" {
		errs = append(errs, "studentId is required")
	}
	if raw.FacultyID == "" {
		errs = append(errs, "facultyId is required")
	}
	if raw.SectionID == "" {
		errs = append(errs, "sectionId is required")
	}

	var ts time.Time
	if raw.Timestamp == "" {
		errs = append(errs, "timestamp is required")
	} else {
		parsed, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			errs = append(errs, fmt.Sprintf("timestamp %q is not a valid RFC3339 time", raw.Timestamp))
		} else {
			ts = parsed.UTC()
		}
	}

	status := Status(raw.Status)
	if status != StatusPresent && status != StatusAbsent {
		errs = append(errs, fmt.Sprintf("status %q must be %q or %q", raw.Status, StatusPresent, StatusAbsent))
	}
	method := CaptureMethod(raw.CaptureMethod)
	if method != CaptureML && method != CaptureManual {
		errs = append(errs, fmt.Sprintf("captureMethod %q must be %q or %q", raw.CaptureMethod, CaptureML, CaptureManual))
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &Record{
		ClientID:      raw.ID,
		RetryCount:    raw.RetryCount,
		StudentID:     raw.StudentID,
		FacultyID:     raw.FacultyID,
		SectionID:     raw.SectionID,
		Timestamp:     ts,
		Date:          DayOf(ts),
		Status:        status,
		CaptureMethod: method,
	}, nil
}

func (v *Validator) checkReferences(ctx context.Context, rec *Record) []string {
	var errs []string

	student, err := v.roster.StudentByID(ctx, rec.StudentID)
	switch {
	case err != nil:
		errs = append(errs, fmt.Sprintf("student lookup failed: %v", err))
	case student == nil:
		errs = append(errs, fmt.Sprintf("student %s not found", rec.StudentID))
	case !student.Active:
		errs = append(errs, fmt.Sprintf("student %s is inactive", rec.StudentID))
	case student.SectionID != rec.SectionID:
		errs = append(errs, fmt.Sprintf("student %s belongs to section %s, not %s", rec.StudentID, student.SectionID, rec.SectionID))
	}

	fac, err := v.roster.FacultyByID(ctx, rec.FacultyID)
	switch {
	case err != nil:
		errs = append(errs, fmt.Sprintf("faculty lookup failed: %v", err))
	case fac == nil:
		errs = append(errs, fmt.Sprintf("faculty %s not found", rec.FacultyID))
	case !fac.Active:
		errs = append(errs, fmt.Sprintf("faculty %s is inactive", rec.FacultyID))
	}

	section, err := v.roster.SectionByID(ctx, rec.SectionID)
	switch {
	case err != nil:
		errs = append(errs, fmt.Sprintf("section lookup failed: %v", err))
	case section == nil:
		errs = append(errs, fmt.Sprintf("section %s not found", rec.SectionID))
	case section.FacultyID != rec.FacultyID:
		errs = append(errs, fmt.Sprintf("section %s is owned by faculty %s, not %s", rec.SectionID, section.FacultyID, rec.FacultyID))
	}

	return errs
}

// checkTemporal rejects future timestamps and annotates records older
// than the retention horizon. Stale records still sync: late uploads
// after long offline stretches are legitimate.
func (v *Validator) checkTemporal(rec *Record) ([]string, []string) {
	now := v.now().UTC()
	if rec.Timestamp.After(now) {
		return []string{fmt.Sprintf("timestamp %s is in the future", rec.Timestamp.Format(time.RFC3339))}, nil
	}
	if rec.Timestamp.Before(now.Add(-v.retention)) {
		return nil, []string{fmt.Sprintf("stale timestamp: %s is older than the %s retention horizon", rec.Timestamp.Format(time.RFC3339), v.retention)}
	}
	return nil, nil
}
