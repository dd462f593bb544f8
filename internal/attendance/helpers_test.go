package attendance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"attendsync/internal/roster"
)

// fakeRoster serves reference lookups from maps.
type fakeRoster struct {
	students map[string]*roster.Student
	faculty  map[string]*roster.Faculty
	sections map[string]*roster.Section
	err      error
}

func (f *fakeRoster) StudentByID(_ context.Context, id string) (*roster.Student, error) {
	return f.students[id], f.err
}

func (f *fakeRoster) FacultyByID(_ context.Context, id string) (*roster.Faculty, error) {
	return f.faculty[id], f.err
}

func (f *fakeRoster) SectionByID(_ context.Context, id string) (*roster.Section, error) {
	return f.sections[id], f.err
}

// fakeLedger is an in-memory ledger keyed by (studentID, date).
type fakeLedger struct {
	mu        sync.Mutex
	entries   map[string]Entry
	nextID    int
	commitErr error
	findErr   error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: map[string]Entry{}}
}

func ledgerKey(studentID string, date time.Time) string {
	return studentID + "|" + date.Format("2006-01-02")
}

func (f *fakeLedger) FindEntry(_ context.Context, studentID string, date time.Time) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if e, ok := f.entries[ledgerKey(studentID, DayOf(date))]; ok {
		copied := e
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeLedger) Commit(_ context.Context, rec Record, syncedAt time.Time) (Entry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return Entry{}, false, f.commitErr
	}
	key := ledgerKey(rec.StudentID, rec.Date)
	if existing, ok := f.entries[key]; ok {
		existing.Status = rec.Status
		existing.CaptureMethod = rec.CaptureMethod
		existing.FacultyID = rec.FacultyID
		existing.SectionID = rec.SectionID
		existing.SyncedAt = syncedAt
		f.entries[key] = existing
		return existing, true, nil
	}
	f.nextID++
	entry := Entry{
		ID:            fmt.Sprintf("entry-%d", f.nextID),
		StudentID:     rec.StudentID,
		FacultyID:     rec.FacultyID,
		SectionID:     rec.SectionID,
		Date:          rec.Date,
		Status:        rec.Status,
		CaptureMethod: rec.CaptureMethod,
		SyncedAt:      syncedAt,
	}
	f.entries[key] = entry
	return entry, false, nil
}

// testWorld is a wired validator + reconciler over one valid
// student/faculty/section triple.
type testWorld struct {
	roster     *fakeRoster
	ledger     *fakeLedger
	validator  *Validator
	reconciler *Reconciler
	now        time.Time
}

const (
	testStudent = "11111111-1111-1111-1111-111111111111"
	testFaculty = "22222222-2222-2222-2222-222222222222"
	testSection = "33333333-3333-3333-3333-333333333333"
)

func newTestWorld() *testWorld {
	ro := &fakeRoster{
		students: map[string]*roster.Student{
			testStudent: {ID: testStudent, Name: "Asha", Active: true, SectionID: testSection},
		},
		faculty: map[string]*roster.Faculty{
			testFaculty: {ID: testFaculty, Name: "Dr. Rao", Active: true},
		},
		sections: map[string]*roster.Section{
			testSection: {ID: testSection, Name: "CS-A", FacultyID: testFaculty},
		},
	}
	ledger := newFakeLedger()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	v := NewValidator(ro, ledger, 30*24*time.Hour)
	v.now = func() time.Time { return now }
	rec := NewReconciler(v, ledger, nil, 100, time.Second)
	rec.now = func() time.Time { return now }

	return &testWorld{roster: ro, ledger: ledger, validator: v, reconciler: rec, now: now}
}

// validRaw is a well-formed record observed an hour before the test
// clock's now.
func (w *testWorld) validRaw(id int64) RawRecord {
	return RawRecord{
		ID:            id,
		StudentID:     testStudent,
		FacultyID:     testFaculty,
		SectionID:     testSection,
		Timestamp:     w.now.Add(-time.Hour).Format(time.RFC3339),
		Status:        "present",
		CaptureMethod: "ml",
	}
}
