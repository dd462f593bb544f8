package attendance

import (
	"time"
)

// Status is the observed attendance outcome.
type Status string

// CaptureMethod records how the observation was made on the device.
type CaptureMethod string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"

	CaptureML     CaptureMethod = "ml"
	CaptureManual CaptureMethod = "manual"
)

// RawRecord is one attendance record as submitted by a mobile client,
// before any validation. ID and RetryCount are client-local bookkeeping
// echoed back on failure so the device can match results to its queue;
// neither is persisted.
type RawRecord struct {
	ID            int64  `json:"id,omitempty"`
	StudentID     string `json:"studentId"`
	FacultyID     string `json:"facultyId"`
	SectionID     string `json:"sectionId"`
	Timestamp     string `json:"timestamp"`
	Status        string `json:"status"`
	CaptureMethod string `json:"captureMethod"`
	RetryCount    int    `json:"retryCount,omitempty"`
}

// Record is a validated attendance record. Only the Validator constructs
// one, so the commit path never sees unchecked input.
type Record struct {
	ClientID      int64
	RetryCount    int
	StudentID     string
	FacultyID     string
	SectionID     string
	Timestamp     time.Time
	Date          time.Time // Timestamp truncated to UTC day; the conflict key with StudentID
	Status        Status
	CaptureMethod CaptureMethod
}

// Entry is one persisted row of the attendance ledger. At most one entry
// exists per (StudentID, Date) pair.
type Entry struct {
	ID            string        `json:"id"`
	StudentID     string        `json:"studentId"`
	FacultyID     string        `json:"facultyId"`
	SectionID     string        `json:"sectionId"`
	Date          time.Time     `json:"date"`
	Status        Status        `json:"status"`
	CaptureMethod CaptureMethod `json:"captureMethod"`
	SyncedAt      time.Time     `json:"syncedAt"`
}

// HistoryEntry is a ledger entry joined with display names for the
// read-side history endpoint.
type HistoryEntry struct {
	Entry
	StudentName string `json:"studentName"`
	FacultyName string `json:"facultyName"`
	SectionName string `json:"sectionName"`
}

// RecordError describes one failed record in a sync result.
type RecordError struct {
	RecordID   int64     `json:"recordId"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retryCount"`
	Timestamp  time.Time `json:"timestamp"`
}

// RecordWarning is an informational annotation on a record that still
// synced (conflict overwrite, stale timestamp). Warnings never count
// toward FailedRecords.
type RecordWarning struct {
	RecordID int64  `json:"recordId"`
	Warning  string `json:"warning"`
}

// SyncResult is the per-batch outcome contract. SyncedRecords +
// FailedRecords always equals TotalRecords, and len(Errors) always
// equals FailedRecords.
type SyncResult struct {
	TotalRecords  int             `json:"totalRecords"`
	SyncedRecords int             `json:"syncedRecords"`
	FailedRecords int             `json:"failedRecords"`
	Errors        []RecordError   `json:"errors"`
	Warnings      []RecordWarning `json:"warnings,omitempty"`
}

// DayOf truncates a point in time to its UTC calendar date.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
