package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ledger is the persistence surface the reconciler commits through.
// FindEntry returns nil when no entry exists at the conflict key.
// Commit applies one record in its own transaction and reports whether
// an existing entry was overwritten.
type Ledger interface {
	FindEntry(ctx context.Context, studentID string, date time.Time) (*Entry, error)
	Commit(ctx context.Context, rec Record, syncedAt time.Time) (Entry, bool, error)
}

// Metrics receives reconciliation observations. Injected so the
// reconciler carries no global state; cmd wiring supplies the
// prometheus-backed implementation.
type Metrics interface {
	ObserveBatch(total, synced, failed int)
	ObserveCommit(d time.Duration, updated bool)
}

// ErrBatchSize means the batch itself is out of bounds. It is the one
// failure reported at the transport level instead of per record.
var ErrBatchSize = errors.New("batch size out of bounds")

// Reconciler runs the sync protocol: validate each record, commit the
// accepted ones independently, and aggregate a result the client can
// use to retry only the failed subset.
type Reconciler struct {
	validator     *Validator
	ledger        Ledger
	metrics       Metrics
	maxBatch      int
	commitTimeout time.Duration
	now           func() time.Time
}

// NewReconciler creates a reconciler. maxBatch bounds the records per
// call; commitTimeout bounds each individual record's commit.
func NewReconciler(v *Validator, ledger Ledger, m Metrics, maxBatch int, commitTimeout time.Duration) *Reconciler {
	if maxBatch <= 0 {
		maxBatch = 100
	}
	if commitTimeout <= 0 {
		commitTimeout = 3 * time.Second
	}
	return &Reconciler{
		validator:     v,
		ledger:        ledger,
		metrics:       m,
		maxBatch:      maxBatch,
		commitTimeout: commitTimeout,
		now:           time.Now,
	}
}

// Sync processes one batch in submission order. Per-record failures are
// captured in the result, never returned as an error: partial success
// is the expected outcome. The only error return is ErrBatchSize,
// raised before any record is touched.
//
// The result always satisfies SyncedRecords + FailedRecords ==
// TotalRecords and len(Errors) == FailedRecords.
func (r *Reconciler) Sync(ctx context.Context, raws []RawRecord) (SyncResult, []Entry, error) {
	if len(raws) == 0 || len(raws) > r.maxBatch {
		return SyncResult{}, nil, fmt.Errorf("%w: got %d records, allowed 1-%d", ErrBatchSize, len(raws), r.maxBatch)
	}

	result := SyncResult{
		TotalRecords: len(raws),
		Errors:       []RecordError{},
	}
	var entries []Entry

	for _, raw := range raws {
		rec, errs, warns := r.validator.Validate(ctx, raw)
		if len(errs) > 0 {
			r.fail(&result, raw, strings.Join(errs, "; "))
			continue
		}
		for _, w := range warns {
			result.Warnings = append(result.Warnings, RecordWarning{RecordID: raw.ID, Warning: w})
		}

		entry, err := r.commitOne(ctx, *rec)
		if err != nil {
			msg := err.Error()
			if IsUniqueViolation(err) {
				msg = fmt.Sprintf("concurrent sync for student %s on %s, resubmit to update: %v", rec.StudentID, rec.Date.Format("2006-01-02"), err)
			}
			r.fail(&result, raw, msg)
			continue
		}
		entries = append(entries, entry)
		result.SyncedRecords++
	}

	if r.metrics != nil {
		r.metrics.ObserveBatch(result.TotalRecords, result.SyncedRecords, result.FailedRecords)
	}
	return result, entries, nil
}

// commitOne applies one record under its own timeout so a hung commit
// is reported as that record's failure instead of stalling the batch.
func (r *Reconciler) commitOne(ctx context.Context, rec Record) (Entry, error) {
	cctx, cancel := context.WithTimeout(ctx, r.commitTimeout)
	defer cancel()

	start := r.now()
	entry, updated, err := r.ledger.Commit(cctx, rec, r.now().UTC())
	if r.metrics != nil {
		r.metrics.ObserveCommit(r.now().Sub(start), updated)
	}
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *Reconciler) fail(result *SyncResult, raw RawRecord, msg string) {
	result.FailedRecords++
	result.Errors = append(result.Errors, RecordError{
		RecordID:   raw.ID,
		Error:      msg,
		RetryCount: raw.RetryCount,
		Timestamp:  r.now().UTC(),
	})
}
