package attendance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func checkConservation(t *testing.T, result SyncResult) {
	t.Helper()
	if result.SyncedRecords+result.FailedRecords != result.TotalRecords {
		t.Fatalf("conservation violated: %d synced + %d failed != %d total",
			result.SyncedRecords, result.FailedRecords, result.TotalRecords)
	}
	if len(result.Errors) != result.FailedRecords {
		t.Fatalf("errors/failed mismatch: %d errors, %d failed", len(result.Errors), result.FailedRecords)
	}
}

func TestSyncSingleValidRecord(t *testing.T) {
	w := newTestWorld()

	result, entries, err := w.reconciler.Sync(context.Background(), []RawRecord{w.validRaw(1)})
	if err != nil {
		t.Fatal(err)
	}
	checkConservation(t, result)
	if result.TotalRecords != 1 || result.SyncedRecords != 1 || result.FailedRecords != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(entries) != 1 {
		t.Fatalf("want 1 ledger entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Status != StatusPresent || e.CaptureMethod != CaptureML || e.StudentID != testStudent {
		t.Fatalf("entry fields wrong: %+v", e)
	}
	if !e.SyncedAt.Equal(w.now) {
		t.Fatalf("syncedAt = %v, want server now %v", e.SyncedAt, w.now)
	}
}

func TestSyncBatchBound(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()

	t.Run("empty batch rejected before processing", func(t *testing.T) {
		_, _, err := w.reconciler.Sync(ctx, nil)
		if !errors.Is(err, ErrBatchSize) {
			t.Fatalf("want ErrBatchSize, got %v", err)
		}
	})

	t.Run("oversized batch rejected before processing", func(t *testing.T) {
		raws := make([]RawRecord, 101)
		for i := range raws {
			raws[i] = w.validRaw(int64(i))
		}
		_, _, err := w.reconciler.Sync(ctx, raws)
		if !errors.Is(err, ErrBatchSize) {
			t.Fatalf("want ErrBatchSize, got %v", err)
		}
		if len(w.ledger.entries) != 0 {
			t.Fatalf("no record may be attempted, ledger has %d", len(w.ledger.entries))
		}
	})

	t.Run("full batch at the cap syncs", func(t *testing.T) {
		raws := make([]RawRecord, 100)
		for i := range raws {
			raw := w.validRaw(int64(i))
			// Distinct days keep the conflict keys apart.
			raw.Timestamp = w.now.Add(-time.Duration(i+1) * 26 * time.Hour).Format(time.RFC3339)
			raws[i] = raw
		}
		result, _, err := w.reconciler.Sync(ctx, raws)
		if err != nil {
			t.Fatal(err)
		}
		checkConservation(t, result)
		if result.SyncedRecords != 100 {
			t.Fatalf("want 100 synced, got %+v", result)
		}
	})
}

func TestSyncPartialFailureIsolation(t *testing.T) {
	w := newTestWorld()

	bad := w.validRaw(7)
	bad.StudentID = "99999999-9999-9999-9999-999999999999"
	good1 := w.validRaw(8)
	good2 := w.validRaw(9)
	good2.Timestamp = w.now.Add(-25 * time.Hour).Format(time.RFC3339)

	result, entries, err := w.reconciler.Sync(context.Background(), []RawRecord{good1, bad, good2})
	if err != nil {
		t.Fatal(err)
	}
	checkConservation(t, result)
	if result.SyncedRecords != 2 || result.FailedRecords != 1 {
		t.Fatalf("want 2 synced / 1 failed, got %+v", result)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 entries, got %d", len(entries))
	}
	failure := result.Errors[0]
	if failure.RecordID != 7 {
		t.Fatalf("failure must echo client id 7, got %d", failure.RecordID)
	}
	if !strings.Contains(failure.Error, "not found") {
		t.Fatalf("failure message: %q", failure.Error)
	}
	if failure.Timestamp.IsZero() {
		t.Fatal("failure timestamp unset")
	}
}

func TestSyncIdempotentResubmission(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()

	raw := w.validRaw(1)
	if _, _, err := w.reconciler.Sync(ctx, []RawRecord{raw}); err != nil {
		t.Fatal(err)
	}
	result, entries, err := w.reconciler.Sync(ctx, []RawRecord{raw})
	if err != nil {
		t.Fatal(err)
	}
	checkConservation(t, result)
	if result.SyncedRecords != 1 {
		t.Fatalf("resubmission must sync, got %+v", result)
	}
	if len(w.ledger.entries) != 1 {
		t.Fatalf("want exactly one ledger entry, got %d", len(w.ledger.entries))
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0].Warning, "overwritten") {
		t.Fatalf("want overwrite warning, got %v", result.Warnings)
	}
	if len(entries) != 1 {
		t.Fatalf("want the updated entry echoed, got %d", len(entries))
	}
}

func TestSyncConflictLastWriteWins(t *testing.T) {
	w := newTestWorld()
	ctx := context.Background()

	first := w.validRaw(1)
	first.Status = "absent"
	first.CaptureMethod = "manual"
	_, firstEntries, err := w.reconciler.Sync(ctx, []RawRecord{first})
	if err != nil {
		t.Fatal(err)
	}
	originalID := firstEntries[0].ID

	// Second submission for the same student/date flips the status,
	// even though its observation timestamp is older.
	second := w.validRaw(2)
	second.Status = "present"
	second.CaptureMethod = "ml"
	second.Timestamp = w.now.Add(-2 * time.Hour).Format(time.RFC3339)
	w.reconciler.now = func() time.Time { return w.now.Add(time.Minute) }

	_, secondEntries, err := w.reconciler.Sync(ctx, []RawRecord{second})
	if err != nil {
		t.Fatal(err)
	}
	got := secondEntries[0]
	if got.ID != originalID {
		t.Fatalf("update must keep entry id %s, got %s", originalID, got.ID)
	}
	if got.Status != StatusPresent || got.CaptureMethod != CaptureML {
		t.Fatalf("last write must win: %+v", got)
	}
	if !got.SyncedAt.After(firstEntries[0].SyncedAt) {
		t.Fatalf("syncedAt not refreshed: %v -> %v", firstEntries[0].SyncedAt, got.SyncedAt)
	}
	if len(w.ledger.entries) != 1 {
		t.Fatalf("want one entry per conflict key, got %d", len(w.ledger.entries))
	}
}

func TestSyncFutureTimestampAlwaysFails(t *testing.T) {
	w := newTestWorld()

	raw := w.validRaw(1)
	raw.Timestamp = w.now.Add(365 * 24 * time.Hour).Format(time.RFC3339)
	result, _, err := w.reconciler.Sync(context.Background(), []RawRecord{raw})
	if err != nil {
		t.Fatal(err)
	}
	checkConservation(t, result)
	if result.SyncedRecords != 0 || result.FailedRecords != 1 {
		t.Fatalf("future record must fail: %+v", result)
	}
	if !strings.Contains(result.Errors[0].Error, "future") {
		t.Fatalf("error must name the future timestamp: %q", result.Errors[0].Error)
	}
}

func TestSyncStoreErrorIsPerRecord(t *testing.T) {
	w := newTestWorld()
	w.ledger.commitErr = errors.New("connection reset")

	raw := w.validRaw(4)
	raw.RetryCount = 2
	result, _, err := w.reconciler.Sync(context.Background(), []RawRecord{raw})
	if err != nil {
		t.Fatal(err)
	}
	checkConservation(t, result)
	if result.FailedRecords != 1 {
		t.Fatalf("store error must become a record failure: %+v", result)
	}
	failure := result.Errors[0]
	if !strings.Contains(failure.Error, "connection reset") {
		t.Fatalf("underlying message must be preserved: %q", failure.Error)
	}
	if failure.RetryCount != 2 {
		t.Fatalf("retryCount must echo the client value, got %d", failure.RetryCount)
	}
}

func TestSyncMixedBatchOrdering(t *testing.T) {
	w := newTestWorld()

	raws := []RawRecord{w.validRaw(1), {ID: 2}, w.validRaw(3)}
	raws[2].Timestamp = w.now.Add(-30 * time.Hour).Format(time.RFC3339)

	result, entries, err := w.reconciler.Sync(context.Background(), raws)
	if err != nil {
		t.Fatal(err)
	}
	checkConservation(t, result)
	if result.SyncedRecords != 2 || result.FailedRecords != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	// Submission order: the first entry belongs to record 1's day.
	if !entries[0].Date.Equal(DayOf(w.now.Add(-time.Hour))) {
		t.Fatalf("entries out of submission order: %+v", entries)
	}
}
