package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/studently/attendance/internal/db"
)

const (
	schoolID      = "11111111-1111-1111-1111-111111111111"
	otherSchoolID = "11111111-1111-1111-1111-111111111112"
	studentOneID  = "22222222-2222-2222-2222-222222222221"
	studentTwoID  = "22222222-2222-2222-2222-222222222222"
	presentCodeID = "33333333-3333-3333-3333-333333333331"
	absentCodeID  = "33333333-3333-3333-3333-333333333332"
	foreignCodeID = "33333333-3333-3333-3333-333333333339"
)

var testDay = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

type fakeStore struct {
	records   map[string]db.AttendanceRecord
	codes     map[string]db.AttendanceCode
	comments  map[string]string
	failApply map[string]error
}

func newFakeStore() *fakeStore {
	store := &fakeStore{
		records:   make(map[string]db.AttendanceRecord),
		codes:     make(map[string]db.AttendanceCode),
		comments:  make(map[string]string),
		failApply: make(map[string]error),
	}
	store.codes[presentCodeID] = db.AttendanceCode{ID: presentCodeID, SchoolID: schoolID, ShortCode: "P", StateValue: 1}
	store.codes[absentCodeID] = db.AttendanceCode{ID: absentCodeID, SchoolID: schoolID, ShortCode: "A", StateValue: 0}
	store.codes[foreignCodeID] = db.AttendanceCode{ID: foreignCodeID, SchoolID: otherSchoolID, ShortCode: "X", StateValue: 0}

	// Two students, three periods each, all initially Present.
	for i, studentID := range []string{studentOneID, studentTwoID} {
		for period := 1; period <= 3; period++ {
			recordID := fmt.Sprintf("R%d", i*3+period)
			codeID := presentCodeID
			store.records[recordID] = db.AttendanceRecord{
				ID:               recordID,
				SchoolID:         schoolID,
				StudentID:        studentID,
				PeriodID:         fmt.Sprintf("P%d", period),
				Day:              testDay,
				AttendanceCodeID: &codeID,
			}
		}
	}
	return store
}

func (f *fakeStore) GetAttendanceRecord(_ context.Context, recordID string) (db.AttendanceRecord, error) {
	record, ok := f.records[recordID]
	if !ok {
		return db.AttendanceRecord{}, db.ErrNotFound
	}
	return record, nil
}

func (f *fakeStore) GetAttendanceCode(_ context.Context, codeID string) (db.AttendanceCode, error) {
	code, ok := f.codes[codeID]
	if !ok {
		return db.AttendanceCode{}, db.ErrNotFound
	}
	return code, nil
}

func (f *fakeStore) ApplyCodeChange(_ context.Context, record db.AttendanceRecord, codeID string, adminOverride bool) error {
	if err := f.failApply[record.ID]; err != nil {
		return err
	}
	stored, ok := f.records[record.ID]
	if !ok {
		return db.ErrNotFound
	}
	stored.AttendanceCodeID = &codeID
	stored.AdminOverride = adminOverride
	f.records[record.ID] = stored
	return nil
}

func (f *fakeStore) UpsertDayComment(_ context.Context, schoolID, studentID string, day time.Time, comment string) error {
	f.comments[schoolID+"|"+studentID+"|"+day.Format("2006-01-02")] = comment
	return nil
}

func TestReconcileAllValid(t *testing.T) {
	store := newFakeStore()
	reconciler := New(store)

	changes := []CodeChange{
		{RecordID: "R1", AttendanceCodeID: absentCodeID},
		{RecordID: "R4", AttendanceCodeID: absentCodeID},
	}
	result, err := reconciler.Reconcile(context.Background(), schoolID, changes, nil, true)
	if err != nil {
		t.Fatalf("reconcile error: %v", err)
	}
	if result.Updated != len(changes) {
		t.Fatalf("expected updated=%d, got %d", len(changes), result.Updated)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", result.Errors)
	}
	for _, change := range changes {
		record := store.records[change.RecordID]
		if record.AttendanceCodeID == nil || *record.AttendanceCodeID != absentCodeID {
			t.Fatalf("record %s not updated", change.RecordID)
		}
		if !record.AdminOverride {
			t.Fatalf("record %s missing override flag", change.RecordID)
		}
	}
}

func TestReconcileOneInvalidRecord(t *testing.T) {
	store := newFakeStore()
	reconciler := New(store)

	changes := []CodeChange{
		{RecordID: "R1", AttendanceCodeID: absentCodeID},
		{RecordID: "nonexistent", AttendanceCodeID: absentCodeID},
		{RecordID: "R3", AttendanceCodeID: absentCodeID},
	}
	result, err := reconciler.Reconcile(context.Background(), schoolID, changes, nil, true)
	if err != nil {
		t.Fatalf("reconcile error: %v", err)
	}
	if result.Updated != len(changes)-1 {
		t.Fatalf("expected updated=%d, got %d", len(changes)-1, result.Updated)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected one error, got %v", result.Errors)
	}
	if result.Errors[0].Item != "nonexistent" || result.Errors[0].Reason != ReasonInvalidReference {
		t.Fatalf("unexpected error entry %+v", result.Errors[0])
	}
	// Items after the failure were still applied.
	if record := store.records["R3"]; *record.AttendanceCodeID != absentCodeID {
		t.Fatalf("expected R3 applied after failed item")
	}
}

func TestReconcileRejectsForeignSchoolCode(t *testing.T) {
	store := newFakeStore()
	reconciler := New(store)

	result, err := reconciler.Reconcile(context.Background(), schoolID, []CodeChange{
		{RecordID: "R1", AttendanceCodeID: foreignCodeID},
	}, nil, true)
	if err != nil {
		t.Fatalf("reconcile error: %v", err)
	}
	if result.Updated != 0 {
		t.Fatalf("expected updated=0, got %d", result.Updated)
	}
	if len(result.Errors) != 1 || result.Errors[0].Reason != ReasonInvalidReference {
		t.Fatalf("expected invalid_reference, got %v", result.Errors)
	}
	if record := store.records["R1"]; *record.AttendanceCodeID != presentCodeID {
		t.Fatalf("record R1 must remain untouched")
	}
}

func TestReconcileRejectsForeignSchoolRecord(t *testing.T) {
	store := newFakeStore()
	reconciler := New(store)

	result, err := reconciler.Reconcile(context.Background(), otherSchoolID, []CodeChange{
		{RecordID: "R1", AttendanceCodeID: absentCodeID},
	}, nil, true)
	if err != nil {
		t.Fatalf("reconcile error: %v", err)
	}
	if result.Updated != 0 || len(result.Errors) != 1 || result.Errors[0].Reason != ReasonInvalidReference {
		t.Fatalf("expected invalid_reference for cross-school record, got %+v", result)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	store := newFakeStore()
	reconciler := New(store)

	changes := []CodeChange{{RecordID: "R2", AttendanceCodeID: absentCodeID}}
	comments := []CommentChange{{StudentID: studentOneID, Day: testDay, Comment: "left early"}}

	first, err := reconciler.Reconcile(context.Background(), schoolID, changes, comments, true)
	if err != nil {
		t.Fatalf("reconcile error: %v", err)
	}
	snapshot := *store.records["R2"].AttendanceCodeID
	second, err := reconciler.Reconcile(context.Background(), schoolID, changes, comments, true)
	if err != nil {
		t.Fatalf("reconcile error: %v", err)
	}
	if first.Updated != 1 || second.Updated != 1 {
		t.Fatalf("expected updated=1 both times, got %d then %d", first.Updated, second.Updated)
	}
	if *store.records["R2"].AttendanceCodeID != snapshot {
		t.Fatalf("second batch changed stored state")
	}
	if got := store.comments[schoolID+"|"+studentOneID+"|2026-02-10"]; got != "left early" {
		t.Fatalf("unexpected comment %q", got)
	}
}

func TestReconcileCommentOverwrites(t *testing.T) {
	store := newFakeStore()
	reconciler := New(store)

	key := schoolID + "|" + studentTwoID + "|2026-02-10"
	result, err := reconciler.Reconcile(context.Background(), schoolID, nil, []CommentChange{
		{StudentID: studentTwoID, Day: testDay, Comment: "first"},
	}, true)
	if err != nil || result.CommentsApplied != 1 {
		t.Fatalf("expected one comment applied, got %+v err=%v", result, err)
	}
	if store.comments[key] != "first" {
		t.Fatalf("expected created comment, got %q", store.comments[key])
	}

	result, err = reconciler.Reconcile(context.Background(), schoolID, nil, []CommentChange{
		{StudentID: studentTwoID, Day: testDay, Comment: "second"},
	}, true)
	if err != nil || result.CommentsApplied != 1 {
		t.Fatalf("expected one comment applied, got %+v err=%v", result, err)
	}
	if store.comments[key] != "second" {
		t.Fatalf("expected overwritten comment, got %q", store.comments[key])
	}
	if len(store.comments) != 1 {
		t.Fatalf("expected single comment row, got %d", len(store.comments))
	}
}

func TestReconcileUpstreamFailureContinues(t *testing.T) {
	store := newFakeStore()
	store.failApply["R1"] = errors.New("connection reset")
	reconciler := New(store)

	result, err := reconciler.Reconcile(context.Background(), schoolID, []CodeChange{
		{RecordID: "R1", AttendanceCodeID: absentCodeID},
		{RecordID: "R2", AttendanceCodeID: absentCodeID},
	}, nil, true)
	if err != nil {
		t.Fatalf("reconcile error: %v", err)
	}
	if result.Updated != 1 {
		t.Fatalf("expected updated=1, got %d", result.Updated)
	}
	if len(result.Errors) != 1 || result.Errors[0].Item != "R1" || result.Errors[0].Reason != ReasonUpstream {
		t.Fatalf("expected upstream error for R1, got %v", result.Errors)
	}
}

func TestReconcileSingleOverrideScenario(t *testing.T) {
	store := newFakeStore()
	reconciler := New(store)

	result, err := reconciler.Reconcile(context.Background(), schoolID, []CodeChange{
		{RecordID: "R2", AttendanceCodeID: absentCodeID},
	}, nil, true)
	if err != nil {
		t.Fatalf("reconcile error: %v", err)
	}
	if result.Updated != 1 || len(result.Errors) != 0 {
		t.Fatalf("expected clean single update, got %+v", result)
	}
	for id, record := range store.records {
		want := presentCodeID
		if id == "R2" {
			want = absentCodeID
		}
		if *record.AttendanceCodeID != want {
			t.Fatalf("record %s: expected code %s, got %s", id, want, *record.AttendanceCodeID)
		}
	}
}

func TestReconcileCancelledContext(t *testing.T) {
	store := newFakeStore()
	reconciler := New(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := reconciler.Reconcile(ctx, schoolID, []CodeChange{
		{RecordID: "R1", AttendanceCodeID: absentCodeID},
	}, nil, true)
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}
