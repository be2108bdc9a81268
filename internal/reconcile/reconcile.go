// Package reconcile applies batched attendance edits: code reassignments on
// individual period records and day-level comment upserts. Batches are
// best-effort; every item is attempted and failures are itemized, never
// rolled back across items.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/studently/attendance/internal/db"
)

const (
	ReasonInvalidReference = "invalid_reference"
	ReasonUpstream         = "upstream_error"
)

type CodeChange struct {
	RecordID         string
	AttendanceCodeID string
}

type CommentChange struct {
	StudentID string
	Day       time.Time
	Comment   string
}

type ItemError struct {
	Item   string `json:"item"`
	Reason string `json:"reason"`
}

// Result reports code-change successes and comment upserts as separate
// counts; the two halves of a batch have different write targets.
type Result struct {
	Updated         int         `json:"updated"`
	CommentsApplied int         `json:"comments_applied"`
	Errors          []ItemError `json:"errors"`
}

// Store is the persistence gateway the reconciler writes through.
// ApplyCodeChange must persist the new code and refresh the day aggregate
// atomically for that one record.
type Store interface {
	GetAttendanceRecord(ctx context.Context, recordID string) (db.AttendanceRecord, error)
	GetAttendanceCode(ctx context.Context, codeID string) (db.AttendanceCode, error)
	ApplyCodeChange(ctx context.Context, record db.AttendanceRecord, codeID string, adminOverride bool) error
	UpsertDayComment(ctx context.Context, schoolID, studentID string, day time.Time, comment string) error
}

type Reconciler struct {
	store Store
}

func New(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile applies code changes first, then comment changes, each as an
// independent point update scoped to schoolID. It returns an error only when
// the batch cannot proceed at all (context cancellation); individual item
// failures land in Result.Errors.
func (r *Reconciler) Reconcile(ctx context.Context, schoolID string, codeChanges []CodeChange, commentChanges []CommentChange, adminOverride bool) (Result, error) {
	var result Result

	for _, change := range codeChanges {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		reason := r.applyCodeChange(ctx, schoolID, change, adminOverride)
		if reason != "" {
			result.Errors = append(result.Errors, ItemError{Item: change.RecordID, Reason: reason})
			continue
		}
		result.Updated++
	}

	for _, change := range commentChanges {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := r.store.UpsertDayComment(ctx, schoolID, change.StudentID, change.Day, change.Comment); err != nil {
			result.Errors = append(result.Errors, ItemError{Item: change.StudentID, Reason: ReasonUpstream})
			continue
		}
		result.CommentsApplied++
	}

	return result, nil
}

func (r *Reconciler) applyCodeChange(ctx context.Context, schoolID string, change CodeChange, adminOverride bool) string {
	record, err := r.store.GetAttendanceRecord(ctx, change.RecordID)
	if errors.Is(err, db.ErrNotFound) {
		return ReasonInvalidReference
	}
	if err != nil {
		return ReasonUpstream
	}
	if record.SchoolID != schoolID {
		return ReasonInvalidReference
	}

	code, err := r.store.GetAttendanceCode(ctx, change.AttendanceCodeID)
	if errors.Is(err, db.ErrNotFound) {
		return ReasonInvalidReference
	}
	if err != nil {
		return ReasonUpstream
	}
	if code.SchoolID != record.SchoolID {
		return ReasonInvalidReference
	}

	if err := r.store.ApplyCodeChange(ctx, record, code.ID, adminOverride); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return ReasonInvalidReference
		}
		return ReasonUpstream
	}
	return ""
}
