package db

import (
	"context"
	"time"
)

// Gateway adapts the store to the reconciler's persistence interface. A code
// change and its day-state recompute commit together so a single item is
// never half-applied.
type Gateway struct {
	store *Store
}

func NewGateway(store *Store) *Gateway {
	return &Gateway{store: store}
}

func (g *Gateway) GetAttendanceRecord(ctx context.Context, recordID string) (AttendanceRecord, error) {
	return g.store.GetAttendanceRecord(ctx, recordID)
}

func (g *Gateway) GetAttendanceCode(ctx context.Context, codeID string) (AttendanceCode, error) {
	return g.store.GetAttendanceCode(ctx, codeID)
}

func (g *Gateway) ApplyCodeChange(ctx context.Context, record AttendanceRecord, codeID string, adminOverride bool) error {
	return g.store.WithTx(ctx, func(tx *Store) error {
		if err := tx.UpdateAttendanceRecordCode(ctx, record.ID, codeID, adminOverride); err != nil {
			return err
		}
		return tx.RecomputeDayState(ctx, record.SchoolID, record.StudentID, record.Day)
	})
}

func (g *Gateway) UpsertDayComment(ctx context.Context, schoolID, studentID string, day time.Time, comment string) error {
	return g.store.UpsertDayComment(ctx, schoolID, studentID, day, comment)
}
