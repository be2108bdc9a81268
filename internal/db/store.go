package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
	db   dbtx
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// WithTx runs fn against a transaction-scoped store.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(&Store{pool: s.pool, db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Attendance codes

func (s *Store) ListAttendanceCodesBySchool(ctx context.Context, schoolID string) ([]AttendanceCode, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, school_id, title, short_code, color, state_value, sort_order, created_at, updated_at
		FROM attendance_codes
		WHERE school_id = $1
		ORDER BY sort_order, short_code
	`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []AttendanceCode
	for rows.Next() {
		var code AttendanceCode
		if err := rows.Scan(
			&code.ID,
			&code.SchoolID,
			&code.Title,
			&code.ShortCode,
			&code.Color,
			&code.StateValue,
			&code.SortOrder,
			&code.CreatedAt,
			&code.UpdatedAt,
		); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *Store) GetAttendanceCode(ctx context.Context, codeID string) (AttendanceCode, error) {
	var code AttendanceCode
	row := s.db.QueryRow(ctx, `
		SELECT id, school_id, title, short_code, color, state_value, sort_order, created_at, updated_at
		FROM attendance_codes
		WHERE id = $1
	`, codeID)
	err := row.Scan(
		&code.ID,
		&code.SchoolID,
		&code.Title,
		&code.ShortCode,
		&code.Color,
		&code.StateValue,
		&code.SortOrder,
		&code.CreatedAt,
		&code.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return AttendanceCode{}, ErrNotFound
	}
	return code, err
}

func (s *Store) CreateAttendanceCode(ctx context.Context, code AttendanceCode) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO attendance_codes (id, school_id, title, short_code, color, state_value, sort_order, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`, code.ID, code.SchoolID, code.Title, code.ShortCode, code.Color, code.StateValue, code.SortOrder)
	return err
}

func (s *Store) UpdateAttendanceCode(ctx context.Context, code AttendanceCode) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE attendance_codes
		SET title = $3, short_code = $4, color = $5, state_value = $6, sort_order = $7, updated_at = now()
		WHERE id = $1 AND school_id = $2
	`, code.ID, code.SchoolID, code.Title, code.ShortCode, code.Color, code.StateValue, code.SortOrder)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAttendanceCode(ctx context.Context, schoolID, codeID string) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM attendance_codes WHERE id = $1 AND school_id = $2
	`, codeID, schoolID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Periods

func (s *Store) ListPeriodsBySchool(ctx context.Context, schoolID string, campusID *string) ([]Period, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, school_id, campus_id, title, sort_order
		FROM periods
		WHERE school_id = $1 AND ($2::uuid IS NULL OR campus_id IS NULL OR campus_id = $2)
		ORDER BY sort_order, title
	`, schoolID, campusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []Period
	for rows.Next() {
		var period Period
		if err := rows.Scan(&period.ID, &period.SchoolID, &period.CampusID, &period.Title, &period.SortOrder); err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	return periods, rows.Err()
}

// Attendance records

func (s *Store) GetAttendanceRecord(ctx context.Context, recordID string) (AttendanceRecord, error) {
	var record AttendanceRecord
	row := s.db.QueryRow(ctx, `
		SELECT id, school_id, student_id, period_id, day, attendance_code_id, admin_override, created_at, updated_at
		FROM attendance_records
		WHERE id = $1
	`, recordID)
	err := row.Scan(
		&record.ID,
		&record.SchoolID,
		&record.StudentID,
		&record.PeriodID,
		&record.Day,
		&record.AttendanceCodeID,
		&record.AdminOverride,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return AttendanceRecord{}, ErrNotFound
	}
	return record, err
}

func (s *Store) UpdateAttendanceRecordCode(ctx context.Context, recordID, codeID string, adminOverride bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE attendance_records
		SET attendance_code_id = $2, admin_override = $3, updated_at = now()
		WHERE id = $1
	`, recordID, codeID, adminOverride)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecomputeDayState refreshes the day aggregate from the student's period
// codes. A missing code contributes zero presence.
func (s *Store) RecomputeDayState(ctx context.Context, schoolID, studentID string, day time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO attendance_days (school_id, student_id, day, state_value, updated_at)
		SELECT r.school_id, r.student_id, r.day, COALESCE(AVG(COALESCE(c.state_value, 0)), 0), now()
		FROM attendance_records r
		LEFT JOIN attendance_codes c ON c.id = r.attendance_code_id
		WHERE r.school_id = $1 AND r.student_id = $2 AND r.day = $3
		GROUP BY r.school_id, r.student_id, r.day
		ON CONFLICT (school_id, student_id, day)
		DO UPDATE SET state_value = EXCLUDED.state_value, updated_at = EXCLUDED.updated_at
	`, schoolID, studentID, day)
	return err
}

func (s *Store) UpsertDayComment(ctx context.Context, schoolID, studentID string, day time.Time, comment string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO attendance_days (school_id, student_id, day, state_value, comment, updated_at)
		VALUES ($1, $2, $3, 1, $4, now())
		ON CONFLICT (school_id, student_id, day)
		DO UPDATE SET comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
	`, schoolID, studentID, day, comment)
	return err
}

func (s *Store) GetAttendanceDay(ctx context.Context, schoolID, studentID string, day time.Time) (AttendanceDay, error) {
	var result AttendanceDay
	row := s.db.QueryRow(ctx, `
		SELECT school_id, student_id, day, state_value, comment, updated_at
		FROM attendance_days
		WHERE school_id = $1 AND student_id = $2 AND day = $3
	`, schoolID, studentID, day)
	err := row.Scan(&result.SchoolID, &result.StudentID, &result.Day, &result.StateValue, &result.Comment, &result.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return AttendanceDay{}, ErrNotFound
	}
	return result, err
}

// Grid

func (s *Store) ListGridRecords(ctx context.Context, filter GridFilter) ([]GridRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.student_id, s.first_name, s.last_name,
		       r.period_id, r.attendance_code_id, c.short_code, c.color,
		       r.admin_override, COALESCE(d.state_value, 1), d.comment
		FROM attendance_records r
		JOIN students s ON s.id = r.student_id
		JOIN periods p ON p.id = r.period_id
		LEFT JOIN attendance_codes c ON c.id = r.attendance_code_id
		LEFT JOIN attendance_days d
			ON d.school_id = r.school_id AND d.student_id = r.student_id AND d.day = r.day
		WHERE r.school_id = $1 AND r.day = $2
		  AND ($3::uuid IS NULL OR s.section_id = $3)
		  AND ($4::uuid IS NULL OR s.grade_id = $4)
		  AND ($5::uuid IS NULL OR s.campus_id = $5)
		ORDER BY s.last_name, s.first_name, s.id, p.sort_order
	`, filter.SchoolID, filter.Day, filter.SectionID, filter.GradeID, filter.CampusID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanGridRecords(rows)
}

func (s *Store) ListStudentDayRecords(ctx context.Context, schoolID, studentID string, day time.Time) ([]GridRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.student_id, s.first_name, s.last_name,
		       r.period_id, r.attendance_code_id, c.short_code, c.color,
		       r.admin_override, COALESCE(d.state_value, 1), d.comment
		FROM attendance_records r
		JOIN students s ON s.id = r.student_id
		JOIN periods p ON p.id = r.period_id
		LEFT JOIN attendance_codes c ON c.id = r.attendance_code_id
		LEFT JOIN attendance_days d
			ON d.school_id = r.school_id AND d.student_id = r.student_id AND d.day = r.day
		WHERE r.school_id = $1 AND r.student_id = $2 AND r.day = $3
		ORDER BY p.sort_order
	`, schoolID, studentID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanGridRecords(rows)
}

func scanGridRecords(rows pgx.Rows) ([]GridRecord, error) {
	var records []GridRecord
	for rows.Next() {
		var record GridRecord
		if err := rows.Scan(
			&record.RecordID,
			&record.StudentID,
			&record.FirstName,
			&record.LastName,
			&record.PeriodID,
			&record.AttendanceCodeID,
			&record.ShortCode,
			&record.Color,
			&record.AdminOverride,
			&record.StateValue,
			&record.Comment,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Materialization

// MaterializeDay creates the missing attendance rows for every enrolled
// student and scheduled period on the given day. Existing rows are left
// untouched.
func (s *Store) MaterializeDay(ctx context.Context, day time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO attendance_records (id, school_id, student_id, period_id, day, created_at, updated_at)
		SELECT gen_random_uuid(), s.school_id, s.id, p.id, $1, now(), now()
		FROM students s
		JOIN periods p ON p.school_id = s.school_id
			AND (p.campus_id IS NULL OR s.campus_id IS NULL OR p.campus_id = s.campus_id)
		ON CONFLICT (student_id, period_id, day) DO NOTHING
	`, day)
	if err != nil {
		return 0, err
	}
	// Day rows start at full presence; overrides recompute them later.
	_, err = s.db.Exec(ctx, `
		INSERT INTO attendance_days (school_id, student_id, day, state_value, updated_at)
		SELECT DISTINCT r.school_id, r.student_id, r.day, 1, now()
		FROM attendance_records r
		WHERE r.day = $1
		ON CONFLICT (school_id, student_id, day) DO NOTHING
	`, day)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
