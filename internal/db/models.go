package db

import "time"

// AttendanceCode is a school-configured classification (Present, Absent,
// Tardy, ...). StateValue is the code's contribution to the daily presence
// score, between 0.0 and 1.0.
type AttendanceCode struct {
	ID         string
	SchoolID   string
	Title      string
	ShortCode  string
	Color      string
	StateValue float64
	SortOrder  int32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Period struct {
	ID        string
	SchoolID  string
	CampusID  *string
	Title     string
	SortOrder int32
}

type Student struct {
	ID        string
	SchoolID  string
	CampusID  *string
	SectionID *string
	GradeID   *string
	FirstName string
	LastName  string
}

// AttendanceRecord is one student's outcome for one scheduled period on one
// day. Records are created by materialization and only ever updated.
type AttendanceRecord struct {
	ID               string
	SchoolID         string
	StudentID        string
	PeriodID         string
	Day              time.Time
	AttendanceCodeID *string
	AdminOverride    bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AttendanceDay holds the day-level aggregate for a student: the fractional
// presence score derived from period codes, and the free-text comment.
type AttendanceDay struct {
	SchoolID   string
	StudentID  string
	Day        time.Time
	StateValue float64
	Comment    *string
	UpdatedAt  time.Time
}

// GridRecord is one cell of the student x period grid, joined with the
// student, the current code and the day aggregate.
type GridRecord struct {
	RecordID         string
	StudentID        string
	FirstName        string
	LastName         string
	PeriodID         string
	AttendanceCodeID *string
	ShortCode        *string
	Color            *string
	AdminOverride    bool
	StateValue       float64
	Comment          *string
}

type GridFilter struct {
	SchoolID  string
	Day       time.Time
	SectionID *string
	GradeID   *string
	CampusID  *string
}
