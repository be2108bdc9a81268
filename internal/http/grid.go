package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studently/attendance/internal/db"
)

// Models

type periodInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	SortOrder int32  `json:"sort_order"`
}

type gridCell struct {
	RecordID         string  `json:"record_id"`
	PeriodID         string  `json:"period_id"`
	AttendanceCodeID *string `json:"attendance_code_id"`
	ShortCode        string  `json:"short_code,omitempty"`
	Color            string  `json:"color,omitempty"`
	AdminOverride    bool    `json:"admin_override"`
}

type studentGridRow struct {
	StudentID   string     `json:"student_id"`
	StudentName string     `json:"student_name"`
	StateValue  float64    `json:"state_value"`
	Comment     string     `json:"comment,omitempty"`
	Cells       []gridCell `json:"cells"`
}

type gridResponse struct {
	Students []studentGridRow `json:"students"`
	Periods  []periodInfo     `json:"periods"`
}

// Handlers

func (s *Server) handleAdminPeriodGrid(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if !isAdminType(claims.UserType) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	schoolID, errCode := schoolForRequest(claims, r)
	if errCode == "forbidden" {
		writeError(w, http.StatusForbidden, errCode)
		return
	}
	if errCode != "" {
		writeError(w, http.StatusBadRequest, errCode)
		return
	}

	day, err := parseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	sectionID, err := optionalUUIDParam(r, "section_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_section_id")
		return
	}
	gradeID, err := optionalUUIDParam(r, "grade_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_grade_id")
		return
	}
	campusID, err := optionalUUIDParam(r, "campus_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_campus_id")
		return
	}

	periods, err := s.store.ListPeriodsBySchool(r.Context(), schoolID, campusID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	records, err := s.store.ListGridRecords(r.Context(), db.GridFilter{
		SchoolID:  schoolID,
		Day:       day,
		SectionID: sectionID,
		GradeID:   gradeID,
		CampusID:  campusID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeData(w, http.StatusOK, gridResponse{
		Students: groupGridRecords(records),
		Periods:  mapPeriods(periods),
	})
}

func (s *Server) handleStudentDay(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	studentID := chi.URLParam(r, "studentId")
	if _, err := uuid.Parse(studentID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_student_id")
		return
	}

	switch claims.UserType {
	case "student":
		if claims.UserID != studentID {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	case "teacher", "admin", "super-admin":
	default:
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	schoolID, errCode := schoolForRequest(claims, r)
	if errCode == "forbidden" {
		writeError(w, http.StatusForbidden, errCode)
		return
	}
	if errCode != "" {
		writeError(w, http.StatusBadRequest, errCode)
		return
	}

	day, err := parseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	records, err := s.store.ListStudentDayRecords(r.Context(), schoolID, studentID, day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "student_day_not_found")
		return
	}
	rows := groupGridRecords(records)
	writeData(w, http.StatusOK, rows[0])
}

// Grouping

// groupGridRecords folds the flat record join into one row per student.
// Records must already be ordered by student, then period sort order.
func groupGridRecords(records []db.GridRecord) []studentGridRow {
	rows := make([]studentGridRow, 0)
	for _, record := range records {
		cell := gridCell{
			RecordID:         record.RecordID,
			PeriodID:         record.PeriodID,
			AttendanceCodeID: record.AttendanceCodeID,
			AdminOverride:    record.AdminOverride,
		}
		if record.ShortCode != nil {
			cell.ShortCode = *record.ShortCode
		}
		if record.Color != nil {
			cell.Color = *record.Color
		}

		if n := len(rows); n > 0 && rows[n-1].StudentID == record.StudentID {
			rows[n-1].Cells = append(rows[n-1].Cells, cell)
			continue
		}
		row := studentGridRow{
			StudentID:   record.StudentID,
			StudentName: studentName(record.LastName, record.FirstName),
			StateValue:  record.StateValue,
			Cells:       []gridCell{cell},
		}
		if record.Comment != nil {
			row.Comment = *record.Comment
		}
		rows = append(rows, row)
	}
	return rows
}

func studentName(lastName, firstName string) string {
	if lastName == "" {
		return firstName
	}
	if firstName == "" {
		return lastName
	}
	return lastName + ", " + firstName
}

func mapPeriods(periods []db.Period) []periodInfo {
	result := make([]periodInfo, 0, len(periods))
	for _, period := range periods {
		result = append(result, periodInfo{
			ID:        period.ID,
			Title:     period.Title,
			SortOrder: period.SortOrder,
		})
	}
	return result
}
