package http

import (
	"net/http"

	"github.com/studently/attendance/internal/auth"
	"github.com/studently/attendance/internal/reconcile"
)

type codeChangeRequest struct {
	RecordID         string `json:"record_id" validate:"required,uuid"`
	AttendanceCodeID string `json:"attendance_code_id" validate:"required,uuid"`
}

type commentChangeRequest struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Date      string `json:"date" validate:"required"`
	Comment   string `json:"comment"`
}

type bulkOverrideRequest struct {
	Changes  []codeChangeRequest    `json:"changes" validate:"dive"`
	Comments []commentChangeRequest `json:"comments" validate:"dive"`
}

type reconcileResponse struct {
	Updated         int                   `json:"updated"`
	CommentsApplied int                   `json:"comments_applied"`
	Errors          []reconcile.ItemError `json:"errors"`
}

type dailyCommentRequest struct {
	SchoolID  string `json:"school_id" validate:"required,uuid"`
	StudentID string `json:"student_id" validate:"required,uuid"`
	Date      string `json:"date" validate:"required"`
	Comment   string `json:"comment"`
}

func (s *Server) handleBulkOverride(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if !isAdminType(claims.UserType) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	s.applyBatch(w, r, claims, true)
}

// Teachers use the same batch contract for initial marking; their edits do
// not carry the admin-override flag.
func (s *Server) handleTeacherMark(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if claims.UserType != "teacher" {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	s.applyBatch(w, r, claims, false)
}

func (s *Server) applyBatch(w http.ResponseWriter, r *http.Request, claims *auth.Claims, adminOverride bool) {
	schoolID, errCode := schoolForRequest(claims, r)
	if errCode == "forbidden" {
		writeError(w, http.StatusForbidden, errCode)
		return
	}
	if errCode != "" {
		writeError(w, http.StatusBadRequest, errCode)
		return
	}

	var req bulkOverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req.Changes) == 0 && len(req.Comments) == 0 {
		writeError(w, http.StatusBadRequest, "empty_batch")
		return
	}

	codeChanges := make([]reconcile.CodeChange, 0, len(req.Changes))
	for _, change := range req.Changes {
		codeChanges = append(codeChanges, reconcile.CodeChange{
			RecordID:         change.RecordID,
			AttendanceCodeID: change.AttendanceCodeID,
		})
	}
	commentChanges := make([]reconcile.CommentChange, 0, len(req.Comments))
	for _, change := range req.Comments {
		day, err := parseDay(change.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date")
			return
		}
		commentChanges = append(commentChanges, reconcile.CommentChange{
			StudentID: change.StudentID,
			Day:       day,
			Comment:   change.Comment,
		})
	}

	result, err := s.reconciler.Reconcile(r.Context(), schoolID, codeChanges, commentChanges, adminOverride)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	overridesApplied.Add(float64(result.Updated))
	commentsApplied.Add(float64(result.CommentsApplied))
	for _, itemErr := range result.Errors {
		overridesFailed.WithLabelValues(itemErr.Reason).Inc()
	}

	writeData(w, http.StatusOK, mapResult(result))
}

func (s *Server) handleDailyComment(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	if !isAdminType(claims.UserType) && claims.UserType != "teacher" {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req dailyCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if claims.SchoolID != "" && req.SchoolID != claims.SchoolID {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	day, err := parseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	result, err := s.reconciler.Reconcile(r.Context(), req.SchoolID, nil, []reconcile.CommentChange{
		{StudentID: req.StudentID, Day: day, Comment: req.Comment},
	}, isAdminType(claims.UserType))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if len(result.Errors) > 0 {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	commentsApplied.Add(float64(result.CommentsApplied))
	writeData(w, http.StatusOK, mapResult(result))
}

func mapResult(result reconcile.Result) reconcileResponse {
	resp := reconcileResponse{
		Updated:         result.Updated,
		CommentsApplied: result.CommentsApplied,
		Errors:          result.Errors,
	}
	if resp.Errors == nil {
		resp.Errors = []reconcile.ItemError{}
	}
	return resp
}
