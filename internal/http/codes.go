package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studently/attendance/internal/db"
)

type attendanceCodeResponse struct {
	ID         string  `json:"id"`
	SchoolID   string  `json:"school_id"`
	Title      string  `json:"title"`
	ShortCode  string  `json:"short_code"`
	Color      string  `json:"color"`
	StateValue float64 `json:"state_value"`
	SortOrder  int32   `json:"sort_order"`
}

type upsertCodeRequest struct {
	Title      string  `json:"title" validate:"required"`
	ShortCode  string  `json:"short_code" validate:"required"`
	Color      string  `json:"color"`
	StateValue float64 `json:"state_value" validate:"gte=0,lte=1"`
	SortOrder  int32   `json:"sort_order" validate:"gte=0"`
}

func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
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

	if codes, ok := s.loadCachedCodes(r.Context(), schoolID); ok {
		writeData(w, http.StatusOK, mapCodes(codes))
		return
	}

	codes, err := s.store.ListAttendanceCodesBySchool(r.Context(), schoolID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.storeCachedCodes(r.Context(), schoolID, codes)
	writeData(w, http.StatusOK, mapCodes(codes))
}

func (s *Server) handleCreateCode(w http.ResponseWriter, r *http.Request) {
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

	var req upsertCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	code := db.AttendanceCode{
		ID:         uuid.New().String(),
		SchoolID:   schoolID,
		Title:      req.Title,
		ShortCode:  req.ShortCode,
		Color:      req.Color,
		StateValue: req.StateValue,
		SortOrder:  req.SortOrder,
	}
	if err := s.store.CreateAttendanceCode(r.Context(), code); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.invalidateCachedCodes(r.Context(), schoolID)
	writeData(w, http.StatusCreated, mapCode(code))
}

func (s *Server) handleUpdateCode(w http.ResponseWriter, r *http.Request) {
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

	codeID := chi.URLParam(r, "codeId")
	if _, err := uuid.Parse(codeID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_code_id")
		return
	}

	var req upsertCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	code := db.AttendanceCode{
		ID:         codeID,
		SchoolID:   schoolID,
		Title:      req.Title,
		ShortCode:  req.ShortCode,
		Color:      req.Color,
		StateValue: req.StateValue,
		SortOrder:  req.SortOrder,
	}
	if err := s.store.UpdateAttendanceCode(r.Context(), code); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "code_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.invalidateCachedCodes(r.Context(), schoolID)
	writeData(w, http.StatusOK, mapCode(code))
}

func (s *Server) handleDeleteCode(w http.ResponseWriter, r *http.Request) {
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

	codeID := chi.URLParam(r, "codeId")
	if _, err := uuid.Parse(codeID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_code_id")
		return
	}

	if err := s.store.DeleteAttendanceCode(r.Context(), schoolID, codeID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "code_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	s.invalidateCachedCodes(r.Context(), schoolID)
	w.WriteHeader(http.StatusNoContent)
}

func mapCode(code db.AttendanceCode) attendanceCodeResponse {
	return attendanceCodeResponse{
		ID:         code.ID,
		SchoolID:   code.SchoolID,
		Title:      code.Title,
		ShortCode:  code.ShortCode,
		Color:      code.Color,
		StateValue: code.StateValue,
		SortOrder:  code.SortOrder,
	}
}

func mapCodes(codes []db.AttendanceCode) []attendanceCodeResponse {
	result := make([]attendanceCodeResponse, 0, len(codes))
	for _, code := range codes {
		result = append(result, mapCode(code))
	}
	return result
}
