package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/studently/attendance/internal/auth"
	"github.com/studently/attendance/internal/config"
	"github.com/studently/attendance/internal/db"
	"github.com/studently/attendance/internal/reconcile"
)

var (
	overridesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_override_applied_total",
		Help: "Attendance code changes successfully applied.",
	})
	overridesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_override_failed_total",
		Help: "Attendance batch items that failed, by reason.",
	}, []string{"reason"})
	commentsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_comment_applied_total",
		Help: "Day-level comments upserted.",
	})
)

type Server struct {
	cfg        config.Config
	store      *db.Store
	reconciler *reconcile.Reconciler
	redis      *redis.Client
	validate   *validator.Validate
	codeTTL    time.Duration
}

func NewServer(cfg config.Config, store *db.Store, redisClient *redis.Client) *Server {
	return &Server{
		cfg:        cfg,
		store:      store,
		reconciler: reconcile.New(db.NewGateway(store)),
		redis:      redisClient,
		validate:   validator.New(),
		codeTTL:    cfg.CodeCacheTTL,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/attendance", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/admin-period-grid", s.handleAdminPeriodGrid)
		r.Get("/codes", s.handleListCodes)
		r.Post("/codes", s.handleCreateCode)
		r.Put("/codes/{codeId}", s.handleUpdateCode)
		r.Delete("/codes/{codeId}", s.handleDeleteCode)
		r.Post("/bulk-override", s.handleBulkOverride)
		r.Post("/daily-comment", s.handleDailyComment)
		r.Post("/teacher-mark", s.handleTeacherMark)
		r.Get("/student/{studentId}/day", s.handleStudentDay)
	})

	return r
}

// Auth

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func isAdminType(userType string) bool {
	return userType == "admin" || userType == "super-admin"
}

// schoolForRequest resolves the school a request operates on. Super-admins
// (admin claims with no school binding) must name a school explicitly; every
// other profile is locked to its own school.
func schoolForRequest(claims *auth.Claims, r *http.Request) (string, string) {
	param := strings.TrimSpace(r.URL.Query().Get("school_id"))
	if claims.SchoolID == "" {
		if claims.UserType != "super-admin" && claims.UserType != "admin" {
			return "", "missing_school"
		}
		if param == "" {
			return "", "missing_school"
		}
		if _, err := uuid.Parse(param); err != nil {
			return "", "invalid_school_id"
		}
		return param, ""
	}
	if param != "" && param != claims.SchoolID {
		return "", "forbidden"
	}
	return claims.SchoolID, ""
}

// Redis code cache

func codesCacheKey(schoolID string) string {
	return fmt.Sprintf("attendance_codes:%s", schoolID)
}

func (s *Server) loadCachedCodes(ctx context.Context, schoolID string) ([]db.AttendanceCode, bool) {
	if s.redis == nil {
		return nil, false
	}
	value, err := s.redis.Get(ctx, codesCacheKey(schoolID)).Result()
	if err != nil {
		return nil, false
	}
	var codes []db.AttendanceCode
	if err := json.Unmarshal([]byte(value), &codes); err != nil {
		return nil, false
	}
	return codes, true
}

func (s *Server) storeCachedCodes(ctx context.Context, schoolID string, codes []db.AttendanceCode) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(codes)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, codesCacheKey(schoolID), data, s.codeTTL).Err()
}

func (s *Server) invalidateCachedCodes(ctx context.Context, schoolID string) {
	if s.redis == nil {
		return
	}
	_ = s.redis.Del(ctx, codesCacheKey(schoolID)).Err()
}

// Utilities

var errInvalid = errors.New("invalid value")

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

// parseDay accepts calendar dates in 2006-01-02 form, normalized to UTC.
func parseDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errInvalid
	}
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, errInvalid
	}
	return day.UTC(), nil
}

func optionalUUIDParam(r *http.Request, name string) (*string, error) {
	value := strings.TrimSpace(r.URL.Query().Get(name))
	if value == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(value); err != nil {
		return nil, errInvalid
	}
	return &value, nil
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, envelope{Success: false, Error: code})
}
