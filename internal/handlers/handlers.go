package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"pms/internal/apperr"
	"pms/internal/auth"
	"pms/internal/logger"
	"pms/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// Handler serves the HTTP API.
type Handler struct {
	Store     StorageInterface
	Approvals ApprovalEngine
	Programs  ProgramService
	Stats     StatsCache
	Log       logger.Logger
	validate  *validator.Validate
}

func NewHandler(store StorageInterface, approvals ApprovalEngine, programs ProgramService, stats StatsCache, log logger.Logger) *Handler {
	return &Handler{
		Store:     store,
		Approvals: approvals,
		Programs:  programs,
		Stats:     stats,
		Log:       log,
		validate:  newValidator(),
	}
}

// Routes mounts every endpoint. authn guards everything except ping.
func (h *Handler) Routes(authn func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/ping", h.PingHandler)

	r.Group(func(r chi.Router) {
		r.Use(authn)

		r.Get("/approvals", h.ListApprovalsHandler)
		r.Post("/approvals", h.CreateApprovalHandler)
		r.Put("/approvals", h.ResolveApprovalHandler)
		r.Put("/approvals/bulk", h.BulkResolveApprovalsHandler)
		r.Post("/approvals/export", h.ExportApprovalsHandler)

		r.Get("/programs", h.ListProgramsHandler)
		r.Post("/programs", h.CreateProgramHandler)
		r.Get("/programs/{programId}", h.GetProgramHandler)
		r.Put("/programs/{programId}/submit", h.SubmitProgramHandler)
		r.Put("/programs/{programId}/status", h.ChangeProgramStatusHandler)

		r.Get("/notifications", h.ListNotificationsHandler)
		r.Post("/notifications", h.CreateNotificationHandler)
		r.Put("/notifications/read-all", h.MarkAllNotificationsReadHandler)
		r.Put("/notifications/{notificationId}/read", h.MarkNotificationReadHandler)
		r.Delete("/notifications/{notificationId}", h.DeleteNotificationHandler)

		r.Get("/activity", h.ListActivityHandler)
		r.Get("/activity/{activityId}/entity", h.GetActivityEntityHandler)

		r.Get("/dashboard/stats", h.DashboardStatsHandler)
		r.Get("/wards", h.ListWardsHandler)
		r.Get("/fiscal-years", h.ListFiscalYearsHandler)
	})
	return r
}

// PingHandler answers "ok" for liveness checks.
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {"error", "code"} with the status of its kind.
func (h *Handler) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)
	status := apperr.HTTPStatus(appErr)
	if status >= http.StatusInternalServerError {
		h.Log.WithError(err).Error("request failed", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}
	writeJSON(w, status, appErr)
}

// decodeJSON reads a size-limited body into dst and validates it.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return apperr.Validation("failed to read request body")
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Validation("invalid JSON format")
	}
	return h.validateStruct(dst)
}

func (h *Handler) validateStruct(v interface{}) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Validation("%s", describeFieldError(fe)).WithDetail("field", fe.Field())
	}
	return apperr.Validation("invalid request")
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s long", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "gt", "gte":
		return fmt.Sprintf("%s must be positive", fe.Field())
	case "uuid":
		return fmt.Sprintf("%s must be a valid id", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// newValidator reports JSON field names instead of Go field names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// actor returns the authenticated user of the request.
func actor(r *http.Request) (models.Actor, error) {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok || a.ID == "" {
		return models.Actor{}, apperr.Unauthorized("authentication required")
	}
	return a, nil
}

// optionalInt parses an optional positive integer query parameter.
func optionalInt(r *http.Request, name string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" || raw == "all" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return nil, apperr.Validation("%s must be a positive integer", name).WithDetail("field", name)
	}
	return &n, nil
}

type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams reads limit and offset with defaults and bounds.
func parsePaginationParams(r *http.Request) PaginationParams {
	params := PaginationParams{Limit: 20}
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		params.Limit = l
	}
	if o, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && o >= 0 {
		params.Offset = o
	}
	return params
}

func (h *Handler) invalidateStats(r *http.Request) {
	if h.Stats != nil {
		h.Stats.Invalidate(r.Context())
	}
}
