package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pms/db"
	"pms/internal/apperr"
	"pms/models"

	"github.com/go-chi/chi/v5"
)

type createNotificationRequest struct {
	Title      string     `json:"title" validate:"required,max=200"`
	Message    string     `json:"message" validate:"required,max=2000"`
	Type       string     `json:"type" validate:"required,oneof=deadline approval payment info warning error"`
	Priority   string     `json:"priority" validate:"omitempty,oneof=low medium high"`
	UserID     *string    `json:"userId" validate:"omitempty,uuid"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	EntityType *string    `json:"entityType" validate:"omitempty,oneof=program approval notification"`
	EntityID   *string    `json:"entityId" validate:"required_with=EntityType,omitempty,max=64"`
}

// ListNotificationsHandler serves GET /notifications?unread= for the acting user.
func (h *Handler) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	items, unread, err := h.Store.ListNotifications(r.Context(), a.ID, unreadOnly)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": items,
		"unreadCount":   unread,
		"total":         len(items),
	})
}

// CreateNotificationHandler serves POST /notifications.
func (h *Handler) CreateNotificationHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.WriteError(w, r, err)
		return
	}
	var req createNotificationRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		h.WriteError(w, r, apperr.Validation("expiresAt must be in the future").WithDetail("field", "expiresAt"))
		return
	}

	if req.UserID != nil {
		if _, err := h.Store.FindUser(r.Context(), *req.UserID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				err = apperr.NotFound("user", *req.UserID)
			}
			h.WriteError(w, r, err)
			return
		}
	}

	n := &models.Notification{
		Title:     req.Title,
		Message:   req.Message,
		Type:      models.NotificationType(req.Type),
		Priority:  models.PriorityMedium,
		UserID:    req.UserID,
		ExpiresAt: req.ExpiresAt,
		EntityID:  req.EntityID,
	}
	if req.Priority != "" {
		n.Priority = models.Priority(req.Priority)
	}
	if req.EntityType != nil {
		et := models.EntityType(*req.EntityType)
		n.EntityType = &et
	}

	if err := h.Store.CreateNotification(r.Context(), n); err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// MarkNotificationReadHandler serves PUT /notifications/{notificationId}/read.
func (h *Handler) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	id := chi.URLParam(r, "notificationId")
	if err := h.Store.MarkNotificationRead(r.Context(), id, a.ID); err != nil {
		h.WriteError(w, r, notificationError(err, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

// MarkAllNotificationsReadHandler serves PUT /notifications/read-all.
func (h *Handler) MarkAllNotificationsReadHandler(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	n, err := h.Store.MarkAllNotificationsRead(r.Context(), a.ID)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "All notifications marked as read",
		"updated": n,
	})
}

// DeleteNotificationHandler serves DELETE /notifications/{notificationId}.
func (h *Handler) DeleteNotificationHandler(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		h.WriteError(w, r, err)
		return
	}
	id := chi.URLParam(r, "notificationId")
	if err := h.Store.DeleteNotification(r.Context(), id); err != nil {
		h.WriteError(w, r, notificationError(err, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notification deleted"})
}

func notificationError(err error, id string) error {
	if errors.Is(err, db.ErrNotFound) {
		return apperr.NotFound("notification", id)
	}
	return err
}
