package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/klarolink/notifications/internal/domain"
	"github.com/klarolink/notifications/pkg/response"
	"github.com/klarolink/notifications/pkg/validator"
)

type NotificationHandler struct {
	service *domain.NotificationService
	logger  *zap.Logger
}

func NewNotificationHandler(service *domain.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger,
	}
}

// BulkRequest is the body of POST /bulk
type BulkRequest struct {
	Action  domain.BulkAction         `json:"action"`
	Filters domain.NotificationFilter `json:"filters"`
}

// ListNotifications returns the filtered list with stats
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	filter, err := domain.ParseNotificationFilter(r.URL.Query())
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	list, err := h.service.GetNotifications(r.Context(), filter)
	if err != nil {
		h.writeError(w, "list notifications", err)
		return
	}

	response.OK(w, list)
}

func (h *NotificationHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := notificationID(w, r)
	if !ok {
		return
	}

	n, err := h.service.GetNotification(r.Context(), id)
	if err != nil {
		h.writeError(w, "get notification", err)
		return
	}

	response.OK(w, n)
}

func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateNotificationParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.ValidateCreate(&req); errs.HasErrors() {
		response.Invalid(w, errs.Error(), errs)
		return
	}

	n, err := h.service.CreateNotification(r.Context(), req)
	if err != nil {
		h.writeError(w, "create notification", err)
		return
	}

	response.Created(w, n)
}

func (h *NotificationHandler) UpdateNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := notificationID(w, r)
	if !ok {
		return
	}

	var req domain.UpdateNotificationParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if errs := validator.ValidateUpdate(&req); errs.HasErrors() {
		response.Invalid(w, errs.Error(), errs)
		return
	}

	n, err := h.service.UpdateNotification(r.Context(), id, req)
	if err != nil {
		h.writeError(w, "update notification", err)
		return
	}

	response.OK(w, n)
}

func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := notificationID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteNotification(r.Context(), id); err != nil {
		h.writeError(w, "delete notification", err)
		return
	}

	response.OK(w, domain.DeletionMarker{ID: id})
}

// BulkUpdate applies one action to every notification matching the filters
func (h *NotificationHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	affected, err := h.service.BulkUpdate(r.Context(), req.Action, req.Filters)
	if err != nil {
		h.writeError(w, "bulk update notifications", err)
		return
	}

	response.OK(w, map[string]int{"affected": affected})
}

func (h *NotificationHandler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotificationNotFound):
		response.NotFound(w, "notification not found")
	case errors.Is(err, domain.ErrInvalidNotification),
		errors.Is(err, domain.ErrInvalidFilter),
		errors.Is(err, domain.ErrUnknownBulkAction):
		response.BadRequest(w, err.Error())
	default:
		h.logger.Error("failed to "+op, zap.Error(err))
		response.InternalError(w, "failed to "+op)
	}
}

func notificationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid notification id")
		return 0, false
	}
	return id, true
}
