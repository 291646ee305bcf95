package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/api/respond"
	"github.com/aliskhannn/shipping-reminder/internal/config"
	"github.com/aliskhannn/shipping-reminder/internal/model"
	"github.com/aliskhannn/shipping-reminder/internal/repository"
)

// notificationService defines the interface that the Handler depends on.
//
//go:generate mockgen -source=handler.go -destination=../../../mocks/api/handlers/notification/mock.go -package=mocks
type notificationService interface {
	CreateNotification(ctx context.Context, n model.Notification) (string, error)
	GetNotification(ctx context.Context, strategy retry.Strategy, id string) (model.NotificationView, error)
	GetAllNotifications(ctx context.Context, strategy retry.Strategy) ([]model.NotificationView, error)
	DeleteNotification(ctx context.Context, id string) error
}

// Handler handles HTTP requests related to shipment notifications.
type Handler struct {
	service   notificationService
	validator *validator.Validate
	cfg       *config.Config
}

// NewHandler creates a new Handler instance.
func NewHandler(
	s notificationService,
	v *validator.Validate,
	cfg *config.Config,
) *Handler {
	return &Handler{service: s, validator: v, cfg: cfg}
}

// CreateRequest represents the JSON body expected in a notification creation request.
type CreateRequest struct {
	CustomerName  string  `json:"customer_name" validate:"required,max=200"`
	PhoneNumber   string  `json:"phone_number" validate:"required,min=8,max=32"`
	ImageURL      string  `json:"image_url" validate:"omitempty,url"`
	ReminderHours float64 `json:"reminder_hours" validate:"gte=0,lte=8760"` // 0 disables the reminder
}

// Create handles HTTP POST requests to create a new notification.
func (h *Handler) Create(c *ginext.Context) {
	var req CreateRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	notif := model.Notification{
		CustomerName:  req.CustomerName,
		PhoneNumber:   req.PhoneNumber,
		ImageURL:      req.ImageURL,
		ReminderHours: req.ReminderHours,
	}

	id, err := h.service.CreateNotification(c.Request.Context(), notif)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("customer", notif.CustomerName).Msg("failed to create notification")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.Created(c.Writer, id)
}

// Get handles HTTP GET requests for a single notification and its reminder state.
func (h *Handler) Get(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	view, err := h.service.GetNotification(c.Request.Context(), h.cfg.Retry, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			zlog.Logger.Warn().Str("id", id).Err(err).Msg("notification not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("notification not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id).Msg("failed to get notification")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, view)
}

// GetAll handles HTTP GET requests to retrieve all notifications.
func (h *Handler) GetAll(c *ginext.Context) {
	notifications, err := h.service.GetAllNotifications(c.Request.Context(), h.cfg.Retry)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to get notifications")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, notifications)
}

// Delete handles HTTP DELETE requests removing a notification.
func (h *Handler) Delete(c *ginext.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteNotification(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			zlog.Logger.Warn().Str("id", id).Err(err).Msg("notification not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("notification not found"))
			return
		}

		zlog.Logger.Error().Err(err).Str("id", id).Msg("failed to delete notification")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, "notification deleted")
}

// parseID extracts the :id parameter and writes a 400 response if it is not a UUID.
func parseID(c *ginext.Context) (string, bool) {
	idStr := c.Param("id")

	id, err := uuid.Parse(idStr)
	if err != nil || id == uuid.Nil {
		zlog.Logger.Warn().Str("id", idStr).Msg("invalid notification id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return "", false
	}

	return id.String(), true
}
