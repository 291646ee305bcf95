package reminder

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/shipping-reminder/internal/api/respond"
	"github.com/aliskhannn/shipping-reminder/internal/service/reminder"
)

//go:generate mockgen -source=handler.go -destination=../../../mocks/api/handlers/reminder/mock.go -package=mocks
type reminderService interface {
	RunDueReminders(ctx context.Context) (int, error)
	Stats() reminder.Stats
}

// Handler exposes the reminder scheduler over HTTP.
type Handler struct {
	service reminderService
}

// NewHandler creates a new Handler instance.
func NewHandler(s reminderService) *Handler {
	return &Handler{service: s}
}

// RunResponse is the body returned by Run.
type RunResponse struct {
	Sent int `json:"sent"`
}

// Run triggers one reminder pass and reports how many reminders it sent.
func (h *Handler) Run(c *ginext.Context) {
	sent, err := h.service.RunDueReminders(c.Request.Context())
	if err != nil {
		if errors.Is(err, reminder.ErrStoreUnavailable) {
			zlog.Logger.Error().Err(err).Msg("manual reminder run aborted")
			respond.Fail(c.Writer, http.StatusServiceUnavailable, fmt.Errorf("notification store unavailable"))
			return
		}

		zlog.Logger.Warn().Err(err).Int("sent", sent).Msg("manual reminder run interrupted")
	}

	respond.OK(c.Writer, RunResponse{Sent: sent})
}

// Stats returns the scheduler counters of this process.
func (h *Handler) Stats(c *ginext.Context) {
	respond.OK(c.Writer, h.service.Stats())
}
