package router

import (
	"github.com/wb-go/wbf/ginext"

	"github.com/aliskhannn/shipping-reminder/internal/api/handlers/notification"
	"github.com/aliskhannn/shipping-reminder/internal/api/handlers/reminder"
	"github.com/aliskhannn/shipping-reminder/internal/middlewares"
)

// New builds the API router.
func New(notifHandler *notification.Handler, reminderHandler *reminder.Handler) *ginext.Engine {
	e := ginext.New()
	e.Use(middlewares.CORSMiddleware())
	e.Use(ginext.Logger())
	e.Use(ginext.Recovery())

	notifications := e.Group("/api/notifications")
	{
		notifications.POST("", notifHandler.Create)
		notifications.GET("", notifHandler.GetAll)
		notifications.GET("/:id", notifHandler.Get)
		notifications.DELETE("/:id", notifHandler.Delete)
	}

	reminders := e.Group("/api/reminders")
	{
		reminders.POST("/run", reminderHandler.Run)
		reminders.GET("/stats", reminderHandler.Stats)
	}

	return e
}
