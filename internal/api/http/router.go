package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workorder-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	WorkOrders     *handlers.WorkOrdersHandler
	Notifications  *handlers.NotificationsHandler
	Templates      *handlers.TemplatesHandler
	AuthMiddleware fiber.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", cfg.AuthMiddleware)

	workOrders := api.Group("/work-orders")
	workOrders.Post("", cfg.WorkOrders.Create)
	workOrders.Get("", cfg.WorkOrders.List)
	workOrders.Get("/:id", cfg.WorkOrders.Get)
	workOrders.Get("/:id/history", cfg.WorkOrders.History)
	workOrders.Post("/:id/actions/:action", cfg.WorkOrders.Execute)

	notifications := api.Group("/notifications")
	notifications.Get("", cfg.Notifications.List)
	notifications.Get("/unread-count", cfg.Notifications.UnreadCount)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)
	notifications.Get("/preferences", cfg.Notifications.GetPreferences)
	notifications.Put("/preferences", cfg.Notifications.UpdatePreferences)

	presence := api.Group("/presence")
	presence.Post("/heartbeat", cfg.Notifications.Heartbeat)
	presence.Post("/disconnect", cfg.Notifications.Disconnect)

	admin := api.Group("/admin/templates")
	admin.Get("", cfg.Templates.List)
	admin.Get("/:type", cfg.Templates.Get)
	admin.Put("/:type", cfg.Templates.Upsert)
}
